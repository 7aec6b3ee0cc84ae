package clients

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/confluentinc/confluent-kafka-go/kafka"
)

var (
	kafkaProducer *kafka.Producer
	kafkaOnce     sync.Once
)

func getEnv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return defaultValue
}

// InitKafkaProducer initializes the shared idempotent producer.
func InitKafkaProducer() error {
	var initErr error
	kafkaOnce.Do(func() {
		broker := getEnv("KAFKA_BROKER", "localhost:29092")
		slog.Info("[KafkaClient] Initializing Kafka Producer...",
			slog.String("broker", broker))

		p, err := kafka.NewProducer(&kafka.ConfigMap{
			"bootstrap.servers":   broker,
			"security.protocol":   "PLAINTEXT",
			"api.version.request": "true",
			"enable.idempotence":  true,
			"acks":                "all",
		})
		if err != nil {
			initErr = fmt.Errorf("[KafkaClient] Failed to create producer: %w", err)
			return
		}

		kafkaProducer = p
		slog.Info("[KafkaClient] Kafka Producer initialized successfully")
	})
	return initErr
}

func CloseKafkaProducer() {
	slog.Info("[KafkaClient] Shutting down Kafka producer...")
	if kafkaProducer != nil {
		slog.Info("[KafkaClient] Flushing Kafka producer before shutdown...")
		if remaining := kafkaProducer.Flush(5000); remaining > 0 {
			slog.Warn("[KafkaClient] Not all messages were delivered before shutdown",
				slog.Int("remaining", remaining))
		}
		kafkaProducer.Close()
		slog.Info("[KafkaClient] Kafka producer shut down")
	}
}

// PublishJSON serializes v and produces it keyed by key. Delivery reports
// ride the producer's event channel; callers flush on shutdown.
func PublishJSON(topic string, key string, v any) error {
	if kafkaProducer == nil {
		return fmt.Errorf("[KafkaClient] producer not initialized")
	}

	jsonData, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("[KafkaClient] failed to marshal payload: %w", err)
	}

	msg := &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Key:            []byte(key),
		Value:          jsonData,
	}

	for i := 0; i < MAX_RETRIES; i++ {
		err = kafkaProducer.Produce(msg, nil)
		if err == nil {
			break
		}
		slog.Warn("[KafkaClient] Failed to produce message, retrying...",
			slog.Int("attempt", i+1),
			slog.String("topic", topic))
	}
	if err != nil {
		return fmt.Errorf("[KafkaClient] failed to produce to %s: %w", topic, err)
	}
	return nil
}
