package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spacesedan/insightflow/config"
	"github.com/spacesedan/insightflow/internal/clients"
	"github.com/spacesedan/insightflow/internal/db"
	"github.com/spacesedan/insightflow/internal/logging"
	"github.com/spacesedan/insightflow/internal/models"
	"github.com/spacesedan/insightflow/internal/orchestrator"
	"github.com/spacesedan/insightflow/internal/semantic"
)

const kafkaInitAttempts = 3

func main() {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "dev"
	}
	config.LoadEnv(env)
	logging.InitLogger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stopChan := make(chan os.Signal, 1)
	signal.Notify(stopChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-stopChan
		slog.Warn("[Analyzer] Shutdown signal received, canceling run...")
		cancel()
	}()

	cfg := configFromEnv()

	openaiClient, err := clients.NewOpenAIClient()
	if err != nil {
		slog.Error("[Analyzer] Failed to create OpenAI client",
			slog.String("error", err.Error()))
		os.Exit(1)
	}

	var embedStore semantic.EmbeddingStore
	if os.Getenv("VALKEY_INIT_ADDRESS") != "" {
		clients.InitValkey()
		defer clients.CloseValkey()
		embedStore = clients.GetValkeyClient()
	}

	semClient := semantic.NewOpenAI(openaiClient,
		semantic.Config{Workers: cfg.Workers},
		semantic.NewEmbeddingCache(embedStore))

	orc := orchestrator.NewOrchestrator(semClient, db.Store{})

	kafkaUp := false
	if os.Getenv("KAFKA_BROKER") != "" {
		for i := 0; i < kafkaInitAttempts; i++ {
			if err = clients.InitKafkaProducer(); err == nil {
				kafkaUp = true
				break
			}
			slog.Warn("[Analyzer] Kafka init failed, retrying...",
				slog.String("error", err.Error()))
			time.Sleep(5 * time.Second)
		}
		if kafkaUp {
			defer clients.CloseKafkaProducer()
			orc = orc.WithProgressSink(orchestrator.KafkaSink{})
		} else {
			slog.Warn("[Analyzer] Kafka unavailable, progress stays on logs",
				slog.String("error", err.Error()))
		}
	}

	db.InitDynamoDB()

	previous, err := db.LatestBundle(ctx)
	if err != nil {
		slog.Warn("[Analyzer] Failed to load previous bundle, running without history",
			slog.String("error", err.Error()))
	}

	bundle, err := orc.Run(ctx, cfg, previous.History())
	if err != nil {
		slog.Error("[Analyzer] Analysis run failed",
			slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := db.SaveBundle(ctx, bundle); err != nil {
		slog.Error("[Analyzer] Failed to persist bundle",
			slog.String("run_id", bundle.RunID),
			slog.String("error", err.Error()))
		os.Exit(1)
	}

	if kafkaUp {
		if err := clients.PublishJSON(clients.KAFKA_TOPIC_ANALYSIS_BUNDLES, bundle.RunID, bundle); err != nil {
			slog.Warn("[Analyzer] Failed to publish bundle",
				slog.String("run_id", bundle.RunID),
				slog.String("error", err.Error()))
		}
	}

	slog.Info("[Analyzer] Analysis run completed",
		slog.String("run_id", bundle.RunID),
		slog.Int("total_items", bundle.TotalItems),
		slog.Int("insights", len(bundle.Insights)))
}

// configFromEnv assembles the run config from environment knobs. Zero-value
// knobs are filled in by the orchestrator's defaults.
func configFromEnv() models.AnalysisConfig {
	windowDays := envInt("ANALYSIS_WINDOW_DAYS", 7)
	now := time.Now().UTC()

	cfg := models.AnalysisConfig{
		Sources: models.AllSources(),
		Window: models.TimeWindow{
			Start: now.AddDate(0, 0, -windowDays),
			End:   now,
		},
		Workers:   envInt("ANALYSIS_WORKERS", 0),
		RunBudget: time.Duration(envInt("RUN_BUDGET_SECONDS", 0)) * time.Second,
	}

	if raw := os.Getenv("ANALYSIS_SOURCES"); raw != "" {
		cfg.Sources = cfg.Sources[:0]
		for _, s := range strings.Split(raw, ",") {
			cfg.Sources = append(cfg.Sources, models.SourceKind(strings.TrimSpace(s)))
		}
	}
	if raw := os.Getenv("FOCUS_AREAS"); raw != "" {
		cfg.FocusAreas = splitList(raw)
	}
	if raw := os.Getenv("CUSTOM_CATEGORIES"); raw != "" {
		cfg.CustomCategories = splitList(raw)
	}
	if raw := os.Getenv("MIN_CONFIDENCE"); raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			cfg.MinConfidence = v
		} else {
			slog.Warn("[Analyzer] Invalid MIN_CONFIDENCE, using default",
				slog.String("value", raw))
		}
	}
	return cfg
}

func envInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		slog.Warn("[Analyzer] Invalid numeric env value, using fallback",
			slog.String("key", key),
			slog.String("value", raw),
			slog.Int("fallback", fallback))
		return fallback
	}
	return v
}

func splitList(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
