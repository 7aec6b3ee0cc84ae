package db

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/spacesedan/insightflow/internal/clients"
	"github.com/spacesedan/insightflow/internal/models"
)

const (
	FEEDBACK_TABLE_NAME = "FeedbackItems"
	BUNDLES_TABLE_NAME  = "AnalysisBundles"

	// DynamoDB caps BatchWriteItem at 25 requests.
	maxBatchSize = 25

	bundleTTL = 30 * 24 * time.Hour
)

var dbClient *dynamodb.Client

func InitDynamoDB() {
	dbClient = clients.GetDynamoDBClient()
}

// Store adapts the tables to the orchestrator's fetch interface.
type Store struct{}

func (Store) FetchItems(ctx context.Context, window models.TimeWindow, sources []models.SourceKind) ([]models.FeedbackItem, error) {
	return FetchFeedbackItems(ctx, window, sources)
}

// FetchFeedbackItems scans the feedback table for items from the given
// sources whose timestamp falls inside the window. The scan filter does
// the coarse cut; window.Contains applies the exact bound, closed on
// both ends.
func FetchFeedbackItems(ctx context.Context, window models.TimeWindow, sources []models.SourceKind) ([]models.FeedbackItem, error) {
	if dbClient == nil {
		dbClient = clients.GetDynamoDBClient()
	}

	names := map[string]string{"#src": "source", "#ts": "timestamp"}
	values := map[string]types.AttributeValue{
		":start": &types.AttributeValueMemberN{Value: strconv.FormatInt(window.Start.Unix(), 10)},
		":end":   &types.AttributeValueMemberN{Value: strconv.FormatInt(window.End.Unix(), 10)},
	}
	placeholders := make([]string, 0, len(sources))
	for i, source := range sources {
		placeholder := fmt.Sprintf(":s%d", i)
		placeholders = append(placeholders, placeholder)
		values[placeholder] = &types.AttributeValueMemberS{Value: string(source)}
	}

	input := &dynamodb.ScanInput{
		TableName:                 aws.String(FEEDBACK_TABLE_NAME),
		FilterExpression:          aws.String(fmt.Sprintf("#ts BETWEEN :start AND :end AND #src IN (%s)", strings.Join(placeholders, ", "))),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	}

	var items []models.FeedbackItem
	paginator := dynamodb.NewScanPaginator(dbClient, input)
	for paginator.HasMorePages() {
		out, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("[DynamoDB] Scan for feedback items failed: %w", err)
		}
		for _, attrs := range out.Items {
			item, err := feedbackFromAttributes(attrs)
			if err != nil {
				slog.Warn("[DynamoDB] Skipping undecodable feedback item",
					slog.String("error", err.Error()))
				continue
			}
			if !window.Contains(item.Timestamp) {
				continue
			}
			items = append(items, item)
		}
	}

	slog.Info("[DynamoDB] Successfully retrieved feedback items",
		slog.Int("count", len(items)))
	return items, nil
}

// StoreFeedbackItems batch-writes feedback records, retrying unprocessed
// items with doubling backoff.
func StoreFeedbackItems(ctx context.Context, items []models.FeedbackItem) error {
	if dbClient == nil {
		dbClient = clients.GetDynamoDBClient()
	}

	for i := 0; i < len(items); i += maxBatchSize {
		select {
		case <-ctx.Done():
			slog.Warn("[DynamoDB] context canceled")
			return ctx.Err()
		default:
			end := i + maxBatchSize
			if end > len(items) {
				end = len(items)
			}

			writeRequests := make([]types.WriteRequest, 0, maxBatchSize)
			for _, item := range items[i:end] {
				attrs, err := feedbackToAttributes(item)
				if err != nil {
					return fmt.Errorf("[DynamoDB] Failed to encode feedback item %s: %w", item.ID, err)
				}
				writeRequests = append(writeRequests, types.WriteRequest{
					PutRequest: &types.PutRequest{Item: attrs},
				})
			}

			out, err := dbClient.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
				RequestItems: map[string][]types.WriteRequest{
					FEEDBACK_TABLE_NAME: writeRequests,
				},
			})
			if err != nil {
				return fmt.Errorf("[DynamoDB] Failed to batch write feedback items: %w", err)
			}

			retryCount := 0
			backoff := 500 * time.Millisecond
			for len(out.UnprocessedItems) > 0 && retryCount < 3 {
				time.Sleep(backoff)
				backoff *= 2
				slog.Warn("[DynamoDB] Retrying unprocessed feedback items...",
					slog.Int("attempt", retryCount+1),
					slog.Int("remaining", len(out.UnprocessedItems[FEEDBACK_TABLE_NAME])))

				out, err = dbClient.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
					RequestItems: out.UnprocessedItems,
				})
				if err != nil {
					return fmt.Errorf("[DynamoDB] Failed to retry batch write: %w", err)
				}
				retryCount++
			}

			if len(out.UnprocessedItems) > 0 {
				slog.Error("[DynamoDB] Some feedback items were not written even after retries",
					slog.Int("remaining", len(out.UnprocessedItems[FEEDBACK_TABLE_NAME])))
			}
		}
	}
	slog.Info("[DynamoDB] Successfully stored feedback items",
		slog.Int("count", len(items)))
	return nil
}

// SaveBundle persists a completed analysis bundle keyed by run id.
func SaveBundle(ctx context.Context, bundle *models.AnalysisBundle) error {
	if dbClient == nil {
		dbClient = clients.GetDynamoDBClient()
	}

	attrs, err := attributevalue.MarshalMap(bundle)
	if err != nil {
		return fmt.Errorf("[DynamoDB] Failed to encode bundle %s: %w", bundle.RunID, err)
	}
	attrs["generated_at_unix"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(bundle.GeneratedAt.Unix(), 10)}
	attrs["expires_at"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(time.Now().Add(bundleTTL).Unix(), 10)}

	_, err = dbClient.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(BUNDLES_TABLE_NAME),
		Item:      attrs,
	})
	if err != nil {
		return fmt.Errorf("[DynamoDB] Failed to store bundle %s: %w", bundle.RunID, err)
	}

	slog.Info("[DynamoDB] Successfully stored analysis bundle",
		slog.String("run_id", bundle.RunID))
	return nil
}

// LatestBundle returns the most recently generated bundle, or nil when
// the table is empty. Feeds shift and trend comparisons for the next run.
func LatestBundle(ctx context.Context) (*models.AnalysisBundle, error) {
	if dbClient == nil {
		dbClient = clients.GetDynamoDBClient()
	}

	input := &dynamodb.ScanInput{
		TableName: aws.String(BUNDLES_TABLE_NAME),
	}

	var bestAt int64
	var best map[string]types.AttributeValue
	paginator := dynamodb.NewScanPaginator(dbClient, input)
	for paginator.HasMorePages() {
		out, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("[DynamoDB] Scan for bundles failed: %w", err)
		}
		for _, attrs := range out.Items {
			at, ok := numberAttr(attrs["generated_at_unix"])
			if !ok || at <= bestAt {
				continue
			}
			bestAt = at
			best = attrs
		}
	}
	if best == nil {
		slog.Info("[DynamoDB] No prior bundles found")
		return nil, nil
	}

	var bundle models.AnalysisBundle
	if err := attributevalue.UnmarshalMap(best, &bundle); err != nil {
		return nil, fmt.Errorf("[DynamoDB] Failed to decode latest bundle: %w", err)
	}
	slog.Info("[DynamoDB] Successfully retrieved latest bundle",
		slog.String("run_id", bundle.RunID))
	return &bundle, nil
}

// feedbackToAttributes stores the full item as a JSON payload next to the
// attributes the scan filter needs. The payload round-trips through the
// model's own codec so metadata variants survive.
func feedbackToAttributes(item models.FeedbackItem) (map[string]types.AttributeValue, error) {
	payload, err := json.Marshal(item)
	if err != nil {
		return nil, err
	}
	return map[string]types.AttributeValue{
		"id":        &types.AttributeValueMemberS{Value: item.ID},
		"source":    &types.AttributeValueMemberS{Value: string(item.Source)},
		"timestamp": &types.AttributeValueMemberN{Value: strconv.FormatInt(item.Timestamp.Unix(), 10)},
		"payload":   &types.AttributeValueMemberS{Value: string(payload)},
	}, nil
}

func feedbackFromAttributes(attrs map[string]types.AttributeValue) (models.FeedbackItem, error) {
	payload, ok := stringAttr(attrs["payload"])
	if !ok {
		return models.FeedbackItem{}, fmt.Errorf("feedback item missing payload attribute")
	}
	var item models.FeedbackItem
	if err := json.Unmarshal([]byte(payload), &item); err != nil {
		return models.FeedbackItem{}, err
	}
	return item, nil
}

func stringAttr(attr types.AttributeValue) (string, bool) {
	s, ok := attr.(*types.AttributeValueMemberS)
	if !ok {
		return "", false
	}
	return s.Value, true
}

func numberAttr(attr types.AttributeValue) (int64, bool) {
	n, ok := attr.(*types.AttributeValueMemberN)
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseInt(n.Value, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
