package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/spacesedan/insightflow/config"
	"github.com/spacesedan/insightflow/internal/db"
	"github.com/spacesedan/insightflow/internal/logging"
	"github.com/spacesedan/insightflow/internal/models"
)

// seedEntry pairs sample text with its tone so per-source metadata stays
// consistent with what the text says.
type seedEntry struct {
	text     string
	negative bool
}

// seedTexts mixes themes and tones so a seeded table exercises clustering,
// pattern detection, and shift tracking end to end. A few entries carry
// markdown the way raw review exports do.
var seedTexts = []seedEntry{
	{"Checkout fails with a timeout every time I try to pay with a saved card.", true},
	{"The checkout page froze twice this week and I lost my cart both times.", true},
	{"Payment went through on the third attempt only. Checkout is unreliable.", true},
	{"**Blocked**: cannot complete checkout on mobile, the pay button does nothing.", true},
	{"Checkout was quick and the new payment options are great.", false},
	{"The dashboard takes close to a minute to load since the last update.", true},
	{"Dashboard charts render blank until I refresh three or four times.", true},
	{"Loading the analytics dashboard is *painfully* slow for large accounts.", true},
	{"New dashboard layout is clean and much easier to read.", false},
	{"Search returns no results for product names that definitely exist.", true},
	{"Search ranking feels off, exact matches show up below partial ones.", true},
	{"Search finally finds SKUs by partial code. Huge time saver.", false},
	{"The app crashes on startup since version 3.2.0 on my Pixel.", true},
	{"App crashed mid-session and I had to re-enter all my data.", true},
	{"# Support experience\n\nWaited five days for a reply on a billing ticket.", true},
	{"Support resolved my issue in one call. Impressed with the team.", false},
	{"Billing charged me twice this month and the refund is still pending.", true},
	{"Invoices now itemize usage properly. Thank you for fixing this.", false},
	{"Onboarding docs skip the SSO setup entirely, had to guess my way through.", true},
	{"The onboarding checklist made rollout to my team painless.", false},
	{"Export to CSV silently drops rows past ten thousand records.", true},
	{"Love the new export scheduling. It just works.", false},
}

var (
	segments = []string{"enterprise", "smb", "consumer"}
	versions = []string{"3.1.0", "3.1.1", "3.2.0"}
	stores   = []string{"play", "appstore"}
	channels = []string{"email", "chat", "phone"}
)

func main() {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "dev"
	}
	config.LoadEnv(env)
	logging.InitLogger()

	count := envInt("SEED_COUNT", 60)
	windowDays := envInt("SEED_WINDOW_DAYS", 7)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute*2)
	defer cancel()

	db.InitDynamoDB()

	items := buildItems(count, windowDays)
	if err := db.StoreFeedbackItems(ctx, items); err != nil {
		slog.Error("[Seed] Failed to store feedback items",
			slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("[Seed] Seeded feedback items",
		slog.Int("count", len(items)),
		slog.Int("window_days", windowDays))
}

// buildItems spreads count items evenly across the trailing window, rotating
// sources and cycling the sample pool.
func buildItems(count, windowDays int) []models.FeedbackItem {
	sources := models.AllSources()
	end := time.Now().UTC()
	start := end.AddDate(0, 0, -windowDays)
	step := end.Sub(start) / time.Duration(count+1)

	items := make([]models.FeedbackItem, 0, count)
	for i := 0; i < count; i++ {
		entry := seedTexts[i%len(seedTexts)]
		source := sources[i%len(sources)]

		items = append(items, models.FeedbackItem{
			ID:        uuid.NewString(),
			Source:    source,
			Text:      entry.text,
			Timestamp: start.Add(step * time.Duration(i+1)),
			Metadata:  metadataFor(source, entry.negative, i),
		})
	}
	return items
}

func metadataFor(source models.SourceKind, negative bool, i int) models.SourceMetadata {
	rating := 4 + i%2
	if negative {
		rating = 1 + i%2
	}

	switch source {
	case models.SourceSurvey:
		return models.SurveyMetadata{
			Rating:  rating,
			Segment: segments[i%len(segments)],
		}
	case models.SourceReview:
		return models.ReviewMetadata{
			Rating:     rating,
			AppVersion: versions[i%len(versions)],
			Store:      stores[i%len(stores)],
		}
	case models.SourceSupport:
		return models.SupportMetadata{
			TicketID:  fmt.Sprintf("TCK-%05d", 10000+i),
			Channel:   channels[i%len(channels)],
			Escalated: negative && i%3 == 0,
		}
	}
	return nil
}

func envInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		slog.Warn("[Seed] Invalid numeric env value, using fallback",
			slog.String("key", key),
			slog.String("value", raw),
			slog.Int("fallback", fallback))
		return fallback
	}
	return v
}
