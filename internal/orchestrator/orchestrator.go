// Package orchestrator coordinates a full analysis run: fetch the corpus,
// fan sentiment scoring and theme extraction out concurrently, cluster,
// recognize cross-source patterns, synthesize insights, and assemble the
// bundle. Item failures stay isolated; a run only fails outright on bad
// config, a fetch error, or a fully exhausted corpus.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/spacesedan/insightflow/internal/clustering"
	"github.com/spacesedan/insightflow/internal/insights"
	"github.com/spacesedan/insightflow/internal/models"
	"github.com/spacesedan/insightflow/internal/patterns"
	"github.com/spacesedan/insightflow/internal/semantic"
	"github.com/spacesedan/insightflow/internal/sentiment"
	"github.com/spacesedan/insightflow/internal/utils"
)

// stageChunk bounds how many items one batch call covers so progress and
// budget cancellation land between chunks.
const stageChunk = 250

// Store fetches the feedback corpus for a window.
type Store interface {
	FetchItems(ctx context.Context, window models.TimeWindow, sources []models.SourceKind) ([]models.FeedbackItem, error)
}

// Orchestrator wires the analysis stages around one semantic client.
type Orchestrator struct {
	client   semantic.Client
	store    Store
	analyzer *sentiment.Analyzer
	sink     ProgressSink
}

func NewOrchestrator(client semantic.Client, store Store) *Orchestrator {
	return &Orchestrator{
		client:   client,
		store:    store,
		analyzer: sentiment.NewAnalyzer(client),
		sink:     SlogSink{},
	}
}

// WithProgressSink replaces the default slog sink.
func (o *Orchestrator) WithProgressSink(sink ProgressSink) *Orchestrator {
	o.sink = sink
	return o
}

// Run executes one analysis over the configured window. history may be
// nil; when present its metrics feed shift detection and its clusters
// feed trend tracking. The returned bundle reflects partial coverage
// when items fail or the run budget expires mid-flight.
func (o *Orchestrator) Run(ctx context.Context, cfg models.AnalysisConfig, history *models.AnalysisHistory) (*models.AnalysisBundle, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.WithDefaults()

	runID := uuid.NewString()
	started := time.Now()
	slog.Info("[Orchestrator] Starting analysis run",
		slog.String("run_id", runID),
		slog.Int("sources", len(cfg.Sources)))

	fetched, err := o.store.FetchItems(ctx, cfg.Window, cfg.Sources)
	if err != nil {
		return nil, fmt.Errorf("fetch feedback items: %w", err)
	}

	items, statuses, intakeFailures := screen(fetched, cfg.Sources)
	if len(items) == 0 {
		return nil, fmt.Errorf("no items passed intake for the configured window and sources: %w", ErrNoUsableItems)
	}

	runCtx := ctx
	cancel := context.CancelFunc(func() {})
	if cfg.RunBudget > 0 {
		runCtx, cancel = context.WithTimeout(ctx, cfg.RunBudget)
	}
	defer cancel()

	clusterer := clustering.NewClusterer(o.client)
	if len(cfg.CustomCategories) > 0 {
		clusterer.WithCategories(cfg.CustomCategories)
	}

	outcomes := make([]sentiment.Outcome, len(items))
	themes := make([]clustering.ThemeOutcome, len(items))

	g := new(errgroup.Group)
	g.Go(func() error {
		t := newTracker(runID, "sentiment", len(items), o.sink)
		runChunks(runCtx, items, t, func(chunkCtx context.Context, offset int, chunk []models.FeedbackItem) {
			copy(outcomes[offset:], o.analyzer.AnalyzeBatch(chunkCtx, chunk))
		})
		return nil
	})
	g.Go(func() error {
		t := newTracker(runID, "clustering", len(items), o.sink)
		runChunks(runCtx, items, t, func(chunkCtx context.Context, offset int, chunk []models.FeedbackItem) {
			copy(themes[offset:], clusterer.ExtractThemes(chunkCtx, chunk))
		})
		return nil
	})
	g.Wait()
	budgetCut := runCtx.Err() != nil

	results := make([]models.SentimentResult, 0, len(items))
	sentimentFailures := append([]models.ItemFailure(nil), intakeFailures...)
	var clusterFailures []models.ItemFailure
	scores := make(map[string]float64, len(items))
	var members []clustering.Member
	itemsBySource := make(map[models.SourceKind]int)

	for i, item := range items {
		itemsBySource[item.Source]++
		status := statuses[item.Source]

		if out := outcomes[i]; out.Err != nil {
			status.Failed++
			sentimentFailures = append(sentimentFailures, itemFailure(item, "sentiment", out.Err))
		} else {
			status.Analyzed++
			results = append(results, *out.Result)
			scores[item.ID] = out.Result.Score
		}

		if th := themes[i]; th.Err != nil {
			clusterFailures = append(clusterFailures, itemFailure(item, "clustering", th.Err))
		} else {
			members = append(members, clustering.Member{Item: item, Theme: *th.Theme})
		}
	}
	if len(results) == 0 && len(members) == 0 {
		return nil, fmt.Errorf("all %d items failed analysis: %w", len(items), ErrNoUsableItems)
	}
	for _, status := range statuses {
		if !status.Excluded && status.Analyzed == 0 {
			status.Excluded = true
			status.Caveat = "all items failed analysis"
			slog.Warn("[Orchestrator] Excluding source with no surviving items",
				slog.String("source", string(status.Source)))
		}
	}

	metrics := sentiment.Aggregate(items, outcomes)
	sentimentAnalysis := models.SentimentAnalysis{
		Results:  results,
		Metrics:  metrics,
		Failures: sentimentFailures,
	}
	if history != nil && history.Metrics != nil {
		sentimentAnalysis.Shift = sentiment.DetectShift(metrics, *history.Metrics)
	}

	raws, droppedLabels := clusterer.BuildClusters(runCtx, members)
	for _, dropped := range droppedLabels {
		for _, m := range dropped.Members {
			clusterFailures = append(clusterFailures, itemFailure(m.Item, "clustering", dropped.Err))
		}
	}
	ranked := clustering.Rank(raws, scores, len(items), clustering.DefaultExampleCount)
	if history != nil && len(history.Clusters) > 0 {
		ranked = clusterer.TrackTrends(runCtx, ranked, history.Clusters)
	}

	perSource := make(map[models.SourceKind][]clustering.RawCluster)
	for source, sourceMembers := range clustering.PartitionBySource(members) {
		sourceRaws, sourceDropped := clusterer.BuildClusters(runCtx, sourceMembers)
		if len(sourceDropped) > 0 {
			slog.Warn("[Orchestrator] Dropped labels during per-source clustering",
				slog.String("source", string(source)),
				slog.Int("labels", len(sourceDropped)))
		}
		perSource[source] = sourceRaws
	}
	patternAnalysis := patterns.Recognize(perSource, scores, itemsBySource)

	insightList := insights.Synthesize(insights.Input{
		Sentiment: sentimentAnalysis,
		Clusters:  ranked,
		Patterns:  patternAnalysis,
		Analyzed:  metrics.Analyzed,
	}, cfg)

	bundle := &models.AnalysisBundle{
		RunID:       runID,
		GeneratedAt: time.Now().UTC(),
		Window:      cfg.Window,
		TotalItems:  len(fetched),
		Sentiment:   sentimentAnalysis,
		Clusters:    models.ClusterAnalysis{Clusters: ranked, Failures: clusterFailures},
		Patterns:    patternAnalysis,
		Insights:    insightList,
		Sources:     sourceStatusList(statuses, cfg.Sources),
		Analyzers: []models.AnalyzerStatus{
			stageStatus("sentiment", len(items), metrics.Failed, budgetCut),
			stageStatus("clustering", len(items), len(clusterFailures), budgetCut),
			{Name: "patterns", Completed: true},
			{Name: "insights", Completed: true},
		},
	}

	slog.Info("[Orchestrator] Analysis run finished",
		slog.String("run_id", runID),
		slog.Int("items", len(items)),
		slog.Int("clusters", len(ranked)),
		slog.Int("insights", len(insightList)),
		slog.Duration("took", time.Since(started)))
	return bundle, nil
}

// runChunks feeds items through fn in bounded chunks. When the budget
// expires mid-stage the remaining chunks still pass through fn, which
// fails fast on the dead context and fills error slots.
func runChunks(ctx context.Context, items []models.FeedbackItem, t *tracker, fn func(ctx context.Context, offset int, chunk []models.FeedbackItem)) {
	offset := 0
	for _, chunk := range utils.Chunk(items, stageChunk) {
		fn(ctx, offset, chunk)
		t.add(len(chunk))
		offset += len(chunk)
	}
}

// screen partitions fetched items by source, drops invalid ones, and
// excludes sources that cannot clear the per-source minimum. Kept items
// come back grouped in configured-source order.
func screen(fetched []models.FeedbackItem, sources []models.SourceKind) ([]models.FeedbackItem, map[models.SourceKind]*models.SourceStatus, []models.ItemFailure) {
	statuses := make(map[models.SourceKind]*models.SourceStatus, len(sources))
	bySource := make(map[models.SourceKind][]models.FeedbackItem)
	for _, source := range sources {
		statuses[source] = &models.SourceStatus{Source: source}
	}

	for _, item := range fetched {
		status, ok := statuses[item.Source]
		if !ok {
			slog.Warn("[Orchestrator] Dropping item from unconfigured source",
				slog.String("item_id", item.ID),
				slog.String("source", string(item.Source)))
			continue
		}
		status.ItemCount++
		bySource[item.Source] = append(bySource[item.Source], item)
	}

	var kept []models.FeedbackItem
	var failures []models.ItemFailure
	for _, source := range sources {
		status := statuses[source]

		var valid []models.FeedbackItem
		var invalid []models.ItemFailure
		for _, item := range bySource[source] {
			if err := item.Validate(); err != nil {
				invalid = append(invalid, itemFailure(item, "intake", err))
				continue
			}
			valid = append(valid, item)
		}

		status.Failed = len(invalid)
		failures = append(failures, invalid...)

		if len(valid) < models.MinItemsPerSource {
			insufficient := &InsufficientDataError{Source: source, ItemCount: len(valid), Min: models.MinItemsPerSource}
			status.Excluded = true
			status.Caveat = insufficient.Error()
			slog.Warn("[Orchestrator] Excluding source",
				slog.String("source", string(source)),
				slog.String("reason", insufficient.Error()))
			continue
		}

		kept = append(kept, valid...)
	}
	return kept, statuses, failures
}

func itemFailure(item models.FeedbackItem, stage string, err error) models.ItemFailure {
	kind := "permanent"
	if semantic.IsTransient(err) {
		kind = "transient"
	}
	if stage == "intake" {
		kind = "invalid"
	}
	return models.ItemFailure{
		ItemID:  item.ID,
		Source:  item.Source,
		Stage:   stage,
		Kind:    kind,
		Message: err.Error(),
	}
}

func sourceStatusList(statuses map[models.SourceKind]*models.SourceStatus, configured []models.SourceKind) []models.SourceStatus {
	want := make(map[models.SourceKind]bool, len(configured))
	for _, source := range configured {
		want[source] = true
	}
	var out []models.SourceStatus
	for _, source := range models.AllSources() {
		if want[source] {
			out = append(out, *statuses[source])
		}
	}
	return out
}

func stageStatus(name string, total, failed int, budgetCut bool) models.AnalyzerStatus {
	status := models.AnalyzerStatus{Name: name, Completed: true}
	switch {
	case budgetCut:
		status.Partial = true
		status.Detail = fmt.Sprintf("run budget exhausted, %d of %d items failed", failed, total)
	case failed > 0:
		status.Partial = true
		status.Detail = fmt.Sprintf("%d of %d items failed", failed, total)
	}
	return status
}
