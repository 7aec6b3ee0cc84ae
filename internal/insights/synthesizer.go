// Package insights folds sentiment, cluster and pattern output into a
// ranked, evidence-backed insight list.
package insights

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/spacesedan/insightflow/internal/models"
)

const (
	// MinInsights is the floor the synthesizer works toward on large runs.
	MinInsights = 3
	// AdaptiveCorpusFloor is the analyzed-item count that allows threshold
	// lowering when too few candidates survive.
	AdaptiveCorpusFloor = 100
	thresholdStep       = 0.1

	// Confidence is volumeWeight*v/(v+volumeMidpoint) +
	// consistencyWeight*consistency, clamped to [0,1]. Monotonic in both
	// inputs, saturating in volume.
	volumeWeight      = 0.7
	volumeMidpoint    = 10.0
	consistencyWeight = 0.3

	focusBoost = 0.05

	// positiveClusterMean is the sentiment mean above which a cluster reads
	// as something customers like rather than a problem.
	positiveClusterMean = 0.3

	overallRiskMean        = -0.3
	overallOpportunityMean = 0.5
)

// Input carries everything synthesis reads. Analyzed is the count of
// successfully scored items across all sources.
type Input struct {
	Sentiment models.SentimentAnalysis
	Clusters  []models.IssueCluster
	Patterns  models.PatternAnalysis
	Analyzed  int
}

// Synthesize builds the insight list: candidates from clusters, patterns,
// discrepancies and sentiment movement, filtered by confidence, deduped,
// and ordered by priority, confidence, reach. On runs of at least 100
// analyzed items the confidence threshold lowers stepwise until three
// insights survive or candidates run out. Insights without evidence are
// never emitted.
func Synthesize(input Input, cfg models.AnalysisConfig) []models.Insight {
	var candidates []models.Insight

	for _, cluster := range input.Clusters {
		if c, ok := clusterCandidate(cluster); ok {
			candidates = append(candidates, c)
		}
	}
	for _, pattern := range input.Patterns.Patterns {
		if c, ok := patternCandidate(pattern); ok {
			candidates = append(candidates, c)
		}
	}
	for _, d := range input.Patterns.Discrepancies {
		if c, ok := discrepancyCandidate(d, input.Patterns.Patterns); ok {
			candidates = append(candidates, c)
		}
	}
	if c, ok := shiftCandidate(input); ok {
		candidates = append(candidates, c)
	}
	if c, ok := overallCandidate(input); ok {
		candidates = append(candidates, c)
	}

	candidates = applyFocusAreas(candidates, cfg.FocusAreas)
	candidates = dedupe(candidates)

	for i := range candidates {
		candidates[i].Metrics.BusinessValue = businessValue(candidates[i], input.Analyzed)
	}

	threshold := cfg.MinConfidence
	kept := filterByConfidence(candidates, threshold)
	for len(kept) < MinInsights && input.Analyzed >= AdaptiveCorpusFloor && threshold > 0 {
		threshold -= thresholdStep
		if threshold < 0 {
			threshold = 0
		}
		slog.Info("[InsightSynthesizer] Lowering confidence threshold",
			slog.Float64("threshold", threshold),
			slog.Int("kept", len(kept)))
		kept = filterByConfidence(candidates, threshold)
	}

	sort.SliceStable(kept, func(i, j int) bool {
		if ri, rj := kept[i].Priority.Rank(), kept[j].Priority.Rank(); ri != rj {
			return ri > rj
		}
		if kept[i].Confidence != kept[j].Confidence {
			return kept[i].Confidence > kept[j].Confidence
		}
		if kept[i].Metrics.AffectedCustomers != kept[j].Metrics.AffectedCustomers {
			return kept[i].Metrics.AffectedCustomers > kept[j].Metrics.AffectedCustomers
		}
		return kept[i].Title < kept[j].Title
	})

	slog.Info("[InsightSynthesizer] Synthesis finished",
		slog.Int("candidates", len(candidates)),
		slog.Int("insights", len(kept)))
	return kept
}

func confidence(volume int, consistency float64) float64 {
	v := float64(volume)
	return clamp01(volumeWeight*v/(v+volumeMidpoint) + consistencyWeight*consistency)
}

// typeForCluster maps a cluster onto the insight taxonomy: positive
// clusters are opportunities regardless of category, everything else
// follows the extraction category. Custom categories fall through to
// product_improvement and stay visible on the insight's Category field.
func typeForCluster(cluster models.IssueCluster) models.InsightType {
	if cluster.SentimentMean > positiveClusterMean {
		return models.InsightOpportunity
	}
	switch strings.ToLower(cluster.Category) {
	case "reliability", "performance":
		return models.InsightBugReport
	case "billing", "support":
		return models.InsightCustomerService
	case "feature_request":
		return models.InsightFeatureRequest
	default:
		return models.InsightProductImprovement
	}
}

func clusterCandidate(cluster models.IssueCluster) (models.Insight, bool) {
	if len(cluster.Examples) == 0 {
		return models.Insight{}, false
	}

	kind := typeForCluster(cluster)

	priority := models.PriorityLow
	switch cluster.Severity {
	case models.SeverityHigh:
		priority = models.PriorityHigh
		if cluster.Percentage > 10 {
			priority = models.PriorityCritical
		}
	case models.SeverityMedium:
		priority = models.PriorityMedium
	}

	seen := make(map[models.SourceKind]bool)
	for _, e := range cluster.Examples {
		seen[e.Source] = true
	}
	consistencyScore := float64(len(seen)) / float64(len(models.AllSources()))

	return models.Insight{
		ID:       uuid.NewString(),
		Type:     kind,
		Priority: priority,
		Title:    titleFor(kind, cluster.Theme),
		Description: fmt.Sprintf("%d items (%.1f%% of feedback) cluster around %q with mean sentiment %.2f.",
			cluster.MemberCount, cluster.Percentage, cluster.Theme, cluster.SentimentMean),
		Category:        cluster.Category,
		Recommendations: recommendationsFor(kind, cluster.Theme),
		Confidence:      confidence(cluster.MemberCount, consistencyScore),
		Metrics: models.InsightMetrics{
			AffectedCustomers: cluster.MemberCount,
			Frequency:         cluster.MemberCount,
			SentimentImpact:   cluster.SentimentMean,
		},
		Evidence: cluster.Examples,
	}, true
}

func patternCandidate(pattern models.CrossSourcePattern) (models.Insight, bool) {
	if len(pattern.Examples) == 0 {
		return models.Insight{}, false
	}

	total, weighted := 0, 0.0
	var names []string
	for _, s := range pattern.Sources {
		total += s.Frequency
		weighted += float64(s.Frequency) * s.SentimentMean
		names = append(names, string(s.Source))
	}
	mean := 0.0
	if total > 0 {
		mean = weighted / float64(total)
	}

	kind := models.InsightOpportunity
	if mean < 0 {
		kind = models.InsightRisk
	}
	priority := models.PriorityMedium
	if pattern.Critical {
		priority = models.PriorityCritical
	}

	return models.Insight{
		ID:       uuid.NewString(),
		Type:     kind,
		Priority: priority,
		Title:    fmt.Sprintf("%q reported across %s", pattern.Theme, strings.Join(names, ", ")),
		Description: fmt.Sprintf("%q appears independently in %d channels with %d mentions and mean sentiment %.2f.",
			pattern.Theme, pattern.SourceCount, total, mean),
		Category:        "cross-source",
		Recommendations: recommendationsFor(kind, pattern.Theme),
		Confidence:      confidence(total, pattern.Consistency),
		Metrics: models.InsightMetrics{
			AffectedCustomers: total,
			Frequency:         total,
			SentimentImpact:   mean,
		},
		Evidence: pattern.Examples,
	}, true
}

func discrepancyCandidate(d models.Discrepancy, patterns []models.CrossSourcePattern) (models.Insight, bool) {
	var parent *models.CrossSourcePattern
	for i := range patterns {
		if patterns[i].Theme == d.Theme {
			parent = &patterns[i]
			break
		}
	}
	if parent == nil || len(parent.Examples) == 0 {
		return models.Insight{}, false
	}

	pairFrequency, lowMean := 0, 0.0
	for _, s := range parent.Sources {
		if s.Source == d.HighSource || s.Source == d.LowSource {
			pairFrequency += s.Frequency
		}
		if s.Source == d.LowSource {
			lowMean = s.SentimentMean
		}
	}

	evidence := parent.Examples
	var paired []models.Evidence
	for _, e := range parent.Examples {
		if e.Source == d.HighSource || e.Source == d.LowSource {
			paired = append(paired, e)
		}
	}
	if len(paired) > 0 {
		evidence = paired
	}

	return models.Insight{
		ID:          uuid.NewString(),
		Type:        models.InsightCustomerService,
		Priority:    models.PriorityMedium,
		Title:       fmt.Sprintf("Sentiment split on %q between %s and %s", d.Theme, d.HighSource, d.LowSource),
		Description: d.Description,
		Category:    "cross-source",
		Recommendations: []string{
			fmt.Sprintf("Compare how %s and %s experience %q; the gap of %.2f suggests channel-specific breakage.",
				d.HighSource, d.LowSource, d.Theme, d.Delta),
		},
		Confidence: confidence(pairFrequency, 0.5),
		Metrics: models.InsightMetrics{
			AffectedCustomers: pairFrequency,
			Frequency:         pairFrequency,
			SentimentImpact:   lowMean,
		},
		Evidence: evidence,
	}, true
}

func shiftCandidate(input Input) (models.Insight, bool) {
	shift := input.Sentiment.Shift
	if shift == nil {
		return models.Insight{}, false
	}
	evidence := clusterEvidence(input.Clusters, MinInsights)
	if len(evidence) == 0 {
		return models.Insight{}, false
	}

	kind := models.InsightOpportunity
	priority := models.PriorityMedium
	verb := "improving"
	if shift.Direction == models.ShiftDeclining {
		kind = models.InsightRisk
		priority = models.PriorityHigh
		verb = "declining"
	}

	return models.Insight{
		ID:       uuid.NewString(),
		Type:     kind,
		Priority: priority,
		Title:    fmt.Sprintf("Customer sentiment is %s", verb),
		Description: fmt.Sprintf("Mean sentiment moved from %.2f to %.2f between windows, a change of %.2f.",
			shift.PreviousMean, shift.CurrentMean, shift.Magnitude),
		Category:        "sentiment",
		Recommendations: recommendationsForShift(shift),
		Confidence:      confidence(input.Analyzed, 1),
		Metrics: models.InsightMetrics{
			AffectedCustomers: input.Analyzed,
			Frequency:         input.Analyzed,
			SentimentImpact:   shift.CurrentMean - shift.PreviousMean,
		},
		Evidence: evidence,
	}, true
}

func overallCandidate(input Input) (models.Insight, bool) {
	mean := input.Sentiment.Metrics.Mean
	if input.Analyzed == 0 || (mean >= overallRiskMean && mean <= overallOpportunityMean) {
		return models.Insight{}, false
	}
	evidence := clusterEvidence(input.Clusters, MinInsights)
	if len(evidence) == 0 {
		return models.Insight{}, false
	}

	kind, priority := models.InsightRisk, models.PriorityHigh
	title := "Negative sentiment dominates recent feedback"
	rec := "Review the top issue clusters and staff a response; overall sentiment is deep in negative territory."
	if mean > overallOpportunityMean {
		kind, priority = models.InsightOpportunity, models.PriorityMedium
		title = "Customers are strongly positive overall"
		rec = "Capture what is working in recent feedback and double down on it."
	}

	return models.Insight{
		ID:              uuid.NewString(),
		Type:            kind,
		Priority:        priority,
		Title:           title,
		Description:     fmt.Sprintf("Mean sentiment across %d analyzed items is %.2f.", input.Analyzed, mean),
		Category:        "sentiment",
		Recommendations: []string{rec},
		Confidence:      confidence(input.Analyzed, 1),
		Metrics: models.InsightMetrics{
			AffectedCustomers: input.Analyzed,
			Frequency:         input.Analyzed,
			SentimentImpact:   mean,
		},
		Evidence: evidence,
	}, true
}

// clusterEvidence borrows the leading example from up to max clusters.
func clusterEvidence(clusters []models.IssueCluster, max int) []models.Evidence {
	var out []models.Evidence
	for _, c := range clusters {
		if len(c.Examples) == 0 {
			continue
		}
		out = append(out, c.Examples[0])
		if len(out) == max {
			break
		}
	}
	return out
}

func applyFocusAreas(candidates []models.Insight, focusAreas []string) []models.Insight {
	if len(focusAreas) == 0 {
		return candidates
	}

	for i := range candidates {
		haystack := strings.ToLower(candidates[i].Title + " " + candidates[i].Description)
		for _, area := range focusAreas {
			if area == "" {
				continue
			}
			if strings.Contains(haystack, strings.ToLower(area)) {
				candidates[i].FocusAreas = append(candidates[i].FocusAreas, area)
			}
		}
		if len(candidates[i].FocusAreas) > 0 {
			candidates[i].Confidence = clamp01(candidates[i].Confidence + focusBoost)
		}
	}
	return candidates
}

// dedupe collapses candidates sharing type and title, keeping the most
// confident one.
func dedupe(candidates []models.Insight) []models.Insight {
	best := make(map[string]int)
	var out []models.Insight
	for _, c := range candidates {
		key := string(c.Type) + "|" + strings.ToLower(c.Title)
		if i, ok := best[key]; ok {
			if c.Confidence > out[i].Confidence {
				out[i] = c
			}
			continue
		}
		best[key] = len(out)
		out = append(out, c)
	}
	return out
}

func filterByConfidence(candidates []models.Insight, threshold float64) []models.Insight {
	var out []models.Insight
	for _, c := range candidates {
		if c.Confidence >= threshold {
			out = append(out, c)
		}
	}
	return out
}

func businessValue(insight models.Insight, analyzed int) models.BusinessValue {
	share := 0.0
	if analyzed > 0 {
		share = float64(insight.Metrics.AffectedCustomers) / float64(analyzed)
	}
	switch {
	case insight.Priority == models.PriorityCritical || share > 0.10:
		return models.ValueHigh
	case share > 0.03:
		return models.ValueMedium
	default:
		return models.ValueLow
	}
}

func titleFor(kind models.InsightType, theme string) string {
	switch kind {
	case models.InsightBugReport:
		return fmt.Sprintf("Recurring failures in %s", theme)
	case models.InsightFeatureRequest:
		return fmt.Sprintf("Customers are asking for %s", theme)
	case models.InsightCustomerService:
		return fmt.Sprintf("Service friction around %s", theme)
	case models.InsightOpportunity:
		return fmt.Sprintf("Opportunity: %s", theme)
	case models.InsightRisk:
		return fmt.Sprintf("Risk: %s", theme)
	default:
		return fmt.Sprintf("Improve %s", theme)
	}
}

func recommendationsFor(kind models.InsightType, theme string) []string {
	switch kind {
	case models.InsightBugReport:
		return []string{
			fmt.Sprintf("Reproduce and fix the failures behind %q; it keeps appearing across recent feedback.", theme),
			fmt.Sprintf("Add monitoring around %q so regressions surface before customers report them.", theme),
		}
	case models.InsightFeatureRequest:
		return []string{
			fmt.Sprintf("Scope %q against the roadmap; demand for it is recurring.", theme),
		}
	case models.InsightCustomerService:
		return []string{
			fmt.Sprintf("Review recent tickets about %q with the support team and close the loop with affected customers.", theme),
		}
	case models.InsightOpportunity:
		return []string{
			fmt.Sprintf("Amplify %q; customers respond well to it.", theme),
		}
	case models.InsightRisk:
		return []string{
			fmt.Sprintf("Track %q closely and triage its most recent reports.", theme),
		}
	default:
		return []string{
			fmt.Sprintf("Prioritize improvements to %q; it drags sentiment down across recent feedback.", theme),
		}
	}
}

func recommendationsForShift(shift *models.SentimentShift) []string {
	if shift.Direction == models.ShiftDeclining {
		return []string{
			"Identify what changed in the current window; sentiment is falling faster than normal variance.",
			"Cross-check the decline against recent releases and support volume.",
		}
	}
	return []string{
		"Recent changes are landing well; verify which ones drove the improvement before building on them.",
	}
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
