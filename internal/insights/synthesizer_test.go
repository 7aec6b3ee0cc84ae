package insights_test

import (
	"math"
	"strings"
	"testing"

	"github.com/spacesedan/insightflow/internal/insights"
	"github.com/spacesedan/insightflow/internal/models"
)

func cluster(theme string, severity models.Severity, members int, mean, pct float64, sources ...models.SourceKind) models.IssueCluster {
	c := models.IssueCluster{
		ID:            "cl-" + theme,
		Theme:         theme,
		Description:   "items about " + theme,
		Category:      "reliability",
		MemberCount:   members,
		Percentage:    pct,
		Severity:      severity,
		SentimentMean: mean,
	}
	for _, src := range sources {
		c.Examples = append(c.Examples, models.Evidence{
			ItemID:    theme + "-" + string(src),
			Source:    src,
			Excerpt:   "complaint about " + theme,
			Timestamp: 1700000000,
		})
	}
	return c
}

func TestSynthesizeLargeRun(t *testing.T) {
	input := insights.Input{
		Sentiment: models.SentimentAnalysis{
			Metrics: models.SentimentMetrics{Analyzed: 150, Mean: -0.2},
			Shift: &models.SentimentShift{
				Direction:    models.ShiftDeclining,
				Magnitude:    0.3,
				CurrentMean:  -0.2,
				PreviousMean: 0.1,
			},
		},
		Clusters: []models.IssueCluster{
			cluster("checkout failures", models.SeverityHigh, 40, -0.6, 26.7,
				models.SourceSurvey, models.SourceReview, models.SourceSupport),
			cluster("slow loading", models.SeverityMedium, 20, -0.3, 13.3,
				models.SourceReview, models.SourceSupport),
			cluster("love the new design", models.SeverityLow, 18, 0.7, 12.0,
				models.SourceReview),
		},
		Analyzed: 150,
	}
	cfg := models.AnalysisConfig{MinConfidence: 0.6}

	got := insights.Synthesize(input, cfg)

	if len(got) != 3 {
		t.Fatalf("Synthesize returned %d insights, want 3", len(got))
	}
	wantTypes := []models.InsightType{
		models.InsightBugReport,
		models.InsightRisk,
		models.InsightBugReport,
	}
	for i, want := range wantTypes {
		if got[i].Type != want {
			t.Errorf("insight[%d].Type = %v, want %v", i, got[i].Type, want)
		}
	}
	for i := 1; i < len(got); i++ {
		if got[i].Priority.Rank() > got[i-1].Priority.Rank() {
			t.Errorf("insight[%d] priority %v outranks insight[%d] priority %v",
				i, got[i].Priority, i-1, got[i-1].Priority)
		}
	}
	for i, in := range got {
		if len(in.Evidence) == 0 {
			t.Errorf("insight[%d] %q has no evidence", i, in.Title)
		}
		if len(in.Recommendations) == 0 {
			t.Errorf("insight[%d] %q has no recommendations", i, in.Title)
		}
		if in.Confidence < 0 || in.Confidence > 1 {
			t.Errorf("insight[%d].Confidence = %v, want within [0,1]", i, in.Confidence)
		}
		if in.ID == "" {
			t.Errorf("insight[%d] has empty ID", i)
		}
	}
	if got[0].Priority != models.PriorityCritical {
		t.Errorf("top insight priority = %v, want %v", got[0].Priority, models.PriorityCritical)
	}
	if got[0].Category != "reliability" {
		t.Errorf("top insight category = %q, want %q", got[0].Category, "reliability")
	}
	if got[0].Metrics.BusinessValue != models.ValueHigh {
		t.Errorf("top insight business value = %v, want %v", got[0].Metrics.BusinessValue, models.ValueHigh)
	}
}

func TestSynthesizeClusterTypeByCategory(t *testing.T) {
	tests := []struct {
		name     string
		category string
		mean     float64
		wantType models.InsightType
	}{
		{name: "reliability", category: "reliability", mean: -0.5, wantType: models.InsightBugReport},
		{name: "performance", category: "performance", mean: -0.4, wantType: models.InsightBugReport},
		{name: "usability", category: "usability", mean: -0.3, wantType: models.InsightProductImprovement},
		{name: "billing", category: "billing", mean: -0.5, wantType: models.InsightCustomerService},
		{name: "support", category: "support", mean: -0.2, wantType: models.InsightCustomerService},
		{name: "feature request", category: "feature_request", mean: -0.1, wantType: models.InsightFeatureRequest},
		{name: "custom category", category: "accessibility", mean: -0.4, wantType: models.InsightProductImprovement},
		{name: "positive overrides category", category: "reliability", mean: 0.6, wantType: models.InsightOpportunity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := cluster("payment flow", models.SeverityHigh, 40, tt.mean, 26.7,
				models.SourceSurvey, models.SourceReview, models.SourceSupport)
			c.Category = tt.category

			got := insights.Synthesize(insights.Input{
				Clusters: []models.IssueCluster{c},
				Analyzed: 150,
			}, models.AnalysisConfig{MinConfidence: 0.6})

			if len(got) != 1 {
				t.Fatalf("Synthesize returned %d insights, want 1", len(got))
			}
			if got[0].Type != tt.wantType {
				t.Errorf("insight type = %v, want %v", got[0].Type, tt.wantType)
			}
			if got[0].Category != tt.category {
				t.Errorf("insight category = %q, want %q", got[0].Category, tt.category)
			}
		})
	}
}

func TestSynthesizeAdaptiveThreshold(t *testing.T) {
	input := insights.Input{
		Clusters: []models.IssueCluster{
			cluster("checkout failures", models.SeverityHigh, 40, -0.6, 26.7,
				models.SourceSurvey, models.SourceReview, models.SourceSupport),
			cluster("slow loading", models.SeverityMedium, 20, -0.3, 13.3,
				models.SourceReview, models.SourceSupport),
			cluster("confusing settings", models.SeverityLow, 18, -0.1, 12.0,
				models.SourceReview),
		},
		Analyzed: 120,
	}
	cfg := models.AnalysisConfig{MinConfidence: 0.9}

	got := insights.Synthesize(input, cfg)

	if len(got) != 3 {
		t.Fatalf("Synthesize with lowered threshold returned %d insights, want 3", len(got))
	}
}

func TestSynthesizeSmallRunKeepsThreshold(t *testing.T) {
	input := insights.Input{
		Clusters: []models.IssueCluster{
			cluster("checkout failures", models.SeverityHigh, 40, -0.6, 26.7,
				models.SourceSurvey, models.SourceReview, models.SourceSupport),
		},
		Analyzed: 40,
	}
	cfg := models.AnalysisConfig{MinConfidence: 0.9}

	got := insights.Synthesize(input, cfg)

	if len(got) != 0 {
		t.Fatalf("Synthesize on a small run returned %d insights, want 0", len(got))
	}
}

func TestSynthesizeRequiresEvidence(t *testing.T) {
	bare := cluster("checkout failures", models.SeverityHigh, 40, -0.6, 26.7)
	input := insights.Input{
		Sentiment: models.SentimentAnalysis{
			Shift: &models.SentimentShift{
				Direction:    models.ShiftDeclining,
				Magnitude:    0.3,
				CurrentMean:  -0.2,
				PreviousMean: 0.1,
			},
		},
		Clusters: []models.IssueCluster{bare},
		Analyzed: 50,
	}

	got := insights.Synthesize(input, models.AnalysisConfig{})

	if len(got) != 0 {
		t.Fatalf("Synthesize without evidence returned %d insights, want 0", len(got))
	}
}

func TestSynthesizeFocusAreas(t *testing.T) {
	input := insights.Input{
		Clusters: []models.IssueCluster{
			cluster("checkout failures", models.SeverityHigh, 40, -0.6, 26.7,
				models.SourceSurvey, models.SourceReview, models.SourceSupport),
			cluster("slow dashboards", models.SeverityHigh, 40, -0.6, 26.7,
				models.SourceSurvey, models.SourceReview, models.SourceSupport),
		},
		Analyzed: 150,
	}
	cfg := models.AnalysisConfig{MinConfidence: 0.5, FocusAreas: []string{"checkout"}}

	got := insights.Synthesize(input, cfg)

	if len(got) != 2 {
		t.Fatalf("Synthesize returned %d insights, want 2", len(got))
	}

	var tagged, plain *models.Insight
	for i := range got {
		if strings.Contains(got[i].Title, "checkout") {
			tagged = &got[i]
		} else {
			plain = &got[i]
		}
	}
	if tagged == nil || plain == nil {
		t.Fatal("expected one tagged and one untagged insight")
	}
	if len(tagged.FocusAreas) != 1 || tagged.FocusAreas[0] != "checkout" {
		t.Errorf("tagged.FocusAreas = %v, want [checkout]", tagged.FocusAreas)
	}
	if len(plain.FocusAreas) != 0 {
		t.Errorf("plain.FocusAreas = %v, want none", plain.FocusAreas)
	}
	if diff := tagged.Confidence - plain.Confidence; math.Abs(diff-0.05) > 1e-9 {
		t.Errorf("focus boost = %v, want 0.05", diff)
	}
}

func TestSynthesizePatternsAndDiscrepancies(t *testing.T) {
	pattern := models.CrossSourcePattern{
		Theme:       "broken checkout",
		SourceCount: 3,
		Consistency: 0.9,
		Critical:    true,
		Sources: []models.PatternSource{
			{Source: models.SourceSurvey, Frequency: 12, NormalizedFrequency: 0.24, SentimentMean: -0.5},
			{Source: models.SourceReview, Frequency: 8, NormalizedFrequency: 0.16, SentimentMean: -0.45},
			{Source: models.SourceSupport, Frequency: 10, NormalizedFrequency: 0.2, SentimentMean: 0.7},
		},
		Examples: []models.Evidence{
			{ItemID: "sv-1", Source: models.SourceSurvey, Excerpt: "checkout died", Timestamp: 1700000000},
			{ItemID: "rv-1", Source: models.SourceReview, Excerpt: "cannot pay", Timestamp: 1700000100},
			{ItemID: "sp-1", Source: models.SourceSupport, Excerpt: "payment retried fine", Timestamp: 1700000200},
		},
	}
	input := insights.Input{
		Patterns: models.PatternAnalysis{
			Patterns: []models.CrossSourcePattern{pattern},
			Discrepancies: []models.Discrepancy{{
				Theme:       "broken checkout",
				HighSource:  models.SourceSupport,
				LowSource:   models.SourceSurvey,
				Delta:       1.2,
				Description: `"broken checkout" sentiment diverges between support (0.70) and survey (-0.50)`,
			}},
		},
		Analyzed: 50,
	}
	cfg := models.AnalysisConfig{MinConfidence: 0.6}

	got := insights.Synthesize(input, cfg)

	if len(got) != 2 {
		t.Fatalf("Synthesize returned %d insights, want 2", len(got))
	}
	if got[0].Priority != models.PriorityCritical {
		t.Errorf("pattern insight priority = %v, want %v", got[0].Priority, models.PriorityCritical)
	}
	if got[0].Type != models.InsightRisk {
		t.Errorf("pattern insight type = %v, want %v", got[0].Type, models.InsightRisk)
	}
	if got[0].Metrics.AffectedCustomers != 30 {
		t.Errorf("pattern insight affected = %d, want 30", got[0].Metrics.AffectedCustomers)
	}

	split := got[1]
	if !strings.Contains(split.Title, "Sentiment split") {
		t.Errorf("discrepancy insight title = %q, want a sentiment split", split.Title)
	}
	if split.Priority != models.PriorityMedium {
		t.Errorf("discrepancy insight priority = %v, want %v", split.Priority, models.PriorityMedium)
	}
	if split.Metrics.AffectedCustomers != 22 {
		t.Errorf("discrepancy insight affected = %d, want 22", split.Metrics.AffectedCustomers)
	}
	for _, e := range split.Evidence {
		if e.Source == models.SourceReview {
			t.Errorf("discrepancy evidence includes %s, want only the diverging pair", e.Source)
		}
	}
}

func TestSynthesizeDeduplicates(t *testing.T) {
	input := insights.Input{
		Clusters: []models.IssueCluster{
			cluster("checkout failures", models.SeverityHigh, 40, -0.6, 26.7,
				models.SourceSurvey, models.SourceReview, models.SourceSupport),
			cluster("Checkout Failures", models.SeverityHigh, 15, -0.5, 10.0,
				models.SourceSurvey, models.SourceReview, models.SourceSupport),
		},
		Analyzed: 150,
	}
	cfg := models.AnalysisConfig{MinConfidence: 0.5}

	got := insights.Synthesize(input, cfg)

	if len(got) != 1 {
		t.Fatalf("Synthesize returned %d insights, want 1 after dedupe", len(got))
	}
	if got[0].Metrics.AffectedCustomers != 40 {
		t.Errorf("kept insight affected = %d, want the more confident candidate's 40", got[0].Metrics.AffectedCustomers)
	}
}

func TestSynthesizeOverallSentiment(t *testing.T) {
	tests := []struct {
		name     string
		mean     float64
		wantType models.InsightType
		wantLen  int
	}{
		{name: "deeply negative", mean: -0.5, wantType: models.InsightRisk, wantLen: 2},
		{name: "strongly positive", mean: 0.7, wantType: models.InsightOpportunity, wantLen: 2},
		{name: "middling", mean: 0.1, wantLen: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := insights.Input{
				Sentiment: models.SentimentAnalysis{
					Metrics: models.SentimentMetrics{Analyzed: 80, Mean: tt.mean},
				},
				Clusters: []models.IssueCluster{
					cluster("checkout failures", models.SeverityHigh, 40, tt.mean, 50.0,
						models.SourceSurvey, models.SourceReview, models.SourceSupport),
				},
				Analyzed: 80,
			}

			got := insights.Synthesize(input, models.AnalysisConfig{MinConfidence: 0.5})

			if len(got) != tt.wantLen {
				t.Fatalf("Synthesize returned %d insights, want %d", len(got), tt.wantLen)
			}
			if tt.wantLen < 2 {
				return
			}
			var overall *models.Insight
			for i := range got {
				if got[i].Metrics.AffectedCustomers == 80 {
					overall = &got[i]
				}
			}
			if overall == nil {
				t.Fatal("no corpus-wide insight emitted")
			}
			if overall.Type != tt.wantType {
				t.Errorf("overall insight type = %v, want %v", overall.Type, tt.wantType)
			}
		})
	}
}
