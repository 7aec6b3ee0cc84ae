package clustering_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/spacesedan/insightflow/internal/clustering"
	"github.com/spacesedan/insightflow/internal/models"
	"github.com/spacesedan/insightflow/internal/semantic"
)

// fakeSemantic serves canned theme completions keyed by item text and
// embeddings keyed by exact input text.
type fakeSemantic struct {
	themes     map[string]string
	themeErrs  map[string]error
	vectors    map[string][]float64
	embedErrs  map[string]error
	embedCalls [][]string
}

func (f *fakeSemantic) Complete(_ context.Context, p semantic.Prompt) (string, error) {
	if err, ok := f.themeErrs[p.User]; ok {
		return "", err
	}
	if resp, ok := f.themes[p.User]; ok {
		return resp, nil
	}
	return "", fmt.Errorf("no canned theme for %q", p.User)
}

func (f *fakeSemantic) CompleteBatch(ctx context.Context, prompts []semantic.Prompt) []semantic.CompletionResult {
	out := make([]semantic.CompletionResult, len(prompts))
	for i, p := range prompts {
		content, err := f.Complete(ctx, p)
		out[i] = semantic.CompletionResult{Content: content, Err: err}
	}
	return out
}

func (f *fakeSemantic) Embed(ctx context.Context, text string) ([]float64, error) {
	res := f.EmbedBatch(ctx, []string{text})
	return res[0].Vector, res[0].Err
}

func (f *fakeSemantic) EmbedBatch(_ context.Context, texts []string) []semantic.EmbeddingResult {
	f.embedCalls = append(f.embedCalls, texts)
	out := make([]semantic.EmbeddingResult, len(texts))
	for i, t := range texts {
		if err, ok := f.embedErrs[t]; ok {
			out[i] = semantic.EmbeddingResult{Err: err}
			continue
		}
		if vec, ok := f.vectors[t]; ok {
			out[i] = semantic.EmbeddingResult{Vector: vec}
			continue
		}
		out[i] = semantic.EmbeddingResult{Err: fmt.Errorf("no canned vector for %q", t)}
	}
	return out
}

// vecAt builds a unit vector whose cosine against (1,0) is exactly c.
func vecAt(c float64) []float64 {
	return []float64{c, math.Sqrt(1 - c*c)}
}

func themeJSON(label string) string {
	return fmt.Sprintf(`{"label":%q,"description":"short description","category":"reliability"}`, label)
}

func item(id string, source models.SourceKind, text string, ts time.Time) models.FeedbackItem {
	return models.FeedbackItem{ID: id, Source: source, Text: text, Timestamp: ts}
}

func member(id, text, label string, ts time.Time) clustering.Member {
	return clustering.Member{
		Item:  item(id, models.SourceSurvey, text, ts),
		Theme: clustering.Theme{Label: label, Description: "short description", Category: "reliability"},
	}
}

func TestExtractThemesKeepsOrderAndIsolatesFailures(t *testing.T) {
	ts := time.Date(2025, time.March, 4, 0, 0, 0, 0, time.UTC)
	items := []models.FeedbackItem{
		item("fb-1", models.SourceSurvey, "checkout died at payment", ts),
		item("fb-2", models.SourceReview, "no idea what happened", ts),
		item("fb-3", models.SourceSupport, "cannot reach checkout", ts),
		item("fb-4", models.SourceSupport, "weird gibberish", ts),
	}

	fake := &fakeSemantic{
		themes: map[string]string{
			items[0].Text: themeJSON("checkout failures"),
			items[2].Text: themeJSON("checkout failures"),
			items[3].Text: "not json",
		},
		themeErrs: map[string]error{
			items[1].Text: &semantic.ServiceError{Kind: semantic.KindTransient, Op: "complete", Err: errors.New("timeout")},
		},
	}

	outcomes := clustering.NewClusterer(fake).ExtractThemes(context.Background(), items)

	if len(outcomes) != len(items) {
		t.Fatalf("len(outcomes) = %d, want %d", len(outcomes), len(items))
	}
	for i, outcome := range outcomes {
		if outcome.ItemID != items[i].ID {
			t.Errorf("outcomes[%d].ItemID = %s, want %s", i, outcome.ItemID, items[i].ID)
		}
	}

	if outcomes[0].Theme == nil || outcomes[0].Theme.Label != "checkout failures" {
		t.Errorf("outcomes[0].Theme = %+v, want checkout failures", outcomes[0].Theme)
	}
	if outcomes[1].Err == nil {
		t.Error("outcomes[1].Err = nil, want service failure")
	}
	if outcomes[3].Err == nil {
		t.Error("outcomes[3].Err = nil, want parse failure")
	}
}

func TestBuildClustersDedupesAndMerges(t *testing.T) {
	ts := time.Date(2025, time.March, 4, 0, 0, 0, 0, time.UTC)

	members := []clustering.Member{
		member("fb-1", "checkout died", "Checkout Failures", ts),
		member("fb-2", "checkout broken", "checkout failures", ts),
		member("fb-3", "payment errors on checkout", "payment errors", ts),
		member("fb-4", "need dark mode", "dark mode request", ts),
	}

	fake := &fakeSemantic{
		vectors: map[string][]float64{
			"Checkout Failures": vecAt(1),
			"payment errors":    vecAt(0.9),
			"dark mode request": []float64{0, 1},
		},
	}

	clusters, dropped := clustering.NewClusterer(fake).BuildClusters(context.Background(), members)

	if len(dropped) != 0 {
		t.Fatalf("dropped = %+v, want none", dropped)
	}
	if len(clusters) != 2 {
		t.Fatalf("len(clusters) = %d, want 2", len(clusters))
	}

	if len(fake.embedCalls) != 1 || len(fake.embedCalls[0]) != 3 {
		t.Errorf("embed calls = %v, want one call with 3 distinct labels", fake.embedCalls)
	}

	merged := clusters[0]
	if merged.Label != "Checkout Failures" {
		t.Errorf("merged label = %q, want majority label %q", merged.Label, "Checkout Failures")
	}
	if len(merged.Members) != 3 {
		t.Errorf("merged members = %d, want 3", len(merged.Members))
	}

	if clusters[1].Label != "dark mode request" || len(clusters[1].Members) != 1 {
		t.Errorf("clusters[1] = %q with %d members, want dark mode request singleton",
			clusters[1].Label, len(clusters[1].Members))
	}
}

func TestBuildClustersReportsDroppedLabels(t *testing.T) {
	ts := time.Date(2025, time.March, 4, 0, 0, 0, 0, time.UTC)

	members := []clustering.Member{
		member("fb-1", "checkout died", "checkout failures", ts),
		member("fb-2", "slow loading", "slow dashboard", ts),
	}

	fake := &fakeSemantic{
		vectors: map[string][]float64{
			"checkout failures": vecAt(1),
		},
		embedErrs: map[string]error{
			"slow dashboard": &semantic.ServiceError{Kind: semantic.KindTransient, Op: "embed", Err: errors.New("timeout")},
		},
	}

	clusters, dropped := clustering.NewClusterer(fake).BuildClusters(context.Background(), members)

	if len(clusters) != 1 {
		t.Fatalf("len(clusters) = %d, want 1", len(clusters))
	}
	if len(dropped) != 1 {
		t.Fatalf("len(dropped) = %d, want 1", len(dropped))
	}
	if dropped[0].Label != "slow dashboard" || len(dropped[0].Members) != 1 {
		t.Errorf("dropped[0] = %+v, want slow dashboard with fb-2", dropped[0])
	}
	if dropped[0].Err == nil {
		t.Error("dropped[0].Err = nil, want embed failure")
	}
}

func TestBuildClustersEmpty(t *testing.T) {
	clusters, dropped := clustering.NewClusterer(&fakeSemantic{}).BuildClusters(context.Background(), nil)
	if clusters != nil || dropped != nil {
		t.Errorf("BuildClusters(nil) = %v, %v, want nil, nil", clusters, dropped)
	}
}

func rawCluster(label string, centroid []float64, members ...clustering.Member) clustering.RawCluster {
	vectors := make([][]float64, len(members))
	for i := range members {
		vectors[i] = centroid
	}
	return clustering.RawCluster{
		Label:         label,
		Description:   "short description",
		Category:      "reliability",
		Centroid:      centroid,
		Members:       members,
		MemberVectors: vectors,
	}
}

func TestRankSeverity(t *testing.T) {
	ts := time.Date(2025, time.March, 4, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		members int
		corpus  int
		score   float64
		want    models.Severity
	}{
		{"large share is high", 7, 100, 0.0, models.SeverityHigh},
		{"very negative small cluster is high", 2, 1000, -0.6, models.SeverityHigh},
		{"moderate share is medium", 2, 100, 0.0, models.SeverityMedium},
		{"tiny benign cluster is low", 1, 1000, 0.1, models.SeverityLow},
		{"exactly five percent is medium", 5, 100, 0.0, models.SeverityMedium},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var members []clustering.Member
			scores := make(map[string]float64)
			for i := 0; i < tt.members; i++ {
				id := fmt.Sprintf("fb-%d", i)
				members = append(members, member(id, "text", "theme", ts))
				scores[id] = tt.score
			}

			ranked := clustering.Rank([]clustering.RawCluster{rawCluster("theme", vecAt(1), members...)},
				scores, tt.corpus, 1)

			if len(ranked) != 1 {
				t.Fatalf("len(ranked) = %d, want 1", len(ranked))
			}
			if ranked[0].Severity != tt.want {
				t.Errorf("Severity = %s, want %s", ranked[0].Severity, tt.want)
			}
		})
	}
}

func TestRankOrdering(t *testing.T) {
	early := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)
	late := time.Date(2025, time.March, 6, 0, 0, 0, 0, time.UTC)

	big := rawCluster("big theme", vecAt(1),
		member("fb-1", "a", "big theme", late),
		member("fb-2", "b", "big theme", late),
		member("fb-3", "c", "big theme", late))

	// Same size as harsh but benign sentiment and later first example.
	mild := rawCluster("mild theme", []float64{0, 1},
		member("fb-4", "d", "mild theme", late),
		member("fb-5", "e", "mild theme", late))

	harsh := rawCluster("harsh theme", []float64{0, -1},
		member("fb-6", "f", "harsh theme", early),
		member("fb-7", "g", "harsh theme", early))

	scores := map[string]float64{
		"fb-1": 0, "fb-2": 0, "fb-3": 0,
		"fb-4": 0.2, "fb-5": 0.2,
		"fb-6": -0.9, "fb-7": -0.9,
	}

	ranked := clustering.Rank([]clustering.RawCluster{mild, harsh, big}, scores, 1000, 2)

	got := []string{ranked[0].Theme, ranked[1].Theme, ranked[2].Theme}
	want := []string{"big theme", "harsh theme", "mild theme"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestRankExamplesByCentrality(t *testing.T) {
	ts := time.Date(2025, time.March, 4, 0, 0, 0, 0, time.UTC)

	rc := clustering.RawCluster{
		Label:    "checkout failures",
		Centroid: vecAt(1),
		Members: []clustering.Member{
			member("fb-far", "far text", "checkout failures", ts),
			member("fb-center", "central text", "checkout failures", ts),
			member("fb-mid", "mid text", "checkout failures", ts),
		},
		MemberVectors: [][]float64{vecAt(0.80), vecAt(0.99), vecAt(0.90)},
	}

	ranked := clustering.Rank([]clustering.RawCluster{rc}, nil, 100, 2)

	examples := ranked[0].Examples
	if len(examples) != 2 {
		t.Fatalf("len(examples) = %d, want 2", len(examples))
	}
	if examples[0].ItemID != "fb-center" || examples[1].ItemID != "fb-mid" {
		t.Errorf("examples = [%s %s], want [fb-center fb-mid]", examples[0].ItemID, examples[1].ItemID)
	}

	// Singleton cluster still gets one example even with count 0.
	single := clustering.Rank([]clustering.RawCluster{
		rawCluster("lonely", vecAt(1), member("fb-solo", "solo", "lonely", ts)),
	}, nil, 100, 0)
	if len(single[0].Examples) != 1 {
		t.Errorf("singleton examples = %d, want 1", len(single[0].Examples))
	}
}

func TestExcerpt(t *testing.T) {
	long := strings.Repeat("word ", 60)
	got := clustering.Excerpt(long, 40)
	if len([]rune(got)) != 40 {
		t.Errorf("len(excerpt) = %d, want 40", len([]rune(got)))
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("excerpt %q does not end with ellipsis", got)
	}

	if got := clustering.Excerpt("short  and   spaced", 40); got != "short and spaced" {
		t.Errorf("Excerpt = %q, want %q", got, "short and spaced")
	}
}

func TestTrackTrends(t *testing.T) {
	fake := &fakeSemantic{
		vectors: map[string][]float64{
			"checkout failures": vecAt(1),
			"checkout errors":   vecAt(0.9),
			"slow dashboard":    []float64{0, 1},
			"dashboard lag":     []float64{0, 1},
			"dark mode request": []float64{0, -1},
		},
	}

	clusters := []models.IssueCluster{
		{Theme: "checkout failures", MemberCount: 13},
		{Theme: "slow dashboard", MemberCount: 7},
		{Theme: "dark mode request", MemberCount: 4},
	}
	history := []models.IssueCluster{
		{Theme: "checkout errors", MemberCount: 10},
		{Theme: "dashboard lag", MemberCount: 10},
	}

	got := clustering.NewClusterer(fake).TrackTrends(context.Background(), clusters, history)

	if got[0].Trend == nil || got[0].Trend.Status != models.TrendEmerging {
		t.Errorf("checkout trend = %+v, want emerging (+30%%)", got[0].Trend)
	}
	if got[0].Trend != nil && got[0].Trend.PreviousCount != 10 {
		t.Errorf("checkout PreviousCount = %d, want 10", got[0].Trend.PreviousCount)
	}

	if got[1].Trend == nil || got[1].Trend.Status != models.TrendResolving {
		t.Errorf("dashboard trend = %+v, want resolving (-30%%)", got[1].Trend)
	}

	if got[2].Trend == nil || got[2].Trend.Status != models.TrendEmerging {
		t.Errorf("dark mode trend = %+v, want emerging (no match)", got[2].Trend)
	}
	if got[2].Trend != nil && got[2].Trend.PreviousCount != 0 {
		t.Errorf("dark mode PreviousCount = %d, want 0", got[2].Trend.PreviousCount)
	}
}

func TestTrackTrendsStable(t *testing.T) {
	fake := &fakeSemantic{
		vectors: map[string][]float64{
			"checkout failures": vecAt(1),
			"checkout errors":   vecAt(0.9),
		},
	}

	clusters := []models.IssueCluster{{Theme: "checkout failures", MemberCount: 11}}
	history := []models.IssueCluster{{Theme: "checkout errors", MemberCount: 10}}

	got := clustering.NewClusterer(fake).TrackTrends(context.Background(), clusters, history)
	if got[0].Trend == nil || got[0].Trend.Status != models.TrendStable {
		t.Fatalf("trend = %+v, want stable (+10%%)", got[0].Trend)
	}
}

func TestTrackTrendsWithoutHistory(t *testing.T) {
	clusters := []models.IssueCluster{{Theme: "checkout failures", MemberCount: 5}}
	got := clustering.NewClusterer(&fakeSemantic{}).TrackTrends(context.Background(), clusters, nil)
	if got[0].Trend != nil {
		t.Errorf("Trend = %+v, want nil when no history supplied", got[0].Trend)
	}
}

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float64
		want float64
	}{
		{"identical", []float64{1, 0}, []float64{1, 0}, 1},
		{"orthogonal", []float64{1, 0}, []float64{0, 1}, 0},
		{"opposite", []float64{1, 0}, []float64{-1, 0}, -1},
		{"scale invariant", []float64{2, 0}, []float64{5, 0}, 1},
		{"length mismatch", []float64{1, 0}, []float64{1}, 0},
		{"zero vector", []float64{0, 0}, []float64{1, 0}, 0},
		{"empty", nil, nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := clustering.Cosine(tt.a, tt.b)
			if diff := got - tt.want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("Cosine(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}
