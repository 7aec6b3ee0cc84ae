package models

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidConfig marks configuration problems that must abort a run before
// any analysis work starts.
var ErrInvalidConfig = errors.New("invalid analysis config")

const (
	// DefaultWorkers bounds concurrent semantic requests per run.
	DefaultWorkers = 24
	// DefaultMinConfidence is the synthesis cut-off when the caller does
	// not supply one.
	DefaultMinConfidence = 0.6
	// MinItemsPerSource is the floor below which a source is excluded
	// from analysis and reported with a caveat.
	MinItemsPerSource = 5
)

// AnalysisConfig is the caller-supplied shape of a run.
type AnalysisConfig struct {
	Sources          []SourceKind  `json:"sources"`
	Window           TimeWindow    `json:"window"`
	FocusAreas       []string      `json:"focus_areas,omitempty"`
	CustomCategories []string      `json:"custom_categories,omitempty"`
	MinConfidence    float64       `json:"min_confidence"`
	Workers          int           `json:"workers"`
	RunBudget        time.Duration `json:"run_budget"`
}

// Validate checks the config before a run starts. All failures wrap
// ErrInvalidConfig so callers can treat them as fatal with errors.Is.
func (c AnalysisConfig) Validate() error {
	if len(c.Sources) == 0 {
		return fmt.Errorf("%w: no sources requested", ErrInvalidConfig)
	}
	seen := make(map[SourceKind]bool, len(c.Sources))
	for _, s := range c.Sources {
		if !s.Valid() {
			return fmt.Errorf("%w: unknown source %q", ErrInvalidConfig, s)
		}
		if seen[s] {
			return fmt.Errorf("%w: duplicate source %q", ErrInvalidConfig, s)
		}
		seen[s] = true
	}
	if err := c.Window.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		return fmt.Errorf("%w: min_confidence %.2f outside [0,1]", ErrInvalidConfig, c.MinConfidence)
	}
	if c.Workers < 0 {
		return fmt.Errorf("%w: negative worker count %d", ErrInvalidConfig, c.Workers)
	}
	if c.RunBudget < 0 {
		return fmt.Errorf("%w: negative run budget %s", ErrInvalidConfig, c.RunBudget)
	}
	return nil
}

// WithDefaults returns a copy with zero-value knobs replaced by defaults.
func (c AnalysisConfig) WithDefaults() AnalysisConfig {
	out := c
	if out.Workers == 0 {
		out.Workers = DefaultWorkers
	}
	if out.MinConfidence == 0 {
		out.MinConfidence = DefaultMinConfidence
	}
	return out
}

// ItemFailure records one feedback item that could not be analyzed at some
// stage. Failures never abort a run, they are carried in the bundle.
type ItemFailure struct {
	ItemID  string     `json:"item_id"`
	Source  SourceKind `json:"source"`
	Stage   string     `json:"stage"`
	Kind    string     `json:"kind"`
	Message string     `json:"message"`
}

// SourceStatus reports per-source coverage for a run.
type SourceStatus struct {
	Source    SourceKind `json:"source"`
	ItemCount int        `json:"item_count"`
	Analyzed  int        `json:"analyzed"`
	Failed    int        `json:"failed"`
	Excluded  bool       `json:"excluded"`
	Caveat    string     `json:"caveat,omitempty"`
}

// AnalyzerStatus reports whether a stage ran to completion. Partial means
// the stage produced usable output despite item failures or a budget cut.
type AnalyzerStatus struct {
	Name      string `json:"name"`
	Completed bool   `json:"completed"`
	Partial   bool   `json:"partial"`
	Detail    string `json:"detail,omitempty"`
}

// AnalysisHistory carries prior-run data used for shift detection and
// cluster trend tracking. Either field may be empty.
type AnalysisHistory struct {
	Metrics  *SentimentMetrics `json:"metrics,omitempty"`
	Clusters []IssueCluster    `json:"clusters,omitempty"`
}

// AnalysisBundle is the complete output of one analysis run.
type AnalysisBundle struct {
	RunID       string            `json:"run_id"`
	GeneratedAt time.Time         `json:"generated_at"`
	Window      TimeWindow        `json:"window"`
	TotalItems  int               `json:"total_items"`
	Sentiment   SentimentAnalysis `json:"sentiment"`
	Clusters    ClusterAnalysis   `json:"clusters"`
	Patterns    PatternAnalysis   `json:"patterns"`
	Insights    []Insight         `json:"insights"`
	Sources     []SourceStatus    `json:"sources"`
	Analyzers   []AnalyzerStatus  `json:"analyzers"`
}

// History extracts the parts of a bundle the next run compares against.
func (b *AnalysisBundle) History() *AnalysisHistory {
	if b == nil {
		return nil
	}
	return &AnalysisHistory{
		Metrics:  &b.Sentiment.Metrics,
		Clusters: b.Clusters.Clusters,
	}
}
