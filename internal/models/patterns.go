package models

// PatternSource is the per-source footprint of a cross-source pattern.
// NormalizedFrequency is the share of that source's items mentioning the
// theme, which keeps sources of different volume comparable.
type PatternSource struct {
	Source              SourceKind `json:"source"`
	Frequency           int        `json:"frequency"`
	NormalizedFrequency float64    `json:"normalized_frequency"`
	SentimentMean       float64    `json:"sentiment_mean"`
}

// CrossSourcePattern is a theme observed in at least two feedback sources.
// Critical is set when every source kind in the enumeration reports it.
type CrossSourcePattern struct {
	Theme       string          `json:"theme"`
	Sources     []PatternSource `json:"sources"`
	SourceCount int             `json:"source_count"`
	Consistency float64         `json:"consistency"`
	Critical    bool            `json:"critical"`
	Examples    []Evidence      `json:"examples,omitempty"`
}

// Discrepancy flags a theme whose sentiment diverges sharply between two
// sources, e.g. support tickets far angrier than survey answers.
type Discrepancy struct {
	Theme       string     `json:"theme"`
	HighSource  SourceKind `json:"high_source"`
	LowSource   SourceKind `json:"low_source"`
	Delta       float64    `json:"delta"`
	Description string     `json:"description"`
}

// PatternAnalysis is the pattern recognition stage output for one run.
type PatternAnalysis struct {
	Patterns      []CrossSourcePattern `json:"patterns"`
	Discrepancies []Discrepancy        `json:"discrepancies,omitempty"`
}
