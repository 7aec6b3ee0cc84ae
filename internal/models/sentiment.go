package models

// SentimentLabel is the three-way classification of one feedback item.
type SentimentLabel string

const (
	SentimentPositive SentimentLabel = "positive"
	SentimentNegative SentimentLabel = "negative"
	SentimentNeutral  SentimentLabel = "neutral"
)

// SentimentResult is the scored outcome for a single item. Score lives in
// [-1, 1], confidence in [0, 1]; the label is consistent with the score sign
// under the analyzer's neutral band.
type SentimentResult struct {
	ItemID     string         `json:"item_id"`
	Label      SentimentLabel `json:"label"`
	Score      float64        `json:"score"`
	Confidence float64        `json:"confidence"`
	Rationale  string         `json:"rationale"`
}

// HistogramBuckets is the number of score-distribution buckets over [-1, 1].
const HistogramBuckets = 5

// SentimentMetrics is a derived aggregate over a result set. It is recomputed
// per aggregation call and never mutated in place.
type SentimentMetrics struct {
	Analyzed     int                   `json:"analyzed"`
	Failed       int                   `json:"failed"`
	Positive     int                   `json:"positive"`
	Negative     int                   `json:"negative"`
	Neutral      int                   `json:"neutral"`
	Mean         float64               `json:"mean"`
	Histogram    [HistogramBuckets]int `json:"histogram"`
	OutlierCount int                   `json:"outlier_count"`
}

// ShiftDirection tags a detected sentiment trend between two windows.
type ShiftDirection string

const (
	ShiftImproving ShiftDirection = "improving"
	ShiftDeclining ShiftDirection = "declining"
)

// SentimentShift is emitted when the mean score moved more than the shift
// threshold between two equal windows.
type SentimentShift struct {
	Direction    ShiftDirection `json:"direction"`
	Magnitude    float64        `json:"magnitude"`
	CurrentMean  float64        `json:"current_mean"`
	PreviousMean float64        `json:"previous_mean"`
}

// SentimentAnalysis bundles everything the sentiment analyzer produced for
// one run.
type SentimentAnalysis struct {
	Results  []SentimentResult `json:"results"`
	Metrics  SentimentMetrics  `json:"metrics"`
	Failures []ItemFailure     `json:"failures,omitempty"`
	Shift    *SentimentShift   `json:"shift,omitempty"`
}
