package sentiment

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/spacesedan/insightflow/internal/models"
	"github.com/spacesedan/insightflow/internal/semantic"
)

const (
	// DefaultNeutralBand is the |score| radius treated as neutral.
	DefaultNeutralBand = 0.2
	// ShiftThreshold is the |Δmean| above which a shift is reported.
	ShiftThreshold = 0.2
	// OutlierSigmas is the text-length deviation cut for aggregation.
	OutlierSigmas = 3.0

	// Local lexicon calibration: when the VADER compound and the model
	// score both exceed strongSignal with opposite signs, confidence is
	// multiplied by disagreementDamp. The model score stays authoritative.
	strongSignal     = 0.4
	disagreementDamp = 0.75
)

const sentimentPrompt = `You score customer feedback sentiment.
For the given feedback text return the overall sentiment.

### STRICT OUTPUT FORMAT
You MUST return only valid JSON, formatted exactly as follows:
{
  "label": "positive | negative | neutral",
  "score": 0.0,
  "confidence": 0.0,
  "rationale": "one short sentence"
}

### REQUIREMENTS
- "score" is a number in [-1, 1]: -1 strongly negative, 1 strongly positive.
- "confidence" is a number in [0, 1].
- No Markdown formatting (no triple backticks, no explanations).
- No extra text before or after the JSON output.
- No trailing commas.`

// Outcome is the per-item result slot of AnalyzeBatch. Exactly one of
// Result and Err is set.
type Outcome struct {
	ItemID string
	Result *models.SentimentResult
	Err    error
}

// Analyzer scores feedback through the semantic client, one completion
// per item.
type Analyzer struct {
	client      semantic.Client
	neutralBand float64
}

func NewAnalyzer(client semantic.Client) *Analyzer {
	return &Analyzer{
		client:      client,
		neutralBand: DefaultNeutralBand,
	}
}

// WithNeutralBand overrides the |score| radius labeled neutral. Bands
// outside [0, 1) keep the default.
func (a *Analyzer) WithNeutralBand(band float64) *Analyzer {
	if band >= 0 && band < 1 {
		a.neutralBand = band
	}
	return a
}

type sentimentResponse struct {
	Label      string  `json:"label"`
	Score      float64 `json:"score"`
	Confidence float64 `json:"confidence"`
	Rationale  string  `json:"rationale"`
}

// AnalyzeBatch scores items and returns one outcome per input at the same
// index. Item failures never abort the batch.
func (a *Analyzer) AnalyzeBatch(ctx context.Context, items []models.FeedbackItem) []Outcome {
	slog.Info("[SentimentAnalyzer] Starting batch analysis",
		slog.Int("items", len(items)))

	prompts := make([]semantic.Prompt, len(items))
	cleaned := make([]string, len(items))
	for i, item := range items {
		cleaned[i] = CleanText(item.Text)
		prompts[i] = semantic.Prompt{
			System: sentimentPrompt,
			User:   cleaned[i],
		}
	}

	completions := a.client.CompleteBatch(ctx, prompts)

	outcomes := make([]Outcome, len(items))
	failed := 0
	for i, completion := range completions {
		item := items[i]
		if completion.Err != nil {
			outcomes[i] = Outcome{ItemID: item.ID, Err: completion.Err}
			failed++
			continue
		}

		result, err := a.parseResult(item.ID, cleaned[i], completion.Content)
		if err != nil {
			outcomes[i] = Outcome{ItemID: item.ID, Err: err}
			failed++
			continue
		}
		outcomes[i] = Outcome{ItemID: item.ID, Result: result}
	}

	slog.Info("[SentimentAnalyzer] Batch analysis finished",
		slog.Int("analyzed", len(items)-failed),
		slog.Int("failed", failed))
	return outcomes
}

func (a *Analyzer) parseResult(itemID, cleanedText, content string) (*models.SentimentResult, error) {
	var resp sentimentResponse
	if err := json.Unmarshal([]byte(content), &resp); err != nil {
		return nil, fmt.Errorf("parse sentiment response for %s: %w", itemID, err)
	}

	score := clamp(resp.Score, -1, 1)
	confidence := clamp(resp.Confidence, 0, 1)

	local := LexiconScore(cleanedText)
	if math.Abs(local) >= strongSignal && math.Abs(score) >= strongSignal && local*score < 0 {
		confidence = clamp(confidence*disagreementDamp, 0, 1)
	}

	return &models.SentimentResult{
		ItemID:     itemID,
		Label:      a.labelFor(score),
		Score:      score,
		Confidence: confidence,
		Rationale:  resp.Rationale,
	}, nil
}

// labelFor derives the label from the score so label and score can never
// disagree: inside the neutral band neutral, otherwise the sign decides.
func (a *Analyzer) labelFor(score float64) models.SentimentLabel {
	if math.Abs(score) <= a.neutralBand {
		return models.SentimentNeutral
	}
	if score > 0 {
		return models.SentimentPositive
	}
	return models.SentimentNegative
}

// Aggregate reduces outcomes to metrics. outcomes must be index-aligned
// with items, as returned by AnalyzeBatch. Items whose text length
// deviates more than three standard deviations from the batch mean are
// dropped from the distribution and reported in OutlierCount.
func Aggregate(items []models.FeedbackItem, outcomes []Outcome) models.SentimentMetrics {
	var metrics models.SentimentMetrics

	type scored struct {
		length float64
		score  float64
		label  models.SentimentLabel
	}

	var analyzed []scored
	for i, outcome := range outcomes {
		if outcome.Err != nil {
			metrics.Failed++
			continue
		}
		if outcome.Result == nil {
			continue
		}
		analyzed = append(analyzed, scored{
			length: float64(len(items[i].Text)),
			score:  outcome.Result.Score,
			label:  outcome.Result.Label,
		})
	}

	metrics.Analyzed = len(analyzed)
	if len(analyzed) == 0 {
		return metrics
	}

	lengths := make([]float64, len(analyzed))
	for i, s := range analyzed {
		lengths[i] = s.length
	}
	meanLen := stat.Mean(lengths, nil)
	sigma := 0.0
	if len(lengths) > 1 {
		sigma = stat.StdDev(lengths, nil)
	}

	var scores []float64
	for _, s := range analyzed {
		if sigma > 0 && math.Abs(s.length-meanLen) > OutlierSigmas*sigma {
			metrics.OutlierCount++
			continue
		}

		switch s.label {
		case models.SentimentPositive:
			metrics.Positive++
		case models.SentimentNegative:
			metrics.Negative++
		default:
			metrics.Neutral++
		}
		metrics.Histogram[bucketFor(s.score)]++
		scores = append(scores, s.score)
	}

	if len(scores) > 0 {
		metrics.Mean = stat.Mean(scores, nil)
	}
	return metrics
}

// bucketFor maps a score in [-1, 1] onto five equal buckets, lower bound
// inclusive.
func bucketFor(score float64) int {
	score = clamp(score, -1, 1)
	bucket := int((score + 1) / 0.4)
	if bucket >= models.HistogramBuckets {
		bucket = models.HistogramBuckets - 1
	}
	return bucket
}

// DetectShift compares two window means and reports a shift only when the
// move exceeds the threshold.
func DetectShift(current, previous models.SentimentMetrics) *models.SentimentShift {
	delta := current.Mean - previous.Mean
	if math.Abs(delta) <= ShiftThreshold {
		return nil
	}

	direction := models.ShiftImproving
	if delta < 0 {
		direction = models.ShiftDeclining
	}

	return &models.SentimentShift{
		Direction:    direction,
		Magnitude:    math.Abs(delta),
		CurrentMean:  current.Mean,
		PreviousMean: previous.Mean,
	}
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
