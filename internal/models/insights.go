package models

// InsightType classifies what kind of action an insight calls for. The
// set is closed; consumers switch on it.
type InsightType string

const (
	InsightProductImprovement InsightType = "product_improvement"
	InsightCustomerService    InsightType = "customer_service"
	InsightFeatureRequest     InsightType = "feature_request"
	InsightBugReport          InsightType = "bug_report"
	InsightOpportunity        InsightType = "opportunity"
	InsightRisk               InsightType = "risk"
)

// Priority orders insights for consumers.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// Rank orders priorities for sorting, higher is more urgent.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 4
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

// BusinessValue is a coarse estimate of what acting on an insight is worth.
type BusinessValue string

const (
	ValueHigh   BusinessValue = "high"
	ValueMedium BusinessValue = "medium"
	ValueLow    BusinessValue = "low"
)

// InsightMetrics quantifies the blast radius of an insight.
type InsightMetrics struct {
	AffectedCustomers int           `json:"affected_customers"`
	Frequency         int           `json:"frequency"`
	SentimentImpact   float64       `json:"sentiment_impact"`
	BusinessValue     BusinessValue `json:"business_value"`
}

// Insight is an actionable conclusion synthesized from the analysis stages.
// Every insight carries at least one evidence reference and an ordered
// recommendation list.
type Insight struct {
	ID              string         `json:"id"`
	Type            InsightType    `json:"type"`
	Priority        Priority       `json:"priority"`
	Title           string         `json:"title"`
	Description     string         `json:"description"`
	Category        string         `json:"category,omitempty"`
	Recommendations []string       `json:"recommendations"`
	Confidence      float64        `json:"confidence"`
	Metrics         InsightMetrics `json:"metrics"`
	Evidence        []Evidence     `json:"evidence"`
	FocusAreas      []string       `json:"focus_areas,omitempty"`
}
