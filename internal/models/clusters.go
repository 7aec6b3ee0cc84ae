package models

// Severity buckets issue clusters by business impact.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// Rank orders severities for sorting, higher is more severe.
func (s Severity) Rank() int {
	switch s {
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// ClusterTrendStatus describes how a cluster compares against a prior run.
type ClusterTrendStatus string

const (
	TrendEmerging  ClusterTrendStatus = "emerging"
	TrendStable    ClusterTrendStatus = "stable"
	TrendResolving ClusterTrendStatus = "resolving"
)

// ClusterTrend carries the comparison against historical cluster data.
// GrowthRate is the relative change in member count, e.g. 0.25 for +25%.
type ClusterTrend struct {
	Status        ClusterTrendStatus `json:"status"`
	GrowthRate    float64            `json:"growth_rate"`
	PreviousCount int                `json:"previous_count"`
}

// Evidence is a pointer back to a concrete feedback item. Clusters, patterns
// and insights all cite evidence in this shape so consumers can trace any
// conclusion to raw text.
type Evidence struct {
	ItemID    string     `json:"item_id"`
	Source    SourceKind `json:"source"`
	Excerpt   string     `json:"excerpt"`
	Timestamp int64      `json:"timestamp"`
}

// IssueCluster is a group of feedback items sharing a common theme.
type IssueCluster struct {
	ID              string        `json:"id"`
	Theme           string        `json:"theme"`
	Description     string        `json:"description,omitempty"`
	Category        string        `json:"category,omitempty"`
	MemberIDs       []string      `json:"member_ids"`
	MemberCount     int           `json:"member_count"`
	Percentage      float64       `json:"percentage"`
	Severity        Severity      `json:"severity"`
	SentimentMean   float64       `json:"sentiment_mean"`
	Examples        []Evidence    `json:"examples"`
	RelatedClusters []string      `json:"related_clusters,omitempty"`
	Trend           *ClusterTrend `json:"trend,omitempty"`
}

// ClusterAnalysis is the clustering stage output for one run.
type ClusterAnalysis struct {
	Clusters []IssueCluster `json:"clusters"`
	Failures []ItemFailure  `json:"failures,omitempty"`
}
