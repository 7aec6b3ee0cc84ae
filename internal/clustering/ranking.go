package clustering

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/spacesedan/insightflow/internal/models"
)

const (
	// DefaultExampleCount is how many representative members a ranked
	// cluster carries.
	DefaultExampleCount = 3
	// ExcerptRunes bounds evidence excerpt length.
	ExcerptRunes = 140

	severityHighShare     = 0.05
	severityMediumShare   = 0.01
	severityHighSentiment = -0.4

	// TrendGrowthThreshold is the ±growth beyond which a cluster counts
	// as emerging or resolving against history.
	TrendGrowthThreshold = 0.2
)

// Rank turns raw clusters into ranked issue clusters: severity from member
// share and sentiment, representative examples by centrality, ordering by
// frequency then severity then earliest example. scores maps item IDs to
// sentiment scores; members without one are skipped in the mean.
func Rank(clusters []RawCluster, scores map[string]float64, corpusSize, exampleCount int) []models.IssueCluster {
	if exampleCount < 1 {
		exampleCount = 1
	}

	type ranked struct {
		cluster  models.IssueCluster
		centroid []float64
		earliest int64
	}

	out := make([]ranked, 0, len(clusters))
	for _, rc := range clusters {
		if len(rc.Members) == 0 {
			continue
		}
		share := 0.0
		if corpusSize > 0 {
			share = float64(len(rc.Members)) / float64(corpusSize)
		}

		mean, scoredMembers := 0.0, 0
		for _, m := range rc.Members {
			if score, ok := scores[m.Item.ID]; ok {
				mean += score
				scoredMembers++
			}
		}
		if scoredMembers > 0 {
			mean /= float64(scoredMembers)
		}

		examples := representativeExamples(rc, exampleCount)
		earliest := examples[0].Timestamp
		for _, e := range examples[1:] {
			if e.Timestamp < earliest {
				earliest = e.Timestamp
			}
		}

		memberIDs := make([]string, len(rc.Members))
		for i, m := range rc.Members {
			memberIDs[i] = m.Item.ID
		}

		out = append(out, ranked{
			cluster: models.IssueCluster{
				ID:            uuid.NewString(),
				Theme:         rc.Label,
				Description:   rc.Description,
				Category:      rc.Category,
				MemberIDs:     memberIDs,
				MemberCount:   len(rc.Members),
				Percentage:    share * 100,
				Severity:      severityFor(share, mean),
				SentimentMean: mean,
				Examples:      examples,
			},
			centroid: rc.Centroid,
			earliest: earliest,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].cluster.MemberCount != out[j].cluster.MemberCount {
			return out[i].cluster.MemberCount > out[j].cluster.MemberCount
		}
		if ri, rj := out[i].cluster.Severity.Rank(), out[j].cluster.Severity.Rank(); ri != rj {
			return ri > rj
		}
		return out[i].earliest < out[j].earliest
	})

	// Link clusters that stayed apart but sit near each other.
	for i := range out {
		for j := range out {
			if i == j {
				continue
			}
			if Cosine(out[i].centroid, out[j].centroid) > relatedThreshold {
				out[i].cluster.RelatedClusters = append(out[i].cluster.RelatedClusters, out[j].cluster.ID)
			}
		}
	}

	result := make([]models.IssueCluster, len(out))
	for i, r := range out {
		result[i] = r.cluster
	}
	return result
}

func severityFor(share, sentimentMean float64) models.Severity {
	switch {
	case share > severityHighShare || sentimentMean < severityHighSentiment:
		return models.SeverityHigh
	case share > severityMediumShare:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

// representativeExamples picks the most central members, at least one even
// for singleton clusters.
func representativeExamples(rc RawCluster, count int) []models.Evidence {
	order := sortMembersByCentrality(rc)
	if count > len(order) {
		count = len(order)
	}

	examples := make([]models.Evidence, 0, count)
	for _, i := range order[:count] {
		m := rc.Members[i]
		examples = append(examples, models.Evidence{
			ItemID:    m.Item.ID,
			Source:    m.Item.Source,
			Excerpt:   Excerpt(m.Item.Text, ExcerptRunes),
			Timestamp: m.Item.Timestamp.Unix(),
		})
	}
	return examples
}

// Excerpt collapses whitespace and cuts text to at most max runes.
func Excerpt(text string, max int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max-3]) + "..."
}

// TrackTrends annotates clusters against a prior run's cluster list.
// Matching reuses label embeddings at the grouping threshold. Growth past
// +20% is emerging, past -20% resolving, else stable; a cluster with no
// historical match is emerging.
func (c *Clusterer) TrackTrends(ctx context.Context, clusters []models.IssueCluster, history []models.IssueCluster) []models.IssueCluster {
	if len(clusters) == 0 || len(history) == 0 {
		return clusters
	}

	texts := make([]string, 0, len(clusters)+len(history))
	for _, cl := range clusters {
		texts = append(texts, cl.Theme)
	}
	for _, h := range history {
		texts = append(texts, h.Theme)
	}

	embeddings := c.client.EmbedBatch(ctx, texts)

	for i := range clusters {
		if embeddings[i].Err != nil {
			slog.Warn("[IssueClusterer] Skipping trend for cluster, label embedding failed",
				slog.String("theme", clusters[i].Theme))
			continue
		}

		bestSim, bestIdx := SimilarityThreshold, -1
		for j := range history {
			emb := embeddings[len(clusters)+j]
			if emb.Err != nil {
				continue
			}
			if sim := Cosine(embeddings[i].Vector, emb.Vector); sim > bestSim {
				bestSim, bestIdx = sim, j
			}
		}

		if bestIdx < 0 || history[bestIdx].MemberCount <= 0 {
			clusters[i].Trend = &models.ClusterTrend{Status: models.TrendEmerging, GrowthRate: 1}
			continue
		}

		prev := history[bestIdx].MemberCount
		growth := float64(clusters[i].MemberCount-prev) / float64(prev)

		status := models.TrendStable
		switch {
		case growth > TrendGrowthThreshold:
			status = models.TrendEmerging
		case growth < -TrendGrowthThreshold:
			status = models.TrendResolving
		}

		clusters[i].Trend = &models.ClusterTrend{
			Status:        status,
			GrowthRate:    growth,
			PreviousCount: prev,
		}
	}

	return clusters
}
