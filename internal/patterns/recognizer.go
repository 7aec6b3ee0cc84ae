// Package patterns finds themes that recur across feedback channels and
// flags sentiment splits between them.
package patterns

import (
	"fmt"
	"log/slog"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/spacesedan/insightflow/internal/clustering"
	"github.com/spacesedan/insightflow/internal/models"
)

// DiscrepancyThreshold is the max pairwise sentiment-mean gap a pattern
// tolerates before a discrepancy is reported.
const DiscrepancyThreshold = 0.4

// maxPatternExamples bounds evidence carried per pattern: the most central
// member of each source's largest constituent cluster.
const maxPatternExamples = 3

// entry is one source's cluster inside the matching pool.
type entry struct {
	source  models.SourceKind
	cluster clustering.RawCluster
}

// Recognize matches per-source clusters across sources at the grouping
// similarity threshold. sourceTotals carries analyzed item counts per
// source for frequency normalization. A pattern is critical only when
// every enumerated source kind reports it, not merely every source that
// survived the run. scores maps item IDs to sentiment scores.
func Recognize(partitions map[models.SourceKind][]clustering.RawCluster, scores map[string]float64, sourceTotals map[models.SourceKind]int) models.PatternAnalysis {
	var pool []entry
	for _, source := range models.AllSources() {
		for _, cluster := range partitions[source] {
			pool = append(pool, entry{source: source, cluster: cluster})
		}
	}
	if len(pool) == 0 {
		return models.PatternAnalysis{}
	}

	parent := make([]int, len(pool))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		if parent[i] != i {
			parent[i] = find(parent[i])
		}
		return parent[i]
	}
	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra != rb {
			parent[rb] = ra
		}
	}

	for i := 0; i < len(pool); i++ {
		for j := i + 1; j < len(pool); j++ {
			if pool[i].source == pool[j].source {
				continue
			}
			if clustering.Cosine(pool[i].cluster.Centroid, pool[j].cluster.Centroid) > clustering.SimilarityThreshold {
				union(i, j)
			}
		}
	}

	components := make(map[int][]entry)
	for i := range pool {
		root := find(i)
		components[root] = append(components[root], pool[i])
	}

	roots := make([]int, 0, len(components))
	for root := range components {
		roots = append(roots, root)
	}
	sort.Ints(roots)

	analysis := models.PatternAnalysis{}
	for _, root := range roots {
		pattern, ok := buildPattern(components[root], scores, sourceTotals)
		if !ok {
			continue
		}
		analysis.Patterns = append(analysis.Patterns, pattern)
		if d := detectDiscrepancy(pattern); d != nil {
			analysis.Discrepancies = append(analysis.Discrepancies, *d)
		}
	}

	sort.SliceStable(analysis.Patterns, func(i, j int) bool {
		a, b := analysis.Patterns[i], analysis.Patterns[j]
		if a.SourceCount != b.SourceCount {
			return a.SourceCount > b.SourceCount
		}
		if fa, fb := totalFrequency(a), totalFrequency(b); fa != fb {
			return fa > fb
		}
		return a.Theme < b.Theme
	})

	slog.Info("[PatternRecognizer] Cross-source matching finished",
		slog.Int("patterns", len(analysis.Patterns)),
		slog.Int("discrepancies", len(analysis.Discrepancies)))
	return analysis
}

// buildPattern folds one matched component into a pattern record. Returns
// ok=false for components that never cross a source boundary.
func buildPattern(entries []entry, scores map[string]float64, sourceTotals map[models.SourceKind]int) (models.CrossSourcePattern, bool) {
	type sourceAgg struct {
		frequency int
		sum       float64
		scored    int
		largest   *clustering.RawCluster
	}

	bySource := make(map[models.SourceKind]*sourceAgg)
	theme := ""
	themeSize := -1

	for i, e := range entries {
		agg := bySource[e.source]
		if agg == nil {
			agg = &sourceAgg{}
			bySource[e.source] = agg
		}

		agg.frequency += len(e.cluster.Members)
		for _, m := range e.cluster.Members {
			if score, ok := scores[m.Item.ID]; ok {
				agg.sum += score
				agg.scored++
			}
		}
		if agg.largest == nil || len(e.cluster.Members) > len(agg.largest.Members) {
			agg.largest = &entries[i].cluster
		}

		size := len(e.cluster.Members)
		if size > themeSize || (size == themeSize && e.cluster.Label < theme) {
			theme, themeSize = e.cluster.Label, size
		}
	}

	if len(bySource) < 2 {
		return models.CrossSourcePattern{}, false
	}

	pattern := models.CrossSourcePattern{
		Theme:       theme,
		SourceCount: len(bySource),
		Critical:    len(bySource) == len(models.AllSources()),
	}

	var normalized []float64
	for _, source := range models.AllSources() {
		agg, ok := bySource[source]
		if !ok {
			continue
		}

		norm := 0.0
		if total := sourceTotals[source]; total > 0 {
			norm = float64(agg.frequency) / float64(total)
		}
		mean := 0.0
		if agg.scored > 0 {
			mean = agg.sum / float64(agg.scored)
		}

		pattern.Sources = append(pattern.Sources, models.PatternSource{
			Source:              source,
			Frequency:           agg.frequency,
			NormalizedFrequency: norm,
			SentimentMean:       mean,
		})
		normalized = append(normalized, norm)

		if len(pattern.Examples) < maxPatternExamples && agg.largest != nil && len(agg.largest.Members) > 0 {
			m := mostCentralMember(*agg.largest)
			pattern.Examples = append(pattern.Examples, models.Evidence{
				ItemID:    m.Item.ID,
				Source:    m.Item.Source,
				Excerpt:   clustering.Excerpt(m.Item.Text, clustering.ExcerptRunes),
				Timestamp: m.Item.Timestamp.Unix(),
			})
		}
	}

	pattern.Consistency = consistency(normalized)
	return pattern, true
}

func mostCentralMember(rc clustering.RawCluster) clustering.Member {
	best, bestSim := 0, -2.0
	for i := range rc.Members {
		if sim := clustering.Cosine(rc.MemberVectors[i], rc.Centroid); sim > bestSim {
			best, bestSim = i, sim
		}
	}
	return rc.Members[best]
}

// consistency is 1 minus the coefficient of variation of the per-source
// normalized frequencies, clamped to [0,1]: even spread scores high,
// lopsided spread scores low.
func consistency(normalized []float64) float64 {
	if len(normalized) < 2 {
		return 1
	}
	mean := stat.Mean(normalized, nil)
	if mean == 0 {
		return 0
	}
	cv := stat.StdDev(normalized, nil) / mean

	c := 1 - cv
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

// detectDiscrepancy reports the extreme sentiment pair when the widest gap
// between two sources exceeds the threshold.
func detectDiscrepancy(p models.CrossSourcePattern) *models.Discrepancy {
	if len(p.Sources) < 2 {
		return nil
	}

	high, low := p.Sources[0], p.Sources[0]
	for _, s := range p.Sources[1:] {
		if s.SentimentMean > high.SentimentMean {
			high = s
		}
		if s.SentimentMean < low.SentimentMean {
			low = s
		}
	}

	delta := high.SentimentMean - low.SentimentMean
	if delta <= DiscrepancyThreshold {
		return nil
	}

	return &models.Discrepancy{
		Theme:      p.Theme,
		HighSource: high.Source,
		LowSource:  low.Source,
		Delta:      delta,
		Description: fmt.Sprintf("%q sentiment diverges between %s (%.2f) and %s (%.2f)",
			p.Theme, high.Source, high.SentimentMean, low.Source, low.SentimentMean),
	}
}

func totalFrequency(p models.CrossSourcePattern) int {
	total := 0
	for _, s := range p.Sources {
		total += s.Frequency
	}
	return total
}
