// Package clustering groups feedback items into issue clusters: a theme is
// extracted per item, theme labels are embedded, and labels are merged by
// centroid similarity.
package clustering

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/spacesedan/insightflow/internal/models"
	"github.com/spacesedan/insightflow/internal/semantic"
)

// SimilarityThreshold is the centroid cosine above which two clusters
// merge. Theme matching elsewhere (trends, cross-source patterns) uses
// the same value.
const SimilarityThreshold = 0.75

// relatedThreshold links clusters that stayed separate but sit close.
const relatedThreshold = 0.6

const defaultCategories = "reliability, performance, usability, billing, support, feature_request, other"

const themePromptFormat = `You label customer feedback for issue clustering.
For the given feedback text return its dominant theme.

### STRICT OUTPUT FORMAT
You MUST return only valid JSON, formatted exactly as follows:
{
  "label": "two to four word theme",
  "description": "one short sentence describing the issue",
  "category": "one of: %s"
}

### REQUIREMENTS
- "label" names the subject, not the emotion (e.g. "checkout failures", not "angry user").
- No Markdown formatting (no triple backticks, no explanations).
- No extra text before or after the JSON output.
- No trailing commas.`

// Theme is the per-item extraction result.
type Theme struct {
	Label       string `json:"label"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

// ThemeOutcome is the per-item slot of ExtractThemes. Exactly one of
// Theme and Err is set.
type ThemeOutcome struct {
	ItemID string
	Theme  *Theme
	Err    error
}

// Member ties one feedback item to its extracted theme.
type Member struct {
	Item  models.FeedbackItem
	Theme Theme
}

// RawCluster is a merged theme group before ranking. MemberVectors is
// index-aligned with Members and carries each member's label embedding.
type RawCluster struct {
	Label         string
	Description   string
	Category      string
	Centroid      []float64
	Members       []Member
	MemberVectors [][]float64
}

// DroppedLabel reports members excluded from grouping because their label
// embedding failed.
type DroppedLabel struct {
	Label   string
	Members []Member
	Err     error
}

// Clusterer runs both phases against the semantic client.
type Clusterer struct {
	client semantic.Client
	prompt string
}

func NewClusterer(client semantic.Client) *Clusterer {
	return &Clusterer{
		client: client,
		prompt: fmt.Sprintf(themePromptFormat, defaultCategories),
	}
}

// WithCategories appends caller-defined categories to the extraction
// prompt's category list.
func (c *Clusterer) WithCategories(categories []string) *Clusterer {
	if len(categories) > 0 {
		c.prompt = fmt.Sprintf(themePromptFormat, defaultCategories+", "+strings.Join(categories, ", "))
	}
	return c
}

type themeResponse struct {
	Label       string `json:"label"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

// ExtractThemes labels items one completion each and returns one outcome
// per input at the same index.
func (c *Clusterer) ExtractThemes(ctx context.Context, items []models.FeedbackItem) []ThemeOutcome {
	slog.Info("[IssueClusterer] Extracting themes",
		slog.Int("items", len(items)))

	prompts := make([]semantic.Prompt, len(items))
	for i, item := range items {
		prompts[i] = semantic.Prompt{System: c.prompt, User: item.Text}
	}

	completions := c.client.CompleteBatch(ctx, prompts)

	outcomes := make([]ThemeOutcome, len(items))
	failed := 0
	for i, completion := range completions {
		item := items[i]
		if completion.Err != nil {
			outcomes[i] = ThemeOutcome{ItemID: item.ID, Err: completion.Err}
			failed++
			continue
		}

		var resp themeResponse
		if err := json.Unmarshal([]byte(completion.Content), &resp); err != nil {
			outcomes[i] = ThemeOutcome{ItemID: item.ID, Err: fmt.Errorf("parse theme response for %s: %w", item.ID, err)}
			failed++
			continue
		}
		if strings.TrimSpace(resp.Label) == "" {
			outcomes[i] = ThemeOutcome{ItemID: item.ID, Err: fmt.Errorf("empty theme label for %s", item.ID)}
			failed++
			continue
		}

		outcomes[i] = ThemeOutcome{ItemID: item.ID, Theme: &Theme{
			Label:       strings.TrimSpace(resp.Label),
			Description: strings.TrimSpace(resp.Description),
			Category:    strings.TrimSpace(resp.Category),
		}}
	}

	slog.Info("[IssueClusterer] Theme extraction finished",
		slog.Int("extracted", len(items)-failed),
		slog.Int("failed", failed))
	return outcomes
}

// labelGroup is one distinct case-folded label and everything filed under it.
type labelGroup struct {
	key     string
	label   string
	members []Member
}

// BuildClusters dedupes labels, embeds the distinct ones, and agglomerates
// by centroid similarity. Members whose label embedding failed come back
// in dropped instead of a cluster.
func (c *Clusterer) BuildClusters(ctx context.Context, members []Member) ([]RawCluster, []DroppedLabel) {
	if len(members) == 0 {
		return nil, nil
	}

	groups := groupByLabel(members)

	labels := make([]string, len(groups))
	for i, g := range groups {
		labels[i] = g.label
	}

	embeddings := c.client.EmbedBatch(ctx, labels)

	var clusters []RawCluster
	var dropped []DroppedLabel
	for i, g := range groups {
		if embeddings[i].Err != nil {
			dropped = append(dropped, DroppedLabel{Label: g.label, Members: g.members, Err: embeddings[i].Err})
			continue
		}

		vectors := make([][]float64, len(g.members))
		for j := range g.members {
			vectors[j] = embeddings[i].Vector
		}
		clusters = append(clusters, RawCluster{
			Label:         g.label,
			Description:   g.members[0].Theme.Description,
			Category:      g.members[0].Theme.Category,
			Centroid:      embeddings[i].Vector,
			Members:       g.members,
			MemberVectors: vectors,
		})
	}

	if len(dropped) > 0 {
		slog.Warn("[IssueClusterer] Labels dropped from grouping",
			slog.Int("labels", len(dropped)))
	}

	return agglomerate(clusters), dropped
}

// groupByLabel dedupes members by case-folded label, preserving first-seen
// order so grouping is deterministic.
func groupByLabel(members []Member) []labelGroup {
	index := make(map[string]int)
	var groups []labelGroup
	for _, m := range members {
		key := strings.ToLower(strings.TrimSpace(m.Theme.Label))
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, labelGroup{key: key, label: m.Theme.Label})
		}
		groups[i].members = append(groups[i].members, m)
	}
	return groups
}

// agglomerate merges the closest pair while similarity stays above the
// threshold. Quadratic per round over distinct labels, which is fine at
// theme scale.
func agglomerate(clusters []RawCluster) []RawCluster {
	for len(clusters) > 1 {
		bestI, bestJ := -1, -1
		bestSim := SimilarityThreshold
		for i := 0; i < len(clusters); i++ {
			for j := i + 1; j < len(clusters); j++ {
				if sim := Cosine(clusters[i].Centroid, clusters[j].Centroid); sim > bestSim {
					bestSim, bestI, bestJ = sim, i, j
				}
			}
		}
		if bestI < 0 {
			break
		}
		clusters[bestI] = merge(clusters[bestI], clusters[bestJ])
		clusters = append(clusters[:bestJ], clusters[bestJ+1:]...)
	}
	return clusters
}

// merge folds b into a. The side with more members keeps naming rights.
func merge(a, b RawCluster) RawCluster {
	keep, other := a, b
	if len(b.Members) > len(a.Members) ||
		(len(b.Members) == len(a.Members) && b.Label < a.Label) {
		keep, other = b, a
	}

	return RawCluster{
		Label:         keep.Label,
		Description:   keep.Description,
		Category:      keep.Category,
		Centroid:      mergeCentroids(a.Centroid, len(a.Members), b.Centroid, len(b.Members)),
		Members:       append(append([]Member{}, keep.Members...), other.Members...),
		MemberVectors: append(append([][]float64{}, keep.MemberVectors...), other.MemberVectors...),
	}
}

// PartitionBySource splits members per feedback channel for cross-source
// pattern analysis.
func PartitionBySource(members []Member) map[models.SourceKind][]Member {
	out := make(map[models.SourceKind][]Member)
	for _, m := range members {
		out[m.Item.Source] = append(out[m.Item.Source], m)
	}
	return out
}

// sortMembersByCentrality orders members most-central first. Used for
// representative example selection.
func sortMembersByCentrality(cluster RawCluster) []int {
	idx := make([]int, len(cluster.Members))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return Cosine(cluster.MemberVectors[idx[a]], cluster.Centroid) >
			Cosine(cluster.MemberVectors[idx[b]], cluster.Centroid)
	})
	return idx
}
