// Package individual computes per-subject quantity and diversity of
// engagement on a bipartite graph.
//
// Quantity is the share of all interaction weight a subject carries.
// Diversity is the Shannon entropy of the subject's weight over objects
// (or object attributes), normalized by ln K where K is the number of
// distinct objects (attributes) in the graph, so it lies in [0, 1].
package individual

import (
	"math"

	"github.com/gilchrisn/hina-service/pkg/bipartite"
)

// Options selects the optional breakdowns.
type Options struct {
	// ByAttribute measures diversity over object attributes instead of
	// objects. An object without an attribute counts as its own category.
	ByAttribute bool `json:"by_attribute"`
	// GroupNormalize adds quantities relative to the subject's group
	// total.
	GroupNormalize bool `json:"group_normalize"`
}

// Result holds the per-subject statistics keyed by subject identifier.
type Result struct {
	Quantity    map[string]float64 `json:"quantity"`
	RawQuantity map[string]float64 `json:"raw_quantity"`
	Diversity   map[string]float64 `json:"diversity"`
	// GroupQuantity is set with Options.GroupNormalize.
	GroupQuantity map[string]float64 `json:"group_quantity,omitempty"`
	// AttributeQuantity is the subject's weight towards each attribute,
	// set with Options.ByAttribute.
	AttributeQuantity map[string]map[string]float64 `json:"attribute_quantity,omitempty"`
}

// QuantityAndDiversity computes the statistics for every subject of g.
// Subjects without weight get quantity 0 and diversity 0.
func QuantityAndDiversity(g *bipartite.Graph, opts Options) *Result {
	result := &Result{
		Quantity:    make(map[string]float64),
		RawQuantity: make(map[string]float64),
		Diversity:   make(map[string]float64),
	}
	if g == nil {
		return result
	}

	category := func(j int) string { return g.Object(j).ID }
	if opts.ByAttribute {
		result.AttributeQuantity = make(map[string]map[string]float64)
		category = func(j int) string {
			if attr := g.Object(j).Attribute; attr != "" {
				return attr
			}
			return g.Object(j).ID
		}
	}
	categories := make(map[string]struct{})
	for j := 0; j < g.NumObjects(); j++ {
		if g.ObjectStrength(j) > 0 {
			categories[category(j)] = struct{}{}
		}
	}

	total := g.TotalWeight()
	for i := 0; i < g.NumSubjects(); i++ {
		id := g.Subject(i).ID
		raw := g.SubjectStrength(i)
		result.RawQuantity[id] = raw
		result.Quantity[id] = ratio(raw, total)

		weights := make(map[string]float64)
		for _, k := range g.SubjectEdges(i) {
			e := g.Edge(k)
			weights[category(e.Object)] += e.Weight
		}
		result.Diversity[id] = Diversity(weights, len(categories))
		if opts.ByAttribute {
			result.AttributeQuantity[id] = weights
		}
	}

	if opts.GroupNormalize {
		groupTotals := make(map[string]float64)
		for i := 0; i < g.NumSubjects(); i++ {
			groupTotals[g.Subject(i).Group] += g.SubjectStrength(i)
		}
		result.GroupQuantity = make(map[string]float64, g.NumSubjects())
		for i := 0; i < g.NumSubjects(); i++ {
			s := g.Subject(i)
			result.GroupQuantity[s.ID] = ratio(g.SubjectStrength(i), groupTotals[s.Group])
		}
	}
	return result
}

// Diversity is the entropy of weights divided by ln k. It is 0 when k <= 1
// or when the weights sum to 0.
func Diversity(weights map[string]float64, k int) float64 {
	if k <= 1 {
		return 0
	}
	total := 0.0
	for _, w := range weights {
		total += w
	}
	if total <= 0 {
		return 0
	}
	entropy := 0.0
	for _, w := range weights {
		if w <= 0 {
			continue
		}
		p := w / total
		entropy -= p * math.Log(p)
	}
	return entropy / math.Log(float64(k))
}

func ratio(x, total float64) float64 {
	if total <= 0 {
		return 0
	}
	return x / total
}
