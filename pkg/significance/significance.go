// Package significance decides which edges of a weighted bipartite graph
// carry more weight than a random reallocation of the same interactions
// would produce, and prunes the rest.
//
// Each edge (u, v, w) is tested with a binomial upper tail: under the
// chosen null model the weight on the pair is Binomial(n, p), where n is
// the total weight being reallocated (the whole graph, or the fixed
// marginal of u or v) and p the chance that one unit lands on (u, v).
// The edge is kept when P(X >= w) falls below the threshold.
//
// Boundary policy:
//   - alpha <= 0 keeps nothing, not even edges of a single-edge graph.
//   - alpha >= 1 keeps every edge.
//   - otherwise an edge whose null model has no freedom (p = 1, as in a
//     single-edge graph) is kept; all others need p-value < threshold.
//
// No multiple-testing correction is applied unless Options.Correction
// asks for one.
package significance

import (
	"math"
	"strings"

	"github.com/rs/zerolog"

	"github.com/gilchrisn/hina-service/pkg/bipartite"
	"github.com/gilchrisn/hina-service/pkg/errs"
)

// Correction is the multiple-testing policy applied to alpha.
type Correction string

const (
	CorrectionNone       Correction = "none"
	CorrectionBonferroni Correction = "bonferroni"
)

// Options configures one pruning run.
type Options struct {
	Alpha  float64 `json:"alpha"`
	FixDeg string  `json:"fix_deg"`
	// Columns maps caller column or group names to the side they label,
	// so fix_deg may name a column directly.
	Columns    map[string]bipartite.Side `json:"columns,omitempty"`
	Correction Correction                `json:"correction"`
	// Strict turns an unrecognized fix_deg into an error instead of an
	// empty result.
	Strict bool           `json:"strict"`
	Logger zerolog.Logger `json:"-"`
}

// DefaultOptions returns alpha 0.05 with no fixed marginal and no correction.
func DefaultOptions() Options {
	return Options{
		Alpha:      0.05,
		FixDeg:     "none",
		Correction: CorrectionNone,
	}
}

// EdgeTest is the per-edge decision.
type EdgeTest struct {
	bipartite.Triple
	Expected    float64 `json:"expected"`
	PValue      float64 `json:"p_value"`
	Significant bool    `json:"significant"`
}

// Result bundles the per-edge tests, the significant edge set and the
// pruned graph. All fields are populated, possibly empty.
type Result struct {
	NullModel        NullModel          `json:"null_model"`
	Threshold        float64            `json:"threshold"`
	Tests            []EdgeTest         `json:"tests"`
	SignificantEdges []bipartite.Triple `json:"significant_edges"`
	Pruned           *bipartite.Graph   `json:"-"`
}

// EdgeSet returns the significant edges as a set.
func (r *Result) EdgeSet() map[bipartite.Triple]struct{} {
	set := make(map[bipartite.Triple]struct{}, len(r.SignificantEdges))
	for _, t := range r.SignificantEdges {
		set[t] = struct{}{}
	}
	return set
}

func emptyResult(model NullModel, threshold float64) *Result {
	return &Result{
		NullModel:        model,
		Threshold:        threshold,
		Tests:            []EdgeTest{},
		SignificantEdges: []bipartite.Triple{},
		Pruned:           bipartite.Empty(),
	}
}

// Prune tests every edge of g and returns the significant ones together
// with the graph they form. g is not modified.
func Prune(g *bipartite.Graph, opts Options) (*Result, error) {
	logger := opts.Logger

	if math.IsNaN(opts.Alpha) || opts.Alpha < 0 || opts.Alpha > 1 {
		return nil, errs.Invalid("significance", "Prune", "alpha %v outside [0, 1]", opts.Alpha)
	}
	correction := Correction(strings.ToLower(string(opts.Correction)))
	if correction == "" {
		correction = CorrectionNone
	}
	if correction != CorrectionNone && correction != CorrectionBonferroni {
		return nil, errs.Unsupported("significance", "Prune", "correction", opts.Correction)
	}

	model, ok := ResolveNullModel(opts.FixDeg, opts.Columns)
	if !ok {
		if opts.Strict {
			return nil, errs.Unsupported("significance", "Prune", "fix_deg", opts.FixDeg)
		}
		logger.Warn().Str("fix_deg", opts.FixDeg).Msg("No valid null model selected, returning no edges")
		return emptyResult(NullUnknown, 0), nil
	}

	if g == nil || g.IsEmpty() {
		return emptyResult(model, opts.Alpha), nil
	}
	threshold := opts.Alpha
	if correction == CorrectionBonferroni {
		threshold = opts.Alpha / float64(g.NumEdges())
	}

	result := &Result{
		NullModel:        model,
		Threshold:        threshold,
		Tests:            make([]EdgeTest, g.NumEdges()),
		SignificantEdges: make([]bipartite.Triple, 0),
	}
	kept := make([]int, 0)
	sup := supportOf(g)
	for k := 0; k < g.NumEdges(); k++ {
		e := g.Edge(k)
		alloc := model.allocation(g, sup, e)
		pValue := upperTail(alloc, e.Weight)
		significant := decide(opts.Alpha, threshold, pValue, alloc.degenerate())

		result.Tests[k] = EdgeTest{
			Triple:      g.Triple(k),
			Expected:    alloc.expected(),
			PValue:      pValue,
			Significant: significant,
		}
		if significant {
			kept = append(kept, k)
			result.SignificantEdges = append(result.SignificantEdges, result.Tests[k].Triple)
		}
	}
	result.Pruned = g.Subgraph(kept)

	logger.Debug().
		Str("null_model", model.String()).
		Float64("threshold", threshold).
		Int("edges", g.NumEdges()).
		Int("significant", len(kept)).
		Msg("Edge pruning completed")

	return result, nil
}

// PruneEdges is the plain form of Prune: the significant triples only.
// Invalid parameters yield an empty set.
func PruneEdges(g *bipartite.Graph, alpha float64, fixDeg string) []bipartite.Triple {
	opts := DefaultOptions()
	opts.Alpha = alpha
	opts.FixDeg = fixDeg
	result, err := Prune(g, opts)
	if err != nil {
		return []bipartite.Triple{}
	}
	return result.SignificantEdges
}

func decide(alpha, threshold, pValue float64, degenerate bool) bool {
	switch {
	case alpha <= 0:
		return false
	case alpha >= 1:
		return true
	case degenerate:
		return true
	default:
		return pValue < threshold
	}
}
