package clustering

import (
	"context"
	"fmt"
	"time"

	"github.com/gilchrisn/hina-service/pkg/bipartite"
	"github.com/gilchrisn/hina-service/pkg/errs"
	"github.com/gilchrisn/hina-service/pkg/louvain"
	"github.com/gilchrisn/hina-service/pkg/mdl"
)

// MDLMethod partitions subjects by minimum description length.
type MDLMethod struct {
	config *mdl.Config
}

// NewMDLMethod wraps a partitioner configuration; nil uses the defaults.
func NewMDLMethod(config *mdl.Config) *MDLMethod {
	if config == nil {
		config = mdl.NewConfig()
	}
	return &MDLMethod{config: config}
}

func (m *MDLMethod) Name() string { return MethodMDL }

func (m *MDLMethod) ValidateParameters(g *bipartite.Graph, opts Options) error {
	if opts.FixB < 0 {
		return errs.Invalid("clustering", "mdl", "fix_B must be positive, got %d", opts.FixB)
	}
	if opts.FixB > g.NumSubjects() && g.NumSubjects() > 0 {
		return errs.Invalid("clustering", "mdl", "fix_B %d exceeds the %d subjects", opts.FixB, g.NumSubjects())
	}
	return nil
}

func (m *MDLMethod) Run(ctx context.Context, g *bipartite.Graph, opts Options) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()

	mdlOpts := m.config.Options()
	mdlOpts.FixB = opts.FixB
	if opts.Seed != nil {
		mdlOpts.Seed = *opts.Seed
	}
	mdlOpts.Subgraphs = opts.Subgraphs
	mdlOpts.ObjectLabels = opts.ObjectLabels
	mdlOpts.Logger = opts.Logger

	partition, err := mdl.Partition(ctx, g, mdlOpts)
	if err != nil {
		return nil, err
	}
	return &Result{
		Method:            MethodMDL,
		Status:            StatusOK,
		Blocks:            partition.Blocks,
		Assignment:        partition.Assignment,
		DescriptionLength: partition.DescriptionLength,
		CompressionRatio:  partition.CompressionRatio,
		Subgraphs:         partition.Subgraphs,
		ObjectBlocks:      partition.ObjectBlocks,
		ProcessingTimeMS:  time.Since(start).Milliseconds(),
	}, nil
}

// ModularityMethod runs Louvain on the one-mode projection of the graph
// onto its subjects. The number of communities is chosen by the
// algorithm, so fix_B is ignored.
type ModularityMethod struct {
	config *louvain.Config
}

// NewModularityMethod wraps a Louvain configuration; nil uses the
// defaults with logging disabled.
func NewModularityMethod(config *louvain.Config) *ModularityMethod {
	if config == nil {
		config = louvain.NewConfig()
		config.Set("logging.level", "disabled")
	}
	return &ModularityMethod{config: config}
}

func (m *ModularityMethod) Name() string { return MethodModularity }

func (m *ModularityMethod) ValidateParameters(g *bipartite.Graph, opts Options) error {
	if opts.FixB < 0 {
		return errs.Invalid("clustering", "modularity", "fix_B must be positive, got %d", opts.FixB)
	}
	return nil
}

func (m *ModularityMethod) Run(ctx context.Context, g *bipartite.Graph, opts Options) (*Result, error) {
	start := time.Now()
	config := m.config.Clone()
	if opts.Seed != nil {
		config.Set("algorithm.random_seed", *opts.Seed)
	}

	projected := louvain.Project(g)
	run, err := louvain.Run(ctx, projected, config)
	if err != nil {
		return nil, fmt.Errorf("modularity clustering failed: %w", err)
	}

	result := &Result{
		Method:     MethodModularity,
		Status:     StatusOK,
		Blocks:     run.NumCommunities,
		Assignment: make(map[string]int, g.NumSubjects()),
		Modularity: run.Modularity,
	}
	if opts.FixB > 0 {
		result.Message = "fix_B is ignored by the modularity method"
	}
	for i, c := range run.FinalCommunities {
		result.Assignment[g.Subject(i).ID] = c
	}
	if opts.Subgraphs {
		result.Subgraphs = blockSubgraphs(g, run.FinalCommunities, run.NumCommunities)
	}
	if opts.ObjectLabels {
		result.ObjectBlocks = objectBlocks(g, run.FinalCommunities)
	}

	opts.Logger.Debug().
		Int("communities", result.Blocks).
		Float64("modularity", result.Modularity).
		Msg("Modularity clustering completed")

	result.ProcessingTimeMS = time.Since(start).Milliseconds()
	return result, nil
}

// sbmMethod reserves the name for stochastic block model inference.
type sbmMethod struct{}

func (sbmMethod) Name() string { return MethodSBM }

func (sbmMethod) ValidateParameters(*bipartite.Graph, Options) error { return nil }

func (sbmMethod) Run(context.Context, *bipartite.Graph, Options) (*Result, error) {
	return &Result{
		Method:     MethodSBM,
		Status:     StatusNotImplemented,
		Message:    "stochastic block model inference is not implemented",
		Assignment: map[string]int{},
	}, nil
}

func blockSubgraphs(g *bipartite.Graph, labels []int, blocks int) map[int]*bipartite.Graph {
	members := make([][]int, blocks)
	for i, b := range labels {
		members[b] = append(members[b], i)
	}
	out := make(map[int]*bipartite.Graph, blocks)
	for b, nodes := range members {
		out[b] = g.InducedBySubjects(nodes)
	}
	return out
}

// objectBlocks labels each object with the block sending it the most
// weight, ties going to the lowest block.
func objectBlocks(g *bipartite.Graph, labels []int) map[string]int {
	out := make(map[string]int, g.NumObjects())
	for j := 0; j < g.NumObjects(); j++ {
		perBlock := make(map[int]float64)
		for _, k := range g.ObjectEdges(j) {
			e := g.Edge(k)
			perBlock[labels[e.Subject]] += e.Weight
		}
		best, bestWeight := -1, 0.0
		for b, w := range perBlock {
			if w > bestWeight || (w == bestWeight && b < best) {
				best, bestWeight = b, w
			}
		}
		if best >= 0 {
			out[g.Object(j).ID] = best
		}
	}
	return out
}
