// Package mdl partitions the subject side of a bipartite graph into
// blocks by minimizing a description length.
//
// For a fixed block count B the search starts from a deterministic greedy
// agglomeration of singletons down to B blocks, plus seeded random
// restarts, and refines each start with single-node moves until no move
// lowers the description length. The unconstrained mode scores the greedy
// start of every B in one pass, then runs the fixed-B search upward from
// B=1 and stops once it is past the greedy minimum and Patience block
// counts in a row have not improved on the best found.
package mdl

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog"

	"github.com/gilchrisn/hina-service/pkg/bipartite"
	"github.com/gilchrisn/hina-service/pkg/errs"
)

// minImprovement is the smallest description length decrease accepted as
// a move.
const minImprovement = 1e-9

// maxTotalWeight bounds the total edge weight. Above it the log-gamma
// differences of the objective lose their integer resolution.
const maxTotalWeight = 1e12

// Options configures one Partition call.
type Options struct {
	// FixB forces exactly this many blocks; 0 searches over B.
	FixB int `json:"fix_b"`
	// Seed drives initial assignments and move order.
	Seed uint64 `json:"seed"`
	// Restarts is the number of random starts tried in addition to the
	// greedy agglomeration.
	Restarts  int `json:"restarts"`
	MaxSweeps int `json:"max_sweeps"`
	// MaxBlocks caps the B range of the unconstrained search; 0 means the
	// number of subjects.
	MaxBlocks int `json:"max_blocks"`
	// Patience is the number of consecutive block counts without
	// improvement after which the unconstrained search stops; 0 scans
	// every B.
	Patience int `json:"patience"`

	Subgraphs    bool           `json:"subgraphs"`
	ObjectLabels bool           `json:"object_labels"`
	Logger       zerolog.Logger `json:"-"`
}

// DefaultOptions returns the configuration defaults with logging off.
func DefaultOptions() Options {
	opts := NewConfig().Options()
	opts.Logger = zerolog.Nop()
	return opts
}

// TracePoint is the best description length found for one block count.
type TracePoint struct {
	Blocks            int     `json:"blocks"`
	DescriptionLength float64 `json:"description_length"`
}

// Result is a partition of the subjects and its score.
type Result struct {
	Blocks int `json:"blocks"`
	// Assignment maps every subject identifier to a block in 0..Blocks-1.
	// Blocks are numbered in order of their first subject.
	Assignment        map[string]int `json:"assignment"`
	DescriptionLength float64        `json:"description_length"`
	BaselineLength    float64        `json:"baseline_length"`
	// CompressionRatio is DescriptionLength / BaselineLength, the baseline
	// being the one-block encoding; lower is better.
	CompressionRatio float64      `json:"compression_ratio"`
	Trace            []TracePoint `json:"trace"`

	Subgraphs    map[int]*bipartite.Graph `json:"-"`
	ObjectBlocks map[string]int           `json:"object_blocks,omitempty"`
}

// BlockSizes returns the number of subjects in each block.
func (r *Result) BlockSizes() []int {
	sizes := make([]int, r.Blocks)
	for _, b := range r.Assignment {
		sizes[b]++
	}
	return sizes
}

// Partition assigns every subject of g to a block. g is not modified.
// ctx is checked between merges and refinement sweeps.
func Partition(ctx context.Context, g *bipartite.Graph, opts Options) (*Result, error) {
	logger := opts.Logger
	startTime := time.Now()

	if opts.FixB < 0 {
		return nil, errs.Invalid("mdl", "Partition", "fix_B must be positive, got %d", opts.FixB)
	}
	if g == nil || g.NumSubjects() == 0 {
		return &Result{
			Assignment:       map[string]int{},
			CompressionRatio: 1,
			Trace:            []TracePoint{},
		}, nil
	}
	n := g.NumSubjects()
	if opts.FixB > n {
		return nil, errs.Invalid("mdl", "Partition", "fix_B %d exceeds the %d subjects", opts.FixB, n)
	}
	if err := checkTotalWeight(g, "Partition"); err != nil {
		return nil, err
	}

	logger.Info().
		Int("subjects", n).
		Int("objects", g.NumObjects()).
		Float64("total_weight", g.TotalWeight()).
		Int("fix_b", opts.FixB).
		Msg("Starting MDL partition")

	tree, err := agglomerate(ctx, g)
	if err != nil {
		return nil, err
	}

	var best *state
	var trace []TracePoint
	if opts.FixB > 0 {
		best, err = searchFixed(ctx, g, tree.merges, opts.FixB, opts)
		if err != nil {
			return nil, err
		}
		trace = []TracePoint{{Blocks: opts.FixB, DescriptionLength: best.descriptionLength()}}
	} else {
		maxBlocks := n
		if opts.MaxBlocks > 0 && opts.MaxBlocks < n {
			maxBlocks = opts.MaxBlocks
		}
		greedy := tree.lengths(n, g.TotalWeight())
		greedyBest := 1
		for b := 2; b <= maxBlocks; b++ {
			if greedy[b] < greedy[greedyBest]-minImprovement {
				greedyBest = b
			}
		}
		logger.Debug().Int("blocks", greedyBest).Float64("description_length", greedy[greedyBest]).Msg("Greedy minimum")

		bestDL, bestB := math.Inf(1), 0
		for b := 1; b <= maxBlocks; b++ {
			candidate, err := searchFixed(ctx, g, tree.merges, b, opts)
			if err != nil {
				return nil, err
			}
			dl := candidate.descriptionLength()
			trace = append(trace, TracePoint{Blocks: b, DescriptionLength: dl})
			logger.Debug().Int("blocks", b).Float64("description_length", dl).Msg("Block count evaluated")
			if dl < bestDL-minImprovement {
				best, bestDL, bestB = candidate, dl, b
			}
			if opts.Patience > 0 && b >= greedyBest && b-bestB >= opts.Patience {
				break
			}
		}
	}

	result := buildResult(g, best, opts)
	result.Trace = trace

	logger.Info().
		Int("blocks", result.Blocks).
		Float64("description_length", result.DescriptionLength).
		Float64("compression_ratio", result.CompressionRatio).
		Int("evaluated", len(trace)).
		Int64("runtime_ms", time.Since(startTime).Milliseconds()).
		Msg("MDL partition completed")

	return result, nil
}

func checkTotalWeight(g *bipartite.Graph, method string) error {
	if total := g.TotalWeight(); math.IsInf(total, 0) || total > maxTotalWeight {
		return errs.Invalid("mdl", method, "total weight %g exceeds %g", total, maxTotalWeight)
	}
	return nil
}

// searchFixed returns the best B-block partition over the greedy start
// and opts.Restarts random starts. The generator is derived from the seed
// and B, so a fixed-B call reproduces the search's run for that B.
func searchFixed(ctx context.Context, g *bipartite.Graph, merges []merge, numBlocks int, opts Options) (*state, error) {
	rng := rand.New(rand.NewPCG(opts.Seed, uint64(numBlocks)))

	best := newState(g, replay(g.NumSubjects(), merges, numBlocks), numBlocks)
	if _, err := refine(ctx, best, rng, opts.MaxSweeps); err != nil {
		return nil, err
	}
	if numBlocks == 1 || numBlocks == g.NumSubjects() {
		return best, nil
	}
	bestDL := best.descriptionLength()

	for restart := 0; restart < opts.Restarts; restart++ {
		candidate := newState(g, randomAssignment(g.NumSubjects(), numBlocks, rng), numBlocks)
		if _, err := refine(ctx, candidate, rng, opts.MaxSweeps); err != nil {
			return nil, err
		}
		if dl := candidate.descriptionLength(); dl < bestDL-minImprovement {
			best, bestDL = candidate, dl
		}
	}
	return best, nil
}

// randomAssignment gives B shuffled subjects one block each and places
// the rest uniformly, so no block starts empty.
func randomAssignment(n, numBlocks int, rng *rand.Rand) []int {
	assign := make([]int, n)
	for rank, i := range rng.Perm(n) {
		if rank < numBlocks {
			assign[i] = rank
		} else {
			assign[i] = rng.IntN(numBlocks)
		}
	}
	return assign
}

// refine performs single-node moves in seeded random order until a sweep
// makes no move. A node never leaves a block it is alone in, so B is
// preserved. Ties between target blocks go to the lowest block id.
func refine(ctx context.Context, s *state, rng *rand.Rand, maxSweeps int) (int, error) {
	if s.numBlocks < 2 {
		return 0, ctx.Err()
	}
	order := make([]int, s.n)
	for i := range order {
		order[i] = i
	}

	totalMoves := 0
	for sweep := 0; sweep < maxSweeps; sweep++ {
		if err := ctx.Err(); err != nil {
			return totalMoves, err
		}
		moves := 0
		rng.Shuffle(len(order), func(a, b int) { order[a], order[b] = order[b], order[a] })

		for _, i := range order {
			from := s.assign[i]
			if s.size[from] == 1 {
				continue
			}
			s.loadNode(i)
			bestBlock, bestDelta := from, -minImprovement
			for to := 0; to < s.numBlocks; to++ {
				if to == from {
					continue
				}
				if delta := s.moveDelta(i, to); delta < bestDelta {
					bestBlock, bestDelta = to, delta
				}
			}
			if bestBlock != from {
				s.move(i, bestBlock)
				moves++
			}
			s.unloadNode(i)
		}

		totalMoves += moves
		if moves == 0 {
			break
		}
	}
	return totalMoves, nil
}

func buildResult(g *bipartite.Graph, s *state, opts Options) *Result {
	// Renumber blocks in order of first subject.
	relabel := make([]int, s.numBlocks)
	for r := range relabel {
		relabel[r] = -1
	}
	next := 0
	for _, r := range s.assign {
		if relabel[r] < 0 {
			relabel[r] = next
			next++
		}
	}

	result := &Result{
		Blocks:            s.numBlocks,
		Assignment:        make(map[string]int, s.n),
		DescriptionLength: s.descriptionLength(),
		BaselineLength:    baselineLength(g),
	}
	members := make([][]int, s.numBlocks)
	for i, r := range s.assign {
		b := relabel[r]
		result.Assignment[g.Subject(i).ID] = b
		members[b] = append(members[b], i)
	}
	result.CompressionRatio = 1
	if result.BaselineLength > 0 {
		result.CompressionRatio = result.DescriptionLength / result.BaselineLength
	}

	if opts.Subgraphs {
		result.Subgraphs = make(map[int]*bipartite.Graph, s.numBlocks)
		for b, nodes := range members {
			result.Subgraphs[b] = g.InducedBySubjects(nodes)
		}
	}
	if opts.ObjectLabels {
		result.ObjectBlocks = objectBlocks(g, s, relabel)
	}
	return result
}

// objectBlocks labels each object with the block that sends it the most
// weight, ties going to the lowest renumbered block. Objects without
// weight are left out.
func objectBlocks(g *bipartite.Graph, s *state, relabel []int) map[string]int {
	labels := make(map[string]int, s.m)
	for j := 0; j < s.m; j++ {
		bestBlock, bestWeight := -1, 0.0
		for r := 0; r < s.numBlocks; r++ {
			w := s.e[r][j]
			if w > bestWeight || (w == bestWeight && w > 0 && relabel[r] < bestBlock) {
				bestBlock, bestWeight = relabel[r], w
			}
		}
		if bestBlock >= 0 {
			labels[g.Object(j).ID] = bestBlock
		}
	}
	return labels
}
