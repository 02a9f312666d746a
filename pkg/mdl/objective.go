package mdl

import (
	"math"

	"gonum.org/v1/gonum/stat/combin"

	"github.com/gilchrisn/hina-service/pkg/bipartite"
	"github.com/gilchrisn/hina-service/pkg/errs"
)

// The description length, in nats, of a partition of N subjects into B
// blocks over a graph with M objects and total weight E:
//
//	log N                          choice of B
//	+ log C(N-1, B-1)              block sizes
//	+ log N! - sum_r log n_r!      labels given sizes
//	+ log C(E+B-1, B-1)            weight per block
//	+ sum_r log C(E_r+M-1, M-1)    block weight over objects
//	+ sum_r sum_j log C(e_rj+n_r-1, n_r-1)
//	                               block-object weight over members
//
// Invalid binomial arguments contribute zero.

func logBinom(n, k float64) float64 {
	if n < 0 || k < 0 || n < k {
		return 0
	}
	return combin.LogGeneralizedBinomial(n, k)
}

func lgamma(x float64) float64 {
	v, _ := math.Lgamma(x)
	return v
}

// state is a partition of the subjects together with the block-object
// weight matrix needed to score it. Moving a node touches two rows, so
// the cost of each block is cached.
type state struct {
	g     *bipartite.Graph
	n, m  int
	total float64

	numBlocks int
	assign    []int
	size      []int
	weight    []float64
	e         [][]float64
	cost      []float64

	// dense copy of one subject's edge row, loaded by loadNode
	scratch    []float64
	nodeWeight float64
}

func newState(g *bipartite.Graph, assign []int, numBlocks int) *state {
	s := &state{
		g:         g,
		n:         g.NumSubjects(),
		m:         g.NumObjects(),
		total:     g.TotalWeight(),
		numBlocks: numBlocks,
		assign:    append([]int(nil), assign...),
		size:      make([]int, numBlocks),
		weight:    make([]float64, numBlocks),
		e:         make([][]float64, numBlocks),
		cost:      make([]float64, numBlocks),
		scratch:   make([]float64, g.NumObjects()),
	}
	for r := range s.e {
		s.e[r] = make([]float64, s.m)
	}
	for i, r := range s.assign {
		s.size[r]++
		s.weight[r] += g.SubjectStrength(i)
		for _, k := range g.SubjectEdges(i) {
			edge := g.Edge(k)
			s.e[r][edge.Object] += edge.Weight
		}
	}
	for r := range s.cost {
		s.cost[r] = s.blockCost(r, 0)
	}
	return s
}

// constantLength is the part of the description length that does not
// depend on the assignment, only on N, B and the total weight.
func constantLength(numSubjects, numBlocks int, total float64) float64 {
	n, b := float64(numSubjects), float64(numBlocks)
	return math.Log(n) + logBinom(n-1, b-1) + lgamma(n+1) + logBinom(total+b-1, b-1)
}

// blockCost scores block r, optionally with the loaded node added
// (sign = 1) or removed (sign = -1).
func (s *state) blockCost(r int, sign float64) float64 {
	if sign == 0 {
		return clusterCost(s.size[r], s.weight[r], s.m, s.e[r], nil)
	}
	n := float64(s.size[r]) + sign
	if n <= 0 {
		return 0
	}
	m := float64(s.m)
	c := logBinom(s.weight[r]+sign*s.nodeWeight+m-1, m-1) - lgamma(n+1)
	for j, x := range s.e[r] {
		c += logBinom(x+sign*s.scratch[j]+n-1, n-1)
	}
	return c
}

func (s *state) descriptionLength() float64 {
	dl := constantLength(s.n, s.numBlocks, s.total)
	for _, c := range s.cost {
		dl += c
	}
	return dl
}

func (s *state) loadNode(i int) {
	for _, k := range s.g.SubjectEdges(i) {
		edge := s.g.Edge(k)
		s.scratch[edge.Object] = edge.Weight
	}
	s.nodeWeight = s.g.SubjectStrength(i)
}

func (s *state) unloadNode(i int) {
	for _, k := range s.g.SubjectEdges(i) {
		s.scratch[s.g.Edge(k).Object] = 0
	}
	s.nodeWeight = 0
}

// moveDelta is the change in description length from moving the loaded
// node i into block to. B is unchanged, so the constant drops out.
func (s *state) moveDelta(i, to int) float64 {
	from := s.assign[i]
	return s.blockCost(from, -1) - s.cost[from] + s.blockCost(to, 1) - s.cost[to]
}

// move reassigns the loaded node i to block to.
func (s *state) move(i, to int) {
	from := s.assign[i]
	newFrom, newTo := s.blockCost(from, -1), s.blockCost(to, 1)
	for j, x := range s.scratch {
		if x != 0 {
			s.e[from][j] -= x
			s.e[to][j] += x
		}
	}
	s.size[from]--
	s.size[to]++
	s.weight[from] -= s.nodeWeight
	s.weight[to] += s.nodeWeight
	s.cost[from], s.cost[to] = newFrom, newTo
	s.assign[i] = to
}

// DescriptionLength scores an explicit partition of g's subjects. Block
// labels must cover 0..B-1 with no gaps and every subject must be
// labeled.
func DescriptionLength(g *bipartite.Graph, assignment map[string]int) (float64, error) {
	if g == nil || g.NumSubjects() == 0 {
		return 0, nil
	}
	if err := checkTotalWeight(g, "DescriptionLength"); err != nil {
		return 0, err
	}
	assign := make([]int, g.NumSubjects())
	numBlocks := 0
	for i := range assign {
		id := g.Subject(i).ID
		r, ok := assignment[id]
		if !ok {
			return 0, errs.Invalid("mdl", "DescriptionLength", "subject %q has no block", id)
		}
		if r < 0 {
			return 0, errs.Invalid("mdl", "DescriptionLength", "subject %q has negative block %d", id, r)
		}
		assign[i] = r
		numBlocks = max(numBlocks, r+1)
	}
	used := make([]bool, numBlocks)
	for _, r := range assign {
		used[r] = true
	}
	for r, ok := range used {
		if !ok {
			return 0, errs.Invalid("mdl", "DescriptionLength", "block %d is empty", r)
		}
	}
	return newState(g, assign, numBlocks).descriptionLength(), nil
}

// baselineLength is the description length of the one-block partition.
func baselineLength(g *bipartite.Graph) float64 {
	return newState(g, make([]int, g.NumSubjects()), 1).descriptionLength()
}
