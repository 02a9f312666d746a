package louvain

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/graph/simple"

	"github.com/gilchrisn/hina-service/pkg/bipartite"
)

// Graph is a weighted undirected graph over nodes 0..NumNodes-1 stored as
// per-node neighbor lists. Every edge appears in both endpoint lists; a
// self-loop appears once.
type Graph struct {
	NumNodes    int         `json:"num_nodes"`
	Adjacency   [][]int     `json:"-"`
	Weights     [][]float64 `json:"-"`            // parallel to Adjacency
	Degrees     []float64   `json:"degrees"`      // self-loops counted twice
	SelfLoops   []float64   `json:"-"`            // self-loop weight per node
	TotalWeight float64     `json:"total_weight"` // each edge counted once
}

func NewGraph(numNodes int) *Graph {
	return &Graph{
		NumNodes:  numNodes,
		Adjacency: make([][]int, numNodes),
		Weights:   make([][]float64, numNodes),
		Degrees:   make([]float64, numNodes),
		SelfLoops: make([]float64, numNodes),
	}
}

// AddEdge adds an edge of positive finite weight. Adding the same pair
// twice gives two parallel entries.
func (g *Graph) AddEdge(u, v int, weight float64) error {
	if u < 0 || u >= g.NumNodes || v < 0 || v >= g.NumNodes {
		return fmt.Errorf("node index out of range: u=%d, v=%d, numNodes=%d", u, v, g.NumNodes)
	}
	if !(weight > 0) || math.IsInf(weight, 1) {
		return fmt.Errorf("edge %d-%d weight must be positive and finite: %v", u, v, weight)
	}

	g.Adjacency[u] = append(g.Adjacency[u], v)
	g.Weights[u] = append(g.Weights[u], weight)
	if u == v {
		g.SelfLoops[u] += weight
		g.Degrees[u] += 2 * weight
	} else {
		g.Adjacency[v] = append(g.Adjacency[v], u)
		g.Weights[v] = append(g.Weights[v], weight)
		g.Degrees[u] += weight
		g.Degrees[v] += weight
	}
	g.TotalWeight += weight
	return nil
}

// Weight sums the edges between u and v; 0 when they are not adjacent.
func (g *Graph) Weight(u, v int) float64 {
	if u == v {
		return g.SelfLoops[u]
	}
	w := 0.0
	for k, neighbor := range g.Adjacency[u] {
		if neighbor == v {
			w += g.Weights[u][k]
		}
	}
	return w
}

// Project builds the one-mode projection of g onto its subjects: node i
// is subject i and the weight between two subjects is
// sum_j w_ij * w_kj over their shared objects. Subjects with no shared
// objects stay as isolated nodes.
func Project(g *bipartite.Graph) *Graph {
	n := g.NumSubjects()
	projected := NewGraph(n)

	for i := 0; i < n; i++ {
		shared := make(map[int]float64)
		var order []int
		for _, k := range g.SubjectEdges(i) {
			e := g.Edge(k)
			for _, l := range g.ObjectEdges(e.Object) {
				other := g.Edge(l)
				if other.Subject <= i {
					continue
				}
				if _, ok := shared[other.Subject]; !ok {
					order = append(order, other.Subject)
				}
				shared[other.Subject] += e.Weight * other.Weight
			}
		}
		for _, k := range order {
			if w := shared[k]; w > 0 {
				// indices and weight are valid by construction
				_ = projected.AddEdge(i, k, w)
			}
		}
	}
	return projected
}

// ToGonum converts the graph to a gonum weighted undirected graph with
// node ids 0..NumNodes-1. Self-loops are dropped.
func (g *Graph) ToGonum() *simple.WeightedUndirectedGraph {
	out := simple.NewWeightedUndirectedGraph(0, 0)
	for i := 0; i < g.NumNodes; i++ {
		out.AddNode(simple.Node(i))
	}
	for u := 0; u < g.NumNodes; u++ {
		for k, v := range g.Adjacency[u] {
			if v <= u {
				continue
			}
			out.SetWeightedEdge(out.NewWeightedEdge(simple.Node(u), simple.Node(v), g.Weights[u][k]))
		}
	}
	return out
}
