// Package bipartite holds the immutable weighted bipartite graph consumed by
// the significance and partitioning engines.
//
// Node identifiers are canonical strings. Internally each side is indexed
// densely (subjects 0..N1-1, objects 0..N2-1, both in identifier order) and
// adjacency is stored as edge-index lists, so the inner loops of the
// analysis code never chase pointers or allocate.
package bipartite

import (
	"fmt"
	"strings"
)

// Node is the closed per-node record: identity, side and the two metadata
// fields the analysis reads.
type Node struct {
	ID        string `json:"id"`
	Side      Side   `json:"side"`
	Group     string `json:"group,omitempty"`
	Attribute string `json:"attribute,omitempty"`
}

// Triple is a (u, v, weight) edge as exchanged with callers. Outputs always
// put the subject in U.
type Triple struct {
	U      string  `json:"u"`
	V      string  `json:"v"`
	Weight float64 `json:"weight"`
}

// String formats the triple as (u, v, w)
func (t Triple) String() string {
	return fmt.Sprintf("(%s, %s, %g)", t.U, t.V, t.Weight)
}

// Edge is a subject-object pair addressed by dense side indices.
type Edge struct {
	Subject int
	Object  int
	Weight  float64
}

// Graph is a weighted bipartite graph. It is never mutated after
// construction; derived graphs are new values.
type Graph struct {
	kind     Kind
	subjects []Node
	objects  []Node
	index    map[string]nodeRef

	edges        []Edge
	subjectEdges [][]int
	objectEdges  [][]int

	subjectStrength []float64
	objectStrength  []float64
	totalWeight     float64
}

type nodeRef struct {
	side Side
	pos  int
}

// Empty returns a graph with no nodes.
func Empty() *Graph {
	return &Graph{index: map[string]nodeRef{}}
}

// NodeID normalizes any identifier to the canonical string form.
func NodeID(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// CompositeID joins attribute values into one identity, the way merged
// tripartite objects are named.
func CompositeID(parts ...string) string {
	trimmed := make([]string, len(parts))
	for i, p := range parts {
		trimmed[i] = strings.TrimSpace(p)
	}
	return strings.Join(trimmed, ",")
}

func (g *Graph) Kind() Kind { return g.kind }

func (g *Graph) NumSubjects() int { return len(g.subjects) }

func (g *Graph) NumObjects() int { return len(g.objects) }

func (g *Graph) NumNodes() int { return len(g.subjects) + len(g.objects) }

func (g *Graph) NumEdges() int { return len(g.edges) }

// IsEmpty reports whether the graph has no edges.
func (g *Graph) IsEmpty() bool { return len(g.edges) == 0 }

// TotalWeight is the sum of all edge weights.
func (g *Graph) TotalWeight() float64 { return g.totalWeight }

// Subject returns the subject at dense index i.
func (g *Graph) Subject(i int) Node { return g.subjects[i] }

// Object returns the object at dense index j.
func (g *Graph) Object(j int) Node { return g.objects[j] }

// Subjects returns a copy of the subject nodes in index order.
func (g *Graph) Subjects() []Node { return append([]Node(nil), g.subjects...) }

// Objects returns a copy of the object nodes in index order.
func (g *Graph) Objects() []Node { return append([]Node(nil), g.objects...) }

// Nodes returns all nodes of one side.
func (g *Graph) Nodes(side Side) []Node {
	if side == SideSubject {
		return g.Subjects()
	}
	return g.Objects()
}

// Node looks a node up by identifier.
func (g *Graph) Node(id string) (Node, bool) {
	ref, ok := g.index[id]
	if !ok {
		return Node{}, false
	}
	if ref.side == SideSubject {
		return g.subjects[ref.pos], true
	}
	return g.objects[ref.pos], true
}

// SubjectIndex returns the dense index of a subject identifier.
func (g *Graph) SubjectIndex(id string) (int, bool) {
	ref, ok := g.index[id]
	if !ok || ref.side != SideSubject {
		return 0, false
	}
	return ref.pos, true
}

// ObjectIndex returns the dense index of an object identifier.
func (g *Graph) ObjectIndex(id string) (int, bool) {
	ref, ok := g.index[id]
	if !ok || ref.side != SideObject {
		return 0, false
	}
	return ref.pos, true
}

// Edge returns edge k.
func (g *Graph) Edge(k int) Edge { return g.edges[k] }

// Edges returns a copy of the edges, ordered by subject then object index.
func (g *Graph) Edges() []Edge { return append([]Edge(nil), g.edges...) }

// SubjectEdges returns the indices of the edges incident to subject i.
// The returned slice is shared and must not be modified.
func (g *Graph) SubjectEdges(i int) []int { return g.subjectEdges[i] }

// ObjectEdges returns the indices of the edges incident to object j.
// The returned slice is shared and must not be modified.
func (g *Graph) ObjectEdges(j int) []int { return g.objectEdges[j] }

// SubjectStrength is the total weight incident to subject i.
func (g *Graph) SubjectStrength(i int) float64 { return g.subjectStrength[i] }

// ObjectStrength is the total weight incident to object j.
func (g *Graph) ObjectStrength(j int) float64 { return g.objectStrength[j] }

// Strength returns the weight incident to a node of the given side.
func (g *Graph) Strength(side Side, pos int) float64 {
	if side == SideSubject {
		return g.subjectStrength[pos]
	}
	return g.objectStrength[pos]
}

// Weight returns the weight between a subject and an object identifier,
// in either order. Missing pairs weigh 0.
func (g *Graph) Weight(u, v string) float64 {
	ru, okU := g.index[u]
	rv, okV := g.index[v]
	if !okU || !okV || ru.side == rv.side {
		return 0
	}
	if ru.side == SideObject {
		ru, rv = rv, ru
	}
	for _, k := range g.subjectEdges[ru.pos] {
		if g.edges[k].Object == rv.pos {
			return g.edges[k].Weight
		}
	}
	return 0
}

// Triple converts edge k to its identifier form.
func (g *Graph) Triple(k int) Triple {
	e := g.edges[k]
	return Triple{U: g.subjects[e.Subject].ID, V: g.objects[e.Object].ID, Weight: e.Weight}
}

// Triples lists every edge as a (subject, object, weight) triple.
func (g *Graph) Triples() []Triple {
	out := make([]Triple, len(g.edges))
	for k := range g.edges {
		out[k] = g.Triple(k)
	}
	return out
}

// Subgraph builds a new graph from the given edges. Only nodes touched by
// those edges are kept; weights and metadata are preserved.
func (g *Graph) Subgraph(edgeIdx []int) *Graph {
	return g.subgraph(edgeIdx, nil)
}

// FilterEdges keeps the edges for which keep returns true.
func (g *Graph) FilterEdges(keep func(Edge) bool) *Graph {
	idx := make([]int, 0, len(g.edges))
	for k, e := range g.edges {
		if keep(e) {
			idx = append(idx, k)
		}
	}
	return g.Subgraph(idx)
}

// InducedBySubjects returns the given subjects, their edges and the
// objects those edges reach. Subjects without edges are kept.
func (g *Graph) InducedBySubjects(subjects []int) *Graph {
	var idx []int
	for _, i := range subjects {
		idx = append(idx, g.subjectEdges[i]...)
	}
	return g.subgraph(idx, subjects)
}

func (g *Graph) subgraph(edgeIdx, keepSubjects []int) *Graph {
	b := newBuilder(g.kind)
	// Nodes of g are already consistent, so addNode cannot fail here.
	for _, i := range keepSubjects {
		_ = b.addNode(g.subjects[i])
	}
	for _, k := range edgeIdx {
		e := g.edges[k]
		_ = b.addNode(g.subjects[e.Subject])
		_ = b.addNode(g.objects[e.Object])
		b.addWeight(g.subjects[e.Subject].ID, g.objects[e.Object].ID, e.Weight)
	}
	return b.build()
}
