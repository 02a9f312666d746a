package bipartite

import (
	"cmp"
	"math"
	"slices"

	"github.com/gilchrisn/hina-service/pkg/errs"
)

// Option configures graph construction.
type Option func(*options)

type options struct {
	kind  Kind
	sides map[string]Side
}

// WithKind marks the graph as bipartite or tripartite.
func WithKind(kind Kind) Option {
	return func(o *options) { o.kind = kind }
}

// WithSides replaces the positional side rule of FromTriples with an
// explicit assignment. Every endpoint must be present in the map, and
// triples may then list their endpoints in either order.
func WithSides(sides map[string]Side) Option {
	return func(o *options) { o.sides = sides }
}

// FromTriples builds a graph from an edge list. By default the first
// element of each triple is a subject and the second an object. Repeated
// pairs accumulate their weights.
func FromTriples(triples []Triple, opts ...Option) (*Graph, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	b := newBuilder(o.kind)
	for _, t := range triples {
		if err := checkWeight(t, "FromTriples"); err != nil {
			return nil, err
		}
		subject, object := t.U, t.V
		if o.sides != nil {
			su, okU := o.sides[t.U]
			sv, okV := o.sides[t.V]
			if !okU || !okV {
				missing := t.U
				if okU {
					missing = t.V
				}
				return nil, errs.Invalid("bipartite", "FromTriples", "node %q has no side assignment", missing)
			}
			if su == sv {
				return nil, errs.Invalid("bipartite", "FromTriples", "edge %s joins two %s nodes", t, su)
			}
			if su == SideObject {
				subject, object = object, subject
			}
		}
		if err := b.addNode(Node{ID: subject, Side: SideSubject}); err != nil {
			return nil, err
		}
		if err := b.addNode(Node{ID: object, Side: SideObject}); err != nil {
			return nil, err
		}
		b.addWeight(subject, object, t.Weight)
	}
	return b.build(), nil
}

// FromNodes builds a graph from typed node records and an edge list whose
// endpoints must all be declared. Declared nodes without edges are kept.
func FromNodes(nodes []Node, triples []Triple, opts ...Option) (*Graph, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	b := newBuilder(o.kind)
	var seen [2]bool
	for _, n := range nodes {
		if n.Side != SideSubject && n.Side != SideObject {
			return nil, errs.Invalid("bipartite", "FromNodes", "node %q has unrecognized side %d", n.ID, uint8(n.Side))
		}
		if err := b.addNode(n); err != nil {
			return nil, err
		}
		seen[n.Side] = true
	}
	if len(nodes) > 0 && !(seen[SideSubject] && seen[SideObject]) {
		return nil, errs.Invalid("bipartite", "FromNodes", "graph needs two distinct sides")
	}

	for _, t := range triples {
		if err := checkWeight(t, "FromNodes"); err != nil {
			return nil, err
		}
		nu, okU := b.nodes[t.U]
		nv, okV := b.nodes[t.V]
		if !okU || !okV {
			missing := t.U
			if okU {
				missing = t.V
			}
			return nil, errs.Invalid("bipartite", "FromNodes", "edge endpoint %q is not a declared node", missing)
		}
		if nu.Side == nv.Side {
			return nil, errs.Invalid("bipartite", "FromNodes", "edge %s joins two %s nodes", t, nu.Side)
		}
		if nu.Side == SideSubject {
			b.addWeight(t.U, t.V, t.Weight)
		} else {
			b.addWeight(t.V, t.U, t.Weight)
		}
	}
	return b.build(), nil
}

func checkWeight(t Triple, method string) error {
	if math.IsNaN(t.Weight) || math.IsInf(t.Weight, 0) || t.Weight < 0 {
		return errs.Invalid("bipartite", method, "edge %s has weight outside [0, inf)", t)
	}
	return nil
}

type pairKey struct {
	subject string
	object  string
}

// builder accumulates nodes and pair weights before freezing them into a
// dense Graph.
type builder struct {
	kind    Kind
	nodes   map[string]Node
	weights map[pairKey]float64
}

func newBuilder(kind Kind) *builder {
	return &builder{
		kind:    kind,
		nodes:   make(map[string]Node),
		weights: make(map[pairKey]float64),
	}
}

func (b *builder) addNode(n Node) error {
	existing, ok := b.nodes[n.ID]
	if !ok {
		b.nodes[n.ID] = n
		return nil
	}
	if existing.Side != n.Side {
		return errs.Invalid("bipartite", "addNode", "node %q appears on both the %s and %s side", n.ID, existing.Side, n.Side)
	}
	if existing.Group == "" {
		existing.Group = n.Group
	}
	if existing.Attribute == "" {
		existing.Attribute = n.Attribute
	}
	b.nodes[n.ID] = existing
	return nil
}

func (b *builder) addWeight(subject, object string, w float64) {
	b.weights[pairKey{subject, object}] += w
}

func (b *builder) build() *Graph {
	g := &Graph{kind: b.kind, index: make(map[string]nodeRef, len(b.nodes))}
	for _, n := range b.nodes {
		if n.Side == SideSubject {
			g.subjects = append(g.subjects, n)
		} else {
			g.objects = append(g.objects, n)
		}
	}
	byID := func(x, y Node) int { return cmp.Compare(x.ID, y.ID) }
	slices.SortFunc(g.subjects, byID)
	slices.SortFunc(g.objects, byID)
	for i, n := range g.subjects {
		g.index[n.ID] = nodeRef{side: SideSubject, pos: i}
	}
	for j, n := range g.objects {
		g.index[n.ID] = nodeRef{side: SideObject, pos: j}
	}

	g.edges = make([]Edge, 0, len(b.weights))
	for key, w := range b.weights {
		g.edges = append(g.edges, Edge{
			Subject: g.index[key.subject].pos,
			Object:  g.index[key.object].pos,
			Weight:  w,
		})
	}
	slices.SortFunc(g.edges, func(x, y Edge) int {
		if c := cmp.Compare(x.Subject, y.Subject); c != 0 {
			return c
		}
		return cmp.Compare(x.Object, y.Object)
	})

	g.subjectEdges = make([][]int, len(g.subjects))
	g.objectEdges = make([][]int, len(g.objects))
	g.subjectStrength = make([]float64, len(g.subjects))
	g.objectStrength = make([]float64, len(g.objects))
	for k, e := range g.edges {
		g.subjectEdges[e.Subject] = append(g.subjectEdges[e.Subject], k)
		g.objectEdges[e.Object] = append(g.objectEdges[e.Object], k)
		g.subjectStrength[e.Subject] += e.Weight
		g.objectStrength[e.Object] += e.Weight
		g.totalWeight += e.Weight
	}
	return g
}
