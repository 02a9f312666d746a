// Package layout places the nodes of a bipartite graph in the plane for
// rendering. Coordinates are in roughly [-1, 1]; callers scale them to
// their canvas.
package layout

import (
	"math"
	"math/rand/v2"

	gonumlayout "gonum.org/v1/gonum/graph/layout"
	"gonum.org/v1/gonum/graph/simple"

	"github.com/gilchrisn/hina-service/pkg/bipartite"
	"github.com/gilchrisn/hina-service/pkg/errs"
)

// Layout names.
const (
	Bipartite = "bipartite"
	Circular  = "circular"
	Clustered = "clustered"
	Spring    = "spring"
)

// Names lists the supported layouts.
func Names() []string { return []string{Bipartite, Circular, Clustered, Spring} }

// Position is a node coordinate.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Options tunes the layouts that need more than the graph.
type Options struct {
	// Blocks maps subject identifiers to block ids for Clustered. Subjects
	// without a block share one extra sector.
	Blocks map[string]int
	// Seed drives the jitter of Clustered and the start of Spring.
	Seed uint64
	// Iterations bounds the Spring optimizer; 0 means 200.
	Iterations int
}

// Compute returns a position for every node of g, keyed by node id.
func Compute(g *bipartite.Graph, name string, opts Options) (map[string]Position, error) {
	if g == nil {
		g = bipartite.Empty()
	}
	switch name {
	case Bipartite, "":
		return columns(g), nil
	case Circular:
		return circle(g), nil
	case Clustered:
		return clustered(g, opts), nil
	case Spring:
		return spring(g, opts), nil
	default:
		return nil, errs.Unsupported("layout", "Compute", "layout", name)
	}
}

// columns puts subjects on x = -1 and objects on x = 1, evenly spread
// over y in [-1, 1].
func columns(g *bipartite.Graph) map[string]Position {
	pos := make(map[string]Position, g.NumNodes())
	for i, n := range g.Subjects() {
		pos[n.ID] = Position{X: -1, Y: spread(i, g.NumSubjects())}
	}
	for j, n := range g.Objects() {
		pos[n.ID] = Position{X: 1, Y: spread(j, g.NumObjects())}
	}
	return pos
}

func spread(i, n int) float64 {
	if n <= 1 {
		return 0
	}
	return -1 + 2*float64(i)/float64(n-1)
}

func circle(g *bipartite.Graph) map[string]Position {
	nodes := append(g.Subjects(), g.Objects()...)
	pos := make(map[string]Position, len(nodes))
	for k, n := range nodes {
		angle := 2 * math.Pi * float64(k) / float64(len(nodes))
		pos[n.ID] = Position{X: math.Cos(angle), Y: math.Sin(angle)}
	}
	return pos
}

const (
	clusterRadius = 1.0
	clusterJitter = 0.3
)

// clustered puts each block of subjects in its own sector of the outer
// ring and the objects on an inner ring of half the radius.
func clustered(g *bipartite.Graph, opts Options) map[string]Position {
	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed))
	offset := rng.Float64() * math.Pi

	sector := make(map[int]int)
	for _, n := range g.Subjects() {
		b, ok := opts.Blocks[n.ID]
		if !ok {
			b = -1
		}
		if _, seen := sector[b]; !seen {
			sector[b] = len(sector)
		}
	}

	pos := make(map[string]Position, g.NumNodes())
	for _, n := range g.Subjects() {
		b, ok := opts.Blocks[n.ID]
		if !ok {
			b = -1
		}
		angle := 2*math.Pi*float64(sector[b])/float64(len(sector)) + offset
		pos[n.ID] = Position{
			X: clusterRadius*math.Cos(angle) + (2*rng.Float64()-1)*clusterJitter,
			Y: clusterRadius*math.Sin(angle) + (2*rng.Float64()-1)*clusterJitter,
		}
	}
	for j, n := range g.Objects() {
		angle := 2*math.Pi*float64(j)/float64(g.NumObjects()) + offset
		pos[n.ID] = Position{
			X: 0.5 * clusterRadius * math.Cos(angle),
			Y: 0.5 * clusterRadius * math.Sin(angle),
		}
	}
	return pos
}

// spring runs the Eades force-directed layout and rescales the result into
// [-1, 1] on both axes.
func spring(g *bipartite.Graph, opts Options) map[string]Position {
	pos := make(map[string]Position, g.NumNodes())
	if g.NumNodes() == 0 {
		return pos
	}
	iterations := opts.Iterations
	if iterations <= 0 {
		iterations = 200
	}

	n1 := g.NumSubjects()
	wg := simple.NewWeightedUndirectedGraph(0, 0)
	for id := 0; id < g.NumNodes(); id++ {
		wg.AddNode(simple.Node(id))
	}
	for _, e := range g.Edges() {
		wg.SetWeightedEdge(wg.NewWeightedEdge(simple.Node(e.Subject), simple.Node(n1+e.Object), e.Weight))
	}

	eades := gonumlayout.EadesR2{
		Updates:   iterations,
		Repulsion: 1,
		Rate:      0.05,
		Theta:     0.2,
		Src:       rand.NewPCG(opts.Seed, opts.Seed),
	}
	optimizer := gonumlayout.NewOptimizerR2(wg, eades.Update)
	for optimizer.Update() {
	}

	coords := make([]Position, g.NumNodes())
	for id := range coords {
		v := optimizer.Coord2(int64(id))
		coords[id] = Position{X: v.X, Y: v.Y}
	}
	normalize(coords)

	for i, n := range g.Subjects() {
		pos[n.ID] = coords[i]
	}
	for j, n := range g.Objects() {
		pos[n.ID] = coords[n1+j]
	}
	return pos
}

func normalize(coords []Position) {
	minX, maxX := math.Inf(1), math.Inf(-1)
	minY, maxY := math.Inf(1), math.Inf(-1)
	for _, c := range coords {
		if math.IsNaN(c.X) || math.IsNaN(c.Y) {
			continue
		}
		minX, maxX = math.Min(minX, c.X), math.Max(maxX, c.X)
		minY, maxY = math.Min(minY, c.Y), math.Max(maxY, c.Y)
	}
	for i, c := range coords {
		coords[i] = Position{X: rescale(c.X, minX, maxX), Y: rescale(c.Y, minY, maxY)}
	}
}

func rescale(v, lo, hi float64) float64 {
	if hi-lo < 1e-12 || math.IsNaN(v) {
		return 0
	}
	return -1 + 2*(v-lo)/(hi-lo)
}
