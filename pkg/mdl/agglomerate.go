package mdl

import (
	"context"
	"math"

	"github.com/gilchrisn/hina-service/pkg/bipartite"
)

// merge records that cluster drop was absorbed into cluster keep. Cluster
// ids are the index of the cluster's lowest subject.
type merge struct {
	keep, drop int
}

// cluster is one block of the agglomeration.
type cluster struct {
	size   int
	weight float64
	row    []float64
	cost   float64
}

// dendrogram is the greedy merge sequence together with the summed block
// cost of the partition reached at every block count.
type dendrogram struct {
	merges []merge
	// blockCost[B] is the sum of block costs of the greedy B-block
	// partition, for B in 1..N.
	blockCost []float64
}

// lengths returns the description length of every greedy start, indexed
// by block count.
func (d *dendrogram) lengths(n int, total float64) []float64 {
	dl := make([]float64, len(d.blockCost))
	for b := 1; b < len(dl); b++ {
		dl[b] = constantLength(n, b, total) + d.blockCost[b]
	}
	return dl
}

// agglomerate merges singleton blocks pairwise until one block remains,
// always taking the merge that raises the block costs least. The first
// N-B merges give the greedy B-block start. Ties go to the lowest pair.
func agglomerate(ctx context.Context, g *bipartite.Graph) (*dendrogram, error) {
	n, m := g.NumSubjects(), g.NumObjects()
	d := &dendrogram{blockCost: make([]float64, n+1)}

	clusters := make([]*cluster, n)
	sum := 0.0
	for i := range clusters {
		c := &cluster{size: 1, weight: g.SubjectStrength(i), row: make([]float64, m)}
		for _, k := range g.SubjectEdges(i) {
			edge := g.Edge(k)
			c.row[edge.Object] += edge.Weight
		}
		c.cost = clusterCost(c.size, c.weight, m, c.row, nil)
		clusters[i] = c
		sum += c.cost
	}
	if n == 0 {
		return d, nil
	}
	d.blockCost[n] = sum
	if n < 2 {
		return d, nil
	}

	// delta[a][b] for a < b is the block cost change of merging b into a.
	delta := make([][]float64, n)
	for a := range delta {
		delta[a] = make([]float64, n)
		for b := a + 1; b < n; b++ {
			delta[a][b] = mergeDelta(clusters[a], clusters[b], m)
		}
	}

	// best[a] is the live partner b > a with the cheapest merge, -1 when
	// there is none.
	best := make([]int, n)
	rowBest := func(a int) {
		best[a] = -1
		for b := a + 1; b < n; b++ {
			if clusters[b] != nil && (best[a] < 0 || delta[a][b] < delta[a][best[a]]-minImprovement) {
				best[a] = b
			}
		}
	}
	for a := range best {
		rowBest(a)
	}

	d.merges = make([]merge, 0, n-1)
	for len(d.merges) < n-1 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		keep, cheapest := -1, math.Inf(1)
		for a := 0; a < n; a++ {
			if clusters[a] != nil && best[a] >= 0 && delta[a][best[a]] < cheapest-minImprovement {
				keep, cheapest = a, delta[a][best[a]]
			}
		}
		drop := best[keep]

		ka, kb := clusters[keep], clusters[drop]
		for j, x := range kb.row {
			ka.row[j] += x
		}
		ka.size += kb.size
		ka.weight += kb.weight
		ka.cost = clusterCost(ka.size, ka.weight, m, ka.row, nil)
		clusters[drop] = nil
		d.merges = append(d.merges, merge{keep: keep, drop: drop})
		sum += cheapest
		d.blockCost[n-len(d.merges)] = sum

		for x := 0; x < n; x++ {
			if x == keep || clusters[x] == nil {
				continue
			}
			a, b := min(x, keep), max(x, keep)
			delta[a][b] = mergeDelta(clusters[a], clusters[b], m)
		}
		for a := 0; a < n; a++ {
			if clusters[a] == nil {
				continue
			}
			switch {
			case a == keep || best[a] == keep || best[a] == drop:
				rowBest(a)
			case a < keep:
				if best[a] < 0 || delta[a][keep] < delta[a][best[a]]-minImprovement {
					best[a] = keep
				}
			}
		}
	}
	return d, nil
}

// clusterCost is the per-block term of the description length; other,
// when given, is added row-wise.
func clusterCost(size int, weight float64, m int, row, other []float64) float64 {
	n, mf := float64(size), float64(m)
	c := logBinom(weight+mf-1, mf-1) - lgamma(n+1)
	for j, x := range row {
		if other != nil {
			x += other[j]
		}
		c += logBinom(x+n-1, n-1)
	}
	return c
}

func mergeDelta(a, b *cluster, m int) float64 {
	merged := clusterCost(a.size+b.size, a.weight+b.weight, m, a.row, b.row)
	return merged - a.cost - b.cost
}

// replay applies the first n-B merges and returns labels 0..B-1 numbered
// in order of first subject.
func replay(n int, merges []merge, numBlocks int) []int {
	owner := make([]int, n)
	for i := range owner {
		owner[i] = i
	}
	for _, mg := range merges[:n-numBlocks] {
		for i, o := range owner {
			if o == mg.drop {
				owner[i] = mg.keep
			}
		}
	}

	label := make(map[int]int, numBlocks)
	assign := make([]int, n)
	for i, o := range owner {
		l, ok := label[o]
		if !ok {
			l = len(label)
			label[o] = l
		}
		assign[i] = l
	}
	return assign
}
