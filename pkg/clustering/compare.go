package clustering

import (
	"math"

	"github.com/gilchrisn/hina-service/pkg/errs"
)

// Comparison summarizes the agreement of two partitions of the same nodes.
type Comparison struct {
	NMI     float64 `json:"nmi"`
	BlocksA int     `json:"blocks_a"`
	BlocksB int     `json:"blocks_b"`
	Nodes   int     `json:"nodes"`
}

// Compare computes the normalized mutual information of two assignments,
// normalized by the mean of the two entropies. Both must label the same
// nodes. Two single-block partitions compare as 1.
func Compare(a, b map[string]int) (*Comparison, error) {
	if len(a) != len(b) {
		return nil, errs.Invalid("clustering", "Compare", "partitions label %d and %d nodes", len(a), len(b))
	}

	type pair struct{ a, b int }
	contingency := make(map[pair]int)
	countsA := make(map[int]int)
	countsB := make(map[int]int)
	for id, ca := range a {
		cb, ok := b[id]
		if !ok {
			return nil, errs.Invalid("clustering", "Compare", "node %q missing from second partition", id)
		}
		contingency[pair{ca, cb}]++
		countsA[ca]++
		countsB[cb]++
	}

	n := float64(len(a))
	result := &Comparison{BlocksA: len(countsA), BlocksB: len(countsB), Nodes: len(a)}
	if n == 0 {
		return result, nil
	}

	mi := 0.0
	for p, nij := range contingency {
		ni, nj := float64(countsA[p.a]), float64(countsB[p.b])
		mi += float64(nij) / n * math.Log2(float64(nij)*n/(ni*nj))
	}

	avgEntropy := (entropy(countsA, n) + entropy(countsB, n)) / 2
	if avgEntropy == 0 {
		result.NMI = 1
		return result, nil
	}
	result.NMI = mi / avgEntropy
	return result, nil
}

func entropy(counts map[int]int, n float64) float64 {
	h := 0.0
	for _, c := range counts {
		p := float64(c) / n
		h -= p * math.Log2(p)
	}
	return h
}
