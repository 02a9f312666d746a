package mdl

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gilchrisn/hina-service/pkg/bipartite"
	"github.com/gilchrisn/hina-service/pkg/errs"
)

func scenarioGraph(t *testing.T) *bipartite.Graph {
	t.Helper()
	g, err := bipartite.FromTriples([]bipartite.Triple{
		{U: "1", V: "a", Weight: 1},
		{U: "1", V: "b", Weight: 2},
		{U: "2", V: "a", Weight: 1},
		{U: "3", V: "c", Weight: 1},
		{U: "4", V: "d", Weight: 1},
	})
	require.NoError(t, err)
	return g
}

// twoGroupGraph has four subjects using only x and y and four using only
// u and v.
func twoGroupGraph(t *testing.T) *bipartite.Graph {
	t.Helper()
	var triples []bipartite.Triple
	for _, s := range []string{"s1", "s2", "s3", "s4"} {
		triples = append(triples, bipartite.Triple{U: s, V: "x", Weight: 3}, bipartite.Triple{U: s, V: "y", Weight: 3})
	}
	for _, s := range []string{"t1", "t2", "t3", "t4"} {
		triples = append(triples, bipartite.Triple{U: s, V: "u", Weight: 3}, bipartite.Triple{U: s, V: "v", Weight: 3})
	}
	g, err := bipartite.FromTriples(triples)
	require.NoError(t, err)
	return g
}

func partition(t *testing.T, g *bipartite.Graph, fixB int) *Result {
	t.Helper()
	opts := DefaultOptions()
	opts.FixB = fixB
	result, err := Partition(context.Background(), g, opts)
	require.NoError(t, err)
	return result
}

func TestDescriptionLength_KnownValues(t *testing.T) {
	g := scenarioGraph(t)

	one, err := DescriptionLength(g, map[string]int{"1": 0, "2": 0, "3": 0, "4": 0})
	require.NoError(t, err)
	assert.InDelta(t, 13.1949, one, 1e-4)

	split, err := DescriptionLength(g, map[string]int{"1": 0, "2": 1, "3": 1, "4": 1})
	require.NoError(t, err)
	assert.InDelta(t, 15.1044, split, 1e-4)

	pairs, err := DescriptionLength(g, map[string]int{"1": 0, "2": 1, "3": 0, "4": 1})
	require.NoError(t, err)
	assert.InDelta(t, 15.9517, pairs, 1e-4)
}

func TestDescriptionLength_InvalidAssignment(t *testing.T) {
	g := scenarioGraph(t)
	tests := []struct {
		name       string
		assignment map[string]int
	}{
		{"missing subject", map[string]int{"1": 0, "2": 0, "3": 0}},
		{"negative block", map[string]int{"1": 0, "2": -1, "3": 0, "4": 0}},
		{"gap in labels", map[string]int{"1": 0, "2": 2, "3": 0, "4": 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DescriptionLength(g, tt.assignment)
			assert.True(t, errs.IsInvalid(err))
		})
	}
}

func TestPartition_BlockSizesCoverSubjects(t *testing.T) {
	g := twoGroupGraph(t)
	for _, fixB := range []int{0, 1, 2, 3, 5, 8} {
		result := partition(t, g, fixB)
		total := 0
		for _, size := range result.BlockSizes() {
			assert.Positive(t, size, "fix_B=%d has an empty block", fixB)
			total += size
		}
		assert.Equal(t, g.NumSubjects(), total)
		assert.Len(t, result.Assignment, g.NumSubjects())
		if fixB > 0 {
			assert.Equal(t, fixB, result.Blocks)
		}
	}
}

func TestPartition_ScenarioFixedTwoBlocks(t *testing.T) {
	g := scenarioGraph(t)
	result := partition(t, g, 2)

	assert.Equal(t, 2, result.Blocks)
	assert.Equal(t, result.Assignment["3"], result.Assignment["4"])
	assert.NotEqual(t, result.Assignment["1"], result.Assignment["3"])

	alternative, err := DescriptionLength(g, map[string]int{"1": 0, "3": 0, "2": 1, "4": 1})
	require.NoError(t, err)
	assert.LessOrEqual(t, result.DescriptionLength, alternative)
	assert.InDelta(t, 15.1044, result.DescriptionLength, 1e-4)
}

func TestPartition_ScenarioUnconstrained(t *testing.T) {
	g := scenarioGraph(t)
	result := partition(t, g, 0)

	assert.Equal(t, 1, result.Blocks)
	assert.InDelta(t, 13.1949, result.DescriptionLength, 1e-4)
	assert.InDelta(t, 1.0, result.CompressionRatio, 1e-12)
	assert.Len(t, result.Trace, 4)
}

func TestPartition_FindsTwoGroups(t *testing.T) {
	g := twoGroupGraph(t)
	result := partition(t, g, 0)

	require.Equal(t, 2, result.Blocks)
	assert.InDelta(t, 52.609, result.DescriptionLength, 1e-3)
	assert.Less(t, result.CompressionRatio, 1.0)

	for _, s := range []string{"s2", "s3", "s4"} {
		assert.Equal(t, result.Assignment["s1"], result.Assignment[s])
	}
	for _, s := range []string{"t2", "t3", "t4"} {
		assert.Equal(t, result.Assignment["t1"], result.Assignment[s])
	}
	assert.NotEqual(t, result.Assignment["s1"], result.Assignment["t1"])
	// blocks are numbered by first subject
	assert.Equal(t, 0, result.Assignment["s1"])
}

func TestPartition_FixedNeverBeatsSearch(t *testing.T) {
	for _, g := range []*bipartite.Graph{scenarioGraph(t), twoGroupGraph(t)} {
		best := partition(t, g, 0)
		for b := 1; b <= g.NumSubjects(); b++ {
			fixed := partition(t, g, b)
			assert.GreaterOrEqual(t, fixed.DescriptionLength, best.DescriptionLength-1e-9, "fix_B=%d", b)
		}
	}
}

func TestPartition_Deterministic(t *testing.T) {
	g := twoGroupGraph(t)
	for _, fixB := range []int{0, 3} {
		first := partition(t, g, fixB)
		second := partition(t, g, fixB)
		assert.Equal(t, first.Assignment, second.Assignment)
		assert.Equal(t, first.DescriptionLength, second.DescriptionLength)
	}
}

func TestPartition_ZeroSubjects(t *testing.T) {
	result := partition(t, bipartite.Empty(), 0)
	assert.Equal(t, 0, result.Blocks)
	assert.Empty(t, result.Assignment)

	result = partition(t, nil, 0)
	assert.Equal(t, 0, result.Blocks)
}

func TestPartition_SingleSubject(t *testing.T) {
	g, err := bipartite.FromTriples([]bipartite.Triple{{U: "s", V: "x", Weight: 2}, {U: "s", V: "y", Weight: 1}})
	require.NoError(t, err)

	result := partition(t, g, 0)
	assert.Equal(t, 1, result.Blocks)
	assert.Equal(t, map[string]int{"s": 0}, result.Assignment)
}

func TestPartition_InvalidFixB(t *testing.T) {
	g := scenarioGraph(t)
	for _, fixB := range []int{-1, 5} {
		opts := DefaultOptions()
		opts.FixB = fixB
		_, err := Partition(context.Background(), g, opts)
		assert.True(t, errs.IsInvalid(err), "fix_B=%d", fixB)
	}
}

func TestPartition_SubgraphsAndObjectLabels(t *testing.T) {
	g := twoGroupGraph(t)
	opts := DefaultOptions()
	opts.FixB = 2
	opts.Subgraphs = true
	opts.ObjectLabels = true

	result, err := Partition(context.Background(), g, opts)
	require.NoError(t, err)
	require.Len(t, result.Subgraphs, 2)

	sBlock := result.Assignment["s1"]
	assert.Equal(t, 4, result.Subgraphs[sBlock].NumSubjects())
	assert.Equal(t, 8, result.Subgraphs[sBlock].NumEdges())
	assert.Equal(t, 0.0, result.Subgraphs[sBlock].Weight("s1", "u"))

	assert.Equal(t, sBlock, result.ObjectBlocks["x"])
	assert.Equal(t, sBlock, result.ObjectBlocks["y"])
	assert.Equal(t, result.Assignment["t1"], result.ObjectBlocks["u"])
}

func TestPartition_MaxBlocksBoundsSearch(t *testing.T) {
	g := twoGroupGraph(t)
	opts := DefaultOptions()
	opts.MaxBlocks = 3

	result, err := Partition(context.Background(), g, opts)
	require.NoError(t, err)
	assert.Len(t, result.Trace, 3)
	assert.Equal(t, 2, result.Blocks)
}

func TestConfig_Options(t *testing.T) {
	config := NewConfig()
	config.Set("partition.restarts", 7)
	config.Set("partition.random_seed", 11)
	config.Set("logging.level", "disabled")

	opts := config.Options()
	assert.Equal(t, 7, opts.Restarts)
	assert.Equal(t, uint64(11), opts.Seed)
	assert.Equal(t, 100, opts.MaxSweeps)
	assert.Equal(t, 3, opts.Patience)
	assert.Equal(t, 0, opts.FixB)
}

// plantedGraph has groups of size subjects each; a group's members
// spread over six objects that no other group uses.
func plantedGraph(t *testing.T, groups, size int) *bipartite.Graph {
	t.Helper()
	var triples []bipartite.Triple
	for gi := 0; gi < groups; gi++ {
		for i := 0; i < size; i++ {
			subject := fmt.Sprintf("g%d-s%02d", gi, i)
			for _, o := range []int{i % 6, (i + 1) % 6} {
				triples = append(triples, bipartite.Triple{
					U:      subject,
					V:      fmt.Sprintf("g%d-o%d", gi, o),
					Weight: float64(1 + i%3),
				})
			}
		}
	}
	g, err := bipartite.FromTriples(triples)
	require.NoError(t, err)
	return g
}

func TestPartition_SearchStopsPastMinimum(t *testing.T) {
	g := plantedGraph(t, 3, 40)
	opts := DefaultOptions()

	result, err := Partition(context.Background(), g, opts)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, result.Blocks, 2)
	assert.Less(t, len(result.Trace), 30)

	last := result.Trace[len(result.Trace)-1].Blocks
	assert.GreaterOrEqual(t, last-result.Blocks, opts.Patience)
	for _, point := range result.Trace {
		assert.GreaterOrEqual(t, point.DescriptionLength, result.DescriptionLength-1e-9)
	}
}

func TestPartition_ZeroPatienceScansEveryBlockCount(t *testing.T) {
	g := twoGroupGraph(t)
	opts := DefaultOptions()
	opts.Patience = 0

	result, err := Partition(context.Background(), g, opts)
	require.NoError(t, err)
	assert.Len(t, result.Trace, g.NumSubjects())
	assert.Equal(t, 2, result.Blocks)
}

func TestPartition_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, fixB := range []int{0, 2} {
		opts := DefaultOptions()
		opts.FixB = fixB
		_, err := Partition(ctx, plantedGraph(t, 2, 10), opts)
		assert.ErrorIs(t, err, context.Canceled, "fix_B=%d", fixB)
	}
}

func TestAgglomerate_LengthsMatchGreedyStarts(t *testing.T) {
	g := plantedGraph(t, 2, 6)
	n := g.NumSubjects()

	tree, err := agglomerate(context.Background(), g)
	require.NoError(t, err)
	require.Len(t, tree.merges, n-1)

	lengths := tree.lengths(n, g.TotalWeight())
	for b := 1; b <= n; b++ {
		start := newState(g, replay(n, tree.merges, b), b)
		assert.InDelta(t, start.descriptionLength(), lengths[b], 1e-6, "B=%d", b)
	}
}

func TestPartition_RejectsOversizedWeights(t *testing.T) {
	g, err := bipartite.FromTriples([]bipartite.Triple{
		{U: "1", V: "a", Weight: 1e300},
		{U: "2", V: "a", Weight: 1},
		{U: "3", V: "b", Weight: 1},
	})
	require.NoError(t, err)

	_, err = Partition(context.Background(), g, DefaultOptions())
	assert.True(t, errs.IsInvalid(err))

	_, err = DescriptionLength(g, map[string]int{"1": 0, "2": 0, "3": 0})
	assert.True(t, errs.IsInvalid(err))
}
