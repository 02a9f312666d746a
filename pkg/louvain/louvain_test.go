package louvain

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gilchrisn/hina-service/pkg/bipartite"
)

func quietConfig() *Config {
	config := NewConfig()
	config.Set("logging.level", "disabled")
	return config
}

// twoTriangles is two triangles joined by the edge 2-3.
func twoTriangles(t *testing.T) *Graph {
	t.Helper()
	g := NewGraph(6)
	for _, e := range [][2]int{{0, 1}, {1, 2}, {0, 2}, {3, 4}, {4, 5}, {3, 5}, {2, 3}} {
		require.NoError(t, g.AddEdge(e[0], e[1], 1))
	}
	return g
}

func TestGraph_AddEdge(t *testing.T) {
	g := NewGraph(3)
	require.NoError(t, g.AddEdge(0, 1, 2))
	require.NoError(t, g.AddEdge(2, 2, 1))

	assert.Equal(t, 2.0, g.Weight(1, 0))
	assert.Equal(t, 1.0, g.Weight(2, 2))
	assert.Equal(t, 0.0, g.Weight(0, 2))
	assert.Equal(t, []float64{2, 2, 2}, g.Degrees)
	assert.Equal(t, []float64{0, 0, 1}, g.SelfLoops)
	assert.Equal(t, 3.0, g.TotalWeight)

	for _, w := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		assert.Error(t, g.AddEdge(0, 1, w), "weight %v", w)
	}
	assert.Error(t, g.AddEdge(0, 3, 1))
	assert.Equal(t, 3.0, g.TotalWeight)
}

func TestRun_TwoTriangles(t *testing.T) {
	g := twoTriangles(t)
	result, err := Run(context.Background(), g, quietConfig())
	require.NoError(t, err)

	assert.Equal(t, 2, result.NumCommunities)
	c := result.FinalCommunities
	assert.Equal(t, c[0], c[1])
	assert.Equal(t, c[0], c[2])
	assert.Equal(t, c[3], c[4])
	assert.Equal(t, c[3], c[5])
	assert.NotEqual(t, c[0], c[3])
	assert.InDelta(t, 2*(6.0/14-0.25), result.Modularity, 1e-9)
}

func TestModularity_MatchesGonum(t *testing.T) {
	g := twoTriangles(t)
	comm := NewCommunity(g)
	labels := []int{0, 1, 2, 3, 4, 5}
	assert.InDelta(t, Q(g, labels, 1), CalculateModularity(g, comm, 1), 1e-12)

	// move every node of each triangle into one community
	for _, node := range []int{1, 2} {
		_, weights := neighborCommunities(g, comm, node)
		comm.remove(g, node, weights[comm.NodeToCommunity[node]])
		comm.insert(g, node, 0, weights[0])
	}
	for _, node := range []int{4, 5} {
		_, weights := neighborCommunities(g, comm, node)
		comm.remove(g, node, weights[comm.NodeToCommunity[node]])
		comm.insert(g, node, 3, weights[3])
	}
	assert.InDelta(t, Q(g, []int{0, 0, 0, 1, 1, 1}, 1), CalculateModularity(g, comm, 1), 1e-12)
}

func TestRun_Deterministic(t *testing.T) {
	g := twoTriangles(t)
	first, err := Run(context.Background(), g, quietConfig())
	require.NoError(t, err)
	second, err := Run(context.Background(), g, quietConfig())
	require.NoError(t, err)
	assert.Equal(t, first.FinalCommunities, second.FinalCommunities)
}

func TestRun_EdgeCases(t *testing.T) {
	tests := []struct {
		name  string
		graph *Graph
		want  int
	}{
		{"empty", NewGraph(0), 0},
		{"isolated nodes", NewGraph(3), 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Run(context.Background(), tt.graph, quietConfig())
			require.NoError(t, err)
			assert.Equal(t, tt.want, result.NumCommunities)
			assert.Len(t, result.FinalCommunities, tt.graph.NumNodes)
			assert.Equal(t, 0.0, result.Modularity)
		})
	}
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, twoTriangles(t), quietConfig())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestProject(t *testing.T) {
	bg, err := bipartite.FromTriples([]bipartite.Triple{
		{U: "1", V: "a", Weight: 1},
		{U: "1", V: "b", Weight: 2},
		{U: "2", V: "a", Weight: 3},
		{U: "2", V: "b", Weight: 1},
		{U: "3", V: "c", Weight: 1},
	})
	require.NoError(t, err)

	p := Project(bg)
	assert.Equal(t, 3, p.NumNodes)
	// 1*3 over a plus 2*1 over b
	assert.Equal(t, 5.0, p.Weight(0, 1))
	assert.Equal(t, 0.0, p.Weight(0, 2))
	assert.Empty(t, p.Adjacency[2])
	assert.Equal(t, 5.0, p.TotalWeight)

	result, err := Run(context.Background(), p, quietConfig())
	require.NoError(t, err)
	assert.Equal(t, 2, result.NumCommunities)
	assert.Equal(t, result.FinalCommunities[0], result.FinalCommunities[1])
}
