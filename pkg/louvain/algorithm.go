// Package louvain maximizes modularity with the Louvain method. It is the
// cheaper clustering objective, run on the one-mode projection of a
// bipartite graph onto its subjects.
package louvain

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/community"
	"gonum.org/v1/gonum/graph/simple"
)

// Result represents the algorithm output
type Result struct {
	Levels []LevelInfo `json:"levels"`
	// FinalCommunities[i] is the community of original node i, numbered
	// 0..NumCommunities-1 in order of first node.
	FinalCommunities []int      `json:"final_communities"`
	NumCommunities   int        `json:"num_communities"`
	Modularity       float64    `json:"modularity"`
	NumLevels        int        `json:"num_levels"`
	Statistics       Statistics `json:"statistics"`
}

// LevelInfo contains information about each hierarchical level
type LevelInfo struct {
	Level          int     `json:"level"`
	Nodes          int     `json:"nodes"`
	NumCommunities int     `json:"num_communities"`
	Modularity     float64 `json:"modularity"`
	NumMoves       int     `json:"num_moves"`
	RuntimeMS      int64   `json:"runtime_ms"`
}

// Statistics contains algorithm performance metrics
type Statistics struct {
	TotalMoves int   `json:"total_moves"`
	RuntimeMS  int64 `json:"runtime_ms"`
}

// Community represents the state of communities on one level
type Community struct {
	NodeToCommunity          []int     // community of node i
	CommunitySizes           []int     // number of nodes in community c
	CommunityWeights         []float64 // total degree of community c
	CommunityInternalWeights []float64 // twice the internal edge weight of community c
}

// NewCommunity initializes each node in its own community
func NewCommunity(graph *Graph) *Community {
	n := graph.NumNodes
	comm := &Community{
		NodeToCommunity:          make([]int, n),
		CommunitySizes:           make([]int, n),
		CommunityWeights:         make([]float64, n),
		CommunityInternalWeights: make([]float64, n),
	}
	for i := 0; i < n; i++ {
		comm.NodeToCommunity[i] = i
		comm.CommunitySizes[i] = 1
		comm.CommunityWeights[i] = graph.Degrees[i]
		comm.CommunityInternalWeights[i] = graph.SelfLoops[i] * 2
	}
	return comm
}

// CalculateModularity computes Newman's modularity at the given resolution
func CalculateModularity(graph *Graph, comm *Community, resolution float64) float64 {
	if graph.TotalWeight == 0 {
		return 0.0
	}

	modularity := 0.0
	m2 := 2.0 * graph.TotalWeight
	for c := range comm.CommunitySizes {
		if comm.CommunitySizes[c] == 0 {
			continue
		}
		total := comm.CommunityWeights[c]
		modularity += comm.CommunityInternalWeights[c]/m2 - resolution*(total/m2)*(total/m2)
	}
	return modularity
}

// modularityGain is the gain, scaled by m, of inserting an isolated node
// of degree k into a community of total degree commTotal that it reaches
// with edgeWeight.
func modularityGain(graph *Graph, node int, commTotal, edgeWeight, resolution float64) float64 {
	return edgeWeight - resolution*graph.Degrees[node]*commTotal/(2.0*graph.TotalWeight)
}

func (comm *Community) remove(graph *Graph, node int, edgeWeight float64) {
	c := comm.NodeToCommunity[node]
	comm.CommunitySizes[c]--
	comm.CommunityWeights[c] -= graph.Degrees[node]
	comm.CommunityInternalWeights[c] -= 2*edgeWeight + 2*graph.SelfLoops[node]
	comm.NodeToCommunity[node] = -1
}

func (comm *Community) insert(graph *Graph, node, c int, edgeWeight float64) {
	comm.CommunitySizes[c]++
	comm.CommunityWeights[c] += graph.Degrees[node]
	comm.CommunityInternalWeights[c] += 2*edgeWeight + 2*graph.SelfLoops[node]
	comm.NodeToCommunity[node] = c
}

// neighborCommunities returns the communities adjacent to node, in order
// of first neighbor, with the edge weight towards each. Self-loops are
// excluded.
func neighborCommunities(graph *Graph, comm *Community, node int) ([]int, map[int]float64) {
	weights := make(map[int]float64)
	var order []int
	neighbors, edgeWeights := graph.Adjacency[node], graph.Weights[node]
	for i, neighbor := range neighbors {
		if neighbor == node {
			continue
		}
		c := comm.NodeToCommunity[neighbor]
		if _, ok := weights[c]; !ok {
			order = append(order, c)
		}
		weights[c] += edgeWeights[i]
	}
	return order, weights
}

// OneLevel performs one level of local optimization
func OneLevel(graph *Graph, comm *Community, config *Config, rng *rand.Rand, logger zerolog.Logger) (bool, int, error) {
	improvement := false
	totalMoves := 0
	resolution := config.Resolution()

	nodes := make([]int, graph.NumNodes)
	for i := range nodes {
		nodes[i] = i
	}

	for iteration := 0; iteration < config.MaxIterations(); iteration++ {
		iterationMoves := 0
		rng.Shuffle(len(nodes), func(i, j int) { nodes[i], nodes[j] = nodes[j], nodes[i] })

		for _, node := range nodes {
			oldComm := comm.NodeToCommunity[node]
			order, weights := neighborCommunities(graph, comm, node)

			comm.remove(graph, node, weights[oldComm])

			bestComm := oldComm
			bestGain := modularityGain(graph, node, comm.CommunityWeights[oldComm], weights[oldComm], resolution)
			for _, target := range order {
				if target == oldComm {
					continue
				}
				gain := modularityGain(graph, node, comm.CommunityWeights[target], weights[target], resolution)
				if gain > bestGain+config.MinModularityGain() {
					bestComm = target
					bestGain = gain
				}
			}

			comm.insert(graph, node, bestComm, weights[bestComm])
			if bestComm != oldComm {
				iterationMoves++
				improvement = true
			}
		}

		totalMoves += iterationMoves

		if config.EnableProgress() {
			logger.Debug().
				Int("iteration", iteration+1).
				Int("moves", iterationMoves).
				Float64("modularity", CalculateModularity(graph, comm, resolution)).
				Msg("Local optimization progress")
		}

		if iterationMoves == 0 {
			logger.Debug().Int("iteration", iteration+1).Msg("Converged: no moves")
			break
		}
	}

	return improvement, totalMoves, nil
}

// compact renumbers the non-empty communities 0..k-1 in order of first node.
func compact(comm *Community) ([]int, int) {
	relabel := make(map[int]int)
	labels := make([]int, len(comm.NodeToCommunity))
	for i, c := range comm.NodeToCommunity {
		l, ok := relabel[c]
		if !ok {
			l = len(relabel)
			relabel[c] = l
		}
		labels[i] = l
	}
	return labels, len(relabel)
}

// AggregateGraph creates a super-graph from communities. Internal edges
// become self-loops of the super-node.
func AggregateGraph(graph *Graph, labels []int, numCommunities int, logger zerolog.Logger) (*Graph, error) {
	if numCommunities == 0 {
		return nil, fmt.Errorf("no valid communities found")
	}

	superEdges := make(map[[2]int]float64)
	var order [][2]int
	for u := 0; u < graph.NumNodes; u++ {
		neighbors, weights := graph.Adjacency[u], graph.Weights[u]
		for i, v := range neighbors {
			if v < u {
				continue
			}
			a, b := labels[u], labels[v]
			if a > b {
				a, b = b, a
			}
			key := [2]int{a, b}
			if _, ok := superEdges[key]; !ok {
				order = append(order, key)
			}
			superEdges[key] += weights[i]
		}
	}

	superGraph := NewGraph(numCommunities)
	for _, key := range order {
		if err := superGraph.AddEdge(key[0], key[1], superEdges[key]); err != nil {
			return nil, fmt.Errorf("failed to add super-edge %v: %w", key, err)
		}
	}

	logger.Debug().
		Int("original_nodes", graph.NumNodes).
		Int("super_nodes", numCommunities).
		Msg("Graph aggregation completed")

	return superGraph, nil
}

// Run executes the complete Louvain algorithm
func Run(ctx context.Context, graph *Graph, config *Config) (*Result, error) {
	startTime := time.Now()
	logger := config.CreateLogger()

	if graph == nil {
		return nil, fmt.Errorf("graph is nil")
	}

	logger.Info().
		Int("nodes", graph.NumNodes).
		Float64("total_weight", graph.TotalWeight).
		Msg("Starting Louvain algorithm")

	result := &Result{
		Levels:           make([]LevelInfo, 0),
		FinalCommunities: make([]int, graph.NumNodes),
	}
	for i := range result.FinalCommunities {
		result.FinalCommunities[i] = i
	}
	result.NumCommunities = graph.NumNodes
	if graph.NumNodes == 0 || graph.TotalWeight == 0 {
		result.Statistics.RuntimeMS = time.Since(startTime).Milliseconds()
		return result, nil
	}

	rng := rand.New(rand.NewPCG(config.RandomSeed(), 0))
	resolution := config.Resolution()
	currentGraph := graph

	for level := 0; level < config.MaxLevels(); level++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		levelStart := time.Now()
		comm := NewCommunity(currentGraph)

		improvement, moves, err := OneLevel(currentGraph, comm, config, rng, logger)
		if err != nil {
			return nil, fmt.Errorf("local optimization failed at level %d: %w", level, err)
		}

		labels, numCommunities := compact(comm)
		for i, c := range result.FinalCommunities {
			result.FinalCommunities[i] = labels[c]
		}
		result.NumCommunities = numCommunities

		levelInfo := LevelInfo{
			Level:          level,
			Nodes:          currentGraph.NumNodes,
			NumCommunities: numCommunities,
			Modularity:     CalculateModularity(currentGraph, comm, resolution),
			NumMoves:       moves,
			RuntimeMS:      time.Since(levelStart).Milliseconds(),
		}
		result.Levels = append(result.Levels, levelInfo)
		result.Statistics.TotalMoves += moves

		logger.Debug().
			Int("level", level).
			Int("communities", numCommunities).
			Float64("modularity", levelInfo.Modularity).
			Msg("Level completed")

		if !improvement || numCommunities == 1 || numCommunities >= currentGraph.NumNodes {
			break
		}

		currentGraph, err = AggregateGraph(currentGraph, labels, numCommunities, logger)
		if err != nil {
			return nil, fmt.Errorf("aggregation failed at level %d: %w", level, err)
		}
	}

	result.NumLevels = len(result.Levels)
	result.Modularity = Q(graph, result.FinalCommunities, resolution)
	result.Statistics.RuntimeMS = time.Since(startTime).Milliseconds()

	logger.Info().
		Int("levels", result.NumLevels).
		Int("communities", result.NumCommunities).
		Float64("final_modularity", result.Modularity).
		Int64("runtime_ms", result.Statistics.RuntimeMS).
		Msg("Louvain algorithm completed")

	return result, nil
}

// Q scores a labeling of graph's nodes with gonum's modularity. A graph
// without edges scores 0.
func Q(g *Graph, labels []int, resolution float64) float64 {
	if g.TotalWeight == 0 {
		return 0
	}
	groups := make(map[int][]graph.Node)
	var order []int
	for i, c := range labels {
		if _, ok := groups[c]; !ok {
			order = append(order, c)
		}
		groups[c] = append(groups[c], simple.Node(i))
	}
	communities := make([][]graph.Node, 0, len(order))
	for _, c := range order {
		communities = append(communities, groups[c])
	}
	return community.Q(g.ToGonum(), communities, resolution)
}
