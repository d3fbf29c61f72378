package tmatrix

import (
	"sort"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// countGraph returns the directed graph with an edge i->j wherever C[i,j] > 0
// and i != j.  Every state is a node, including states without counts.
func countGraph(C []float64, n int) *simple.DirectedGraph {

	g := simple.NewDirectedGraph()
	for i := 0; i < n; i++ {
		g.AddNode(simple.Node(i))
	}

	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i != j && C[i*n+j] > 0 {
				g.SetEdge(simple.Edge{F: simple.Node(i), T: simple.Node(j)})
			}
		}
	}

	return g
}

// ConnectedSets returns the strongly connected components of the directed
// graph induced by the positive off-diagonal entries of the n x n matrix C.
// The sets are sorted by decreasing size, and each set is sorted
// ascending.
func ConnectedSets(C []float64, n int) [][]int {

	g := countGraph(C, n)
	sccs := topo.TarjanSCC(g)

	sets := make([][]int, 0, len(sccs))
	for _, scc := range sccs {
		set := nodeIDs(scc)
		sort.Ints(set)
		sets = append(sets, set)
	}

	sort.SliceStable(sets, func(i, j int) bool {
		if len(sets[i]) != len(sets[j]) {
			return len(sets[i]) > len(sets[j])
		}
		return sets[i][0] < sets[j][0]
	})

	return sets
}

// IsConnected returns true if the n x n count matrix C is strongly connected
// under directed reachability, i.e. every state can reach every other state
// through transitions with positive counts.
func IsConnected(C []float64, n int) bool {
	if n <= 1 {
		return true
	}
	return len(ConnectedSets(C, n)) == 1
}

// ClosedSets returns the strongly connected components of C that have no
// transitions with positive counts leaving them.
func ClosedSets(C []float64, n int) [][]int {

	var closed [][]int
	for _, set := range ConnectedSets(C, n) {
		in := make(map[int]bool, len(set))
		for _, i := range set {
			in[i] = true
		}

		leaves := false
		for _, i := range set {
			for j := 0; j < n; j++ {
				if !in[j] && C[i*n+j] > 0 {
					leaves = true
					break
				}
			}
			if leaves {
				break
			}
		}

		if !leaves {
			closed = append(closed, set)
		}
	}

	return closed
}

func nodeIDs(nodes []graph.Node) []int {
	ids := make([]int, len(nodes))
	for k, nd := range nodes {
		ids[k] = int(nd.ID())
	}
	return ids
}
