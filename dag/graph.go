package dag

import "fmt"

// graph is the dependency graph over task identifiers: a bijection
// between opaque task ids and contiguous node indices, plus an adjacency
// structure supporting edge insertion, O(1) out-degree lookup, and
// deterministic topological sort.
//
// Grounded on the inDegree/graph adjacency maps built inline in
// dag_scheduler.go's NewDAGScheduler, generalized here into the
// standalone ADT the spec requires (index<->id bijection, topo_sort with
// deterministic tie-breaking, self-loop detection).
type graph struct {
	idToIndex map[string]int
	indexToID []string

	// adjacency[i] holds the distinct successor indices of node i, in the
	// order first observed.
	adjacency [][]int
	// seenEdge deduplicates repeated edges so out-degree counts distinct
	// successors, as the spec requires.
	seenEdge []map[int]bool
}

func newGraph() *graph {
	return &graph{idToIndex: make(map[string]int)}
}

// setSize pre-sizes the node storage for n nodes.
func (g *graph) setSize(n int) {
	g.indexToID = make([]string, 0, n)
	g.adjacency = make([][]int, 0, n)
	g.seenEdge = make([]map[int]bool, 0, n)
}

// addNode records id, assigning it the next contiguous index. It returns
// an error if id was already added.
func (g *graph) addNode(id string) error {
	if _, ok := g.idToIndex[id]; ok {
		return fmt.Errorf("node %q already present", id)
	}
	idx := len(g.indexToID)
	g.idToIndex[id] = idx
	g.indexToID = append(g.indexToID, id)
	g.adjacency = append(g.adjacency, nil)
	g.seenEdge = append(g.seenEdge, make(map[int]bool))
	return nil
}

// addEdge records src->dst. Duplicate edges are folded into one for
// out-degree counting, but never rejected - the spec allows duplicates.
func (g *graph) addEdge(src, dst int) {
	if g.seenEdge[src][dst] {
		return
	}
	g.seenEdge[src][dst] = true
	g.adjacency[src] = append(g.adjacency[src], dst)
}

// indexOf returns the node index for id, if present.
func (g *graph) indexOf(id string) (int, bool) {
	idx, ok := g.idToIndex[id]
	return idx, ok
}

// idOf returns the task id for a node index.
func (g *graph) idOf(idx int) string {
	return g.indexToID[idx]
}

// outDegreeByIndex returns the number of distinct direct successors of
// the node at idx.
func (g *graph) outDegreeByIndex(idx int) int {
	return len(g.adjacency[idx])
}

// outDegree returns the number of distinct direct successors of id.
func (g *graph) outDegree(id string) int {
	idx, ok := g.indexOf(id)
	if !ok {
		return 0
	}
	return g.outDegreeByIndex(idx)
}

// topoSort returns a topological order of node indices, or (nil, false)
// if the graph contains a cycle (including a self-loop). Kahn's
// algorithm is used with deterministic tie-breaking: among nodes whose
// in-degree has just reached zero, the one with the smallest node index
// (i.e. the order nodes were added in) is visited first.
func (g *graph) topoSort() ([]int, bool) {
	n := len(g.indexToID)
	inDegree := make([]int, n)
	for _, succs := range g.adjacency {
		for _, dst := range succs {
			inDegree[dst]++
		}
	}

	// A sorted-by-index min-queue: ready is seeded in ascending index
	// order and every newly ready node is put in its sorted position by
	// insertSorted, so taking the head always yields the smallest ready
	// index - the same order a min-heap gives, without the extra
	// structure.
	ready := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if inDegree[i] == 0 {
			ready = append(ready, i)
		}
	}

	order := make([]int, 0, n)
	for len(ready) > 0 {
		idx := ready[0]
		ready = ready[1:]
		order = append(order, idx)

		for _, dst := range g.adjacency[idx] {
			inDegree[dst]--
			if inDegree[dst] == 0 {
				ready = insertSorted(ready, dst)
			}
		}
	}

	if len(order) != n {
		return nil, false
	}
	return order, true
}

// insertSorted inserts v into a slice kept sorted in ascending order,
// preserving the deterministic "ascending node index" tie-break rule
// even when several nodes become ready in the same round.
func insertSorted(s []int, v int) []int {
	i := 0
	for i < len(s) && s[i] < v {
		i++
	}
	s = append(s, 0)
	copy(s[i+1:], s[i:])
	s[i] = v
	return s
}
