package digraph

import (
	"sort"

	"github.com/soren-n/tickle/internal/agenda"
	"github.com/soren-n/tickle/internal/depend"
	"github.com/soren-n/tickle/internal/tickleerrors"
)

// Closures is the depend-closure result: for each reachable file path, the
// transitive set of paths it depends on.
type Closures map[string]map[string]struct{}

// ComputeClosures builds the file graph (task outputs -> inputs, unioned
// with the depend map), checks it for cycles, and computes the dependency
// closure of every reachable node along with the set of implicit files
// (reachable paths not directly named by any task).
func ComputeClosures(compiled agenda.CompiledAgenda, dependData depend.Compiled) (implicits map[string]struct{}, closures Closures, err error) {
	fileGraph := make(map[string]map[string]struct{})
	explicits := make(map[string]struct{})

	for _, task := range compiled {
		for out := range task.Outputs {
			if fileGraph[out] == nil {
				fileGraph[out] = make(map[string]struct{})
			}
			for in := range task.Inputs {
				fileGraph[out][in] = struct{}{}
			}
			explicits[out] = struct{}{}
		}
		for in := range task.Inputs {
			explicits[in] = struct{}{}
		}
	}
	for src, dsts := range dependData {
		if fileGraph[src] == nil {
			fileGraph[src] = make(map[string]struct{})
		}
		for dst := range dsts {
			fileGraph[src][dst] = struct{}{}
		}
	}

	nodes := make([]string, 0, len(fileGraph))
	seenNode := make(map[string]struct{})
	for _, task := range compiled {
		for out := range task.Outputs {
			if _, ok := seenNode[out]; !ok {
				seenNode[out] = struct{}{}
				nodes = append(nodes, out)
			}
		}
	}
	for src := range dependData {
		if _, ok := seenNode[src]; !ok {
			seenNode[src] = struct{}{}
			nodes = append(nodes, src)
		}
	}
	sort.Strings(nodes)

	if cycleNodes := findCycle(nodes, fileGraph); cycleNodes != nil {
		return nil, nil, &tickleerrors.DependCycle{Nodes: cycleNodes}
	}

	alive := reachable(nodes, fileGraph)
	aliveSet := make(map[string]struct{}, len(alive))
	for _, n := range alive {
		aliveSet[n] = struct{}{}
	}

	refs := inverseAlive(aliveSet, fileGraph)
	order := topologicalFromLeaves(aliveSet, fileGraph, refs)

	closures = make(Closures, len(order))
	for _, src := range order {
		deps, ok := fileGraph[src]
		if !ok {
			closures[src] = map[string]struct{}{}
			continue
		}
		merged := make(map[string]struct{}, len(deps))
		for d := range deps {
			merged[d] = struct{}{}
			for f := range closures[d] {
				merged[f] = struct{}{}
			}
		}
		closures[src] = merged
	}

	implicits = make(map[string]struct{})
	for n := range aliveSet {
		if _, isExplicit := explicits[n]; !isExplicit {
			implicits[n] = struct{}{}
		}
	}

	return implicits, closures, nil
}

func reachable(roots []string, graph map[string]map[string]struct{}) []string {
	var result []string
	seen := make(map[string]struct{})
	worklist := append([]string(nil), roots...)
	for len(worklist) > 0 {
		node := worklist[0]
		worklist = worklist[1:]
		if _, ok := seen[node]; ok {
			continue
		}
		seen[node] = struct{}{}
		result = append(result, node)
		for d := range graph[node] {
			worklist = append(worklist, d)
		}
	}
	return result
}

func inverseAlive(alive map[string]struct{}, graph map[string]map[string]struct{}) map[string]map[string]struct{} {
	refs := make(map[string]map[string]struct{})
	for src, dsts := range graph {
		if _, ok := alive[src]; !ok {
			continue
		}
		for dst := range dsts {
			if _, ok := alive[dst]; !ok {
				continue
			}
			if refs[dst] == nil {
				refs[dst] = make(map[string]struct{})
			}
			refs[dst][src] = struct{}{}
		}
	}
	return refs
}

// topologicalFromLeaves orders alive nodes so that every node's dependency
// closure can be computed from already-processed entries: it starts from
// leaves of the alive subgraph (nodes with no, or only dead, dependencies)
// and walks up via refs.
func topologicalFromLeaves(alive map[string]struct{}, deps, refs map[string]map[string]struct{}) []string {
	var leaves []string
	for n := range alive {
		isLeaf := true
		for d := range deps[n] {
			if _, ok := alive[d]; ok {
				isLeaf = false
				break
			}
		}
		if isLeaf {
			leaves = append(leaves, n)
		}
	}
	sort.Strings(leaves)

	var result []string
	seen := make(map[string]struct{})
	worklist := leaves
	for len(worklist) > 0 {
		node := worklist[0]
		worklist = worklist[1:]
		if _, ok := seen[node]; ok {
			continue
		}
		readyDeps := true
		for d := range deps[node] {
			if _, inAlive := alive[d]; !inAlive {
				continue
			}
			if _, done := seen[d]; !done {
				readyDeps = false
				break
			}
		}
		if !readyDeps {
			continue
		}
		seen[node] = struct{}{}
		result = append(result, node)
		refNodes := make([]string, 0, len(refs[node]))
		for r := range refs[node] {
			refNodes = append(refNodes, r)
		}
		sort.Strings(refNodes)
		worklist = append(worklist, refNodes...)
	}
	return result
}

// findCycle returns the offending node set if the file graph contains a
// cycle reachable from nodes, or nil if it is acyclic.
func findCycle(nodes []string, graph map[string]map[string]struct{}) []string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int)
	var cyclePath []string

	var visit func(node string, path []string) bool
	visit = func(node string, path []string) bool {
		if color[node] == black {
			return false
		}
		if color[node] == gray {
			cyclePath = append([]string(nil), path...)
			cyclePath = append(cyclePath, node)
			return true
		}
		color[node] = gray
		nextPath := append(path, node)
		for d := range graph[node] {
			if visit(d, nextPath) {
				return true
			}
		}
		color[node] = black
		return false
	}

	for _, n := range nodes {
		if color[n] == white {
			if visit(n, nil) {
				return cyclePath
			}
		}
	}
	return nil
}
