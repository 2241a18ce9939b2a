package scheduler

import (
	"sort"

	"github.com/soren-n/tickle/internal/digraph"
	"github.com/soren-n/tickle/internal/tickleerrors"
)

// Sequence is an ordered chain of node indices to be run back-to-back by a
// single worker.
type Sequence []int

// Batch is a set of sequences that may run concurrently.
type Batch []Sequence

// Program is the ordered list of batches the evaluator executes; batches
// run strictly in order, sequences within a batch may run in parallel.
type Program []Batch

// Compile produces a Program from the current state of g (which must
// already have had Invalidate run over it). It re-verifies acyclicity,
// computes the alive set, joins alive tasks into sequences, batches those
// sequences per-flow, and combines the per-flow batch orderings with the
// data-dependency graph to produce the final Program.
func Compile(g *digraph.Graph) (Program, error) {
	if hasCycle(g) {
		return nil, &tickleerrors.DependCycle{Nodes: nil}
	}

	aliveSet := computeAlive(g)
	if len(aliveSet) == 0 {
		return Program{}, nil
	}

	liveLeaves := findLiveLeaves(g, aliveSet)
	sequences, seqOf := joinSequences(g, aliveSet, liveLeaves)

	seqDeps := sequenceDeps(g, sequences, seqOf, aliveSet)

	combined := cloneSeqGraph(seqDeps)
	for _, flow := range allFlows(g, aliveSet) {
		batchIndexF := batchIndicesForFlow(g, sequences, seqDeps, flow)
		addConsecutiveBatchEdges(combined, batchIndexF)
	}

	finalIndex := longestPathFromLeaves(combined, len(sequences))

	maxIdx := 0
	for _, idx := range finalIndex {
		if idx > maxIdx {
			maxIdx = idx
		}
	}
	program := make(Program, maxIdx+1)
	for seqIdx, idx := range finalIndex {
		program[idx] = append(program[idx], sequences[seqIdx])
	}
	return program, nil
}

func hasCycle(g *digraph.Graph) bool {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make([]int, len(g.Nodes))
	var visit func(idx int) bool
	visit = func(idx int) bool {
		if color[idx] == black {
			return false
		}
		if color[idx] == gray {
			return true
		}
		color[idx] = gray
		for _, d := range g.Nodes[idx].Deps {
			if visit(d) {
				return true
			}
		}
		color[idx] = black
		return false
	}
	for i := range g.Nodes {
		if color[i] == white {
			if visit(i) {
				return true
			}
		}
	}
	return false
}

// computeAlive returns the set of node indices that are ancestors (via
// Deps) of graph roots (nodes with no Refs) and are both not valid and
// active.
func computeAlive(g *digraph.Graph) map[int]struct{} {
	var roots []int
	for i, n := range g.Nodes {
		if len(n.Refs) == 0 {
			roots = append(roots, i)
		}
	}
	sort.Ints(roots)

	visited := make(map[int]bool, len(g.Nodes))
	alive := make(map[int]struct{})
	worklist := roots
	for len(worklist) > 0 {
		idx := worklist[0]
		worklist = worklist[1:]
		if visited[idx] {
			continue
		}
		visited[idx] = true
		n := g.Nodes[idx]
		if !n.IsValid() && n.IsActive() {
			alive[idx] = struct{}{}
		}
		deps := append([]int(nil), n.Deps...)
		sort.Ints(deps)
		worklist = append(worklist, deps...)
	}
	return alive
}

func findLiveLeaves(g *digraph.Graph, alive map[int]struct{}) []int {
	var leaves []int
	for idx := range alive {
		if len(intersect(g.Nodes[idx].Deps, alive)) == 0 {
			leaves = append(leaves, idx)
		}
	}
	sort.Ints(leaves)
	return leaves
}

func intersect(xs []int, set map[int]struct{}) []int {
	var out []int
	for _, x := range xs {
		if _, ok := set[x]; ok {
			out = append(out, x)
		}
	}
	sort.Ints(out)
	return out
}

// joinSequences extends each alive task into its sole alive dependency's
// sequence when that dependency has exactly one alive dependent and every
// shared flow between the two agrees on stage, starting from the live
// leaves and walking up through Refs.
func joinSequences(g *digraph.Graph, alive map[int]struct{}, liveLeaves []int) ([]Sequence, map[int]int) {
	var sequences []Sequence
	groupOf := make(map[int]int)
	visited := make(map[int]bool, len(alive))

	worklist := append([]int(nil), liveLeaves...)
	for len(worklist) > 0 {
		idx := worklist[0]
		worklist = worklist[1:]
		if visited[idx] {
			continue
		}
		visited[idx] = true

		aliveDeps := intersect(g.Nodes[idx].Deps, alive)
		joined := false
		if len(aliveDeps) == 1 {
			d := aliveDeps[0]
			dAliveRefs := intersect(g.Nodes[d].Refs, alive)
			if len(dAliveRefs) == 1 && sameStageOnSharedFlows(g.Nodes[idx], g.Nodes[d]) {
				if groupIdx, ok := groupOf[d]; ok {
					sequences[groupIdx] = append(sequences[groupIdx], idx)
					groupOf[idx] = groupIdx
					joined = true
				}
			}
		}
		if !joined {
			groupOf[idx] = len(sequences)
			sequences = append(sequences, Sequence{idx})
		}

		refs := intersect(g.Nodes[idx].Refs, alive)
		for _, r := range refs {
			if !visited[r] {
				worklist = append(worklist, r)
			}
		}
	}
	return sequences, groupOf
}

func sameStageOnSharedFlows(a, b *digraph.Node) bool {
	for flow, stage := range a.Flows {
		if bStage, shared := b.Flows[flow]; shared && bStage != stage {
			return false
		}
	}
	return true
}

// sequenceDeps derives sequence-level dependency edges from the underlying
// alive node dependency graph: sequence S depends on sequence D if some
// member of S has an alive dep that is a member of D (D != S).
func sequenceDeps(g *digraph.Graph, sequences []Sequence, seqOf map[int]int, alive map[int]struct{}) [][]int {
	deps := make([]map[int]struct{}, len(sequences))
	for i := range deps {
		deps[i] = make(map[int]struct{})
	}
	for nodeIdx, seqIdx := range seqOf {
		for _, d := range intersect(g.Nodes[nodeIdx].Deps, alive) {
			dSeq := seqOf[d]
			if dSeq != seqIdx {
				deps[seqIdx][dSeq] = struct{}{}
			}
		}
	}
	out := make([][]int, len(sequences))
	for i, set := range deps {
		list := make([]int, 0, len(set))
		for s := range set {
			list = append(list, s)
		}
		sort.Ints(list)
		out[i] = list
	}
	return out
}

func cloneSeqGraph(src [][]int) [][]int {
	out := make([][]int, len(src))
	for i, deps := range src {
		out[i] = append([]int(nil), deps...)
	}
	return out
}

// allFlows returns the sorted set of flow names participated in by any
// alive node.
func allFlows(g *digraph.Graph, alive map[int]struct{}) []string {
	set := make(map[string]struct{})
	for idx := range alive {
		for flow := range g.Nodes[idx].Flows {
			set[flow] = struct{}{}
		}
	}
	flows := make([]string, 0, len(set))
	for f := range set {
		flows = append(flows, f)
	}
	sort.Strings(flows)
	return flows
}

// batchIndicesForFlow computes, for one flow, the batch index of every
// sequence that has at least one member participating in that flow:
// sequences are grouped by stage (the stage of the first member
// participating in the flow), stages are processed in ascending order, and
// within a stage the batch index is 1 + the longest chain of same-stage
// sequence dependencies, offset so that later stages always sort after
// earlier ones.
func batchIndicesForFlow(g *digraph.Graph, sequences []Sequence, seqDeps [][]int, flow string) map[int]int {
	stageOf := make(map[int]int)
	for seqIdx, seq := range sequences {
		for _, nodeIdx := range seq {
			if stage, ok := g.Nodes[nodeIdx].Flows[flow]; ok {
				stageOf[seqIdx] = stage
				break
			}
		}
	}
	if len(stageOf) == 0 {
		return nil
	}

	stages := make(map[int][]int)
	for seqIdx, stage := range stageOf {
		stages[stage] = append(stages[stage], seqIdx)
	}
	stageKeys := make([]int, 0, len(stages))
	for s := range stages {
		stageKeys = append(stageKeys, s)
	}
	sort.Ints(stageKeys)

	result := make(map[int]int, len(stageOf))
	offset := 0
	for _, stage := range stageKeys {
		bucket := stages[stage]
		sort.Ints(bucket)
		inBucket := make(map[int]struct{}, len(bucket))
		for _, s := range bucket {
			inBucket[s] = struct{}{}
		}

		local := make(map[int]int)
		var resolve func(seqIdx int) int
		resolving := make(map[int]bool)
		resolve = func(seqIdx int) int {
			if v, ok := local[seqIdx]; ok {
				return v
			}
			if resolving[seqIdx] {
				return 0
			}
			resolving[seqIdx] = true
			best := -1
			for _, dep := range seqDeps[seqIdx] {
				if _, ok := inBucket[dep]; !ok {
					continue
				}
				if v := resolve(dep); v > best {
					best = v
				}
			}
			local[seqIdx] = best + 1
			return local[seqIdx]
		}

		maxLocal := 0
		for _, s := range bucket {
			v := resolve(s)
			result[s] = offset + v
			if v > maxLocal {
				maxLocal = v
			}
		}
		offset += maxLocal + 1
	}
	return result
}

// addConsecutiveBatchEdges adds, for every pair of sequences whose batch
// index under batchIndexF differs by exactly one, a must-precede edge from
// the later sequence to the earlier one.
func addConsecutiveBatchEdges(combined [][]int, batchIndexF map[int]int) {
	if batchIndexF == nil {
		return
	}
	byIndex := make(map[int][]int)
	for seqIdx, idx := range batchIndexF {
		byIndex[idx] = append(byIndex[idx], seqIdx)
	}
	for idx, later := range byIndex {
		earlier, ok := byIndex[idx-1]
		if !ok {
			continue
		}
		for _, l := range later {
			existing := make(map[int]struct{}, len(combined[l]))
			for _, d := range combined[l] {
				existing[d] = struct{}{}
			}
			for _, e := range earlier {
				if _, dup := existing[e]; dup {
					continue
				}
				combined[l] = append(combined[l], e)
				existing[e] = struct{}{}
			}
		}
	}
}

// longestPathFromLeaves computes, for each sequence index, 1 + the max
// index of its combined-graph dependencies (0 if it has none).
func longestPathFromLeaves(combined [][]int, n int) []int {
	result := make([]int, n)
	done := make([]bool, n)
	resolving := make([]bool, n)

	var resolve func(i int) int
	resolve = func(i int) int {
		if done[i] {
			return result[i]
		}
		if resolving[i] {
			return 0
		}
		resolving[i] = true
		best := -1
		for _, d := range combined[i] {
			if v := resolve(d); v > best {
				best = v
			}
		}
		result[i] = best + 1
		done[i] = true
		return result[i]
	}
	for i := 0; i < n; i++ {
		resolve(i)
	}
	return result
}
