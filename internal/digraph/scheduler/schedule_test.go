package scheduler

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/soren-n/tickle/internal/digraph"
)

func node(name string, flows map[string]int, valid, active bool) *digraph.Node {
	return &digraph.Node{
		Name:    name,
		Flows:   flows,
		Valid:   valid,
		Active:  active,
		Inputs:  map[string]struct{}{},
		Outputs: map[string]struct{}{},
	}
}

func TestCompileEmptyWhenEverythingValid(t *testing.T) {
	a := node("a", nil, true, true)
	b := node("b", nil, true, true)
	g := &digraph.Graph{Nodes: []*digraph.Node{a, b}}
	g.AddEdge(1, 0) // b depends on a

	program, err := Compile(g)
	require.NoError(t, err)
	require.Empty(t, program)
}

func TestCompileNoSharedFlowJoinsIntoOneSequence(t *testing.T) {
	// a and b share no flow, so their direct data edge is free to collapse
	// into a single sequence: no stage-ordering information is lost.
	a := node("a", nil, false, true)
	b := node("b", nil, false, true)
	g := &digraph.Graph{Nodes: []*digraph.Node{a, b}}
	g.AddEdge(1, 0) // b depends on a

	program, err := Compile(g)
	require.NoError(t, err)
	require.Len(t, program, 1)
	require.Len(t, program[0], 1)
	require.Equal(t, Sequence{0, 1}, program[0][0])
}

func TestCompileSharedFlowDifferentStagesDoNotJoin(t *testing.T) {
	// a and b share flow "build" at different stages: the stage-ordering
	// invariant on their edge forces unequal stages, so they must NOT be
	// collapsed into one sequence (that would erase the per-stage batch
	// boundary between them).
	a := node("a", map[string]int{"build": 0}, false, true)
	b := node("b", map[string]int{"build": 1}, false, true)
	g := &digraph.Graph{Nodes: []*digraph.Node{a, b}}
	g.AddEdge(1, 0) // b (stage 1) depends on a (stage 0)

	program, err := Compile(g)
	require.NoError(t, err)

	require.Len(t, program, 2)
	require.Equal(t, Sequence{0}, program[0][0])
	require.Equal(t, Sequence{1}, program[1][0])
}

func TestCompileDiamondKeepsBranchesSeparate(t *testing.T) {
	// a <- b, a <- c, b and c both <- d : a depends on b and c; b,c depend on d.
	a := node("a", nil, false, true)
	b := node("b", nil, false, true)
	c := node("c", nil, false, true)
	d := node("d", nil, false, true)
	g := &digraph.Graph{Nodes: []*digraph.Node{a, b, c, d}}
	g.AddEdge(0, 1) // a depends on b
	g.AddEdge(0, 2) // a depends on c
	g.AddEdge(1, 3) // b depends on d
	g.AddEdge(2, 3) // c depends on d

	program, err := Compile(g)
	require.NoError(t, err)

	// d must be in the first batch, a in the last; b and c should be
	// schedulable concurrently (since a has two alive deps, a does not
	// join either branch's sequence).
	require.True(t, len(program) >= 2)
	lastBatch := program[len(program)-1]
	found := false
	for _, seq := range lastBatch {
		for _, idx := range seq {
			if idx == 0 {
				found = true
			}
		}
	}
	require.True(t, found)
}

func TestCompileInactiveNodeExcludedFromAlive(t *testing.T) {
	a := node("a", nil, false, false)
	b := node("b", nil, false, true)
	g := &digraph.Graph{Nodes: []*digraph.Node{a, b}}
	g.AddEdge(1, 0)

	program, err := Compile(g)
	require.NoError(t, err)
	for _, batch := range program {
		for _, seq := range batch {
			for _, idx := range seq {
				require.NotEqual(t, 0, idx)
			}
		}
	}
}
