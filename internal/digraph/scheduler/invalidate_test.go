package scheduler

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/soren-n/tickle/internal/cache"
	"github.com/soren-n/tickle/internal/digraph"
	"github.com/soren-n/tickle/internal/logger"
)

func openCache(t *testing.T) *cache.Cache {
	t.Helper()
	c, err := cache.Open(filepath.Join(t.TempDir(), "tickle.cache"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestInvalidateMarksInvalidWhenOutputMissing(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "in.txt")
	require.NoError(t, os.WriteFile(input, []byte("x"), 0o644))
	output := filepath.Join(dir, "out.txt")

	n := &digraph.Node{
		Name:    "task0",
		Inputs:  map[string]struct{}{input: {}},
		Outputs: map[string]struct{}{output: {}},
	}
	g := &digraph.Graph{Nodes: []*digraph.Node{n}}
	c := openCache(t)

	require.NoError(t, Invalidate(g, digraph.Closures{}, c, logger.Noop()))
	require.False(t, n.Valid)
	require.True(t, n.Active)
}

func TestInvalidateStaysValidWhenOutputPresentAndHashUnchanged(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "in.txt")
	require.NoError(t, os.WriteFile(input, []byte("x"), 0o644))
	output := filepath.Join(dir, "out.txt")
	require.NoError(t, os.WriteFile(output, []byte("y"), 0o644))

	n := &digraph.Node{
		Name:    "task0",
		Inputs:  map[string]struct{}{input: {}},
		Outputs: map[string]struct{}{output: {}},
	}
	g := &digraph.Graph{Nodes: []*digraph.Node{n}}
	c := openCache(t)

	// The first pass has no recorded input closure yet, so the node is
	// invalid; it records the closure's digests for the second pass.
	require.NoError(t, Invalidate(g, digraph.Closures{}, c, logger.Noop()))
	require.False(t, n.Valid)

	n.Valid = true
	n.Active = true
	require.NoError(t, Invalidate(g, digraph.Closures{}, c, logger.Noop()))
	require.True(t, n.Valid)
}

func TestInvalidateDetectsInputChange(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "in.txt")
	require.NoError(t, os.WriteFile(input, []byte("x"), 0o644))
	output := filepath.Join(dir, "out.txt")
	require.NoError(t, os.WriteFile(output, []byte("y"), 0o644))

	n := &digraph.Node{
		Name:    "task0",
		Inputs:  map[string]struct{}{input: {}},
		Outputs: map[string]struct{}{output: {}},
	}
	g := &digraph.Graph{Nodes: []*digraph.Node{n}}
	c := openCache(t)

	// First pass: no recorded input closure yet, so the node is invalid.
	require.NoError(t, Invalidate(g, digraph.Closures{}, c, logger.Noop()))
	require.False(t, n.Valid)

	require.NoError(t, os.WriteFile(input, []byte("changed"), 0o644))
	n.Valid = true
	n.Active = true
	require.NoError(t, Invalidate(g, digraph.Closures{}, c, logger.Noop()))
	require.False(t, n.Valid)
}

func TestInvalidateMarksInactiveOnMissingInput(t *testing.T) {
	dir := t.TempDir()
	missing := filepath.Join(dir, "missing.txt")
	output := filepath.Join(dir, "out.txt")

	n := &digraph.Node{
		Name:    "task0",
		Inputs:  map[string]struct{}{missing: {}},
		Outputs: map[string]struct{}{output: {}},
	}
	g := &digraph.Graph{Nodes: []*digraph.Node{n}}
	c := openCache(t)

	require.NoError(t, Invalidate(g, digraph.Closures{}, c, logger.Noop()))
	require.False(t, n.Active)
}

func TestInvalidatePropagatesInvalidityToDependents(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "in.txt")
	require.NoError(t, os.WriteFile(input, []byte("x"), 0o644))
	mid := filepath.Join(dir, "mid.txt")
	out := filepath.Join(dir, "out.txt")
	require.NoError(t, os.WriteFile(out, []byte("z"), 0o644))

	producer := &digraph.Node{
		Name:    "task0",
		Inputs:  map[string]struct{}{input: {}},
		Outputs: map[string]struct{}{mid: {}},
	}
	consumer := &digraph.Node{
		Name:    "task1",
		Inputs:  map[string]struct{}{mid: {}},
		Outputs: map[string]struct{}{out: {}},
	}
	g := &digraph.Graph{Nodes: []*digraph.Node{producer, consumer}}
	g.AddEdge(1, 0)
	c := openCache(t)

	// mid is never produced on disk, so producer is invalid (missing
	// output); consumer must inherit invalidity through propagation.
	require.NoError(t, Invalidate(g, digraph.Closures{}, c, logger.Noop()))
	require.False(t, producer.Valid)
	require.False(t, consumer.Valid)
}
