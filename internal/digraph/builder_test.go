package digraph

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/soren-n/tickle/internal/agenda"
	"github.com/soren-n/tickle/internal/cache"
	"github.com/soren-n/tickle/internal/logger"
)

func openTestCache(t *testing.T) *cache.Cache {
	t.Helper()
	c, err := cache.Open(filepath.Join(t.TempDir(), "tickle.cache"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestBuildAddsEdgeBetweenProducerAndConsumer(t *testing.T) {
	dir := t.TempDir()
	mid := filepath.Join(dir, "mid.txt")
	compiled := agenda.CompiledAgenda{
		{Description: "consume", Inputs: map[string]struct{}{mid: {}}, Outputs: map[string]struct{}{}},
		{Description: "produce", Inputs: map[string]struct{}{}, Outputs: map[string]struct{}{mid: {}}},
	}

	g, err := Build(dir, compiled, openTestCache(t), logger.Noop())
	require.NoError(t, err)
	require.Len(t, g.Nodes, 2)
	require.Equal(t, []int{1}, g.Nodes[0].Deps)
	require.Equal(t, []int{0}, g.Nodes[1].Refs)
}

func TestBuildRejectsStageOrderViolation(t *testing.T) {
	dir := t.TempDir()
	mid := filepath.Join(dir, "mid.txt")
	compiled := agenda.CompiledAgenda{
		{
			Description: "consume", Flows: map[string]int{"build": 0},
			Inputs: map[string]struct{}{mid: {}}, Outputs: map[string]struct{}{},
		},
		{
			Description: "produce", Flows: map[string]int{"build": 1},
			Inputs: map[string]struct{}{}, Outputs: map[string]struct{}{mid: {}},
		},
	}

	_, err := Build(dir, compiled, openTestCache(t), logger.Noop())
	require.Error(t, err)
}

func TestBuildWorkClosureRunsCommandAndCreatesDirs(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "sub", "out.txt")
	compiled := agenda.CompiledAgenda{
		{
			Description: "touch",
			Command:     []string{"touch", out},
			Inputs:      map[string]struct{}{},
			Outputs:     map[string]struct{}{out: {}},
		},
	}

	c := openTestCache(t)
	g, err := Build(dir, compiled, c, logger.Noop())
	require.NoError(t, err)

	_, err = g.Nodes[0].Work()
	require.NoError(t, err)

	_, statErr := os.Stat(out)
	require.NoError(t, statErr)

	hasFile, err := c.HasFile(out)
	require.NoError(t, err)
	require.True(t, hasFile)

	hasFolder, err := c.HasFolder(filepath.Dir(out))
	require.NoError(t, err)
	require.True(t, hasFolder)
}

func TestBuildWorkClosureReportsTaskError(t *testing.T) {
	dir := t.TempDir()
	compiled := agenda.CompiledAgenda{
		{
			Description: "fail",
			Command:     []string{"sh", "-c", "exit 1"},
			Inputs:      map[string]struct{}{},
			Outputs:     map[string]struct{}{},
		},
	}

	g, err := Build(dir, compiled, openTestCache(t), logger.Noop())
	require.NoError(t, err)

	_, err = g.Nodes[0].Work()
	require.Error(t, err)
}
