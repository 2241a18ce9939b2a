package driver

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/soren-n/tickle/internal/agenda"
	"github.com/soren-n/tickle/internal/logger"
)

func waitForFile(t *testing.T, path string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(path); err == nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("file %s never appeared", path)
}

func TestOnlineDriverRunsInitialBuildAndReactsToSourceEdit(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	out := filepath.Join(dir, "out.txt")
	require.NoError(t, os.WriteFile(src, []byte("v1"), 0o644))

	agendaPath := filepath.Join(dir, "agenda.yaml")
	agendaSrc := &agenda.Source{
		Procs: map[string][]string{
			"copy": {"cp", "$src", "$out"},
		},
		Flows: map[string][][]string{
			"build": {{"copy"}},
		},
		Tasks: []agenda.SourceTask{
			{
				Desc:    "copy src to out",
				Proc:    "copy",
				Flows:   []string{"build"},
				Args:    map[string][]string{"src": {src}, "out": {out}},
				Inputs:  []string{src},
				Outputs: []string{out},
			},
		},
	}
	require.NoError(t, agenda.Store(agendaPath, agendaSrc))

	cfg := Config{
		AgendaPath: agendaPath,
		DependPath: writeEmptyDepend(t, dir),
		CachePath:  filepath.Join(dir, "tickle.cache"),
		TargetDir:  dir,
		Workers:    2,
	}

	d, err := NewOnline(cfg, logger.Noop())
	require.NoError(t, err)
	defer func() { _ = d.Close() }()

	done := make(chan error, 1)
	go func() { done <- d.Start() }()

	waitForFile(t, out, 2*time.Second)
	require.NoError(t, os.Remove(out))

	require.NoError(t, os.WriteFile(src, []byte("v2"), 0o644))
	waitForFile(t, out, 2*time.Second)

	require.NoError(t, d.Stop())
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("online driver did not stop")
	}
}
