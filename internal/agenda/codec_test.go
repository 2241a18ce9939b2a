package agenda

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleYAML = `
procs:
  compile:
    - gcc
    - -o
    - $out
    - $src
flows:
  build:
    - [compile]
tasks:
  - desc: compile main
    proc: compile
    flows: [build]
    args:
      out: [main.o]
      src: [main.c]
    inputs: [main.c]
    outputs: [main.o]
`

func TestLoadStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agenda.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o644))

	src, err := Load(path)
	require.NoError(t, err)
	require.Len(t, src.Tasks, 1)
	require.Equal(t, "compile", src.Tasks[0].Proc)

	outPath := filepath.Join(dir, "roundtrip.yaml")
	require.NoError(t, Store(outPath, src))

	reloaded, err := Load(outPath)
	require.NoError(t, err)
	require.Equal(t, src.Tasks[0].Proc, reloaded.Tasks[0].Proc)
	require.Equal(t, src.Tasks[0].Desc, reloaded.Tasks[0].Desc)
}

func TestLoadMissingFlowsRejected(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agenda.yaml")
	content := `
procs:
  compile: [gcc]
flows: {}
tasks:
  - desc: no flows
    proc: compile
    args: {}
    inputs: []
    outputs: []
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}
