package depend

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileIsEmpty(t *testing.T) {
	src, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	require.NoError(t, err)
	require.Empty(t, src)
}

func TestLoadStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "depend.yaml")
	src := Source{"a.h": {"b.h", "c.h"}}
	require.NoError(t, Store(path, src))

	reloaded, err := Load(path)
	require.NoError(t, err)
	require.ElementsMatch(t, src["a.h"], reloaded["a.h"])
}

func TestCompileResolvesPaths(t *testing.T) {
	src := Source{"a.h": {"b.h"}}
	compiled := Compile("/proj", src)

	_, ok := compiled[filepath.Join("/proj", "a.h")]
	require.True(t, ok)
	_, ok = compiled[filepath.Join("/proj", "a.h")][filepath.Join("/proj", "b.h")]
	require.True(t, ok)
}
