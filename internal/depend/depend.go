// Package depend loads and compiles the optional depend map: a mapping
// from a source file path to a set of further dependency paths. It extends
// the invalidation closure (see internal/digraph) but never spawns tasks of
// its own.
package depend

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"

	"github.com/soren-n/tickle/internal/fileutil"
	"github.com/soren-n/tickle/internal/tickleerrors"
)

// Source is the on-disk depend shape: source path to a list of further
// dependency paths.
type Source map[string][]string

// Compiled is a source path resolved against the target directory, mapped
// to the set of its resolved dependency paths.
type Compiled map[string]map[string]struct{}

// Load reads the depend file at path. A missing file or an empty document
// is treated as an empty depend map, since the depend file is optional.
func Load(path string) (Source, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Source{}, nil
		}
		return nil, fmt.Errorf("reading depend %s: %w", path, err)
	}

	var src Source
	if err := yaml.Unmarshal(raw, &src); err != nil {
		return nil, &tickleerrors.SchemaError{Path: path, Reason: err.Error()}
	}
	if src == nil {
		src = Source{}
	}
	return src, nil
}

// Store serializes src back to YAML at path.
func Store(path string, src Source) error {
	raw, err := yaml.Marshal(src)
	if err != nil {
		return fmt.Errorf("encoding depend: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("writing depend %s: %w", path, err)
	}
	return nil
}

// Compile resolves every path in src against targetDir.
func Compile(targetDir string, src Source) Compiled {
	out := make(Compiled, len(src))
	for srcPath, dsts := range src {
		resolvedSrc := fileutil.Resolve(targetDir, srcPath)
		set := make(map[string]struct{}, len(dsts))
		for _, dst := range dsts {
			set[fileutil.Resolve(targetDir, dst)] = struct{}{}
		}
		out[resolvedSrc] = set
	}
	return out
}
