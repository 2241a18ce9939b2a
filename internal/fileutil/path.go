package fileutil

import (
	"context"
	"path/filepath"
	"strings"
	"time"
)

// Resolve joins rel against root if rel is not already absolute, then
// cleans the result. All task inputs/outputs are resolved this way against
// the target directory so that the graph builder and the cache deal
// exclusively in absolute paths.
func Resolve(root, rel string) string {
	if filepath.IsAbs(rel) {
		return filepath.Clean(rel)
	}
	return filepath.Clean(filepath.Join(root, rel))
}

// SafeName converts an arbitrary string into one safe to embed in a single
// path segment.
func SafeName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('_')
		default:
			b.WriteRune('-')
		}
	}
	if b.Len() == 0 {
		return "task"
	}
	return b.String()
}

// WaitForHash blocks, polling at the given interval, until the file at path
// exists and then returns its digest. It returns early with ctx.Err() if
// ctx is canceled. This backs the "hash-wait" suspension point: a worker
// finishing a task must observe the final, fully-written contents of any
// input file a sibling task may still be flushing to disk.
func WaitForHash(ctx context.Context, path string, interval time.Duration) (string, error) {
	for {
		if Exists(path) {
			return Hash(path)
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(interval):
		}
	}
}
