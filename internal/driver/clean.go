package driver

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/soren-n/tickle/internal/cache"
	"github.com/soren-n/tickle/internal/logger"
)

// Clean removes every file and folder the cache recorded as
// engine-generated, then removes the cache itself. Files are removed in
// reverse lexical order and folders only if empty, so a generated
// directory tree collapses cleanly without disturbing anything the
// engine did not create.
func Clean(cfg Config, log logger.Logger) error {
	if _, err := os.Stat(cfg.CachePath); os.IsNotExist(err) {
		return nil
	}

	c, err := cache.Open(cfg.CachePath)
	if err != nil {
		return err
	}

	files, err := c.Files()
	if err != nil {
		_ = c.Close()
		return err
	}
	sort.Sort(sort.Reverse(sort.StringSlice(files)))
	for _, path := range files {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		log.Info("removing file", "path", relOrAbs(cfg.TargetDir, path))
		if err := os.Remove(path); err != nil {
			_ = c.Close()
			return err
		}
	}

	folders, err := c.Folders()
	if err != nil {
		_ = c.Close()
		return err
	}
	sort.Sort(sort.Reverse(sort.StringSlice(folders)))
	for _, dir := range folders {
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			continue
		}
		log.Info("removing folder", "path", relOrAbs(cfg.TargetDir, dir))
		if err := os.Remove(dir); err != nil {
			_ = c.Close()
			return err
		}
	}

	if err := c.Close(); err != nil {
		return err
	}
	log.Info("removing cache", "path", relOrAbs(cfg.TargetDir, cfg.CachePath))
	return os.Remove(cfg.CachePath)
}

func relOrAbs(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return path
	}
	return rel
}
