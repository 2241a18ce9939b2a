// Package cache implements the on-disk persistent store tickle uses to
// remember previously generated files, created folders, task-identity
// recovery across agenda edits, and per-task input digests. It is backed by
// a single embedded bbolt database file, bbolt's own documented use case,
// so that every mutation that matters for crash safety is committed
// atomically, instead of the load-mutate-rewrite-whole-file approach the
// engine used before.
package cache

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	bolt "go.etcd.io/bbolt"
)

// hashesCacheSize bounds the in-memory read-through layer in front of the
// bbolt-backed per-task hash closures. A single invalidation pass visits
// every task's hash entry at least once, often more than once across the
// agenda/depend/source reload tiers of the online driver, so this trades a
// small amount of memory for avoiding repeated disk reads within one pass.
const hashesCacheSize = 1024

var (
	bucketFiles   = []byte("files")
	bucketFolders = []byte("folders")
	bucketRecover = []byte("recover")
	bucketHashes  = []byte("hashes")
)

var allBuckets = [][]byte{bucketFiles, bucketFolders, bucketRecover, bucketHashes}

// Cache is the persistent key/value store described by the data model:
// a set of generated files, a set of created folders, a task-hash to
// task-name recovery map, and a per-task map of input path to digest.
//
// Cache is safe for concurrent use; callers typically hold it for the
// lifetime of the process and call Flush after any batch of mutations that
// must survive a crash.
type Cache struct {
	mu     sync.Mutex
	db     *bolt.DB
	hashes *lru.Cache[string, map[string]string]
}

// Open opens (creating if absent) the bbolt database at path and ensures
// every bucket the cache needs exists.
func Open(path string) (*Cache, error) {
	db, err := bolt.Open(path, 0o644, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening cache %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initializing cache buckets: %w", err)
	}
	hashes, err := lru.New[string, map[string]string](hashesCacheSize)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("constructing hash cache: %w", err)
	}
	return &Cache{db: db, hashes: hashes}, nil
}

// Close releases the underlying database file.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.db.Close()
}

// Flush is a no-op beyond bbolt's own fsync-on-commit guarantee; it exists
// to give callers an explicit checkpoint to call after a batch of
// mutations, matching the shape of the engine's "flush after every state
// change that must survive a crash" discipline.
func (c *Cache) Flush() error {
	return nil
}

// AddFile records path as a file the engine has generated.
func (c *Cache) AddFile(path string) error {
	return c.putSetMember(bucketFiles, path)
}

// HasFile reports whether path was previously recorded via AddFile.
func (c *Cache) HasFile(path string) (bool, error) {
	return c.hasSetMember(bucketFiles, path)
}

// AddFolder records path as a directory the engine has created.
func (c *Cache) AddFolder(path string) error {
	return c.putSetMember(bucketFolders, path)
}

// HasFolder reports whether path was previously recorded via AddFolder.
func (c *Cache) HasFolder(path string) (bool, error) {
	return c.hasSetMember(bucketFolders, path)
}

// Files returns every path recorded via AddFile.
func (c *Cache) Files() ([]string, error) {
	return c.setMembers(bucketFiles)
}

// Folders returns every path recorded via AddFolder.
func (c *Cache) Folders() ([]string, error) {
	return c.setMembers(bucketFolders)
}

func (c *Cache) setMembers(bucket []byte) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	err := c.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).ForEach(func(k, _ []byte) error {
			out = append(out, string(k))
			return nil
		})
	})
	return out, err
}

func (c *Cache) putSetMember(bucket []byte, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Put([]byte(key), []byte{1})
	})
}

func (c *Cache) hasSetMember(bucket []byte, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var found bool
	err := c.db.View(func(tx *bolt.Tx) error {
		found = tx.Bucket(bucket).Get([]byte(key)) != nil
		return nil
	})
	return found, err
}

// Recover returns the previous run's recover map: task content hash to the
// synthetic task name that produced it.
func (c *Cache) Recover() (map[string]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]string)
	err := c.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRecover).ForEach(func(k, v []byte) error {
			out[string(k)] = string(v)
			return nil
		})
	})
	return out, err
}

// SetRecover atomically replaces the recover map with next.
func (c *Cache) SetRecover(next map[string]string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bucketRecover); err != nil {
			return err
		}
		b, err := tx.CreateBucket(bucketRecover)
		if err != nil {
			return err
		}
		for hash, name := range next {
			if err := b.Put([]byte(hash), []byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
}

// Hashes returns the closure of input digests last observed for taskName,
// or nil if no entry exists yet. Reads are served from an in-memory LRU
// ahead of the bbolt bucket, since a single invalidation pass revisits the
// same task's closure across the agenda/depend/source reload tiers.
func (c *Cache) Hashes(taskName string) (map[string]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cached, ok := c.hashes.Get(taskName); ok {
		return cached, nil
	}

	var out map[string]string
	err := c.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketHashes).Get([]byte(taskName))
		if raw == nil {
			return nil
		}
		return json.Unmarshal(raw, &out)
	})
	if err != nil {
		return nil, err
	}
	if out != nil {
		c.hashes.Add(taskName, out)
	}
	return out, nil
}

// SetHashes stores the closure of input digests for taskName.
func (c *Cache) SetHashes(taskName string, hashes map[string]string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, err := json.Marshal(hashes)
	if err != nil {
		return err
	}
	if err := c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketHashes).Put([]byte(taskName), raw)
	}); err != nil {
		return err
	}
	c.hashes.Add(taskName, hashes)
	return nil
}

// DeleteHashes removes any stored digest closure for taskName.
func (c *Cache) DeleteHashes(taskName string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketHashes).Delete([]byte(taskName))
	}); err != nil {
		return err
	}
	c.hashes.Remove(taskName)
	return nil
}
