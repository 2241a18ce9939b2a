// Package fileutil provides byte-level content digests and path helpers
// shared by the agenda compiler, the task graph and the invalidation pass.
package fileutil

import (
	"crypto/md5"
	"encoding/hex"
	"io"
	"os"
)

// MissingDigest is the sentinel digest recorded for a file that does not
// exist. It is distinct from any real digest (an md5 hex string is always
// 32 characters; this sentinel is not a valid hex digest), so equality
// with it unambiguously means "still missing".
const MissingDigest = "<missing>"

// Hash returns the content digest of the file at path, or MissingDigest if
// the file does not exist. Any other I/O error is returned to the caller.
func Hash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return MissingDigest, nil
		}
		return "", err
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Exists reports whether path names a file or directory that currently
// exists.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
