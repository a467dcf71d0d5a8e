// Package objectstore implements the content-addressed filesystem store
// shared by every worker that produces a new object: write to a randomly
// named temp file while hashing, then atomically rename to the object's
// SHA-256 hex digest. Workers, not the grapher or director, are the ones
// writing objects; this library carries the shared hashing/write algorithm
// they all use, and the grapher consults it read-only.
package objectstore

import (
	"crypto/rand"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/contextal/workgraph/internal/object"
)

// Store writes content-addressed blobs under a single shared directory.
type Store struct {
	path string
}

// New returns a Store rooted at path. The directory must already exist.
func New(path string) *Store {
	return &Store{path: path}
}

// WriteResult describes a successfully stored object.
type WriteResult struct {
	ObjectID string
	Size     uint64
	Hashes   map[string]string
}

// Write streams r into the store. It opens a temp file with a random
// 32-character suffix via O_EXCL (tolerating name collisions by retrying),
// computes all four digests while copying, and atomically renames the temp
// file to its final, content-addressed path. On any error the temp file is
// removed. A second writer of identical content simply renames over the
// same destination path — this is safe because the content (and therefore
// every byte of the destination) is, by construction, identical.
func (s *Store) Write(r io.Reader) (WriteResult, error) {
	tmpPath, tmpFile, err := s.mktemp()
	if err != nil {
		return WriteResult{}, fmt.Errorf("objectstore: %w", err)
	}

	size, hashes, hashErr := object.HashAll(r, tmpFile)
	closeErr := tmpFile.Close()
	if hashErr != nil {
		os.Remove(tmpPath)
		return WriteResult{}, fmt.Errorf("objectstore: hash and copy: %w", hashErr)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return WriteResult{}, fmt.Errorf("objectstore: close temp file: %w", closeErr)
	}

	objectID := hashes[object.ObjectIDHashType]
	finalPath := filepath.Join(s.path, objectID)
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return WriteResult{}, fmt.Errorf("objectstore: rename %q to %q: %w", tmpPath, finalPath, err)
	}

	return WriteResult{ObjectID: objectID, Size: size, Hashes: hashes}, nil
}

// Path returns the final on-disk path for a given object ID, without
// verifying the object exists.
func (s *Store) Path(objectID string) string {
	return filepath.Join(s.path, objectID)
}

func (s *Store) mktemp() (string, *os.File, error) {
	for {
		name := filepath.Join(s.path, randomString(32)+".tmp")
		f, err := os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return name, f, nil
		}
		if os.IsExist(err) {
			continue
		}
		return "", nil, fmt.Errorf("create temp object %q: %w", name, err)
	}
}

const randomStringAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// randomString returns a random alphanumeric string of length n, used for
// temp file name suffixes. Collisions are tolerated by mktemp's retry loop,
// so this does not need to be cryptographically unpredictable, only
// well distributed; it uses crypto/rand for a comfortable safety margin.
func randomString(n int) string {
	buf := make([]byte, n)
	_, _ = rand.Read(buf)
	out := make([]byte, n)
	for i, b := range buf {
		out[i] = randomStringAlphabet[int(b)%len(randomStringAlphabet)]
	}
	return string(out)
}
