package object

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"hash"
	"io"
	"sync"

	"golang.org/x/sync/errgroup"
)

var hashConstructors = map[string]func() hash.Hash{
	"md5":    md5.New,
	"sha1":   sha1.New,
	"sha256": sha256.New,
	"sha512": sha512.New,
}

// HashAll reads r to completion, optionally tee-ing every chunk to w (used
// by the object store writer to stream to a temp file while hashing), and
// returns the byte count plus a lowercase hex digest per algorithm (md5,
// sha1, sha256, sha512). The four digests are computed concurrently via
// golang.org/x/sync/errgroup, one goroutine per algorithm reading from its
// own pipe fed by a single io.MultiWriter fan-out.
func HashAll(r io.Reader, w io.Writer) (uint64, map[string]string, error) {
	pipeWriters := make([]*io.PipeWriter, 0, len(hashConstructors))
	fanoutTargets := make([]io.Writer, 0, len(hashConstructors)+1)

	var g errgroup.Group
	var mu sync.Mutex
	sums := make(map[string][]byte, len(hashConstructors))

	for algo, newHash := range hashConstructors {
		pr, pw := io.Pipe()
		pipeWriters = append(pipeWriters, pw)
		fanoutTargets = append(fanoutTargets, pw)

		algo, newHash, pr := algo, newHash, pr
		g.Go(func() error {
			h := newHash()
			if _, err := io.Copy(h, pr); err != nil {
				return err
			}
			sum := h.Sum(nil)
			mu.Lock()
			sums[algo] = sum
			mu.Unlock()
			return nil
		})
	}
	if w != nil {
		fanoutTargets = append(fanoutTargets, w)
	}
	fanout := io.MultiWriter(fanoutTargets...)

	size, copyErr := io.Copy(fanout, r)
	for _, pw := range pipeWriters {
		pw.Close()
	}
	if err := g.Wait(); err != nil {
		return 0, nil, err
	}
	if copyErr != nil {
		return 0, nil, copyErr
	}

	out := make(map[string]string, len(sums))
	for algo, sum := range sums {
		out[algo] = hex.EncodeToString(sum)
	}
	return uint64(size), out, nil
}
