// Package hasher computes the content digests bitmend stores in its
// baseline. Digests are 64-bit xxhash values computed over the full byte
// stream in fixed-size chunks, so memory use does not depend on file size.
package hasher

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/cespare/xxhash/v2"
	"github.com/jamesainslie/bitmend/pkg/bitmend/types"
)

// ChunkSize is the number of bytes read from the source per iteration.
const ChunkSize = 32 * 1024

// Digest is a 64-bit content fingerprint.
type Digest uint64

// String returns the digest as 16 lowercase hex digits.
func (d Digest) String() string {
	return fmt.Sprintf("%016x", uint64(d))
}

// Sum streams r to exhaustion and returns its digest.
func Sum(r io.Reader) (Digest, error) {
	buf := make([]byte, ChunkSize)
	return SumBuffer(r, buf)
}

// SumBuffer is Sum with a caller-supplied read buffer, for hot loops that
// hash many streams back to back. buf must not be empty.
func SumBuffer(r io.Reader, buf []byte) (Digest, error) {
	h := xxhash.New()
	for {
		n, err := r.Read(buf)
		if n > 0 {
			// xxhash.Digest.Write never fails.
			_, _ = h.Write(buf[:n])
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("%w: read: %w", types.ErrIO, err)
		}
	}
	return Digest(h.Sum64()), nil
}

// SumBytes returns the digest of b.
func SumBytes(b []byte) Digest {
	return Digest(xxhash.Sum64(b))
}

// File opens path, hashes its content and returns the digest together with
// the file info observed on the same handle.
func File(path string) (Digest, os.FileInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: open %s: %w", types.ErrIO, path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, nil, fmt.Errorf("%w: stat %s: %w", types.ErrIO, path, err)
	}

	d, err := Sum(f)
	if err != nil {
		return 0, nil, fmt.Errorf("hash %s: %w", path, err)
	}
	return d, info, nil
}
