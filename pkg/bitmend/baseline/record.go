package baseline

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jamesainslie/bitmend/pkg/bitmend/hasher"
	"github.com/jamesainslie/bitmend/pkg/bitmend/types"
)

// RecordSize is the encoded length of a FileRecord.
const RecordSize = 16

// FileRecord is the baseline fingerprint of one file: the digest of its full
// content as of Modified.
type FileRecord struct {
	Digest   hasher.Digest
	Modified time.Time
}

// NewRecord builds a record from a digest and the FileInfo observed on the
// same open handle.
func NewRecord(d hasher.Digest, info os.FileInfo) FileRecord {
	return FileRecord{Digest: d, Modified: info.ModTime()}
}

// Encode serializes the record as digest | UnixNano, both big-endian.
func (r FileRecord) Encode() []byte {
	buf := make([]byte, RecordSize)
	binary.BigEndian.PutUint64(buf[:8], uint64(r.Digest))
	binary.BigEndian.PutUint64(buf[8:], uint64(r.Modified.UnixNano()))
	return buf
}

// Decode deserializes data into the record. Any length other than
// RecordSize is a serialization error.
func (r *FileRecord) Decode(data []byte) error {
	if len(data) != RecordSize {
		return fmt.Errorf("%w: record is %d bytes, want %d", types.ErrSerialization, len(data), RecordSize)
	}
	r.Digest = hasher.Digest(binary.BigEndian.Uint64(data[:8]))
	r.Modified = time.Unix(0, int64(binary.BigEndian.Uint64(data[8:])))
	return nil
}

// Normalize returns the key form of path: absolute and cleaned. A scan of
// "." and a fix of "./a.txt" address the same entry.
func Normalize(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("%w: resolve %s: %w", types.ErrIO, path, err)
	}
	return abs, nil
}
