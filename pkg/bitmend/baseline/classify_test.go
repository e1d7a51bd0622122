package baseline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/jamesainslie/bitmend/pkg/bitmend/types"
)

func TestClassify(t *testing.T) {
	t0 := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	prev := &FileRecord{Digest: 0xaaaa, Modified: t0}

	tests := []struct {
		name  string
		prev  *FileRecord
		fresh FileRecord
		want  types.Outcome
	}{
		{"absent", nil, FileRecord{Digest: 1, Modified: t0}, types.NewlyTracked},
		{"same digest same mtime", prev, FileRecord{Digest: 0xaaaa, Modified: t0}, types.Unchanged},
		{"same digest newer mtime", prev, FileRecord{Digest: 0xaaaa, Modified: t0.Add(time.Hour)}, types.Unchanged},
		{"same digest older mtime", prev, FileRecord{Digest: 0xaaaa, Modified: t0.Add(-time.Hour)}, types.Unchanged},
		{"changed newer mtime", prev, FileRecord{Digest: 0xbbbb, Modified: t0.Add(time.Nanosecond)}, types.UpdatedNewer},
		{"changed equal mtime", prev, FileRecord{Digest: 0xbbbb, Modified: t0}, types.CorruptionDetected},
		{"changed older mtime", prev, FileRecord{Digest: 0xbbbb, Modified: t0.Add(-time.Second)}, types.CorruptionDetected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.prev, tt.fresh))
		})
	}
}

func TestRecordEncodeDecode(t *testing.T) {
	rec := FileRecord{Digest: 0x0123456789abcdef, Modified: time.Unix(1700000000, 123456789)}

	data := rec.Encode()
	assert.Len(t, data, RecordSize)
	assert.Equal(t, byte(0x01), data[0], "digest is big-endian")

	var got FileRecord
	assert.NoError(t, got.Decode(data))
	assert.Equal(t, rec.Digest, got.Digest)
	assert.True(t, rec.Modified.Equal(got.Modified))
}

func TestRecordDecodeRejectsBadLength(t *testing.T) {
	for _, n := range []int{0, 8, 15, 17, 32} {
		var rec FileRecord
		err := rec.Decode(make([]byte, n))
		assert.ErrorIs(t, err, types.ErrSerialization, "length %d", n)
	}
}
