package recovery

import (
	"fmt"
	"io"
)

// BitFlip is a sparse override applied by PatchedReader: the bit at Bit
// (0 = least significant) of the byte at Offset reads inverted.
type BitFlip struct {
	Offset int64
	Bit    uint8
}

// Candidate is a single-bit hypothesis. Candidates order by (Offset, Bit).
type Candidate = BitFlip

// PatchedReader reads an underlying stream with a set of bit flips applied
// on the fly. The underlying data is never modified. It can be reused for
// many candidates via Reset.
type PatchedReader struct {
	r     io.ReadSeeker
	flips []BitFlip
	pos   int64
}

// NewPatchedReader wraps r. With no flips installed it reads r unchanged.
func NewPatchedReader(r io.ReadSeeker) *PatchedReader {
	return &PatchedReader{r: r}
}

// Reset rewinds to the start of the stream and installs flips.
func (p *PatchedReader) Reset(flips ...BitFlip) error {
	if _, err := p.r.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind: %w", err)
	}
	p.flips = flips
	p.pos = 0
	return nil
}

// Read fills b from the underlying reader and inverts every installed flip
// that falls inside the n bytes actually read.
func (p *PatchedReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	end := p.pos + int64(n)
	for _, f := range p.flips {
		if f.Offset >= p.pos && f.Offset < end {
			b[f.Offset-p.pos] ^= 1 << f.Bit
		}
	}
	p.pos = end
	return n, err
}
