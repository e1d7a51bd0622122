package corrupt

import (
	"errors"
	"math/bits"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/bitmend/pkg/bitmend/types"
)

func writeFile(t *testing.T, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "victim.bin")
	require.NoError(t, os.WriteFile(path, content, 0o644))
	return path
}

func TestInjectFlipsOneBitAndKeepsMtime(t *testing.T) {
	original := []byte("the quick brown fox jumps over the lazy dog")
	path := writeFile(t, original)

	mtime := time.Now().Add(-48 * time.Hour).Truncate(time.Second)
	atime := mtime.Add(time.Hour)
	require.NoError(t, os.Chtimes(path, atime, mtime))

	in := &Injector{Rand: rand.New(rand.NewPCG(1, 2))}
	inj, err := in.Inject(path)
	require.NoError(t, err)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Len(t, got, len(original))

	diff := 0
	for i := range got {
		diff += bits.OnesCount8(got[i] ^ original[i])
	}
	assert.Equal(t, 1, diff)
	assert.Equal(t, original[inj.Offset], inj.Before)
	assert.Equal(t, got[inj.Offset], inj.After)
	assert.Equal(t, byte(1)<<inj.Bit, inj.Before^inj.After)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(mtime), "mtime %v, want %v", info.ModTime(), mtime)
}

func TestInjectDeterministicWithSeed(t *testing.T) {
	content := make([]byte, 512)
	a := writeFile(t, content)
	b := writeFile(t, content)

	ia, err := (&Injector{Rand: rand.New(rand.NewPCG(7, 7))}).Inject(a)
	require.NoError(t, err)
	ib, err := (&Injector{Rand: rand.New(rand.NewPCG(7, 7))}).Inject(b)
	require.NoError(t, err)

	assert.Equal(t, ia.Offset, ib.Offset)
	assert.Equal(t, ia.Bit, ib.Bit)
}

func TestInjectDeclined(t *testing.T) {
	original := []byte("keep me")
	path := writeFile(t, original)

	var asked string
	in := &Injector{Confirm: func(p string) (bool, error) {
		asked = p
		return false, nil
	}}

	_, err := in.Inject(path)
	assert.ErrorIs(t, err, ErrDeclined)
	assert.Equal(t, path, asked)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, original, got)
}

func TestInjectConfirmError(t *testing.T) {
	path := writeFile(t, []byte("x"))
	boom := errors.New("no tty")

	_, err := (&Injector{Confirm: func(string) (bool, error) { return false, boom }}).Inject(path)
	assert.ErrorIs(t, err, boom)
}

func TestInjectSizeLimit(t *testing.T) {
	path := writeFile(t, make([]byte, 100))

	_, err := (&Injector{MaxSize: 99}).Inject(path)
	assert.ErrorIs(t, err, types.ErrSizeLimit)

	_, err = (&Injector{MaxSize: 100}).Inject(path)
	assert.NoError(t, err)
}

func TestInjectEmptyFile(t *testing.T) {
	path := writeFile(t, nil)

	_, err := (&Injector{}).Inject(path)
	assert.ErrorIs(t, err, ErrEmptyFile)
}

func TestInjectMissingFile(t *testing.T) {
	_, err := (&Injector{}).Inject(filepath.Join(t.TempDir(), "nope"))
	assert.ErrorIs(t, err, types.ErrIO)
}
