package split

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		size     int64
		max      int64
		splitOn  bool
		expected Class
	}{
		{"under threshold", 10, 25, true, PassThrough},
		{"at threshold", 25, 25, true, PassThrough},
		{"over with splitting", 26, 25, true, Split},
		{"over without splitting", 26, 25, false, SkipOverlarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Classify(tt.size, tt.max, tt.splitOn))
		})
	}
}

func TestChunkName(t *testing.T) {
	assert.Equal(t, "/p/model_part001.pak", ChunkName("/p/model.pak", 1))
	assert.Equal(t, "/p/model_part012.pak", ChunkName("/p/model.pak", 12))
	assert.Equal(t, "/p/README_part002", ChunkName("/p/README", 2))
}

func TestIsChunkName(t *testing.T) {
	assert.True(t, IsChunkName("/p/model_part001.pak"))
	assert.True(t, IsChunkName("/p/README_part003"))
	assert.False(t, IsChunkName("/p/model.pak"))
	assert.False(t, IsChunkName("/p/model_part1.pak"))
	assert.False(t, IsChunkName("/p/partner_part.pak"))
}

func TestSplit_ExactSemantics(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "b.bin")

	// 30 bytes split at 20 -> 20 + 10.
	data := bytes.Repeat([]byte{0xAB}, 30)
	require.NoError(t, os.WriteFile(path, data, 0644))

	chunks, err := NewSplitter(20).Split(path)
	require.NoError(t, err)
	require.Equal(t, []string{
		filepath.Join(dir, "b_part001.bin"),
		filepath.Join(dir, "b_part002.bin"),
	}, chunks)

	var total int64
	var joined []byte
	for _, c := range chunks {
		b, err := os.ReadFile(c)
		require.NoError(t, err)
		total += int64(len(b))
		joined = append(joined, b...)
	}
	assert.Equal(t, int64(30), total)
	assert.Equal(t, data, joined)

	first, err := os.Stat(chunks[0])
	require.NoError(t, err)
	assert.Equal(t, int64(20), first.Size())

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "original must be deleted after a full split")
}

func TestSplit_ChunkCountIsCeil(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		size   int64
		chunk  int64
		chunks int
	}{
		{1, 5, 1},
		{5, 5, 1},
		{6, 5, 2},
		{10, 5, 2},
		{11, 5, 3},
	}

	for _, tt := range tests {
		path := filepath.Join(dir, "f.bin")
		require.NoError(t, os.WriteFile(path, make([]byte, tt.size), 0644))

		chunks, err := NewSplitter(tt.chunk).Split(path)
		require.NoError(t, err)
		assert.Len(t, chunks, tt.chunks, "size=%d chunk=%d", tt.size, tt.chunk)

		for _, c := range chunks {
			require.NoError(t, os.Remove(c))
		}
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }
func (failingWriter) Close() error              { return nil }

func TestSplit_FaultInjectionRollsBack(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "big.dat")
	data := bytes.Repeat([]byte{0x01}, 50)
	require.NoError(t, os.WriteFile(path, data, 0644))

	// Fail writing the third chunk.
	sp := NewSplitter(10)
	calls := 0
	sp.create = func(p string) (io.WriteCloser, error) {
		calls++
		if calls == 3 {
			return failingWriter{}, nil
		}
		return os.Create(p)
	}

	_, err := sp.Split(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chunk 3")

	// Original unchanged, zero chunk files remain.
	got, readErr := os.ReadFile(path)
	require.NoError(t, readErr)
	assert.Equal(t, data, got)

	matches, globErr := filepath.Glob(filepath.Join(dir, "*_part*"))
	require.NoError(t, globErr)
	assert.Empty(t, matches)
}

func TestSplit_EmptyFileRefused(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.bin")
	require.NoError(t, os.WriteFile(path, nil, 0644))

	_, err := NewSplitter(10).Split(path)
	require.Error(t, err)

	_, statErr := os.Stat(path)
	assert.NoError(t, statErr)
}

func TestSplit_MissingFile(t *testing.T) {
	_, err := NewSplitter(10).Split(filepath.Join(t.TempDir(), "gone.bin"))
	assert.Error(t, err)
}
