// Package split partitions oversized files into sequential chunk files
// small enough to pass a remote's size limit.
package split

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

const (
	chunkInfix = "_part"
	chunkWidth = 3
)

var chunkNameRe = regexp.MustCompile(`_part\d{3}(\.[^./\\]*)?$`)

// Splitter cuts a file into fixed-size chunks. The operation is
// all-or-nothing: the original is deleted only after every chunk has
// been written and synced, and any failure removes all chunks created
// during the attempt, leaving the original untouched.
type Splitter struct {
	ChunkSize int64

	// create is swappable in tests for fault injection.
	create func(path string) (io.WriteCloser, error)
}

// NewSplitter returns a Splitter producing chunks of at most chunkSize bytes.
func NewSplitter(chunkSize int64) *Splitter {
	return &Splitter{
		ChunkSize: chunkSize,
		create: func(path string) (io.WriteCloser, error) {
			return os.Create(path)
		},
	}
}

// ChunkName returns the path of chunk n (1-based) for the given file:
// the zero-padded sequence suffix is inserted before the extension, so
// dir/model.pak becomes dir/model_part001.pak.
func ChunkName(path string, n int) string {
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)
	return fmt.Sprintf("%s%s%0*d%s", stem, chunkInfix, chunkWidth, n, ext)
}

// IsChunkName reports whether the base name carries a chunk sequence
// suffix. The scanner must not re-offer files that were produced as
// chunks earlier in the same session.
func IsChunkName(path string) bool {
	return chunkNameRe.MatchString(filepath.Base(path))
}

// Split partitions path into sequential chunks and deletes the
// original. It returns the chunk paths in sequence order. On any error
// the chunks written so far are removed and the original is preserved.
func (s *Splitter) Split(path string) ([]string, error) {
	if s.ChunkSize <= 0 {
		return nil, fmt.Errorf("split %s: chunk size must be positive", path)
	}

	src, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("split %s: %w", path, err)
	}
	defer src.Close()

	var chunks []string
	cleanup := func() {
		for _, c := range chunks {
			os.Remove(c)
		}
	}

	for n := 1; ; n++ {
		written, err := s.writeChunk(src, ChunkName(path, n))
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("split %s: chunk %d: %w", path, n, err)
		}
		if written == 0 {
			break
		}
		chunks = append(chunks, ChunkName(path, n))
		if written < s.ChunkSize {
			break
		}
	}

	if len(chunks) == 0 {
		// Zero-byte source: nothing to split, leave it alone.
		return nil, fmt.Errorf("split %s: file is empty", path)
	}

	src.Close()
	if err := os.Remove(path); err != nil {
		cleanup()
		return nil, fmt.Errorf("split %s: remove original: %w", path, err)
	}

	return chunks, nil
}

// writeChunk copies up to ChunkSize bytes from src into a new chunk
// file and syncs it. It returns the number of bytes written; zero means
// src was exhausted and the (empty) chunk file was discarded.
func (s *Splitter) writeChunk(src io.Reader, path string) (int64, error) {
	dst, err := s.create(path)
	if err != nil {
		return 0, err
	}

	written, err := io.CopyN(dst, src, s.ChunkSize)
	if err != nil && err != io.EOF {
		dst.Close()
		os.Remove(path)
		return 0, err
	}

	if written == 0 {
		dst.Close()
		os.Remove(path)
		return 0, nil
	}

	if f, ok := dst.(*os.File); ok {
		if err := f.Sync(); err != nil {
			f.Close()
			os.Remove(path)
			return 0, err
		}
	}
	if err := dst.Close(); err != nil {
		os.Remove(path)
		return 0, err
	}

	return written, nil
}
