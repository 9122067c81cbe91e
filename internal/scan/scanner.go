// Package scan walks a project tree and yields the files eligible for
// upload as a lazy, ordered sequence.
package scan

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gitchunk/gitchunk/internal/ignore"
)

// Kind identifies a filesystem entry kind.
type Kind int

const (
	File Kind = iota
	Dir
)

// Entry describes one file discovered during a scan. Entries are
// immutable once emitted.
type Entry struct {
	Path string // absolute
	Rel  string // relative to the scan root, /-separated
	Kind Kind
	Size int64
}

// Scanner produces a single lazy pass over a tree. The sequence is not
// restartable: filesystem state may change between passes, so a fresh
// Scanner is required for each one.
type Scanner struct {
	root    string
	matcher *ignore.Matcher
	entries chan Entry
	errs    chan error
	started bool
}

// New creates a scanner rooted at root, filtered by matcher.
func New(root string, matcher *ignore.Matcher) *Scanner {
	return &Scanner{
		root:    root,
		matcher: matcher,
		entries: make(chan Entry, 64),
		errs:    make(chan error, 64),
	}
}

// Scan starts the traversal and returns the entry and error channels.
// The caller must consume both until they close. Per-entry problems
// (unreadable directories, dangling symlinks) are reported on the error
// channel and do not stop the scan.
func (s *Scanner) Scan(ctx context.Context) (<-chan Entry, <-chan error) {
	if s.started {
		panic("scan: Scanner reused; create a new Scanner per pass")
	}
	s.started = true

	go func() {
		defer close(s.entries)
		defer close(s.errs)
		s.walk(ctx)
	}()

	return s.entries, s.errs
}

// walk traverses with an explicit pending-directory queue instead of
// recursion, so arbitrarily deep trees cannot exhaust the call stack.
// os.ReadDir returns entries sorted by name, which keeps the emitted
// sequence deterministic across runs.
func (s *Scanner) walk(ctx context.Context) {
	queue := []string{s.root}

	for len(queue) > 0 {
		select {
		case <-ctx.Done():
			return
		default:
		}

		dir := queue[0]
		queue = queue[1:]

		dirents, err := os.ReadDir(dir)
		if err != nil {
			s.sendErr(fmt.Errorf("read dir %s: %w", dir, err))
			continue
		}

		for _, de := range dirents {
			path := filepath.Join(dir, de.Name())

			// Resolve symlinks to their target kind; a dangling link is
			// skipped with a warning, not a fatal error.
			info, err := os.Stat(path)
			if err != nil {
				s.sendErr(fmt.Errorf("stat %s: %w", path, err))
				continue
			}

			if info.IsDir() {
				if s.matcher.Matches(path, true) {
					// Pruned: the subtree is never visited.
					continue
				}
				queue = append(queue, path)
				continue
			}

			if s.matcher.Matches(path, false) {
				continue
			}

			rel, err := filepath.Rel(s.root, path)
			if err != nil {
				s.sendErr(fmt.Errorf("rel path for %s: %w", path, err))
				continue
			}

			s.entries <- Entry{
				Path: path,
				Rel:  filepath.ToSlash(rel),
				Kind: File,
				Size: info.Size(),
			}
		}
	}
}

func (s *Scanner) sendErr(err error) {
	select {
	case s.errs <- err:
	default:
	}
}

// Estimate performs an eager pre-pass and returns the number of files
// and total bytes a scan would emit. It uses the same pruning rules as
// Scan, so the count is an accurate progress denominator at the moment
// it is taken.
func Estimate(ctx context.Context, root string, matcher *ignore.Matcher) (files, bytes int64, err error) {
	queue := []string{root}

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return files, bytes, err
		}

		dir := queue[0]
		queue = queue[1:]

		dirents, err := os.ReadDir(dir)
		if err != nil {
			if dir == root {
				return 0, 0, fmt.Errorf("read dir %s: %w", dir, err)
			}
			continue
		}

		for _, de := range dirents {
			path := filepath.Join(dir, de.Name())
			info, err := os.Stat(path)
			if err != nil {
				continue
			}
			if info.IsDir() {
				if !matcher.Matches(path, true) {
					queue = append(queue, path)
				}
				continue
			}
			if matcher.Matches(path, false) {
				continue
			}
			files++
			bytes += info.Size()
		}
	}

	return files, bytes, nil
}
