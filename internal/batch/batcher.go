// Package batch groups classified entries into bounded, folder-coherent
// commits with navigable messages.
package batch

import (
	"fmt"
	"path"
	"strings"
)

// Batch is one commit's worth of entries. It is produced by an
// Accumulator, consumed exactly once by the version-control gateway,
// and then discarded.
type Batch struct {
	Paths   []string // relative paths, in arrival order
	Folder  string   // grouping key: the originating folder
	Message string
}

// Config controls accumulation.
type Config struct {
	// MaxFiles is the flush threshold: a batch is emitted as soon as it
	// holds this many entries.
	MaxFiles int
	// Operation prefixes commit messages, e.g. "Add".
	Operation string
}

// DefaultConfig returns the stock accumulation settings.
func DefaultConfig() Config {
	return Config{MaxFiles: 10, Operation: "Add"}
}

// Accumulator collects entries one at a time and emits size-bounded
// batches. Entries are grouped by originating folder: a folder change
// flushes the pending batch so every commit message names one folder.
type Accumulator struct {
	cfg     Config
	pending []string
	folder  string
}

// NewAccumulator creates an Accumulator with the given config.
func NewAccumulator(cfg Config) *Accumulator {
	if cfg.MaxFiles <= 0 {
		cfg.MaxFiles = DefaultConfig().MaxFiles
	}
	if cfg.Operation == "" {
		cfg.Operation = DefaultConfig().Operation
	}
	return &Accumulator{cfg: cfg}
}

// Add accepts one relative path and returns any batches that became
// ready: at most one flushed by a folder change and one flushed by the
// file-count threshold.
func (a *Accumulator) Add(rel string) []Batch {
	var out []Batch

	folder := folderOf(rel)
	if len(a.pending) > 0 && folder != a.folder {
		out = append(out, a.take())
	}

	a.folder = folder
	a.pending = append(a.pending, rel)

	if len(a.pending) >= a.cfg.MaxFiles {
		out = append(out, a.take())
	}
	return out
}

// Flush emits the pending batch, if any. Called at end of scan.
func (a *Accumulator) Flush() *Batch {
	if len(a.pending) == 0 {
		return nil
	}
	b := a.take()
	return &b
}

// Discard drops the pending batch without emitting it. Called on
// cancellation: a truncated batch is never committed.
func (a *Accumulator) Discard() int {
	n := len(a.pending)
	a.pending = nil
	a.folder = ""
	return n
}

// Len returns the number of entries awaiting flush.
func (a *Accumulator) Len() int {
	return len(a.pending)
}

func (a *Accumulator) take() Batch {
	b := Batch{
		Paths:   a.pending,
		Folder:  a.folder,
		Message: buildMessage(a.cfg.Operation, a.folder, a.pending),
	}
	a.pending = nil
	return b
}

func folderOf(rel string) string {
	dir := path.Dir(rel)
	if dir == "." || dir == "/" {
		return "root"
	}
	return dir
}

// buildMessage generates the commit message. A single file gets its
// name and relative path; multiple files get a per-extension count
// summary so history stays navigable despite high commit volume.
func buildMessage(op, folder string, paths []string) string {
	if len(paths) == 1 {
		return fmt.Sprintf("%s: %s (%s)", op, path.Base(paths[0]), paths[0])
	}

	// Count extensions in first-seen order for a stable summary.
	counts := make(map[string]int)
	var order []string
	for _, p := range paths {
		ext := strings.ToLower(strings.TrimPrefix(path.Ext(p), "."))
		if ext == "" {
			ext = "file"
		}
		if _, seen := counts[ext]; !seen {
			order = append(order, ext)
		}
		counts[ext]++
	}

	parts := make([]string, 0, len(order))
	for _, ext := range order {
		parts = append(parts, fmt.Sprintf("%d %s", counts[ext], ext))
	}
	return fmt.Sprintf("%s [%s]: %s", op, folder, strings.Join(parts, ", "))
}
