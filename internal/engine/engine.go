// Package engine drives the upload pipeline end to end: scan, classify,
// split, batch, and hand off to the version-control gateway, tracking
// progress and every failure along the way.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/gitchunk/gitchunk/internal/batch"
	"github.com/gitchunk/gitchunk/internal/event"
	"github.com/gitchunk/gitchunk/internal/git"
	"github.com/gitchunk/gitchunk/internal/ignore"
	"github.com/gitchunk/gitchunk/internal/scan"
	"github.com/gitchunk/gitchunk/internal/split"
	"github.com/gitchunk/gitchunk/internal/stats"
)

// Gateway is the version-control surface the session drives. Satisfied
// by *git.Gateway; tests substitute a fake.
type Gateway interface {
	EnsureRepository(ctx context.Context) error
	Apply(ctx context.Context, b batch.Batch) git.ApplyResult
}

// Config describes one upload session.
type Config struct {
	Root      string
	RemoteURL string
	Branch    string

	MaxFileSize  int64 // threshold: larger files are split or skipped
	ChunkSize    int64 // chunk size for splitting; defaults to MaxFileSize
	BatchSize    int   // files per commit
	SplitEnabled bool
	Operation    string // commit message verb, default "Add"

	// IgnorePatterns are operator additions layered over the built-in
	// defaults.
	IgnorePatterns []string

	// RetryFailedOnly restricts the run to paths the ledger recorded as
	// failed in a previous session.
	RetryFailedOnly bool

	Gateway Gateway
	Ledger  *Ledger            // optional
	Events  chan<- event.Event // optional
	Stats   *stats.Collector   // optional
	Logger  *slog.Logger       // optional
}

// FailureRecord is one path that could not be transferred.
type FailureRecord struct {
	Path     string
	Reason   string
	Attempts int
}

// SkippedFile is an overlarge file left out while splitting is disabled.
type SkippedFile struct {
	Path string
	Size int64
}

// Result is the final report of a session.
type Result struct {
	SessionID string
	Started   time.Time
	Finished  time.Time
	Cancelled bool
	Failures  []FailureRecord
	Skipped   []SkippedFile
	Stats     stats.Snapshot
	Err       error // fatal initialization error, nil otherwise
}

type session struct {
	cfg        Config
	id         string
	log        *slog.Logger
	stats      *stats.Collector
	matcher    *ignore.Matcher
	splitter   *split.Splitter
	acc        *batch.Accumulator
	chunkGuard map[string]bool // rel paths produced as chunks this run
	retrySet   map[string]bool // nil unless RetryFailedOnly
	failures   []FailureRecord
	skipped    []SkippedFile
	processed  int64
	total      int64
	cancelled  bool
}

// Run executes an upload session, blocking until the scan is exhausted
// or the context is cancelled. Cancellation is cooperative: it is
// polled between entries and between batches, never mid-operation.
func Run(ctx context.Context, cfg Config) Result {
	started := time.Now()

	cfg = withDefaults(cfg)
	s := &session{
		cfg:        cfg,
		id:         uuid.NewString(),
		log:        cfg.Logger,
		stats:      cfg.Stats,
		matcher:    ignore.NewMatcher(append(ignore.Defaults(), cfg.IgnorePatterns...)),
		splitter:   split.NewSplitter(cfg.ChunkSize),
		acc:        batch.NewAccumulator(batch.Config{MaxFiles: cfg.BatchSize, Operation: cfg.Operation}),
		chunkGuard: make(map[string]bool),
	}

	result := Result{SessionID: s.id, Started: started}

	if err := s.initialize(ctx); err != nil {
		result.Err = err
		result.Finished = time.Now()
		return result
	}

	s.process(ctx)

	if !s.cancelled {
		if b := s.acc.Flush(); b != nil {
			s.applyBatch(ctx, *b)
		}
	}

	result.Cancelled = s.cancelled
	result.Failures = s.failures
	result.Skipped = s.skipped
	result.Stats = s.stats.Snapshot()
	result.Finished = time.Now()

	if err := writeReports(cfg.Root, &result); err != nil {
		s.log.Warn("could not write session reports", "error", err)
	}

	s.emitLog(event.Info, "session finished: %s", result.Stats)
	return result
}

func withDefaults(cfg Config) Config {
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = 25 * 1024 * 1024
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = cfg.MaxFileSize
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.Operation == "" {
		cfg.Operation = "Add"
	}
	if cfg.Branch == "" {
		cfg.Branch = "main"
	}
	if cfg.Stats == nil {
		cfg.Stats = stats.NewCollector()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return cfg
}

// initialize validates the root, prepares the repository, and takes the
// pre-scan estimate. Failures here abort the session.
func (s *session) initialize(ctx context.Context) error {
	info, err := os.Stat(s.cfg.Root)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("project root %s is not a readable directory", s.cfg.Root)
	}

	if err := s.cfg.Gateway.EnsureRepository(ctx); err != nil {
		return fmt.Errorf("prepare repository: %w", err)
	}

	if s.cfg.RetryFailedOnly {
		if s.cfg.Ledger == nil {
			return fmt.Errorf("retry-failed mode requires a session ledger")
		}
		s.retrySet, err = s.cfg.Ledger.FailedPaths()
		if err != nil {
			return fmt.Errorf("load failed paths: %w", err)
		}
		s.total = int64(len(s.retrySet))
		s.stats.SetTotals(s.total, 0)
		s.emitLog(event.Info, "retrying %d previously failed paths", len(s.retrySet))
	} else {
		files, bytes, err := scan.Estimate(ctx, s.cfg.Root, s.matcher)
		if err != nil {
			return fmt.Errorf("estimate tree size: %w", err)
		}
		s.total = files
		s.stats.SetTotals(files, bytes)
		s.emit(event.Event{
			Type:  event.ScanComplete,
			Total: files,
			Size:  bytes,
		})
		s.emitLog(event.Info, "found %d files (%s) to upload", files, stats.FormatBytes(bytes))
	}

	s.emit(event.Event{Type: event.SessionStarted, Total: s.total})
	return nil
}

// process drives the scan-classify-split-batch loop.
func (s *session) process(ctx context.Context) {
	scanner := scan.New(s.cfg.Root, s.matcher)
	entries, scanErrs := scanner.Scan(ctx)

	warnDone := make(chan struct{})
	go func() {
		defer close(warnDone)
		for err := range scanErrs {
			s.emitLog(event.Warn, "scan: %v", err)
		}
	}()

	for entry := range entries {
		// Entry boundary: the only place cancellation is honored
		// between files.
		if ctx.Err() != nil {
			s.cancel()
			break
		}

		s.handleEntry(ctx, entry)
	}

	// Drain anything the scanner still buffered after cancellation.
	for range entries {
	}
	<-warnDone

	if ctx.Err() != nil && !s.cancelled {
		s.cancel()
	}
}

func (s *session) cancel() {
	s.cancelled = true
	if n := s.acc.Discard(); n > 0 {
		s.emitLog(event.Warn, "discarding %d accumulated entries on cancellation", n)
	}
	s.emit(event.Event{Type: event.Cancelled, Processed: s.processed, Total: s.total})
	s.emitLog(event.Error, "upload cancelled")
}

func (s *session) handleEntry(ctx context.Context, entry scan.Entry) {
	if s.chunkGuard[entry.Rel] {
		// Produced by this session's splitter; already batched.
		return
	}
	if s.retrySet != nil && !s.retrySet[entry.Rel] {
		return
	}

	switch split.Classify(entry.Size, s.cfg.MaxFileSize, s.cfg.SplitEnabled) {
	case split.PassThrough:
		s.advance(entry)
		s.stage(ctx, entry.Rel)

	case split.Split:
		s.splitEntry(ctx, entry)

	case split.SkipOverlarge:
		s.skipped = append(s.skipped, SkippedFile{Path: entry.Rel, Size: entry.Size})
		s.stats.AddFilesSkipped(1)
		s.advance(entry)
		s.emit(event.Event{Type: event.FileSkipped, Path: entry.Rel, Size: entry.Size})
		s.emitLog(event.Warn, "skipping large file: %s (%s)", entry.Rel, stats.FormatBytes(entry.Size))
	}
}

// splitEntry replaces an oversized file with its chunks, each staged
// individually. A split failure is local: recorded, logged, and the
// session moves on with the original file untouched.
func (s *session) splitEntry(ctx context.Context, entry scan.Entry) {
	s.emitLog(event.Info, "splitting large file: %s (%s)", entry.Rel, stats.FormatBytes(entry.Size))

	chunks, err := s.splitter.Split(entry.Path)
	if err != nil {
		s.failures = append(s.failures, FailureRecord{Path: entry.Rel, Reason: err.Error(), Attempts: 1})
		s.stats.AddFilesFailed(1)
		s.advance(entry)
		s.emit(event.Event{Type: event.FileFailed, Path: entry.Rel, Err: err})
		s.emitLog(event.Error, "split failed: %s: %v", entry.Rel, err)
		return
	}

	s.stats.AddFilesSplit(1)
	s.stats.AddChunksCreated(int64(len(chunks)))
	s.advance(entry)
	s.emit(event.Event{Type: event.FileSplit, Path: entry.Rel, Size: entry.Size})
	s.emitLog(event.Success, "created %d chunks for %s", len(chunks), entry.Rel)

	for _, chunk := range chunks {
		rel, err := filepath.Rel(s.cfg.Root, chunk)
		if err != nil {
			continue
		}
		rel = filepath.ToSlash(rel)
		s.chunkGuard[rel] = true
		s.stage(ctx, rel)
	}
}

// advance counts one processed entry and publishes progress.
func (s *session) advance(entry scan.Entry) {
	s.processed++
	s.stats.AddFilesProcessed(1)
	s.stats.AddBytesProcessed(entry.Size)
	s.emit(event.Event{
		Type:      event.FileProcessed,
		Path:      entry.Rel,
		Size:      entry.Size,
		Processed: s.processed,
		Total:     s.total,
	})
}

// stage adds one relative path to the accumulator and applies any
// batches that became ready.
func (s *session) stage(ctx context.Context, rel string) {
	for _, b := range s.acc.Add(rel) {
		s.applyBatch(ctx, b)
	}
}

// applyBatch hands one flushed batch to the gateway. A flushed batch
// always runs to completion, even if cancellation arrives while it is
// in flight.
func (s *session) applyBatch(ctx context.Context, b batch.Batch) {
	s.emitLog(event.Info, "committing %d files: %s", len(b.Paths), b.Message)

	res := s.cfg.Gateway.Apply(ctx, b)

	s.stats.AddFilesStaged(int64(res.Staged))
	if res.Committed {
		s.stats.AddCommitsMade(1)
	}
	if res.NoOp {
		s.emitLog(event.Debug, "nothing changed in batch [%s], no commit", b.Folder)
		return
	}
	if res.PushAttempts > 1 {
		s.stats.AddPushRetries(int64(res.PushAttempts - 1))
		s.emit(event.Event{Type: event.PushRetried, Path: b.Folder, Size: int64(res.PushAttempts)})
	}

	failedPaths := make(map[string]bool, len(res.Failures))
	for _, f := range res.Failures {
		failedPaths[f.Path] = true
		s.failures = append(s.failures, FailureRecord{Path: f.Path, Reason: f.Reason, Attempts: f.Attempts})
	}
	if len(res.Failures) > 0 {
		s.stats.AddFilesFailed(int64(len(res.Failures)))
		s.recordLedgerFailures(res.Failures)
		s.emit(event.Event{Type: event.BatchFailed, Path: b.Folder, Size: int64(len(b.Paths))})
		s.emitLog(event.Error, "%d files in batch [%s] failed", len(res.Failures), b.Folder)
	}

	if res.Pushed {
		s.stats.AddPushesMade(1)
		var succeeded []string
		for _, p := range b.Paths {
			if !failedPaths[p] {
				succeeded = append(succeeded, p)
			}
		}
		s.clearLedgerPaths(succeeded)
		s.emit(event.Event{Type: event.BatchCommitted, Path: b.Folder, Size: int64(len(succeeded))})
		s.emitLog(event.Success, "pushed %d files [%s]", len(succeeded), b.Folder)
	}
}

func (s *session) recordLedgerFailures(failures []git.Failure) {
	if s.cfg.Ledger == nil {
		return
	}
	recs := make([]FailureRecord, len(failures))
	for i, f := range failures {
		recs[i] = FailureRecord{Path: f.Path, Reason: f.Reason, Attempts: f.Attempts}
	}
	if err := s.cfg.Ledger.RecordFailures(recs); err != nil {
		s.log.Warn("ledger write failed", "error", err)
	}
}

func (s *session) clearLedgerPaths(paths []string) {
	if s.cfg.Ledger == nil || len(paths) == 0 {
		return
	}
	if err := s.cfg.Ledger.ClearPaths(paths); err != nil {
		s.log.Warn("ledger clear failed", "error", err)
	}
}

// emit publishes an event without ever dropping it; the channel is
// buffered and drained by a presenter goroutine.
func (s *session) emit(ev event.Event) {
	if s.cfg.Events == nil {
		return
	}
	ev.Timestamp = time.Now()
	s.cfg.Events <- ev
}

func (s *session) emitLog(sev event.Severity, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	switch sev {
	case event.Error:
		s.log.Error(msg)
	case event.Warn:
		s.log.Warn(msg)
	case event.Debug:
		s.log.Debug(msg)
	default:
		s.log.Info(msg)
	}
	if s.cfg.Events == nil {
		return
	}
	s.cfg.Events <- event.Event{
		Type:      event.Log,
		Timestamp: time.Now(),
		Message:   msg,
		Severity:  sev,
	}
}
