// Package stats tracks upload session counters.
package stats

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Collector tracks session statistics using lock-free atomic counters.
// The session loop writes, presenters read.
type Collector struct {
	filesProcessed atomic.Int64
	filesStaged    atomic.Int64
	filesSplit     atomic.Int64
	chunksCreated  atomic.Int64
	filesSkipped   atomic.Int64
	filesFailed    atomic.Int64
	bytesProcessed atomic.Int64
	commitsMade    atomic.Int64
	pushesMade     atomic.Int64
	pushRetries    atomic.Int64
	filesTotal     atomic.Int64
	bytesTotal     atomic.Int64
	startTime      time.Time
}

// NewCollector creates a Collector with startTime set to now.
func NewCollector() *Collector {
	return &Collector{startTime: time.Now()}
}

// SetTotals records the pre-scan estimate (called once before processing).
func (c *Collector) SetTotals(files, bytes int64) {
	c.filesTotal.Store(files)
	c.bytesTotal.Store(bytes)
}

func (c *Collector) AddFilesProcessed(n int64) { c.filesProcessed.Add(n) }
func (c *Collector) AddFilesStaged(n int64)    { c.filesStaged.Add(n) }
func (c *Collector) AddFilesSplit(n int64)     { c.filesSplit.Add(n) }
func (c *Collector) AddChunksCreated(n int64)  { c.chunksCreated.Add(n) }
func (c *Collector) AddFilesSkipped(n int64)   { c.filesSkipped.Add(n) }
func (c *Collector) AddFilesFailed(n int64)    { c.filesFailed.Add(n) }
func (c *Collector) AddBytesProcessed(n int64) { c.bytesProcessed.Add(n) }
func (c *Collector) AddCommitsMade(n int64)    { c.commitsMade.Add(n) }
func (c *Collector) AddPushesMade(n int64)     { c.pushesMade.Add(n) }
func (c *Collector) AddPushRetries(n int64)    { c.pushRetries.Add(n) }

// Snapshot is a point-in-time read of all counters.
type Snapshot struct {
	FilesProcessed int64
	FilesStaged    int64
	FilesSplit     int64
	ChunksCreated  int64
	FilesSkipped   int64
	FilesFailed    int64
	BytesProcessed int64
	CommitsMade    int64
	PushesMade     int64
	PushRetries    int64
	FilesTotal     int64
	BytesTotal     int64
	Elapsed        time.Duration
}

// Snapshot returns a consistent point-in-time read of all counters.
func (c *Collector) Snapshot() Snapshot {
	return Snapshot{
		FilesProcessed: c.filesProcessed.Load(),
		FilesStaged:    c.filesStaged.Load(),
		FilesSplit:     c.filesSplit.Load(),
		ChunksCreated:  c.chunksCreated.Load(),
		FilesSkipped:   c.filesSkipped.Load(),
		FilesFailed:    c.filesFailed.Load(),
		BytesProcessed: c.bytesProcessed.Load(),
		CommitsMade:    c.commitsMade.Load(),
		PushesMade:     c.pushesMade.Load(),
		PushRetries:    c.pushRetries.Load(),
		FilesTotal:     c.filesTotal.Load(),
		BytesTotal:     c.bytesTotal.Load(),
		Elapsed:        c.Elapsed(),
	}
}

// ETA estimates remaining time from the average processing rate and the
// remaining byte total.
func (c *Collector) ETA() time.Duration {
	elapsed := c.Elapsed().Seconds()
	done := c.bytesProcessed.Load()
	if elapsed <= 0 || done <= 0 {
		return 0
	}
	remaining := c.bytesTotal.Load() - done
	if remaining <= 0 {
		return 0
	}
	rate := float64(done) / elapsed
	return time.Duration(float64(remaining)/rate) * time.Second
}

// Elapsed returns time since collector creation.
func (c *Collector) Elapsed() time.Duration {
	return time.Since(c.startTime)
}

func (s Snapshot) String() string {
	return fmt.Sprintf(
		"processed=%d staged=%d split=%d skipped=%d failed=%d commits=%d pushes=%d",
		s.FilesProcessed, s.FilesStaged, s.FilesSplit, s.FilesSkipped,
		s.FilesFailed, s.CommitsMade, s.PushesMade,
	)
}

// FormatBytes returns a human-readable byte count.
func FormatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}
