package ui

import (
	"fmt"
	"io"
	"time"

	"github.com/gitchunk/gitchunk/internal/event"
	"github.com/gitchunk/gitchunk/internal/stats"
)

// plainPresenter outputs one line per notable event to stdout, and
// periodic progress to stderr when not a TTY.
type plainPresenter struct {
	w       io.Writer
	errW    io.Writer
	stats   *stats.Collector
	verbose bool
}

func (p *plainPresenter) Run(events <-chan event.Event) error {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			p.handleEvent(ev)
		case <-ticker.C:
			p.printProgress()
		}
	}
}

func (p *plainPresenter) handleEvent(ev event.Event) {
	switch ev.Type {
	case event.ScanComplete:
		fmt.Fprintf(p.w, "scan: %s files, %s\n", FormatCount(ev.Total), FormatBytes(ev.Size))
	case event.FileProcessed:
		if p.verbose {
			fmt.Fprintf(p.w, "%s  %s\n", ev.Path, FormatBytes(ev.Size))
		}
	case event.FileSplit:
		fmt.Fprintf(p.w, "split: %s  %s\n", ev.Path, FormatBytes(ev.Size))
	case event.FileSkipped:
		fmt.Fprintf(p.w, "skipped: %s  %s\n", ev.Path, FormatBytes(ev.Size))
	case event.FileFailed:
		errMsg := "error"
		if ev.Err != nil {
			errMsg = ev.Err.Error()
		}
		fmt.Fprintf(p.w, "failed: %s  %s\n", ev.Path, errMsg)
	case event.BatchCommitted:
		fmt.Fprintf(p.w, "pushed: [%s] %d files\n", ev.Path, ev.Size)
	case event.BatchFailed:
		fmt.Fprintf(p.w, "push failed: [%s]\n", ev.Path)
	case event.Cancelled:
		fmt.Fprintf(p.w, "cancelled after %s of %s files\n",
			FormatCount(ev.Processed), FormatCount(ev.Total))
	case event.Log:
		p.handleLog(ev)
	}
}

func (p *plainPresenter) handleLog(ev event.Event) {
	switch ev.Severity {
	case event.Debug:
		if p.verbose {
			fmt.Fprintf(p.w, "%s\n", ev.Message)
		}
	case event.Warn, event.Error:
		fmt.Fprintf(p.errW, "%s: %s\n", ev.Severity, ev.Message)
	default:
		if p.verbose {
			fmt.Fprintf(p.w, "%s\n", ev.Message)
		}
	}
}

func (p *plainPresenter) printProgress() {
	snap := p.stats.Snapshot()
	if snap.FilesTotal > 0 {
		pct := float64(snap.FilesProcessed) / float64(snap.FilesTotal) * 100
		fmt.Fprintf(p.errW, "progress: %.0f%% %s/%s files %s/%s eta %s\n",
			pct,
			FormatCount(snap.FilesProcessed), FormatCount(snap.FilesTotal),
			FormatBytes(snap.BytesProcessed), FormatBytes(snap.BytesTotal),
			FormatETA(p.stats.ETA()),
		)
	} else {
		fmt.Fprintf(p.errW, "progress: %s files %s\n",
			FormatCount(snap.FilesProcessed),
			FormatBytes(snap.BytesProcessed),
		)
	}
}

func (p *plainPresenter) Summary() string {
	return completionSummary(p.stats.Snapshot())
}
