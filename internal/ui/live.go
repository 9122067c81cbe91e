package ui

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/gitchunk/gitchunk/internal/event"
	"github.com/gitchunk/gitchunk/internal/stats"
)

// livePresenter renders a single continuously-updated progress line to
// the TTY, with warnings and failures printed above it.
type livePresenter struct {
	w       io.Writer // the TTY, normally stderr
	stats   *stats.Collector
	verbose bool

	width int
}

func (p *livePresenter) Run(events <-chan event.Event) error {
	p.width = TermWidth(os.Stderr.Fd())

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	defer p.clearLine()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			p.handleEvent(ev)
		case <-ticker.C:
			p.render()
		}
	}
}

func (p *livePresenter) handleEvent(ev event.Event) {
	switch ev.Type {
	case event.FileSplit:
		p.printLine("split: %s  %s", ev.Path, FormatBytes(ev.Size))
	case event.FileSkipped:
		p.printLine("skipped: %s  %s", ev.Path, FormatBytes(ev.Size))
	case event.FileFailed:
		errMsg := "error"
		if ev.Err != nil {
			errMsg = ev.Err.Error()
		}
		p.printLine("failed: %s  %s", ev.Path, errMsg)
	case event.BatchFailed:
		p.printLine("push failed: [%s]", ev.Path)
	case event.Cancelled:
		p.printLine("cancelled")
	case event.Log:
		switch ev.Severity {
		case event.Warn, event.Error:
			p.printLine("%s: %s", ev.Severity, ev.Message)
		case event.Debug:
			if p.verbose {
				p.printLine("%s", ev.Message)
			}
		}
	case event.FileProcessed, event.BatchCommitted:
		p.render()
	}
}

// printLine clears the progress line, writes one permanent line, and
// repaints progress below it.
func (p *livePresenter) printLine(format string, args ...any) {
	p.clearLine()
	fmt.Fprintf(p.w, format+"\n", args...)
	p.render()
}

func (p *livePresenter) render() {
	snap := p.stats.Snapshot()

	var pct float64
	if snap.FilesTotal > 0 {
		pct = float64(snap.FilesProcessed) / float64(snap.FilesTotal)
	}

	barWidth := 24
	line := fmt.Sprintf("%s %3.0f%%  %s/%s files  %s  commits %s  eta %s",
		ProgressBar(pct, barWidth),
		pct*100,
		FormatCount(snap.FilesProcessed), FormatCount(snap.FilesTotal),
		FormatBytes(snap.BytesProcessed),
		FormatCount(snap.CommitsMade),
		FormatETA(p.stats.ETA()),
	)
	if len(line) > p.width && p.width > 1 {
		line = line[:p.width-1]
	}
	fmt.Fprintf(p.w, "\r\x1b[2K%s", line)
}

func (p *livePresenter) clearLine() {
	fmt.Fprint(p.w, "\r\x1b[2K")
}

func (p *livePresenter) Summary() string {
	return completionSummary(p.stats.Snapshot())
}
