// Package ui renders upload session progress. Presenters consume the
// session's event stream; they read counters from the stats collector
// but never write to it.
package ui

import (
	"io"

	"github.com/gitchunk/gitchunk/internal/event"
	"github.com/gitchunk/gitchunk/internal/stats"
)

// Presenter consumes events and displays progress.
type Presenter interface {
	// Run consumes events until the channel closes. Blocks until done.
	Run(events <-chan event.Event) error
	// Summary returns the final summary line.
	Summary() string
}

// Config configures a Presenter.
type Config struct {
	Writer     io.Writer
	ErrWriter  io.Writer
	Stats      *stats.Collector
	IsTTY      bool
	Quiet      bool
	Verbose    bool
	NoProgress bool
}

// NewPresenter creates the appropriate presenter based on configuration.
//
//nolint:ireturn // factory function returns interface by design
func NewPresenter(cfg Config) Presenter {
	if cfg.Quiet {
		return &quietPresenter{stats: cfg.Stats}
	}
	if cfg.IsTTY && !cfg.NoProgress {
		return &livePresenter{
			w:       cfg.ErrWriter, // progress renders to stderr (the TTY)
			stats:   cfg.Stats,
			verbose: cfg.Verbose,
		}
	}
	return &plainPresenter{
		w:       cfg.Writer,
		errW:    cfg.ErrWriter,
		stats:   cfg.Stats,
		verbose: cfg.Verbose,
	}
}
