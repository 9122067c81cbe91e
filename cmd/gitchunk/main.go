package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/gitchunk/gitchunk/internal/config"
	"github.com/gitchunk/gitchunk/internal/engine"
	"github.com/gitchunk/gitchunk/internal/event"
	"github.com/gitchunk/gitchunk/internal/git"
	"github.com/gitchunk/gitchunk/internal/ignore"
	"github.com/gitchunk/gitchunk/internal/stats"
	"github.com/gitchunk/gitchunk/internal/ui"
)

var version = "dev"

func main() {
	os.Exit(run())
}

// ignoreFlag is a custom pflag.Value collecting repeatable --ignore
// patterns, rejecting empty ones at parse time.
type ignoreFlag struct {
	patterns *[]string
}

func (*ignoreFlag) String() string { return "" }
func (*ignoreFlag) Type() string   { return "string" }

func (f *ignoreFlag) Set(val string) error {
	if val == "" {
		return fmt.Errorf("ignore pattern must not be empty")
	}
	*f.patterns = append(*f.patterns, val)
	return nil
}

var _ pflag.Value = (*ignoreFlag)(nil)

//nolint:gocyclo,revive // cyclomatic,cognitive-complexity: main CLI entry point orchestrates all flag parsing and wiring
func run() int {
	var (
		branch       string
		maxSizeStr   string
		chunkSizeStr string
		batchSize    int
		noSplit      bool
		ignoreFlags  []string
		retryFailed  bool
		verbose      bool
		quiet        bool
		noProgress   bool
		logFile      string
		showVersion  bool
	)

	rootCmd := &cobra.Command{
		Use:   "gitchunk [flags] <project-root> <remote-url>",
		Short: "Bulk-upload a binary-heavy project to a git remote in size-bounded commits",
		Long: `gitchunk scans a project tree, splits files too large for the remote
into sequential chunks, groups files into size-bounded commits, and
pushes each commit with bounded retry. Every file that could not be
transferred is reported at the end.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				return nil
			}
			return cobra.ExactArgs(2)(cmd, args)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				fmt.Fprintf(os.Stdout, "gitchunk %s\n", version)
				return nil
			}

			root, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolve project root: %w", err)
			}
			remoteURL := args[1]

			// Load optional config file and apply its defaults for
			// flags not explicitly set on the CLI.
			cfg, err := config.Load()
			if err != nil {
				slog.Warn("failed to load config", "error", err)
			}
			applyConfigDefaults(cmd, cfg.Defaults,
				&branch, &maxSizeStr, &chunkSizeStr, &batchSize, &noSplit, &logFile)
			ignoreFlags = append(ignoreFlags, cfg.Defaults.Ignore...)

			maxSize, err := config.ParseSize(maxSizeStr)
			if err != nil {
				return fmt.Errorf("invalid --max-size: %w", err)
			}
			chunkSize := maxSize
			if chunkSizeStr != "" {
				chunkSize, err = config.ParseSize(chunkSizeStr)
				if err != nil {
					return fmt.Errorf("invalid --chunk-size: %w", err)
				}
			}
			if chunkSize > maxSize {
				return fmt.Errorf("--chunk-size (%s) must not exceed --max-size (%s)",
					stats.FormatBytes(chunkSize), stats.FormatBytes(maxSize))
			}

			// Configure logging.
			logLevel := slog.LevelWarn
			if verbose {
				logLevel = slog.LevelDebug
			}
			textHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
				Level: logLevel,
			})
			var logHandler slog.Handler = textHandler
			if logFile != "" {
				lf, lfErr := os.Create(logFile)
				if lfErr != nil {
					return fmt.Errorf("open log file: %w", lfErr)
				}
				defer lf.Close()
				jsonHandler := slog.NewJSONHandler(lf, &slog.HandlerOptions{
					Level: slog.LevelDebug,
				})
				logHandler = ui.NewMultiHandler(textHandler, jsonHandler)
			}
			logger := slog.New(logHandler)
			slog.SetDefault(logger)

			// Set up context with signal handling. First signal cancels
			// cooperatively; the accumulating batch is discarded, the
			// in-flight one completes.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			collector := stats.NewCollector()
			events := make(chan event.Event, 256)

			// When --log is set, tee events through a logging goroutine
			// that writes structured records before forwarding.
			presenterEvents := (<-chan event.Event)(events)
			if logFile != "" {
				teed := make(chan event.Event, 256)
				go func() {
					for ev := range events {
						attrs := []slog.Attr{
							slog.String("type", ev.Type.String()),
							slog.String("path", ev.Path),
							slog.Int64("size", ev.Size),
						}
						if ev.Err != nil {
							attrs = append(attrs, slog.String("error", ev.Err.Error()))
						}
						slog.LogAttrs(context.Background(), slog.LevelInfo, "gitchunk.event", attrs...)
						teed <- ev
					}
					close(teed)
				}()
				presenterEvents = teed
			}

			presenter := ui.NewPresenter(ui.Config{
				Writer:     os.Stdout,
				ErrWriter:  os.Stderr,
				Stats:      collector,
				IsTTY:      ui.IsTTY(os.Stderr.Fd()),
				Quiet:      quiet,
				Verbose:    verbose,
				NoProgress: noProgress,
			})

			gateway := git.NewGateway(git.Config{
				Dir:         root,
				RemoteURL:   remoteURL,
				Branch:      branch,
				Policy:      git.DefaultPolicy(),
				SeedIgnores: append(ignore.Defaults(), ignoreFlags...),
				Logger:      logger,
			}, git.NewRunner())

			ledger, err := engine.OpenLedger(root, remoteURL)
			if err != nil {
				slog.Warn("failure ledger unavailable", "error", err)
				ledger = nil
			} else {
				defer ledger.Close()
			}

			engineCfg := engine.Config{
				Root:            root,
				RemoteURL:       remoteURL,
				Branch:          branch,
				MaxFileSize:     maxSize,
				ChunkSize:       chunkSize,
				BatchSize:       batchSize,
				SplitEnabled:    !noSplit,
				IgnorePatterns:  ignoreFlags,
				RetryFailedOnly: retryFailed,
				Gateway:         gateway,
				Ledger:          ledger,
				Events:          events,
				Stats:           collector,
				Logger:          logger,
			}

			slog.Debug("starting upload",
				"root", root,
				"remote", remoteURL,
				"branch", branch,
				"max_size", maxSize,
				"chunk_size", chunkSize,
				"batch_size", batchSize,
			)

			// Presenter in background, session in foreground.
			var presenterErr error
			var presenterWg sync.WaitGroup
			presenterWg.Add(1)
			go func() {
				defer presenterWg.Done()
				presenterErr = presenter.Run(presenterEvents)
			}()

			result := engine.Run(ctx, engineCfg)
			stop()
			close(events)
			presenterWg.Wait()
			if presenterErr != nil {
				fmt.Fprintf(os.Stderr, "presenter: %v\n", presenterErr)
			}

			if !quiet {
				if summary := presenter.Summary(); summary != "" {
					fmt.Fprintln(os.Stderr, summary)
				}
			}

			if result.Err != nil {
				slog.Error("upload failed", "error", result.Err)
				return &exitError{code: 2}
			}
			if len(result.Failures) > 0 || result.Cancelled {
				return &exitError{code: 1}
			}
			return nil
		},
	}

	rootCmd.Flags().BoolVar(&showVersion, "version", false, "print version and exit")

	rootCmd.Flags().StringVarP(&branch, "branch", "b", "main", "branch to commit and push to")
	rootCmd.Flags().
		StringVar(&maxSizeStr, "max-size", "25M", "files larger than SIZE are split or skipped (e.g. 25M, 1G)")
	rootCmd.Flags().
		StringVar(&chunkSizeStr, "chunk-size", "", "chunk size for split files (default: --max-size)")
	rootCmd.Flags().IntVar(&batchSize, "batch-size", 10, "maximum files per commit")
	rootCmd.Flags().BoolVar(&noSplit, "no-split", false, "skip oversized files instead of splitting them")
	rootCmd.Flags().
		Var(&ignoreFlag{patterns: &ignoreFlags}, "ignore", "extra ignore PATTERN, appended to the defaults (repeatable)")
	rootCmd.Flags().
		BoolVar(&retryFailed, "retry-failed", false, "upload only paths that failed in a previous session")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "suppress all output except errors")
	rootCmd.Flags().BoolVar(&noProgress, "no-progress", false, "disable progress display")
	rootCmd.Flags().StringVar(&logFile, "log", "", "write structured JSON log to FILE")

	if err := rootCmd.Execute(); err != nil {
		if exitErr, ok := err.(*exitError); ok {
			return exitErr.code
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}

	return 0
}

// applyConfigDefaults applies config file defaults for flags not explicitly set on the CLI.
func applyConfigDefaults(
	cmd *cobra.Command,
	defaults config.DefaultsConfig,
	branch *string,
	maxSizeStr *string,
	chunkSizeStr *string,
	batchSize *int,
	noSplit *bool,
	logFile *string,
) {
	if !cmd.Flags().Changed("branch") && defaults.Branch != nil {
		*branch = *defaults.Branch
	}
	if !cmd.Flags().Changed("max-size") && defaults.MaxSize != nil {
		*maxSizeStr = *defaults.MaxSize
	}
	if !cmd.Flags().Changed("chunk-size") && defaults.ChunkSize != nil {
		*chunkSizeStr = *defaults.ChunkSize
	}
	if !cmd.Flags().Changed("batch-size") && defaults.BatchSize != nil {
		*batchSize = *defaults.BatchSize
	}
	if !cmd.Flags().Changed("no-split") && defaults.NoSplit != nil {
		*noSplit = *defaults.NoSplit
	}
	if !cmd.Flags().Changed("log") && defaults.LogFile != nil {
		*logFile = *defaults.LogFile
	}
}

type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit code %d", e.code)
}
