// Package git is the version-control gateway: it stages, commits, and
// pushes batches against a local working copy by shelling out to the
// git binary, with bounded retry and pull reconciliation on push
// rejection.
package git

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gitchunk/gitchunk/internal/batch"
)

// Config describes the repository the gateway operates on.
type Config struct {
	Dir       string // working copy root
	RemoteURL string
	Branch    string
	Remote    string // remote name, default "origin"
	Policy    Policy
	// SeedIgnores are patterns ensured in the project .gitignore during
	// EnsureRepository.
	SeedIgnores []string
	Logger      *slog.Logger
}

// Failure records one path that could not be transferred, with the
// error text and the number of attempts spent on it.
type Failure struct {
	Path     string
	Reason   string
	Attempts int
}

// ApplyResult reports the outcome of applying one batch.
type ApplyResult struct {
	Staged       int  // paths staged successfully
	Committed    bool // a commit was created
	Pushed       bool // the commit reached the remote
	NoOp         bool // nothing actually changed; not an error
	PushAttempts int  // attempts spent pushing, 0 if no push happened
	Failures     []Failure
}

// Gateway owns the working copy and its index for the duration of each
// Apply call. It is not safe for concurrent use; the upload pipeline is
// strictly sequential by design.
type Gateway struct {
	cfg         Config
	run         Runner
	log         *slog.Logger
	sleep       func(time.Duration)
	upstreamSet bool
}

// NewGateway creates a gateway over the given runner.
func NewGateway(cfg Config, run Runner) *Gateway {
	if cfg.Remote == "" {
		cfg.Remote = "origin"
	}
	if cfg.Branch == "" {
		cfg.Branch = "main"
	}
	cfg.Policy = cfg.Policy.normalize()

	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	return &Gateway{
		cfg:   cfg,
		run:   run,
		log:   log,
		sleep: time.Sleep,
	}
}

func (g *Gateway) git(ctx context.Context, args ...string) (string, error) {
	return g.run.Run(ctx, g.cfg.Dir, args...)
}

// IsRepository reports whether dir is inside a git working tree.
func IsRepository(ctx context.Context, run Runner, dir string) bool {
	_, err := run.Run(ctx, dir, "rev-parse", "--is-inside-work-tree")
	return err == nil
}

// EnsureRepository prepares the working copy: removes a stale index
// lock, initializes the repository and remote if needed, checks out the
// configured branch (creating it if absent), seeds the project
// .gitignore, and verifies the remote is reachable. Failures here are
// fatal to the session.
func (g *Gateway) EnsureRepository(ctx context.Context) error {
	if info, err := os.Stat(g.cfg.Dir); err != nil || !info.IsDir() {
		return fmt.Errorf("project root %s is not a directory", g.cfg.Dir)
	}

	lock := filepath.Join(g.cfg.Dir, ".git", "index.lock")
	if _, err := os.Stat(lock); err == nil {
		if err := os.Remove(lock); err == nil {
			g.log.Warn("removed stale index lock", "path", lock)
		}
	}

	if !IsRepository(ctx, g.run, g.cfg.Dir) {
		if _, err := g.git(ctx, "init"); err != nil {
			return fmt.Errorf("initialize repository: %w", err)
		}
		g.log.Info("initialized repository", "dir", g.cfg.Dir)
	}

	if err := g.ensureRemote(ctx); err != nil {
		return err
	}
	if err := g.ensureBranch(ctx); err != nil {
		return err
	}
	if err := g.seedGitignore(); err != nil {
		g.log.Warn("could not seed .gitignore", "error", err)
	}

	if _, err := g.git(ctx, "ls-remote", "--heads", g.cfg.Remote); err != nil {
		return fmt.Errorf("remote %s unreachable: %w", g.cfg.RemoteURL, err)
	}

	// First push against a new branch must set upstream tracking.
	_, err := g.git(ctx, "rev-parse", "--abbrev-ref", "--symbolic-full-name", "@{u}")
	g.upstreamSet = err == nil

	return nil
}

func (g *Gateway) ensureRemote(ctx context.Context) error {
	url, err := g.git(ctx, "remote", "get-url", g.cfg.Remote)
	if err != nil {
		if _, err := g.git(ctx, "remote", "add", g.cfg.Remote, g.cfg.RemoteURL); err != nil {
			return fmt.Errorf("add remote: %w", err)
		}
		return nil
	}
	if url != g.cfg.RemoteURL && g.cfg.RemoteURL != "" {
		if _, err := g.git(ctx, "remote", "set-url", g.cfg.Remote, g.cfg.RemoteURL); err != nil {
			return fmt.Errorf("update remote url: %w", err)
		}
	}
	return nil
}

func (g *Gateway) ensureBranch(ctx context.Context) error {
	current, err := g.git(ctx, "branch", "--show-current")
	if err == nil && current == g.cfg.Branch {
		return nil
	}

	if _, err := g.git(ctx, "rev-parse", "--verify", "--quiet", "refs/heads/"+g.cfg.Branch); err == nil {
		if _, err := g.git(ctx, "checkout", g.cfg.Branch); err != nil {
			return fmt.Errorf("checkout branch %s: %w", g.cfg.Branch, err)
		}
		return nil
	}

	if _, err := g.git(ctx, "checkout", "-b", g.cfg.Branch); err != nil {
		return fmt.Errorf("create branch %s: %w", g.cfg.Branch, err)
	}
	g.log.Info("created branch", "branch", g.cfg.Branch)
	return nil
}

// seedGitignore appends any missing default patterns to the project
// .gitignore so the remote never sees build caches even when pushed
// from other tooling.
func (g *Gateway) seedGitignore() error {
	if len(g.cfg.SeedIgnores) == 0 {
		return nil
	}

	path := filepath.Join(g.cfg.Dir, ".gitignore")
	existing := make(map[string]bool)
	if data, err := os.ReadFile(path); err == nil {
		for _, line := range strings.Split(string(data), "\n") {
			line = strings.TrimSpace(line)
			if line != "" && !strings.HasPrefix(line, "#") {
				existing[line] = true
			}
		}
	}

	var missing []string
	for _, p := range g.cfg.SeedIgnores {
		if !existing[p] {
			missing = append(missing, p)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := fmt.Fprintf(f, "\n# Added by gitchunk\n%s\n", strings.Join(missing, "\n")); err != nil {
		return err
	}
	g.log.Debug("seeded .gitignore", "patterns", len(missing))
	return nil
}

// Apply stages, commits, and pushes one batch. A staging failure on one
// path is recorded and does not block the rest; an empty batch (nothing
// actually changed) is a no-op; push rejection is retried under the
// configured policy with a reconciling pull between attempts. Exhausting
// all attempts marks every staged path as failed, but the caller is
// expected to proceed with the next batch.
func (g *Gateway) Apply(ctx context.Context, b batch.Batch) ApplyResult {
	var res ApplyResult

	staged := make([]string, 0, len(b.Paths))
	for _, p := range b.Paths {
		if _, err := g.git(ctx, "add", "--", p); err != nil {
			g.log.Warn("stage failed", "path", p, "error", err)
			res.Failures = append(res.Failures, Failure{Path: p, Reason: err.Error(), Attempts: 1})
			continue
		}
		staged = append(staged, p)
	}
	res.Staged = len(staged)
	if len(staged) == 0 {
		return res
	}

	// diff --cached exits non-zero when staged changes exist; a clean
	// exit means this batch changes nothing and there is nothing to
	// commit — a no-op, not an error.
	if _, err := g.git(ctx, "diff", "--cached", "--quiet"); err == nil {
		res.NoOp = true
		g.log.Debug("batch is a no-op", "folder", b.Folder)
		return res
	}

	if _, err := g.git(ctx, "commit", "-m", b.Message); err != nil {
		g.log.Warn("commit failed", "folder", b.Folder, "error", err)
		for _, p := range staged {
			res.Failures = append(res.Failures, Failure{Path: p, Reason: err.Error(), Attempts: 1})
		}
		return res
	}
	res.Committed = true

	attempts, lastErr := g.push(ctx)
	res.PushAttempts = attempts
	if lastErr == nil {
		res.Pushed = true
		return res
	}

	for _, p := range staged {
		res.Failures = append(res.Failures, Failure{Path: p, Reason: lastErr.Error(), Attempts: attempts})
	}
	return res
}

// push attempts the push under the retry policy. Between attempts it
// pulls the remote branch to reconcile; a failing pull is logged and
// the retry proceeds regardless.
func (g *Gateway) push(ctx context.Context) (int, error) {
	policy := g.cfg.Policy

	var lastErr error
	attempt := 0
	for attempt = 1; attempt <= policy.MaxAttempts; attempt++ {
		args := []string{"push"}
		if !g.upstreamSet {
			args = append(args, "-u")
		}
		args = append(args, g.cfg.Remote, g.cfg.Branch)

		_, err := g.git(ctx, args...)
		if err == nil {
			g.upstreamSet = true
			return attempt, nil
		}
		lastErr = err
		g.log.Warn("push failed", "attempt", attempt, "max", policy.MaxAttempts, "error", err)

		if attempt == policy.MaxAttempts || !policy.Retryable(err) {
			break
		}

		if _, perr := g.git(ctx, "pull", g.cfg.Remote, g.cfg.Branch); perr != nil {
			g.log.Warn("reconciling pull failed, retrying push anyway", "error", perr)
		}
		g.sleep(policy.Backoff(attempt))
	}

	return attempt, lastErr
}
