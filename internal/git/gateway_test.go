package git

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitchunk/gitchunk/internal/batch"
)

// fakeRunner scripts git command outcomes and records every invocation.
type fakeRunner struct {
	calls   [][]string
	respond func(args []string) (string, error)
}

func (f *fakeRunner) Run(_ context.Context, _ string, args ...string) (string, error) {
	f.calls = append(f.calls, args)
	if f.respond == nil {
		return "", nil
	}
	return f.respond(args)
}

func (f *fakeRunner) count(verb string) int {
	n := 0
	for _, c := range f.calls {
		if len(c) > 0 && c[0] == verb {
			n++
		}
	}
	return n
}

func (f *fakeRunner) verbs() []string {
	var out []string
	for _, c := range f.calls {
		out = append(out, c[0])
	}
	return out
}

func testGateway(run Runner) *Gateway {
	g := NewGateway(Config{
		Dir:       "/repo",
		RemoteURL: "git@example.com:proj.git",
		Branch:    "main",
		Policy: Policy{
			MaxAttempts: 3,
			Backoff:     FixedBackoff(0),
		},
		Logger: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})),
	}, run)
	g.sleep = func(time.Duration) {}
	return g
}

func TestApply_StageCommitPush(t *testing.T) {
	run := &fakeRunner{respond: func(args []string) (string, error) {
		if args[0] == "diff" {
			return "", errors.New("exit status 1")
		}
		return "", nil
	}}
	g := testGateway(run)

	res := g.Apply(context.Background(), batch.Batch{
		Paths:   []string{"maps/a.umap", "maps/b.umap"},
		Folder:  "maps",
		Message: "Add [maps]: 2 umap",
	})

	assert.Equal(t, 2, res.Staged)
	assert.True(t, res.Committed)
	assert.True(t, res.Pushed)
	assert.Empty(t, res.Failures)

	assert.Equal(t, 2, run.count("add"))
	assert.Equal(t, 1, run.count("commit"))
	assert.Equal(t, 1, run.count("push"))

	// First ever push sets upstream tracking.
	for _, c := range run.calls {
		if c[0] == "push" {
			assert.Equal(t, []string{"push", "-u", "origin", "main"}, c)
		}
	}
}

func TestApply_SecondPushSkipsUpstreamFlag(t *testing.T) {
	run := &fakeRunner{respond: func(args []string) (string, error) {
		if args[0] == "diff" {
			return "", errors.New("exit status 1")
		}
		return "", nil
	}}
	g := testGateway(run)

	b := batch.Batch{Paths: []string{"a.txt"}, Folder: "root", Message: "Add: a.txt (a.txt)"}
	g.Apply(context.Background(), b)
	run.calls = nil
	g.Apply(context.Background(), b)

	for _, c := range run.calls {
		if c[0] == "push" {
			assert.Equal(t, []string{"push", "origin", "main"}, c)
		}
	}
}

func TestApply_EmptyBatchIsNoOp(t *testing.T) {
	// diff --cached exits zero: nothing staged actually changed.
	run := &fakeRunner{}
	g := testGateway(run)

	res := g.Apply(context.Background(), batch.Batch{
		Paths: []string{"unchanged.txt"}, Folder: "root", Message: "Add: unchanged.txt (unchanged.txt)",
	})

	assert.True(t, res.NoOp)
	assert.False(t, res.Committed)
	assert.Empty(t, res.Failures)
	assert.Zero(t, run.count("commit"))
	assert.Zero(t, run.count("push"))
}

func TestApply_StageFailureDoesNotBlockRest(t *testing.T) {
	run := &fakeRunner{respond: func(args []string) (string, error) {
		if args[0] == "add" && args[len(args)-1] == "bad.lnk" {
			return "", errors.New("pathspec error")
		}
		if args[0] == "diff" {
			return "", errors.New("exit status 1")
		}
		return "", nil
	}}
	g := testGateway(run)

	res := g.Apply(context.Background(), batch.Batch{
		Paths:   []string{"ok1.txt", "bad.lnk", "ok2.txt"},
		Folder:  "root",
		Message: "Add [root]: 2 txt, 1 lnk",
	})

	assert.Equal(t, 2, res.Staged)
	assert.True(t, res.Pushed)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "bad.lnk", res.Failures[0].Path)
	assert.Contains(t, res.Failures[0].Reason, "pathspec")
}

func TestApply_CommitFailureMarksStagedPaths(t *testing.T) {
	run := &fakeRunner{respond: func(args []string) (string, error) {
		switch args[0] {
		case "diff":
			return "", errors.New("exit status 1")
		case "commit":
			return "", errors.New("index locked")
		}
		return "", nil
	}}
	g := testGateway(run)

	res := g.Apply(context.Background(), batch.Batch{
		Paths: []string{"a.txt", "b.txt"}, Folder: "root", Message: "Add [root]: 2 txt",
	})

	assert.False(t, res.Committed)
	require.Len(t, res.Failures, 2)
	assert.Contains(t, res.Failures[0].Reason, "index locked")
	assert.Zero(t, run.count("push"))
}

func TestApply_PushRetryWithReconcilingPull(t *testing.T) {
	pushAttempts := 0
	run := &fakeRunner{respond: func(args []string) (string, error) {
		switch args[0] {
		case "diff":
			return "", errors.New("exit status 1")
		case "push":
			pushAttempts++
			if pushAttempts < 3 {
				return "", fmt.Errorf("rejected: remote ahead (attempt %d)", pushAttempts)
			}
			return "", nil
		}
		return "", nil
	}}
	g := testGateway(run)

	res := g.Apply(context.Background(), batch.Batch{
		Paths: []string{"a.txt"}, Folder: "root", Message: "Add: a.txt (a.txt)",
	})

	assert.True(t, res.Pushed)
	assert.Empty(t, res.Failures)
	assert.Equal(t, 3, run.count("push"))
	assert.Equal(t, 2, run.count("pull"), "a pull reconciles between each pair of attempts")

	// Interleaving: push, pull, push, pull, push.
	var seq []string
	for _, v := range run.verbs() {
		if v == "push" || v == "pull" {
			seq = append(seq, v)
		}
	}
	assert.Equal(t, []string{"push", "pull", "push", "pull", "push"}, seq)
}

func TestApply_RetryExhaustionFailsEveryPath(t *testing.T) {
	run := &fakeRunner{respond: func(args []string) (string, error) {
		switch args[0] {
		case "diff":
			return "", errors.New("exit status 1")
		case "push":
			return "", errors.New("connection reset by peer")
		}
		return "", nil
	}}
	g := testGateway(run)

	res := g.Apply(context.Background(), batch.Batch{
		Paths: []string{"a.txt", "b.txt", "c.txt"}, Folder: "root", Message: "Add [root]: 3 txt",
	})

	assert.True(t, res.Committed)
	assert.False(t, res.Pushed)
	require.Len(t, res.Failures, 3)
	for _, f := range res.Failures {
		assert.Contains(t, f.Reason, "connection reset")
		assert.Equal(t, 3, f.Attempts)
	}
	assert.Equal(t, 3, run.count("push"))
	assert.Equal(t, 2, run.count("pull"))
}

func TestApply_FailedPullDoesNotAbortRetry(t *testing.T) {
	pushAttempts := 0
	run := &fakeRunner{respond: func(args []string) (string, error) {
		switch args[0] {
		case "diff":
			return "", errors.New("exit status 1")
		case "push":
			pushAttempts++
			if pushAttempts == 1 {
				return "", errors.New("rejected")
			}
			return "", nil
		case "pull":
			return "", errors.New("merge conflict")
		}
		return "", nil
	}}
	g := testGateway(run)

	res := g.Apply(context.Background(), batch.Batch{
		Paths: []string{"a.txt"}, Folder: "root", Message: "Add: a.txt (a.txt)",
	})

	assert.True(t, res.Pushed)
	assert.Equal(t, 2, run.count("push"))
}

func TestApply_NonRetryableErrorStopsEarly(t *testing.T) {
	run := &fakeRunner{respond: func(args []string) (string, error) {
		switch args[0] {
		case "diff":
			return "", errors.New("exit status 1")
		case "push":
			return "", errors.New("permission denied")
		}
		return "", nil
	}}
	g := testGateway(run)
	g.cfg.Policy.Retryable = func(err error) bool {
		return !strings.Contains(err.Error(), "permission denied")
	}

	res := g.Apply(context.Background(), batch.Batch{
		Paths: []string{"a.txt"}, Folder: "root", Message: "Add: a.txt (a.txt)",
	})

	assert.False(t, res.Pushed)
	assert.Equal(t, 1, run.count("push"))
	assert.Zero(t, run.count("pull"))
	require.Len(t, res.Failures, 1)
	assert.Equal(t, 1, res.Failures[0].Attempts)
}

func TestEnsureRepository_InitializesFreshRepo(t *testing.T) {
	dir := t.TempDir()
	run := &fakeRunner{respond: func(args []string) (string, error) {
		switch args[0] {
		case "rev-parse":
			// Neither a work tree, nor an existing branch, nor an upstream.
			return "", errors.New("fatal: not a git repository")
		case "remote":
			if args[1] == "get-url" {
				return "", errors.New("no such remote")
			}
			return "", nil
		case "branch":
			return "", nil // no current branch
		}
		return "", nil
	}}

	g := testGateway(run)
	g.cfg.Dir = dir
	g.cfg.SeedIgnores = []string{"Binaries", "*.sln"}

	require.NoError(t, g.EnsureRepository(context.Background()))

	assert.Equal(t, 1, run.count("init"))
	assert.Equal(t, 1, run.count("checkout"))
	assert.Equal(t, 1, run.count("ls-remote"))
	assert.False(t, g.upstreamSet)

	data, err := os.ReadFile(filepath.Join(dir, ".gitignore"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "Binaries")
	assert.Contains(t, string(data), "*.sln")
}

func TestEnsureRepository_RemovesStaleIndexLock(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".git"), 0755))
	lock := filepath.Join(dir, ".git", "index.lock")
	require.NoError(t, os.WriteFile(lock, nil, 0644))

	run := &fakeRunner{}
	g := testGateway(run)
	g.cfg.Dir = dir

	require.NoError(t, g.EnsureRepository(context.Background()))

	_, err := os.Stat(lock)
	assert.True(t, os.IsNotExist(err))
}

func TestEnsureRepository_UnreachableRemoteIsFatal(t *testing.T) {
	dir := t.TempDir()
	run := &fakeRunner{respond: func(args []string) (string, error) {
		if args[0] == "ls-remote" {
			return "", errors.New("could not resolve host")
		}
		return "", nil
	}}
	g := testGateway(run)
	g.cfg.Dir = dir

	err := g.EnsureRepository(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unreachable")
}

func TestEnsureRepository_MissingRootIsFatal(t *testing.T) {
	g := testGateway(&fakeRunner{})
	g.cfg.Dir = filepath.Join(t.TempDir(), "missing")

	assert.Error(t, g.EnsureRepository(context.Background()))
}

func TestEnsureRepository_SeedGitignoreIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	run := &fakeRunner{}
	g := testGateway(run)
	g.cfg.Dir = dir
	g.cfg.SeedIgnores = []string{"Saved"}

	require.NoError(t, g.EnsureRepository(context.Background()))
	require.NoError(t, g.EnsureRepository(context.Background()))

	data, err := os.ReadFile(filepath.Join(dir, ".gitignore"))
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(data), "Saved"))
}

func TestPolicyNormalize(t *testing.T) {
	p := Policy{}.normalize()
	assert.Equal(t, 3, p.MaxAttempts)
	assert.Equal(t, time.Second, p.Backoff(1))
	assert.True(t, p.Retryable(errors.New("any")))
}
