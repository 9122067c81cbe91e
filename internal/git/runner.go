package git

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Runner executes git commands in a working directory. The gateway is
// written against this interface so tests can substitute a fake that
// scripts command outcomes without a real repository.
type Runner interface {
	// Run invokes `git args...` in dir and returns trimmed combined
	// output. A non-zero exit status is returned as an error that
	// includes the command's output.
	Run(ctx context.Context, dir string, args ...string) (string, error)
}

type execRunner struct{}

// NewRunner returns a Runner backed by the git binary on PATH.
func NewRunner() Runner { return execRunner{} }

func (execRunner) Run(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir

	out, err := cmd.CombinedOutput()
	output := strings.TrimSpace(string(out))
	if err != nil {
		if output != "" {
			return output, fmt.Errorf("git %s: %w: %s", args[0], err, output)
		}
		return output, fmt.Errorf("git %s: %w", args[0], err)
	}
	return output, nil
}
