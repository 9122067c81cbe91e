package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gitchunk/gitchunk/internal/stats"
)

const (
	reportName  = "push_report.txt"
	skippedName = "Larger_Files_That_Skipped.log"
)

// writeReports persists the session outcome into the project root:
// push_report.txt always, and the skipped-files log only when overlarge
// files were actually left behind. Both are written even after
// cancellation so a partial run still leaves a record.
func writeReports(root string, res *Result) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "gitchunk push report\n")
	fmt.Fprintf(&sb, "session:  %s\n", res.SessionID)
	fmt.Fprintf(&sb, "started:  %s\n", res.Started.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&sb, "finished: %s\n", res.Finished.Format("2006-01-02 15:04:05"))
	if res.Cancelled {
		fmt.Fprintf(&sb, "status:   cancelled\n")
	} else if len(res.Failures) > 0 {
		fmt.Fprintf(&sb, "status:   completed with failures\n")
	} else {
		fmt.Fprintf(&sb, "status:   completed\n")
	}
	fmt.Fprintf(&sb, "\n%s\n", res.Stats)

	if len(res.Failures) > 0 {
		fmt.Fprintf(&sb, "\nFailed files:\n")
		for _, f := range res.Failures {
			fmt.Fprintf(&sb, "  %s: %s (attempts: %d)\n", f.Path, f.Reason, f.Attempts)
		}
	}
	if len(res.Skipped) > 0 {
		fmt.Fprintf(&sb, "\nSkipped large files:\n")
		for _, sk := range res.Skipped {
			fmt.Fprintf(&sb, "  %s (%s)\n", sk.Path, stats.FormatBytes(sk.Size))
		}
	}

	if err := os.WriteFile(filepath.Join(root, reportName), []byte(sb.String()), 0644); err != nil {
		return fmt.Errorf("write %s: %w", reportName, err)
	}

	if len(res.Skipped) == 0 {
		return nil
	}

	var sk strings.Builder
	sk.WriteString("Skipped Large Files:\n")
	for _, f := range res.Skipped {
		fmt.Fprintf(&sk, "%s (%s)\n", f.Path, stats.FormatBytes(f.Size))
	}
	if err := os.WriteFile(filepath.Join(root, skippedName), []byte(sk.String()), 0644); err != nil {
		return fmt.Errorf("write %s: %w", skippedName, err)
	}
	return nil
}
