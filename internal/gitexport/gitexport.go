// Package gitexport implements the best-effort git export collaborator
// (spec.md §6): write one file per Job into a working tree, commit, and
// push to origin. Grounded on the original implementation's Job.git_push,
// which itself wraps the "git" binary via GitPython — no go-git or other
// git library appears anywhere in the reviewed pack, so shelling out to
// the git CLI is the closest ecosystem-faithful rendition.
package gitexport

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/rs/zerolog"
)

// Exporter writes a Job's results into repoPath and pushes to origin.
type Exporter struct {
	logger zerolog.Logger
}

func New(logger zerolog.Logger) *Exporter {
	return &Exporter{logger: logger}
}

// PushResults writes resultsText to <repoPath>/<jobName>, stages and
// commits every change ("Automatic commit (<jobName>)"), and pushes to
// origin. A commit failure (e.g. nothing to commit) is swallowed, matching
// the original's `except GitCommandError: pass`; a push failure is
// returned to the caller, who treats it as best-effort too.
func (e *Exporter) PushResults(ctx context.Context, jobName, resultsText, repoPath string) error {
	if repoPath == "" {
		return fmt.Errorf("gitexport: no repo path configured")
	}
	filePath := filepath.Join(repoPath, jobName)
	if err := os.WriteFile(filePath, []byte(resultsText), 0o644); err != nil {
		return fmt.Errorf("gitexport: write %s: %w", filePath, err)
	}

	if err := e.run(ctx, repoPath, "add", "-A"); err != nil {
		return fmt.Errorf("gitexport: git add: %w", err)
	}
	if err := e.run(ctx, repoPath, "commit", "-m", fmt.Sprintf("Automatic commit (%s)", jobName)); err != nil {
		e.logger.Debug().Err(err).Str("job", jobName).Msg("gitexport: nothing to commit")
	}
	if err := e.run(ctx, repoPath, "push", "origin"); err != nil {
		return fmt.Errorf("gitexport: git push: %w", err)
	}
	return nil
}

func (e *Exporter) run(ctx context.Context, repoPath string, args ...string) error {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = repoPath
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%v: %s", err, string(out))
	}
	return nil
}
