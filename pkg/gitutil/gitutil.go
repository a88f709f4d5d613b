// Package gitutil wraps the few git commands the agent needs.
package gitutil

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/sourcegraph/go-diff/diff"
)

func git(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", append([]string{"-C", dir}, args...)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return stdout.String(), fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// HeadCommit returns the commit hash of HEAD in dir.
func HeadCommit(ctx context.Context, dir string) (string, error) {
	out, err := git(ctx, dir, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// DiffVersusCommit returns the diff of the working tree in dir against
// commit, including untracked (non-ignored) files as additions.
func DiffVersusCommit(ctx context.Context, dir, commit string) (string, error) {
	var sb strings.Builder

	out, err := git(ctx, dir, "diff", commit)
	if err != nil {
		return "", err
	}
	sb.WriteString(out)

	untracked, err := git(ctx, dir, "ls-files", "--others", "--exclude-standard")
	if err != nil {
		return "", err
	}
	for _, f := range strings.Split(untracked, "\n") {
		if f == "" {
			continue
		}
		out, err := git(ctx, dir, "diff", "--no-index", "/dev/null", f)
		// --no-index exits 1 when the files differ, which is always the case here.
		var exitErr *exec.ExitError
		if err != nil && !(errors.As(err, &exitErr) && exitErr.ExitCode() == 1) {
			return "", err
		}
		sb.WriteString(out)
	}
	return sb.String(), nil
}

// PatchStats summarizes a unified diff.
type PatchStats struct {
	Files   []string `json:"files"`
	Added   int      `json:"added"`
	Deleted int      `json:"deleted"`
}

// ParsePatchStats parses a multi-file unified diff.
func ParsePatchStats(patch []byte) (PatchStats, error) {
	var stats PatchStats
	fds, err := diff.ParseMultiFileDiff(patch)
	if err != nil {
		return stats, fmt.Errorf("parse patch: %w", err)
	}
	for _, fd := range fds {
		name := strings.TrimPrefix(fd.NewName, "b/")
		if fd.NewName == "/dev/null" {
			name = strings.TrimPrefix(fd.OrigName, "a/")
		}
		stats.Files = append(stats.Files, name)
		st := fd.Stat()
		stats.Added += int(st.Added + st.Changed)
		stats.Deleted += int(st.Deleted + st.Changed)
	}
	return stats, nil
}
