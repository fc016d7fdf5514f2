package finder

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Ripgrep shells out to rg, listing matching files with a fixed-string
// search.
type Ripgrep struct {
	Path string
}

// Find implements Finder. rg exits 1 when nothing matches; that is reported
// as an empty result rather than an error.
func (r *Ripgrep) Find(ctx context.Context, root, pattern string) ([]string, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, r.Path,
		"--files-with-matches", "--fixed-strings", "--no-messages", "--", pattern, root)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			return nil, nil
		}
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return nil, fmt.Errorf("finder: rg in %s: %w: %s", root, err, msg)
		}
		return nil, fmt.Errorf("finder: rg in %s: %w", root, err)
	}

	var out []string
	sc := bufio.NewScanner(&stdout)
	for sc.Scan() {
		if line := sc.Text(); line != "" {
			out = append(out, line)
		}
	}
	return out, sc.Err()
}
