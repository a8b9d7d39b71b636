package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/harun/chanbridge/pkg/process"
)

// showDiff handles /diff by running git diff in the session's project.
func (d *Dispatcher) showDiff(ctx context.Context, channelID string) error {
	sess, ok, err := d.sessionOrHint(ctx, channelID)
	if !ok {
		return err
	}

	res, err := d.runner.Run(ctx, process.Request{
		Command: "git",
		Args:    []string{"--no-pager", "diff"},
		Dir:     sess.ProjectPath,
		Timeout: d.cfg.DiffTimeout,
	})
	if err != nil {
		return d.post(ctx, channelID, "Failed to run `git diff`.\n"+codeBlock(truncate(err.Error(), maxErrorLength)))
	}

	if res.ExitCode != 0 {
		stderr := strings.TrimSpace(string(res.Stderr))
		if strings.Contains(strings.ToLower(stderr), "not a git repository") {
			return d.post(ctx, channelID, fmt.Sprintf("`%s` is not a git repository.", sess.ProjectPath))
		}
		if stderr == "" {
			stderr = fmt.Sprintf("exit status %d", res.ExitCode)
		}
		return d.post(ctx, channelID, "`git diff` failed.\n"+codeBlock(truncate(stderr, maxErrorLength)))
	}

	diff := strings.TrimRight(string(res.Stdout), "\n")
	if strings.TrimSpace(diff) == "" {
		return d.post(ctx, channelID, "No changes")
	}

	return d.post(ctx, channelID, codeBlock(truncate(diff, d.diffLimit())))
}

// diffLimit leaves room for the code fence inside the platform limit
func (d *Dispatcher) diffLimit() int {
	limit := maxDiffLength
	if platform := d.client.MaxMessageLength() - len(codeBlock("")); platform > 0 && platform < limit {
		limit = platform
	}
	return limit
}
