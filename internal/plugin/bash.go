package plugin

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"
)

// BashExecutor is the reference job_type=bash executor (`[EXPANSION]`
// §4.9): it runs Payload["command"] through `sh -c`, honoring the
// --timeout/--redirect_to_stderr CLI flags (spec.md §6) threaded through as
// payload fields.
type BashExecutor struct{}

// NewBashExecutor returns a BashExecutor.
func NewBashExecutor() *BashExecutor {
	return &BashExecutor{}
}

func (b *BashExecutor) Execute(ctx context.Context, job Job) error {
	command, _ := job.Payload["command"].(string)
	if command == "" {
		return fmt.Errorf("bash executor: %s/%s has no command", job.App, job.JobID)
	}

	if secs, ok := job.Payload["timeout_seconds"].(float64); ok && secs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(secs*float64(time.Second)))
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", command)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	if redirect, _ := job.Payload["redirect_to_stderr"].(bool); redirect {
		cmd.Stdout = &stderr
	}
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("bash executor: %s/%s failed: %w (stderr: %s)", job.App, job.JobID, err, stderr.String())
	}
	return nil
}

var _ Executor = (*BashExecutor)(nil)
