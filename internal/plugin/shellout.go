package plugin

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"sort"
)

// ShellOutExecutor runs an external interpreter binary with the job's
// parsed fields passed as "--key value" arguments — enough to satisfy "opaque
// to the core" (spec.md §3) for job_types whose actual runtime is out of
// scope (`[EXPANSION]` §4.9: spark, python). InterpreterPath is looked up
// from runtime config at registration time, not hardcoded.
type ShellOutExecutor struct {
	InterpreterPath string
	ExtraArgs       []string
}

// NewSparkExecutor returns a ShellOutExecutor that shells out to
// interpreterPath (typically spark-submit).
func NewSparkExecutor(interpreterPath string) *ShellOutExecutor {
	return &ShellOutExecutor{InterpreterPath: interpreterPath}
}

// NewPythonExecutor returns a ShellOutExecutor that shells out to
// interpreterPath (typically python3).
func NewPythonExecutor(interpreterPath string) *ShellOutExecutor {
	return &ShellOutExecutor{InterpreterPath: interpreterPath}
}

func (s *ShellOutExecutor) Execute(ctx context.Context, job Job) error {
	if s.InterpreterPath == "" {
		return fmt.Errorf("shell-out executor: no interpreter configured for %s/%s", job.App, job.JobID)
	}

	args := append([]string{}, s.ExtraArgs...)
	args = append(args, "--app_name", job.App, "--job_id", job.JobID)

	keys := make([]string, 0, len(job.Fields))
	for k := range job.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "--"+k, job.Fields[k])
	}

	cmd := exec.CommandContext(ctx, s.InterpreterPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("shell-out executor: %s/%s failed: %w (stderr: %s)", job.App, job.JobID, err, stderr.String())
	}
	return nil
}

var _ Executor = (*ShellOutExecutor)(nil)
