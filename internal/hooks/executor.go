// Package hooks runs the user-configured post-run command.
package hooks

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/alfredjeanlab/harvest/internal/model"
)

// Default and max timeout for hook commands.
const (
	DefaultTimeout = 30 * time.Second
	MaxTimeout     = 300 * time.Second
)

// Result holds the output of running a hook command.
type Result struct {
	Output string
	Err    error
}

// Execute runs a shell command with the given timeout and environment.
// The command is executed via "sh -c" in the specified working directory.
func Execute(ctx context.Context, command string, timeoutSec int, cwd string, env map[string]string) Result {
	timeout := time.Duration(timeoutSec) * time.Second
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if timeout > MaxTimeout {
		timeout = MaxTimeout
	}

	hookCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(hookCtx, "sh", "-c", command) //nolint:gosec // command comes from the operator's config
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if cwd != "" {
		if info, err := os.Stat(cwd); err == nil && info.IsDir() {
			cmd.Dir = cwd
		}
	}

	// Inherit process environment and overlay hook-specific vars.
	cmd.Env = os.Environ()
	for k, v := range env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	err := cmd.Run()
	output := strings.TrimSpace(stdout.String())
	if output == "" {
		output = strings.TrimSpace(stderr.String())
	}

	return Result{Output: output, Err: err}
}

// RunEnv describes a finished run to the hook command.
func RunEnv(run *model.Run) map[string]string {
	return map[string]string{
		"HARVEST_RUN_ID":  run.ID,
		"HARVEST_STATUS":  string(run.Status),
		"HARVEST_OUTPUT":  run.OutputPath,
		"HARVEST_RECORDS": strconv.Itoa(run.RecordsWritten),
		"HARVEST_EVENTS":  strconv.FormatInt(run.EventsAdmitted, 10),
		"HARVEST_FILTER":  run.Filter,
	}
}

// PostRun runs command after a run finished, in the current directory.
func PostRun(ctx context.Context, command string, timeoutSec int, run *model.Run) Result {
	return Execute(ctx, command, timeoutSec, "", RunEnv(run))
}
