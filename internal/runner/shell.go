package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"sort"

	"github.com/nextlevelbuilder/dromio/internal/store"
)

// runShell executes the snapshot's command line through the platform shell.
// Snapshot env vars are layered over the process environment.
func runShell(ctx context.Context, snap *store.ExecutableConfigSnapshot) (store.CommandRunOutput, error) {
	cmd := shellCommand(ctx, snap.Meta.Command)
	cmd.Dir = snap.Meta.WorkingDir
	cmd.Env = mergedEnv(snap.Meta.Env)
	return runCommand(cmd)
}

func shellCommand(ctx context.Context, command string) *exec.Cmd {
	if runtime.GOOS == "windows" {
		return exec.CommandContext(ctx, "cmd", "/C", command)
	}
	return exec.CommandContext(ctx, "sh", "-c", command)
}

func mergedEnv(extra map[string]string) []string {
	env := os.Environ()
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+extra[k])
	}
	return env
}

// runCommand starts cmd and maps its result: a normal exit yields the process
// exit code, while failing to start at all is an execution error.
func runCommand(cmd *exec.Cmd) (store.CommandRunOutput, error) {
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	out := store.CommandRunOutput{
		Output:      truncate(stdout.Bytes()),
		ErrorOutput: truncate(stderr.Bytes()),
	}
	if err == nil {
		return out, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		out.ExitCode = exitErr.ExitCode()
		return out, nil
	}
	return out, fmt.Errorf("%w: %v", store.ErrExecution, err)
}
