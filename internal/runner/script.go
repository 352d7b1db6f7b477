package runner

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/nextlevelbuilder/dromio/internal/store"
)

// runPython imports the snapshot's module and calls run() on a fresh instance
// of the entry-point class.
func runPython(ctx context.Context, snap *store.ExecutableConfigSnapshot) (store.CommandRunOutput, error) {
	if !validPyIdent(snap.Meta.Module) || !validPyIdent(snap.Meta.ClassName) {
		return store.CommandRunOutput{}, fmt.Errorf("%w: invalid python entry point %q.%q",
			store.ErrExecution, snap.Meta.Module, snap.Meta.ClassName)
	}
	script := fmt.Sprintf("import %s; %s.%s().run()",
		snap.Meta.Module, snap.Meta.Module, snap.Meta.ClassName)
	cmd := exec.CommandContext(ctx, "python3", "-c", script)
	cmd.Env = mergedEnv(snap.Meta.Env)
	return runCommand(cmd)
}

// runNode requires the snapshot's module and calls the exported entry-point
// function.
func runNode(ctx context.Context, snap *store.ExecutableConfigSnapshot) (store.CommandRunOutput, error) {
	if strings.ContainsAny(snap.Meta.Module, "'\\") || !validPyIdent(snap.Meta.FunctionName) {
		return store.CommandRunOutput{}, fmt.Errorf("%w: invalid node entry point %q.%q",
			store.ErrExecution, snap.Meta.Module, snap.Meta.FunctionName)
	}
	script := fmt.Sprintf("require('%s').%s()", snap.Meta.Module, snap.Meta.FunctionName)
	cmd := exec.CommandContext(ctx, "node", "-e", script)
	cmd.Env = mergedEnv(snap.Meta.Env)
	return runCommand(cmd)
}

// validPyIdent accepts dotted identifier paths like "pkg.mod" and rejects
// anything that could smuggle extra statements into the generated one-liner.
func validPyIdent(s string) bool {
	if s == "" {
		return false
	}
	for _, part := range strings.Split(s, ".") {
		if part == "" {
			return false
		}
		for i, r := range part {
			switch {
			case r == '_',
				r >= 'a' && r <= 'z',
				r >= 'A' && r <= 'Z':
			case r >= '0' && r <= '9':
				if i == 0 {
					return false
				}
			default:
				return false
			}
		}
	}
	return true
}
