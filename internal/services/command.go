package services

import (
	"context"
	"os/exec"
)

// CommandRunner executes an external binary and returns its combined output.
// Stage code depends on this type so tests can substitute canned results.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs commands through os/exec.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	return cmd.CombinedOutput()
}
