package daemon

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Output captures one ipfs command invocation: what ran, what it
// printed, and how it exited.
type Output struct {
	Args     []string `json:"args"`
	Stdout   string   `json:"stdout"`
	Stderr   string   `json:"stderr"`
	ExitCode int      `json:"exit_code"`
}

// Succeeded reports whether the command exited zero.
func (o *Output) Succeeded() bool {
	return o.ExitCode == 0
}

// Err converts a nonzero exit into an error carrying the command's
// stderr, which is where ipfs writes its diagnostics. It returns nil
// for a zero exit.
func (o *Output) Err() error {
	if o.ExitCode == 0 {
		return nil
	}
	detail := strings.TrimSpace(o.Stderr)
	if detail == "" {
		detail = strings.TrimSpace(o.Stdout)
	}
	if detail == "" {
		return fmt.Errorf("%s exited with code %d", strings.Join(o.Args, " "), o.ExitCode)
	}
	return fmt.Errorf("%s exited with code %d: %s", strings.Join(o.Args, " "), o.ExitCode, detail)
}

// envForRepo returns the current environment with IPFS_PATH pointed at
// repoDir, replacing any inherited value so commands always address the
// node's own repository.
func envForRepo(repoDir string) []string {
	env := os.Environ()
	entry := "IPFS_PATH=" + repoDir
	for i, e := range env {
		if strings.HasPrefix(e, "IPFS_PATH=") {
			env[i] = entry
			return env
		}
	}
	return append(env, entry)
}

// RunCmd runs `bin args...` against the given repository and collects
// its output. A nonzero exit lands in Output.ExitCode rather than the
// error return; a non-nil error means the command could not run at all
// (missing binary, cancelled context).
func RunCmd(ctx context.Context, bin, repoDir string, args ...string) (*Output, error) {
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Env = envForRepo(repoDir)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	out := &Output{
		Args:   append([]string{bin}, args...),
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if runErr != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			out.ExitCode = exitErr.ExitCode()
			return out, nil
		}
		return nil, runErr
	}
	return out, nil
}
