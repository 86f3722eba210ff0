package daemon

import (
	"context"
	"errors"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func skipWithoutShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
}

func TestRunCmdCollectsOutput(t *testing.T) {
	skipWithoutShell(t)

	out, err := RunCmd(context.Background(), "sh", t.TempDir(), "-c", "echo out; echo err >&2")
	if err != nil {
		t.Fatalf("RunCmd() error = %v", err)
	}
	if !out.Succeeded() {
		t.Fatalf("ExitCode = %d, want 0", out.ExitCode)
	}
	if got := strings.TrimSpace(out.Stdout); got != "out" {
		t.Fatalf("Stdout = %q, want %q", got, "out")
	}
	if got := strings.TrimSpace(out.Stderr); got != "err" {
		t.Fatalf("Stderr = %q, want %q", got, "err")
	}
}

func TestRunCmdNonzeroExit(t *testing.T) {
	skipWithoutShell(t)

	out, err := RunCmd(context.Background(), "sh", t.TempDir(), "-c", "echo broken >&2; exit 3")
	if err != nil {
		t.Fatalf("RunCmd() error = %v, nonzero exits belong in Output", err)
	}
	if out.ExitCode != 3 {
		t.Fatalf("ExitCode = %d, want 3", out.ExitCode)
	}

	outErr := out.Err()
	if outErr == nil {
		t.Fatal("Err() = nil for a nonzero exit")
	}
	if !strings.Contains(outErr.Error(), "broken") {
		t.Fatalf("Err() = %v, want stderr detail included", outErr)
	}
	if !strings.Contains(outErr.Error(), "code 3") {
		t.Fatalf("Err() = %v, want exit code included", outErr)
	}
}

func TestRunCmdSetsRepoEnv(t *testing.T) {
	skipWithoutShell(t)

	repo := t.TempDir()
	out, err := RunCmd(context.Background(), "sh", repo, "-c", `printf %s "$IPFS_PATH"`)
	if err != nil {
		t.Fatalf("RunCmd() error = %v", err)
	}
	if out.Stdout != repo {
		t.Fatalf("IPFS_PATH in child = %q, want %q", out.Stdout, repo)
	}
}

func TestRunCmdReplacesInheritedRepoEnv(t *testing.T) {
	skipWithoutShell(t)

	t.Setenv("IPFS_PATH", "/somewhere/else")
	repo := t.TempDir()
	out, err := RunCmd(context.Background(), "sh", repo, "-c", `printf %s "$IPFS_PATH"`)
	if err != nil {
		t.Fatalf("RunCmd() error = %v", err)
	}
	if out.Stdout != repo {
		t.Fatalf("IPFS_PATH in child = %q, want the node repo %q", out.Stdout, repo)
	}
}

func TestRunCmdMissingBinary(t *testing.T) {
	_, err := RunCmd(context.Background(), filepath.Join(t.TempDir(), "nope"), t.TempDir(), "version")
	if err == nil {
		t.Fatal("expected an error for a missing binary")
	}
}

func TestRunCmdCancelledContext(t *testing.T) {
	skipWithoutShell(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := RunCmd(ctx, "sh", t.TempDir(), "-c", "sleep 5")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("RunCmd() error = %v, want context.Canceled", err)
	}
}

func TestOutputErr(t *testing.T) {
	tests := []struct {
		name    string
		out     Output
		wantNil bool
		want    string
	}{
		{
			name:    "zero exit",
			out:     Output{Args: []string{"ipfs", "init"}},
			wantNil: true,
		},
		{
			name: "stderr detail",
			out:  Output{Args: []string{"ipfs", "init"}, Stderr: "repo already exists\n", ExitCode: 1},
			want: "repo already exists",
		},
		{
			name: "stdout fallback",
			out:  Output{Args: []string{"ipfs", "init"}, Stdout: "nope", ExitCode: 1},
			want: "nope",
		},
		{
			name: "no detail",
			out:  Output{Args: []string{"ipfs", "init"}, ExitCode: 2},
			want: "exited with code 2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.out.Err()
			if tt.wantNil {
				if err != nil {
					t.Fatalf("Err() = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatal("Err() = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Err() = %v, want %q included", err, tt.want)
			}
		})
	}
}
