// Package daemon manages kubo (go-ipfs) daemon processes: locating the
// binary, initializing repositories, spawning and supervising the daemon,
// and running ipfs commands against a node's repo.
package daemon

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// binaryName returns the ipfs executable name for this platform.
func binaryName() string {
	if runtime.GOOS == "windows" {
		return "ipfs.exe"
	}
	return "ipfs"
}

// platformDefaultBinary is the last-resort binary path per platform.
// It is returned without checking that it exists; the spawn will fail
// with a clear exec error if it does not.
func platformDefaultBinary() string {
	if runtime.GOOS == "windows" {
		programFiles := os.Getenv("ProgramFiles")
		if programFiles == "" {
			programFiles = `C:\Program Files`
		}
		return filepath.Join(programFiles, "ipfs", "ipfs.exe")
	}
	return "/usr/local/bin/ipfs"
}

// LocateBinary resolves the ipfs binary to use for a node.
//
// The chain is: explicitly configured path, a sibling binary next to
// the berth executable, the PATH, then the platform default. Configured
// paths are trusted as-is (after tilde expansion) so users can point at
// builds that do not exist yet. The platform default is likewise
// returned unverified.
func LocateBinary(configured string) string {
	if trimmed := strings.TrimSpace(configured); trimmed != "" {
		return expandTilde(trimmed)
	}

	if exe, err := os.Executable(); err == nil {
		sibling := filepath.Join(filepath.Dir(exe), binaryName())
		if info, err := os.Stat(sibling); err == nil && !info.IsDir() {
			return sibling
		}
	}

	if path, err := exec.LookPath(binaryName()); err == nil {
		return path
	}

	return platformDefaultBinary()
}

// expandTilde expands ~ to the user's home directory.
func expandTilde(path string) string {
	if path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return home
	}
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
