package daemon

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// IsInitialized reports whether repoDir holds an initialized IPFS
// repository. The daemon writes the repo's config file during init, so
// its existence is the initialization marker.
func IsInitialized(repoDir string) bool {
	_, err := os.Stat(filepath.Join(repoDir, "config"))
	return err == nil
}

// EnsureInitialized initializes the IPFS repository at repoDir when it
// is not already initialized. It reports whether an init actually ran,
// so callers can log and record first-time setup. Repeated calls on an
// initialized repo do nothing.
func EnsureInitialized(ctx context.Context, bin, repoDir string) (bool, error) {
	if IsInitialized(repoDir) {
		return false, nil
	}

	out, err := RunCmd(ctx, bin, repoDir, "init")
	if err != nil {
		return false, fmt.Errorf("ipfs init failed: %w", err)
	}
	if err := out.Err(); err != nil {
		return false, fmt.Errorf("ipfs init failed: %w", err)
	}
	return true, nil
}
