// Package testutil provides shared helpers for berth tests.
package testutil

import (
	"os"
	"testing"
)

// SkipIfNoNetwork skips the test if BERTH_TEST_SKIP_NETWORK is set.
// Use this for tests that require TCP/network connectivity which may
// not be available in sandboxed environments.
func SkipIfNoNetwork(t *testing.T) {
	t.Helper()
	if os.Getenv("BERTH_TEST_SKIP_NETWORK") != "" {
		t.Skip("skipping network test: BERTH_TEST_SKIP_NETWORK is set")
	}
}

// IPFSBinary returns the path of a real ipfs binary to run integration
// tests against, or "" when BERTH_TEST_IPFS_BIN is unset and the tests
// should be skipped.
func IPFSBinary() string {
	return os.Getenv("BERTH_TEST_IPFS_BIN")
}

// RequireIPFS skips the test unless BERTH_TEST_IPFS_BIN points at an
// ipfs binary.
func RequireIPFS(t *testing.T) string {
	t.Helper()
	bin := IPFSBinary()
	if bin == "" {
		t.Skip("skipping: set BERTH_TEST_IPFS_BIN to run against a real ipfs binary")
	}
	return bin
}
