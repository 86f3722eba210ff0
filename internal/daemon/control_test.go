package daemon

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

// recordingScript builds a fake ipfs binary that appends its arguments
// to a file, one per line, so tests can assert the exact invocation.
func recordingScript(t *testing.T, extra string) (bin, argsFile string) {
	t.Helper()

	dir := t.TempDir()
	argsFile = filepath.Join(dir, "args")
	body := fmt.Sprintf(`printf '%%s\n' "$@" >>%q`, argsFile)
	if extra != "" {
		body += "\n" + extra
	}
	return writeScript(t, dir, "ipfs", body), argsFile
}

func readRecordedArgs(t *testing.T, argsFile string) string {
	t.Helper()

	data, err := os.ReadFile(argsFile)
	if err != nil {
		t.Fatalf("failed to read recorded args: %v", err)
	}
	return string(data)
}

func TestSetAPIAddress(t *testing.T) {
	skipWithoutShell(t)

	bin, argsFile := recordingScript(t, "")
	if err := SetAPIAddress(context.Background(), bin, t.TempDir(), "/ip4/127.0.0.1/tcp/5010"); err != nil {
		t.Fatalf("SetAPIAddress() error = %v", err)
	}

	want := "config\nAddresses.API\n/ip4/127.0.0.1/tcp/5010\n"
	if got := readRecordedArgs(t, argsFile); got != want {
		t.Fatalf("recorded args = %q, want %q", got, want)
	}
}

func TestSetAPIAddressRejectsNonMultiaddr(t *testing.T) {
	// host:port form is not a multiaddr; the binary must not run.
	err := SetAPIAddress(context.Background(), "ipfs-must-not-run", t.TempDir(), "127.0.0.1:5001")
	if err == nil {
		t.Fatal("expected an error for a non-multiaddr api address")
	}
}

func TestConnectPeer(t *testing.T) {
	skipWithoutShell(t)

	addr := "/ip4/203.0.113.7/tcp/4001/p2p/12D3KooWBdmLqjhpgJEXjmdEmFgCgkzcvtP9HB35sbx1fJYLharW"
	bin, argsFile := recordingScript(t, "")
	if err := ConnectPeer(context.Background(), bin, t.TempDir(), addr); err != nil {
		t.Fatalf("ConnectPeer() error = %v", err)
	}

	want := "swarm\nconnect\n" + addr + "\n"
	if got := readRecordedArgs(t, argsFile); got != want {
		t.Fatalf("recorded args = %q, want %q", got, want)
	}
}

func TestConnectPeerSurfacesDaemonError(t *testing.T) {
	skipWithoutShell(t)

	bin, _ := recordingScript(t, `echo "Error: connect failed: dial backoff" >&2
exit 1`)
	err := ConnectPeer(context.Background(), bin, t.TempDir(), "/ip4/203.0.113.7/tcp/4001")
	if err == nil {
		t.Fatal("expected the swarm connect failure to surface")
	}
}

func TestConnectPeerRejectsNonMultiaddr(t *testing.T) {
	err := ConnectPeer(context.Background(), "ipfs-must-not-run", t.TempDir(), "not-an-addr")
	if err == nil {
		t.Fatal("expected an error for a malformed peer address")
	}
}

func TestAddBootstrapPeer(t *testing.T) {
	skipWithoutShell(t)

	addr := "/dns4/peer.example.com/tcp/4001/p2p/12D3KooWBdmLqjhpgJEXjmdEmFgCgkzcvtP9HB35sbx1fJYLharW"
	bin, argsFile := recordingScript(t, "")
	if err := AddBootstrapPeer(context.Background(), bin, t.TempDir(), addr); err != nil {
		t.Fatalf("AddBootstrapPeer() error = %v", err)
	}

	want := "bootstrap\nadd\n" + addr + "\n"
	if got := readRecordedArgs(t, argsFile); got != want {
		t.Fatalf("recorded args = %q, want %q", got, want)
	}
}

func TestConfigValue(t *testing.T) {
	skipWithoutShell(t)

	bin, argsFile := recordingScript(t, `echo "/ip4/127.0.0.1/tcp/5001"`)
	got, err := ConfigValue(context.Background(), bin, t.TempDir(), "Addresses.API")
	if err != nil {
		t.Fatalf("ConfigValue() error = %v", err)
	}
	if got != "/ip4/127.0.0.1/tcp/5001" {
		t.Fatalf("ConfigValue() = %q", got)
	}

	want := "config\nAddresses.API\n"
	if gotArgs := readRecordedArgs(t, argsFile); gotArgs != want {
		t.Fatalf("recorded args = %q, want %q", gotArgs, want)
	}
}

func TestResolveName(t *testing.T) {
	skipWithoutShell(t)

	bin, argsFile := recordingScript(t, `echo "/ipfs/bafybeigdyrzt5sfp7udm7hu76uh7y26nf3efuylqabf3oclgtqy55fbzdi"`)
	got, err := ResolveName(context.Background(), bin, t.TempDir(), "docs.ipfs.tech")
	if err != nil {
		t.Fatalf("ResolveName() error = %v", err)
	}
	if got != "/ipfs/bafybeigdyrzt5sfp7udm7hu76uh7y26nf3efuylqabf3oclgtqy55fbzdi" {
		t.Fatalf("ResolveName() = %q", got)
	}

	want := "name\nresolve\ndocs.ipfs.tech\n"
	if gotArgs := readRecordedArgs(t, argsFile); gotArgs != want {
		t.Fatalf("recorded args = %q, want %q", gotArgs, want)
	}
}

func TestResolveNameSurfacesFailure(t *testing.T) {
	skipWithoutShell(t)

	bin, _ := recordingScript(t, `echo "Error: could not resolve name" >&2
exit 1`)
	_, err := ResolveName(context.Background(), bin, t.TempDir(), "nope.example.com")
	if err == nil {
		t.Fatal("expected the resolve failure to surface")
	}
}
