package daemon

import (
	"context"
	"fmt"
	"strings"

	ma "github.com/multiformats/go-multiaddr"
)

// SetAPIAddress points the repo's API listener at addr via
// `ipfs config Addresses.API`. The address must parse as a multiaddr;
// the change takes effect on the next daemon start.
func SetAPIAddress(ctx context.Context, bin, repoDir, addr string) error {
	if _, err := ma.NewMultiaddr(addr); err != nil {
		return fmt.Errorf("invalid api address %q: %w", addr, err)
	}

	out, err := RunCmd(ctx, bin, repoDir, "config", "Addresses.API", addr)
	if err != nil {
		return fmt.Errorf("failed to set api address: %w", err)
	}
	if err := out.Err(); err != nil {
		return fmt.Errorf("failed to set api address: %w", err)
	}
	return nil
}

// ConfigValue reads a single config key from the repo.
func ConfigValue(ctx context.Context, bin, repoDir, key string) (string, error) {
	out, err := RunCmd(ctx, bin, repoDir, "config", key)
	if err != nil {
		return "", err
	}
	if err := out.Err(); err != nil {
		return "", err
	}
	return strings.TrimSpace(out.Stdout), nil
}

// ConnectPeer connects the running daemon to the given peer via
// `ipfs swarm connect`.
func ConnectPeer(ctx context.Context, bin, repoDir, addr string) error {
	if _, err := ma.NewMultiaddr(addr); err != nil {
		return fmt.Errorf("invalid peer address %q: %w", addr, err)
	}

	out, err := RunCmd(ctx, bin, repoDir, "swarm", "connect", addr)
	if err != nil {
		return fmt.Errorf("failed to connect peer: %w", err)
	}
	return out.Err()
}

// AddBootstrapPeer adds the peer to the repo's bootstrap list via
// `ipfs bootstrap add`, so the daemon redials it on every start.
func AddBootstrapPeer(ctx context.Context, bin, repoDir, addr string) error {
	if _, err := ma.NewMultiaddr(addr); err != nil {
		return fmt.Errorf("invalid peer address %q: %w", addr, err)
	}

	out, err := RunCmd(ctx, bin, repoDir, "bootstrap", "add", addr)
	if err != nil {
		return fmt.Errorf("failed to add bootstrap peer: %w", err)
	}
	return out.Err()
}

// ResolveName resolves an IPNS name (or a domain with a dnslink
// record) to an IPFS path via `ipfs name resolve`. Requires a running
// daemon.
func ResolveName(ctx context.Context, bin, repoDir, name string) (string, error) {
	out, err := RunCmd(ctx, bin, repoDir, "name", "resolve", name)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", name, err)
	}
	if err := out.Err(); err != nil {
		return "", err
	}
	return strings.TrimSpace(out.Stdout), nil
}
