package daemon

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	ma "github.com/multiformats/go-multiaddr"
)

// APIAddr returns the multiaddr the node's API server is listening on,
// read from the api file the daemon writes under its repo while it
// runs. The file is absent when no daemon is up.
func APIAddr(repoDir string) (ma.Multiaddr, error) {
	data, err := os.ReadFile(filepath.Join(repoDir, "api"))
	if err != nil {
		return nil, err
	}
	addr, err := ma.NewMultiaddr(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("invalid api file in %s: %w", repoDir, err)
	}
	return addr, nil
}

// APIHostPort returns the running daemon's API as a dialable
// host:port.
func APIHostPort(repoDir string) (string, error) {
	addr, err := APIAddr(repoDir)
	if err != nil {
		return "", err
	}
	return hostPortFromMultiaddr(addr)
}

// hostPortFromMultiaddr maps a tcp multiaddr to host:port form.
func hostPortFromMultiaddr(addr ma.Multiaddr) (string, error) {
	var host string
	for _, code := range []int{ma.P_IP4, ma.P_IP6, ma.P_DNS, ma.P_DNS4, ma.P_DNS6} {
		if value, err := addr.ValueForProtocol(code); err == nil {
			host = value
			break
		}
	}
	if host == "" {
		return "", fmt.Errorf("multiaddr %s has no host component", addr)
	}

	port, err := addr.ValueForProtocol(ma.P_TCP)
	if err != nil {
		return "", fmt.Errorf("multiaddr %s has no tcp port", addr)
	}
	return net.JoinHostPort(host, port), nil
}
