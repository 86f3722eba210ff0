package daemon

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/berth-sh/berth/internal/models"
	"github.com/berth-sh/berth/internal/procutil"
)

const (
	// readyPollInterval is how often the API is probed during startup.
	readyPollInterval = 200 * time.Millisecond

	// readyGracePeriod is the fixed wait used when the readiness probe
	// is disabled.
	readyGracePeriod = 3 * time.Second

	// probeRequestTimeout bounds a single readiness request.
	probeRequestTimeout = 2 * time.Second

	// logTailLines is how much daemon log a startup failure carries.
	logTailLines = 20
)

// WaitReady blocks until the node's daemon answers API requests, the
// daemon process dies, or the startup timeout expires. When the probe
// is disabled by config it degrades to a fixed grace period. A daemon
// that dies during the wait produces an error carrying the tail of its
// log, so the user sees why (a locked repo, a bad flag) without going
// to the file.
func (s *Supervisor) WaitReady(ctx context.Context, node *models.Node, pid int) error {
	if !s.defaults.ReadyProbe {
		return s.waitFixed(ctx, node, pid)
	}

	ctx, cancel := context.WithTimeout(ctx, s.defaults.StartupTimeout)
	defer cancel()

	client := &http.Client{Timeout: probeRequestTimeout}
	for {
		if pid > 0 && !procutil.IsProcessAlive(pid) {
			return s.startupFailure(node, pid)
		}
		if err := probeAPI(ctx, client, node.RepoDir); err == nil {
			s.logger.Debug().Str("node", node.Name).Msg("Daemon API is ready")
			return nil
		}
		select {
		case <-ctx.Done():
			if pid > 0 && !procutil.IsProcessAlive(pid) {
				return s.startupFailure(node, pid)
			}
			return fmt.Errorf("daemon did not become ready within %s (check %s)",
				s.defaults.StartupTimeout, s.LogPath(node))
		case <-time.After(readyPollInterval):
		}
	}
}

// waitFixed sleeps the legacy fixed grace period, still bailing out
// early when the daemon dies.
func (s *Supervisor) waitFixed(ctx context.Context, node *models.Node, pid int) error {
	deadline := time.Now().Add(readyGracePeriod)
	for time.Now().Before(deadline) {
		if pid > 0 && !procutil.IsProcessAlive(pid) {
			return s.startupFailure(node, pid)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(readyPollInterval):
		}
	}
	return nil
}

// probeAPI issues one readiness check against the daemon API. The api
// file under the repo is written by the daemon once its API server
// listens, so a missing file just means "not yet".
func probeAPI(ctx context.Context, client *http.Client, repoDir string) error {
	hostPort, err := APIHostPort(repoDir)
	if err != nil {
		return err
	}

	// kubo requires POST on API endpoints.
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "http://"+hostPort+"/api/v0/version", nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("api returned status %d", resp.StatusCode)
	}
	return nil
}

// startupFailure builds the error for a daemon that exited while we
// were waiting on its API.
func (s *Supervisor) startupFailure(node *models.Node, pid int) error {
	tail := TailLog(s.LogPath(node), logTailLines)
	if tail == "" {
		return fmt.Errorf("daemon process %d exited during startup", pid)
	}
	return fmt.Errorf("daemon process %d exited during startup:\n%s", pid, tail)
}

// TailLog returns the last n lines of the file at path, reading at
// most the trailing 256 KiB. It returns "" when the file cannot be
// read.
func TailLog(path string, n int) string {
	if n <= 0 {
		return ""
	}

	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return ""
	}

	const maxTailBytes = 256 * 1024
	var offset int64
	if info.Size() > maxTailBytes {
		offset = info.Size() - maxTailBytes
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return ""
	}

	data, err := io.ReadAll(f)
	if err != nil {
		return ""
	}

	text := strings.TrimRight(string(data), "\n")
	if text == "" {
		return ""
	}
	lines := strings.Split(text, "\n")
	if offset > 0 && len(lines) > 1 {
		// Drop the line the seek cut in half.
		lines = lines[1:]
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
