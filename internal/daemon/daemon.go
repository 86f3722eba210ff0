package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/berth-sh/berth/internal/config"
	"github.com/berth-sh/berth/internal/logging"
	"github.com/berth-sh/berth/internal/models"
	"github.com/berth-sh/berth/internal/procutil"
)

// Lifecycle errors.
var (
	ErrAlreadyRunning = errors.New("daemon is already running")
	ErrNotRunning     = errors.New("daemon is not running")
)

const (
	logFileName = "daemon.log"
	pidFileName = "daemon.pid"

	// stopPollInterval is how often liveness is re-checked while
	// waiting for a signalled daemon to exit.
	stopPollInterval = 25 * time.Millisecond
)

// Supervisor launches and stops ipfs daemons for registered nodes. The
// daemon itself runs detached: it outlives the berth invocation that
// started it, and a later invocation finds it again through the node's
// pid file.
type Supervisor struct {
	defaults config.NodeConfig
	nodeDir  func(name string) string
	logger   zerolog.Logger
}

// NewSupervisor creates a supervisor using the configured node
// defaults and data layout.
func NewSupervisor(cfg *config.Config) *Supervisor {
	return &Supervisor{
		defaults: cfg.NodeDefaults,
		nodeDir:  cfg.NodeDir,
		logger:   logging.Component("daemon"),
	}
}

// Binary resolves the ipfs binary for the node: its own configured
// path when set, otherwise the global locate chain.
func (s *Supervisor) Binary(node *models.Node) string {
	if trimmed := strings.TrimSpace(node.BinaryPath); trimmed != "" {
		return expandTilde(trimmed)
	}
	return LocateBinary(s.defaults.Binary)
}

// NodeDir returns the directory holding the node's runtime state (log
// and pid files). This is berth state, not the IPFS repo.
func (s *Supervisor) NodeDir(node *models.Node) string {
	return s.nodeDir(node.Name)
}

// LogPath returns the node's daemon log file.
func (s *Supervisor) LogPath(node *models.Node) string {
	if node.LogPath != "" {
		return node.LogPath
	}
	return filepath.Join(s.NodeDir(node), logFileName)
}

func (s *Supervisor) pidPath(node *models.Node) string {
	return filepath.Join(s.NodeDir(node), pidFileName)
}

// readPID returns the pid recorded in the node's pid file, or 0 when
// there is none.
func (s *Supervisor) readPID(node *models.Node) int {
	data, err := os.ReadFile(s.pidPath(node))
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0
	}
	return pid
}

// Alive reports whether the node's daemon process is actually running,
// checking the pid file first and the registry's recorded pid second.
func (s *Supervisor) Alive(node *models.Node) bool {
	if pid := s.readPID(node); pid > 0 && procutil.IsProcessAlive(pid) {
		return true
	}
	return node.PID > 0 && procutil.IsProcessAlive(node.PID)
}

// StartResult describes a successfully spawned daemon.
type StartResult struct {
	PID     int
	Binary  string
	LogPath string
}

// Start spawns `ipfs daemon` for the node, detached from berth, with
// stdout and stderr appended to the node's log file. It refuses to
// start when the daemon is already alive. Start returns as soon as the
// process is up; use WaitReady to block until the API answers.
func (s *Supervisor) Start(node *models.Node) (*StartResult, error) {
	if s.Alive(node) {
		return nil, fmt.Errorf("%w (node %s)", ErrAlreadyRunning, node.Name)
	}

	bin := s.Binary(node)
	dir := s.NodeDir(node)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create node dir: %w", err)
	}

	logPath := filepath.Join(dir, logFileName)
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open daemon log: %w", err)
	}
	defer logFile.Close()

	args := append([]string{"daemon"}, node.ExtraArgs...)
	cmd := exec.Command(bin, args...)
	cmd.Dir = dir
	cmd.Env = envForRepo(node.RepoDir)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.Stdin = nil
	procutil.ConfigureDetached(cmd)

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ipfs daemon: %w", err)
	}

	pid := cmd.Process.Pid
	if err := os.WriteFile(s.pidPath(node), []byte(strconv.Itoa(pid)), 0644); err != nil {
		// Without a pid file the daemon would be untracked; better to
		// take it down again than to leak it.
		_ = cmd.Process.Kill()
		return nil, fmt.Errorf("failed to write pid file: %w", err)
	}
	_ = cmd.Process.Release()

	s.logger.Info().
		Str("node", node.Name).
		Int("pid", pid).
		Str("binary", bin).
		Str("log", logPath).
		Msg("Daemon started")

	return &StartResult{PID: pid, Binary: bin, LogPath: logPath}, nil
}

// StopResult describes how a daemon shutdown concluded.
type StopResult struct {
	// PID is the process that was stopped.
	PID int

	// Stale means the process was already gone and only the pid file
	// needed cleaning up.
	Stale bool

	// Forced means the daemon ignored graceful signals and had to be
	// killed.
	Forced bool
}

// stopStage pairs an escalation signal with how long to wait for the
// process to exit before moving on.
type stopStage struct {
	sig  os.Signal
	wait time.Duration
}

// stopStages builds the shutdown escalation ladder. The graceful
// budget controls how long the daemon gets between the first SIGTERM
// and the SIGKILL.
func stopStages(graceful time.Duration) []stopStage {
	if runtime.GOOS == "windows" {
		// No POSIX signals to escalate through.
		return []stopStage{{sig: os.Kill, wait: 5 * time.Second}}
	}
	quitWait := graceful - 3*time.Second
	if quitWait < 2*time.Second {
		quitWait = 2 * time.Second
	}
	return []stopStage{
		{sig: syscall.SIGTERM, wait: 1 * time.Second},
		{sig: syscall.SIGTERM, wait: 2 * time.Second},
		{sig: syscall.SIGQUIT, wait: quitWait},
		{sig: os.Kill, wait: 5 * time.Second},
	}
}

// Stop terminates the node's daemon, escalating SIGTERM, SIGTERM,
// SIGQUIT, SIGKILL with a wait after each. graceful bounds the time
// before the SIGKILL; <= 0 uses the configured shutdown timeout. A
// stale pid file (process already gone) is cleaned up and reported as
// success, not an error.
func (s *Supervisor) Stop(ctx context.Context, node *models.Node, graceful time.Duration) (*StopResult, error) {
	if graceful <= 0 {
		graceful = s.defaults.ShutdownTimeout
	}

	pid := s.readPID(node)
	if pid == 0 {
		pid = node.PID
	}
	if pid <= 0 {
		return nil, fmt.Errorf("%w (node %s)", ErrNotRunning, node.Name)
	}

	defer func() {
		if err := os.Remove(s.pidPath(node)); err != nil && !os.IsNotExist(err) {
			s.logger.Warn().Err(err).Str("node", node.Name).Msg("Failed to remove pid file")
		}
	}()

	if !procutil.IsProcessAlive(pid) {
		s.logger.Debug().
			Str("node", node.Name).
			Int("pid", pid).
			Msg("Daemon already gone, cleaning up stale pid file")
		return &StopResult{PID: pid, Stale: true}, nil
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return nil, fmt.Errorf("failed to find daemon process %d: %w", pid, err)
	}

	// Reap the daemon if it happens to be our own child; for daemons
	// spawned by an earlier invocation this returns immediately and
	// the liveness polling below takes over.
	go func() { _, _ = proc.Wait() }()

	forced := false
	for _, stage := range stopStages(graceful) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if stage.sig == os.Kill {
			forced = true
		}
		if err := proc.Signal(stage.sig); err != nil {
			if !procutil.IsProcessAlive(pid) {
				break
			}
			// The platform rejected the signal; escalate.
			continue
		}
		if waitForExit(ctx, pid, stage.wait) {
			break
		}
		s.logger.Debug().
			Str("node", node.Name).
			Int("pid", pid).
			Str("signal", stage.sig.String()).
			Msg("Daemon still running after signal, escalating")
	}

	// SIGKILL is not ignorable; poll until the process disappears.
	for procutil.IsProcessAlive(pid) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		time.Sleep(10 * time.Millisecond)
	}

	s.logger.Info().
		Str("node", node.Name).
		Int("pid", pid).
		Bool("forced", forced).
		Msg("Daemon stopped")
	return &StopResult{PID: pid, Forced: forced}, nil
}

// waitForExit polls for process exit up to timeout, returning true
// once the process is gone.
func waitForExit(ctx context.Context, pid int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !procutil.IsProcessAlive(pid) {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(stopPollInterval):
		}
	}
	return !procutil.IsProcessAlive(pid)
}
