// Package models defines the core domain types for berth.
package models

import (
	"errors"
	"strings"
	"time"
)

// Validation sentinels.
var (
	ErrInvalidNodeName   = errors.New("node name is required")
	ErrInvalidRepoDir    = errors.New("repo dir is required")
	ErrInvalidAPIAddress = errors.New("api address must be a multiaddr (e.g. /ip4/127.0.0.1/tcp/5001)")
)

// NodeState represents the lifecycle state of a managed daemon.
type NodeState string

const (
	NodeStateStopped  NodeState = "stopped"
	NodeStateStarting NodeState = "starting"
	NodeStateRunning  NodeState = "running"
	NodeStateError    NodeState = "error"
)

// ValidNodeStates lists every state the registry may hold.
var ValidNodeStates = []NodeState{
	NodeStateStopped,
	NodeStateStarting,
	NodeStateRunning,
	NodeStateError,
}

// IsValid reports whether the state is one of the known lifecycle states.
func (s NodeState) IsValid() bool {
	for _, state := range ValidNodeStates {
		if s == state {
			return true
		}
	}
	return false
}

// Node represents one managed IPFS daemon instance: where its binary
// lives, where its repo lives, and what berth knows about the process.
type Node struct {
	// ID is the unique identifier for the node.
	ID string `json:"id"`

	// ShortID is a short unique prefix of ID, assigned at creation.
	ShortID string `json:"short_id"`

	// Name is the human-friendly name for the node.
	Name string `json:"name"`

	// BinaryPath is the ipfs binary this node runs. Empty means
	// "locate at start time".
	BinaryPath string `json:"binary_path,omitempty"`

	// RepoDir is the IPFS repository directory (IPFS_PATH).
	RepoDir string `json:"repo_dir"`

	// APIAddress is the multiaddr the daemon API should listen on.
	APIAddress string `json:"api_address"`

	// ExtraArgs are appended to the daemon command line.
	ExtraArgs []string `json:"extra_args,omitempty"`

	// State is the last known lifecycle state.
	State NodeState `json:"state"`

	// PID is the daemon process ID while running, 0 otherwise.
	PID int `json:"pid,omitempty"`

	// LogPath is the file receiving the daemon's stdout and stderr.
	LogPath string `json:"log_path,omitempty"`

	// LastError records why the node last entered the error or
	// stopped state, when known.
	LastError string `json:"last_error,omitempty"`

	// StartedAt is when the daemon was last started.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// StoppedAt is when the daemon was last observed stopped.
	StoppedAt *time.Time `json:"stopped_at,omitempty"`

	// Metadata contains additional node information.
	Metadata map[string]string `json:"metadata,omitempty"`

	// CreatedAt is when the node was registered.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the node was last updated.
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks if the node configuration is valid.
func (n *Node) Validate() error {
	validation := &ValidationErrors{}
	if strings.TrimSpace(n.Name) == "" {
		validation.Add("name", ErrInvalidNodeName)
	}
	if strings.TrimSpace(n.RepoDir) == "" {
		validation.Add("repo_dir", ErrInvalidRepoDir)
	}
	if n.APIAddress != "" && !strings.HasPrefix(n.APIAddress, "/") {
		validation.Add("api_address", ErrInvalidAPIAddress)
	}
	if n.State != "" && !n.State.IsValid() {
		validation.AddMessage("state", "unknown state "+string(n.State))
	}
	return validation.Err()
}

// IsRunning reports whether the registry believes the daemon is up.
// Callers that need the truth should reconcile against the PID first.
func (n *Node) IsRunning() bool {
	return n.State == NodeStateRunning || n.State == NodeStateStarting
}

// Uptime returns how long the daemon has been running, or 0 when it
// is not running or the start time is unknown.
func (n *Node) Uptime(now time.Time) time.Duration {
	if n.State != NodeStateRunning || n.StartedAt == nil {
		return 0
	}
	return now.Sub(*n.StartedAt)
}
