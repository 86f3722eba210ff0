package models

import (
	"encoding/json"
	"time"
)

// EventType categorizes events in the system.
type EventType string

const (
	// Node registry events
	EventTypeNodeCreated EventType = "node.created"
	EventTypeNodeRemoved EventType = "node.removed"

	// Repo events
	EventTypeRepoInitialized EventType = "repo.initialized"

	// Daemon lifecycle events
	EventTypeDaemonStarted EventType = "daemon.started"
	EventTypeDaemonStopped EventType = "daemon.stopped"
	EventTypeDaemonDied    EventType = "daemon.died"

	// Configuration events
	EventTypeAPIConfigured EventType = "api.configured"

	// Peer events
	EventTypePeerConnected   EventType = "peer.connected"
	EventTypeBootstrapAdded  EventType = "bootstrap.added"
	EventTypePeerListFetched EventType = "peers.fetched"

	// System events
	EventTypeError   EventType = "error"
	EventTypeWarning EventType = "warning"
)

// EntityType identifies the type of entity an event relates to.
type EntityType string

const (
	EntityTypeNode     EntityType = "node"
	EntityTypeRegistry EntityType = "registry"
	EntityTypeSystem   EntityType = "system"
)

// Event represents an append-only log entry.
type Event struct {
	// ID is the unique identifier for the event.
	ID string `json:"id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type categorizes the event.
	Type EventType `json:"type"`

	// EntityType identifies what kind of entity this event relates to.
	EntityType EntityType `json:"entity_type"`

	// EntityID is the ID of the related entity.
	EntityID string `json:"entity_id"`

	// Payload contains event-specific data.
	Payload json.RawMessage `json:"payload,omitempty"`

	// Metadata contains additional context.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// DaemonStartedPayload is the payload for daemon.started events.
type DaemonStartedPayload struct {
	PID        int    `json:"pid"`
	BinaryPath string `json:"binary_path"`
	RepoDir    string `json:"repo_dir"`
	LogPath    string `json:"log_path,omitempty"`
}

// DaemonStoppedPayload is the payload for daemon.stopped and
// daemon.died events.
type DaemonStoppedPayload struct {
	PID      int    `json:"pid,omitempty"`
	ExitCode int    `json:"exit_code,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// PeerPayload is the payload for peer.connected and bootstrap.added
// events.
type PeerPayload struct {
	Addr string `json:"addr"`
}

// PeerListFetchedPayload is the payload for peers.fetched events.
type PeerListFetchedPayload struct {
	URL     string `json:"url"`
	Total   int    `json:"total"`
	Invalid int    `json:"invalid,omitempty"`
}

// ErrorPayload is the payload for error and warning events.
type ErrorPayload struct {
	Error   string `json:"error"`
	Context string `json:"context,omitempty"`
}
