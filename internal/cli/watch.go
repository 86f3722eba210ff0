package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/berth-sh/berth/internal/db"
	"github.com/berth-sh/berth/internal/models"
)

// StreamConfig configures event streaming behavior.
type StreamConfig struct {
	// PollInterval is how often to check for new events.
	PollInterval time.Duration

	// EventTypes filters to specific event types (nil = all).
	EventTypes []models.EventType

	// EntityTypes filters to specific entity types (nil = all).
	EntityTypes []models.EntityType

	// EntityID filters to a specific entity.
	EntityID string

	// Since streams events after this timestamp.
	Since *time.Time

	// IncludeExisting includes events before streaming starts.
	IncludeExisting bool

	// BatchSize is the max events per poll.
	BatchSize int
}

// DefaultStreamConfig returns sensible defaults for streaming.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		PollInterval:    500 * time.Millisecond,
		IncludeExisting: false,
		BatchSize:       100,
	}
}

// EventStreamer streams events to an output writer in JSONL format.
type EventStreamer struct {
	repo   *db.EventRepository
	out    io.Writer
	config StreamConfig
	logger func(string, ...any)
}

// NewEventStreamer creates a new event streamer.
func NewEventStreamer(repo *db.EventRepository, out io.Writer, config StreamConfig) *EventStreamer {
	if config.PollInterval == 0 {
		config.PollInterval = 500 * time.Millisecond
	}
	if config.BatchSize == 0 {
		config.BatchSize = 100
	}
	return &EventStreamer{
		repo:   repo,
		out:    out,
		config: config,
		logger: func(format string, args ...any) {
			if IsVerbose() {
				fmt.Fprintf(os.Stderr, format+"\n", args...)
			}
		},
	}
}

// Stream starts streaming events until the context is cancelled.
// Returns nil on graceful shutdown (Ctrl+C), error otherwise.
func (s *EventStreamer) Stream(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case <-sigChan:
			s.logger("Received interrupt, shutting down...")
			cancel()
		case <-ctx.Done():
		}
	}()

	var cursor string
	var since *time.Time

	if s.config.IncludeExisting {
		// Start from the beginning or specified time.
		since = s.config.Since
	} else {
		now := time.Now().UTC()
		since = &now
	}

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	s.logger("Starting event stream (poll interval: %v)", s.config.PollInterval)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			events, nextCursor, err := s.poll(ctx, cursor, since)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("failed to poll events: %w", err)
			}

			for _, event := range events {
				if err := s.writeEvent(event); err != nil {
					return fmt.Errorf("failed to write event: %w", err)
				}
			}

			if nextCursor != "" {
				cursor = nextCursor
				// Cursor-based pagination takes over after the
				// first batch.
				since = nil
			}
		}
	}
}

// poll fetches the next batch of events.
func (s *EventStreamer) poll(ctx context.Context, cursor string, since *time.Time) ([]*models.Event, string, error) {
	query := db.EventQuery{
		Cursor: cursor,
		Since:  since,
		Limit:  s.config.BatchSize,
	}

	if len(s.config.EventTypes) == 1 {
		query.Type = &s.config.EventTypes[0]
	}
	if len(s.config.EntityTypes) == 1 {
		query.EntityType = &s.config.EntityTypes[0]
	}
	if s.config.EntityID != "" {
		query.EntityID = &s.config.EntityID
	}

	page, err := s.repo.Query(ctx, query)
	if err != nil {
		return nil, "", err
	}

	// A partial page advances the cursor too; leaving it behind would
	// re-emit the same events on the next poll.
	nextCursor := page.NextCursor
	if nextCursor == "" && len(page.Events) > 0 {
		nextCursor = page.Events[len(page.Events)-1].ID
	}

	// Multi-valued filters are applied client-side; the query handles
	// the single-valued fast path.
	var filtered []*models.Event
	if len(s.config.EventTypes) > 1 {
		typeSet := make(map[models.EventType]bool)
		for _, t := range s.config.EventTypes {
			typeSet[t] = true
		}
		for _, e := range page.Events {
			if typeSet[e.Type] {
				filtered = append(filtered, e)
			}
		}
	} else {
		filtered = page.Events
	}

	if len(s.config.EntityTypes) > 1 {
		typeSet := make(map[models.EntityType]bool)
		for _, t := range s.config.EntityTypes {
			typeSet[t] = true
		}
		var refiltered []*models.Event
		for _, e := range filtered {
			if typeSet[e.EntityType] {
				refiltered = append(refiltered, e)
			}
		}
		filtered = refiltered
	}

	return filtered, nextCursor, nil
}

// writeEvent writes a single event as JSONL.
func (s *EventStreamer) writeEvent(event *models.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(s.out, string(data))
	return err
}

// WatchHelper implements the global --watch mode: after its normal
// output, a command streams matching events until interrupted. Returns
// nil immediately when --watch is not active.
func WatchHelper(ctx context.Context, repo *db.EventRepository, entityType models.EntityType, entityID string) error {
	if !IsWatchMode() {
		return nil
	}

	config := DefaultStreamConfig()
	config.EntityTypes = []models.EntityType{entityType}
	if entityID != "" {
		config.EntityID = entityID
	}

	streamer := NewEventStreamer(repo, os.Stdout, config)
	return streamer.Stream(ctx)
}

// MustBeJSONLForWatch ensures JSONL mode is used with --watch.
func MustBeJSONLForWatch() error {
	if IsWatchMode() && !IsJSONLOutput() {
		return fmt.Errorf("--watch requires --jsonl output format")
	}
	return nil
}

// ParseSince parses --since values: a duration back from now ("2h",
// "7d") or an absolute time (RFC3339, "2006-01-02", or a timezone-less
// "2006-01-02T15:04:05"). Empty means no bound.
func ParseSince(value string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}

	if d, err := parseDurationWithDays(value); err == nil {
		t := time.Now().Add(-d).UTC()
		return &t, nil
	}

	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if parsed, err := time.Parse(layout, value); err == nil {
			t := parsed.UTC()
			return &t, nil
		}
	}

	return nil, fmt.Errorf("invalid since value %q (want a duration like 2h or 7d, or a timestamp)", value)
}

// parseDurationWithDays extends time.ParseDuration with a day unit.
func parseDurationWithDays(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if strings.HasSuffix(value, "d") {
		number := strings.TrimSuffix(value, "d")
		days, err := strconv.ParseFloat(number, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", value)
		}
		return time.Duration(days * 24 * float64(time.Hour)), nil
	}
	return time.ParseDuration(value)
}
