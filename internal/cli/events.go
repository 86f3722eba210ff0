package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/berth-sh/berth/internal/db"
	"github.com/berth-sh/berth/internal/models"
)

var (
	eventsFollow     bool
	eventsSince      string
	eventsType       string
	eventsEntityType string
	eventsNode       string
	eventsLimit      int

	eventsPruneOlderThan string
	eventsPruneBatch     int
)

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(eventsPruneCmd)

	eventsCmd.Flags().BoolVarP(&eventsFollow, "follow", "f", false, "Stream new events as they happen (JSONL)")
	eventsCmd.Flags().StringVar(&eventsSince, "since", "", "Only events after this time (duration like 2h/7d, or timestamp)")
	eventsCmd.Flags().StringVar(&eventsType, "type", "", "Only events of this type (e.g. daemon.started)")
	eventsCmd.Flags().StringVar(&eventsEntityType, "entity-type", "", "Only events for this entity type (node, registry, system)")
	eventsCmd.Flags().StringVar(&eventsNode, "node", "", "Only events for this node (name, ID, or prefix)")
	eventsCmd.Flags().IntVar(&eventsLimit, "limit", 50, "Maximum events to list")

	eventsPruneCmd.Flags().StringVar(&eventsPruneOlderThan, "older-than", "30d", "Delete events older than this (duration like 30d/720h)")
	eventsPruneCmd.Flags().IntVar(&eventsPruneBatch, "batch", 1000, "Maximum events to delete per run")
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Show the event log",
	Long: `Show the event log.

Every registry change and daemon lifecycle transition is recorded as an
event. By default the most recent events are listed; --follow streams
new events as JSONL until interrupted.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		database, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()

		eventRepo := db.NewEventRepository(database)

		since, err := ParseSince(eventsSince)
		if err != nil {
			return err
		}

		var entityID string
		if eventsNode != "" {
			nodeRepo := db.NewNodeRepository(database)
			node, err := resolveNodeByRef(ctx, nodeRepo, eventsNode)
			if err != nil {
				return err
			}
			entityID = node.ID
		}

		if eventsFollow {
			config := DefaultStreamConfig()
			if eventsType != "" {
				config.EventTypes = []models.EventType{models.EventType(eventsType)}
			}
			if eventsEntityType != "" {
				config.EntityTypes = []models.EntityType{models.EntityType(eventsEntityType)}
			}
			config.EntityID = entityID
			config.Since = since
			config.IncludeExisting = since != nil

			streamer := NewEventStreamer(eventRepo, os.Stdout, config)
			return streamer.Stream(ctx)
		}

		query := db.EventQuery{
			Since: since,
			Limit: eventsLimit,
		}
		if eventsType != "" {
			t := models.EventType(eventsType)
			query.Type = &t
		}
		if eventsEntityType != "" {
			t := models.EntityType(eventsEntityType)
			query.EntityType = &t
		}
		if entityID != "" {
			query.EntityID = &entityID
		}

		page, err := eventRepo.Query(ctx, query)
		if err != nil {
			return fmt.Errorf("failed to query events: %w", err)
		}

		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(os.Stdout, page.Events)
		}

		if len(page.Events) == 0 {
			if !IsQuiet() {
				fmt.Println("No events recorded yet.")
			}
			return nil
		}

		headers := []string{"TIME", "TYPE", "ENTITY", "ID", "DETAIL"}
		rows := make([][]string, 0, len(page.Events))
		for _, event := range page.Events {
			rows = append(rows, []string{
				event.Timestamp.Local().Format("2006-01-02 15:04:05"),
				string(event.Type),
				string(event.EntityType),
				shortID(event.EntityID),
				summarizeEventPayload(event),
			})
		}
		return writeTable(os.Stdout, headers, rows)
	},
}

var eventsPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete old events from the log",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		olderThan, err := parseDurationWithDays(eventsPruneOlderThan)
		if err != nil {
			return fmt.Errorf("invalid --older-than value %q: %w", eventsPruneOlderThan, err)
		}
		if olderThan <= 0 {
			return fmt.Errorf("--older-than must be a positive duration")
		}

		database, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()

		eventRepo := db.NewEventRepository(database)

		before := time.Now().Add(-olderThan).UTC()
		deleted, err := eventRepo.DeleteOlderThan(ctx, before, eventsPruneBatch)
		if err != nil {
			return fmt.Errorf("failed to prune events: %w", err)
		}

		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(os.Stdout, map[string]any{
				"deleted": deleted,
				"before":  before,
			})
		}

		if !IsQuiet() {
			fmt.Printf("Deleted %d event(s) older than %s\n", deleted, eventsPruneOlderThan)
		}
		return nil
	},
}

// summarizeEventPayload renders a compact one-line detail column.
func summarizeEventPayload(event *models.Event) string {
	if name, ok := event.Metadata["name"]; ok && name != "" {
		return name
	}
	if len(event.Payload) == 0 {
		return "-"
	}
	detail := strings.Join(strings.Fields(string(event.Payload)), " ")
	const maxDetail = 48
	if len(detail) > maxDetail {
		detail = detail[:maxDetail-3] + "..."
	}
	return detail
}
