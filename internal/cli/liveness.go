package cli

import (
	"context"
	"encoding/json"
	"time"

	"github.com/berth-sh/berth/internal/daemon"
	"github.com/berth-sh/berth/internal/db"
	"github.com/berth-sh/berth/internal/models"
)

const (
	nodeStaleReason     = "daemon process not found (reconciled)"
	nodeReconciledAtKey = "liveness_reconciled_at"
)

// reconcileNodeLiveness checks registry state against actual processes
// and marks nodes whose daemon died as stopped. Returns which node IDs
// have a live daemon.
func reconcileNodeLiveness(ctx context.Context, sup *daemon.Supervisor, nodeRepo *db.NodeRepository, events *db.EventRepository, nodes []*models.Node) (map[string]bool, error) {
	alive := make(map[string]bool, len(nodes))

	for _, node := range nodes {
		if node == nil {
			continue
		}

		isAlive := sup.Alive(node)
		alive[node.ID] = isAlive

		if shouldMarkNodeStale(node, isAlive) {
			if err := markNodeStale(ctx, nodeRepo, events, node); err != nil {
				return nil, err
			}
		}
	}

	return alive, nil
}

func shouldMarkNodeStale(node *models.Node, alive bool) bool {
	if node == nil || !node.IsRunning() {
		return false
	}
	return !alive
}

func markNodeStale(ctx context.Context, nodeRepo *db.NodeRepository, events *db.EventRepository, node *models.Node) error {
	now := time.Now().UTC()
	deadPID := node.PID

	node.State = models.NodeStateStopped
	node.LastError = nodeStaleReason
	node.StoppedAt = &now
	node.PID = 0
	if node.Metadata == nil {
		node.Metadata = make(map[string]string)
	}
	node.Metadata[nodeReconciledAtKey] = now.Format(time.RFC3339)

	if err := nodeRepo.Update(ctx, node); err != nil {
		return err
	}

	payload, _ := json.Marshal(models.DaemonStoppedPayload{PID: deadPID, Reason: nodeStaleReason})
	recordEvent(ctx, events, &models.Event{
		Type:       models.EventTypeDaemonDied,
		EntityType: models.EntityTypeNode,
		EntityID:   node.ID,
		Payload:    payload,
	})

	return nil
}
