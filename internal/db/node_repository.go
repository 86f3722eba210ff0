package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/berth-sh/berth/internal/models"
)

// Node repository errors.
var (
	ErrNodeNotFound      = errors.New("node not found")
	ErrNodeAlreadyExists = errors.New("node with this name already exists")
)

const nodeColumns = `
	id, short_id, name, binary_path, repo_dir, api_address,
	extra_args_json, state, pid, log_path, last_error,
	started_at, stopped_at, metadata_json, created_at, updated_at
`

// NodeRepository handles node persistence.
type NodeRepository struct {
	db *DB
}

// NewNodeRepository creates a new NodeRepository.
func NewNodeRepository(db *DB) *NodeRepository {
	return &NodeRepository{db: db}
}

// Create adds a new node to the registry.
func (r *NodeRepository) Create(ctx context.Context, node *models.Node) error {
	if err := node.Validate(); err != nil {
		return fmt.Errorf("invalid node: %w", err)
	}

	if node.ID == "" {
		node.ID = uuid.New().String()
	}
	if node.ShortID == "" {
		node.ShortID = node.ID[:8]
	}
	if node.State == "" {
		node.State = models.NodeStateStopped
	}

	now := time.Now().UTC()
	node.CreatedAt = now
	node.UpdatedAt = now

	extraArgsJSON, err := marshalStrings(node.ExtraArgs)
	if err != nil {
		return fmt.Errorf("failed to marshal extra args: %w", err)
	}
	metadataJSON, err := marshalStringMap(node.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO nodes (
			id, short_id, name, binary_path, repo_dir, api_address,
			extra_args_json, state, pid, log_path, last_error,
			started_at, stopped_at, metadata_json, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		node.ID,
		node.ShortID,
		node.Name,
		node.BinaryPath,
		node.RepoDir,
		node.APIAddress,
		extraArgsJSON,
		string(node.State),
		node.PID,
		node.LogPath,
		node.LastError,
		formatNullableTime(node.StartedAt),
		formatNullableTime(node.StoppedAt),
		metadataJSON,
		node.CreatedAt.Format(time.RFC3339),
		node.UpdatedAt.Format(time.RFC3339),
	)

	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrNodeAlreadyExists
		}
		return fmt.Errorf("failed to insert node: %w", err)
	}

	return nil
}

// Get retrieves a node by ID.
func (r *NodeRepository) Get(ctx context.Context, id string) (*models.Node, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+nodeColumns+` FROM nodes WHERE id = ?`, id)
	return r.scanNode(row)
}

// GetByShortID retrieves a node by its short ID.
func (r *NodeRepository) GetByShortID(ctx context.Context, shortID string) (*models.Node, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+nodeColumns+` FROM nodes WHERE short_id = ?`, shortID)
	return r.scanNode(row)
}

// GetByName retrieves a node by name.
func (r *NodeRepository) GetByName(ctx context.Context, name string) (*models.Node, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+nodeColumns+` FROM nodes WHERE name = ?`, name)
	return r.scanNode(row)
}

// List retrieves all nodes ordered by name.
func (r *NodeRepository) List(ctx context.Context) ([]*models.Node, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+nodeColumns+` FROM nodes ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query nodes: %w", err)
	}
	defer rows.Close()

	var nodes []*models.Node
	for rows.Next() {
		node, err := r.scanNodeFromRows(rows)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating nodes: %w", err)
	}

	return nodes, nil
}

// ListByState retrieves nodes in the given state, ordered by name.
func (r *NodeRepository) ListByState(ctx context.Context, state models.NodeState) ([]*models.Node, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+nodeColumns+` FROM nodes WHERE state = ? ORDER BY name`, string(state))
	if err != nil {
		return nil, fmt.Errorf("failed to query nodes: %w", err)
	}
	defer rows.Close()

	var nodes []*models.Node
	for rows.Next() {
		node, err := r.scanNodeFromRows(rows)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating nodes: %w", err)
	}

	return nodes, nil
}

// Update persists node changes. UpdatedAt is refreshed.
func (r *NodeRepository) Update(ctx context.Context, node *models.Node) error {
	return r.updateWithExecer(ctx, r.db, node)
}

// UpdateWithTx persists node changes using an existing transaction.
func (r *NodeRepository) UpdateWithTx(ctx context.Context, tx *sql.Tx, node *models.Node) error {
	if tx == nil {
		return fmt.Errorf("transaction is required")
	}
	return r.updateWithExecer(ctx, tx, node)
}

type execer interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
}

func (r *NodeRepository) updateWithExecer(ctx context.Context, ex execer, node *models.Node) error {
	if err := node.Validate(); err != nil {
		return fmt.Errorf("invalid node: %w", err)
	}

	node.UpdatedAt = time.Now().UTC()

	extraArgsJSON, err := marshalStrings(node.ExtraArgs)
	if err != nil {
		return fmt.Errorf("failed to marshal extra args: %w", err)
	}
	metadataJSON, err := marshalStringMap(node.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	result, err := ex.ExecContext(ctx, `
		UPDATE nodes SET
			name = ?, binary_path = ?, repo_dir = ?, api_address = ?,
			extra_args_json = ?, state = ?, pid = ?, log_path = ?,
			last_error = ?, started_at = ?, stopped_at = ?,
			metadata_json = ?, updated_at = ?
		WHERE id = ?
	`,
		node.Name,
		node.BinaryPath,
		node.RepoDir,
		node.APIAddress,
		extraArgsJSON,
		string(node.State),
		node.PID,
		node.LogPath,
		node.LastError,
		formatNullableTime(node.StartedAt),
		formatNullableTime(node.StoppedAt),
		metadataJSON,
		node.UpdatedAt.Format(time.RFC3339),
		node.ID,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrNodeAlreadyExists
		}
		return fmt.Errorf("failed to update node: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return ErrNodeNotFound
	}

	return nil
}

// Delete removes a node from the registry.
func (r *NodeRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM nodes WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete node: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return ErrNodeNotFound
	}

	return nil
}

func (r *NodeRepository) scanNode(row *sql.Row) (*models.Node, error) {
	var node models.Node
	var state string
	var extraArgsJSON, metadataJSON sql.NullString
	var startedAt, stoppedAt sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(
		&node.ID,
		&node.ShortID,
		&node.Name,
		&node.BinaryPath,
		&node.RepoDir,
		&node.APIAddress,
		&extraArgsJSON,
		&state,
		&node.PID,
		&node.LogPath,
		&node.LastError,
		&startedAt,
		&stoppedAt,
		&metadataJSON,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNodeNotFound
		}
		return nil, fmt.Errorf("failed to scan node: %w", err)
	}

	if err := r.populateNodeFields(&node, state, extraArgsJSON, metadataJSON, startedAt, stoppedAt, createdAt, updatedAt); err != nil {
		return nil, err
	}

	return &node, nil
}

func (r *NodeRepository) scanNodeFromRows(rows *sql.Rows) (*models.Node, error) {
	var node models.Node
	var state string
	var extraArgsJSON, metadataJSON sql.NullString
	var startedAt, stoppedAt sql.NullString
	var createdAt, updatedAt string

	if err := rows.Scan(
		&node.ID,
		&node.ShortID,
		&node.Name,
		&node.BinaryPath,
		&node.RepoDir,
		&node.APIAddress,
		&extraArgsJSON,
		&state,
		&node.PID,
		&node.LogPath,
		&node.LastError,
		&startedAt,
		&stoppedAt,
		&metadataJSON,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, fmt.Errorf("failed to scan node: %w", err)
	}

	if err := r.populateNodeFields(&node, state, extraArgsJSON, metadataJSON, startedAt, stoppedAt, createdAt, updatedAt); err != nil {
		return nil, err
	}

	return &node, nil
}

func (r *NodeRepository) populateNodeFields(
	node *models.Node,
	state string,
	extraArgsJSON sql.NullString,
	metadataJSON sql.NullString,
	startedAt sql.NullString,
	stoppedAt sql.NullString,
	createdAt string,
	updatedAt string,
) error {
	node.State = models.NodeState(state)

	if extraArgsJSON.Valid && extraArgsJSON.String != "" {
		if err := json.Unmarshal([]byte(extraArgsJSON.String), &node.ExtraArgs); err != nil {
			r.db.logger.Warn().Err(err).Str("node_id", node.ID).Msg("failed to parse extra args")
		}
	}
	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &node.Metadata); err != nil {
			r.db.logger.Warn().Err(err).Str("node_id", node.ID).Msg("failed to parse metadata")
		}
	}

	if t, err := parseNullableTime(startedAt); err != nil {
		return fmt.Errorf("failed to parse started_at: %w", err)
	} else {
		node.StartedAt = t
	}
	if t, err := parseNullableTime(stoppedAt); err != nil {
		return fmt.Errorf("failed to parse stopped_at: %w", err)
	} else {
		node.StoppedAt = t
	}

	createdParsed, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return fmt.Errorf("failed to parse created_at: %w", err)
	}
	updatedParsed, err := time.Parse(time.RFC3339, updatedAt)
	if err != nil {
		return fmt.Errorf("failed to parse updated_at: %w", err)
	}
	node.CreatedAt = createdParsed
	node.UpdatedAt = updatedParsed

	return nil
}

func marshalStrings(values []string) (*string, error) {
	if len(values) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(values)
	if err != nil {
		return nil, err
	}
	s := string(data)
	return &s, nil
}

func marshalStringMap(m map[string]string) (*string, error) {
	if m == nil {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	s := string(data)
	return &s, nil
}

func formatNullableTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

func parseNullableTime(value sql.NullString) (*time.Time, error) {
	if !value.Valid || value.String == "" {
		return nil, nil
	}
	parsed, err := time.Parse(time.RFC3339, value.String)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}
