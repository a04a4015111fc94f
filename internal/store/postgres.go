package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"scriptroom/api/internal/document"
)

var ErrOwnerRequired = errors.New("owner id is required")

// PostgresStore is the authoritative per-owner project collection.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ListProjects returns the owner's projects, most recently written first.
func (s *PostgresStore) ListProjects(ctx context.Context, ownerID string) ([]document.Project, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, ErrOwnerRequired
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, metadata, content, last_modified
		FROM projects
		WHERE owner_id = $1
		ORDER BY server_updated_at DESC, last_modified DESC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	items := make([]document.Project, 0)
	for rows.Next() {
		var (
			item     document.Project
			metadata []byte
			content  []byte
		)
		if err := rows.Scan(&item.ID, &metadata, &content, &item.LastModified); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		if err := json.Unmarshal(metadata, &item.Metadata); err != nil {
			return nil, fmt.Errorf("decode project %s metadata: %w", item.ID, err)
		}
		if err := json.Unmarshal(content, &item.Content); err != nil {
			return nil, fmt.Errorf("decode project %s content: %w", item.ID, err)
		}
		item.LastModified = item.LastModified.UTC()
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate projects: %w", err)
	}
	return items, nil
}

// UpsertProject writes every project field; repeating it with the same value
// only moves server_updated_at.
func (s *PostgresStore) UpsertProject(ctx context.Context, ownerID string, project document.Project) error {
	if strings.TrimSpace(ownerID) == "" {
		return ErrOwnerRequired
	}
	metadata, err := json.Marshal(project.Metadata)
	if err != nil {
		return fmt.Errorf("encode project metadata: %w", err)
	}
	content := project.Content
	if content == nil {
		content = []document.Block{}
	}
	contentJSON, err := json.Marshal(content)
	if err != nil {
		return fmt.Errorf("encode project content: %w", err)
	}
	lastModified := project.LastModified
	if lastModified.IsZero() {
		lastModified = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO projects (owner_id, id, title, metadata, content, body_text, last_modified, server_updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (owner_id, id) DO UPDATE SET
			title = EXCLUDED.title,
			metadata = EXCLUDED.metadata,
			content = EXCLUDED.content,
			body_text = EXCLUDED.body_text,
			last_modified = EXCLUDED.last_modified,
			server_updated_at = NOW()
	`, ownerID, project.ID, project.Metadata.Title, string(metadata), string(contentJSON), document.PlainText(project), lastModified)
	if err != nil {
		return fmt.Errorf("upsert project: %w", err)
	}
	return nil
}

// RemoveProject deletes the project; a missing row is not an error.
func (s *PostgresStore) RemoveProject(ctx context.Context, ownerID, projectID string) error {
	if strings.TrimSpace(ownerID) == "" {
		return ErrOwnerRequired
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE owner_id=$1 AND id=$2`, ownerID, projectID); err != nil {
		return fmt.Errorf("remove project: %w", err)
	}
	return nil
}
