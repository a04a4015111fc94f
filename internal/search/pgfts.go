package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// PgFTS implements Searcher over the projects table's generated tsvector.
type PgFTS struct {
	db *sql.DB
}

func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true; if Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

const (
	pgftsCountSQL = `
		SELECT count(*)
		FROM projects
		WHERE owner_id = $1 AND fts @@ plainto_tsquery('english', $2)`

	pgftsDataSQL = `
		SELECT id, title,
			ts_headline('english', coalesce(body_text, ''), plainto_tsquery('english', $2), 'MaxFragments=1,MaxWords=30') AS snippet,
			last_modified
		FROM projects
		WHERE owner_id = $1 AND fts @@ plainto_tsquery('english', $2)
		ORDER BY ts_rank(fts, plainto_tsquery('english', $2)) DESC, last_modified DESC
		LIMIT $3 OFFSET $4`
)

// Search ranks the owner's projects with plainto_tsquery and ts_rank, using
// ts_headline for snippets.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" || q.OwnerID == "" {
		return nil, 0, nil
	}
	ctx := context.Background()

	var total int
	if err := p.db.QueryRowContext(ctx, pgftsCountSQL, q.OwnerID, q.Text).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, pgftsDataSQL, q.OwnerID, q.Text, normalizeLimit(q.Limit), max(q.Offset, 0))
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var modified time.Time
		if err := rows.Scan(&r.ProjectID, &r.Title, &r.Snippet, &modified); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.LastModified = modified.UTC()
		results = append(results, r)
	}
	return results, total, rows.Err()
}

// LoadAllRecords returns every project as an index record for reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]ProjectRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, owner_id, title,
			coalesce(metadata->>'author', ''), coalesce(metadata->>'logline', ''),
			body_text, last_modified
		FROM projects
	`)
	if err != nil {
		return nil, fmt.Errorf("load projects: %w", err)
	}
	defer rows.Close()

	records := make([]ProjectRecord, 0)
	for rows.Next() {
		var r ProjectRecord
		var modified time.Time
		if err := rows.Scan(&r.ProjectID, &r.OwnerID, &r.Title, &r.Author, &r.Logline, &r.Body, &modified); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		r.ID = DocumentID(r.OwnerID, r.ProjectID)
		r.LastModified = modified.Unix()
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate projects: %w", err)
	}
	return records, nil
}
