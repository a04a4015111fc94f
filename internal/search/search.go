package search

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"scriptroom/api/internal/document"
)

// Result is a single search hit returned to the caller.
type Result struct {
	ProjectID    string    `json:"projectId"`
	Title        string    `json:"title"`
	Snippet      string    `json:"snippet"`
	LastModified time.Time `json:"lastModifiedISO,omitzero"`
}

// Query describes a search request. OwnerID is required; results never
// cross owners.
type Query struct {
	OwnerID string
	Text    string
	Limit   int
	Offset  int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// ProjectRecord is the data we index for a project. ID is the index document
// id, unique per owner and project; see DocumentID.
type ProjectRecord struct {
	ID           string `json:"id"`
	ProjectID    string `json:"projectId"`
	OwnerID      string `json:"ownerId"`
	Title        string `json:"title"`
	Author       string `json:"author"`
	Logline      string `json:"logline"`
	Body         string `json:"body"`
	LastModified int64  `json:"lastModified"`
}

// RecordFromProject flattens a project into its index record.
func RecordFromProject(ownerID string, p document.Project) ProjectRecord {
	return ProjectRecord{
		ID:           DocumentID(ownerID, p.ID),
		ProjectID:    p.ID,
		OwnerID:      ownerID,
		Title:        p.Metadata.Title,
		Author:       p.Metadata.Author,
		Logline:      p.Metadata.Logline,
		Body:         document.PlainText(p),
		LastModified: p.LastModified.Unix(),
	}
}

// DocumentID derives the index document id for an owner's project. Project
// ids are only unique per owner, and Meilisearch ids allow a narrow charset,
// so the pair is hashed.
func DocumentID(ownerID, projectID string) string {
	sum := sha256.Sum256([]byte(ownerID + "\x00" + projectID))
	return hex.EncodeToString(sum[:16])
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	if limit > 100 {
		return 100
	}
	return limit
}
