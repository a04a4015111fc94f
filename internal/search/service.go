package search

import (
	"context"
	"log"

	"scriptroom/api/internal/document"
)

// Service is the facade that tries Meilisearch first and falls back to PG FTS.
type Service struct {
	meili *Meili
	pgfts *PgFTS
}

// NewService creates a search service. Either backend may be nil.
func NewService(meili *Meili, pgfts *PgFTS) *Service {
	return &Service{meili: meili, pgfts: pgfts}
}

// Search tries Meilisearch if healthy, otherwise falls back to PG FTS.
func (s *Service) Search(q Query) Response {
	empty := Response{Results: []Result{}, Total: 0, Query: q.Text}
	if q.OwnerID == "" {
		return empty
	}

	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		log.Printf("search: meilisearch error, falling back to pgfts: %v", err)
	}

	if s.pgfts == nil {
		return empty
	}
	results, total, err := s.pgfts.Search(q)
	if err != nil {
		log.Printf("search: pgfts error: %v", err)
		return empty
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexProject indexes a project (fire-and-forget to Meilisearch).
func (s *Service) IndexProject(ownerID string, p document.Project) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	record := RecordFromProject(ownerID, p)
	go func() {
		if err := s.meili.IndexProject(record); err != nil {
			log.Printf("search: index project %s: %v", record.ID, err)
		}
	}()
}

// DeleteProject removes an owner's project from the search index
// (fire-and-forget).
func (s *Service) DeleteProject(ownerID, projectID string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteProject(ownerID, projectID); err != nil {
			log.Printf("search: delete project %s for %s: %v", projectID, ownerID, err)
		}
	}()
}

// ReindexAllFromPG pushes every stored project into Meilisearch.
func (s *Service) ReindexAllFromPG(ctx context.Context) {
	if s.meili == nil || !s.meili.Healthy() || s.pgfts == nil {
		return
	}
	records, err := s.pgfts.LoadAllRecords(ctx)
	if err != nil {
		log.Printf("search: reindex load failed: %v", err)
		return
	}
	if err := s.meili.IndexProjects(records); err != nil {
		log.Printf("search: reindex projects: %v", err)
	}
}

// Close stops background work.
func (s *Service) Close() {
	if s.meili != nil {
		s.meili.Close()
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
