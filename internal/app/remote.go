package app

import (
	"context"

	"scriptroom/api/internal/document"
	"scriptroom/api/internal/engine"
)

// indexedRemote keeps the search index in step with the project store.
// The index is only touched after the store accepted the write.
type indexedRemote struct {
	engine.Remote
	index projectIndex
}

func (r indexedRemote) UpsertProject(ctx context.Context, ownerID string, project document.Project) error {
	if err := r.Remote.UpsertProject(ctx, ownerID, project); err != nil {
		return err
	}
	if r.index != nil {
		r.index.IndexProject(ownerID, project)
	}
	return nil
}

func (r indexedRemote) RemoveProject(ctx context.Context, ownerID, projectID string) error {
	if err := r.Remote.RemoveProject(ctx, ownerID, projectID); err != nil {
		return err
	}
	if r.index != nil {
		r.index.DeleteProject(ownerID, projectID)
	}
	return nil
}
