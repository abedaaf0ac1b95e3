package store

import (
	"context"
	"errors"

	"content-calendar/models"
)

// Syncer receives committed primary mutations. SyncPost must not block.
type Syncer interface {
	SyncPost(op models.SyncOperation, post models.Post)
}

// Synced reports every successful mutation of the wrapped store to a Syncer.
// Failed mutations are not reported.
type Synced struct {
	PostStore
	syncer Syncer
}

var _ PostStore = (*Synced)(nil)

func NewSynced(inner PostStore, syncer Syncer) *Synced {
	return &Synced{PostStore: inner, syncer: syncer}
}

func (s *Synced) Create(ctx context.Context, post models.Post) (models.Post, error) {
	created, err := s.PostStore.Create(ctx, post)
	if err != nil {
		return models.Post{}, err
	}
	s.syncer.SyncPost(models.SyncCreate, created)
	return created, nil
}

func (s *Synced) Update(ctx context.Context, id string, update models.PostUpdate) (models.Post, error) {
	updated, err := s.PostStore.Update(ctx, id, update)
	if err != nil {
		return models.Post{}, err
	}
	s.syncer.SyncPost(models.SyncUpdate, updated)
	return updated, nil
}

func (s *Synced) Delete(ctx context.Context, id string) error {
	snapshot, err := s.PostStore.Get(ctx, id)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return err
		}
		snapshot = models.Post{ID: id}
	}
	if err := s.PostStore.Delete(ctx, id); err != nil {
		return err
	}
	s.syncer.SyncPost(models.SyncDelete, snapshot)
	return nil
}
