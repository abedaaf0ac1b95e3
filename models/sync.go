package models

import (
	"time"

	"github.com/google/uuid"
)

type SyncOperation string

const (
	SyncCreate SyncOperation = "create"
	SyncUpdate SyncOperation = "update"
	SyncDelete SyncOperation = "delete"
)

const PostsTable = "posts"

// SyncEvent describes one primary-store mutation to replay on the mirror. It
// lives only in memory.
type SyncEvent struct {
	ID        string
	Operation SyncOperation
	Table     string
	RecordID  string
	Snapshot  Post
	OwnerID   string
	Timestamp time.Time
}

func NewPostSyncEvent(op SyncOperation, post Post, now time.Time) SyncEvent {
	return SyncEvent{
		ID:        uuid.NewString(),
		Operation: op,
		Table:     PostsTable,
		RecordID:  post.ID,
		Snapshot:  post,
		OwnerID:   post.OwnerID,
		Timestamp: now.UTC(),
	}
}
