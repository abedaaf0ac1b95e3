// Package store holds the post persistence contract and its two
// implementations: the primary store on PocketBase's SQLite database and the
// mirror store on Postgres.
package store

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"content-calendar/helpers"
	"content-calendar/models"

	"github.com/pocketbase/pocketbase/tools/security"
)

var ErrNotFound = errors.New("not found")

// PostStore is implemented by both the primary and the mirror. Timestamps
// cross this boundary as absolute instants; each implementation converts to
// its own column format.
type PostStore interface {
	// FindDue returns publishable posts scheduled at or before now, oldest
	// first.
	FindDue(ctx context.Context, now time.Time) ([]models.Post, error)
	Get(ctx context.Context, id string) (models.Post, error)
	FindAll(ctx context.Context, ownerID string) ([]models.Post, error)
	// Create assigns a new id and stamps CreatedAt/UpdatedAt when absent.
	Create(ctx context.Context, post models.Post) (models.Post, error)
	// Update applies a partial update, re-stamps UpdatedAt and returns the
	// stored post.
	Update(ctx context.Context, id string, update models.PostUpdate) (models.Post, error)
	// Delete removes the post. Deleting an absent id is not an error.
	Delete(ctx context.Context, id string) error
}

type Option func(*options)

type options struct {
	now    func() time.Time
	logger *slog.Logger
	closer func()
}

// WithClock replaces time.Now for timestamping.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithLogger sets the logger for rows that cannot be decoded.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = helpers.OrDiscard(logger)
	}
}

// WithCloser runs fn when the store is closed, after its own connections.
func WithCloser(fn func()) Option {
	return func(o *options) {
		o.closer = fn
	}
}

func newOptions(opts []Option) options {
	o := options{now: time.Now, logger: helpers.DiscardLogger()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

const idAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

func newID() string {
	return security.RandomStringWithAlphabet(15, idAlphabet)
}

func stampNew(post *models.Post, now time.Time) {
	now = now.UTC()
	if post.CreatedAt.IsZero() {
		post.CreatedAt = now
	}
	if post.UpdatedAt.IsZero() {
		post.UpdatedAt = post.CreatedAt
	}
	if post.Status == "" {
		post.Status = models.StatusDraft
	}
}
