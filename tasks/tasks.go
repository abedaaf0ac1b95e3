// Package tasks publishes posts to the social platforms.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"content-calendar/helpers"
	"content-calendar/models"
	"content-calendar/store"
)

var (
	// ErrTransient marks failures that happened before any platform call; the
	// post is left as is and retried.
	ErrTransient           = errors.New("transient")
	ErrNoConnection        = errors.New("no connection for platform")
	ErrUnsupportedPlatform = errors.New("unsupported platform")
)

// Publisher creates the post on one platform and returns the platform's id
// for it.
type Publisher interface {
	Publish(ctx context.Context, post models.Post, conn models.Connection) (string, error)
}

type PublisherFunc func(ctx context.Context, post models.Post, conn models.Connection) (string, error)

func (f PublisherFunc) Publish(ctx context.Context, post models.Post, conn models.Connection) (string, error) {
	return f(ctx, post, conn)
}

type ConnectionFinder interface {
	FindConnection(ctx context.Context, ownerID string, platform models.Platform) (models.Connection, error)
}

// Registry routes a post to the publisher of its platform using the owner's
// connection.
type Registry struct {
	connections ConnectionFinder
	publishers  map[models.Platform]Publisher
	logger      *slog.Logger
}

func NewRegistry(connections ConnectionFinder, logger *slog.Logger) *Registry {
	return &Registry{
		connections: connections,
		publishers:  map[models.Platform]Publisher{},
		logger:      helpers.OrDiscard(logger),
	}
}

func (r *Registry) Register(platform models.Platform, publisher Publisher) {
	r.publishers[platform] = publisher
}

func (r *Registry) Publish(ctx context.Context, post models.Post) (string, error) {
	publisher, ok := r.publishers[post.Platform]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedPlatform, post.Platform)
	}

	conn, err := r.connections.FindConnection(ctx, post.OwnerID, post.Platform)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", fmt.Errorf("%w: %s", ErrNoConnection, post.Platform)
		}
		return "", fmt.Errorf("%w: %w", ErrTransient, err)
	}

	r.logger.Info("Publishing post", "type", "posting", "platform", post.Platform, "postId", post.ID, "connectionId", conn.ID)
	return publisher.Publish(ctx, post, conn)
}

// Options shared by the HTTP based publishers.
type Options struct {
	Client  *http.Client
	Logger  *slog.Logger
	TempDir string
}

func (o Options) client() *http.Client {
	if o.Client != nil {
		return o.Client
	}
	return &http.Client{Timeout: 60 * time.Second}
}
