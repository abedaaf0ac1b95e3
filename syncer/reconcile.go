package syncer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"content-calendar/helpers"
	"content-calendar/metrics"
	"content-calendar/models"
	"content-calendar/slack"
)

// LinkSource lists the Slack integrations and the posts linked to messages.
type LinkSource interface {
	ActiveChatSettings(ctx context.Context) ([]models.ChatSettings, error)
	FindLinked(ctx context.Context, ownerID string) ([]models.Post, error)
}

type History interface {
	History(ctx context.Context, token, channel string, limit int) ([]slack.Message, error)
}

// PostDeleter deletes posts. Pass the synced store so the mirror follows.
type PostDeleter interface {
	Delete(ctx context.Context, id string) error
}

type ReconcilerConfig struct {
	Interval     time.Duration
	HistoryLimit int
}

// Reconciler deletes posts whose Slack message was deleted. Only messages
// inside the fetched history window are considered; older links are kept.
type Reconciler struct {
	source  LinkSource
	history History
	posts   PostDeleter
	cfg     ReconcilerConfig
	logger  *slog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewReconciler(source LinkSource, history History, posts PostDeleter, cfg ReconcilerConfig, logger *slog.Logger) *Reconciler {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 200
	}
	return &Reconciler{
		source:  source,
		history: history,
		posts:   posts,
		cfg:     cfg,
		logger:  helpers.OrDiscard(logger),
	}
}

// Start runs a pass every interval until Stop or ctx is done. Calling Start
// on a running reconciler does nothing.
func (r *Reconciler) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	r.running = true
	r.cancel = cancel
	r.done = make(chan struct{})

	go func(done chan struct{}) {
		defer func() {
			r.mu.Lock()
			if r.done == done {
				r.running = false
			}
			r.mu.Unlock()
			close(done)
		}()
		ticker := time.NewTicker(r.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.ReconcileOnce(ctx)
			}
		}
	}(r.done)
}

func (r *Reconciler) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	r.cancel()
	done := r.done
	r.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ReconcileOnce runs one pass over every active integration and returns the
// number of deleted posts. Per-owner failures are logged and skipped.
func (r *Reconciler) ReconcileOnce(ctx context.Context) int {
	settings, err := r.source.ActiveChatSettings(ctx)
	if err != nil {
		r.logger.Error("Failed to list slack integrations", "type", "reconcile", "error", err)
		return 0
	}

	deleted := 0
	for _, s := range settings {
		if ctx.Err() != nil {
			break
		}
		if !s.CanReadHistory() {
			continue
		}
		n, err := r.reconcileOwner(ctx, s)
		if err != nil {
			r.logger.Error("Failed to reconcile slack messages", "type", "reconcile", "ownerId", s.OwnerID, "error", err)
		}
		deleted += n
	}
	return deleted
}

func (r *Reconciler) reconcileOwner(ctx context.Context, s models.ChatSettings) (int, error) {
	linked, err := r.source.FindLinked(ctx, s.OwnerID)
	if err != nil || len(linked) == 0 {
		return 0, err
	}

	messages, err := r.history.History(ctx, s.BotToken, s.ChannelID, r.cfg.HistoryLimit)
	if err != nil {
		return 0, err
	}
	if len(messages) == 0 {
		return 0, nil
	}

	present := make(map[string]bool, len(messages))
	oldest := messages[0].TS
	for _, m := range messages {
		present[m.TS] = true
		if slack.CompareTS(m.TS, oldest) < 0 {
			oldest = m.TS
		}
	}

	deleted := 0
	for _, post := range linked {
		ts := post.ExternalMessageID
		if ts == "" || present[ts] || slack.CompareTS(ts, oldest) <= 0 {
			continue
		}
		if err := r.posts.Delete(ctx, post.ID); err != nil {
			r.logger.Error("Failed to delete post of removed slack message", "type", "reconcile", "postId", post.ID, "ts", ts, "error", err)
			continue
		}
		deleted++
		metrics.ReconciledDeletes.Inc()
		r.logger.Info("Deleted post whose slack message was removed", "type", "reconcile", "postId", post.ID, "ownerId", s.OwnerID, "ts", ts)
	}
	return deleted, nil
}
