// Package notify tells post owners about publish outcomes by email and Slack.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"content-calendar/helpers"
	"content-calendar/lock"
	"content-calendar/metrics"
	"content-calendar/models"
	"content-calendar/store"
)

type Event string

const (
	EventPublished Event = "published"
	EventFailed    Event = "failed"
)

// Directory looks up what the dispatcher needs to know about an owner.
type Directory interface {
	UserEmail(ctx context.Context, ownerID string) (string, error)
	Preferences(ctx context.Context, ownerID string) (models.NotificationPreference, error)
	ChatSettings(ctx context.Context, ownerID string) (models.ChatSettings, bool, error)
}

type Mailer interface {
	Send(ctx context.Context, to, subject, html string) error
}

type Chat interface {
	PostMessage(ctx context.Context, token, channel, text string) (string, error)
	PostWebhook(ctx context.Context, webhookURL, text string) error
}

// Linker records the chat message a post was announced with.
type Linker interface {
	Update(ctx context.Context, id string, update models.PostUpdate) (models.Post, error)
}

type Dispatcher struct {
	directory Directory
	mailer    Mailer
	chat      Chat
	locker    lock.Locker
	linker    Linker
	dedupeTTL time.Duration
	appName   string
	logger    *slog.Logger
}

type Option func(*Dispatcher)

func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = helpers.OrDiscard(logger) }
}

// WithLocker makes delivery at most once per post and event for ttl.
func WithLocker(locker lock.Locker, ttl time.Duration) Option {
	return func(d *Dispatcher) {
		d.locker = locker
		d.dedupeTTL = ttl
	}
}

func WithLinker(linker Linker) Option {
	return func(d *Dispatcher) { d.linker = linker }
}

func WithAppName(name string) Option {
	return func(d *Dispatcher) { d.appName = name }
}

func NewDispatcher(directory Directory, mailer Mailer, chat Chat, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		directory: directory,
		mailer:    mailer,
		chat:      chat,
		dedupeTTL: 24 * time.Hour,
		appName:   "Content Calendar",
		logger:    helpers.DiscardLogger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch delivers the event on every channel the owner enabled. Failures
// are logged and never returned.
func (d *Dispatcher) Dispatch(ctx context.Context, event Event, post models.Post, cause error) {
	logger := d.logger.With("type", "notification", "event", string(event), "postId", post.ID, "ownerId", post.OwnerID)

	if event != EventPublished && event != EventFailed {
		logger.Error("Unknown notification event")
		return
	}
	if !d.claim(ctx, logger, event, post) {
		logger.Debug("Notification already sent")
		return
	}

	reason := ""
	if event == EventFailed {
		reason = post.ErrorMessage
		if reason == "" && cause != nil {
			reason = cause.Error()
		}
		if reason == "" {
			reason = "unknown error"
		}
	}

	pref, err := d.directory.Preferences(ctx, post.OwnerID)
	if err != nil {
		logger.Error("Failed to load notification preferences", "error", err)
		pref = models.NotificationPreference{}
	}

	d.sendEmail(ctx, logger, event, post, pref, reason)
	d.sendChat(ctx, logger, event, post, reason)
}

// claim makes delivery at most once per post attempt. The scheduler stamps
// UpdatedAt with each status write, so a rescheduled post that fails again
// gets a new key.
func (d *Dispatcher) claim(ctx context.Context, logger *slog.Logger, event Event, post models.Post) bool {
	if d.locker == nil || post.ID == "" {
		return true
	}
	key := fmt.Sprintf("notify:%s:%s:%d", post.ID, event, post.UpdatedAt.UnixMilli())
	ok, err := d.locker.TryLock(ctx, key, d.dedupeTTL)
	if err != nil {
		logger.Warn("Notification dedupe unavailable, sending anyway", "error", err)
		return true
	}
	return ok
}

func (d *Dispatcher) sendEmail(ctx context.Context, logger *slog.Logger, event Event, post models.Post, pref models.NotificationPreference, reason string) {
	if d.mailer == nil {
		return
	}
	wanted := pref.EmailPostPublished
	if event == EventFailed {
		wanted = pref.EmailPostFailed
	}
	if !pref.IsActive || !wanted {
		metrics.Notifications.WithLabelValues("email", "skipped").Inc()
		return
	}

	to, err := d.directory.UserEmail(ctx, post.OwnerID)
	if err != nil || to == "" {
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			logger.Error("Failed to load owner email", "error", err)
		}
		metrics.Notifications.WithLabelValues("email", "skipped").Inc()
		return
	}

	subject, html, err := renderEmail(event, newEmailData(d.appName, post, reason))
	if err == nil {
		err = d.mailer.Send(ctx, to, subject, html)
	}
	if err != nil {
		metrics.Notifications.WithLabelValues("email", "failed").Inc()
		logger.Error("Failed to send notification email", "error", err)
		return
	}
	metrics.Notifications.WithLabelValues("email", "sent").Inc()
	logger.Info("Notification email sent")
}

func (d *Dispatcher) sendChat(ctx context.Context, logger *slog.Logger, event Event, post models.Post, reason string) {
	if d.chat == nil {
		return
	}
	settings, ok, err := d.directory.ChatSettings(ctx, post.OwnerID)
	if err != nil {
		logger.Error("Failed to load chat settings", "error", err)
		return
	}
	if !ok || !settings.CanPost() {
		return
	}

	text := chatText(event, post, reason)
	if settings.BotToken != "" && settings.ChannelID != "" {
		ts, err := d.chat.PostMessage(ctx, settings.BotToken, settings.ChannelID, text)
		if err != nil {
			metrics.Notifications.WithLabelValues("chat", "failed").Inc()
			logger.Error("Failed to post chat notification", "error", err)
			return
		}
		metrics.Notifications.WithLabelValues("chat", "sent").Inc()
		d.link(ctx, logger, post, ts)
		return
	}

	if err := d.chat.PostWebhook(ctx, settings.WebhookURL, text); err != nil {
		metrics.Notifications.WithLabelValues("chat", "failed").Inc()
		logger.Error("Failed to post chat webhook notification", "error", err)
		return
	}
	metrics.Notifications.WithLabelValues("chat", "sent").Inc()
}

// link stores the message ts on a post that has none yet.
func (d *Dispatcher) link(ctx context.Context, logger *slog.Logger, post models.Post, ts string) {
	if d.linker == nil || ts == "" || post.ExternalMessageID != "" {
		return
	}
	if _, err := d.linker.Update(ctx, post.ID, models.PostUpdate{ExternalMessageID: models.String(ts)}); err != nil {
		logger.Warn("Failed to link chat message to post", "ts", ts, "error", err)
	}
}
