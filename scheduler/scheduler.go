// Package scheduler publishes due posts on a fixed interval.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"content-calendar/helpers"
	"content-calendar/lock"
	"content-calendar/metrics"
	"content-calendar/models"
	"content-calendar/notify"
	"content-calendar/store"
	"content-calendar/tasks"
)

var (
	ErrBusy = errors.New("a check is already in progress")
	// ErrPanic wraps a panic raised while publishing.
	ErrPanic = errors.New("publisher panicked")
)

type Publisher interface {
	Publish(ctx context.Context, post models.Post) (string, error)
}

type Notifier interface {
	Dispatch(ctx context.Context, event notify.Event, post models.Post, cause error)
}

type Config struct {
	Interval         time.Duration
	QuietLogInterval time.Duration
	ClaimTTL         time.Duration
	// APIHost resolves media stored as bare file names.
	APIHost string
}

// Report summarizes one check.
type Report struct {
	Due       int `json:"due"`
	Published int `json:"published"`
	Failed    int `json:"failed"`
	// Skipped posts were claimed by another worker or changed before publishing.
	Skipped int `json:"skipped"`
	// Deferred posts hit a transient error and stay due for the next check.
	Deferred int `json:"deferred"`
}

type Scheduler struct {
	posts     store.PostStore
	publisher Publisher
	notifier  Notifier
	locker    lock.Locker
	cfg       Config
	logger    *slog.Logger
	quiet     *helpers.ThrottledLog
	now       func() time.Time

	checking atomic.Bool

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
}

type Option func(*Scheduler)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = helpers.OrDiscard(logger) }
}

// WithLocker claims each post before publishing so that several processes
// can share one primary store.
func WithLocker(locker lock.Locker) Option {
	return func(s *Scheduler) { s.locker = locker }
}

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

func New(posts store.PostStore, publisher Publisher, notifier Notifier, cfg Config, opts ...Option) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.QuietLogInterval <= 0 {
		cfg.QuietLogInterval = 5 * time.Minute
	}
	if cfg.ClaimTTL <= 0 {
		cfg.ClaimTTL = 10 * time.Minute
	}
	s := &Scheduler{
		posts:     posts,
		publisher: publisher,
		notifier:  notifier,
		cfg:       cfg,
		logger:    helpers.DiscardLogger(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.quiet = helpers.NewThrottledLog(s.logger, cfg.QuietLogInterval)
	return s
}

// Start checks once immediately and then on every interval until Stop or
// ctx is done. Starting a running scheduler does nothing.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.stop = make(chan struct{})
	s.done = make(chan struct{})

	s.logger.Info("Scheduler started", "type", "scheduler", "interval", s.cfg.Interval.String())
	go s.loop(ctx, s.stop, s.done)
}

func (s *Scheduler) loop(ctx context.Context, stop, done chan struct{}) {
	defer func() {
		// a loop ended by ctx leaves the scheduler startable again
		s.mu.Lock()
		if s.done == done {
			s.running = false
		}
		s.mu.Unlock()
		close(done)
	}()
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	if _, err := s.CheckAndPublishDue(ctx); err != nil {
		if errors.Is(err, ErrBusy) {
			s.logger.Debug("Previous check still running, tick skipped", "type", "scheduler")
			return
		}
		s.logger.Error("Scheduled check failed", "type", "scheduler", "error", err)
	}
}

// Stop stops ticking and waits for the in-flight check, if any.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stop)
	done := s.done
	s.mu.Unlock()

	select {
	case <-done:
		s.logger.Info("Scheduler stopped", "type", "scheduler")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CheckAndPublishDue publishes every post due now, one at a time. It returns
// ErrBusy when another check is running.
func (s *Scheduler) CheckAndPublishDue(ctx context.Context) (Report, error) {
	if !s.checking.CompareAndSwap(false, true) {
		metrics.SchedulerTicks.WithLabelValues("busy").Inc()
		return Report{}, ErrBusy
	}
	defer s.checking.Store(false)

	var report Report
	due, err := s.posts.FindDue(ctx, s.now())
	if err != nil {
		metrics.SchedulerTicks.WithLabelValues("error").Inc()
		return report, fmt.Errorf("finding due posts: %w", err)
	}
	metrics.SchedulerTicks.WithLabelValues("ok").Inc()

	report.Due = len(due)
	if len(due) == 0 {
		s.quiet.Logging("info", "No due posts", "type", "scheduler")
		return report, nil
	}
	s.logger.Info("Publishing due posts", "type", "scheduler", "count", len(due))

	for _, post := range due {
		if ctx.Err() != nil {
			report.Deferred += report.Due - report.Published - report.Failed - report.Skipped - report.Deferred
			break
		}
		s.process(ctx, post, &report)
	}
	return report, nil
}

func (s *Scheduler) process(ctx context.Context, post models.Post, report *Report) {
	logger := s.logger.With("type", "posting", "postId", post.ID, "platform", string(post.Platform))

	claimed, release, err := s.claim(ctx, post.ID)
	if err != nil {
		logger.Warn("Could not claim post, retrying next check", "error", err)
		report.Deferred++
		metrics.PostsDeferred.Inc()
		return
	}
	if !claimed {
		report.Skipped++
		return
	}

	// the post may have changed since the due query
	current, err := s.posts.Get(ctx, post.ID)
	if err != nil {
		release()
		if errors.Is(err, store.ErrNotFound) {
			report.Skipped++
			return
		}
		logger.Error("Failed to reload post, retrying next check", "error", err)
		report.Deferred++
		metrics.PostsDeferred.Inc()
		return
	}
	if !current.Due(s.now()) {
		release()
		report.Skipped++
		return
	}

	current.Media = resolveMedia(current, s.cfg.APIHost)
	publishedID, err := s.safePublish(ctx, current)
	if err != nil {
		if errors.Is(err, tasks.ErrTransient) {
			release()
			logger.Warn("Transient error before publishing, retrying next check", "error", err)
			report.Deferred++
			metrics.PostsDeferred.Inc()
			return
		}
		s.markFailed(ctx, logger, current, err, report)
		return
	}
	s.markPublished(ctx, logger, current, publishedID, report)
}

func (s *Scheduler) markPublished(ctx context.Context, logger *slog.Logger, post models.Post, publishedID string, report *Report) {
	publishedAt := s.now().UTC()
	updated, err := s.posts.Update(ctx, post.ID, models.PostUpdate{
		Status:          models.Status(models.StatusPublished),
		PublishedPostID: models.String(publishedID),
		PublishedAt:     &publishedAt,
		ErrorMessage:    models.String(""),
	})
	if err != nil {
		// the claim is kept until it expires so the post is not published
		// again right away
		logger.Error("Published but failed to record status", "publishedPostId", publishedID, "error", err)
		report.Deferred++
		metrics.PostsDeferred.Inc()
		return
	}

	report.Published++
	metrics.PostsPublished.WithLabelValues(string(post.Platform)).Inc()
	logger.Info("Successfully posted on "+string(post.Platform), "publishedPostId", publishedID)
	s.notify(ctx, notify.EventPublished, updated, nil)
}

func (s *Scheduler) markFailed(ctx context.Context, logger *slog.Logger, post models.Post, cause error, report *Report) {
	message := tasks.DescribeFailure(cause)
	updated, err := s.posts.Update(ctx, post.ID, models.PostUpdate{
		Status:       models.Status(models.StatusFailed),
		ErrorMessage: models.String(message),
	})
	if err != nil {
		logger.Error("Failed to record failed status", "cause", cause, "error", err)
		report.Deferred++
		metrics.PostsDeferred.Inc()
		return
	}

	report.Failed++
	metrics.PostsFailed.WithLabelValues(string(post.Platform), tasks.Classify(cause)).Inc()
	logger.Error("Failed to post on "+string(post.Platform), "error", cause)
	s.notify(ctx, notify.EventFailed, updated, cause)
}

func (s *Scheduler) notify(ctx context.Context, event notify.Event, post models.Post, cause error) {
	if s.notifier == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Notification panicked", "type", "notification", "postId", post.ID, "panic", fmt.Sprint(r))
		}
	}()
	s.notifier.Dispatch(ctx, event, post, cause)
}

func (s *Scheduler) safePublish(ctx context.Context, post models.Post) (id string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()
	return s.publisher.Publish(ctx, post)
}

func (s *Scheduler) claim(ctx context.Context, postID string) (bool, func(), error) {
	if s.locker == nil {
		return true, func() {}, nil
	}
	key := "publish:" + postID
	ok, err := s.locker.TryLock(ctx, key, s.cfg.ClaimTTL)
	if err != nil || !ok {
		return false, nil, err
	}
	return true, func() {
		if err := s.locker.Unlock(context.WithoutCancel(ctx), key); err != nil {
			s.logger.Warn("Failed to release post claim", "type", "scheduler", "postId", postID, "error", err)
		}
	}, nil
}

func resolveMedia(post models.Post, apiHost string) []models.Media {
	media := models.NormalizeMedia(post.Media)
	for i := range media {
		media[i].URL = media[i].ResolveURL(apiHost, post.ID)
	}
	return media
}
