// Package syncer replays primary post mutations onto the mirror store and
// reconciles posts with their Slack messages.
package syncer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"content-calendar/helpers"
	"content-calendar/metrics"
	"content-calendar/models"
)

// Mirror is the write side of the mirror store.
type Mirror interface {
	Upsert(ctx context.Context, post models.Post) error
	Delete(ctx context.Context, id string) error
}

// MirrorFactory connects to the mirror. It runs once, on the first event. A
// mirror that implements io.Closer is closed by Service.Close once the queue
// has drained.
type MirrorFactory func(ctx context.Context) (Mirror, error)

type Config struct {
	Enabled      bool
	QueueSize    int
	WriteTimeout time.Duration
}

type item struct {
	event models.SyncEvent
	done  chan struct{}
}

// Service replays SyncEvents on the mirror from a single consumer goroutine,
// in the order they were accepted.
type Service struct {
	factory MirrorFactory
	cfg     Config
	logger  *slog.Logger
	now     func() time.Time

	queue   chan item
	stopped chan struct{}

	// mu guards closed and the closing of queue; the consumer never takes it
	mu     sync.RWMutex
	closed bool

	disabled  atomic.Bool
	dropped   atomic.Int64
	startOnce sync.Once
	initOnce  sync.Once
	mirror    Mirror
}

func New(cfg Config, factory MirrorFactory, logger *slog.Logger) *Service {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	s := &Service{
		factory: factory,
		cfg:     cfg,
		logger:  helpers.OrDiscard(logger),
		now:     time.Now,
		queue:   make(chan item, cfg.QueueSize),
		stopped: make(chan struct{}),
	}
	s.disabled.Store(!cfg.Enabled || factory == nil)
	return s
}

// Enabled reports whether events are still being replayed.
func (s *Service) Enabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.disabled.Load() && !s.closed
}

// Dropped returns how many events were discarded because the queue was full.
func (s *Service) Dropped() int64 {
	return s.dropped.Load()
}

func (s *Service) disable(reason string, err error) {
	s.disabled.Store(true)
	s.logger.Error("Mirror sync disabled", "type", "sync", "reason", reason, "error", err)
}

// SyncPost queues a post mutation for the mirror. It never blocks: when the
// queue is full the event is dropped and counted.
func (s *Service) SyncPost(op models.SyncOperation, post models.Post) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.disabled.Load() || s.closed {
		return
	}
	s.startOnce.Do(func() { go s.run() })

	event := models.NewPostSyncEvent(op, post, s.now())
	select {
	case s.queue <- item{event: event}:
		metrics.SyncQueueDepth.Inc()
	default:
		s.dropped.Add(1)
		metrics.SyncEvents.WithLabelValues(string(op), "dropped").Inc()
		s.logger.Warn("Sync queue full, event dropped", "type", "sync", "operation", string(op), "postId", post.ID)
	}
}

// Flush waits until every event accepted before the call has been replayed.
func (s *Service) Flush(ctx context.Context) error {
	s.mu.RLock()
	if s.disabled.Load() || s.closed {
		s.mu.RUnlock()
		return nil
	}
	s.startOnce.Do(func() { go s.run() })
	done := make(chan struct{})
	select {
	case s.queue <- item{done: done}:
	case <-ctx.Done():
		s.mu.RUnlock()
		return ctx.Err()
	}
	s.mu.RUnlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting events and waits for the queue to drain.
func (s *Service) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.startOnce.Do(func() { close(s.stopped) })
	close(s.queue)
	s.mu.Unlock()

	select {
	case <-s.stopped:
	case <-ctx.Done():
		return ctx.Err()
	}

	closer, ok := s.mirror.(io.Closer)
	if !ok {
		return nil
	}
	if err := closer.Close(); err != nil {
		return fmt.Errorf("closing mirror: %w", err)
	}
	s.logger.Info("Mirror sync closed", "type", "sync")
	return nil
}

func (s *Service) run() {
	defer close(s.stopped)
	for it := range s.queue {
		if it.done != nil {
			close(it.done)
			continue
		}
		metrics.SyncQueueDepth.Dec()
		s.replay(it.event)
	}
}

func (s *Service) connect() Mirror {
	s.initOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.WriteTimeout)
		defer cancel()
		mirror, err := s.factory(ctx)
		if err != nil {
			s.disable("mirror unavailable", err)
			return
		}
		s.mirror = mirror
		s.logger.Info("Mirror sync connected", "type", "sync")
	})
	return s.mirror
}

func (s *Service) replay(event models.SyncEvent) {
	if s.disabled.Load() {
		return
	}
	mirror := s.connect()
	if mirror == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.WriteTimeout)
	defer cancel()

	var err error
	switch event.Operation {
	case models.SyncCreate, models.SyncUpdate:
		err = mirror.Upsert(ctx, event.Snapshot)
	case models.SyncDelete:
		err = mirror.Delete(ctx, event.RecordID)
	default:
		s.logger.Error("Unknown sync operation", "type", "sync", "operation", string(event.Operation))
		return
	}
	if err != nil {
		metrics.SyncEvents.WithLabelValues(string(event.Operation), "failed").Inc()
		s.logger.Error("Failed to replay event on mirror", "type", "sync", "eventId", event.ID, "operation", string(event.Operation), "postId", event.RecordID, "error", err)
		return
	}
	metrics.SyncEvents.WithLabelValues(string(event.Operation), "replayed").Inc()
	s.logger.Debug("Replayed event on mirror", "type", "sync", "eventId", event.ID, "operation", string(event.Operation), "postId", event.RecordID)
}
