package syncer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"content-calendar/models"
	"content-calendar/store"

	"github.com/pocketbase/dbx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"
)

func newPrimary(t *testing.T) *store.Primary {
	t.Helper()
	db, err := dbx.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.DB().SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	p := store.NewPrimary(db)
	require.NoError(t, p.EnsureSchema(context.Background()))
	return p
}

func newMirror(t *testing.T) *store.Mirror {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	m := store.NewMirror(db)
	require.NoError(t, m.AutoMigrate(context.Background()))
	return m
}

type projection struct {
	ID            string
	Status        models.PostStatus
	Content       string
	ScheduledTime time.Time
}

func project(posts []models.Post) map[string]projection {
	out := map[string]projection{}
	for _, p := range posts {
		out[p.ID] = projection{p.ID, p.Status, p.Content, p.ScheduledTime}
	}
	return out
}

func TestMirrorConverges(t *testing.T) {
	ctx := context.Background()
	primary := newPrimary(t)
	mirror := newMirror(t)

	var factoryCalls atomic.Int32
	svc := New(Config{Enabled: true, QueueSize: 64}, func(ctx context.Context) (Mirror, error) {
		factoryCalls.Add(1)
		return mirror, nil
	}, nil)
	posts := store.NewSynced(primary, svc)

	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	a, err := posts.Create(ctx, models.Post{OwnerID: "u1", Platform: models.PlatformDiscord, Content: "a", ScheduledTime: at, Status: models.StatusScheduled})
	require.NoError(t, err)
	b, err := posts.Create(ctx, models.Post{OwnerID: "u1", Platform: models.PlatformMastodon, Content: "b", ScheduledTime: at.Add(time.Hour)})
	require.NoError(t, err)
	c, err := posts.Create(ctx, models.Post{OwnerID: "u1", Platform: models.PlatformThreads, Content: "c", ScheduledTime: at.Add(2 * time.Hour)})
	require.NoError(t, err)

	_, err = posts.Update(ctx, a.ID, models.PostUpdate{Status: models.Status(models.StatusPublished)})
	require.NoError(t, err)
	_, err = posts.Update(ctx, b.ID, models.PostUpdate{Content: models.String("b2"), ScheduledTime: models.Time(at.Add(3 * time.Hour))})
	require.NoError(t, err)
	require.NoError(t, posts.Delete(ctx, c.ID))

	require.NoError(t, svc.Flush(ctx))

	want, err := primary.FindAll(ctx, "u1")
	require.NoError(t, err)
	got, err := mirror.FindAll(ctx, "u1")
	require.NoError(t, err)

	assert.Equal(t, project(want), project(got))
	assert.Len(t, got, 2)
	assert.Equal(t, int32(1), factoryCalls.Load())
	require.NoError(t, svc.Close(ctx))
}

func TestDeleteOfUnmirroredPost(t *testing.T) {
	ctx := context.Background()
	mirror := newMirror(t)
	svc := New(Config{Enabled: true}, func(ctx context.Context) (Mirror, error) { return mirror, nil }, nil)

	svc.SyncPost(models.SyncDelete, models.Post{ID: "never-mirrored"})
	require.NoError(t, svc.Flush(ctx))

	_, err := mirror.Get(ctx, "never-mirrored")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.True(t, svc.Enabled())
}

func TestMirrorUnavailableDisablesSync(t *testing.T) {
	ctx := context.Background()
	primary := newPrimary(t)

	svc := New(Config{Enabled: true}, func(ctx context.Context) (Mirror, error) {
		return nil, errors.New("connection refused")
	}, nil)
	posts := store.NewSynced(primary, svc)

	created, err := posts.Create(ctx, models.Post{OwnerID: "u1", Platform: models.PlatformDiscord, Content: "x"})
	require.NoError(t, err)
	require.NoError(t, svc.Flush(ctx))
	assert.False(t, svc.Enabled())

	_, err = posts.Update(ctx, created.ID, models.PostUpdate{Content: models.String("y")})
	require.NoError(t, err)
	require.NoError(t, posts.Delete(ctx, created.ID))
	require.NoError(t, svc.Close(ctx))
}

func TestDisabledServiceIsNoop(t *testing.T) {
	svc := New(Config{Enabled: false}, func(ctx context.Context) (Mirror, error) {
		t.Fatal("factory must not run")
		return nil, nil
	}, nil)
	svc.SyncPost(models.SyncCreate, models.Post{ID: "p1"})
	assert.NoError(t, svc.Flush(context.Background()))
	assert.False(t, svc.Enabled())
	assert.NoError(t, svc.Close(context.Background()))
}

type blockingMirror struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once

	mu      sync.Mutex
	upserts []string
}

func (b *blockingMirror) Upsert(ctx context.Context, post models.Post) error {
	b.once.Do(func() {
		close(b.started)
		<-b.release
	})
	b.mu.Lock()
	b.upserts = append(b.upserts, post.ID)
	b.mu.Unlock()
	return nil
}

func (b *blockingMirror) Delete(ctx context.Context, id string) error { return nil }

func TestQueueFullDropsWithoutBlocking(t *testing.T) {
	ctx := context.Background()
	m := &blockingMirror{started: make(chan struct{}), release: make(chan struct{})}
	svc := New(Config{Enabled: true, QueueSize: 1}, func(ctx context.Context) (Mirror, error) { return m, nil }, nil)

	svc.SyncPost(models.SyncCreate, models.Post{ID: "p1"})
	<-m.started

	svc.SyncPost(models.SyncCreate, models.Post{ID: "p2"})
	svc.SyncPost(models.SyncCreate, models.Post{ID: "p3"})
	assert.Equal(t, int64(1), svc.Dropped())

	close(m.release)
	require.NoError(t, svc.Close(ctx))

	assert.Equal(t, []string{"p1", "p2"}, m.upserts)
}

type failingMirror struct {
	calls atomic.Int32
}

func (f *failingMirror) Upsert(ctx context.Context, post models.Post) error {
	f.calls.Add(1)
	return errors.New("mirror write failed")
}

func (f *failingMirror) Delete(ctx context.Context, id string) error {
	f.calls.Add(1)
	return errors.New("mirror write failed")
}

func TestMirrorWriteErrorsAreDropped(t *testing.T) {
	ctx := context.Background()
	m := &failingMirror{}
	svc := New(Config{Enabled: true}, func(ctx context.Context) (Mirror, error) { return m, nil }, nil)

	svc.SyncPost(models.SyncCreate, models.Post{ID: "p1"})
	svc.SyncPost(models.SyncDelete, models.Post{ID: "p1"})
	require.NoError(t, svc.Flush(ctx))

	assert.Equal(t, int32(2), m.calls.Load())
	assert.True(t, svc.Enabled())
	require.NoError(t, svc.Close(ctx))

	svc.SyncPost(models.SyncCreate, models.Post{ID: "p2"})
	assert.Equal(t, int32(2), m.calls.Load())
}

type closingMirror struct {
	mu      sync.Mutex
	upserts int
	closed  int
	// upserts seen when Close ran
	atClose int
}

func (c *closingMirror) Upsert(ctx context.Context, post models.Post) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.upserts++
	return nil
}

func (c *closingMirror) Delete(ctx context.Context, id string) error { return nil }

func (c *closingMirror) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
	c.atClose = c.upserts
	return nil
}

func TestCloseReleasesMirrorAfterDrain(t *testing.T) {
	ctx := context.Background()
	m := &closingMirror{}
	svc := New(Config{Enabled: true}, func(ctx context.Context) (Mirror, error) { return m, nil }, nil)

	for _, id := range []string{"p1", "p2", "p3"} {
		svc.SyncPost(models.SyncCreate, models.Post{ID: id})
	}
	require.NoError(t, svc.Close(ctx))
	require.NoError(t, svc.Close(ctx))

	m.mu.Lock()
	defer m.mu.Unlock()
	assert.Equal(t, 1, m.closed)
	assert.Equal(t, 3, m.atClose)
}
