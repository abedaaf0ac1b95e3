package syncer

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"content-calendar/models"
	"content-calendar/slack"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLinks struct {
	settings []models.ChatSettings
	linked   map[string][]models.Post
	err      map[string]error
}

func (f *fakeLinks) ActiveChatSettings(ctx context.Context) ([]models.ChatSettings, error) {
	return f.settings, nil
}

func (f *fakeLinks) FindLinked(ctx context.Context, ownerID string) ([]models.Post, error) {
	if err := f.err[ownerID]; err != nil {
		return nil, err
	}
	return f.linked[ownerID], nil
}

type fakeHistory map[string][]slack.Message

func (f fakeHistory) History(ctx context.Context, token, channel string, limit int) ([]slack.Message, error) {
	msgs, ok := f[channel]
	if !ok {
		return nil, errors.New("channel_not_found")
	}
	return msgs, nil
}

type recordingDeleter struct {
	mu      sync.Mutex
	deleted []string
}

func (r *recordingDeleter) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted = append(r.deleted, id)
	return nil
}

func (r *recordingDeleter) ids() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := append([]string(nil), r.deleted...)
	sort.Strings(out)
	return out
}

func linkedPost(id, ts string) models.Post {
	return models.Post{ID: id, OwnerID: "u1", ExternalMessageID: ts}
}

func TestReconcileDeletesPostsOfRemovedMessages(t *testing.T) {
	links := &fakeLinks{
		settings: []models.ChatSettings{{OwnerID: "u1", BotToken: "xoxb", ChannelID: "C1", IsActive: true}},
		linked: map[string][]models.Post{
			"u1": {
				linkedPost("kept", "1714561300.000100"),
				linkedPost("removed", "1714561250.000100"),
				linkedPost("oldest", "1714561200.000100"),
				linkedPost("before-window", "1714561100.000100"),
			},
		},
	}
	history := fakeHistory{"C1": {
		{TS: "1714561400.000100"},
		{TS: "1714561300.000100"},
		{TS: "1714561200.000100"},
	}}
	deleter := &recordingDeleter{}
	r := NewReconciler(links, history, deleter, ReconcilerConfig{}, nil)

	n := r.ReconcileOnce(context.Background())
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"removed"}, deleter.ids())
}

func TestReconcileContinuesAfterOwnerErrors(t *testing.T) {
	links := &fakeLinks{
		settings: []models.ChatSettings{
			{OwnerID: "broken", BotToken: "xoxb", ChannelID: "C404", IsActive: true},
			{OwnerID: "webhook-only", WebhookURL: "https://hooks.slack.test/x", IsActive: true},
			{OwnerID: "dberr", BotToken: "xoxb", ChannelID: "C2", IsActive: true},
			{OwnerID: "u1", BotToken: "xoxb", ChannelID: "C1", IsActive: true},
		},
		linked: map[string][]models.Post{
			"broken":       {linkedPost("b1", "5.000000")},
			"webhook-only": {linkedPost("w1", "5.000000")},
			"u1":           {linkedPost("gone", "5.000000")},
		},
		err: map[string]error{"dberr": errors.New("database is locked")},
	}
	history := fakeHistory{
		"C1": {{TS: "6.000000"}, {TS: "4.000000"}},
		"C2": {{TS: "1.000000"}},
	}
	deleter := &recordingDeleter{}
	r := NewReconciler(links, history, deleter, ReconcilerConfig{}, nil)

	assert.Equal(t, 1, r.ReconcileOnce(context.Background()))
	assert.Equal(t, []string{"gone"}, deleter.ids())
}

func TestReconcileEmptyHistoryDeletesNothing(t *testing.T) {
	links := &fakeLinks{
		settings: []models.ChatSettings{{OwnerID: "u1", BotToken: "xoxb", ChannelID: "C1", IsActive: true}},
		linked:   map[string][]models.Post{"u1": {linkedPost("p1", "5.000000")}},
	}
	deleter := &recordingDeleter{}
	r := NewReconciler(links, fakeHistory{"C1": nil}, deleter, ReconcilerConfig{}, nil)

	assert.Equal(t, 0, r.ReconcileOnce(context.Background()))
	assert.Empty(t, deleter.ids())
}

func TestReconcilerStartStop(t *testing.T) {
	links := &fakeLinks{
		settings: []models.ChatSettings{{OwnerID: "u1", BotToken: "xoxb", ChannelID: "C1", IsActive: true}},
		linked:   map[string][]models.Post{"u1": {linkedPost("gone", "5.000000")}},
	}
	history := fakeHistory{"C1": {{TS: "6.000000"}, {TS: "4.000000"}}}
	deleter := &recordingDeleter{}
	r := NewReconciler(links, history, deleter, ReconcilerConfig{Interval: 10 * time.Millisecond}, nil)

	ctx := context.Background()
	r.Start(ctx)
	r.Start(ctx)

	require.Eventually(t, func() bool { return len(deleter.ids()) > 0 }, time.Second, 5*time.Millisecond)
	require.NoError(t, r.Stop(ctx))
	require.NoError(t, r.Stop(ctx))
}

func TestReconcilerRestartsAfterContextCancel(t *testing.T) {
	links := &fakeLinks{
		settings: []models.ChatSettings{{OwnerID: "u1", BotToken: "xoxb", ChannelID: "C1", IsActive: true}},
		linked:   map[string][]models.Post{"u1": {linkedPost("gone", "5.000000")}},
	}
	history := fakeHistory{"C1": {{TS: "6.000000"}, {TS: "4.000000"}}}
	deleter := &recordingDeleter{}
	r := NewReconciler(links, history, deleter, ReconcilerConfig{Interval: time.Hour}, nil)

	first, cancel := context.WithCancel(context.Background())
	r.Start(first)
	cancel()
	require.Eventually(t, func() bool {
		r.mu.Lock()
		defer r.mu.Unlock()
		return !r.running
	}, time.Second, 5*time.Millisecond)

	r.cfg.Interval = 10 * time.Millisecond
	ctx := context.Background()
	r.Start(ctx)
	require.Eventually(t, func() bool { return len(deleter.ids()) > 0 }, time.Second, 5*time.Millisecond)
	require.NoError(t, r.Stop(ctx))
}
