package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPostStatus(t *testing.T) {
	assert := assert.New(t)

	assert.True(StatusScheduled.Publishable())
	assert.True(StatusReady.Publishable())
	assert.False(StatusDraft.Publishable())
	assert.False(StatusNeedsApproval.Publishable())
	assert.False(StatusPublished.Publishable())
	assert.False(StatusFailed.Publishable())

	assert.True(StatusPublished.Terminal())
	assert.True(StatusFailed.Terminal())
	assert.False(StatusScheduled.Terminal())

	assert.True(StatusNeedsApproval.Valid())
	assert.False(PostStatus("sending").Valid())
}

func TestPostDue(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	p := Post{Status: StatusScheduled, ScheduledTime: now.Add(-time.Minute)}
	assert.True(t, p.Due(now))

	p.ScheduledTime = now
	assert.True(t, p.Due(now))

	p.ScheduledTime = now.Add(time.Second)
	assert.False(t, p.Due(now))

	p.ScheduledTime = now.Add(-time.Hour)
	p.Status = StatusPublished
	assert.False(t, p.Due(now))
}

func TestNormalizeMedia(t *testing.T) {
	media := NormalizeMedia([]Media{
		{URL: " https://cdn.example.com/a.JPG "},
		{URL: ""},
		{URL: "clip.mp4?token=1"},
		{URL: "b.png", Kind: MediaVideo, Alt: "kept"},
	})

	assert.Equal(t, []Media{
		{URL: "https://cdn.example.com/a.JPG", Kind: MediaImage},
		{URL: "clip.mp4?token=1", Kind: MediaVideo},
		{URL: "b.png", Kind: MediaVideo, Alt: "kept"},
	}, media)
}

func TestMediaResolveURL(t *testing.T) {
	m := Media{URL: "photo_abc.png"}
	assert.Equal(t, "https://api.example.com/api/files/posts/p1/photo_abc.png", m.ResolveURL("https://api.example.com/", "p1"))
	assert.Equal(t, "photo_abc.png", m.ResolveURL("", "p1"))

	abs := Media{URL: "https://cdn.example.com/x.png"}
	assert.Equal(t, abs.URL, abs.ResolveURL("https://api.example.com", "p1"))
}

func TestPostUpdateApply(t *testing.T) {
	published := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	p := Post{Content: "old", Status: StatusScheduled}

	PostUpdate{
		Status:          Status(StatusPublished),
		PublishedPostID: String("42"),
		PublishedAt:     Time(published),
	}.Apply(&p)

	assert.Equal(t, "old", p.Content)
	assert.Equal(t, StatusPublished, p.Status)
	assert.Equal(t, "42", p.PublishedPostID)
	assert.Equal(t, published, *p.PublishedAt)
}
