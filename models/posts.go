package models

import (
	"path"
	"strings"
	"time"
)

type PostStatus string

const (
	StatusDraft         PostStatus = "draft"
	StatusScheduled     PostStatus = "scheduled"
	StatusReady         PostStatus = "ready"
	StatusNeedsApproval PostStatus = "needs_approval"
	StatusPublished     PostStatus = "published"
	StatusFailed        PostStatus = "failed"
)

// Publishable reports whether the scheduler may pick up a post in this status.
func (s PostStatus) Publishable() bool {
	return s == StatusScheduled || s == StatusReady
}

// Terminal reports whether the scheduler is done with a post in this status.
func (s PostStatus) Terminal() bool {
	return s == StatusPublished || s == StatusFailed
}

func (s PostStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusScheduled, StatusReady, StatusNeedsApproval, StatusPublished, StatusFailed:
		return true
	}
	return false
}

type Platform string

const (
	PlatformTwitter  Platform = "twitter"
	PlatformMastodon Platform = "mastodon"
	PlatformDiscord  Platform = "discord"
	PlatformThreads  Platform = "threads"
)

type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
)

type Media struct {
	URL  string    `json:"url"`
	Kind MediaKind `json:"type"`
	Alt  string    `json:"alt,omitempty"`
}

// IsAbsolute reports whether the media URL can be fetched as is. Bare file
// names refer to uploads served by the API host.
func (m Media) IsAbsolute() bool {
	return strings.HasPrefix(m.URL, "http://") || strings.HasPrefix(m.URL, "https://")
}

// ResolveURL returns the fetchable URL of the media, resolving bare file names
// against the API host's file route for the given post.
func (m Media) ResolveURL(apiHost, postID string) string {
	if m.IsAbsolute() || apiHost == "" {
		return m.URL
	}
	return strings.TrimRight(apiHost, "/") + "/api/files/posts/" + postID + "/" + strings.TrimLeft(m.URL, "/")
}

var videoExtensions = map[string]bool{
	".mp4":  true,
	".mov":  true,
	".webm": true,
	".m4v":  true,
	".avi":  true,
}

// NormalizeMedia drops entries without a URL and fills in a missing kind from
// the file extension.
func NormalizeMedia(media []Media) []Media {
	out := make([]Media, 0, len(media))
	for _, m := range media {
		m.URL = strings.TrimSpace(m.URL)
		if m.URL == "" {
			continue
		}
		if m.Kind != MediaImage && m.Kind != MediaVideo {
			ext := strings.ToLower(path.Ext(strings.SplitN(m.URL, "?", 2)[0]))
			if videoExtensions[ext] {
				m.Kind = MediaVideo
			} else {
				m.Kind = MediaImage
			}
		}
		out = append(out, m)
	}
	return out
}

type Post struct {
	ID                string     `json:"id"`
	OwnerID           string     `json:"ownerId"`
	Platform          Platform   `json:"platform"`
	Content           string     `json:"content"`
	ScheduledTime     time.Time  `json:"scheduledTime"`
	Status            PostStatus `json:"status"`
	Media             []Media    `json:"media,omitempty"`
	ErrorMessage      string     `json:"errorMessage,omitempty"`
	ExternalMessageID string     `json:"externalMessageId,omitempty"`
	PublishedPostID   string     `json:"publishedPostId,omitempty"`
	PublishedAt       *time.Time `json:"publishedAt,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

// Due reports whether the post should be published at now.
func (p Post) Due(now time.Time) bool {
	return p.Status.Publishable() && !p.ScheduledTime.After(now)
}

// PostUpdate is a partial update. Nil fields are left untouched.
type PostUpdate struct {
	Content           *string
	ScheduledTime     *time.Time
	Status            *PostStatus
	Media             *[]Media
	ErrorMessage      *string
	ExternalMessageID *string
	PublishedPostID   *string
	PublishedAt       *time.Time
}

// Apply copies the set fields of u onto p.
func (u PostUpdate) Apply(p *Post) {
	if u.Content != nil {
		p.Content = *u.Content
	}
	if u.ScheduledTime != nil {
		p.ScheduledTime = *u.ScheduledTime
	}
	if u.Status != nil {
		p.Status = *u.Status
	}
	if u.Media != nil {
		p.Media = *u.Media
	}
	if u.ErrorMessage != nil {
		p.ErrorMessage = *u.ErrorMessage
	}
	if u.ExternalMessageID != nil {
		p.ExternalMessageID = *u.ExternalMessageID
	}
	if u.PublishedPostID != nil {
		p.PublishedPostID = *u.PublishedPostID
	}
	if u.PublishedAt != nil {
		t := *u.PublishedAt
		p.PublishedAt = &t
	}
}

func String(s string) *string { return &s }

func Status(s PostStatus) *PostStatus { return &s }

func Time(t time.Time) *time.Time { return &t }
