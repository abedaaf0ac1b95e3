package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"content-calendar/models"

	"github.com/pocketbase/dbx"
)

const postsTable = "posts"

const maxZoneOffset = 14 * time.Hour

var postColumns = []string{
	"id", "owner", "platform", "content", "scheduled_time", "status", "media",
	"error", "slack_ts", "published_post_id", "published_at", "created", "updated",
}

// postRecord is a posts row in the PocketBase dialect: datetime text columns
// and media serialized as JSON text.
type postRecord struct {
	ID              string `db:"id"`
	Owner           string `db:"owner"`
	Platform        string `db:"platform"`
	Content         string `db:"content"`
	ScheduledTime   string `db:"scheduled_time"`
	Status          string `db:"status"`
	Media           string `db:"media"`
	Error           string `db:"error"`
	SlackTs         string `db:"slack_ts"`
	PublishedPostId string `db:"published_post_id"`
	PublishedAt     string `db:"published_at"`
	Created         string `db:"created"`
	Updated         string `db:"updated"`
}

// Primary is the authoritative post store, backed by PocketBase's database.
type Primary struct {
	db     dbx.Builder
	now    func() time.Time
	logger *slog.Logger
}

var _ PostStore = (*Primary)(nil)

func NewPrimary(db dbx.Builder, opts ...Option) *Primary {
	o := newOptions(opts)
	return &Primary{db: db, now: o.now, logger: o.logger}
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS {{posts}} (
		[[id]]                TEXT PRIMARY KEY NOT NULL,
		[[owner]]             TEXT NOT NULL DEFAULT '',
		[[platform]]          TEXT NOT NULL DEFAULT '',
		[[content]]           TEXT NOT NULL DEFAULT '',
		[[scheduled_time]]    TEXT NOT NULL DEFAULT '',
		[[status]]            TEXT NOT NULL DEFAULT 'draft',
		[[media]]             TEXT NOT NULL DEFAULT '[]',
		[[error]]             TEXT NOT NULL DEFAULT '',
		[[slack_ts]]          TEXT NOT NULL DEFAULT '',
		[[published_post_id]] TEXT NOT NULL DEFAULT '',
		[[published_at]]      TEXT NOT NULL DEFAULT '',
		[[created]]           TEXT NOT NULL DEFAULT '',
		[[updated]]           TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_posts_due ON {{posts}} ([[status]], [[scheduled_time]])`,
	`CREATE INDEX IF NOT EXISTS idx_posts_owner ON {{posts}} ([[owner]])`,
	`CREATE TABLE IF NOT EXISTS {{users}} (
		[[id]]    TEXT PRIMARY KEY NOT NULL,
		[[email]] TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS {{notification_preferences}} (
		[[owner]]                 TEXT PRIMARY KEY NOT NULL,
		[[email_post_published]]  BOOLEAN NOT NULL DEFAULT TRUE,
		[[email_post_failed]]     BOOLEAN NOT NULL DEFAULT TRUE,
		[[email_digest]]          BOOLEAN NOT NULL DEFAULT FALSE,
		[[browser_notifications]] BOOLEAN NOT NULL DEFAULT TRUE,
		[[is_active]]             BOOLEAN NOT NULL DEFAULT TRUE,
		[[created]]               TEXT NOT NULL DEFAULT '',
		[[updated]]               TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS {{slack_settings}} (
		[[owner]]       TEXT PRIMARY KEY NOT NULL,
		[[bot_token]]   TEXT NOT NULL DEFAULT '',
		[[channel_id]]  TEXT NOT NULL DEFAULT '',
		[[webhook_url]] TEXT NOT NULL DEFAULT '',
		[[is_active]]   BOOLEAN NOT NULL DEFAULT TRUE,
		[[created]]     TEXT NOT NULL DEFAULT '',
		[[updated]]     TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS {{connections}} (
		[[id]]              TEXT PRIMARY KEY NOT NULL,
		[[owner]]           TEXT NOT NULL DEFAULT '',
		[[name]]            TEXT NOT NULL DEFAULT '',
		[[username]]        TEXT NOT NULL DEFAULT '',
		[[connection_name]] TEXT NOT NULL DEFAULT '',
		[[connection_id]]   TEXT NOT NULL DEFAULT '',
		[[access_token]]    TEXT NOT NULL DEFAULT '',
		[[refresh_token]]   TEXT NOT NULL DEFAULT '',
		[[meta_data]]       TEXT NOT NULL DEFAULT '',
		[[deleted]]         TEXT NOT NULL DEFAULT '',
		[[created]]         TEXT NOT NULL DEFAULT '',
		[[updated]]         TEXT NOT NULL DEFAULT ''
	)`,
}

// EnsureSchema creates the tables the core reads when they do not exist yet.
func (p *Primary) EnsureSchema(ctx context.Context) error {
	for _, q := range schema {
		if _, err := p.db.NewQuery(q).WithContext(ctx).Execute(); err != nil {
			return fmt.Errorf("creating schema: %w", err)
		}
	}
	return nil
}

func (p *Primary) selectPosts(ctx context.Context) *dbx.SelectQuery {
	return p.db.Select(postColumns...).From(postsTable).WithContext(ctx)
}

func (p *Primary) FindDue(ctx context.Context, now time.Time) ([]models.Post, error) {
	// The text comparison is a coarse pre-filter: older rows may hold ISO-8601
	// with a zone offset or epoch numbers. The cutoff is widened by the largest
	// zone offset and every row is re-checked with Due below.
	cutoff := models.FormatInstant(now.Add(maxZoneOffset))[:19]

	var rows []postRecord
	err := p.selectPosts(ctx).
		Where(dbx.In("status", string(models.StatusScheduled), string(models.StatusReady))).
		AndWhere(dbx.NewExp("scheduled_time != '' AND substr(replace(scheduled_time, 'T', ' '), 1, 19) <= {:cutoff}", dbx.Params{"cutoff": cutoff})).
		OrderBy("scheduled_time ASC", "id ASC").
		All(&rows)
	if err != nil {
		return nil, fmt.Errorf("selecting due posts: %w", err)
	}

	posts := make([]models.Post, 0, len(rows))
	for _, post := range p.decode(rows) {
		if post.Due(now) {
			posts = append(posts, post)
		}
	}
	sort.SliceStable(posts, func(i, j int) bool {
		if !posts[i].ScheduledTime.Equal(posts[j].ScheduledTime) {
			return posts[i].ScheduledTime.Before(posts[j].ScheduledTime)
		}
		return posts[i].ID < posts[j].ID
	})
	return posts, nil
}

func (p *Primary) Get(ctx context.Context, id string) (models.Post, error) {
	var row postRecord
	err := p.selectPosts(ctx).Where(dbx.HashExp{"id": id}).Limit(1).One(&row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Post{}, fmt.Errorf("post %s: %w", id, ErrNotFound)
		}
		return models.Post{}, fmt.Errorf("fetching post %s: %w", id, err)
	}
	return row.toPost()
}

func (p *Primary) FindAll(ctx context.Context, ownerID string) ([]models.Post, error) {
	return p.findPosts(ctx, dbx.HashExp{"owner": ownerID})
}

// FindLinked returns the owner's posts that carry a chat message id.
func (p *Primary) FindLinked(ctx context.Context, ownerID string) ([]models.Post, error) {
	return p.findPosts(ctx, dbx.And(dbx.HashExp{"owner": ownerID}, dbx.NewExp("slack_ts != ''")))
}

func (p *Primary) findPosts(ctx context.Context, where dbx.Expression) ([]models.Post, error) {
	var rows []postRecord
	if err := p.selectPosts(ctx).Where(where).OrderBy("scheduled_time ASC", "id ASC").All(&rows); err != nil {
		return nil, fmt.Errorf("selecting posts: %w", err)
	}
	return p.decode(rows), nil
}

// decode converts rows to posts. A row that cannot be decoded is logged and
// left out so one corrupt post does not hide the others; it keeps its status.
func (p *Primary) decode(rows []postRecord) []models.Post {
	posts := make([]models.Post, 0, len(rows))
	for _, row := range rows {
		post, err := row.toPost()
		if err != nil {
			p.logger.Error("Skipping undecodable post", "type", "store", "postId", row.ID, "error", err)
			continue
		}
		posts = append(posts, post)
	}
	return posts
}

func (p *Primary) Create(ctx context.Context, post models.Post) (models.Post, error) {
	post.ID = newID()
	stampNew(&post, p.now())

	row, err := newPostRecord(post)
	if err != nil {
		return models.Post{}, err
	}
	if _, err := p.db.Insert(postsTable, row.params()).WithContext(ctx).Execute(); err != nil {
		return models.Post{}, fmt.Errorf("inserting post: %w", err)
	}
	return row.toPost()
}

func (p *Primary) Update(ctx context.Context, id string, update models.PostUpdate) (models.Post, error) {
	params := dbx.Params{"updated": models.FormatInstant(p.now())}
	if update.Content != nil {
		params["content"] = *update.Content
	}
	if update.ScheduledTime != nil {
		params["scheduled_time"] = models.FormatInstant(*update.ScheduledTime)
	}
	if update.Status != nil {
		params["status"] = string(*update.Status)
	}
	if update.Media != nil {
		media, err := encodeMedia(*update.Media)
		if err != nil {
			return models.Post{}, err
		}
		params["media"] = media
	}
	if update.ErrorMessage != nil {
		params["error"] = *update.ErrorMessage
	}
	if update.ExternalMessageID != nil {
		params["slack_ts"] = *update.ExternalMessageID
	}
	if update.PublishedPostID != nil {
		params["published_post_id"] = *update.PublishedPostID
	}
	if update.PublishedAt != nil {
		params["published_at"] = models.FormatInstant(*update.PublishedAt)
	}

	result, err := p.db.Update(postsTable, params, dbx.HashExp{"id": id}).WithContext(ctx).Execute()
	if err != nil {
		return models.Post{}, fmt.Errorf("updating post %s: %w", id, err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return models.Post{}, fmt.Errorf("post %s: %w", id, ErrNotFound)
	}
	return p.Get(ctx, id)
}

func (p *Primary) Delete(ctx context.Context, id string) error {
	if _, err := p.db.Delete(postsTable, dbx.HashExp{"id": id}).WithContext(ctx).Execute(); err != nil {
		return fmt.Errorf("deleting post %s: %w", id, err)
	}
	return nil
}

func newPostRecord(post models.Post) (postRecord, error) {
	media, err := encodeMedia(post.Media)
	if err != nil {
		return postRecord{}, err
	}
	row := postRecord{
		ID:              post.ID,
		Owner:           post.OwnerID,
		Platform:        string(post.Platform),
		Content:         post.Content,
		ScheduledTime:   models.FormatInstant(post.ScheduledTime),
		Status:          string(post.Status),
		Media:           media,
		Error:           post.ErrorMessage,
		SlackTs:         post.ExternalMessageID,
		PublishedPostId: post.PublishedPostID,
		Created:         models.FormatInstant(post.CreatedAt),
		Updated:         models.FormatInstant(post.UpdatedAt),
	}
	if post.PublishedAt != nil {
		row.PublishedAt = models.FormatInstant(*post.PublishedAt)
	}
	return row, nil
}

func (r postRecord) params() dbx.Params {
	return dbx.Params{
		"id":                r.ID,
		"owner":             r.Owner,
		"platform":          r.Platform,
		"content":           r.Content,
		"scheduled_time":    r.ScheduledTime,
		"status":            r.Status,
		"media":             r.Media,
		"error":             r.Error,
		"slack_ts":          r.SlackTs,
		"published_post_id": r.PublishedPostId,
		"published_at":      r.PublishedAt,
		"created":           r.Created,
		"updated":           r.Updated,
	}
}

func (r postRecord) toPost() (models.Post, error) {
	post := models.Post{
		ID:                r.ID,
		OwnerID:           r.Owner,
		Platform:          models.Platform(r.Platform),
		Content:           r.Content,
		Status:            models.PostStatus(r.Status),
		ErrorMessage:      r.Error,
		ExternalMessageID: r.SlackTs,
		PublishedPostID:   r.PublishedPostId,
	}

	var err error
	if post.ScheduledTime, err = models.ParseInstant(r.ScheduledTime); err != nil {
		return models.Post{}, fmt.Errorf("post %s scheduled_time: %w", r.ID, err)
	}
	if post.CreatedAt, err = models.ParseInstant(r.Created); err != nil {
		return models.Post{}, fmt.Errorf("post %s created: %w", r.ID, err)
	}
	if post.UpdatedAt, err = models.ParseInstant(r.Updated); err != nil {
		return models.Post{}, fmt.Errorf("post %s updated: %w", r.ID, err)
	}
	if r.PublishedAt != "" {
		publishedAt, err := models.ParseInstant(r.PublishedAt)
		if err != nil {
			return models.Post{}, fmt.Errorf("post %s published_at: %w", r.ID, err)
		}
		post.PublishedAt = &publishedAt
	}
	if post.Media, err = decodeMedia(r.Media); err != nil {
		return models.Post{}, fmt.Errorf("post %s media: %w", r.ID, err)
	}
	return post, nil
}

func encodeMedia(media []models.Media) (string, error) {
	if len(media) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(media)
	if err != nil {
		return "", fmt.Errorf("encoding media: %w", err)
	}
	return string(b), nil
}

// decodeMedia accepts the current object form and the older list of bare
// file names.
func decodeMedia(raw string) ([]models.Media, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" || raw == "[]" {
		return nil, nil
	}

	var media []models.Media
	if err := json.Unmarshal([]byte(raw), &media); err == nil {
		return media, nil
	}

	var names []string
	if err := json.Unmarshal([]byte(raw), &names); err != nil {
		return nil, err
	}
	media = make([]models.Media, 0, len(names))
	for _, name := range names {
		media = append(media, models.Media{URL: name})
	}
	return media, nil
}
