package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"content-calendar/models"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MirrorPost is a posts row in the mirror's dialect: snake_case columns and
// native timestamp columns. Timestamps are copied from the primary, so gorm's
// automatic time tracking is off.
type MirrorPost struct {
	ID                string                           `gorm:"primaryKey;type:varchar(32)"`
	OwnerID           string                           `gorm:"column:owner_id;not null;index;type:varchar(255)"`
	Platform          string                           `gorm:"not null;type:varchar(64)"`
	Content           string                           `gorm:"type:text"`
	ScheduledTime     time.Time                        `gorm:"column:scheduled_time;not null;index:idx_mirror_due,priority:2"`
	Status            string                           `gorm:"not null;type:varchar(32);index:idx_mirror_due,priority:1"`
	Media             datatypes.JSONSlice[models.Media] `gorm:"column:media"`
	ErrorMessage      string                           `gorm:"column:error_message;type:text"`
	ExternalMessageID string                           `gorm:"column:external_message_id;type:varchar(255)"`
	PublishedPostID   string                           `gorm:"column:published_post_id;type:varchar(255)"`
	PublishedAt       *time.Time                       `gorm:"column:published_at"`
	CreatedAt         time.Time                        `gorm:"column:created_at;autoCreateTime:false"`
	UpdatedAt         time.Time                        `gorm:"column:updated_at;autoUpdateTime:false"`
}

func (MirrorPost) TableName() string { return "social_posts" }

var mirrorUpdateColumns = []string{
	"owner_id", "platform", "content", "scheduled_time", "status", "media",
	"error_message", "external_message_id", "published_post_id", "published_at",
	"created_at", "updated_at",
}

// Mirror is the shadow post store. It is never authoritative.
type Mirror struct {
	db     *gorm.DB
	now    func() time.Time
	closer func()
}

var _ PostStore = (*Mirror)(nil)

func NewMirror(db *gorm.DB, opts ...Option) *Mirror {
	o := newOptions(opts)
	return &Mirror{db: db, now: o.now, closer: o.closer}
}

// Close releases the mirror's database connections.
func (m *Mirror) Close() error {
	sqlDB, err := m.db.DB()
	if err == nil {
		err = sqlDB.Close()
	}
	if m.closer != nil {
		m.closer()
	}
	if err != nil {
		return fmt.Errorf("closing mirror: %w", err)
	}
	return nil
}

func (m *Mirror) AutoMigrate(ctx context.Context) error {
	if err := m.db.WithContext(ctx).AutoMigrate(&MirrorPost{}); err != nil {
		return fmt.Errorf("migrating mirror: %w", err)
	}
	return nil
}

// Upsert writes post under its own id, updating in place when the id is
// already present.
func (m *Mirror) Upsert(ctx context.Context, post models.Post) error {
	if post.ID == "" {
		return errors.New("upserting mirror post: empty id")
	}
	row := newMirrorPost(post)
	err := m.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns(mirrorUpdateColumns),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("upserting mirror post %s: %w", post.ID, err)
	}
	return nil
}

func (m *Mirror) FindDue(ctx context.Context, now time.Time) ([]models.Post, error) {
	var rows []MirrorPost
	err := m.db.WithContext(ctx).
		Where("status IN ?", []string{string(models.StatusScheduled), string(models.StatusReady)}).
		Where("scheduled_time <= ?", now.UTC()).
		Order("scheduled_time ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("selecting due mirror posts: %w", err)
	}
	return mirrorPosts(rows), nil
}

func (m *Mirror) Get(ctx context.Context, id string) (models.Post, error) {
	var row MirrorPost
	err := m.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Post{}, fmt.Errorf("mirror post %s: %w", id, ErrNotFound)
		}
		return models.Post{}, fmt.Errorf("fetching mirror post %s: %w", id, err)
	}
	return row.toPost(), nil
}

func (m *Mirror) FindAll(ctx context.Context, ownerID string) ([]models.Post, error) {
	var rows []MirrorPost
	err := m.db.WithContext(ctx).Where("owner_id = ?", ownerID).Order("scheduled_time ASC, id ASC").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("selecting mirror posts: %w", err)
	}
	return mirrorPosts(rows), nil
}

func (m *Mirror) Create(ctx context.Context, post models.Post) (models.Post, error) {
	post.ID = newID()
	stampNew(&post, m.now())
	row := newMirrorPost(post)
	if err := m.db.WithContext(ctx).Create(&row).Error; err != nil {
		return models.Post{}, fmt.Errorf("inserting mirror post: %w", err)
	}
	return row.toPost(), nil
}

func (m *Mirror) Update(ctx context.Context, id string, update models.PostUpdate) (models.Post, error) {
	post, err := m.Get(ctx, id)
	if err != nil {
		return models.Post{}, err
	}
	update.Apply(&post)
	post.UpdatedAt = m.now().UTC()

	row := newMirrorPost(post)
	if err := m.db.WithContext(ctx).Save(&row).Error; err != nil {
		return models.Post{}, fmt.Errorf("updating mirror post %s: %w", id, err)
	}
	return row.toPost(), nil
}

func (m *Mirror) Delete(ctx context.Context, id string) error {
	if err := m.db.WithContext(ctx).Where("id = ?", id).Delete(&MirrorPost{}).Error; err != nil {
		return fmt.Errorf("deleting mirror post %s: %w", id, err)
	}
	return nil
}

func newMirrorPost(post models.Post) MirrorPost {
	row := MirrorPost{
		ID:                post.ID,
		OwnerID:           post.OwnerID,
		Platform:          string(post.Platform),
		Content:           post.Content,
		ScheduledTime:     post.ScheduledTime.UTC(),
		Status:            string(post.Status),
		Media:             datatypes.NewJSONSlice(post.Media),
		ErrorMessage:      post.ErrorMessage,
		ExternalMessageID: post.ExternalMessageID,
		PublishedPostID:   post.PublishedPostID,
		CreatedAt:         post.CreatedAt.UTC(),
		UpdatedAt:         post.UpdatedAt.UTC(),
	}
	if row.Media == nil {
		row.Media = datatypes.JSONSlice[models.Media]{}
	}
	if post.PublishedAt != nil {
		t := post.PublishedAt.UTC()
		row.PublishedAt = &t
	}
	return row
}

func (r MirrorPost) toPost() models.Post {
	post := models.Post{
		ID:                r.ID,
		OwnerID:           r.OwnerID,
		Platform:          models.Platform(r.Platform),
		Content:           r.Content,
		ScheduledTime:     r.ScheduledTime.UTC(),
		Status:            models.PostStatus(r.Status),
		ErrorMessage:      r.ErrorMessage,
		ExternalMessageID: r.ExternalMessageID,
		PublishedPostID:   r.PublishedPostID,
		CreatedAt:         r.CreatedAt.UTC(),
		UpdatedAt:         r.UpdatedAt.UTC(),
	}
	if len(r.Media) > 0 {
		post.Media = []models.Media(r.Media)
	}
	if r.PublishedAt != nil {
		t := r.PublishedAt.UTC()
		post.PublishedAt = &t
	}
	return post
}

func mirrorPosts(rows []MirrorPost) []models.Post {
	posts := make([]models.Post, 0, len(rows))
	for _, row := range rows {
		posts = append(posts, row.toPost())
	}
	return posts
}
