package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"content-calendar/models"

	"github.com/pocketbase/dbx"
)

// UserEmail returns the owner's email address, or ErrNotFound.
func (p *Primary) UserEmail(ctx context.Context, ownerID string) (string, error) {
	var row struct {
		Email string `db:"email"`
	}
	err := p.db.Select("email").From("users").Where(dbx.HashExp{"id": ownerID}).Limit(1).WithContext(ctx).One(&row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("user %s: %w", ownerID, ErrNotFound)
		}
		return "", fmt.Errorf("fetching user %s: %w", ownerID, err)
	}
	return row.Email, nil
}

// Preferences returns the owner's notification preferences, creating the
// default row on first access.
func (p *Primary) Preferences(ctx context.Context, ownerID string) (models.NotificationPreference, error) {
	pref, err := p.findPreferences(ctx, ownerID)
	if err == nil {
		return pref, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.NotificationPreference{}, fmt.Errorf("fetching preferences for %s: %w", ownerID, err)
	}

	pref = models.DefaultNotificationPreference(ownerID)
	now := models.FormatInstant(p.now())
	_, err = p.db.NewQuery(`INSERT INTO {{notification_preferences}}
		([[owner]], [[email_post_published]], [[email_post_failed]], [[email_digest]], [[browser_notifications]], [[is_active]], [[created]], [[updated]])
		VALUES ({:owner}, {:published}, {:failed}, {:digest}, {:browser}, {:active}, {:now}, {:now})
		ON CONFLICT ([[owner]]) DO NOTHING`).
		Bind(dbx.Params{
			"owner":     pref.OwnerID,
			"published": pref.EmailPostPublished,
			"failed":    pref.EmailPostFailed,
			"digest":    pref.EmailDigest,
			"browser":   pref.BrowserNotifications,
			"active":    pref.IsActive,
			"now":       now,
		}).
		WithContext(ctx).
		Execute()
	if err != nil {
		return models.NotificationPreference{}, fmt.Errorf("creating default preferences for %s: %w", ownerID, err)
	}

	// another caller may have won the insert with different values
	return p.findPreferences(ctx, ownerID)
}

func (p *Primary) findPreferences(ctx context.Context, ownerID string) (models.NotificationPreference, error) {
	var pref models.NotificationPreference
	err := p.db.Select("owner", "email_post_published", "email_post_failed", "email_digest", "browser_notifications", "is_active").
		From("notification_preferences").
		Where(dbx.HashExp{"owner": ownerID}).
		Limit(1).
		WithContext(ctx).
		One(&pref)
	return pref, err
}

// SavePreferences stores the owner's preferences, replacing any existing row.
func (p *Primary) SavePreferences(ctx context.Context, pref models.NotificationPreference) error {
	now := models.FormatInstant(p.now())
	_, err := p.db.NewQuery(`INSERT INTO {{notification_preferences}}
		([[owner]], [[email_post_published]], [[email_post_failed]], [[email_digest]], [[browser_notifications]], [[is_active]], [[created]], [[updated]])
		VALUES ({:owner}, {:published}, {:failed}, {:digest}, {:browser}, {:active}, {:now}, {:now})
		ON CONFLICT ([[owner]]) DO UPDATE SET
			[[email_post_published]] = excluded.[[email_post_published]],
			[[email_post_failed]] = excluded.[[email_post_failed]],
			[[email_digest]] = excluded.[[email_digest]],
			[[browser_notifications]] = excluded.[[browser_notifications]],
			[[is_active]] = excluded.[[is_active]],
			[[updated]] = excluded.[[updated]]`).
		Bind(dbx.Params{
			"owner":     pref.OwnerID,
			"published": pref.EmailPostPublished,
			"failed":    pref.EmailPostFailed,
			"digest":    pref.EmailDigest,
			"browser":   pref.BrowserNotifications,
			"active":    pref.IsActive,
			"now":       now,
		}).
		WithContext(ctx).
		Execute()
	if err != nil {
		return fmt.Errorf("saving preferences for %s: %w", pref.OwnerID, err)
	}
	return nil
}

var chatColumns = []string{"owner", "bot_token", "channel_id", "webhook_url", "is_active"}

// ChatSettings returns the owner's active Slack settings. The second result
// is false when the owner has none.
func (p *Primary) ChatSettings(ctx context.Context, ownerID string) (models.ChatSettings, bool, error) {
	var settings models.ChatSettings
	err := p.db.Select(chatColumns...).
		From("slack_settings").
		Where(dbx.HashExp{"owner": ownerID, "is_active": true}).
		Limit(1).
		WithContext(ctx).
		One(&settings)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.ChatSettings{}, false, nil
		}
		return models.ChatSettings{}, false, fmt.Errorf("fetching slack settings for %s: %w", ownerID, err)
	}
	return settings, true, nil
}

// ActiveChatSettings lists every active Slack integration.
func (p *Primary) ActiveChatSettings(ctx context.Context) ([]models.ChatSettings, error) {
	var settings []models.ChatSettings
	err := p.db.Select(chatColumns...).
		From("slack_settings").
		Where(dbx.HashExp{"is_active": true}).
		OrderBy("owner ASC").
		WithContext(ctx).
		All(&settings)
	if err != nil {
		return nil, fmt.Errorf("listing slack settings: %w", err)
	}
	return settings, nil
}

// SaveChatSettings stores the owner's Slack settings, replacing any existing
// row.
func (p *Primary) SaveChatSettings(ctx context.Context, settings models.ChatSettings) error {
	now := models.FormatInstant(p.now())
	_, err := p.db.NewQuery(`INSERT INTO {{slack_settings}}
		([[owner]], [[bot_token]], [[channel_id]], [[webhook_url]], [[is_active]], [[created]], [[updated]])
		VALUES ({:owner}, {:token}, {:channel}, {:webhook}, {:active}, {:now}, {:now})
		ON CONFLICT ([[owner]]) DO UPDATE SET
			[[bot_token]] = excluded.[[bot_token]],
			[[channel_id]] = excluded.[[channel_id]],
			[[webhook_url]] = excluded.[[webhook_url]],
			[[is_active]] = excluded.[[is_active]],
			[[updated]] = excluded.[[updated]]`).
		Bind(dbx.Params{
			"owner":   settings.OwnerID,
			"token":   settings.BotToken,
			"channel": settings.ChannelID,
			"webhook": settings.WebhookURL,
			"active":  settings.IsActive,
			"now":     now,
		}).
		WithContext(ctx).
		Execute()
	if err != nil {
		return fmt.Errorf("saving slack settings for %s: %w", settings.OwnerID, err)
	}
	return nil
}

// FindConnection returns the owner's most recent live connection for the
// platform, or ErrNotFound.
func (p *Primary) FindConnection(ctx context.Context, ownerID string, platform models.Platform) (models.Connection, error) {
	var connection models.Connection
	err := p.db.Select("id", "owner", "name", "username", "connection_name", "connection_id", "access_token", "refresh_token", "meta_data").
		From("connections").
		Where(dbx.HashExp{"owner": ownerID, "connection_name": string(platform), "deleted": ""}).
		OrderBy("created DESC", "id DESC").
		Limit(1).
		WithContext(ctx).
		One(&connection)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Connection{}, fmt.Errorf("%s connection for %s: %w", platform, ownerID, ErrNotFound)
		}
		return models.Connection{}, fmt.Errorf("fetching %s connection for %s: %w", platform, ownerID, err)
	}
	return connection, nil
}
