package models

// Connection is a user's linked account on a publishing platform.
type Connection struct {
	ID             string   `db:"id" json:"id"`
	OwnerID        string   `db:"owner" json:"ownerId"`
	Name           string   `db:"name" json:"name"`
	Username       string   `db:"username" json:"username"`
	ConnectionName Platform `db:"connection_name" json:"connectionName"`
	ConnectionId   string   `db:"connection_id" json:"connectionId"`
	AccessToken    string   `db:"access_token" json:"-"`
	RefreshToken   string   `db:"refresh_token" json:"-"`
	MetaData       string   `db:"meta_data" json:"metaData"`
}

// NotificationPreference holds a user's notification flags.
type NotificationPreference struct {
	OwnerID              string `db:"owner" json:"ownerId"`
	EmailPostPublished   bool   `db:"email_post_published" json:"emailPostPublished"`
	EmailPostFailed      bool   `db:"email_post_failed" json:"emailPostFailed"`
	EmailDigest          bool   `db:"email_digest" json:"emailDigest"`
	BrowserNotifications bool   `db:"browser_notifications" json:"browserNotifications"`
	IsActive             bool   `db:"is_active" json:"isActive"`
}

// DefaultNotificationPreference is what a user gets before saving any
// preferences.
func DefaultNotificationPreference(ownerID string) NotificationPreference {
	return NotificationPreference{
		OwnerID:              ownerID,
		EmailPostPublished:   true,
		EmailPostFailed:      true,
		EmailDigest:          false,
		BrowserNotifications: true,
		IsActive:             true,
	}
}

// ChatSettings is a user's Slack integration.
type ChatSettings struct {
	OwnerID    string `db:"owner" json:"ownerId"`
	BotToken   string `db:"bot_token" json:"-"`
	ChannelID  string `db:"channel_id" json:"channelId"`
	WebhookURL string `db:"webhook_url" json:"-"`
	IsActive   bool   `db:"is_active" json:"isActive"`
}

// CanPost reports whether the settings carry enough to deliver a message.
func (c ChatSettings) CanPost() bool {
	return c.IsActive && ((c.BotToken != "" && c.ChannelID != "") || c.WebhookURL != "")
}

// CanReadHistory reports whether the channel history can be listed, which the
// webhook-only mode does not allow.
func (c ChatSettings) CanReadHistory() bool {
	return c.IsActive && c.BotToken != "" && c.ChannelID != ""
}
