package tasks

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"content-calendar/helpers"
	"content-calendar/models"
)

const DiscordAPI = "https://discord.com/api/v10"

type discordMessage struct {
	ID string `json:"id"`
}

type discordEmbed struct {
	Image *discordImage `json:"image,omitempty"`
}

type discordImage struct {
	URL string `json:"url"`
}

// Discord posts messages to the channel stored as the connection id, using
// the connection's bot token.
type Discord struct {
	baseURL string
	opts    Options
}

func NewDiscord(baseURL string, opts Options) *Discord {
	if baseURL == "" {
		baseURL = DiscordAPI
	}
	return &Discord{baseURL: strings.TrimRight(baseURL, "/"), opts: opts}
}

func (d *Discord) Publish(ctx context.Context, post models.Post, conn models.Connection) (string, error) {
	if conn.ConnectionId == "" {
		return "", errors.New("discord connection has no channel id")
	}

	payload := map[string]interface{}{
		"content": post.Content,
	}

	var embeds []discordEmbed
	var links []string
	for _, media := range post.Media {
		if media.Kind == models.MediaVideo {
			links = append(links, media.URL)
			continue
		}
		embeds = append(embeds, discordEmbed{Image: &discordImage{URL: media.URL}})
	}
	if len(embeds) > 0 {
		payload["embeds"] = embeds
	}
	if len(links) > 0 {
		payload["content"] = strings.TrimSpace(post.Content + "\n" + strings.Join(links, "\n"))
	}

	headers := map[string]string{
		"Authorization": "Bot " + conn.AccessToken,
		"Content-Type":  "application/json",
	}
	apiURL := fmt.Sprintf("%s/channels/%s/messages", d.baseURL, conn.ConnectionId)
	msg, err := helpers.MakeHTTPRequest[discordMessage](ctx, d.opts.client(), d.opts.Logger, http.MethodPost, apiURL, headers, nil, payload)
	if err != nil {
		return "", fmt.Errorf("posting discord message: %w", err)
	}
	return msg.ID, nil
}
