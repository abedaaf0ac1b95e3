package tasks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"content-calendar/helpers"
	"content-calendar/models"

	"golang.org/x/oauth2"
)

type mastodonStatus struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type mastodonMedia struct {
	ID string `json:"id"`
}

// Mastodon publishes statuses to one instance with the connection's bearer
// token.
type Mastodon struct {
	baseURL string
	opts    Options
}

func NewMastodon(baseURL string, opts Options) *Mastodon {
	return &Mastodon{baseURL: strings.TrimRight(baseURL, "/"), opts: opts}
}

func (m *Mastodon) httpClient(ctx context.Context, accessToken string) *http.Client {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, m.opts.client())
	return oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}))
}

func (m *Mastodon) Publish(ctx context.Context, post models.Post, conn models.Connection) (string, error) {
	client := m.httpClient(ctx, conn.AccessToken)

	var mediaIDs []string
	for _, media := range post.Media {
		mediaID, err := m.uploadMedia(ctx, client, media)
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrMedia, err)
		}
		mediaIDs = append(mediaIDs, mediaID)
	}

	data := map[string]interface{}{
		"status":     post.Content,
		"visibility": "public",
	}
	if len(mediaIDs) > 0 {
		data["media_ids"] = mediaIDs
	}

	headers := map[string]string{
		"Content-Type":    "application/json",
		"Idempotency-Key": post.ID,
	}
	status, err := helpers.MakeHTTPRequest[mastodonStatus](ctx, client, m.opts.Logger, http.MethodPost, m.baseURL+"/api/v1/statuses", headers, nil, data)
	if err != nil {
		return "", fmt.Errorf("posting status: %w", err)
	}
	return status.ID, nil
}

func (m *Mastodon) uploadMedia(ctx context.Context, client *http.Client, media models.Media) (string, error) {
	mediaPath, err := helpers.DownloadMedia(ctx, m.opts.client(), media.URL, m.opts.TempDir)
	if err != nil {
		return "", err
	}
	defer os.Remove(mediaPath)

	file, err := os.Open(mediaPath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", filepath.Base(mediaPath))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", err
	}
	if media.Alt != "" {
		_ = writer.WriteField("description", media.Alt)
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/api/v1/media", &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode >= 300 {
		return "", helpers.NewHTTPError(resp, body)
	}

	var result mastodonMedia
	if err := json.Unmarshal(body, &result); err != nil {
		return "", err
	}
	return result.ID, nil
}
