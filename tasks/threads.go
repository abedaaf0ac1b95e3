package tasks

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"content-calendar/helpers"
	"content-calendar/models"
)

const ThreadsAPI = "https://graph.threads.net/v1.0"

type ThreadsResponse struct {
	ID string `json:"id"`
}

// Threads publishes through the Graph API: every post is created as a media
// container and then published. Several media items become a carousel.
type Threads struct {
	baseURL string
	opts    Options
}

func NewThreads(baseURL string, opts Options) *Threads {
	if baseURL == "" {
		baseURL = ThreadsAPI
	}
	return &Threads{baseURL: strings.TrimRight(baseURL, "/"), opts: opts}
}

func (t *Threads) Publish(ctx context.Context, post models.Post, conn models.Connection) (string, error) {
	var containerID string
	var err error

	switch len(post.Media) {
	case 0:
		params := url.Values{}
		params.Add("media_type", "TEXT")
		params.Add("text", post.Content)
		containerID, err = t.createContainer(ctx, conn, params)
	case 1:
		params := mediaParams(post.Media[0])
		params.Add("is_carousel_item", "false")
		params.Add("text", post.Content)
		containerID, err = t.createContainer(ctx, conn, params)
	default:
		children := make([]string, 0, len(post.Media))
		for _, media := range post.Media {
			params := mediaParams(media)
			params.Add("is_carousel_item", "true")
			childID, err := t.createContainer(ctx, conn, params)
			if err != nil {
				return "", fmt.Errorf("%w: %w", ErrMedia, err)
			}
			children = append(children, childID)
		}

		params := url.Values{}
		params.Add("media_type", "CAROUSEL")
		params.Add("children", strings.Join(children, ","))
		params.Add("text", post.Content)
		containerID, err = t.createContainer(ctx, conn, params)
	}
	if err != nil {
		return "", fmt.Errorf("creating threads container: %w", err)
	}

	publishParams := url.Values{}
	publishParams.Add("creation_id", containerID)
	publishParams.Add("access_token", conn.AccessToken)

	reqURL := fmt.Sprintf("%s/%s/threads_publish", t.baseURL, conn.ConnectionId)
	resp, err := helpers.MakeHTTPRequest[ThreadsResponse](ctx, t.opts.client(), t.opts.Logger, http.MethodPost, reqURL, nil, publishParams, nil)
	if err != nil {
		return "", fmt.Errorf("publishing threads container: %w", err)
	}
	return resp.ID, nil
}

func (t *Threads) createContainer(ctx context.Context, conn models.Connection, params url.Values) (string, error) {
	params.Set("access_token", conn.AccessToken)
	reqURL := fmt.Sprintf("%s/%s/threads", t.baseURL, conn.ConnectionId)
	resp, err := helpers.MakeHTTPRequest[ThreadsResponse](ctx, t.opts.client(), t.opts.Logger, http.MethodPost, reqURL, nil, params, nil)
	if err != nil {
		return "", err
	}
	return resp.ID, nil
}

func mediaParams(media models.Media) url.Values {
	params := url.Values{}
	if media.Kind == models.MediaVideo {
		params.Add("media_type", "VIDEO")
		params.Add("video_url", media.URL)
	} else {
		params.Add("media_type", "IMAGE")
		params.Add("image_url", media.URL)
	}
	return params
}
