package tasks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"strings"

	"content-calendar/helpers"
	"content-calendar/models"

	"github.com/dghubble/oauth1"
	"github.com/michimani/gotwi"
	"github.com/michimani/gotwi/tweet/managetweet"
	"github.com/michimani/gotwi/tweet/managetweet/types"
)

const TwitterUploadURL = "https://upload.twitter.com/1.1/media/upload.json"

type MediaUpload struct {
	MediaId       int64  `json:"media_id"`
	MediaIdString string `json:"media_id_string"`
}

// Twitter posts tweets with OAuth 1.0a user context. The connection's access
// token holds "<token> <secret>".
type Twitter struct {
	consumerKey    string
	consumerSecret string
	uploadURL      string
	opts           Options
}

func NewTwitter(consumerKey, consumerSecret string, opts Options) *Twitter {
	return &Twitter{
		consumerKey:    consumerKey,
		consumerSecret: consumerSecret,
		uploadURL:      TwitterUploadURL,
		opts:           opts,
	}
}

func splitTwitterToken(accessToken string) (string, string, error) {
	tokens := strings.Fields(accessToken)
	if len(tokens) != 2 {
		return "", "", errors.New("twitter access token must hold a token and a secret")
	}
	return tokens[0], tokens[1], nil
}

func (t *Twitter) Publish(ctx context.Context, post models.Post, conn models.Connection) (string, error) {
	token, secret, err := splitTwitterToken(conn.AccessToken)
	if err != nil {
		return "", err
	}

	in := &gotwi.NewClientInput{
		AuthenticationMethod: gotwi.AuthenMethodOAuth1UserContext,
		OAuthToken:           token,
		OAuthTokenSecret:     secret,
	}
	client, err := gotwi.NewClient(in)
	if err != nil {
		return "", err
	}

	var tweet types.CreateInput
	tweet.Text = gotwi.String(post.Content)

	if len(post.Media) > 0 {
		mediaIDs := make([]string, 0, len(post.Media))
		for _, media := range post.Media {
			mediaID, err := t.uploadMedia(ctx, media, token, secret)
			if err != nil {
				return "", fmt.Errorf("%w: %w", ErrMedia, err)
			}
			mediaIDs = append(mediaIDs, mediaID)
		}
		tweet.Media = &types.CreateInputMedia{
			MediaIDs: mediaIDs,
		}
	}

	res, err := managetweet.Create(ctx, client, &tweet)
	if err != nil {
		return "", err
	}
	return gotwi.StringValue(res.Data.ID), nil
}

func (t *Twitter) uploadMedia(ctx context.Context, media models.Media, oauthToken, oauthTokenSecret string) (string, error) {
	config := oauth1.NewConfig(t.consumerKey, t.consumerSecret)
	token := oauth1.NewToken(oauthToken, oauthTokenSecret)

	// the oauth1 client signs every request it sends
	httpClient := config.Client(context.WithValue(ctx, oauth1.HTTPClient, t.opts.client()), token)

	fileLocation, err := helpers.DownloadMedia(ctx, t.opts.client(), media.URL, t.opts.TempDir)
	if err != nil {
		return "", err
	}
	defer os.Remove(fileLocation)

	file, err := os.Open(fileLocation)
	if err != nil {
		return "", err
	}
	defer file.Close()

	b := &bytes.Buffer{}
	form := multipart.NewWriter(b)
	fw, err := form.CreateFormFile("media", fileLocation)
	if err != nil {
		return "", err
	}
	if _, err = io.Copy(fw, file); err != nil {
		return "", err
	}
	if err := form.Close(); err != nil {
		return "", err
	}

	category := "tweet_image"
	if media.Kind == models.MediaVideo {
		category = "tweet_video"
	}

	uploadResp, err := httpClient.Post(t.uploadURL+"?media_category="+category, form.FormDataContentType(), bytes.NewReader(b.Bytes()))
	if err != nil {
		return "", err
	}
	defer uploadResp.Body.Close()

	body, err := io.ReadAll(uploadResp.Body)
	if err != nil {
		return "", err
	}
	if uploadResp.StatusCode >= 300 {
		return "", helpers.NewHTTPError(uploadResp, body)
	}

	m := &MediaUpload{}
	if err := json.Unmarshal(body, m); err != nil {
		return "", err
	}
	if m.MediaIdString != "" {
		return m.MediaIdString, nil
	}
	return fmt.Sprint(m.MediaId), nil
}
