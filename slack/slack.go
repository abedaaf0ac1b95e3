// Package slack is a small client for the Slack Web API methods the calendar
// uses: posting messages and reading channel history.
package slack

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"content-calendar/helpers"

	slackapi "github.com/slack-go/slack"
)

const DefaultBaseURL = "https://slack.com/api"

var ErrAPI = errors.New("slack api error")

// Message is a channel message as returned by conversations.history.
type Message struct {
	Type string `json:"type"`
	User string `json:"user"`
	Text string `json:"text"`
	TS   string `json:"ts"`
}

type Client struct {
	apiURL string
	client *http.Client
	logger *slog.Logger
}

func New(baseURL string, client *http.Client, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	// slack-go appends method names directly to the API URL
	return &Client{apiURL: strings.TrimRight(baseURL, "/") + "/", client: client, logger: helpers.OrDiscard(logger)}
}

// api returns a Web API client bound to one workspace's bot token.
func (c *Client) api(token string) *slackapi.Client {
	return slackapi.New(token, slackapi.OptionAPIURL(c.apiURL), slackapi.OptionHTTPClient(c.client))
}

func wrapErr(method string, err error) error {
	var apiErr slackapi.SlackErrorResponse
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%w: %s: %s", ErrAPI, method, apiErr.Err)
	}
	return fmt.Errorf("%s: %w", method, err)
}

// PostMessage sends text to a channel with a bot token and returns the
// message ts.
func (c *Client) PostMessage(ctx context.Context, token, channel, text string) (string, error) {
	_, ts, err := c.api(token).PostMessageContext(ctx, channel, slackapi.MsgOptionText(text, false))
	if err != nil {
		return "", wrapErr("chat.postMessage", err)
	}
	c.logger.Debug("Slack message posted", "type", "slack", "channel", channel, "ts", ts)
	return ts, nil
}

// History returns up to limit of the channel's most recent messages, newest
// first.
func (c *Client) History(ctx context.Context, token, channel string, limit int) ([]Message, error) {
	resp, err := c.api(token).GetConversationHistoryContext(ctx, &slackapi.GetConversationHistoryParameters{
		ChannelID: channel,
		Limit:     limit,
	})
	if err != nil {
		return nil, wrapErr("conversations.history", err)
	}
	messages := make([]Message, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		messages = append(messages, Message{Type: m.Type, User: m.User, Text: m.Text, TS: m.Timestamp})
	}
	return messages, nil
}

// PostWebhook sends text through an incoming webhook.
func (c *Client) PostWebhook(ctx context.Context, webhookURL, text string) error {
	if err := slackapi.PostWebhookCustomHTTPContext(ctx, webhookURL, c.client, &slackapi.WebhookMessage{Text: text}); err != nil {
		return fmt.Errorf("slack webhook: %w", err)
	}
	return nil
}

// CompareTS orders two message timestamps ("<seconds>.<micros>").
func CompareTS(a, b string) int {
	as, af := splitTS(a)
	bs, bf := splitTS(b)
	switch {
	case as < bs:
		return -1
	case as > bs:
		return 1
	case af < bf:
		return -1
	case af > bf:
		return 1
	}
	return 0
}

func splitTS(ts string) (int64, int64) {
	secs, frac, _ := strings.Cut(ts, ".")
	s, _ := strconv.ParseInt(secs, 10, 64)
	for len(frac) < 6 {
		frac += "0"
	}
	f, _ := strconv.ParseInt(frac, 10, 64)
	return s, f
}
