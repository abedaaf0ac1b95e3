package slack

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bearer(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		return auth
	}
	return "Bearer " + r.FormValue("token")
}

func TestPostMessage(t *testing.T) {
	var channel, text string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat.postMessage", r.URL.Path)
		assert.Equal(t, "Bearer xoxb-1", bearer(r))
		channel, text = r.FormValue("channel"), r.FormValue("text")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true,"channel":"C1","ts":"1714561200.000100"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, srv.Client(), nil)
	ts, err := c.PostMessage(context.Background(), "xoxb-1", "C1", "Post published")
	require.NoError(t, err)
	assert.Equal(t, "1714561200.000100", ts)
	assert.Equal(t, "C1", channel)
	assert.Equal(t, "Post published", text)
}

func TestPostMessageNotOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":false,"error":"channel_not_found"}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL+"/", srv.Client(), nil).PostMessage(context.Background(), "t", "C404", "x")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAPI)
	assert.Contains(t, err.Error(), "channel_not_found")
}

func TestHistory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/conversations.history", r.URL.Path)
		assert.Equal(t, "C1", r.FormValue("channel"))
		assert.Equal(t, "200", r.FormValue("limit"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true,"messages":[{"type":"message","user":"U1","text":"b","ts":"2.000000"},{"type":"message","text":"a","ts":"1.000000"}]}`))
	}))
	defer srv.Close()

	msgs, err := New(srv.URL, srv.Client(), nil).History(context.Background(), "t", "C1", 200)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, Message{Type: "message", User: "U1", Text: "b", TS: "2.000000"}, msgs[0])
	assert.Equal(t, "1.000000", msgs[1].TS)
}

func TestPostWebhook(t *testing.T) {
	var body map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := New("", srv.Client(), nil)
	require.NoError(t, c.PostWebhook(context.Background(), srv.URL+"/services/T/B/X", "hello"))
	assert.Equal(t, "hello", body["text"])

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte("invalid_token"))
	}))
	defer failing.Close()
	assert.Error(t, c.PostWebhook(context.Background(), failing.URL, "hello"))
}

func TestCompareTS(t *testing.T) {
	assert.Equal(t, 0, CompareTS("1714561200.000100", "1714561200.000100"))
	assert.Equal(t, -1, CompareTS("1714561200.000100", "1714561200.000200"))
	assert.Equal(t, 1, CompareTS("1714561201.000000", "1714561200.999999"))
	assert.Equal(t, -1, CompareTS("999.5", "1000.1"))
	assert.Equal(t, 0, CompareTS("10.5", "10.500000"))
}
