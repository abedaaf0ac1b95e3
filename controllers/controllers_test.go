package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"content-calendar/scheduler"

	"github.com/pocketbase/pocketbase/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type checkerFunc func(ctx context.Context) (scheduler.Report, error)

func (f checkerFunc) CheckAndPublishDue(ctx context.Context) (scheduler.Report, error) {
	return f(ctx)
}

func newEvent(method, target string) (*core.RequestEvent, *httptest.ResponseRecorder) {
	rec := httptest.NewRecorder()
	e := &core.RequestEvent{}
	e.Request = httptest.NewRequest(method, target, nil)
	e.Response = rec
	return e, rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestPing(t *testing.T) {
	e, rec := newEvent(http.MethodGet, "/api/v1/ping")
	require.NoError(t, Ping(e))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["status"])
}

func TestRunScheduler(t *testing.T) {
	tests := []struct {
		name   string
		report scheduler.Report
		err    error
		code   int
	}{
		{name: "finished", report: scheduler.Report{Due: 2, Published: 1, Failed: 1}, code: http.StatusOK},
		{name: "busy", err: scheduler.ErrBusy, code: http.StatusConflict},
		{name: "store error", err: errors.New("finding due posts: disk I/O error"), code: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, rec := newEvent(http.MethodPost, "/api/v1/scheduler/run")
			err := RunScheduler(e, checkerFunc(func(ctx context.Context) (scheduler.Report, error) {
				return tt.report, tt.err
			}))
			require.NoError(t, err)
			assert.Equal(t, tt.code, rec.Code)

			body := decode(t, rec)
			assert.Equal(t, tt.err == nil, body["status"])
			if tt.err == nil {
				data := body["data"].(map[string]any)
				assert.Equal(t, float64(tt.report.Published), data["published"])
				assert.Equal(t, float64(tt.report.Failed), data["failed"])
			}
		})
	}
}
