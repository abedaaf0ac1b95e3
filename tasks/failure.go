package tasks

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"content-calendar/helpers"
)

// Failure categories shown to users.
const (
	FailureConfiguration = "configuration"
	FailureAuthorization = "authorization"
	FailureRateLimit     = "rate limit"
	FailureDuplicate     = "duplicate content"
	FailureMedia         = "media"
	FailureNetwork       = "network"
	FailurePlatform      = "platform"
	FailureUnknown       = "unknown"
)

// ErrMedia wraps failures to fetch or upload a post's media.
var ErrMedia = errors.New("media upload failed")

const maxDetail = 300

var authTokenPhrases = []string{
	"invalid token", "expired token", "token expired", "token has expired",
	"access token", "invalid_token", "invalid_grant", "bad token",
}

// Classify returns the failure category of a publish error.
func Classify(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, ErrNoConnection) || errors.Is(err, ErrUnsupportedPlatform) {
		return FailureConfiguration
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "duplicate") {
		return FailureDuplicate
	}

	var httpErr *helpers.HTTPError
	if errors.As(err, &httpErr) {
		switch {
		case httpErr.StatusCode == http.StatusUnauthorized || httpErr.StatusCode == http.StatusForbidden:
			return FailureAuthorization
		case httpErr.StatusCode == http.StatusTooManyRequests:
			return FailureRateLimit
		case errors.Is(err, ErrMedia):
			return FailureMedia
		default:
			return FailurePlatform
		}
	}
	if errors.Is(err, ErrMedia) {
		return FailureMedia
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.As(err, &netErr) || strings.Contains(msg, "connection refused") {
		return FailureNetwork
	}

	switch {
	case strings.Contains(msg, "401") || strings.Contains(msg, "403") || strings.Contains(msg, "unauthorized") ||
		strings.Contains(msg, "forbidden") || containsAny(msg, authTokenPhrases):
		return FailureAuthorization
	case strings.Contains(msg, "429") || strings.Contains(msg, "rate limit") || strings.Contains(msg, "too many requests"):
		return FailureRateLimit
	}
	return FailureUnknown
}

// DescribeFailure renders a publish error as "<category>: <detail>".
func DescribeFailure(err error) string {
	if err == nil {
		return ""
	}
	detail := strings.TrimSpace(err.Error())
	if r := []rune(detail); len(r) > maxDetail {
		detail = string(r[:maxDetail]) + "..."
	}
	if detail == "" {
		detail = "no details"
	}
	return fmt.Sprintf("%s: %s", Classify(err), detail)
}

func containsAny(s string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
