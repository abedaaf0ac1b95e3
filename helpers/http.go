package helpers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// Universal HTTP request function
func MakeHTTPRequest[T any](
	ctx context.Context,
	client *http.Client,
	logger *slog.Logger,
	method string,
	fullURL string,
	headers map[string]string,
	queryParams url.Values,
	body interface{},
) (T, error) {
	var result T

	var bodyReader io.Reader

	// Prepare request body based on Content-Type
	if body != nil {
		contentType := headers["Content-Type"]

		switch contentType {
		case "application/x-www-form-urlencoded":
			formValues, ok := body.(url.Values)
			if !ok {
				return result, fmt.Errorf("body must be url.Values when using application/x-www-form-urlencoded")
			}
			bodyReader = strings.NewReader(formValues.Encode())

		case "application/json", "":
			b, err := json.Marshal(body)
			if err != nil {
				return result, err
			}
			bodyReader = bytes.NewBuffer(b)

		default:
			return result, fmt.Errorf("unsupported Content-Type: %s", contentType)
		}
	}

	u, err := url.Parse(fullURL)
	if err != nil {
		return result, err
	}
	if len(queryParams) > 0 {
		q := u.Query()
		for k, v := range queryParams {
			q[k] = v
		}
		u.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), bodyReader)
	if err != nil {
		return result, err
	}

	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if body != nil && headers["Content-Type"] == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return result, err
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return result, err
	}

	if logger != nil {
		logger.Debug("HTTP Request", "method", method, "url", u.Redacted(), "status", resp.StatusCode)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return result, &HTTPError{StatusCode: resp.StatusCode, Status: resp.Status, Body: string(respBytes)}
	}

	if len(respBytes) == 0 {
		return result, nil
	}
	if err := json.Unmarshal(respBytes, &result); err != nil {
		return result, fmt.Errorf("decoding response from %s: %w", u.Host, err)
	}

	return result, nil
}

// HTTPError is returned for non-2xx responses.
type HTTPError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPError) Error() string {
	return e.Status + ": " + e.Body
}

// NewHTTPError builds an HTTPError from a response whose body was already read.
func NewHTTPError(resp *http.Response, body []byte) *HTTPError {
	return &HTTPError{StatusCode: resp.StatusCode, Status: resp.Status, Body: string(body)}
}
