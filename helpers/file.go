package helpers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// DownloadMedia fetches mediaURL into a new file under dir and returns its
// path. The caller removes the file when done.
func DownloadMedia(ctx context.Context, client *http.Client, mediaURL, dir string) (string, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return "", err
	}
	if client == nil {
		client = http.DefaultClient
	}
	response, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(response.Body, 1024))
		return "", fmt.Errorf("downloading media: %w", NewHTTPError(response, body))
	}

	file, err := os.CreateTemp(dir, "media-*"+getFileExtension(mediaURL))
	if err != nil {
		return "", err
	}
	defer file.Close()

	if _, err = io.Copy(file, response.Body); err != nil {
		os.Remove(file.Name())
		return "", err
	}

	return file.Name(), nil
}

func getFileExtension(url string) string {
	params := strings.Split(url, "?")
	parts := strings.Split(params[0], "/")
	filename := parts[len(parts)-1]
	return filepath.Ext(filename)
}
