package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// UserAgent is sent with every upstream request. Some CI servers reject non-browser agents.
const UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// ErrBadHTTPStatus is wrapped by every non-200 upstream response.
var ErrBadHTTPStatus = errors.New("unexpected http status")

// GetJSON issues a GET request and decodes the JSON body into target.
func GetJSON(ctx context.Context, client *http.Client, url string, target any) error {
	response, err := get(ctx, client, url)
	if err != nil {
		return err
	}

	defer func() {
		_ = response.Body.Close()
	}()

	if err = json.NewDecoder(response.Body).Decode(target); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}

	return nil
}

// Open issues a streaming GET request and returns the body as an artifact.
func Open(ctx context.Context, client *http.Client, url, name string) (*Artifact, error) {
	response, err := get(ctx, client, url)
	if err != nil {
		return nil, err
	}

	return &Artifact{
		Name: name,
		Size: response.ContentLength,
		Body: response.Body,
	}, nil
}

func get(ctx context.Context, client *http.Client, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, err
	}

	req.Header.Set("User-Agent", UserAgent)

	response, err := client.Do(req)
	if err != nil {
		return nil, err
	}

	if response.StatusCode != http.StatusOK {
		_ = response.Body.Close()

		return nil, fmt.Errorf("%s, %s: %w", url, response.Status, ErrBadHTTPStatus)
	}

	return response, nil
}

func sprintf(format string, args ...any) string {
	if len(args) == 0 {
		return format
	}

	return fmt.Sprintf(format, args...)
}
