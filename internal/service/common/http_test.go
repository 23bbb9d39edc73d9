//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestNewHTTPClient_RetriesServerErrors verifies that 5xx responses are retried.
func TestNewHTTPClient_RetriesServerErrors(t *testing.T) {
	t.Parallel()

	var attempts atomic.Int32

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}

		_, _ = io.WriteString(w, "ok")
	}))
	defer ts.Close()

	client := NewHTTPClient(context.Background(), time.Second, WithRetryWait(time.Millisecond, 5*time.Millisecond))

	resp, err := client.Get(ts.URL)
	require.NoError(t, err)

	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, "ok", string(body))
	require.Equal(t, int32(3), attempts.Load())
}

// TestNewHTTPClient_DoesNotRetryClientErrors verifies that 4xx responses are returned as is.
func TestNewHTTPClient_DoesNotRetryClientErrors(t *testing.T) {
	t.Parallel()

	var attempts atomic.Int32

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	client := NewHTTPClient(context.Background(), 0, WithRetryMax(1), WithRetryWait(time.Millisecond, time.Millisecond))

	resp, err := client.Get(ts.URL)
	require.NoError(t, err)

	_ = resp.Body.Close()

	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Equal(t, int32(1), attempts.Load())
}

// TestNewHTTPClient_TimeoutBoundsHeadersOnly verifies that a slow body outlives the timeout
// while slow headers do not.
func TestNewHTTPClient_TimeoutBoundsHeadersOnly(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/stalled" {
			time.Sleep(500 * time.Millisecond)
			return
		}

		flusher, _ := w.(http.Flusher)

		for i := 0; i < 6; i++ {
			_, _ = fmt.Fprint(w, i)

			if flusher != nil {
				flusher.Flush()
			}

			time.Sleep(100 * time.Millisecond)
		}
	}))
	defer ts.Close()

	client := NewHTTPClient(context.Background(), 200*time.Millisecond, WithRetryMax(0))

	resp, err := client.Get(ts.URL + "/stream")
	require.NoError(t, err)

	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, "012345", string(body))

	_, err = client.Get(ts.URL + "/stalled") //nolint:bodyclose // No response on error.
	require.Error(t, err)
}
