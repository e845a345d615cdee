package crawler

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T, opts ClientOptions) *Client {
	t.Helper()
	opts.DisableBypass = true
	if opts.RetryWait == 0 {
		opts.RetryWait = time.Millisecond
	}
	if opts.RetryMaxWait == 0 {
		opts.RetryMaxWait = 5 * time.Millisecond
	}
	c, err := NewClient(opts)
	require.NoError(t, err)
	return c
}

func TestClientFetch(t *testing.T) {
	var ua string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua = r.Header.Get("User-Agent")
		w.Write([]byte("<urlset></urlset>"))
	}))
	defer srv.Close()

	c := testClient(t, ClientOptions{})
	body, err := c.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, "<urlset></urlset>", string(body))
	require.Equal(t, defaultUserAgent, ua)
}

func TestClientRetriesServerErrors(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := testClient(t, ClientOptions{MaxRetries: 2})
	_, err := c.Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrFetch))
	require.False(t, errors.Is(err, ErrChallenge))
	require.Equal(t, int32(3), atomic.LoadInt32(&hits))

	var ff *FetchFailure
	require.True(t, errors.As(err, &ff))
	require.Equal(t, http.StatusServiceUnavailable, ff.Status)
	require.Equal(t, 3, ff.Attempts)
}

func TestClientRecoversAfterRetry(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := testClient(t, ClientOptions{MaxRetries: 3})
	body, err := c.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, "ok", string(body))
	require.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestClientDoesNotRetryNotFound(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := testClient(t, ClientOptions{MaxRetries: 3})
	_, err := c.Fetch(context.Background(), srv.URL)
	require.True(t, errors.Is(err, ErrFetch))
	require.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestClientChallenge(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Header().Set("Server", "cloudflare")
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte("<html><title>Just a moment...</title></html>"))
	}))
	defer srv.Close()

	c := testClient(t, ClientOptions{MaxRetries: 1})
	_, err := c.Fetch(context.Background(), srv.URL)
	require.True(t, errors.Is(err, ErrChallenge))
	require.True(t, errors.Is(err, ErrFetch))
	require.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestClientPlainForbiddenIsNotChallenge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte("Just a moment..."))
	}))
	defer srv.Close()

	c := testClient(t, ClientOptions{})
	_, err := c.Fetch(context.Background(), srv.URL)
	require.True(t, errors.Is(err, ErrFetch))
	require.False(t, errors.Is(err, ErrChallenge))
}

func TestIsChallenge(t *testing.T) {
	h := http.Header{}
	h.Set("cf-mitigated", "challenge")
	require.True(t, isChallenge(http.StatusServiceUnavailable, h, nil))
	require.False(t, isChallenge(http.StatusOK, h, nil))

	h = http.Header{}
	h.Set("Server", "cloudflare")
	require.True(t, isChallenge(http.StatusTooManyRequests, h, []byte(`window._cf_chl_opt={}`)))
	require.False(t, isChallenge(http.StatusTooManyRequests, h, []byte(`rate limited`)))
}

func TestClientRequestDelay(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := testClient(t, ClientOptions{RequestDelay: 50 * time.Millisecond})
	start := time.Now()
	for i := 0; i < 2; i++ {
		_, err := c.Fetch(context.Background(), srv.URL)
		require.NoError(t, err)
	}
	require.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestClientCanceledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := testClient(t, ClientOptions{MaxRetries: 2})
	_, err := c.Fetch(ctx, srv.URL)
	require.ErrorIs(t, err, context.Canceled)
}

func TestClientRetriesTimeouts(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	var buf bytes.Buffer
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(os.Stdout) })

	c := testClient(t, ClientOptions{MaxRetries: 2, Timeout: 20 * time.Millisecond})
	_, err := c.Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrFetch))
	require.False(t, errors.Is(err, ErrChallenge))

	var ff *FetchFailure
	require.True(t, errors.As(err, &ff))
	require.Equal(t, 3, ff.Attempts)
	require.Equal(t, 0, ff.Status)
	require.Equal(t, int32(3), atomic.LoadInt32(&hits))

	// resty's own messages go through logrus too
	require.Contains(t, buf.String(), "Attempt 1")
	require.NotContains(t, buf.String(), "RESTY")
	require.Contains(t, buf.String(), "request failed, retrying")
}
