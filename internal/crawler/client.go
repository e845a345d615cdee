package crawler

import (
	"bytes"
	"context"
	"net/http"
	"net/http/cookiejar"
	"strconv"
	"strings"
	"time"

	"specscrape/internal/observability"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

// Fetcher returns the body of a page.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

type ClientOptions struct {
	UserAgent string
	Timeout   time.Duration
	// RequestDelay is the minimum spacing between two requests.
	RequestDelay time.Duration
	MaxRetries   int
	RetryWait    time.Duration
	RetryMaxWait time.Duration
	// DisableBypass leaves the transport untouched (plain HTTP test servers).
	DisableBypass bool
}

type Client struct {
	Http *resty.Client

	opts ClientOptions
}

func NewClient(opts ClientOptions) (*Client, error) {
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}

	httpClient := resty.New()
	httpClient.SetLogger(log.StandardLogger())
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	// keeps the clearance cookie once a challenge has been passed
	httpClient.SetCookieJar(jar)
	if !opts.DisableBypass {
		httpClient.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(httpClient.GetClient().Transport)
	}
	httpClient.SetHeader("user-agent", opts.UserAgent)
	httpClient.SetTimeout(opts.Timeout)

	httpClient.SetRetryCount(opts.MaxRetries)
	httpClient.SetRetryWaitTime(opts.RetryWait)
	httpClient.SetRetryMaxWaitTime(opts.RetryMaxWait)
	httpClient.AddRetryCondition(shouldRetry)
	httpClient.AddRetryHook(func(res *resty.Response, err error) {
		observability.FetchRetriesTotal.Inc()
		entry := log.WithField("error", err)
		if res != nil && res.Request != nil {
			entry = entry.WithFields(log.Fields{
				"url":     res.Request.URL,
				"status":  res.StatusCode(),
				"attempt": res.Request.Attempt,
			})
		}
		entry.Warn("request failed, retrying")
	})

	limit := rate.Inf
	if opts.RequestDelay > 0 {
		limit = rate.Every(opts.RequestDelay)
	}
	limiter := rate.NewLimiter(limit, 1)
	httpClient.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		return limiter.Wait(req.Context())
	})
	httpClient.OnAfterResponse(func(_ *resty.Client, res *resty.Response) error {
		observability.HTTPRequestsTotal.WithLabelValues(strconv.Itoa(res.StatusCode())).Inc()
		return nil
	})

	return &Client{Http: httpClient, opts: opts}, nil
}

func (c *Client) Fetch(ctx context.Context, url string) ([]byte, error) {
	res, err := c.Http.R().SetContext(ctx).Get(url)
	attempts := c.opts.MaxRetries + 1
	if res != nil && res.Request != nil && res.Request.Attempt > 0 {
		attempts = res.Request.Attempt
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		observability.HTTPRequestsTotal.WithLabelValues("error").Inc()
		return nil, &FetchFailure{URL: url, Reason: err.Error(), Attempts: attempts, Err: err}
	}

	status := res.StatusCode()
	if isChallenge(status, res.Header(), res.Body()) {
		return nil, &FetchFailure{
			URL:       url,
			Reason:    "anti-bot challenge page",
			Attempts:  attempts,
			Status:    status,
			Challenge: true,
		}
	}
	if status >= 400 {
		return nil, &FetchFailure{
			URL:      url,
			Reason:   http.StatusText(status),
			Attempts: attempts,
			Status:   status,
		}
	}
	return res.Body(), nil
}

func shouldRetry(res *resty.Response, err error) bool {
	if err != nil {
		return true
	}
	if res == nil {
		return false
	}
	status := res.StatusCode()
	if status == http.StatusTooManyRequests || status >= 500 {
		return true
	}
	return isChallenge(status, res.Header(), res.Body())
}

var challengeMarkers = [][]byte{
	[]byte("Just a moment..."),
	[]byte("cf-browser-verification"),
	[]byte("challenge-platform"),
	[]byte("cf_chl_opt"),
}

// isChallenge recognizes Cloudflare interstitials by status, headers and body.
func isChallenge(status int, header http.Header, body []byte) bool {
	switch status {
	case http.StatusForbidden, http.StatusTooManyRequests, http.StatusServiceUnavailable:
	default:
		return false
	}
	if strings.EqualFold(header.Get("cf-mitigated"), "challenge") {
		return true
	}
	if !strings.Contains(strings.ToLower(header.Get("Server")), "cloudflare") {
		return false
	}
	for _, m := range challengeMarkers {
		if bytes.Contains(body, m) {
			return true
		}
	}
	return false
}
