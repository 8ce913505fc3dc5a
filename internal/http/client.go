package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Common errors.
var (
	ErrNotFound        = errors.New("http: resource not found")
	ErrForbidden       = errors.New("http: access forbidden")
	ErrUnauthorized    = errors.New("http: unauthorized")
	ErrTooManyRequests = errors.New("http: too many requests")
	ErrServerError     = errors.New("http: server error")
	ErrBodyTooLarge    = errors.New("http: response body too large")
	ErrExhausted       = errors.New("http: retry attempts exhausted")
)

// DefaultUserAgent is sent with every request unless overridden.
const DefaultUserAgent = "pagepress/1.0 (+https://github.com/ligustah/pagepress)"

// Options configures the HTTP client.
type Options struct {
	// MaxIdleConnsPerHost sets the maximum idle connections per host.
	// Default: 8
	MaxIdleConnsPerHost int

	// ConnectTimeout bounds dialing and the TLS handshake.
	// Default: 5s
	ConnectTimeout time.Duration

	// ReadTimeout bounds waiting for response headers. A whole attempt is
	// bounded by ConnectTimeout + ReadTimeout.
	// Default: 30s
	ReadTimeout time.Duration

	// RetryAttempts is the total number of attempts per fetch.
	// Default: 6
	RetryAttempts int

	// RetryBackoff is the base of the jittered exponential backoff.
	// Default: 500ms
	RetryBackoff time.Duration

	// RetryMaxBackoff caps a single backoff draw.
	// Default: 30s
	RetryMaxBackoff time.Duration

	// RetryClientErrors makes non-retriable error statuses (4xx other than
	// 429) consume one attempt and back off, instead of ending the fetch.
	RetryClientErrors bool

	// MaxBodySize caps a response body. Larger bodies fail the attempt.
	// Default: 64 MiB
	MaxBodySize int64

	// UserAgent is sent as the User-Agent header.
	UserAgent string

	// OnRetry, if set, is called before every backoff sleep.
	OnRetry func(attempt int, delay time.Duration, reason error)

	// Logger receives per-attempt debug logs. Default: no-op.
	Logger *zap.Logger
}

// DefaultOptions returns options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		MaxIdleConnsPerHost: 8,
		ConnectTimeout:      5 * time.Second,
		ReadTimeout:         30 * time.Second,
		RetryAttempts:       6,
		RetryBackoff:        500 * time.Millisecond,
		RetryMaxBackoff:     30 * time.Second,
		MaxBodySize:         64 << 20,
		UserAgent:           DefaultUserAgent,
	}
}

// withDefaults fills zero fields from DefaultOptions.
func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MaxIdleConnsPerHost <= 0 {
		o.MaxIdleConnsPerHost = d.MaxIdleConnsPerHost
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = d.ConnectTimeout
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = d.ReadTimeout
	}
	if o.RetryAttempts <= 0 {
		o.RetryAttempts = d.RetryAttempts
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = d.RetryBackoff
	}
	if o.RetryMaxBackoff <= 0 {
		o.RetryMaxBackoff = d.RetryMaxBackoff
	}
	if o.MaxBodySize <= 0 {
		o.MaxBodySize = d.MaxBodySize
	}
	if o.UserAgent == "" {
		o.UserAgent = d.UserAgent
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// StatusError reports a non-2xx response.
type StatusError struct {
	Code   int
	Status string
	err    error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code: %d %s", e.Code, e.Status)
}

// Unwrap exposes the matching sentinel, if any.
func (e *StatusError) Unwrap() error {
	return e.err
}

// Result is the outcome of Fetch. OK distinguishes an absent page (failure,
// exhaustion or cancellation) from a present but possibly empty body.
type Result struct {
	Body     []byte
	OK       bool
	Attempts int
	// FinalURL is the URL the body was served from, after redirects.
	FinalURL string
	// Err is the last error seen when OK is false.
	Err error
}

// Client fetches page images with retry and backoff.
type Client struct {
	client *http.Client
	opts   Options
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewClient creates a new HTTP client with the given options.
func NewClient(opts Options) *Client {
	opts = opts.withDefaults()

	dialer := &net.Dialer{
		Timeout:   opts.ConnectTimeout,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          opts.MaxIdleConnsPerHost * 2,
		MaxIdleConnsPerHost:   opts.MaxIdleConnsPerHost,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   opts.ConnectTimeout,
		ResponseHeaderTimeout: opts.ReadTimeout,
	}

	return &Client{
		client: &http.Client{
			Transport: transport,
			Timeout:   opts.ConnectTimeout + opts.ReadTimeout,
		},
		opts:  opts,
		sleep: sleepContext,
	}
}

// Fetch downloads url, retrying retriable failures. It never returns an
// error; failures are reported through Result.OK and Result.Err.
//
// Cancellation of ctx is cooperative: it is checked before every attempt and
// interrupts backoff sleeps, but an attempt already on the wire runs to
// completion.
func (c *Client) Fetch(ctx context.Context, url string) Result {
	var res Result
	log := c.opts.Logger.With(zap.String("url", url))

	for attempt := 1; attempt <= c.opts.RetryAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			res.Err = err
			return res
		}
		res.Attempts = attempt

		body, finalURL, retryAfter, err := c.do(ctx, url)
		if err == nil {
			res.Body = body
			res.FinalURL = finalURL
			res.OK = true
			res.Err = nil
			return res
		}
		res.Err = err

		var delay time.Duration
		var statusErr *StatusError
		switch {
		case errors.As(err, &statusErr) && isRetriable(statusErr.Code):
			delay = retryAfter
			if delay < 0 {
				delay = c.backoff(attempt)
			}
		case statusErr != nil && !c.opts.RetryClientErrors:
			log.Debug("non-retriable status", zap.Int("status", statusErr.Code))
			return res
		default:
			delay = c.backoff(attempt)
		}

		if attempt == c.opts.RetryAttempts {
			break
		}

		log.Debug("retrying",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if c.opts.OnRetry != nil {
			c.opts.OnRetry(attempt, delay, err)
		}
		if err := c.sleep(ctx, delay); err != nil {
			res.Err = err
			return res
		}
	}

	res.Err = fmt.Errorf("%w after %d attempts: %w", ErrExhausted, res.Attempts, res.Err)
	return res
}

// Get fetches url with the same retry policy as Fetch and returns the body
// together with the final URL after redirects.
func (c *Client) Get(ctx context.Context, url string) ([]byte, string, error) {
	res := c.Fetch(ctx, url)
	if !res.OK {
		return nil, "", res.Err
	}
	return res.Body, res.FinalURL, nil
}

// do performs a single attempt. retryAfter is negative when the response
// carried no usable Retry-After header.
func (c *Client) do(ctx context.Context, url string) (body []byte, finalURL string, retryAfter time.Duration, err error) {
	retryAfter = -1

	// Detached from cancellation so an in-flight request is never torn down.
	req, err := http.NewRequestWithContext(context.WithoutCancel(ctx), http.MethodGet, url, nil)
	if err != nil {
		return nil, "", retryAfter, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.opts.UserAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, "", retryAfter, err
	}
	defer resp.Body.Close()

	if err := checkStatusCode(resp); err != nil {
		if d, ok := ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now()); ok {
			retryAfter = d
		}
		// Drain so the connection can be reused.
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, "", retryAfter, err
	}

	body, err = io.ReadAll(io.LimitReader(resp.Body, c.opts.MaxBodySize+1))
	if err != nil {
		return nil, "", retryAfter, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > c.opts.MaxBodySize {
		return nil, "", retryAfter, fmt.Errorf("%w: more than %d bytes", ErrBodyTooLarge, c.opts.MaxBodySize)
	}

	return body, resp.Request.URL.String(), retryAfter, nil
}

// backoff draws a full-jitter delay uniformly from [0, base*2^(attempt-1)).
func (c *Client) backoff(attempt int) time.Duration {
	ceiling := c.opts.RetryBackoff * time.Duration(1<<uint(attempt-1))
	if ceiling > c.opts.RetryMaxBackoff || ceiling <= 0 {
		ceiling = c.opts.RetryMaxBackoff
	}
	return time.Duration(rand.Float64() * float64(ceiling))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// retriableStatuses are answered with a backoff and another attempt.
var retriableStatuses = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

func isRetriable(code int) bool {
	return retriableStatuses[code]
}

// checkStatusCode returns an appropriate error for non-success status codes.
func checkStatusCode(resp *http.Response) error {
	code := resp.StatusCode
	if code >= 200 && code < 300 {
		return nil
	}

	e := &StatusError{Code: code, Status: http.StatusText(code)}
	switch {
	case code == http.StatusNotFound:
		e.err = ErrNotFound
	case code == http.StatusForbidden:
		e.err = ErrForbidden
	case code == http.StatusUnauthorized:
		e.err = ErrUnauthorized
	case code == http.StatusTooManyRequests:
		e.err = ErrTooManyRequests
	case code >= 500:
		e.err = ErrServerError
	}
	return e
}

// ParseRetryAfter parses a Retry-After header value, either delta-seconds
// (fractions allowed) or an HTTP-date relative to now.
func ParseRetryAfter(v string, now time.Time) (time.Duration, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, false
	}

	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs * float64(time.Second)), true
	}

	if t, err := http.ParseTime(v); err == nil {
		d := t.Sub(now)
		if d < 0 {
			d = 0
		}
		return d, true
	}

	return 0, false
}
