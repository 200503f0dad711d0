package filings

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/sethvargo/go-retry"
)

// ArchiveBaseURL is the root of the filing archive. Relative URLs passed to
// Client.Fetch are resolved against it. A variable so tests can point the
// package at a local server.
var ArchiveBaseURL = "https://www.sec.gov"

const (
	Version = "0.1.0"

	// DefaultMaxPerSecond is the archive's published request ceiling.
	DefaultMaxPerSecond = 10

	// DefaultMaxRetries bounds retry attempts for 429s and transient
	// network failures.
	DefaultMaxRetries = 3

	// ContactEmailEnvVar is the environment variable holding the contact
	// address the archive requires in the identifying header.
	ContactEmailEnvVar = "FILINGS_EMAIL"
)

// GetContactEmail retrieves the contact email from the environment.
func GetContactEmail() (string, error) {
	email := os.Getenv(ContactEmailEnvVar)
	if email == "" {
		return "", fmt.Errorf("contact email required: set %s environment variable or use --email flag", ContactEmailEnvVar)
	}

	emailRegex := regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	if !emailRegex.MatchString(email) {
		return "", fmt.Errorf("invalid email format: %s", email)
	}
	if strings.HasSuffix(email, "example.com") {
		return "", fmt.Errorf("use a real email address, not example.com: %s", email)
	}
	return email, nil
}

// BuildUserAgent creates the identifying User-Agent string the archive
// requires on every request.
func BuildUserAgent(email string) string {
	return fmt.Sprintf("go-filings/%s (%s)", Version, email)
}

// Limiter enforces a minimum interval between requests with a small random
// jitter so bursts from concurrent workers do not bunch up. A single Limiter
// must be shared by every worker hitting the archive; its scheduling state
// is the only cross-worker mutable state in the package.
type Limiter struct {
	mu       sync.Mutex
	next     time.Time
	interval time.Duration
	jitter   time.Duration
}

// NewLimiter creates a limiter allowing at most maxPerSecond requests per
// second. Values above the archive ceiling are clamped.
func NewLimiter(maxPerSecond float64) *Limiter {
	if maxPerSecond <= 0 || maxPerSecond > DefaultMaxPerSecond {
		maxPerSecond = DefaultMaxPerSecond
	}
	interval := time.Duration(float64(time.Second) / maxPerSecond)
	return &Limiter{
		interval: interval,
		jitter:   interval / 4,
	}
}

// Wait blocks until a request slot is available or the context is cancelled.
func (l *Limiter) Wait(ctx context.Context) error {
	l.mu.Lock()
	now := time.Now()
	at := l.next
	if at.Before(now) {
		at = now
	}
	delay := l.interval
	if l.jitter > 0 {
		delay += time.Duration(rand.Int63n(int64(l.jitter)))
	}
	l.next = at.Add(delay)
	l.mu.Unlock()

	if wait := time.Until(at); wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	return nil
}

// Client issues rate-limited HTTP GETs against the filing archive. All
// network access in the package goes through one Client so the shared
// Limiter sees every request.
type Client struct {
	http       *http.Client
	limiter    *Limiter
	userAgent  string
	maxRetries uint64
	backoff    time.Duration
	logger     *log.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// WithLimiter injects a shared rate limiter.
func WithLimiter(l *Limiter) ClientOption {
	return func(c *Client) { c.limiter = l }
}

// WithMaxRetries sets the retry budget for 429s and transient failures.
func WithMaxRetries(n uint64) ClientOption {
	return func(c *Client) { c.maxRetries = n }
}

// WithRetryBase sets the base backoff duration between retries.
func WithRetryBase(d time.Duration) ClientOption {
	return func(c *Client) { c.backoff = d }
}

// WithLogger attaches a structured logger.
func WithLogger(l *log.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a fetch client. Email is mandatory per archive policy.
func NewClient(email string, opts ...ClientOption) (*Client, error) {
	if email == "" {
		return nil, fmt.Errorf("email is required for archive requests")
	}

	c := &Client{
		http:       &http.Client{Timeout: 30 * time.Second},
		limiter:    NewLimiter(DefaultMaxPerSecond),
		userAgent:  BuildUserAgent(email),
		maxRetries: DefaultMaxRetries,
		backoff:    500 * time.Millisecond,
		logger:     log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Limiter exposes the client's shared limiter so additional clients or
// workers can be wired to the same instance.
func (c *Client) Limiter() *Limiter { return c.limiter }

// ResolveURL turns an archive-relative URL into an absolute one.
func ResolveURL(url string) string {
	if strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://") {
		return url
	}
	if !strings.HasPrefix(url, "/") {
		url = "/" + url
	}
	return ArchiveBaseURL + url
}

// Fetch GETs a URL with rate limiting, the identifying header, and bounded
// exponential-backoff retries on 429, 5xx, and transient network failures.
// 403 and 404 are fatal and returned immediately as tagged errors.
func (c *Client) Fetch(ctx context.Context, url string) ([]byte, error) {
	url = ResolveURL(url)

	var body []byte
	b := retry.WithMaxRetries(c.maxRetries, retry.NewExponential(c.backoff))

	err := retry.Do(ctx, b, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return &FetchError{Kind: ErrBadContent, URL: url, Err: err}
		}
		req.Header.Set("User-Agent", c.userAgent)

		resp, err := c.http.Do(req)
		if err != nil {
			c.logger.Debug("request failed, will retry", "url", url, "err", err)
			return retry.RetryableError(&FetchError{Kind: ErrNetwork, URL: url, Err: err})
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
			data, err := io.ReadAll(resp.Body)
			if err != nil {
				return retry.RetryableError(&FetchError{Kind: ErrNetwork, URL: url, Err: err})
			}
			if len(data) == 0 {
				return &FetchError{Kind: ErrBadContent, URL: url, Status: resp.StatusCode}
			}
			body = data
			return nil

		case resp.StatusCode == http.StatusTooManyRequests:
			c.logger.Warn("rate limited by archive", "url", url)
			return retry.RetryableError(&FetchError{Kind: ErrRateLimited, URL: url, Status: resp.StatusCode})

		case resp.StatusCode == http.StatusForbidden:
			// A 403 means the identifying header or aggregate request rate
			// violated archive policy. Caller backoff must be minutes, not
			// seconds, so this is never retried here.
			return &FetchError{Kind: ErrForbidden, URL: url, Status: resp.StatusCode}

		case resp.StatusCode == http.StatusNotFound:
			return &FetchError{Kind: ErrNotFound, URL: url, Status: resp.StatusCode}

		case resp.StatusCode >= 500:
			return retry.RetryableError(&FetchError{Kind: ErrNetwork, URL: url, Status: resp.StatusCode})

		default:
			return &FetchError{Kind: ErrBadContent, URL: url, Status: resp.StatusCode}
		}
	})
	if err != nil {
		var fe *FetchError
		if errors.As(err, &fe) {
			return nil, fe
		}
		return nil, &FetchError{Kind: ErrNetwork, URL: url, Err: err}
	}

	return body, nil
}
