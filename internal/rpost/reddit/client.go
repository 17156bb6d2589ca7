package reddit

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/time/rate"

	"github.com/blacktop/rpost/internal/logutil"
	"github.com/blacktop/rpost/internal/rpost"
)

const (
	DefaultSubmitURL = "https://oauth.reddit.com/api/submit"

	// Pacing is off unless asked for; Reddit's own ratelimit replies are
	// the only wait by default. Reddit's OAuth quota is 60 per minute.
	DefaultRequestsPerMinute = 0
	DefaultRateLimitBurst    = 10

	maxBodyBytes = 1 << 20
)

// Client submits postings to the Reddit API.
type Client struct {
	http      HTTPDoer
	submitURL string
	userAgent string
	limiter   *rate.Limiter
}

// ClientOption customises a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client HTTPDoer) ClientOption {
	return func(c *Client) { c.http = client }
}

// WithSubmitURL overrides the submission endpoint.
func WithSubmitURL(u string) ClientOption {
	return func(c *Client) { c.submitURL = u }
}

// WithUserAgent sets the identifying User-Agent header.
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) { c.userAgent = ua }
}

// WithRequestsPerMinute paces outgoing submissions. Zero or less disables pacing.
func WithRequestsPerMinute(rpm float64) ClientOption {
	return func(c *Client) {
		if rpm <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(rpm/60.0), DefaultRateLimitBurst)
	}
}

// NewClient returns a Client with Reddit defaults.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		http:      http.DefaultClient,
		submitURL: DefaultSubmitURL,
		userAgent: DefaultUserAgent,
	}
	WithRequestsPerMinute(DefaultRequestsPerMinute)(c)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Submit sends one posting and classifies the response. A returned error means
// the request never produced a response.
func (c *Client) Submit(ctx context.Context, token string, req rpost.PostingRequest) (rpost.Reply, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return rpost.Reply{}, fmt.Errorf("wait for request slot: %w", err)
		}
	}

	form := FormValues(req)
	if logutil.Verbose() {
		logutil.Debugf("submit form: %s", form.Encode())
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.submitURL, strings.NewReader(form.Encode()))
	if err != nil {
		return rpost.Reply{}, fmt.Errorf("create submit request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("User-Agent", c.userAgent)
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return rpost.Reply{}, fmt.Errorf("submit request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return rpost.Reply{}, fmt.Errorf("read submit response: %w", err)
	}
	logutil.Debugf("POST %s sr=%s -> %s", c.submitURL, req.Target, resp.Status)

	return ParseSubmitResponse(resp.StatusCode, resp.Header, body), nil
}

// FormValues encodes the kind-specific form fields for req.
func FormValues(req rpost.PostingRequest) url.Values {
	form := url.Values{}
	form.Set("api_type", "json")
	form.Set("kind", req.Kind.WireValue())
	form.Set("sr", req.Target)
	form.Set("title", req.Title)
	switch req.Kind {
	case rpost.KindLink:
		form.Set("url", req.URL)
	case rpost.KindText:
		form.Set("text", req.Body)
	}
	return form
}
