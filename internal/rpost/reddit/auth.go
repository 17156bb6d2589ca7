package reddit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/blacktop/rpost/internal/logutil"
	"github.com/blacktop/rpost/internal/rpost"
)

const (
	DefaultTokenURL  = "https://www.reddit.com/api/v1/access_token"
	DefaultUserAgent = "rpost/1"
)

// ErrAuthentication matches every AuthError via errors.Is.
var ErrAuthentication = errors.New("authentication failed")

// AuthError describes a failed token exchange.
type AuthError struct {
	StatusCode int
	// Body holds the raw server response when one was read.
	Body string
	Err  error
}

func (e *AuthError) Error() string {
	var sb strings.Builder
	sb.WriteString("auth error")
	if e.StatusCode != 0 {
		fmt.Fprintf(&sb, ": status code %d", e.StatusCode)
	}
	if e.Body != "" {
		fmt.Fprintf(&sb, ", body: %q", e.Body)
	}
	if e.Err != nil {
		fmt.Fprintf(&sb, ", err: %v", e.Err)
	}
	return sb.String()
}

func (e *AuthError) Unwrap() error { return e.Err }

// Is lets callers test for ErrAuthentication without knowing the concrete type.
func (e *AuthError) Is(target error) bool { return target == ErrAuthentication }

// HTTPDoer is the subset of *http.Client used here.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Authenticator exchanges password-grant credentials for a bearer token.
type Authenticator struct {
	creds     rpost.Credentials
	http      HTTPDoer
	tokenURL  string
	userAgent string
}

// AuthOption customises an Authenticator.
type AuthOption func(*Authenticator)

// WithAuthHTTPClient overrides the HTTP client.
func WithAuthHTTPClient(client HTTPDoer) AuthOption {
	return func(a *Authenticator) { a.http = client }
}

// WithTokenURL overrides the token endpoint.
func WithTokenURL(u string) AuthOption {
	return func(a *Authenticator) { a.tokenURL = u }
}

// WithAuthUserAgent sets the identifying User-Agent header.
func WithAuthUserAgent(ua string) AuthOption {
	return func(a *Authenticator) { a.userAgent = ua }
}

// NewAuthenticator validates creds and returns an Authenticator for them.
func NewAuthenticator(creds rpost.Credentials, opts ...AuthOption) (*Authenticator, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	a := &Authenticator{
		creds:     creds,
		http:      http.DefaultClient,
		tokenURL:  DefaultTokenURL,
		userAgent: DefaultUserAgent,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Scope       string `json:"scope"`
	Error       string `json:"error"`
}

// Token performs one password-grant request. It never retries.
func (a *Authenticator) Token(ctx context.Context) (string, error) {
	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("username", a.creds.Username)
	form.Set("password", a.creds.Password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", &AuthError{Err: fmt.Errorf("create token request: %w", err)}
	}
	req.SetBasicAuth(a.creds.ClientID, a.creds.ClientSecret)
	req.Header.Set("User-Agent", a.userAgent)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	logutil.Debugf("requesting access token: url=%s user=%s", a.tokenURL, a.creds.Username)
	resp, err := a.http.Do(req)
	if err != nil {
		return "", &AuthError{Err: fmt.Errorf("execute token request: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", &AuthError{StatusCode: resp.StatusCode, Err: fmt.Errorf("read token response: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		return "", &AuthError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var parsed tokenResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", &AuthError{StatusCode: resp.StatusCode, Body: string(body), Err: fmt.Errorf("decode token response: %w", err)}
	}
	// Reddit answers bad credentials with 200 and {"error": "invalid_grant"}.
	if parsed.Error != "" {
		return "", &AuthError{StatusCode: resp.StatusCode, Err: fmt.Errorf("token endpoint returned %q", parsed.Error)}
	}
	if parsed.AccessToken == "" {
		return "", &AuthError{StatusCode: resp.StatusCode, Body: string(body), Err: errors.New("access_token missing from response")}
	}

	logutil.Debugf("access token acquired: type=%s expires_in=%d scope=%s", parsed.TokenType, parsed.ExpiresIn, parsed.Scope)
	return parsed.AccessToken, nil
}
