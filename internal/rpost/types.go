package rpost

import (
	"strings"
	"time"
)

// Kind selects between a link submission and a text (self) submission.
type Kind string

const (
	KindLink Kind = "link"
	KindText Kind = "text"
)

// ParseKind maps user input onto a Kind. "self" is accepted for text posts
// because that is the value Reddit itself uses on the wire.
func ParseKind(raw string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "link":
		return KindLink, nil
	case "text", "self":
		return KindText, nil
	}
	return "", ValidationError{Field: "kind", Reason: "must be link or text, got " + strings.TrimSpace(raw)}
}

// WireValue is the value sent in the kind form field.
func (k Kind) WireValue() string {
	if k == KindText {
		return "self"
	}
	return string(k)
}

// Credentials holds the OAuth2 password-grant identity for a single run.
type Credentials struct {
	Username     string
	Password     string
	ClientID     string
	ClientSecret string
}

// Validate reports every empty field at once.
func (c Credentials) Validate() error {
	var missing []string
	if c.Username == "" {
		missing = append(missing, "username")
	}
	if c.Password == "" {
		missing = append(missing, "password")
	}
	if c.ClientID == "" {
		missing = append(missing, "client-id")
	}
	if c.ClientSecret == "" {
		missing = append(missing, "client-secret")
	}
	if len(missing) > 0 {
		return MissingInputError{Inputs: missing}
	}
	return nil
}

// PostingRequest describes one submission to one subreddit. Build it with
// NewPostingRequest so Kind always matches the populated content field.
type PostingRequest struct {
	Target string
	Kind   Kind
	Title  string
	Body   string
	URL    string
}

// NewPostingRequest validates and builds a PostingRequest. content is the URL
// for link posts and the body for text posts.
func NewPostingRequest(target string, kind Kind, title, content string) (PostingRequest, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return PostingRequest{}, ValidationError{Field: "subreddits", Reason: "target is empty"}
	}
	if strings.TrimSpace(title) == "" {
		return PostingRequest{}, ValidationError{Field: "title", Reason: "title is empty"}
	}

	req := PostingRequest{Target: target, Kind: kind, Title: title}
	switch kind {
	case KindLink:
		if strings.TrimSpace(content) == "" {
			return PostingRequest{}, ValidationError{Field: "url", Reason: "link posts need a url"}
		}
		req.URL = strings.TrimSpace(content)
	case KindText:
		if content == "" {
			return PostingRequest{}, ValidationError{Field: "text", Reason: "text posts need a body"}
		}
		req.Body = content
	default:
		return PostingRequest{}, ValidationError{Field: "kind", Reason: "unknown kind " + string(kind)}
	}
	return req, nil
}

// ParseTargets splits a comma-separated subreddit list, keeping input order.
func ParseTargets(raw string) ([]string, error) {
	var targets []string
	for _, part := range strings.Split(raw, ",") {
		name := strings.TrimSpace(part)
		name = strings.TrimPrefix(name, "/")
		if len(name) > 2 && strings.EqualFold(name[:2], "r/") {
			name = name[2:]
		}
		if name == "" {
			continue
		}
		targets = append(targets, name)
	}
	if len(targets) == 0 {
		return nil, ValidationError{Field: "subreddits", Reason: "no subreddits given"}
	}
	return targets, nil
}

// ReplyKind tags the classification of a single submission response.
type ReplyKind int

const (
	ReplyMalformed ReplyKind = iota
	ReplySubmitted
	ReplyRateLimited
	ReplyRejected
)

func (k ReplyKind) String() string {
	switch k {
	case ReplySubmitted:
		return "submitted"
	case ReplyRateLimited:
		return "rate-limited"
	case ReplyRejected:
		return "rejected"
	default:
		return "malformed"
	}
}

// Reply is the parsed server answer to one submission attempt. Only the
// fields relevant to Kind are set.
type Reply struct {
	Kind       ReplyKind
	RetryAfter time.Duration
	Reason     string
	URL        string
}

// Status is the terminal state of a target.
type Status int

const (
	StatusFailed Status = iota
	StatusSubmitted
)

func (s Status) String() string {
	if s == StatusSubmitted {
		return "submitted"
	}
	return "failed"
}

// Outcome records how a target finished.
type Outcome struct {
	Target   string
	Status   Status
	Attempts int
	Reason   string
	URL      string
}
