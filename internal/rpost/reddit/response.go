package reddit

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/blacktop/rpost/internal/rpost"
)

type submitEnvelope struct {
	JSON *struct {
		Errors    *[]json.RawMessage `json:"errors"`
		RateLimit *float64           `json:"ratelimit"`
		Data      struct {
			URL string `json:"url"`
		} `json:"data"`
	} `json:"json"`
}

// ParseSubmitResponse classifies one /api/submit response. It is the only
// place that inspects the response shape.
func ParseSubmitResponse(status int, header http.Header, body []byte) rpost.Reply {
	if status == http.StatusTooManyRequests {
		if wait, ok := retryAfterHeader(header); ok {
			return rpost.Reply{Kind: rpost.ReplyRateLimited, RetryAfter: wait}
		}
	}

	var env submitEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return rpost.Reply{Kind: rpost.ReplyMalformed, Reason: fmt.Sprintf("status %d: unparseable body: %v", status, err)}
	}
	if env.JSON == nil {
		return rpost.Reply{Kind: rpost.ReplyMalformed, Reason: fmt.Sprintf("status %d: response has no json envelope", status)}
	}

	if env.JSON.RateLimit != nil {
		seconds := *env.JSON.RateLimit
		if !validWait(seconds) {
			return rpost.Reply{Kind: rpost.ReplyMalformed, Reason: fmt.Sprintf("invalid ratelimit value %v", seconds)}
		}
		return rpost.Reply{Kind: rpost.ReplyRateLimited, RetryAfter: RetryDelay(seconds)}
	}

	if env.JSON.Errors == nil {
		return rpost.Reply{Kind: rpost.ReplyMalformed, Reason: fmt.Sprintf("status %d: envelope has no errors list", status)}
	}
	if errs := *env.JSON.Errors; len(errs) > 0 {
		msgs := make([]string, 0, len(errs))
		for _, raw := range errs {
			msgs = append(msgs, renderAPIError(raw))
		}
		return rpost.Reply{Kind: rpost.ReplyRejected, Reason: strings.Join(msgs, "; ")}
	}

	return rpost.Reply{Kind: rpost.ReplySubmitted, URL: env.JSON.Data.URL}
}

// RetryDelay converts a server wait in fractional seconds to a whole number
// of milliseconds, rounding up.
func RetryDelay(seconds float64) time.Duration {
	return time.Duration(math.Ceil(seconds*1000)) * time.Millisecond
}

// maxWaitMillis is the longest wait a time.Duration can hold, in whole milliseconds.
const maxWaitMillis = math.MaxInt64 / int64(time.Millisecond)

// validWait rejects negative, NaN and waits too long for RetryDelay to represent.
func validWait(seconds float64) bool {
	return seconds >= 0 && math.Ceil(seconds*1000) <= float64(maxWaitMillis)
}

func retryAfterHeader(header http.Header) (time.Duration, bool) {
	raw := strings.TrimSpace(header.Get("Retry-After"))
	if raw == "" {
		return 0, false
	}
	seconds, err := strconv.ParseFloat(raw, 64)
	if err != nil || !validWait(seconds) {
		return 0, false
	}
	return RetryDelay(seconds), true
}

// renderAPIError flattens either "message" or ["CODE", "message", "field"].
func renderAPIError(raw json.RawMessage) string {
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text
	}
	var parts []any
	if err := json.Unmarshal(raw, &parts); err == nil {
		strs := make([]string, 0, len(parts))
		for _, p := range parts {
			if s, ok := p.(string); ok && s != "" {
				strs = append(strs, s)
			}
		}
		if len(strs) > 0 {
			return strings.Join(strs, ": ")
		}
	}
	return string(raw)
}
