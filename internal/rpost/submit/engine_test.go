package submit

import (
	"context"
	"errors"
	"io"
	"os"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/blacktop/rpost/internal/logutil"
	"github.com/blacktop/rpost/internal/rpost"
)

func TestMain(m *testing.M) {
	logutil.SetOutput(io.Discard)
	os.Exit(m.Run())
}

type call struct {
	req   rpost.PostingRequest
	token string
	at    time.Time
}

// scriptedSubmitter answers each target from a queue of replies; once a
// queue runs dry it keeps answering success.
type scriptedSubmitter struct {
	mu      sync.Mutex
	replies map[string][]rpost.Reply
	errs    map[string]error
	calls   []call
}

func (s *scriptedSubmitter) Submit(_ context.Context, token string, req rpost.PostingRequest) (rpost.Reply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call{req: req, token: token, at: time.Now()})
	if err := s.errs[req.Target]; err != nil {
		return rpost.Reply{}, err
	}
	queue := s.replies[req.Target]
	if len(queue) == 0 {
		return rpost.Reply{Kind: rpost.ReplySubmitted}, nil
	}
	s.replies[req.Target] = queue[1:]
	return queue[0], nil
}

func (s *scriptedSubmitter) targets() []string {
	out := make([]string, 0, len(s.calls))
	for _, c := range s.calls {
		out = append(out, c.req.Target)
	}
	return out
}

func linkRequests(t *testing.T, targets ...string) []rpost.PostingRequest {
	t.Helper()
	reqs := make([]rpost.PostingRequest, 0, len(targets))
	for _, target := range targets {
		req, err := rpost.NewPostingRequest(target, rpost.KindLink, "title", "https://go.dev")
		if err != nil {
			t.Fatalf("NewPostingRequest(%q) error = %v", target, err)
		}
		reqs = append(reqs, req)
	}
	return reqs
}

func TestRun_AllSucceedInOrder(t *testing.T) {
	sub := &scriptedSubmitter{replies: map[string][]rpost.Reply{}}
	var events []Event
	engine := New(sub, "tok", WithObserver(func(ev Event) { events = append(events, ev) }))

	start := time.Now()
	outcomes, err := engine.Run(context.Background(), linkRequests(t, "a", "b", "c"))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := sub.targets(); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Fatalf("submission order = %v, want [a b c]", got)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("run took %s, want no waits", elapsed)
	}
	for i, o := range outcomes {
		if o.Status != rpost.StatusSubmitted || o.Attempts != 1 {
			t.Errorf("outcome[%d] = %#v", i, o)
		}
	}
	for _, c := range sub.calls {
		if c.token != "tok" {
			t.Fatalf("token = %q, want tok", c.token)
		}
	}
	for _, ev := range events {
		if ev.State == StateRateLimited || ev.Delay != 0 {
			t.Fatalf("unexpected wait event %#v", ev)
		}
	}
}

func TestRun_RateLimitRetriesSameRequest(t *testing.T) {
	sub := &scriptedSubmitter{replies: map[string][]rpost.Reply{
		"x": {{Kind: rpost.ReplyRateLimited, RetryAfter: time.Second}},
	}}
	outcomes, err := New(sub, "tok").Run(context.Background(), linkRequests(t, "x"))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(sub.calls) != 2 {
		t.Fatalf("attempts = %d, want 2", len(sub.calls))
	}
	if gap := sub.calls[1].at.Sub(sub.calls[0].at); gap < time.Second {
		t.Fatalf("retry gap = %s, want >= 1s", gap)
	}
	if sub.calls[0].req != sub.calls[1].req {
		t.Fatalf("retry changed the request: %#v vs %#v", sub.calls[0].req, sub.calls[1].req)
	}
	if outcomes[0].Status != rpost.StatusSubmitted || outcomes[0].Attempts != 2 {
		t.Fatalf("outcome = %#v", outcomes[0])
	}
}

func TestRun_RateLimitDelayIsReported(t *testing.T) {
	sub := &scriptedSubmitter{replies: map[string][]rpost.Reply{
		"x": {{Kind: rpost.ReplyRateLimited, RetryAfter: 40 * time.Millisecond}},
	}}
	var waits []time.Duration
	engine := New(sub, "tok", WithObserver(func(ev Event) {
		if ev.State == StateRateLimited {
			waits = append(waits, ev.Delay)
		}
	}))
	if _, err := engine.Run(context.Background(), linkRequests(t, "x")); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !reflect.DeepEqual(waits, []time.Duration{40 * time.Millisecond}) {
		t.Fatalf("waits = %v", waits)
	}
	if gap := sub.calls[1].at.Sub(sub.calls[0].at); gap < 40*time.Millisecond {
		t.Fatalf("retry gap = %s, want >= 40ms", gap)
	}
}

func TestRun_RejectedDoesNotStopRun(t *testing.T) {
	sub := &scriptedSubmitter{replies: map[string][]rpost.Reply{
		"a": {{Kind: rpost.ReplyRejected, Reason: "bad url"}},
	}}
	start := time.Now()
	outcomes, err := New(sub, "tok").Run(context.Background(), linkRequests(t, "a", "b"))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Fatal("failure introduced a delay before the next target")
	}
	if outcomes[0].Status != rpost.StatusFailed || !strings.Contains(outcomes[0].Reason, "bad url") || outcomes[0].Attempts != 1 {
		t.Fatalf("outcome[0] = %#v", outcomes[0])
	}
	if outcomes[1].Status != rpost.StatusSubmitted {
		t.Fatalf("outcome[1] = %#v", outcomes[1])
	}
	if got := sub.targets(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Fatalf("submission order = %v", got)
	}
}

func TestRun_MalformedAndTransportErrorsFail(t *testing.T) {
	sub := &scriptedSubmitter{
		replies: map[string][]rpost.Reply{"a": {{Kind: rpost.ReplyMalformed, Reason: "no json envelope"}}},
		errs:    map[string]error{"b": errors.New("connection reset")},
	}
	outcomes, err := New(sub, "tok").Run(context.Background(), linkRequests(t, "a", "b", "c"))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(sub.calls) != 3 {
		t.Fatalf("calls = %d, want 3 (no retries)", len(sub.calls))
	}
	if outcomes[0].Status != rpost.StatusFailed || !strings.Contains(outcomes[0].Reason, "malformed") {
		t.Fatalf("outcome[0] = %#v", outcomes[0])
	}
	if outcomes[1].Status != rpost.StatusFailed || !strings.Contains(outcomes[1].Reason, "connection reset") {
		t.Fatalf("outcome[1] = %#v", outcomes[1])
	}
	if outcomes[2].Status != rpost.StatusSubmitted {
		t.Fatalf("outcome[2] = %#v", outcomes[2])
	}
}

func TestRun_MaxRetriesExhausts(t *testing.T) {
	limited := rpost.Reply{Kind: rpost.ReplyRateLimited, RetryAfter: time.Millisecond}
	sub := &scriptedSubmitter{replies: map[string][]rpost.Reply{
		"x": {limited, limited, limited, limited},
	}}
	outcomes, err := New(sub, "tok", WithMaxRetries(2)).Run(context.Background(), linkRequests(t, "x", "y"))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if outcomes[0].Status != rpost.StatusFailed || outcomes[0].Attempts != 3 {
		t.Fatalf("outcome[0] = %#v", outcomes[0])
	}
	if !strings.Contains(outcomes[0].Reason, ErrRateLimitExhausted.Error()) {
		t.Fatalf("reason = %q", outcomes[0].Reason)
	}
	if outcomes[1].Status != rpost.StatusSubmitted {
		t.Fatalf("outcome[1] = %#v", outcomes[1])
	}
}

func TestRun_MaxWaitExhausts(t *testing.T) {
	sub := &scriptedSubmitter{replies: map[string][]rpost.Reply{
		"x": {{Kind: rpost.ReplyRateLimited, RetryAfter: time.Hour}},
	}}
	start := time.Now()
	outcomes, err := New(sub, "tok", WithMaxWait(time.Minute)).Run(context.Background(), linkRequests(t, "x"))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatal("engine waited despite the wait ceiling")
	}
	if outcomes[0].Status != rpost.StatusFailed || !strings.Contains(outcomes[0].Reason, ErrRateLimitExhausted.Error()) {
		t.Fatalf("outcome = %#v", outcomes[0])
	}
}

func TestRun_CancelDuringWait(t *testing.T) {
	sub := &scriptedSubmitter{replies: map[string][]rpost.Reply{
		"x": {{Kind: rpost.ReplyRateLimited, RetryAfter: time.Hour}},
	}}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	outcomes, err := New(sub, "tok").Run(ctx, linkRequests(t, "x", "y"))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Run() error = %v, want deadline exceeded", err)
	}
	if len(outcomes) != 0 {
		t.Fatalf("outcomes = %#v, want none", outcomes)
	}
	if got := sub.targets(); !reflect.DeepEqual(got, []string{"x"}) {
		t.Fatalf("calls = %v, want only x", got)
	}
}

// cancellingSubmitter cancels the run while its first request is in flight,
// then reports that request as posted.
type cancellingSubmitter struct {
	cancel context.CancelFunc
	calls  []string
}

func (s *cancellingSubmitter) Submit(_ context.Context, _ string, req rpost.PostingRequest) (rpost.Reply, error) {
	s.calls = append(s.calls, req.Target)
	s.cancel()
	return rpost.Reply{Kind: rpost.ReplySubmitted, URL: "https://reddit.test/r/" + req.Target + "/1"}, nil
}

func TestRun_CancelAfterSubmitKeepsOutcome(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub := &cancellingSubmitter{cancel: cancel}

	outcomes, err := New(sub, "tok").Run(ctx, linkRequests(t, "a", "b"))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context canceled", err)
	}
	if len(outcomes) != 1 {
		t.Fatalf("outcomes = %#v, want the posted target", outcomes)
	}
	if outcomes[0].Target != "a" || outcomes[0].Status != rpost.StatusSubmitted || outcomes[0].URL != "https://reddit.test/r/a/1" {
		t.Fatalf("outcome = %#v", outcomes[0])
	}
	if !reflect.DeepEqual(sub.calls, []string{"a"}) {
		t.Fatalf("calls = %v, want only a", sub.calls)
	}
}
