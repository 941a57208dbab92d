package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/reframe-labs/coach/internal/retrieval"
	"github.com/reframe-labs/coach/internal/session"
)

type fakeProvider struct {
	chunks    []string
	reply     string
	err       error
	failAfter int  // emit this many chunks before failing (-1 = never)
	failOnce  bool // clear err after the first failure
	calls     int
	lastReq   Request
}

func (f *fakeProvider) StreamReply(ctx context.Context, req Request, onChunk func(string) error) (string, error) {
	f.calls++
	f.lastReq = req
	for i, c := range f.chunks {
		if f.err != nil && f.failAfter >= 0 && i == f.failAfter {
			break
		}
		if onChunk != nil {
			if err := onChunk(c); err != nil {
				return "", err
			}
		}
	}
	if f.err != nil {
		err := f.err
		if f.failOnce {
			f.err = nil
		}
		return "", err
	}
	if f.reply != "" {
		return f.reply, nil
	}
	return strings.Join(f.chunks, ""), nil
}

type fakeFetcher struct {
	passages []retrieval.Passage
	decs     []retrieval.Decision
}

func (f *fakeFetcher) Fetch(_ context.Context, dec retrieval.Decision) []retrieval.Passage {
	f.decs = append(f.decs, dec)
	return f.passages
}

func newTestEngine(t *testing.T, p Provider, fetcher PassageFetcher) (*Engine, *session.Store, *session.Session) {
	t.Helper()
	store := session.New(session.Config{})
	sess, err := store.Create("client-a")
	if err != nil {
		t.Fatalf("creating session: %v", err)
	}
	e, err := New(Config{Store: store, Provider: p, Retriever: fetcher})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e, store, sess
}

func collect(t *testing.T, events <-chan Event) []Event {
	t.Helper()
	var out []Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("stream never closed")
		}
	}
}

func TestConverse_ValidationErrorsAreSynchronous(t *testing.T) {
	e, _, sess := newTestEngine(t, &fakeProvider{chunks: []string{"x"}}, nil)

	tests := []struct {
		name    string
		text    string
		wantErr error
	}{
		{"empty", "   \n ", ErrEmptyMessage},
		{"too long", strings.Repeat("a", MaxMessageChars+1), ErrMessageTooLong},
		{"repeated char flood", strings.Repeat("a", 150) + "bc", ErrLowSignal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events, err := e.Converse(context.Background(), sess.ID, "client-a", tt.text)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Converse() error = %v, want %v", err, tt.wantErr)
			}
			if events != nil {
				t.Error("events channel must be nil on synchronous failure")
			}
		})
	}
}

func TestConverse_UnknownSessionIsSynchronous(t *testing.T) {
	e, _, _ := newTestEngine(t, &fakeProvider{chunks: []string{"x"}}, nil)

	_, err := e.Converse(context.Background(), "no-such-id", "client-a", "hello")
	if !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("Converse() error = %v, want ErrNotFound", err)
	}
}

func TestConverse_StreamsTokensThenDone(t *testing.T) {
	p := &fakeProvider{chunks: []string{"take ", "a short ", "walk"}}
	e, store, sess := newTestEngine(t, p, nil)

	events, err := e.Converse(context.Background(), sess.ID, "client-a",
		"I always walk every morning, it's a habit")
	if err != nil {
		t.Fatalf("Converse() error: %v", err)
	}

	got := collect(t, events)
	if len(got) != 4 {
		t.Fatalf("events = %d, want 3 tokens + done", len(got))
	}
	var text strings.Builder
	for _, ev := range got[:3] {
		if ev.Type != EventToken {
			t.Fatalf("event type = %q, want token", ev.Type)
		}
		text.WriteString(ev.Text)
	}
	terminal := got[3]
	if terminal.Type != EventDone {
		t.Fatalf("terminal type = %q, want done", terminal.Type)
	}
	if terminal.State.Stage == "" {
		t.Error("done event carries no merged state")
	}
	if text.String() != "take a short walk" {
		t.Errorf("streamed text = %q", text.String())
	}

	// Write-back: both messages and the state landed in the store.
	after, err := store.Get(sess.ID, "client-a")
	if err != nil {
		t.Fatalf("Get after turn: %v", err)
	}
	if len(after.Messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(after.Messages))
	}
	if after.Messages[1].Content != "take a short walk" {
		t.Errorf("assistant message = %q", after.Messages[1].Content)
	}
	if after.State.Stage != terminal.State.Stage {
		t.Error("stored state differs from done event state")
	}
}

func TestConverse_ConcurrentTurnsKeepBothMerges(t *testing.T) {
	p := &fakeProvider{chunks: []string{"ok"}}
	e, store, sess := newTestEngine(t, p, nil)

	// Two turns race on one session; each infers a different state field.
	// The session lock serializes them, so the later merge must build on
	// the earlier one instead of a stale snapshot.
	var wg sync.WaitGroup
	for _, text := range []string{"I only have 30 minutes today", "it's raining outside"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			events, err := e.Converse(context.Background(), sess.ID, "client-a", text)
			if err != nil {
				t.Errorf("Converse(%q) error: %v", text, err)
				return
			}
			for range events {
			}
		}()
	}
	wg.Wait()

	after, err := store.Get(sess.ID, "client-a")
	if err != nil {
		t.Fatalf("Get after turns: %v", err)
	}
	if after.State.TimeAvailable != "30 minutes" {
		t.Errorf("TimeAvailable = %q, clobbered by the other turn", after.State.TimeAvailable)
	}
	if after.State.Barrier != "weather" {
		t.Errorf("Barrier = %q, clobbered by the other turn", after.State.Barrier)
	}
	if len(after.Messages) != 4 {
		t.Errorf("messages = %d, want 2 full turns", len(after.Messages))
	}
}

func TestConverse_MidStreamFailureEmitsSingleError(t *testing.T) {
	p := &fakeProvider{chunks: []string{"par", "tial"}, err: errors.New("boom"), failAfter: 2}
	e, store, sess := newTestEngine(t, p, nil)

	events, err := e.Converse(context.Background(), sess.ID, "client-a", "hello there")
	if err != nil {
		t.Fatalf("Converse() error: %v", err)
	}

	got := collect(t, events)
	terminal := got[len(got)-1]
	if terminal.Type != EventError {
		t.Fatalf("terminal type = %q, want error", terminal.Type)
	}
	if !errors.Is(terminal.Err, ErrUpstream) {
		t.Errorf("terminal error = %v, want ErrUpstream", terminal.Err)
	}
	for _, ev := range got[:len(got)-1] {
		if ev.Type != EventToken {
			t.Errorf("non-token event %q before terminal", ev.Type)
		}
	}

	// No write-back on failure.
	after, _ := store.Get(sess.ID, "client-a")
	if len(after.Messages) != 0 {
		t.Errorf("messages = %d, want 0 after failed turn", len(after.Messages))
	}
}

func TestConverse_TransientFailureRetriedBeforeFirstChunk(t *testing.T) {
	p := &fakeProvider{
		chunks:    []string{"ok"},
		err:       errors.New("503 unavailable"),
		failAfter: 0,
		failOnce:  true,
	}
	e, _, sess := newTestEngine(t, p, nil)

	events, err := e.Converse(context.Background(), sess.ID, "client-a", "hello")
	if err != nil {
		t.Fatalf("Converse() error: %v", err)
	}
	got := collect(t, events)
	if got[len(got)-1].Type != EventDone {
		t.Fatalf("terminal = %q, want done after retry", got[len(got)-1].Type)
	}
	if p.calls != 2 {
		t.Errorf("provider calls = %d, want 2", p.calls)
	}
}

func TestConverse_NoRetryAfterFirstChunk(t *testing.T) {
	p := &fakeProvider{chunks: []string{"par"}, err: errors.New("503 unavailable"), failAfter: 1}
	e, _, sess := newTestEngine(t, p, nil)

	events, _ := e.Converse(context.Background(), sess.ID, "client-a", "hello")
	got := collect(t, events)
	if got[len(got)-1].Type != EventError {
		t.Fatalf("terminal = %q, want error", got[len(got)-1].Type)
	}
	if p.calls != 1 {
		t.Errorf("provider calls = %d, want 1 (no retry after visible output)", p.calls)
	}
}

func TestConverse_CancelReleasesProducer(t *testing.T) {
	defer goleak.VerifyNone(t)

	started := make(chan struct{})
	release := make(chan struct{})
	p := &blockingProvider{started: started, release: release}
	e, _, sess := newTestEngine(t, p, nil)

	ctx, cancel := context.WithCancel(context.Background())
	events, err := e.Converse(ctx, sess.ID, "client-a", "hello")
	if err != nil {
		t.Fatalf("Converse() error: %v", err)
	}

	<-started
	cancel()
	close(release)

	// Drain; the channel must close without hanging.
	collect(t, events)
}

// blockingProvider parks inside the model call until released, honoring ctx.
type blockingProvider struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingProvider) StreamReply(ctx context.Context, _ Request, _ func(string) error) (string, error) {
	close(b.started)
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-b.release:
		return "", ctx.Err()
	}
}

func TestConverse_PassagesAndClarifierReachPrompt(t *testing.T) {
	p := &fakeProvider{chunks: []string{"ok"}}
	fetcher := &fakeFetcher{passages: []retrieval.Passage{
		{Collection: retrieval.CollectionKnowledge, Content: "Start small."},
	}}
	e, _, sess := newTestEngine(t, p, fetcher)

	events, err := e.Converse(context.Background(), sess.ID, "client-a",
		"what should I do to get going?")
	if err != nil {
		t.Fatalf("Converse() error: %v", err)
	}
	collect(t, events)

	if len(fetcher.decs) != 1 {
		t.Fatalf("fetch calls = %d, want 1", len(fetcher.decs))
	}
	if !fetcher.decs[0].UseActivities {
		t.Error("suggestion ask should route to activities")
	}
	if !strings.Contains(p.lastReq.System, "Start small.") {
		t.Error("passage missing from system prompt")
	}
	if !strings.Contains(p.lastReq.System, "clarifying question") {
		t.Error("clarifying directive missing for location-less suggestion ask")
	}
}

func TestConverse_HistoryWindowBoundsMessages(t *testing.T) {
	p := &fakeProvider{chunks: []string{"ok"}}
	store := session.New(session.Config{})
	sess, _ := store.Create("client-a")
	_ = store.Update(sess.ID, "client-a", func(s *session.Session) error {
		for range 30 {
			s.Append(session.RoleUser, "old", time.Now())
		}
		return nil
	})
	e, _ := New(Config{Store: store, Provider: p, HistoryWindow: 4})

	events, err := e.Converse(context.Background(), sess.ID, "client-a", "newest")
	if err != nil {
		t.Fatalf("Converse() error: %v", err)
	}
	collect(t, events)

	if n := len(p.lastReq.Messages); n != 5 {
		t.Errorf("prompt messages = %d, want 4 history + 1 new", n)
	}
}

func TestReply_NonStreaming(t *testing.T) {
	p := &fakeProvider{reply: "try a short stroll"}
	e, store, sess := newTestEngine(t, p, nil)

	reply, st, err := e.Reply(context.Background(), sess.ID, "client-a",
		"I have about 20 minutes and like walking")
	if err != nil {
		t.Fatalf("Reply() error: %v", err)
	}
	if reply != "try a short stroll" {
		t.Errorf("reply = %q", reply)
	}
	if st.TimeAvailable != "20 minutes" {
		t.Errorf("state.TimeAvailable = %q", st.TimeAvailable)
	}

	after, _ := store.Get(sess.ID, "client-a")
	if len(after.Messages) != 2 {
		t.Errorf("messages = %d, want 2", len(after.Messages))
	}
}

func TestReply_EmptyUpstreamReplyIsError(t *testing.T) {
	p := &fakeProvider{}
	e, _, sess := newTestEngine(t, p, nil)

	_, _, err := e.Reply(context.Background(), sess.ID, "client-a", "hello")
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("Reply() error = %v, want ErrUpstream", err)
	}
}

func TestValidateMessage(t *testing.T) {
	if _, err := ValidateMessage("  hello  "); err != nil {
		t.Errorf("trimmed message rejected: %v", err)
	}
	if got, _ := ValidateMessage("  hello  "); got != "hello" {
		t.Errorf("ValidateMessage trimmed = %q", got)
	}
	// Short repeated messages pass; the filter only applies beyond 100 chars.
	if _, err := ValidateMessage("noooooo!!!"); err != nil {
		t.Errorf("short repetition rejected: %v", err)
	}
}
