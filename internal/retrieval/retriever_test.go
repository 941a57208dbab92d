package retrieval

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

type fakeSearcher struct {
	passages map[string][]Passage
	err      error
	delay    time.Duration
	calls    []string
}

func (f *fakeSearcher) Search(ctx context.Context, collection, query string, limit int) ([]Passage, error) {
	f.calls = append(f.calls, collection)
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.delay):
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	results := f.passages[collection]
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func TestFetch_ReturnsSanitizedPassages(t *testing.T) {
	fs := &fakeSearcher{passages: map[string][]Passage{
		CollectionKnowledge: {
			{Content: "Start small and\x00 build up."},
		},
	}}
	r := NewRetriever(fs, Config{})

	got := r.Fetch(context.Background(), Decision{UseKnowledge: true, Query: "query"})
	if len(got) != 1 {
		t.Fatalf("passages = %d, want 1", len(got))
	}
	if got[0].Content != "Start small and build up." {
		t.Errorf("content = %q, not sanitized", got[0].Content)
	}
}

func TestFetch_QueriesActivitiesOnDecision(t *testing.T) {
	fs := &fakeSearcher{passages: map[string][]Passage{}}
	r := NewRetriever(fs, Config{})

	r.Fetch(context.Background(), Decision{UseKnowledge: true, UseActivities: true, Query: "q"})

	want := []string{CollectionKnowledge, CollectionActivities}
	if len(fs.calls) != 2 || fs.calls[0] != want[0] || fs.calls[1] != want[1] {
		t.Errorf("searched %v, want %v", fs.calls, want)
	}
}

func TestFetch_SearchErrorDegradesToNil(t *testing.T) {
	fs := &fakeSearcher{err: errors.New("connection refused")}
	r := NewRetriever(fs, Config{})

	if got := r.Fetch(context.Background(), Decision{UseKnowledge: true, Query: "q"}); got != nil {
		t.Errorf("Fetch() = %v, want nil on search failure", got)
	}
}

func TestFetch_TimeoutDegradesToNil(t *testing.T) {
	fs := &fakeSearcher{delay: time.Second}
	r := NewRetriever(fs, Config{Timeout: 10 * time.Millisecond})

	start := time.Now()
	got := r.Fetch(context.Background(), Decision{UseKnowledge: true, Query: "q"})
	if got != nil {
		t.Errorf("Fetch() = %v, want nil on timeout", got)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("Fetch() ignored timeout, took %s", elapsed)
	}
}

func TestFetch_NilSearcher(t *testing.T) {
	r := NewRetriever(nil, Config{})
	if got := r.Fetch(context.Background(), Decision{UseKnowledge: true, Query: "q"}); got != nil {
		t.Errorf("Fetch() = %v, want nil with no searcher", got)
	}
}

func TestFetch_TotalBudget(t *testing.T) {
	big := strings.Repeat("a", MaxPassageChars)
	fs := &fakeSearcher{passages: map[string][]Passage{
		CollectionKnowledge: {
			{Content: big}, {Content: big}, {Content: big}, {Content: big},
		},
	}}
	r := NewRetriever(fs, Config{TopK: 4})

	got := r.Fetch(context.Background(), Decision{UseKnowledge: true, Query: "q"})

	total := 0
	for _, p := range got {
		total += len(p.Content)
	}
	if total > 4000 {
		t.Errorf("total passage chars = %d, want <= 4000", total)
	}
	if len(got) != 3 {
		t.Errorf("passages = %d, want 3 under the budget", len(got))
	}
}
