package retrieval

import (
	"context"
	"errors"
	"time"

	"github.com/reframe-labs/coach/internal/log"
)

// Defaults applied by NewRetriever when Config fields are zero.
const (
	DefaultTimeout = 5 * time.Second
	DefaultTopK    = 4

	// maxTotalChars bounds the combined size of all fetched passages so a
	// fat passage store cannot blow up the prompt.
	maxTotalChars = 4000
)

// Passage is one sanitized chunk of grounding material.
type Passage struct {
	Collection string
	Content    string
}

// Searcher performs a vector search over one collection. Implementations
// live with their transport (see PGSearcher); the retriever only needs this.
type Searcher interface {
	Search(ctx context.Context, collection, query string, limit int) ([]Passage, error)
}

// Config configures a Retriever.
type Config struct {
	// Timeout bounds one Fetch call, independent of the request deadline.
	Timeout time.Duration

	// TopK is the per-collection result limit.
	TopK int

	Logger log.Logger
}

// Retriever fetches grounding passages for a routing decision.
type Retriever struct {
	searcher Searcher
	timeout  time.Duration
	topK     int
	logger   log.Logger
}

// NewRetriever creates a Retriever. searcher may be nil, in which case Fetch
// always returns nil — this is how retrieval is disabled by configuration.
func NewRetriever(searcher Searcher, cfg Config) *Retriever {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewNop()
	}
	return &Retriever{
		searcher: searcher,
		timeout:  cfg.Timeout,
		topK:     cfg.TopK,
		logger:   cfg.Logger,
	}
}

// Fetch returns sanitized passages for the decision. It never returns an
// error: on search failure, timeout, or empty results the reply proceeds
// ungrounded. Failures are logged at Warn, or Debug when the parent context
// was already canceled (the client went away; nothing is wrong with the
// store).
func (r *Retriever) Fetch(ctx context.Context, dec Decision) []Passage {
	if r.searcher == nil || dec.Query == "" {
		return nil
	}

	fetchCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	collections := []string{CollectionKnowledge}
	if dec.UseActivities {
		collections = append(collections, CollectionActivities)
	}

	var out []Passage
	budget := maxTotalChars
	for _, coll := range collections {
		results, err := r.searcher.Search(fetchCtx, coll, dec.Query, r.topK)
		if err != nil {
			if errors.Is(ctx.Err(), context.Canceled) {
				r.logger.Debug("passage search abandoned, request canceled",
					"collection", coll)
			} else {
				r.logger.Warn("passage search failed, replying without grounding",
					"collection", coll, "error", err)
			}
			continue
		}
		for _, p := range results {
			content := Sanitize(p.Content)
			if content == "" {
				continue
			}
			if len(content) > budget {
				break
			}
			budget -= len(content)
			out = append(out, Passage{Collection: coll, Content: content})
		}
	}
	return out
}
