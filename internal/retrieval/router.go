// Package retrieval decides what knowledge to ground a reply on and fetches
// it from the passage store.
//
// Routing is purely lexical: no model call, no I/O. Fetching is bounded in
// time and size, and degrades to "no passages" on any failure — a broken or
// slow passage store must never break a conversation turn.
package retrieval

import (
	"regexp"
	"strings"

	"github.com/reframe-labs/coach/internal/coach"
)

// Collection names in the passage store.
const (
	CollectionKnowledge  = "knowledge"
	CollectionActivities = "activities"
)

// Decision is the outcome of routing one utterance.
type Decision struct {
	// UseKnowledge is always true: every reply is grounded in the core
	// coaching material.
	UseKnowledge bool

	// UseActivities requests passages from the activity catalog.
	UseActivities bool

	// NeedsLocationClarification marks a location-dependent activity ask
	// with no location evidence; the reply should ask rather than guess.
	NeedsLocationClarification bool

	// Query is the search text, the normalized utterance.
	Query string
}

// Cue phrases that signal an activity suggestion is wanted.
var suggestionCues = []string{
	"what should i do", "what should i try", "what can i do", "what could i do",
	"any suggestions", "suggest", "recommend", "ideas for", "what activities",
}

// Words that indicate the user already told us something about place or
// setting, so no clarification is needed.
var locationHints = []string{
	"home", "house", "indoors", "inside", "outdoors", "outside", "gym",
	"park", "pool", "neighborhood", "neighbourhood", "backyard", "garden",
	"community center", "community centre",
}

var dayPattern = regexp.MustCompile(`(?i)\b(monday|tuesday|wednesday|thursday|friday|saturday|sunday|weekend|weekday)s?\b`)

// Route classifies the utterance into a retrieval decision. st supplies
// already-known facts: a known activity list counts as activity interest.
func Route(utterance string, st coach.State) Decision {
	u := strings.Join(strings.Fields(strings.ToLower(utterance)), " ")

	dec := Decision{UseKnowledge: true, Query: u}
	if u == "" {
		return dec
	}

	wantsSuggestion := false
	for _, cue := range suggestionCues {
		if strings.Contains(u, cue) {
			wantsSuggestion = true
			break
		}
	}
	if wantsSuggestion || dayPattern.MatchString(u) || len(st.Activities) > 0 {
		dec.UseActivities = true
	}

	if wantsSuggestion {
		hasLocation := false
		for _, hint := range locationHints {
			if strings.Contains(u, hint) {
				hasLocation = true
				break
			}
		}
		dec.NeedsLocationClarification = !hasLocation
	}

	return dec
}
