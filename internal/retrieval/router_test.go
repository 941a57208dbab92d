package retrieval

import (
	"testing"

	"github.com/reframe-labs/coach/internal/coach"
)

func TestRoute(t *testing.T) {
	tests := []struct {
		name              string
		utterance         string
		state             coach.State
		wantActivities    bool
		wantClarification bool
	}{
		{
			name:      "plain utterance hits knowledge only",
			utterance: "I had a rough week honestly",
		},
		{
			name:              "suggestion ask without location needs clarification",
			utterance:         "what should I do to get moving again?",
			wantActivities:    true,
			wantClarification: true,
		},
		{
			name:           "suggestion ask with location hint",
			utterance:      "any suggestions for something at home?",
			wantActivities: true,
		},
		{
			name:           "day mention pulls activities",
			utterance:      "I have Tuesdays free",
			wantActivities: true,
		},
		{
			name:           "known activities in state pull the catalog",
			utterance:      "it went okay I guess",
			state:          coach.State{Activities: []string{"walking"}},
			wantActivities: true,
		},
		{
			name:           "recommend phrasing with gym hint",
			utterance:      "can you recommend something for the gym",
			wantActivities: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dec := Route(tt.utterance, tt.state)
			if !dec.UseKnowledge {
				t.Error("UseKnowledge must always be true")
			}
			if dec.UseActivities != tt.wantActivities {
				t.Errorf("UseActivities = %v, want %v", dec.UseActivities, tt.wantActivities)
			}
			if dec.NeedsLocationClarification != tt.wantClarification {
				t.Errorf("NeedsLocationClarification = %v, want %v",
					dec.NeedsLocationClarification, tt.wantClarification)
			}
		})
	}
}

func TestRoute_NormalizesQuery(t *testing.T) {
	dec := Route("  What   SHOULD I do\ntoday? ", coach.State{})
	if dec.Query != "what should i do today?" {
		t.Errorf("Query = %q", dec.Query)
	}
}
