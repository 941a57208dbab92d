package coach

import (
	"regexp"
	"strings"
)

// The tracker is driven by this ordered rule table. Rules run in table order
// against the normalized utterance; later rules see earlier rules' effects
// within the same merge.
var rules = []rule{
	{name: "stage", apply: applyStage},
	{name: "barrier", apply: applyBarrier},
	{name: "activities", apply: applyActivities},
	{name: "time-window", apply: applyTimeWindow},
}

type rule struct {
	name  string
	apply func(st *State, u string)
}

// stageRule scores one process layer. A single cue hit yields the base
// score; each additional distinct cue adds increment, capped at maxScore.
type stageRule struct {
	stage     Stage
	base      float64
	increment float64
	cues      []string
}

const maxStageScore = 0.95

var stageRules = []stageRule{
	{
		stage:     StageReflexive,
		base:      0.55,
		increment: 0.15,
		cues: []string{
			"always", "usually", "without thinking", "habit", "routine",
			"every morning", "every day", "automatically",
		},
	},
	{
		stage:     StageRegulatory,
		base:      0.5,
		increment: 0.15,
		cues: []string{
			"should", "supposed to", "have to", "must", "doctor said",
			"told me to", "my plan says", "tracking",
		},
	},
	{
		stage:     StageOngoingReflective,
		base:      0.5,
		increment: 0.15,
		cues: []string{
			"been thinking", "noticed", "realized", "reflecting",
			"i find that", "lately", "looking back",
		},
	},
	{
		stage:     StageInitiatingReflective,
		base:      0.45,
		increment: 0.15,
		cues: []string{
			"want to start", "thinking about starting", "considering",
			"maybe i could", "like to try", "how do i start", "where do i begin",
		},
	},
}

// Canonical barrier labels and their cue phrases.
var barrierCues = []struct {
	label string
	cues  []string
}{
	{"time pressure", []string{
		"no time", "not enough time", "too busy", "busy", "short on time",
		"too much to do", "packed schedule",
	}},
	{"motivation dip", []string{
		"unmotivated", "no motivation", "can't be bothered",
		"don't feel like", "lost interest", "lazy",
	}},
	{"weather", []string{
		"rain", "raining", "cold", "too cold", "hot", "too hot", "snow",
		"winter", "icy", "slippery", "windy", "weather",
	}},
	{"pain or discomfort", []string{
		"pain", "hurt", "hurts", "sore", "ache", "aching", "discomfort",
		"injury", "stiff", "stiffness", "joint pain", "knee pain", "back pain",
	}},
	{"confidence", []string{
		"not sure i can", "can't do it", "too hard for me", "intimidated",
		"embarrassed", "self-conscious", "out of my depth",
	}},
}

// Canonical activity labels and their cue phrases.
var activityCues = []struct {
	label string
	cues  []string
}{
	{"walking", []string{"walk", "walking", "walks", "stroll", "hike", "hiking"}},
	{"light strength", []string{"strength", "weights", "dumbbell", "dumbbells", "resistance", "squats", "push-ups", "pushups"}},
	{"mobility", []string{"stretch", "stretching", "mobility", "yoga", "balance"}},
	{"cycling", []string{"bike", "biking", "cycling", "cycle", "ride"}},
	{"swimming", []string{"swim", "swimming", "pool", "aqua"}},
	{"golf", []string{"golf", "golfing"}},
	{"pickleball", []string{"pickleball"}},
}

var (
	// Matches "about 20 minutes", "30 min", "45m" and similar.
	timeWindowPattern = regexp.MustCompile(`(?i)(?:about|around)?\s*(\d{1,2})\s*(?:minutes?|mins?|min\.?|m)\b`)
	halfHourPattern   = regexp.MustCompile(`(?i)\bhalf\s+(?:an\s+)?hour\b`)

	wordPatterns = map[string]*regexp.Regexp{}
)

func init() {
	compile := func(cues []string) {
		for _, c := range cues {
			if _, ok := wordPatterns[c]; !ok {
				wordPatterns[c] = regexp.MustCompile(`\b` + regexp.QuoteMeta(c) + `\b`)
			}
		}
	}
	for _, sr := range stageRules {
		compile(sr.cues)
	}
	for _, bc := range barrierCues {
		compile(bc.cues)
	}
	for _, ac := range activityCues {
		compile(ac.cues)
	}
}

// hasCue matches a cue phrase on word boundaries; "ride" does not match
// inside "pride".
func hasCue(u, cue string) bool {
	return wordPatterns[cue].MatchString(u)
}

func countCues(u string, cues []string) int {
	n := 0
	for _, c := range cues {
		if hasCue(u, c) {
			n++
		}
	}
	return n
}

// normalize lowercases and collapses runs of whitespace so cue phrases
// match across line breaks and irregular spacing.
func normalize(utterance string) string {
	return strings.Join(strings.Fields(strings.ToLower(utterance)), " ")
}
