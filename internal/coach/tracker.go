package coach

import "fmt"

// Merge infers state from the utterance and folds it into prev, returning a
// new State. prev is never mutated.
//
// Merge semantics per field:
//   - Stage: overwritten only when the new evidence reaches the confidence
//     threshold and its confidence is at least the previous one.
//   - Barrier: overwritten only on a fresh cue hit.
//   - Activities: accumulate; first-mention order is preserved.
//   - TimeAvailable: overwritten on any new match.
func Merge(prev State, utterance string) State {
	st := prev.Clone()
	u := normalize(utterance)
	if u == "" {
		return st
	}
	for _, r := range rules {
		r.apply(&st, u)
	}
	return st
}

func applyStage(st *State, u string) {
	var best Stage
	var bestScore float64
	for _, sr := range stageRules {
		hits := countCues(u, sr.cues)
		if hits == 0 {
			continue
		}
		score := sr.base + float64(hits-1)*sr.increment
		if score > maxStageScore {
			score = maxStageScore
		}
		if score > bestScore {
			best, bestScore = sr.stage, score
		}
	}

	switch {
	case bestScore >= confidenceThreshold && bestScore >= st.StageConfidence:
		st.Stage = best
		st.StageConfidence = bestScore
		st.PendingQuestion = false
	case bestScore > 0 && st.Stage == "":
		// Some evidence, not enough to commit: worth a clarifying question.
		st.PendingQuestion = true
	}
}

func applyBarrier(st *State, u string) {
	for _, bc := range barrierCues {
		if countCues(u, bc.cues) > 0 {
			st.Barrier = bc.label
			return
		}
	}
}

func applyActivities(st *State, u string) {
	for _, ac := range activityCues {
		if countCues(u, ac.cues) == 0 {
			continue
		}
		if !st.HasActivity(ac.label) {
			st.Activities = append(st.Activities, ac.label)
		}
	}
}

func applyTimeWindow(st *State, u string) {
	if halfHourPattern.MatchString(u) {
		st.TimeAvailable = "30 minutes"
		return
	}
	if m := timeWindowPattern.FindStringSubmatch(u); m != nil {
		st.TimeAvailable = fmt.Sprintf("%s minutes", m[1])
	}
}
