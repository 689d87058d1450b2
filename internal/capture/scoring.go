package capture

// Scoring types mirror the exam editor's item field: dichotomous items
// score 0/1, polytomous items score 0/1/2.
const (
	ScoringDichotomous = "D"
	ScoringPolytomous  = "P"
)

// ComputeItemScore derives an item's score from how many of its
// sub-questions were answered correctly. A sub-question with no recorded
// response counts as not correct. An item with zero sub-questions scores 0;
// that usually means the exam definition is incomplete.
func ComputeItemScore(scoringType string, totalSubQuestions, correctCount int) int {
	if totalSubQuestions <= 0 {
		return 0
	}
	if correctCount < 0 {
		correctCount = 0
	}
	if correctCount > totalSubQuestions {
		correctCount = totalSubQuestions
	}

	if scoringType == ScoringPolytomous {
		switch {
		case correctCount == 0:
			return 0
		case correctCount == totalSubQuestions:
			return 2
		default:
			// Fixed three-way partition: any "some but not all" count is 1.
			return 1
		}
	}

	// Dichotomous: all-or-nothing.
	if correctCount == totalSubQuestions {
		return 1
	}
	return 0
}

// ValidScore reports whether a directly-entered score is inside the range
// allowed by the item's scoring type.
func ValidScore(scoringType string, score int) bool {
	if scoringType == ScoringPolytomous {
		return score >= 0 && score <= 2
	}
	return score == 0 || score == 1
}

// MaxScore returns the top of the scoring range for a scoring type.
func MaxScore(scoringType string) int {
	if scoringType == ScoringPolytomous {
		return 2
	}
	return 1
}

// ResolveScore applies the layered priority rule shared by the ledger
// recompute path and the Winsteps export: a stored ItemScore wins, otherwise
// the score is derived from sub-question responses. ok is false only when
// there is no stored score and the item has no sub-questions to derive from.
func ResolveScore(scoringType string, direct *int, totalSubQuestions, correctCount int) (int, bool) {
	if direct != nil {
		return *direct, true
	}
	if totalSubQuestions <= 0 {
		return 0, false
	}
	return ComputeItemScore(scoringType, totalSubQuestions, correctCount), true
}
