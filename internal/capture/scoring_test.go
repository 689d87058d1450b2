package capture

import "testing"

func TestComputeItemScore_Dichotomous(t *testing.T) {
	tests := []struct {
		name    string
		total   int
		correct int
		want    int
	}{
		{name: "all correct single", total: 1, correct: 1, want: 1},
		{name: "all correct multi", total: 3, correct: 3, want: 1},
		{name: "one wrong", total: 3, correct: 2, want: 0},
		{name: "none correct", total: 2, correct: 0, want: 0},
		{name: "unanswered counts as wrong", total: 1, correct: 0, want: 0},
		{name: "no subquestions scores zero", total: 0, correct: 0, want: 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := ComputeItemScore(ScoringDichotomous, tc.total, tc.correct)
			if got != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, got)
			}
		})
	}
}

func TestComputeItemScore_Polytomous(t *testing.T) {
	tests := []struct {
		name    string
		total   int
		correct int
		want    int
	}{
		{name: "none correct", total: 3, correct: 0, want: 0},
		{name: "all correct", total: 3, correct: 3, want: 2},
		{name: "one of three partial", total: 3, correct: 1, want: 1},
		{name: "two of three partial", total: 3, correct: 2, want: 1},
		{name: "single subquestion correct", total: 1, correct: 1, want: 2},
		{name: "single subquestion wrong", total: 1, correct: 0, want: 0},
		{name: "no subquestions scores zero", total: 0, correct: 0, want: 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := ComputeItemScore(ScoringPolytomous, tc.total, tc.correct)
			if got != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, got)
			}
		})
	}
}

func TestComputeItemScore_ClampsCorrectCount(t *testing.T) {
	if got := ComputeItemScore(ScoringDichotomous, 2, 5); got != 1 {
		t.Fatalf("expected clamp to total, got %d", got)
	}
	if got := ComputeItemScore(ScoringPolytomous, 2, -1); got != 0 {
		t.Fatalf("expected clamp to zero, got %d", got)
	}
}

func TestValidScore(t *testing.T) {
	tests := []struct {
		scoringType string
		score       int
		want        bool
	}{
		{ScoringDichotomous, 0, true},
		{ScoringDichotomous, 1, true},
		{ScoringDichotomous, 2, false},
		{ScoringDichotomous, -1, false},
		{ScoringPolytomous, 0, true},
		{ScoringPolytomous, 1, true},
		{ScoringPolytomous, 2, true},
		{ScoringPolytomous, 3, false},
		{ScoringPolytomous, -1, false},
	}

	for _, tc := range tests {
		if got := ValidScore(tc.scoringType, tc.score); got != tc.want {
			t.Fatalf("ValidScore(%s, %d) = %v, want %v", tc.scoringType, tc.score, got, tc.want)
		}
	}
}

func TestResolveScore_DirectWins(t *testing.T) {
	direct := 2
	got, ok := ResolveScore(ScoringPolytomous, &direct, 3, 0)
	if !ok || got != 2 {
		t.Fatalf("expected direct score 2, got %d ok=%v", got, ok)
	}

	// Direct score wins even when responses would derive differently.
	direct = 0
	got, ok = ResolveScore(ScoringDichotomous, &direct, 2, 2)
	if !ok || got != 0 {
		t.Fatalf("expected direct score 0, got %d ok=%v", got, ok)
	}
}

func TestResolveScore_DerivedFallback(t *testing.T) {
	got, ok := ResolveScore(ScoringPolytomous, nil, 3, 1)
	if !ok || got != 1 {
		t.Fatalf("expected derived partial score 1, got %d ok=%v", got, ok)
	}
}

func TestResolveScore_NoSubQuestionsNoDirect(t *testing.T) {
	if _, ok := ResolveScore(ScoringDichotomous, nil, 0, 0); ok {
		t.Fatalf("expected ok=false for item without subquestions")
	}

	direct := 1
	got, ok := ResolveScore(ScoringDichotomous, &direct, 0, 0)
	if !ok || got != 1 {
		t.Fatalf("expected direct score to resolve despite missing subquestions, got %d ok=%v", got, ok)
	}
}
