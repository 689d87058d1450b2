package exam

import (
	"errors"
	"testing"
)

func TestNextOptionLabel(t *testing.T) {
	cases := []struct {
		existing int
		want     string
		wantErr  error
	}{
		{existing: 0, want: "a"},
		{existing: 1, want: "b"},
		{existing: 5, want: "f"},
		{existing: 6, wantErr: ErrOptionLimit},
		{existing: -1, wantErr: ErrOptionLimit},
	}
	for _, tc := range cases {
		got, err := NextOptionLabel(tc.existing)
		if tc.wantErr != nil {
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("existing=%d: expected %v, got %v", tc.existing, tc.wantErr, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("existing=%d: unexpected error %v", tc.existing, err)
		}
		if got != tc.want {
			t.Fatalf("existing=%d: expected %q, got %q", tc.existing, tc.want, got)
		}
	}
}

func TestValidScoringType(t *testing.T) {
	for _, ok := range []string{"D", "P"} {
		if !validScoringType(ok) {
			t.Fatalf("expected %q to be valid", ok)
		}
	}
	for _, bad := range []string{"", "d", "p", "X", "DP"} {
		if validScoringType(bad) {
			t.Fatalf("expected %q to be rejected", bad)
		}
	}
}

func TestValidQuestionType(t *testing.T) {
	for _, ok := range []string{"closed", "open"} {
		if !validQuestionType(ok) {
			t.Fatalf("expected %q to be valid", ok)
		}
	}
	for _, bad := range []string{"", "Closed", "free", "multiple"} {
		if validQuestionType(bad) {
			t.Fatalf("expected %q to be rejected", bad)
		}
	}
}
