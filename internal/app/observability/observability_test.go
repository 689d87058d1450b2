package observability

import "testing"

func TestNormalizedPath(t *testing.T) {
	got := normalizedPath("/api/v1/applications/123/rows/9")
	want := "/api/v1/applications/{id}/rows/{id}"
	if got != want {
		t.Fatalf("normalizedPath mismatch got=%s want=%s", got, want)
	}
}

func TestExtractApplicationID(t *testing.T) {
	if id := extractApplicationID("/api/v1/applications/456/export/winsteps"); id != 456 {
		t.Fatalf("expected 456, got %d", id)
	}
	if id := extractApplicationID("/api/v1/exams/1"); id != 0 {
		t.Fatalf("expected 0 for non-application path, got %d", id)
	}
}
