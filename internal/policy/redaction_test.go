package policy

import (
	"strings"
	"testing"
)

func TestRedactPII(t *testing.T) {
	input := "Email me at sam@example.com or +1 (555) 123-9876 and use 4242 4242 4242 4242."
	out, changed := RedactPII(input)
	if !changed {
		t.Fatalf("changed = false, want true")
	}
	for _, marker := range []string{"[REDACTED_EMAIL]", "[REDACTED_PHONE]", "[REDACTED_CARD]"} {
		if !strings.Contains(out, marker) {
			t.Fatalf("output missing marker %q: %q", marker, out)
		}
	}
}

func TestRedactPIIMasksAPIKeys(t *testing.T) {
	out, changed := RedactPII("my key is sk-proj-abcdefghijklmnopqrstuvwx please")
	if !changed || !strings.Contains(out, "[REDACTED_KEY]") || strings.Contains(out, "abcdefghijkl") {
		t.Fatalf("api key not redacted: %q", out)
	}
}

func TestPreviewTruncatesAndFlattens(t *testing.T) {
	got := Preview("line one\n\tline   two with more words", 12)
	if got != "line one lin…" {
		t.Fatalf("Preview() = %q", got)
	}
	if Preview("short", 0) != "short" {
		t.Fatalf("Preview() with no limit should return input")
	}
}

func TestPreviewRedactsBeforeTruncating(t *testing.T) {
	got := Preview("reach me at sam@example.com\nkey sk-proj-abcdefghijklmnopqrstuvwx", 96)
	if got != "reach me at [REDACTED_EMAIL] key [REDACTED_KEY]" {
		t.Fatalf("Preview() = %q", got)
	}
}
