package redact

import (
	"reflect"
	"testing"
)

func TestScrubStringRedactsEmail(t *testing.T) {
	s := New(DefaultDetector{})
	got, err := s.Scrub("contact me at jane@example.com please")
	if err != nil {
		t.Fatalf("Scrub: %v", err)
	}
	want := "contact me at <REDACTED EMAIL> please"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestScrubPreservesShape(t *testing.T) {
	s := New(DefaultDetector{})
	in := map[string]any{
		"name": "no pii here",
		"nested": map[string]any{
			"email": "user@example.com",
			"list":  []any{"jane@example.com", "plain text", float64(42), nil, true},
		},
	}

	got, err := s.Scrub(in)
	if err != nil {
		t.Fatalf("Scrub: %v", err)
	}

	out, ok := got.(map[string]any)
	if !ok {
		t.Fatalf("expected map[string]any, got %T", got)
	}
	if out["name"] != "no pii here" {
		t.Errorf("expected unrelated string to pass through unchanged")
	}
	nested := out["nested"].(map[string]any)
	if nested["email"] != "<REDACTED EMAIL>" {
		t.Errorf("expected nested email to be redacted, got %v", nested["email"])
	}
	list := nested["list"].([]any)
	if len(list) != 5 {
		t.Fatalf("expected array shape preserved, got %d elements", len(list))
	}
	if list[0] != "<REDACTED EMAIL>" || list[1] != "plain text" || list[2] != float64(42) || list[3] != nil || list[4] != true {
		t.Errorf("array elements not preserved correctly: %#v", list)
	}
}

func TestScrubIsIdempotent(t *testing.T) {
	s := New(DefaultDetector{})
	first, err := s.Scrub("email jane@example.com and phone 415-555-0132")
	if err != nil {
		t.Fatalf("Scrub (first pass): %v", err)
	}
	second, err := s.Scrub(first)
	if err != nil {
		t.Fatalf("Scrub (second pass): %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("expected idempotence: first=%v second=%v", first, second)
	}
}

func TestScrubRejectsInvalidUTF8(t *testing.T) {
	s := New(DefaultDetector{})
	if _, err := s.Scrub(string([]byte{0xff, 0xfe, 0xfd})); err == nil {
		t.Fatal("expected an error for invalid UTF-8 input")
	}
}

func TestScrubRejectsUnsupportedType(t *testing.T) {
	s := New(DefaultDetector{})
	if _, err := s.Scrub(42); err == nil {
		t.Fatal("expected an error for a bare int (not part of the decoded-JSON value shape)")
	}
}

func TestResolveOverlapsKeepsLongestSpan(t *testing.T) {
	spans := []Span{
		{Start: 0, End: 5, EntityType: "SHORT"},
		{Start: 0, End: 10, EntityType: "LONG"},
	}
	got := resolveOverlaps(spans)
	if len(got) != 1 || got[0].EntityType != "LONG" {
		t.Fatalf("expected the longer overlapping span to win, got %#v", got)
	}
}

func TestResolveOverlapsOrdersDisjointSpansByStart(t *testing.T) {
	spans := []Span{
		{Start: 5, End: 10, EntityType: "SECOND"},
		{Start: 0, End: 5, EntityType: "FIRST"},
	}
	got := resolveOverlaps(spans)
	if len(got) != 2 {
		t.Fatalf("expected two non-overlapping spans to both survive, got %#v", got)
	}
	if got[0].EntityType != "FIRST" {
		t.Fatalf("expected spans sorted by start position, got %#v", got)
	}
}
