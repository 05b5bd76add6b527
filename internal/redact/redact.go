// Package redact scrubs PII out of arbitrary JSON-shaped values before they
// reach telemetry storage. Traversal is depth-first and bottom-up: every
// leaf string is scrubbed independently, and the tree is rebuilt with the
// same shape (same keys, same array order, same types) it started with.
package redact

import (
	"fmt"
	"sort"
	"unicode/utf8"

	"github.com/wisbric/adlcgate/internal/telemetry"
)

// Span is a half-open byte range [Start, End) in a string that a Detector
// has identified as PII of the given entity type.
type Span struct {
	Start, End int
	EntityType string
}

// Detector finds PII spans in a string. Production PII detection (NER
// models, provider-specific classifiers) is intentionally out of scope for
// this repository; DefaultDetector is a regex-based stand-in that callers
// may replace with a more sophisticated implementation.
type Detector interface {
	Detect(s string) []Span
}

// Scrubber walks a decoded-JSON value (nil, bool, float64, string, []any,
// or map[string]any — i.e. encoding/json's unmarshal-into-any shape) and
// returns a copy with every string leaf passed through a Detector.
type Scrubber struct {
	detector Detector
}

// New creates a Scrubber using the given Detector.
func New(detector Detector) *Scrubber {
	return &Scrubber{detector: detector}
}

// Scrub returns a redacted copy of v. It returns an error if any string leaf
// is not valid UTF-8, or if v contains a type outside the decoded-JSON
// value shape.
func (s *Scrubber) Scrub(v any) (any, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case bool, float64:
		return val, nil
	case string:
		return s.scrubString(val)
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			scrubbed, err := s.Scrub(elem)
			if err != nil {
				return nil, err
			}
			out[i] = scrubbed
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			scrubbed, err := s.Scrub(elem)
			if err != nil {
				return nil, err
			}
			out[k] = scrubbed
		}
		return out, nil
	default:
		return nil, fmt.Errorf("redact: unsupported value type %T", v)
	}
}

func (s *Scrubber) scrubString(str string) (string, error) {
	if !utf8.ValidString(str) {
		return "", fmt.Errorf("redact: leaf is not valid UTF-8")
	}

	spans := s.detector.Detect(str)
	if len(spans) == 0 {
		return str, nil
	}

	accepted := resolveOverlaps(spans)

	out := str
	for i := len(accepted) - 1; i >= 0; i-- {
		sp := accepted[i]
		telemetry.RedactionSpansTotal.WithLabelValues(sp.EntityType).Inc()
		out = out[:sp.Start] + "<REDACTED " + sp.EntityType + ">" + out[sp.End:]
	}
	return out, nil
}

// resolveOverlaps sorts spans by start position and, on overlap, keeps the
// longer span; ties keep whichever span starts earlier.
func resolveOverlaps(spans []Span) []Span {
	sorted := make([]Span, len(spans))
	copy(sorted, spans)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Start != sorted[j].Start {
			return sorted[i].Start < sorted[j].Start
		}
		return (sorted[i].End - sorted[i].Start) > (sorted[j].End - sorted[j].Start)
	})

	accepted := make([]Span, 0, len(sorted))
	for _, sp := range sorted {
		if len(accepted) == 0 {
			accepted = append(accepted, sp)
			continue
		}
		last := &accepted[len(accepted)-1]
		if sp.Start < last.End {
			if (sp.End - sp.Start) > (last.End - last.Start) {
				*last = sp
			}
			continue
		}
		accepted = append(accepted, sp)
	}
	return accepted
}
