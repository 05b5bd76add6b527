package redact

import "regexp"

var (
	emailPattern  = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phonePattern  = regexp.MustCompile(`\+?\d{1,3}?[-.\s]?\(?\d{3}\)?[-.\s]\d{3,4}[-.\s]?\d{4}\b`)
	ssnPattern    = regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)
	personPattern = regexp.MustCompile(`\b[A-Z][a-z]+(?: [A-Z][a-z]+)+\b`)
)

// DefaultDetector finds email addresses, US-shaped phone numbers, US-shaped
// social security numbers, and capitalized multi-word name candidates via
// regular expression. It is deliberately simple: the spec's own scope
// excludes building a production-grade PII/NER classifier, and
// DefaultDetector exists only so Scrubber has a working default. Swap in a
// custom Detector for anything more sophisticated.
type DefaultDetector struct{}

// Detect implements Detector.
func (DefaultDetector) Detect(s string) []Span {
	var spans []Span
	for _, m := range emailPattern.FindAllStringIndex(s, -1) {
		spans = append(spans, Span{Start: m[0], End: m[1], EntityType: "EMAIL"})
	}
	for _, m := range phonePattern.FindAllStringIndex(s, -1) {
		spans = append(spans, Span{Start: m[0], End: m[1], EntityType: "PHONE_NUMBER"})
	}
	for _, m := range ssnPattern.FindAllStringIndex(s, -1) {
		spans = append(spans, Span{Start: m[0], End: m[1], EntityType: "SSN"})
	}
	for _, m := range personPattern.FindAllStringIndex(s, -1) {
		spans = append(spans, Span{Start: m[0], End: m[1], EntityType: "PERSON"})
	}
	return spans
}
