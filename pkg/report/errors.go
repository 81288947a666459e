package report

import "fmt"

// ExtractionError indicates the report as a whole could not be used, most
// commonly because the connection marker is absent (device unreachable).
// The pass must be abandoned with no catalog writes.
type ExtractionError struct {
	Reason string
}

func (e *ExtractionError) Error() string {
	return "report extraction failed: " + e.Reason
}

// DecodeError indicates a single section's payload was not well-formed
// under its expected shape. A DecodeError is isolated: other sections
// decode independently, and downstream stages treat the section as absent
// unless it is mandatory for the pass.
type DecodeError struct {
	Section string
	Cause   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode section %q: %v", e.Section, e.Cause)
}

func (e *DecodeError) Unwrap() error {
	return e.Cause
}
