package meshdata

import "fmt"

// NormalizationError reports a single record that could not be normalized
// because a mandatory field was absent or malformed. One bad record never
// aborts the batch; callers collect these alongside the successful records.
type NormalizationError struct {
	Record string // natural identifier, e.g. node ID or channel label
	Field  string
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("record %q: mandatory field %q missing or invalid", e.Record, e.Field)
}
