// Package report turns the semi-structured device report text into loosely
// typed trees. Extraction isolates labeled section payloads; decoding
// parses each payload independently so one malformed section never blocks
// the others.
package report

import "strings"

// ConnectionSentinel is the marker the CLI prints once it has reached the
// radio. A report without it means the device was unreachable and nothing
// in the text can be trusted.
const ConnectionSentinel = "Connected to radio"

// Section names used as keys in extraction and decode results.
const (
	SectionOwner             = "owner"
	SectionMyInfo            = "myInfo"
	SectionMetadata          = "metadata"
	SectionNodes             = "nodes"
	SectionPreferences       = "preferences"
	SectionModulePreferences = "modulePreferences"
	SectionChannels          = "channels"
	SectionChannelURL        = "channelURL"
)

// sectionLabels maps report labels to section names. Labels are matched
// anchored at the start of a line.
var sectionLabels = []struct {
	label string
	name  string
}{
	{"Owner:", SectionOwner},
	{"My info:", SectionMyInfo},
	{"Metadata:", SectionMetadata},
	{"Nodes in mesh:", SectionNodes},
	{"Preferences:", SectionPreferences},
	{"Module preferences:", SectionModulePreferences},
	{"Channels:", SectionChannels},
	{"Primary channel URL:", SectionChannelURL},
}

// Sections maps section name to the exact payload substring captured for it.
type Sections map[string]string

// ExtractSections pulls every recognized labeled section out of raw report
// text. Payloads that open with a brace or bracket are captured through the
// end of the balanced region (they span lines); anything else is captured
// as the remainder of the label's line. Pure function, no side effects.
func ExtractSections(text string) (Sections, error) {
	if !strings.Contains(text, ConnectionSentinel) {
		return nil, &ExtractionError{Reason: "connection marker absent"}
	}

	out := Sections{}
	for _, sl := range sectionLabels {
		payload, ok := extractLabeled(text, sl.label)
		if ok {
			out[sl.name] = payload
		}
	}
	return out, nil
}

// extractLabeled finds label anchored at a line start and captures its
// payload.
func extractLabeled(text, label string) (string, bool) {
	idx := indexAtLineStart(text, label)
	if idx < 0 {
		return "", false
	}
	rest := text[idx+len(label):]
	trimmed := strings.TrimLeft(rest, " \t\r\n")
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
		if body, ok := scanBalanced(trimmed); ok {
			return body, true
		}
		return "", false
	}
	// Scalar section: remainder of the label's line.
	line := rest
	if nl := strings.IndexByte(line, '\n'); nl >= 0 {
		line = line[:nl]
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return "", false
	}
	return line, true
}

// indexAtLineStart returns the index of the first occurrence of label that
// begins a line, or -1.
func indexAtLineStart(text, label string) int {
	offset := 0
	for {
		idx := strings.Index(text[offset:], label)
		if idx < 0 {
			return -1
		}
		abs := offset + idx
		if abs == 0 || text[abs-1] == '\n' {
			return abs
		}
		offset = abs + len(label)
	}
}

// scanBalanced captures a brace- or bracket-delimited region from the start
// of s through its matching close, tracking string literals so braces
// inside quoted values do not affect the depth.
func scanBalanced(s string) (string, bool) {
	var open, close byte
	switch s[0] {
	case '{':
		open, close = '{', '}'
	case '[':
		open, close = '[', ']'
	default:
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return s[:i+1], true
			}
		}
	}
	return "", false
}
