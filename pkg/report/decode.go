package report

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Tree is a loosely typed decoded payload: nested maps, arrays, and
// scalars.
type Tree = map[string]any

// DecodeResult holds the per-section outcome of decoding an extracted
// report. Values carries decoded trees (map or array) for structured
// sections and trimmed strings for scalar ones; Errors carries the failure
// for any section that did not decode. The two never share a key.
type DecodeResult struct {
	Values map[string]any
	Errors map[string]*DecodeError
}

// Decode parses every extracted section independently. A malformed section
// lands in Errors and must not prevent the others from decoding; callers
// decide which sections are mandatory for their pass.
func Decode(sections Sections) *DecodeResult {
	res := &DecodeResult{
		Values: make(map[string]any, len(sections)),
		Errors: make(map[string]*DecodeError),
	}
	for name, payload := range sections {
		trimmed := strings.TrimSpace(payload)
		if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
			value, err := decodeFragment(trimmed)
			if err != nil {
				res.Errors[name] = &DecodeError{Section: name, Cause: err}
				continue
			}
			res.Values[name] = value
			continue
		}
		res.Values[name] = trimmed
	}
	return res
}

// decodeFragment parses a brace-delimited JSON-shaped fragment. Fragments
// vary across CLI versions; running them through jsonc first tolerates
// trailing commas and comments without loosening the final decode.
func decodeFragment(fragment string) (any, error) {
	clean := jsonc.ToJSON([]byte(fragment))
	var value any
	if err := json.Unmarshal(clean, &value); err != nil {
		return nil, err
	}
	return value, nil
}

// Map returns the named section decoded as a tree.
func (r *DecodeResult) Map(section string) (Tree, bool) {
	t, ok := r.Values[section].(map[string]any)
	return t, ok
}

// List returns the named section decoded as an array.
func (r *DecodeResult) List(section string) ([]any, bool) {
	l, ok := r.Values[section].([]any)
	return l, ok
}

// String returns the named scalar section.
func (r *DecodeResult) String(section string) (string, bool) {
	s, ok := r.Values[section].(string)
	return s, ok
}

// Err returns the decode failure for the named section, if any.
func (r *DecodeResult) Err(section string) error {
	if e, ok := r.Errors[section]; ok {
		return e
	}
	return nil
}

// ConfigExport is the decoded YAML full-configuration export, the canonical
// structured input path when available.
type ConfigExport struct {
	Owner        string         `yaml:"owner"`
	OwnerShort   string         `yaml:"owner_short"`
	ChannelURL   string         `yaml:"channel_url"`
	Nodes        map[string]any `yaml:"nodes"`
	Channels     map[string]any `yaml:"channels"`
	Config       map[string]any `yaml:"config"`
	ModuleConfig map[string]any `yaml:"module_config"`
}

// DecodeConfigExport parses a device configuration export document.
func DecodeConfigExport(data []byte) (*ConfigExport, error) {
	var export ConfigExport
	if err := yaml.Unmarshal(data, &export); err != nil {
		return nil, &DecodeError{Section: "config export", Cause: err}
	}
	if export.Owner == "" && export.OwnerShort == "" && len(export.Nodes) == 0 {
		return nil, &DecodeError{
			Section: "config export",
			Cause:   fmt.Errorf("document has none of owner, owner_short, nodes"),
		}
	}
	return &export, nil
}
