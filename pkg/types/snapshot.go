package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Snapshot is the full upstream representation of one listing. The upstream
// source re-sends complete snapshots every cycle, never diffs.
type Snapshot struct {
	MLS                string     `json:"MLS"`
	PropertyType       string     `json:"PropertyType"`
	ListPrice          FlexString `json:"ListPrice"`
	TimestampSQL       string     `json:"TimestampSql,omitempty"`
	Street             string     `json:"Street,omitempty"`
	StreetName         string     `json:"StreetName,omitempty"`
	StreetAbbreviation string     `json:"StreetAbbreviation,omitempty"`
	Area               string     `json:"Area,omitempty"`
	Municipality       string     `json:"Municipality,omitempty"`
	Province           string     `json:"Province,omitempty"`
	PostalCode         string     `json:"PostalCode,omitempty"`
	Bedrooms           FlexString `json:"Bedrooms,omitempty"`
	Washrooms          FlexString `json:"Washrooms,omitempty"`
	Description        string     `json:"Description,omitempty"`

	// Images is the list of image names delivered with this snapshot. An empty
	// list means no images were supplied.
	Images []string `json:"Images,omitempty"`

	// Attributes carries any remaining upstream fields verbatim.
	Attributes map[string]any `json:"Attributes,omitempty"`
}

// HasImages reports whether the snapshot supplied image names.
func (s *Snapshot) HasImages() bool {
	return len(s.Images) > 0
}

// FlexString accepts a JSON string or number and keeps its literal text.
// Upstream feeds are inconsistent about quoting numeric fields.
type FlexString string

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*f = ""
		return nil
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("expected string or number, got %s", data)
		}
		*f = FlexString(n.String())
		return nil
	}
}

// String returns the trimmed literal text.
func (f FlexString) String() string {
	return strings.TrimSpace(string(f))
}

// DecodeSnapshot decodes a single snapshot. When strict is set, unknown
// top-level keys are an error.
func DecodeSnapshot(data []byte, strict bool) (*Snapshot, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	if strict {
		dec.DisallowUnknownFields()
	}

	var s Snapshot
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	return &s, nil
}

// DecodeSnapshots decodes either a JSON array of snapshots or a single
// snapshot object.
func DecodeSnapshots(data []byte, strict bool) ([]*Snapshot, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}
	if trimmed[0] != '[' {
		s, err := DecodeSnapshot(trimmed, strict)
		if err != nil {
			return nil, err
		}
		return []*Snapshot{s}, nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, fmt.Errorf("decoding snapshot list: %w", err)
	}

	out := make([]*Snapshot, 0, len(raw))
	for i, msg := range raw {
		s, err := DecodeSnapshot(msg, strict)
		if err != nil {
			return nil, fmt.Errorf("snapshot %d: %w", i, err)
		}
		out = append(out, s)
	}
	return out, nil
}
