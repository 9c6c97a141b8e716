package cards

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Side is a face of a physical card.
type Side string

const (
	Front Side = "front"
	Back  Side = "back"
)

// Sides lists both faces in display order.
var Sides = []Side{Front, Back}

// ParseSide accepts "front" or "back" in any case.
func ParseSide(s string) (Side, error) {
	switch Side(strings.ToLower(strings.TrimSpace(s))) {
	case Front:
		return Front, nil
	case Back:
		return Back, nil
	}
	return "", fmt.Errorf("unknown card side %q", s)
}

func (s Side) String() string { return string(s) }

// ImageIDs names the remote images of a card's two faces.
type ImageIDs struct {
	Front string `json:"front"`
	Back  string `json:"back"`
}

// For returns the image identifier of the given side.
func (ids ImageIDs) For(side Side) string {
	if side == Back {
		return ids.Back
	}
	return ids.Front
}

// Record is a stereo card as described by an import file.
type Record struct {
	Identifier string   `json:"identifier"`
	Titles     []string `json:"titles"`
	Authors    []string `json:"authors"`
	Subjects   []string `json:"subjects"`
	Dates      []string `json:"dates"`
	ImageIDs   ImageIDs `json:"image_ids"`
}

// PrimaryTitle returns the first non-empty title.
func (r Record) PrimaryTitle() string {
	for _, t := range r.Titles {
		if t = strings.TrimSpace(t); t != "" {
			return t
		}
	}
	return ""
}

// DecodeRecord parses one record file. The identifier and the images object
// are required; the metadata lists may be empty.
func DecodeRecord(data []byte) (Record, error) {
	var raw struct {
		Record
		ImageIDs *ImageIDs `json:"image_ids"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Record{}, fmt.Errorf("failed to parse record: %w", err)
	}
	rec := raw.Record
	rec.Identifier = strings.TrimSpace(rec.Identifier)
	if rec.Identifier == "" {
		return Record{}, fmt.Errorf("record is missing identifier")
	}
	if raw.ImageIDs == nil {
		return Record{}, fmt.Errorf("record %s is missing image_ids", rec.Identifier)
	}
	rec.ImageIDs = *raw.ImageIDs
	return rec, nil
}
