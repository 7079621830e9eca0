// Package model defines the entities of a moderation run: the submitted
// listing, per-image evaluations, the reconciled attribute set, and the
// terminal moderation decision.
package model

import "time"

// ImageRef is a single submitted photo. Index 0 is the cover image.
type ImageRef struct {
	Index     int    `json:"index"`
	Data      []byte `json:"-"`
	MediaType string `json:"media_type"` // e.g. "image/jpeg"
	SourceURL string `json:"source_url,omitempty"`
}

// DeclaredAttributes is the user-declared attribute set. All fields pass
// through Normalize at ingestion, so a present value is never a
// placeholder.
type DeclaredAttributes struct {
	Brand        Optional[string]
	Model        Optional[string]
	Trim         Optional[string]
	Year         Optional[int]
	Color        Optional[string]
	VehicleType  Optional[string]
	Transmission Optional[string]
	Fuel         Optional[string]
	Engine       Optional[string]
}

// ListingSubmission is one moderation request: an ordered photo set plus
// the submitter's declared attributes. Immutable once constructed.
type ListingSubmission struct {
	ListingID   string
	SubmitterID string
	Images      []ImageRef
	Declared    DeclaredAttributes
	Title       string
	Description string
	CreatedAt   time.Time
}

// FreeText joins the seller's prose fields for structured interpretation.
func (s ListingSubmission) FreeText() string {
	if s.Title == "" {
		return s.Description
	}
	if s.Description == "" {
		return s.Title
	}
	return s.Title + "\n" + s.Description
}

// Cover returns the cover image. Callers must have checked that the
// submission has at least one image.
func (s ListingSubmission) Cover() ImageRef {
	return s.Images[0]
}

// Gallery returns the non-cover images, capped at limit (the provider
// analyzes at most a handful of gallery shots per run).
func (s ListingSubmission) Gallery(limit int) []ImageRef {
	if len(s.Images) <= 1 {
		return nil
	}
	rest := s.Images[1:]
	if limit > 0 && len(rest) > limit {
		rest = rest[:limit]
	}
	return rest
}
