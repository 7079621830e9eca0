package main

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/carmatch/moderation-cli/internal/model"
)

// imageRequest is one submitted photo: inline base64 for the webhook,
// or a local path for CLI runs.
type imageRequest struct {
	Data      string `json:"data,omitempty"`
	Path      string `json:"path,omitempty"`
	MediaType string `json:"media_type,omitempty"`
	SourceURL string `json:"source_url,omitempty"`
}

// declaredRequest carries the seller's declared attributes as raw
// strings; placeholder values are collapsed during normalization.
type declaredRequest struct {
	Brand        string `json:"brand,omitempty"`
	Model        string `json:"model,omitempty"`
	Trim         string `json:"trim,omitempty"`
	Year         string `json:"year,omitempty"`
	Color        string `json:"color,omitempty"`
	VehicleType  string `json:"vehicle_type,omitempty"`
	Transmission string `json:"transmission,omitempty"`
	Fuel         string `json:"fuel,omitempty"`
	Engine       string `json:"engine,omitempty"`
}

// submissionRequest is the moderation request wire format.
type submissionRequest struct {
	ListingID   string          `json:"listing_id"`
	SubmitterID string          `json:"submitter_id"`
	Title       string          `json:"title,omitempty"`
	Description string          `json:"description,omitempty"`
	Attributes  declaredRequest `json:"attributes"`
	Images      []imageRequest  `json:"images"`
}

// toSubmission validates and normalizes a request into a submission.
func (r submissionRequest) toSubmission() (model.ListingSubmission, error) {
	if r.ListingID == "" {
		return model.ListingSubmission{}, eris.New("request: listing_id is required")
	}
	if r.SubmitterID == "" {
		return model.ListingSubmission{}, eris.New("request: submitter_id is required")
	}

	images := make([]model.ImageRef, 0, len(r.Images))
	for i, img := range r.Images {
		ref, err := img.toRef(i)
		if err != nil {
			return model.ListingSubmission{}, err
		}
		images = append(images, ref)
	}

	return model.ListingSubmission{
		ListingID:   r.ListingID,
		SubmitterID: r.SubmitterID,
		Title:       strings.TrimSpace(r.Title),
		Description: strings.TrimSpace(r.Description),
		Images:      images,
		Declared: model.DeclaredAttributes{
			Brand:        model.Normalize(r.Attributes.Brand),
			Model:        model.Normalize(r.Attributes.Model),
			Trim:         model.Normalize(r.Attributes.Trim),
			Year:         model.NormalizeYear(r.Attributes.Year),
			Color:        model.Normalize(r.Attributes.Color),
			VehicleType:  model.Normalize(r.Attributes.VehicleType),
			Transmission: model.Normalize(r.Attributes.Transmission),
			Fuel:         model.Normalize(r.Attributes.Fuel),
			Engine:       model.Normalize(r.Attributes.Engine),
		},
		CreatedAt: time.Now().UTC(),
	}, nil
}

func (img imageRequest) toRef(index int) (model.ImageRef, error) {
	ref := model.ImageRef{
		Index:     index,
		MediaType: img.MediaType,
		SourceURL: img.SourceURL,
	}

	switch {
	case img.Data != "":
		data, err := base64.StdEncoding.DecodeString(img.Data)
		if err != nil {
			return model.ImageRef{}, eris.Wrapf(err, "request: image %d: decode base64", index)
		}
		ref.Data = data
	case img.Path != "":
		data, err := os.ReadFile(img.Path)
		if err != nil {
			return model.ImageRef{}, eris.Wrapf(err, "request: image %d: read file", index)
		}
		ref.Data = data
		if ref.MediaType == "" {
			ref.MediaType = mediaTypeForPath(img.Path)
		}
	default:
		return model.ImageRef{}, eris.Errorf("request: image %d: no data or path", index)
	}

	if ref.MediaType == "" {
		ref.MediaType = "image/jpeg"
	}
	return ref, nil
}

func mediaTypeForPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	default:
		return "image/jpeg"
	}
}
