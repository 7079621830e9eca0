package vision

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/carmatch/moderation-cli/internal/model"
	"github.com/carmatch/moderation-cli/internal/resilience"
)

// coverAnswer mirrors the JSON shape the cover prompt asks for. Attribute
// values arrive as json.RawMessage because the model sometimes emits
// numbers where strings were requested (notably the year).
type coverAnswer struct {
	IsValid    *bool                      `json:"isValid"`
	Reason     string                     `json:"reason"`
	Confidence float64                    `json:"confidence"`
	Details    map[string]json.RawMessage `json:"details"`
}

type extractAnswer struct {
	Confidence float64                    `json:"confidence"`
	Details    map[string]json.RawMessage `json:"details"`
}

// parseExtractAnswer decodes a text extraction. Same transient-on-
// malformed rule as cover answers.
func parseExtractAnswer(text string) (model.ExtractedAttributes, float64, error) {
	var answer extractAnswer
	if err := json.Unmarshal([]byte(cleanJSON(text)), &answer); err != nil {
		return model.ExtractedAttributes{}, 0, resilience.NewTransientError(
			eris.Wrap(err, "vision: parse extract answer"), 0)
	}
	return parseDetails(answer.Details), answer.Confidence, nil
}

type galleryAnswer struct {
	Results []galleryItem `json:"results"`
}

type galleryItem struct {
	Index   json.RawMessage `json:"index"`
	IsValid *bool           `json:"isValid"`
	Reason  string          `json:"reason"`
}

// cleanJSON strips markdown fences and trims to the outermost JSON object.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}

// parseCoverAnswer decodes a cover evaluation. A malformed answer is a
// transient failure: a fresh call usually produces valid JSON.
func parseCoverAnswer(text string, tier model.Tier) (model.ImageEvaluation, error) {
	var answer coverAnswer
	if err := json.Unmarshal([]byte(cleanJSON(text)), &answer); err != nil {
		return model.ImageEvaluation{}, resilience.NewTransientError(
			eris.Wrap(err, "vision: parse cover answer"), 0)
	}
	if answer.IsValid == nil {
		return model.ImageEvaluation{}, resilience.NewTransientError(
			eris.New("vision: cover answer missing isValid"), 0)
	}

	eval := model.ImageEvaluation{
		Index:      0,
		Valid:      *answer.IsValid,
		Reason:     strings.TrimSpace(answer.Reason),
		Confidence: answer.Confidence,
		Tier:       tier,
		Extracted:  parseDetails(answer.Details),
	}
	if eval.Valid {
		eval.Reason = ""
	} else if eval.Reason == "" {
		eval.Reason = "photo rejected by moderation model"
	}
	return eval, nil
}

// parseGalleryAnswer decodes per-photo consistency verdicts. The model
// numbers photos starting at 1; indexBase maps entry i back to the
// submission-wide image index.
func parseGalleryAnswer(text string, count, indexBase int, tier model.Tier) ([]model.ImageEvaluation, error) {
	var answer galleryAnswer
	if err := json.Unmarshal([]byte(cleanJSON(text)), &answer); err != nil {
		return nil, resilience.NewTransientError(
			eris.Wrap(err, "vision: parse gallery answer"), 0)
	}
	if len(answer.Results) == 0 {
		return nil, resilience.NewTransientError(
			eris.New("vision: gallery answer has no results"), 0)
	}

	evals := make([]model.ImageEvaluation, 0, count)
	seen := make(map[int]bool, count)
	for pos, item := range answer.Results {
		// Positions are 1-based in the prompt; fall back to list order
		// when the model returns a junk index.
		n, ok := looseInt(item.Index)
		if !ok || n < 1 || n > count {
			n = pos + 1
		}
		if seen[n] {
			continue
		}
		seen[n] = true

		eval := model.ImageEvaluation{
			Index: indexBase + n - 1,
			Valid: item.IsValid != nil && *item.IsValid,
			Tier:  tier,
		}
		if !eval.Valid {
			eval.Reason = strings.TrimSpace(item.Reason)
			if eval.Reason == "" {
				eval.Reason = "photo inconsistent with the listed vehicle"
			}
		}
		evals = append(evals, eval)
	}
	return evals, nil
}

// parseDetails converts the raw details map into extracted attributes,
// tolerating numbers, strings, and nulls in every position.
func parseDetails(raw map[string]json.RawMessage) model.ExtractedAttributes {
	var out model.ExtractedAttributes
	if raw == nil {
		return out
	}

	out.Brand = model.Normalize(looseString(raw["brand"]))
	out.Model = model.Normalize(looseString(raw["model"]))
	out.Trim = model.Normalize(looseString(raw["trim"]))
	out.Year = model.NormalizeYear(looseString(raw["year"]))
	out.Color = model.Normalize(looseString(raw["color"]))
	out.VehicleType = model.Normalize(looseString(raw["vehicleType"]))
	out.Transmission = model.Normalize(looseString(raw["transmission"]))
	out.Fuel = model.Normalize(looseString(raw["fuel"]))
	out.Engine = model.Normalize(looseString(raw["engine"]))
	out.Condition = model.Normalize(looseString(raw["condition"]))

	var features []string
	if f, ok := raw["features"]; ok {
		_ = json.Unmarshal(f, &features)
	}
	for _, f := range features {
		if v, ok := model.Normalize(f).Value(); ok {
			out.Features = append(out.Features, v)
		}
	}
	return out
}

// looseString renders a raw JSON value as a string: strings unquoted,
// numbers formatted, everything else empty.
func looseString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		if n == float64(int64(n)) {
			return strconv.FormatInt(int64(n), 10)
		}
		return fmt.Sprintf("%g", n)
	}
	return ""
}

// looseInt parses a raw JSON value as an int, accepting numbers and
// numeric strings.
func looseInt(raw json.RawMessage) (int, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return int(n), true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if v, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return v, true
		}
	}
	return 0, false
}
