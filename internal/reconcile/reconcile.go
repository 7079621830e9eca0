// Package reconcile merges the cover evaluation, the gallery audit, and
// the seller's declared attributes into a final attribute set. The cover
// identity is sovereign: gallery data filters photos and enriches
// technical fields, but never changes who the vehicle is.
package reconcile

import (
	"strconv"

	"go.uber.org/zap"

	"github.com/carmatch/moderation-cli/internal/model"
)

// yearCorrectionThreshold: a declared year within one of the extracted
// year is treated as agreement (model years straddle calendar years).
const yearCorrectionThreshold = 1

// Result is the outcome of reconciling one submission.
type Result struct {
	CoverRejected       bool
	Identity            model.CanonicalIdentity
	Attributes          model.ReconciledAttributes
	FinalImageIndices   []int
	DroppedImageIndices []int

	// MixedVehicles is set when the gallery was non-empty and every
	// gallery image was inconsistent with the cover identity. The
	// caller rejects such submissions as misrepresented.
	MixedVehicles bool
}

// Reconcile applies the sovereignty and merge rules. Gallery evaluations
// must come from the same run as cover; indices refer to submission
// image positions.
func Reconcile(cover model.ImageEvaluation, gallery []model.ImageEvaluation, declared model.DeclaredAttributes) Result {
	if !cover.Valid {
		return Result{CoverRejected: true}
	}

	res := Result{
		Identity:          model.IdentityFrom(cover),
		FinalImageIndices: []int{cover.Index},
	}

	extracted := cover.Extracted
	for _, g := range gallery {
		if !g.Valid {
			res.DroppedImageIndices = append(res.DroppedImageIndices, g.Index)
			zap.L().Info("dropping inconsistent gallery image",
				zap.Int("index", g.Index),
				zap.String("reason", g.Reason),
			)
			continue
		}
		res.FinalImageIndices = append(res.FinalImageIndices, g.Index)
		enrichTechnical(&extracted, g.Extracted)
	}
	if len(gallery) > 0 && len(res.DroppedImageIndices) == len(gallery) {
		res.MixedVehicles = true
	}

	res.Attributes = merge(extracted, declared)
	return res
}

// enrichTechnical copies technical fields a gallery shot surfaced that
// the running set lacks. Identity fields are deliberately not touched.
func enrichTechnical(dst *model.ExtractedAttributes, src model.ExtractedAttributes) {
	if !dst.Color.Present() {
		dst.Color = src.Color
	}
	if !dst.Transmission.Present() {
		dst.Transmission = src.Transmission
	}
	if !dst.Fuel.Present() {
		dst.Fuel = src.Fuel
	}
	if !dst.Engine.Present() {
		dst.Engine = src.Engine
	}
	if !dst.Condition.Present() {
		dst.Condition = src.Condition
	}
	for _, f := range src.Features {
		if !containsCanonical(dst.Features, f) {
			dst.Features = append(dst.Features, f)
		}
	}
}

func containsCanonical(haystack []string, needle string) bool {
	cn := model.CanonicalString(needle)
	for _, h := range haystack {
		if model.CanonicalString(h) == cn {
			return true
		}
	}
	return false
}

// merge builds the final field set with per-field provenance.
func merge(extracted model.ExtractedAttributes, declared model.DeclaredAttributes) model.ReconciledAttributes {
	out := model.ReconciledAttributes{
		Fields:   make(map[string]model.ReconciledField),
		Features: extracted.Features,
	}

	mergeString(out.Fields, "brand", declared.Brand, extracted.Brand)
	mergeString(out.Fields, "model", declared.Model, extracted.Model)
	mergeString(out.Fields, "trim", declared.Trim, extracted.Trim)
	mergeYear(out.Fields, declared.Year, extracted.Year)
	mergeString(out.Fields, "color", declared.Color, extracted.Color)
	mergeString(out.Fields, "vehicle_type", declared.VehicleType, extracted.VehicleType)
	mergeString(out.Fields, "transmission", declared.Transmission, extracted.Transmission)
	mergeString(out.Fields, "fuel", declared.Fuel, extracted.Fuel)
	mergeString(out.Fields, "engine", declared.Engine, extracted.Engine)

	if v, ok := extracted.Condition.Value(); ok {
		out.Fields["condition"] = model.ReconciledField{Value: v, Origin: model.OriginAIEnriched}
	}

	return out
}

// mergeString applies the categorical-field rule: user values survive
// unless they materially disagree with a present extracted value, where
// material means a canonical-string mismatch.
func mergeString(fields map[string]model.ReconciledField, name string, user, ai model.Optional[string]) {
	userVal, userOK := user.Value()
	aiVal, aiOK := ai.Value()

	switch {
	case userOK && !aiOK:
		fields[name] = model.ReconciledField{Value: userVal, Origin: model.OriginUserProvided}
	case userOK && aiOK:
		if model.CanonicalString(userVal) == model.CanonicalString(aiVal) {
			fields[name] = model.ReconciledField{Value: userVal, Origin: model.OriginUserProvided}
		} else {
			zap.L().Info("correcting declared attribute",
				zap.String("field", name),
				zap.String("declared", userVal),
				zap.String("extracted", aiVal),
			)
			fields[name] = model.ReconciledField{Value: aiVal, Origin: model.OriginAICorrected}
		}
	case !userOK && aiOK:
		fields[name] = model.ReconciledField{Value: aiVal, Origin: model.OriginAIEnriched}
	}
}

// mergeYear applies the numeric rule: within the threshold the declared
// year stands, beyond it the extracted year replaces it.
func mergeYear(fields map[string]model.ReconciledField, user, ai model.Optional[int]) {
	userVal, userOK := user.Value()
	aiVal, aiOK := ai.Value()

	switch {
	case userOK && !aiOK:
		fields["year"] = model.ReconciledField{Value: strconv.Itoa(userVal), Origin: model.OriginUserProvided}
	case userOK && aiOK:
		diff := userVal - aiVal
		if diff < 0 {
			diff = -diff
		}
		if diff <= yearCorrectionThreshold {
			fields["year"] = model.ReconciledField{Value: strconv.Itoa(userVal), Origin: model.OriginUserProvided}
		} else {
			zap.L().Info("correcting declared year",
				zap.Int("declared", userVal),
				zap.Int("extracted", aiVal),
			)
			fields["year"] = model.ReconciledField{Value: strconv.Itoa(aiVal), Origin: model.OriginAICorrected}
		}
	case !userOK && aiOK:
		fields["year"] = model.ReconciledField{Value: strconv.Itoa(aiVal), Origin: model.OriginAIEnriched}
	}
}
