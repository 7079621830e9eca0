package model

// Tier is a named cost/accuracy level of the inference provider.
type Tier int

const (
	// TierFast is the cheap, low-latency model tier.
	TierFast Tier = iota
	// TierPrecise is the expensive, high-accuracy model tier.
	TierPrecise
)

func (t Tier) String() string {
	switch t {
	case TierFast:
		return "fast"
	case TierPrecise:
		return "precise"
	default:
		return "unknown"
	}
}

// ExtractedAttributes is what the vision provider read off an image.
// Every field is Optional: the provider answering "unknown" and the
// provider not answering at all are the same absent state.
type ExtractedAttributes struct {
	Brand        Optional[string] `json:"brand"`
	Model        Optional[string] `json:"model"`
	Trim         Optional[string] `json:"trim"`
	Year         Optional[int]    `json:"year"`
	Color        Optional[string] `json:"color"`
	VehicleType  Optional[string] `json:"vehicle_type"`
	Transmission Optional[string] `json:"transmission"`
	Fuel         Optional[string] `json:"fuel"`
	Engine       Optional[string] `json:"engine"`
	Condition    Optional[string] `json:"condition"`
	Features     []string         `json:"features,omitempty"`
}

// ImageEvaluation is the outcome of evaluating one image.
//
// For a cover image, Valid means "depicts a policy-compliant motor
// vehicle". For a gallery image, Valid means "consistent with the cover
// image's canonical identity" — a weaker, relative check.
type ImageEvaluation struct {
	Index      int                 `json:"index"`
	Valid      bool                `json:"valid"`
	Reason     string              `json:"reason,omitempty"` // non-empty iff !Valid
	Confidence float64             `json:"confidence"`
	Tier       Tier                `json:"tier"`
	Extracted  ExtractedAttributes `json:"extracted"`
}

// CanonicalIdentity is the identity tuple treated as ground truth for a
// run. It is derived exclusively from the cover image's evaluation and is
// never overwritten by gallery data.
type CanonicalIdentity struct {
	Brand       Optional[string]
	Model       Optional[string]
	Trim        Optional[string]
	Year        Optional[int]
	VehicleType Optional[string]
}

// IdentityFrom builds the canonical identity from a cover evaluation.
func IdentityFrom(cover ImageEvaluation) CanonicalIdentity {
	return CanonicalIdentity{
		Brand:       cover.Extracted.Brand,
		Model:       cover.Extracted.Model,
		Trim:        cover.Extracted.Trim,
		Year:        cover.Extracted.Year,
		VehicleType: cover.Extracted.VehicleType,
	}
}
