// Package fingerprint detects resubmission of the same physical vehicle
// through a stable hash of its canonical attributes.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"unicode"

	"github.com/carmatch/moderation-cli/internal/model"
)

// Attributes is the canonical tuple the hash is computed over.
type Attributes struct {
	Brand        string
	Model        string
	Year         int // 0 when unknown
	Color        string
	VehicleType  string
	Engine       string
	Transmission string
}

// Hash computes the canonical vehicle hash. The construction is a
// compatibility contract with historical fingerprint data and must not
// change: each field lowercased with all whitespace stripped (a zero
// year becomes the empty string), joined with "-" in the order brand,
// model, year, color, vehicleType, engine, transmission, then sha256
// in lowercase hex.
func Hash(a Attributes) string {
	year := ""
	if a.Year != 0 {
		year = strconv.Itoa(a.Year)
	}
	parts := []string{
		fold(a.Brand),
		fold(a.Model),
		fold(year),
		fold(a.Color),
		fold(a.VehicleType),
		fold(a.Engine),
		fold(a.Transmission),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "-")))
	return hex.EncodeToString(sum[:])
}

func fold(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToLower(r)
	}, s)
}

// FromReconciled pulls the hash tuple out of a reconciled attribute set.
func FromReconciled(attrs model.ReconciledAttributes) Attributes {
	get := func(name string) string {
		return attrs.Fields[name].Value
	}
	year := 0
	if y, err := strconv.Atoi(get("year")); err == nil {
		year = y
	}
	return Attributes{
		Brand:        get("brand"),
		Model:        get("model"),
		Year:         year,
		Color:        get("color"),
		VehicleType:  get("vehicle_type"),
		Engine:       get("engine"),
		Transmission: get("transmission"),
	}
}
