package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/carmatch/moderation-cli/internal/model"
)

// Golden values pin the hash construction; duplicate detection against
// historical records breaks if these ever change.
func TestHash_GoldenValues(t *testing.T) {
	full := Attributes{
		Brand:        "Toyota",
		Model:        "Corolla Cross",
		Year:         2020,
		Color:        "Rojo",
		VehicleType:  "SUV",
		Engine:       "2.0L Turbo",
		Transmission: "Automática",
	}
	assert.Equal(t,
		"747fad99e2798e6723b1cd2c4d7142a09ca528b0bf2cc4cfce59873045a014af",
		Hash(full),
	)

	sparse := Attributes{Brand: "Nissan", Model: "Versa", Year: 2018}
	assert.Equal(t,
		"00feff43db6325a5c39f63eb3377c48dfbaf0397ccdbdb989beedf7e3f3871b2",
		Hash(sparse),
	)
}

func TestHash_CaseAndWhitespaceInvariant(t *testing.T) {
	a := Attributes{
		Brand:        " toyota ",
		Model:        "COROLLA  cross",
		Year:         2020,
		Color:        "rojo",
		VehicleType:  "suv",
		Engine:       "2.0l turbo",
		Transmission: "automática",
	}
	assert.Equal(t,
		"747fad99e2798e6723b1cd2c4d7142a09ca528b0bf2cc4cfce59873045a014af",
		Hash(a),
	)
}

func TestHash_FieldOrderMatters(t *testing.T) {
	a := Attributes{Engine: "diesel"}
	b := Attributes{Transmission: "diesel"}
	assert.NotEqual(t, Hash(a), Hash(b))
}

func TestHash_ZeroYearIsEmpty(t *testing.T) {
	withYear := Attributes{Brand: "Kia", Year: 2019}
	without := Attributes{Brand: "Kia"}
	assert.NotEqual(t, Hash(withYear), Hash(without))
	assert.Equal(t, Hash(without), Hash(Attributes{Brand: "KIA", Year: 0}))
}

func TestFromReconciled(t *testing.T) {
	attrs := model.ReconciledAttributes{Fields: map[string]model.ReconciledField{
		"brand":        {Value: "Toyota"},
		"model":        {Value: "Corolla Cross"},
		"year":         {Value: "2020"},
		"color":        {Value: "Rojo"},
		"vehicle_type": {Value: "SUV"},
		"engine":       {Value: "2.0L Turbo"},
		"transmission": {Value: "Automática"},
	}}

	got := FromReconciled(attrs)
	assert.Equal(t, 2020, got.Year)
	assert.Equal(t,
		"747fad99e2798e6723b1cd2c4d7142a09ca528b0bf2cc4cfce59873045a014af",
		Hash(got),
	)

	// Missing fields degrade to empty strings, never panic.
	empty := FromReconciled(model.ReconciledAttributes{})
	assert.Zero(t, empty.Year)
	assert.Empty(t, empty.Brand)
}
