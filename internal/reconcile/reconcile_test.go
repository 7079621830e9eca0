package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carmatch/moderation-cli/internal/model"
)

func pickupCover() model.ImageEvaluation {
	return model.ImageEvaluation{
		Index: 0,
		Valid: true,
		Extracted: model.ExtractedAttributes{
			Brand:       model.Some("Toyota"),
			Model:       model.Some("Hilux"),
			Year:        model.Some(2020),
			Color:       model.Some("Blanco"),
			VehicleType: model.Some("Pickup"),
		},
	}
}

func TestReconcile_DropsInconsistentGalleryImage(t *testing.T) {
	gallery := []model.ImageEvaluation{
		{Index: 1, Valid: true, Extracted: model.ExtractedAttributes{
			Transmission: model.Some("Automática"),
		}},
		{Index: 2, Valid: false, Reason: "shows an unrelated sedan"},
	}

	res := Reconcile(pickupCover(), gallery, model.DeclaredAttributes{})

	assert.False(t, res.CoverRejected)
	assert.False(t, res.MixedVehicles)
	assert.Equal(t, []int{0, 1}, res.FinalImageIndices)
	assert.Equal(t, []int{2}, res.DroppedImageIndices)

	// The interior shot enriched the transmission.
	assert.Equal(t, "Automática", res.Attributes.Fields["transmission"].Value)
	assert.Equal(t, model.OriginAIEnriched, res.Attributes.Fields["transmission"].Origin)
}

func TestReconcile_IdentityComesOnlyFromCover(t *testing.T) {
	gallery := []model.ImageEvaluation{
		{Index: 1, Valid: true, Extracted: model.ExtractedAttributes{
			Brand: model.Some("Nissan"),
			Model: model.Some("Frontier"),
			Year:  model.Some(2015),
		}},
	}

	res := Reconcile(pickupCover(), gallery, model.DeclaredAttributes{})

	assert.Equal(t, "Toyota", res.Identity.Brand.Or(""))
	assert.Equal(t, "Hilux", res.Identity.Model.Or(""))
	assert.Equal(t, 2020, res.Identity.Year.Or(0))
	assert.Equal(t, "Toyota", res.Attributes.Fields["brand"].Value)
	assert.Equal(t, "Hilux", res.Attributes.Fields["model"].Value)
	assert.Equal(t, "2020", res.Attributes.Fields["year"].Value)
}

func TestReconcile_CoverInvalidShortCircuits(t *testing.T) {
	res := Reconcile(model.ImageEvaluation{Valid: false, Reason: "bank receipt"}, nil, model.DeclaredAttributes{})
	assert.True(t, res.CoverRejected)
	assert.Empty(t, res.FinalImageIndices)
	assert.Nil(t, res.Attributes.Fields)
}

func TestReconcile_AllGalleryInconsistentFlagsMixedVehicles(t *testing.T) {
	gallery := []model.ImageEvaluation{
		{Index: 1, Valid: false, Reason: "different vehicle"},
		{Index: 2, Valid: false, Reason: "different vehicle"},
	}

	res := Reconcile(pickupCover(), gallery, model.DeclaredAttributes{})

	assert.True(t, res.MixedVehicles)
	assert.Equal(t, []int{0}, res.FinalImageIndices)
	assert.Equal(t, []int{1, 2}, res.DroppedImageIndices)
}

func TestMerge_UserValueSurvivesAgreement(t *testing.T) {
	declared := model.DeclaredAttributes{
		Brand: model.Some("toyota"),
		Year:  model.Some(2021),
	}

	res := Reconcile(pickupCover(), nil, declared)

	// Canonical comparison: "toyota" agrees with extracted "Toyota",
	// the declared spelling stays.
	brand := res.Attributes.Fields["brand"]
	assert.Equal(t, "toyota", brand.Value)
	assert.Equal(t, model.OriginUserProvided, brand.Origin)

	// 2021 vs extracted 2020 is within the correction threshold.
	year := res.Attributes.Fields["year"]
	assert.Equal(t, "2021", year.Value)
	assert.Equal(t, model.OriginUserProvided, year.Origin)
}

func TestMerge_MaterialConflictsAreCorrected(t *testing.T) {
	declared := model.DeclaredAttributes{
		Brand: model.Some("Nissan"),
		Year:  model.Some(2015),
	}

	res := Reconcile(pickupCover(), nil, declared)

	brand := res.Attributes.Fields["brand"]
	assert.Equal(t, "Toyota", brand.Value)
	assert.Equal(t, model.OriginAICorrected, brand.Origin)

	year := res.Attributes.Fields["year"]
	assert.Equal(t, "2020", year.Value)
	assert.Equal(t, model.OriginAICorrected, year.Origin)

	assert.ElementsMatch(t, []string{"brand", "year"}, res.Attributes.Corrections())
}

func TestMerge_AbsentUserValuesAreEnriched(t *testing.T) {
	res := Reconcile(pickupCover(), nil, model.DeclaredAttributes{})

	color := res.Attributes.Fields["color"]
	assert.Equal(t, "Blanco", color.Value)
	assert.Equal(t, model.OriginAIEnriched, color.Origin)

	// No extracted engine and no declared engine: the field is absent.
	_, ok := res.Attributes.Fields["engine"]
	assert.False(t, ok)
}

func TestMerge_UserOnlyFieldKept(t *testing.T) {
	declared := model.DeclaredAttributes{Engine: model.Some("2.4L")}
	res := Reconcile(pickupCover(), nil, declared)

	engine := res.Attributes.Fields["engine"]
	assert.Equal(t, "2.4L", engine.Value)
	assert.Equal(t, model.OriginUserProvided, engine.Origin)
}

func TestReconcile_Idempotent(t *testing.T) {
	cover := pickupCover()
	gallery := []model.ImageEvaluation{
		{Index: 1, Valid: true, Extracted: model.ExtractedAttributes{
			Fuel:     model.Some("Diésel"),
			Features: []string{"4x4", "aros de lujo"},
		}},
		{Index: 2, Valid: false, Reason: "unrelated"},
	}
	declared := model.DeclaredAttributes{
		Brand: model.Some("Toyota"),
		Year:  model.Some(2017),
	}

	first := Reconcile(cover, gallery, declared)
	second := Reconcile(cover, gallery, declared)
	require.Equal(t, first, second)
}

func TestReconcile_FeatureDeduplication(t *testing.T) {
	cover := pickupCover()
	cover.Extracted.Features = []string{"Cámara de retroceso"}
	gallery := []model.ImageEvaluation{
		{Index: 1, Valid: true, Extracted: model.ExtractedAttributes{
			Features: []string{"camara de retroceso", "sunroof"},
		}},
	}

	res := Reconcile(cover, gallery, model.DeclaredAttributes{})
	assert.Equal(t, []string{"Cámara de retroceso", "sunroof"}, res.Attributes.Features)
}
