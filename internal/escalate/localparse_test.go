package escalate

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLocal_FullListing(t *testing.T) {
	attrs, ok := ParseLocal("Vendo Toyota Corolla Cross 2021, automática, gasolina, SUV, excelente estado")
	require.True(t, ok)

	assert.Equal(t, "Toyota", attrs.Brand.Or(""))
	assert.Equal(t, "Corolla Cross", attrs.Model.Or(""))
	assert.Equal(t, 2021, attrs.Year.Or(0))
	assert.Equal(t, "Automática", attrs.Transmission.Or(""))
	assert.Equal(t, "Gasolina", attrs.Fuel.Or(""))
	assert.Equal(t, "SUV", attrs.VehicleType.Or(""))
}

func TestParseLocal_AccentInsensitive(t *testing.T) {
	a1, ok1 := ParseLocal("Nissan Frontier 2019 mecánica diésel")
	a2, ok2 := ParseLocal("NISSAN FRONTIER 2019 mecanica diesel")
	require.True(t, ok1)
	require.True(t, ok2)
	assert.Equal(t, a1, a2)
	assert.Equal(t, "Manual", a1.Transmission.Or(""))
	assert.Equal(t, "Diésel", a1.Fuel.Or(""))
}

func TestParseLocal_InsufficientWithoutYear(t *testing.T) {
	attrs, ok := ParseLocal("Hyundai Tucson automática")
	assert.False(t, ok)
	assert.Equal(t, "Hyundai", attrs.Brand.Or(""))
	assert.Equal(t, "Tucson", attrs.Model.Or(""))
	assert.False(t, attrs.Year.Present())
}

func TestParseLocal_NoVehicleContent(t *testing.T) {
	_, ok := ParseLocal("se vende refrigeradora en buen estado")
	assert.False(t, ok)

	_, ok = ParseLocal("")
	assert.False(t, ok)
}

func TestParseLocal_ModelStopsAtKeywords(t *testing.T) {
	attrs, ok := ParseLocal("Kia Sportage 2018 manual")
	require.True(t, ok)
	assert.Equal(t, "Sportage", attrs.Model.Or(""))

	// Year right after brand leaves the model absent.
	attrs, ok = ParseLocal("Mazda 2015 motor 2.0")
	assert.False(t, ok)
	assert.Equal(t, "Mazda", attrs.Brand.Or(""))
	assert.False(t, attrs.Model.Present())
	assert.Equal(t, 2015, attrs.Year.Or(0))
}

func TestParseLocal_Concurrent(t *testing.T) {
	// The webhook server parses listings from many requests at once;
	// run with -race to catch shared state in the parser.
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				attrs, ok := ParseLocal("Vendo Toyota hilux doble cabina 2020 diesel manual")
				if !ok || attrs.Model.Or("") != "Hilux Doble" {
					t.Errorf("unexpected parse: %+v", attrs)
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestNormalizeKeyText(t *testing.T) {
	assert.Equal(t, "automatica roja 2020", normalizeKeyText("  Automática   ROJA\t2020 "))
	assert.Equal(t, normalizeKeyText("Diésel"), normalizeKeyText("diesel"))
}
