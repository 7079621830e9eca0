package escalate

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/carmatch/moderation-cli/internal/model"
)

// knownBrands are the makes the local parser recognizes, keyed by the
// normalized token and mapping to the canonical spelling.
var knownBrands = map[string]string{
	"toyota":        "Toyota",
	"nissan":        "Nissan",
	"honda":         "Honda",
	"hyundai":       "Hyundai",
	"kia":           "Kia",
	"mazda":         "Mazda",
	"mitsubishi":    "Mitsubishi",
	"suzuki":        "Suzuki",
	"chevrolet":     "Chevrolet",
	"ford":          "Ford",
	"volkswagen":    "Volkswagen",
	"vw":            "Volkswagen",
	"renault":       "Renault",
	"peugeot":       "Peugeot",
	"fiat":          "Fiat",
	"bmw":           "BMW",
	"audi":          "Audi",
	"mercedes":      "Mercedes-Benz",
	"mercedes-benz": "Mercedes-Benz",
	"subaru":        "Subaru",
	"jeep":          "Jeep",
	"ram":           "RAM",
	"dodge":         "Dodge",
	"lexus":         "Lexus",
	"isuzu":         "Isuzu",
	"hino":          "Hino",
	"yamaha":        "Yamaha",
	"kawasaki":      "Kawasaki",
	"ktm":           "KTM",
	"bajaj":         "Bajaj",
	"byd":           "BYD",
	"chery":         "Chery",
	"changan":       "Changan",
	"jac":           "JAC",
	"mg":            "MG",
}

var transmissionKeywords = map[string]string{
	"automatica":     "Automática",
	"automatic":      "Automática",
	"secuencial":     "Automática",
	"cvt":            "Automática",
	"tiptronic":      "Automática",
	"semiautomatica": "Automática",
	"manual":         "Manual",
	"mecanica":       "Manual",
	"standard":       "Manual",
	"sincronico":     "Manual",
	"sincronizada":   "Manual",
}

var fuelKeywords = map[string]string{
	"diesel":    "Diésel",
	"gasolina":  "Gasolina",
	"gasoline":  "Gasolina",
	"nafta":     "Gasolina",
	"bencina":   "Gasolina",
	"hibrido":   "Híbrido",
	"hybrid":    "Híbrido",
	"electrico": "Eléctrico",
	"electric":  "Eléctrico",
	"glp":       "GLP",
	"gnv":       "GNV",
}

var bodyKeywords = map[string]string{
	"suv":         "SUV",
	"sedan":       "Sedán",
	"hatchback":   "Hatchback",
	"pickup":      "Pickup",
	"pick-up":     "Pickup",
	"camioneta":   "Pickup",
	"coupe":       "Coupé",
	"convertible": "Convertible",
	"van":         "Van",
	"furgoneta":   "Van",
	"minivan":     "Van",
	"camion":      "Camión",
	"truck":       "Camión",
	"moto":        "Motocicleta",
	"motocicleta": "Motocicleta",
	"motorcycle":  "Motocicleta",
	"scooter":     "Motocicleta",
	"buseta":      "Bus",
	"bus":         "Bus",
}

var yearPattern = regexp.MustCompile(`\b(19[5-9]\d|20\d{2})\b`)

// stopwords end the model-name capture after a brand token.
var modelStopwords = map[string]bool{
	"ano": true, "año": true, "modelo": true, "full": true, "extras": true,
	"motor": true, "km": true, "kms": true, "precio": true, "negociable": true,
	"venta": true, "vendo": true, "excelente": true, "estado": true,
	"unico": true, "dueno": true, "recibo": true, "financiamiento": true,
}

// ParseLocal runs the deterministic keyword interpreter over listing
// text. It never calls the provider. The boolean reports sufficiency:
// true when brand, model, and year were all recovered, which lets the
// router skip every paid path.
func ParseLocal(text string) (model.ExtractedAttributes, bool) {
	var out model.ExtractedAttributes
	if strings.TrimSpace(text) == "" {
		return out, false
	}

	normalized := normalizeKeyText(text)
	tokens := strings.FieldsFunc(normalized, func(r rune) bool {
		return r == ' ' || r == ',' || r == '.' || r == ';' || r == '(' || r == ')'
	})

	for i, tok := range tokens {
		if canonical, ok := knownBrands[tok]; ok && !out.Brand.Present() {
			out.Brand = model.Some(canonical)
			if m := captureModel(tokens, i+1); m != "" {
				out.Model = model.Some(m)
			}
			continue
		}
		if v, ok := transmissionKeywords[tok]; ok && !out.Transmission.Present() {
			out.Transmission = model.Some(v)
		}
		if v, ok := fuelKeywords[tok]; ok && !out.Fuel.Present() {
			out.Fuel = model.Some(v)
		}
		if v, ok := bodyKeywords[tok]; ok && !out.VehicleType.Present() {
			out.VehicleType = model.Some(v)
		}
	}

	if m := yearPattern.FindString(normalized); m != "" {
		out.Year = model.NormalizeYear(m)
	}

	sufficient := out.Brand.Present() && out.Model.Present() && out.Year.Present()
	return out, sufficient
}

// captureModel takes up to two tokens after the brand, stopping at
// years, numbers, and filler words.
func captureModel(tokens []string, start int) string {
	var parts []string
	for i := start; i < len(tokens) && len(parts) < 2; i++ {
		tok := tokens[i]
		if yearPattern.MatchString(tok) || modelStopwords[tok] {
			break
		}
		if _, isBrand := knownBrands[tok]; isBrand {
			break
		}
		if _, isTrans := transmissionKeywords[tok]; isTrans {
			break
		}
		if _, isFuel := fuelKeywords[tok]; isFuel {
			break
		}
		if _, isBody := bodyKeywords[tok]; isBody {
			break
		}
		parts = append(parts, tok)
	}
	if len(parts) == 0 {
		return ""
	}
	// cases.Caser carries internal state and is not safe to share
	// across goroutines, so build one per capture.
	return cases.Title(language.Spanish).String(strings.Join(parts, " "))
}
