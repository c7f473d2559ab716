// Package market reports reference day rates for a dispute's service category
// and location, and where the disputed amount falls against them.
package market

import (
	"math"
	"strings"

	"github.com/samber/lo"
)

const (
	Currency = "LKR"
	Unit     = "per day"

	defaultBaseRate       = 4000
	defaultLocationFactor = 1.0
	defaultMaterialShare  = 0.60

	// bandWidth is the supply and demand spread around the adjusted rate.
	bandWidth = 0.10
)

var baseRates = map[string]float64{
	"Masonry":             3200,
	"Carpentry":           3800,
	"Plumbing":            4200,
	"Electrical":          4500,
	"Painting":            3000,
	"Tiling":              3400,
	"Roofing":             4200,
	"Foundation Work":     5500,
	"Interior Design":     7500,
	"Landscaping":         3600,
	"HVAC":                6000,
	"General Contracting": 5000,
}

var locationFactors = map[string]float64{
	"Colombo":      1.35,
	"Gampaha":      1.25,
	"Kandy":        1.20,
	"Galle":        1.15,
	"Negombo":      1.20,
	"Jaffna":       1.10,
	"Anuradhapura": 0.95,
	"Batticaloa":   0.90,
	"Trincomalee":  0.92,
	"Matara":       1.05,
	"Kurunegala":   0.98,
	"Ratnapura":    0.95,
	"Badulla":      0.92,
	"Nuwara Eliya": 1.10,
	"Hambantota":   1.05,
	"Kalmunai":     0.88,
	"Vavuniya":     0.90,
	"Matale":       0.95,
	"Puttalam":     0.90,
	"Kegalle":      0.92,
}

var materialShares = map[string]float64{
	"Masonry":             0.65,
	"Carpentry":           0.60,
	"Plumbing":            0.55,
	"Electrical":          0.60,
	"Painting":            0.50,
	"Tiling":              0.70,
	"Roofing":             0.75,
	"Foundation Work":     0.70,
	"Interior Design":     0.50,
	"Landscaping":         0.55,
	"HVAC":                0.65,
	"General Contracting": 0.60,
}

// Lookup tables keyed by lower-cased name, so "colombo" and "Colombo" match.
var (
	baseRateIndex       = byFoldedName(baseRates)
	locationFactorIndex = byFoldedName(locationFactors)
	materialShareIndex  = byFoldedName(materialShares)
)

// Position of an amount relative to the market band.
type Position string

const (
	Below   Position = "below"
	Within  Position = "within"
	Above   Position = "above"
	Unknown Position = "unknown"
)

type Rate struct {
	Category       string
	Location       string
	KnownCategory  bool
	KnownLocation  bool
	BaseRate       float64
	LocationFactor float64
	MaterialShare  float64
	AdjustedRate   float64
	MinRate        float64
	MaxRate        float64
}

// Assessment places an amount against a Rate. Deviation is the relative
// distance from the adjusted rate, so 0.25 means 25% above it.
type Assessment struct {
	Rate
	Amount    float64
	Position  Position
	Deviation float64
}

// Lookup returns the reference rate for category and location. Unlisted
// values fall back to the default base rate and a neutral location factor.
func Lookup(category, location string) Rate {
	category = strings.TrimSpace(category)
	location = strings.TrimSpace(location)

	base, knownCategory := baseRateIndex[strings.ToLower(category)]
	if !knownCategory {
		base = defaultBaseRate
	}
	factor, knownLocation := locationFactorIndex[strings.ToLower(location)]
	if !knownLocation {
		factor = defaultLocationFactor
	}
	share, ok := materialShareIndex[strings.ToLower(category)]
	if !ok {
		share = defaultMaterialShare
	}

	adjusted := round2(base * factor)
	return Rate{
		Category:       category,
		Location:       location,
		KnownCategory:  knownCategory,
		KnownLocation:  knownLocation,
		BaseRate:       base,
		LocationFactor: factor,
		MaterialShare:  share,
		AdjustedRate:   adjusted,
		MinRate:        round2(adjusted * (1 - bandWidth)),
		MaxRate:        round2(adjusted * (1 + bandWidth)),
	}
}

// Assess looks up the rate and reports where amount falls. The band bounds
// count as within.
func Assess(category, location string, amount float64) Assessment {
	rate := Lookup(category, location)
	a := Assessment{Rate: rate, Amount: amount, Position: Unknown}
	if math.IsNaN(amount) || math.IsInf(amount, 0) || rate.AdjustedRate <= 0 {
		return a
	}

	a.Deviation = round4((amount - rate.AdjustedRate) / rate.AdjustedRate)
	switch {
	case amount < rate.MinRate:
		a.Position = Below
	case amount > rate.MaxRate:
		a.Position = Above
	default:
		a.Position = Within
	}
	return a
}

func byFoldedName(m map[string]float64) map[string]float64 {
	return lo.MapKeys(m, func(_ float64, name string) string {
		return strings.ToLower(name)
	})
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

func round4(v float64) float64 { return math.Round(v*10000) / 10000 }
