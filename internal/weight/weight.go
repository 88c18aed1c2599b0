// Package weight converts pet weights between the canonical storage unit (grams)
// and the display units a shop can configure (kilograms or pounds).
package weight

import (
	"math"
	"strconv"
	"strings"
)

// Unit is a display unit for weights.
type Unit string

const (
	UnitKilograms Unit = "kg"
	UnitPounds    Unit = "lbs"
)

const (
	// GramsPerKilogram is exact.
	GramsPerKilogram = 1000.0

	// GramsPerPound is a fixed constant. It is intentionally not re-derived from
	// the international avoirdupois definition so stored values stay stable.
	GramsPerPound = 453.592
)

// ParseUnit maps free-form input ("KG", " lb ", "lbs") to a Unit.
// Anything unrecognized falls back to kilograms, the shop default.
func ParseUnit(s string) Unit {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "lb", "lbs", "pound", "pounds":
		return UnitPounds
	default:
		return UnitKilograms
	}
}

func gramsPer(unit Unit) float64 {
	if unit == UnitPounds {
		return GramsPerPound
	}
	return GramsPerKilogram
}

// ToGrams converts a value in the given unit to whole grams.
// A nil or NaN value yields nil.
func ToGrams(value *float64, unit Unit) *int {
	if value == nil || math.IsNaN(*value) {
		return nil
	}
	grams := int(math.Round(*value * gramsPer(unit)))
	return &grams
}

// FromGrams converts grams to the given unit, rounded to one decimal place.
func FromGrams(grams *int, unit Unit) *float64 {
	if grams == nil {
		return nil
	}
	v := math.Round(float64(*grams)/gramsPer(unit)*10) / 10
	return &v
}

// Format renders grams as "<value> <unit>", or "N/A" when the weight is unknown.
func Format(grams *int, unit Unit) string {
	v := FromGrams(grams, unit)
	if v == nil {
		return "N/A"
	}
	return strconv.FormatFloat(*v, 'f', -1, 64) + " " + string(unit)
}
