package enums

import "github.com/shopspring/decimal"

// MaterialKind maps to the material_kind column on waste_listings.
type MaterialKind string

const (
	MaterialPlastic      MaterialKind = "plastic"
	MaterialPaper        MaterialKind = "paper"
	MaterialMetal        MaterialKind = "metal"
	MaterialGlass        MaterialKind = "glass"
	MaterialOrganic      MaterialKind = "organic"
	MaterialAgricultural MaterialKind = "agricultural"
	MaterialEWaste       MaterialKind = "e-waste"
	MaterialTextile      MaterialKind = "textile"
	MaterialOther        MaterialKind = "other"
)

var validMaterialKinds = []MaterialKind{
	MaterialPlastic,
	MaterialPaper,
	MaterialMetal,
	MaterialGlass,
	MaterialOrganic,
	MaterialAgricultural,
	MaterialEWaste,
	MaterialTextile,
	MaterialOther,
}

// credits per unit of material; string literals keep the rates exact.
var materialRates = map[MaterialKind]decimal.Decimal{
	MaterialPlastic:      decimal.RequireFromString("2.0"),
	MaterialPaper:        decimal.RequireFromString("1.5"),
	MaterialMetal:        decimal.RequireFromString("3.0"),
	MaterialGlass:        decimal.RequireFromString("1.0"),
	MaterialOrganic:      decimal.RequireFromString("0.5"),
	MaterialAgricultural: decimal.RequireFromString("0.3"),
	MaterialEWaste:       decimal.RequireFromString("5.0"),
	MaterialTextile:      decimal.RequireFromString("1.0"),
	MaterialOther:        decimal.RequireFromString("1.0"),
}

// String implements fmt.Stringer.
func (m MaterialKind) String() string {
	return string(m)
}

// IsValid reports whether the value is a known MaterialKind.
func (m MaterialKind) IsValid() bool {
	return contains(validMaterialKinds, m)
}

// Rate returns the fixed credit rate per unit for the material.
// Unknown kinds fall back to the "other" rate.
func (m MaterialKind) Rate() decimal.Decimal {
	if rate, ok := materialRates[m]; ok {
		return rate
	}
	return materialRates[MaterialOther]
}

// ParseMaterialKind converts raw input into a MaterialKind.
func ParseMaterialKind(value string) (MaterialKind, error) {
	return parse(validMaterialKinds, value, "material kind")
}
