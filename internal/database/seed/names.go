// Package seed generates demonstration data for a park.
package seed

// WasteCode is a European List of Waste entry the generator delivers.
type WasteCode struct {
	Code        string
	Description string
	// Typical delivery size in kg.
	MinKg, MaxKg int
}

// WasteCodes is the catalogue of LER codes deliveries are drawn from.
var WasteCodes = []WasteCode{
	{"15 01 01", "Paper and cardboard packaging", 300, 4000},
	{"15 01 02", "Plastic packaging", 200, 2500},
	{"15 01 03", "Wooden packaging", 500, 6000},
	{"15 01 04", "Metallic packaging", 100, 1500},
	{"15 01 07", "Glass packaging", 400, 5000},
	{"17 02 01", "Construction wood", 1000, 12000},
	{"17 04 05", "Iron and steel", 800, 15000},
	{"20 01 01", "Municipal paper and cardboard", 300, 3000},
	{"20 01 38", "Municipal wood", 500, 7000},
	{"20 02 01", "Biodegradable garden waste", 600, 9000},
}

// CompanyPrefixes and CompanySuffixes are combined into client names.
var CompanyPrefixes = []string{
	"Atlantic", "Beira", "Central", "Douro", "Estrela", "Ferro", "Global",
	"Horizonte", "Iberia", "Lusa", "Minho", "Norte", "Oeste", "Ribeira",
	"Sado", "Tejo", "Vale", "Verde",
}

var CompanySuffixes = []string{
	"Recycling", "Packaging", "Logistics", "Construction", "Retail",
	"Industries", "Metals", "Paper", "Agro", "Services",
}

// ZoneKinds names the storage areas of a generated park.
var ZoneKinds = []string{
	"Reception bay", "Baling line", "Covered bunker", "Open yard",
	"Shredder feed", "Sorting cabin", "Press hall", "Transfer dock",
}
