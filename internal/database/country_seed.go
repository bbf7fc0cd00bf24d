package database

import (
	"ipatlas/internal/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// countrySeed is the static country -> continent -> X-octet table the
// Reference Map serves. Ranges are disjoint by construction; X values
// outside every range (0-9, 245-255) stay unmapped and unallocatable.
var countrySeed = []domain.CountryMapping{
	{Country: "India", Continent: "Asia", Code: "IN", XStart: 10, XEnd: 39},
	{Country: "China", Continent: "Asia", Code: "CN", XStart: 40, XEnd: 69},
	{Country: "Japan", Continent: "Asia", Code: "JP", XStart: 70, XEnd: 79},
	{Country: "Singapore", Continent: "Asia", Code: "SG", XStart: 80, XEnd: 84},
	{Country: "South Korea", Continent: "Asia", Code: "KR", XStart: 85, XEnd: 89},
	{Country: "Germany", Continent: "Europe", Code: "DE", XStart: 90, XEnd: 109},
	{Country: "United Kingdom", Continent: "Europe", Code: "GB", XStart: 110, XEnd: 119},
	{Country: "France", Continent: "Europe", Code: "FR", XStart: 120, XEnd: 129},
	{Country: "United States", Continent: "North America", Code: "US", XStart: 130, XEnd: 169},
	{Country: "Canada", Continent: "North America", Code: "CA", XStart: 170, XEnd: 179},
	{Country: "Mexico", Continent: "North America", Code: "MX", XStart: 180, XEnd: 184},
	{Country: "Brazil", Continent: "South America", Code: "BR", XStart: 190, XEnd: 199},
	{Country: "Argentina", Continent: "South America", Code: "AR", XStart: 200, XEnd: 204},
	{Country: "South Africa", Continent: "Africa", Code: "ZA", XStart: 210, XEnd: 219},
	{Country: "Nigeria", Continent: "Africa", Code: "NG", XStart: 220, XEnd: 224},
	{Country: "Egypt", Continent: "Africa", Code: "EG", XStart: 225, XEnd: 229},
	{Country: "Australia", Continent: "Oceania", Code: "AU", XStart: 230, XEnd: 239},
	{Country: "New Zealand", Continent: "Oceania", Code: "NZ", XStart: 240, XEnd: 244},
}

// SeedCountryMappings inserts the reference table, leaving existing rows
// untouched so reruns are safe.
func SeedCountryMappings(db *gorm.DB) error {
	mappings := make([]domain.CountryMapping, len(countrySeed))
	copy(mappings, countrySeed)

	return db.Clauses(clause.OnConflict{DoNothing: true}).Create(&mappings).Error
}
