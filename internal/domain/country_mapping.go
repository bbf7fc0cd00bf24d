package domain

// CountryMapping pins a country to a continent and an inclusive X-octet
// range inside the 10.0.0.0/8 space. The table is seeded at migration
// time and treated as immutable at runtime; ranges never overlap, so at
// most one mapping covers any X value.
type CountryMapping struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	Country   string `gorm:"size:56;not null;uniqueIndex"`
	Continent string `gorm:"size:32;not null;index"`
	Code      string `gorm:"size:3;not null"`
	XStart    uint8  `gorm:"not null"`
	XEnd      uint8  `gorm:"not null"`
}

// ContainsX reports whether x falls inside the mapping's range.
func (m *CountryMapping) ContainsX(x uint8) bool {
	return x >= m.XStart && x <= m.XEnd
}

// XSpan is the number of X octets the country owns.
func (m *CountryMapping) XSpan() int {
	return int(m.XEnd) - int(m.XStart) + 1
}

// RegionCapacity is the number of /24 blocks the country can hold.
func (m *CountryMapping) RegionCapacity() int {
	return m.XSpan() * YValuesPerX
}
