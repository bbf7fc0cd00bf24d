package domain

import "fmt"

// The hierarchy carves 10.0.0.0/8 into fixed-width coordinates: a
// country owns a range of X octets, a region is one (X,Y) /24 block and
// a host is a single (X,Y,Z) address.
const (
	YValuesPerX    = 256 // /24 blocks per X octet
	HostsPerRegion = 254 // usable Z values, network and broadcast excluded
	MinZOctet      = 1
	MaxZOctet      = 254
)

// RegionCIDR derives the /24 block for an (X,Y) coordinate.
func RegionCIDR(x, y uint8) string {
	return fmt.Sprintf("10.%d.%d.0/24", x, y)
}

// HostAddress derives the dotted address for an (X,Y,Z) coordinate.
func HostAddress(x, y, z uint8) string {
	return fmt.Sprintf("10.%d.%d.%d", x, y, z)
}
