package domain

import "testing"

func TestRegionCIDR(t *testing.T) {
	testCases := map[string][2]uint8{
		"10.10.0.0/24":   {10, 0},
		"10.10.255.0/24": {10, 255},
		"10.130.17.0/24": {130, 17},
		"10.0.0.0/24":    {0, 0},
	}

	for want, coord := range testCases {
		if got := RegionCIDR(coord[0], coord[1]); got != want {
			t.Errorf("RegionCIDR(%d, %d) = %q, want %q", coord[0], coord[1], got, want)
		}
	}
}

func TestHostAddress(t *testing.T) {
	if got := HostAddress(10, 0, 1); got != "10.10.0.1" {
		t.Errorf("HostAddress(10,0,1) = %q, want 10.10.0.1", got)
	}
	if got := HostAddress(130, 255, 254); got != "10.130.255.254" {
		t.Errorf("HostAddress(130,255,254) = %q, want 10.130.255.254", got)
	}
}

func TestCountryMappingRanges(t *testing.T) {
	m := CountryMapping{Country: "India", XStart: 10, XEnd: 39}

	if !m.ContainsX(10) || !m.ContainsX(39) || !m.ContainsX(25) {
		t.Error("expected X values inside [10,39] to be contained")
	}
	if m.ContainsX(9) || m.ContainsX(40) {
		t.Error("expected X values outside [10,39] to be excluded")
	}
	if got := m.XSpan(); got != 30 {
		t.Errorf("XSpan() = %d, want 30", got)
	}
	if got := m.RegionCapacity(); got != 30*256 {
		t.Errorf("RegionCapacity() = %d, want %d", got, 30*256)
	}
}
