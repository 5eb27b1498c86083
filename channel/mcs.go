package channel

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/saintparish4/wifisim/simulator"
)

// MCS is an HE (802.11ax) modulation and coding scheme index, single
// spatial stream.
type MCS int

const (
	MCS0   MCS = 0
	MaxMCS MCS = 11
)

// HE symbol duration including the 0.8 us guard interval.
const heSymbolDuration = 13.6e-6

var (
	heModulationBits = [...]int{1, 2, 2, 4, 4, 6, 6, 6, 8, 8, 10, 10}
	heCodingRate     = [...]float64{1.0 / 2, 1.0 / 2, 3.0 / 4, 1.0 / 2, 3.0 / 4, 2.0 / 3, 3.0 / 4, 5.0 / 6, 3.0 / 4, 5.0 / 6, 3.0 / 4, 5.0 / 6}
	// Minimum input sensitivity at 20 MHz, dBm.
	heMinInput20 = [...]float64{-82, -79, -77, -74, -70, -66, -65, -64, -59, -57, -54, -52}
)

// Data subcarriers per channel width in MHz.
var heDataSubcarriers = map[int]int{
	20:  234,
	40:  468,
	80:  980,
	160: 1960,
}

// ValidWidth reports whether w is a supported channel width in MHz
func ValidWidth(w int) bool {
	_, ok := heDataSubcarriers[w]
	return ok
}

// Valid reports whether m is within the HE MCS table
func (m MCS) Valid() bool {
	return m >= MCS0 && m <= MaxMCS
}

func (m MCS) String() string {
	return "HeMcs" + strconv.Itoa(int(m))
}

// DataRateBps returns the PHY data rate at the given width. Unknown widths
// and invalid indices yield zero.
func (m MCS) DataRateBps(widthMHz int) float64 {
	nsd, ok := heDataSubcarriers[widthMHz]
	if !ok || !m.Valid() {
		return 0
	}
	return float64(nsd) * float64(heModulationBits[m]) * heCodingRate[m] / heSymbolDuration
}

// MinInputDbm returns the minimum receive level for this MCS. Each doubling
// of width above 20 MHz raises it by 3 dB.
func (m MCS) MinInputDbm(widthMHz int) float64 {
	if !m.Valid() {
		return 0
	}
	level := heMinInput20[m]
	for w := 20; w < widthMHz; w *= 2 {
		level += 3
	}
	return level
}

// ParseDataMode converts a mode name such as "HeMcs5" to an MCS.
func ParseDataMode(mode string) (MCS, error) {
	rest, ok := strings.CutPrefix(mode, "HeMcs")
	if !ok {
		return 0, fmt.Errorf("data mode %q: %w", mode, simulator.ErrInvalidArgument)
	}
	n, err := strconv.Atoi(rest)
	if err != nil || !MCS(n).Valid() {
		return 0, fmt.Errorf("data mode %q: %w", mode, simulator.ErrInvalidArgument)
	}
	return MCS(n), nil
}
