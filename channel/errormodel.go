package channel

import (
	"fmt"

	"github.com/saintparish4/wifisim/simulator"
)

// ErrorModel selects how frames above sensitivity may still be lost.
type ErrorModel string

const (
	ErrorModelTable ErrorModel = "table"
	ErrorModelNone  ErrorModel = "none"
)

// ParseErrorModel accepts "table", "none", or empty for the default.
func ParseErrorModel(s string) (ErrorModel, error) {
	switch ErrorModel(s) {
	case "", ErrorModelTable:
		return ErrorModelTable, nil
	case ErrorModelNone:
		return ErrorModelNone, nil
	}
	return "", fmt.Errorf("error model %q: %w", s, simulator.ErrInvalidArgument)
}

// perStep maps a minimum margin above the MCS sensitivity to a packet error
// rate. Entries are ordered by descending margin.
type perStep struct {
	marginDb float64
	per      float64
}

var perTable = []perStep{
	{6, 0},
	{4, 0.01},
	{2, 0.05},
	{1, 0.2},
	{0, 0.5},
}

// PacketErrorRate returns the coarse PER for a signal marginDb above the
// MCS minimum input level.
func PacketErrorRate(marginDb float64) float64 {
	for _, step := range perTable {
		if marginDb >= step.marginDb {
			return step.per
		}
	}
	return 1
}
