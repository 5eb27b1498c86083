package channel

import (
	"fmt"

	"github.com/saintparish4/wifisim/nodes"
	"github.com/saintparish4/wifisim/simulator"
)

// RateManager picks the MCS for unicast data frames and learns from
// observed signal levels.
type RateManager interface {
	SelectMCS(tx, rx *nodes.Device) MCS
	Observe(tx, rx *nodes.Device, signalDbm float64)
	Name() string
}

// ConstantRate always uses one configured MCS
type ConstantRate struct {
	mcs MCS
}

func NewConstantRate(mcs MCS) *ConstantRate {
	return &ConstantRate{mcs: mcs}
}

func (c *ConstantRate) SelectMCS(tx, rx *nodes.Device) MCS { return c.mcs }

func (c *ConstantRate) Observe(tx, rx *nodes.Device, signalDbm float64) {}

func (c *ConstantRate) Name() string { return "constant" }

type linkKey struct {
	a, b int
}

func keyFor(tx, rx *nodes.Device) linkKey {
	if tx.ID < rx.ID {
		return linkKey{tx.ID, rx.ID}
	}
	return linkKey{rx.ID, tx.ID}
}

// IdealRate picks the highest MCS whose minimum input level the last signal
// seen on the link satisfies. Path loss is symmetric, so a sample in either
// direction informs both. Links never observed use MCS0.
type IdealRate struct {
	widthMHz int
	marginDb float64
	last     map[linkKey]float64
}

// NewIdealRate creates an ideal rate manager. marginDb is added to each
// MCS threshold before it is considered usable.
func NewIdealRate(widthMHz int, marginDb float64) *IdealRate {
	return &IdealRate{
		widthMHz: widthMHz,
		marginDb: marginDb,
		last:     make(map[linkKey]float64),
	}
}

func (r *IdealRate) SelectMCS(tx, rx *nodes.Device) MCS {
	signal, ok := r.last[keyFor(tx, rx)]
	if !ok {
		return MCS0
	}
	for m := MaxMCS; m > MCS0; m-- {
		if signal >= m.MinInputDbm(r.widthMHz)+r.marginDb {
			return m
		}
	}
	return MCS0
}

func (r *IdealRate) Observe(tx, rx *nodes.Device, signalDbm float64) {
	r.last[keyFor(tx, rx)] = signalDbm
}

func (r *IdealRate) Name() string { return "ideal" }

// MinstrelMarginDb is the headroom the "minstrel" manager keeps above each
// MCS threshold, the margin at which the error table stops losing frames.
const MinstrelMarginDb = 6

// NewRateManager builds a manager by name. dataMode is required for
// "constant" and ignored otherwise. "minstrel" is an ideal manager that
// only picks rates with MinstrelMarginDb of headroom.
func NewRateManager(name, dataMode string, widthMHz int) (RateManager, error) {
	switch name {
	case "", "constant":
		mcs, err := ParseDataMode(dataMode)
		if err != nil {
			return nil, err
		}
		return NewConstantRate(mcs), nil
	case "ideal":
		return NewIdealRate(widthMHz, 0), nil
	case "minstrel":
		return NewIdealRate(widthMHz, MinstrelMarginDb), nil
	}
	return nil, fmt.Errorf("rate manager %q: %w", name, simulator.ErrInvalidArgument)
}
