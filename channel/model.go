package channel

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/saintparish4/wifisim/nodes"
	"github.com/saintparish4/wifisim/simulator"
)

// Default radio parameters.
const (
	DefaultTxPowerDbm       = 16.0206
	DefaultRxSensitivityDbm = -101.0
	DefaultWidthMHz         = 160
)

// Reason explains the outcome of a reception attempt
type Reason string

const (
	ReasonOK               Reason = "ok"
	ReasonBelowSensitivity Reason = "below-sensitivity"
	ReasonFrameError       Reason = "frame-error"
	ReasonRadioOff         Reason = "radio-off"
)

// Config holds the channel parameters shared by every link.
type Config struct {
	WidthMHz         int
	TxPowerDbm       float64
	RxSensitivityDbm float64
	Propagation      LogDistance
	ErrorModel       ErrorModel
	// ReferenceMCS is used by LinkQuality, which has no per-frame MCS.
	ReferenceMCS MCS
	Seed         int64
}

// DefaultConfig returns a 160 MHz 5 GHz channel with table error model
func DefaultConfig() Config {
	return Config{
		WidthMHz:         DefaultWidthMHz,
		TxPowerDbm:       DefaultTxPowerDbm,
		RxSensitivityDbm: DefaultRxSensitivityDbm,
		Propagation:      DefaultLogDistance(),
		ErrorModel:       ErrorModelTable,
		ReferenceMCS:     MCS0,
		Seed:             1,
	}
}

// Validate checks the configuration once, before any frame is evaluated
func (c Config) Validate() error {
	if !ValidWidth(c.WidthMHz) {
		return fmt.Errorf("channel width %d MHz: %w", c.WidthMHz, simulator.ErrInvalidArgument)
	}
	if math.IsNaN(c.TxPowerDbm) || math.IsInf(c.TxPowerDbm, 0) {
		return fmt.Errorf("tx power %v: %w", c.TxPowerDbm, simulator.ErrInvalidArgument)
	}
	if math.IsNaN(c.RxSensitivityDbm) || math.IsInf(c.RxSensitivityDbm, 0) {
		return fmt.Errorf("rx sensitivity %v: %w", c.RxSensitivityDbm, simulator.ErrInvalidArgument)
	}
	if !c.ReferenceMCS.Valid() {
		return fmt.Errorf("reference mcs %d: %w", c.ReferenceMCS, simulator.ErrInvalidArgument)
	}
	if _, err := ParseErrorModel(string(c.ErrorModel)); err != nil {
		return err
	}
	return c.Propagation.Validate()
}

// Outcome is the result of one reception attempt
type Outcome struct {
	SignalDbm float64
	DistanceM float64
	PER       float64
	Delivered bool
	Reason    Reason
}

// Model evaluates links between devices. It is not safe for concurrent use;
// all calls happen from the scheduler's drain loop.
type Model struct {
	cfg Config
	rng *rand.Rand
}

// NewModel validates cfg and seeds the error draw source
func NewModel(cfg Config) (*Model, error) {
	if cfg.ErrorModel == "" {
		cfg.ErrorModel = ErrorModelTable
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Model{
		cfg: cfg,
		rng: rand.New(rand.NewSource(cfg.Seed)),
	}, nil
}

// Config returns the validated configuration
func (m *Model) Config() Config {
	return m.cfg
}

// WidthMHz returns the channel width
func (m *Model) WidthMHz() int {
	return m.cfg.WidthMHz
}

// ReceivedPower returns the signal at rx and the distance between devices.
func (m *Model) ReceivedPower(tx, rx *nodes.Device, txPowerDbm float64) (signalDbm, distance float64) {
	distance = tx.Position().DistanceTo(rx.Position())
	return txPowerDbm - m.cfg.Propagation.PathLoss(distance), distance
}

// Evaluate decides whether a frame sent at mcs from tx reaches rx.
func (m *Model) Evaluate(tx, rx *nodes.Device, txPowerDbm float64, mcs MCS) Outcome {
	signal, distance := m.ReceivedPower(tx, rx, txPowerDbm)
	out := Outcome{
		SignalDbm: signal,
		DistanceM: distance,
		PER:       1,
	}

	switch {
	case !rx.RadioEnabled():
		out.Reason = ReasonRadioOff
		return out
	case signal < m.cfg.RxSensitivityDbm:
		out.Reason = ReasonBelowSensitivity
		return out
	}

	if m.cfg.ErrorModel == ErrorModelNone {
		out.PER = 0
	} else {
		out.PER = PacketErrorRate(signal - mcs.MinInputDbm(m.cfg.WidthMHz))
	}

	// Only fractional error rates consume a draw.
	lost := out.PER >= 1
	if out.PER > 0 && out.PER < 1 {
		lost = m.rng.Float64() < out.PER
	}
	if lost {
		out.Reason = ReasonFrameError
		return out
	}

	out.Delivered = true
	out.Reason = ReasonOK
	return out
}

// LinkQuality evaluates tx -> rx at the reference MCS and returns the
// received signal and whether the frame was delivered.
func (m *Model) LinkQuality(tx, rx *nodes.Device, txPowerDbm float64) (float64, bool) {
	out := m.Evaluate(tx, rx, txPowerDbm, m.cfg.ReferenceMCS)
	return out.SignalDbm, out.Delivered
}
