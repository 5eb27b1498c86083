package channel

import (
	"fmt"
	"math"

	"github.com/saintparish4/wifisim/simulator"
)

// LogDistance is the log-distance path loss model:
//
//	PL(d) = ReferenceLossDb + 10 * Exponent * log10(d / ReferenceDistance)
type LogDistance struct {
	Exponent          float64 `yaml:"exponent"`
	ReferenceLossDb   float64 `yaml:"reference_loss_db"`
	ReferenceDistance float64 `yaml:"reference_distance_m"`
}

// DefaultLogDistance matches the 5 GHz defaults of common Wi-Fi simulators:
// exponent 3 and 46.6777 dB at 1 m.
func DefaultLogDistance() LogDistance {
	return LogDistance{
		Exponent:          3.0,
		ReferenceLossDb:   46.6777,
		ReferenceDistance: 1.0,
	}
}

// Validate rejects parameters that would break monotonic attenuation
func (p LogDistance) Validate() error {
	if math.IsNaN(p.Exponent) || p.Exponent < 0 {
		return fmt.Errorf("path loss exponent %v: %w", p.Exponent, simulator.ErrInvalidArgument)
	}
	if !(p.ReferenceDistance > 0) {
		return fmt.Errorf("reference distance %v: %w", p.ReferenceDistance, simulator.ErrInvalidArgument)
	}
	if math.IsNaN(p.ReferenceLossDb) {
		return fmt.Errorf("reference loss: %w", simulator.ErrInvalidArgument)
	}
	return nil
}

// PathLoss returns the loss in dB at distance d metres. Distances below the
// reference distance are clamped to it.
func (p LogDistance) PathLoss(d float64) float64 {
	if d < p.ReferenceDistance {
		d = p.ReferenceDistance
	}
	return p.ReferenceLossDb + 10*p.Exponent*math.Log10(d/p.ReferenceDistance)
}
