package chaos

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/saintparish4/wifisim/logging"
	"github.com/saintparish4/wifisim/nodes"
	"github.com/saintparish4/wifisim/simulator"
)

// ErrUnknownTarget is returned when an outage names an unregistered device.
var ErrUnknownTarget = errors.New("unknown outage target")

// FailureType represents different types of failures
type FailureType string

const (
	FailureRadioOutage  FailureType = "RADIO_OUTAGE"
	FailureRadioRecover FailureType = "RADIO_RECOVER"
)

// RadioSwitch turns a device radio on and off. Implemented by mac.MAC.
type RadioSwitch interface {
	SetRadio(state nodes.RadioState)
	Device() *nodes.Device
}

// FailureRecord is one applied state change
type FailureRecord struct {
	Type   FailureType
	Target string
	Time   float64
}

// OutageInjector schedules radio outages on the simulation kernel
type OutageInjector struct {
	sched   *simulator.Scheduler
	targets map[string]RadioSwitch
	rng     *rand.Rand
	log     logging.Logger
	history []FailureRecord
}

// NewOutageInjector creates an injector. seed drives RandomOutages.
func NewOutageInjector(sched *simulator.Scheduler, seed int64, log logging.Logger) *OutageInjector {
	if log == nil {
		log = logging.Noop()
	}
	return &OutageInjector{
		sched:   sched,
		targets: make(map[string]RadioSwitch),
		rng:     rand.New(rand.NewSource(seed)),
		log:     log,
	}
}

// Register makes a device addressable by name
func (oi *OutageInjector) Register(name string, sw RadioSwitch) {
	oi.targets[name] = sw
}

// Targets returns registered names in sorted order
func (oi *OutageInjector) Targets() []string {
	names := make([]string, 0, len(oi.targets))
	for name := range oi.targets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// InjectRadioOutage switches the radio of target off at the absolute time
// at and back on after duration. A zero duration is permanent.
func (oi *OutageInjector) InjectRadioOutage(target string, at, duration float64) error {
	sw, ok := oi.targets[target]
	if !ok {
		return fmt.Errorf("failed to inject outage on %q: %w", target, ErrUnknownTarget)
	}
	if math.IsNaN(duration) || duration < 0 {
		return fmt.Errorf("outage duration %v: %w", duration, simulator.ErrInvalidArgument)
	}

	_, err := oi.sched.ScheduleAt(at, func() {
		oi.apply(FailureRadioOutage, target, sw, nodes.RadioOff)
	})
	if err != nil {
		return fmt.Errorf("failed to inject outage on %q: %w", target, err)
	}

	// Schedule recovery if duration > 0
	if duration > 0 {
		_, err = oi.sched.ScheduleAt(at+duration, func() {
			oi.apply(FailureRadioRecover, target, sw, nodes.RadioOn)
		})
		if err != nil {
			return fmt.Errorf("failed to schedule recovery of %q: %w", target, err)
		}
	}

	return nil
}

// RandomOutages picks between minTargets and maxTargets registered devices
// and schedules an outage on each.
func (oi *OutageInjector) RandomOutages(minTargets, maxTargets int, at, duration float64) ([]string, error) {
	names := oi.Targets()
	if len(names) == 0 {
		return nil, fmt.Errorf("no targets available: %w", ErrUnknownTarget)
	}
	if minTargets < 0 || maxTargets < minTargets {
		return nil, fmt.Errorf("target range %d-%d: %w", minTargets, maxTargets, simulator.ErrInvalidArgument)
	}

	count := minTargets + oi.rng.Intn(maxTargets-minTargets+1)
	if count > len(names) {
		count = len(names)
	}

	chosen := make([]string, 0, count)
	for _, i := range oi.rng.Perm(len(names))[:count] {
		if err := oi.InjectRadioOutage(names[i], at, duration); err != nil {
			return chosen, err
		}
		chosen = append(chosen, names[i])
	}
	return chosen, nil
}

func (oi *OutageInjector) apply(kind FailureType, target string, sw RadioSwitch, state nodes.RadioState) {
	now := oi.sched.Now()
	sw.SetRadio(state)
	oi.history = append(oi.history, FailureRecord{Type: kind, Target: target, Time: now})
	oi.log.Info(context.Background(), "failure applied",
		logging.String("type", string(kind)),
		logging.String("target", target),
		logging.SimTime(now))
}

// History returns the applied failures in time order
func (oi *OutageInjector) History() []FailureRecord {
	return append([]FailureRecord(nil), oi.history...)
}

// FailureStats tracks statistics about injected failures
type FailureStats struct {
	Outages      int
	Recoveries   int
	RadiosOffNow int
}

// GetFailureImpact summarizes applied failures and current radio states
func (oi *OutageInjector) GetFailureImpact() FailureStats {
	stats := FailureStats{}
	for _, rec := range oi.history {
		switch rec.Type {
		case FailureRadioOutage:
			stats.Outages++
		case FailureRadioRecover:
			stats.Recoveries++
		}
	}
	for _, sw := range oi.targets {
		if !sw.Device().RadioEnabled() {
			stats.RadiosOffNow++
		}
	}
	return stats
}
