package chaos

import (
	"context"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/saintparish4/wifisim/logging"
	"github.com/saintparish4/wifisim/simulator"
)

// Event types understood by ExperimentScheduler
const (
	EventRadioOutage  = "radio_outage"
	EventRandomOutage = "random_outage"
	EventFlap         = "flap"
	EventStaggered    = "staggered"
)

// Experiment is a set of outages applied to a run. Times are absolute
// virtual seconds.
type Experiment struct {
	Name        string            `yaml:"name"`
	Description string            `yaml:"description,omitempty"`
	Events      []EventConfig     `yaml:"events"`
	Randomized  *RandomizedConfig `yaml:"randomized,omitempty"`
}

// EventConfig defines a single chaos event
type EventConfig struct {
	Time     float64 `yaml:"time"`               // When to inject the failure
	Type     string  `yaml:"type"`               // Type of failure
	Target   string  `yaml:"target,omitempty"`   // radio_outage and flap
	Duration float64 `yaml:"duration,omitempty"` // How long each outage lasts, 0 = permanent

	MinNodes int      `yaml:"min_nodes,omitempty"`
	MaxNodes int      `yaml:"max_nodes,omitempty"`
	Period   float64  `yaml:"period,omitempty"` // flap cycle length
	Count    int      `yaml:"count,omitempty"`  // flap cycles
	Targets  []string `yaml:"targets,omitempty"`
	Interval float64  `yaml:"interval,omitempty"` // staggered spacing
}

// RandomizedConfig spreads outages over [Start, Stop) as a Poisson process
type RandomizedConfig struct {
	Rate        float64 `yaml:"rate"` // outages per second
	Start       float64 `yaml:"start"`
	Stop        float64 `yaml:"stop"`
	MinDuration float64 `yaml:"min_duration"`
	MaxDuration float64 `yaml:"max_duration"`
}

func invalid(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, simulator.ErrInvalidArgument)...)
}

func nonNegative(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return false
		}
	}
	return true
}

// LoadExperiment reads an experiment from a YAML file
func LoadExperiment(path string) (*Experiment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read experiment file: %w", err)
	}

	var exp Experiment
	if err := yaml.Unmarshal(data, &exp); err != nil {
		return nil, fmt.Errorf("failed to parse experiment: %w", err)
	}
	if err := exp.Validate(); err != nil {
		return nil, err
	}
	return &exp, nil
}

// Validate checks event parameters. Target names are checked when the
// experiment is scheduled.
func (e *Experiment) Validate() error {
	for i, ev := range e.Events {
		if !nonNegative(ev.Time, ev.Duration) {
			return invalid("event %d time %v duration %v", i, ev.Time, ev.Duration)
		}
		switch ev.Type {
		case EventRadioOutage:
			if ev.Target == "" {
				return invalid("event %d has no target", i)
			}
		case EventRandomOutage:
			if ev.MinNodes < 0 || ev.MaxNodes < ev.MinNodes {
				return invalid("event %d node range %d-%d", i, ev.MinNodes, ev.MaxNodes)
			}
		case EventFlap:
			if ev.Target == "" || ev.Count <= 0 || !nonNegative(ev.Period) || ev.Duration <= 0 || ev.Duration >= ev.Period {
				return invalid("event %d flap needs a target, count > 0 and 0 < duration < period", i)
			}
		case EventStaggered:
			if len(ev.Targets) == 0 || !nonNegative(ev.Interval) {
				return invalid("event %d staggered needs targets and interval >= 0", i)
			}
		default:
			return invalid("event %d unknown type %q", i, ev.Type)
		}
	}
	if r := e.Randomized; r != nil {
		if !nonNegative(r.Rate, r.Start, r.Stop, r.MinDuration, r.MaxDuration) ||
			r.Stop < r.Start || r.MaxDuration < r.MinDuration || r.MinDuration == 0 {
			return invalid("randomized %+v", *r)
		}
	}
	return nil
}

// ExperimentScheduler turns an experiment into scheduled outages
type ExperimentScheduler struct {
	injector *OutageInjector
}

// NewExperimentScheduler creates a scheduler that injects through injector
func NewExperimentScheduler(injector *OutageInjector) *ExperimentScheduler {
	return &ExperimentScheduler{injector: injector}
}

// Schedule validates exp and schedules every outage it describes. It
// returns the number of outages scheduled.
func (es *ExperimentScheduler) Schedule(exp Experiment) (int, error) {
	if err := exp.Validate(); err != nil {
		return 0, fmt.Errorf("experiment %q: %w", exp.Name, err)
	}

	scheduled := 0
	for i := range exp.Events {
		n, err := es.scheduleEvent(&exp.Events[i])
		scheduled += n
		if err != nil {
			return scheduled, fmt.Errorf("experiment %q event %d: %w", exp.Name, i, err)
		}
	}

	if exp.Randomized != nil {
		n, err := es.scheduleRandomized(exp.Randomized)
		scheduled += n
		if err != nil {
			return scheduled, fmt.Errorf("experiment %q: %w", exp.Name, err)
		}
	}

	es.injector.log.Info(context.Background(), "chaos experiment scheduled",
		logging.String("experiment", exp.Name),
		logging.Int("outages", scheduled))
	return scheduled, nil
}

// scheduleEvent schedules a single chaos event
func (es *ExperimentScheduler) scheduleEvent(ev *EventConfig) (int, error) {
	oi := es.injector
	switch ev.Type {
	case EventRadioOutage:
		if err := oi.InjectRadioOutage(ev.Target, ev.Time, ev.Duration); err != nil {
			return 0, err
		}
		return 1, nil

	case EventRandomOutage:
		chosen, err := oi.RandomOutages(ev.MinNodes, ev.MaxNodes, ev.Time, ev.Duration)
		return len(chosen), err

	case EventFlap:
		for k := 0; k < ev.Count; k++ {
			if err := oi.InjectRadioOutage(ev.Target, ev.Time+float64(k)*ev.Period, ev.Duration); err != nil {
				return k, err
			}
		}
		return ev.Count, nil

	case EventStaggered:
		for k, target := range ev.Targets {
			if err := oi.InjectRadioOutage(target, ev.Time+float64(k)*ev.Interval, ev.Duration); err != nil {
				return k, err
			}
		}
		return len(ev.Targets), nil

	default:
		return 0, fmt.Errorf("unknown failure type: %s", ev.Type)
	}
}

// scheduleRandomized draws exponential inter-arrival times and picks a
// random target and duration for each outage.
func (es *ExperimentScheduler) scheduleRandomized(cfg *RandomizedConfig) (int, error) {
	oi := es.injector
	targets := oi.Targets()
	if len(targets) == 0 || cfg.Rate == 0 {
		return 0, nil
	}

	count := 0
	t := cfg.Start
	for {
		t += oi.rng.ExpFloat64() / cfg.Rate
		if t >= cfg.Stop {
			break
		}
		target := targets[oi.rng.Intn(len(targets))]
		duration := cfg.MinDuration + oi.rng.Float64()*(cfg.MaxDuration-cfg.MinDuration)
		if err := oi.InjectRadioOutage(target, t, duration); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}
