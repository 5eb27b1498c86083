package chaos

import (
	"fmt"
	"sort"
)

// Targets are the device names an experiment can pick from
type Targets struct {
	Stations     []string
	AccessPoints []string
}

// ExperimentBuilder creates an experiment starting at start
type ExperimentBuilder func(t Targets, start float64) Experiment

// ExperimentLibrary provides predefined experiments
type ExperimentLibrary struct {
	builders map[string]ExperimentBuilder
}

// NewExperimentLibrary creates a library with the predefined experiments
func NewExperimentLibrary() *ExperimentLibrary {
	lib := &ExperimentLibrary{
		builders: make(map[string]ExperimentBuilder),
	}

	lib.builders["ap-blackout"] = func(t Targets, start float64) Experiment {
		exp := Experiment{
			Name:        "ap-blackout",
			Description: "Every access point off for 1s",
		}
		for _, ap := range t.AccessPoints {
			exp.Events = append(exp.Events, EventConfig{Time: start, Type: EventRadioOutage, Target: ap, Duration: 1})
		}
		return exp
	}

	lib.builders["station-flap"] = func(t Targets, start float64) Experiment {
		exp := Experiment{
			Name:        "station-flap",
			Description: "First station drops for 0.3s once a second, 3 times",
		}
		if len(t.Stations) > 0 {
			exp.Events = []EventConfig{{
				Time: start, Type: EventFlap, Target: t.Stations[0],
				Duration: 0.3, Period: 1, Count: 3,
			}}
		}
		return exp
	}

	lib.builders["rolling-outage"] = func(t Targets, start float64) Experiment {
		exp := Experiment{
			Name:        "rolling-outage",
			Description: "Stations go off one after another, 0.5s each",
		}
		if len(t.Stations) > 0 {
			exp.Events = []EventConfig{{
				Time: start, Type: EventStaggered, Targets: t.Stations,
				Duration: 0.5, Interval: 1,
			}}
		}
		return exp
	}

	lib.builders["random-outage"] = func(t Targets, start float64) Experiment {
		return Experiment{
			Name:        "random-outage",
			Description: fmt.Sprintf("1-%d random devices off for 1s", len(t.Stations)+len(t.AccessPoints)),
			Events: []EventConfig{{
				Time: start, Type: EventRandomOutage, Duration: 1,
				MinNodes: 1, MaxNodes: len(t.Stations) + len(t.AccessPoints),
			}},
		}
	}

	lib.builders["outage-storm"] = func(t Targets, start float64) Experiment {
		return Experiment{
			Name:        "outage-storm",
			Description: "About two short outages per second for 5s",
			Randomized: &RandomizedConfig{
				Rate: 2, Start: start, Stop: start + 5,
				MinDuration: 0.1, MaxDuration: 0.5,
			},
		}
	}

	return lib
}

// Add registers a builder under name, replacing any existing one
func (l *ExperimentLibrary) Add(name string, b ExperimentBuilder) {
	l.builders[name] = b
}

// Get builds the named experiment for the given targets
func (l *ExperimentLibrary) Get(name string, t Targets, start float64) (Experiment, bool) {
	b, ok := l.builders[name]
	if !ok {
		return Experiment{}, false
	}
	return b(t, start), true
}

// List returns all experiment names in sorted order
func (l *ExperimentLibrary) List() []string {
	names := make([]string, 0, len(l.builders))
	for name := range l.builders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
