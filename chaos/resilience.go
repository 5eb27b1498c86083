package chaos

import (
	"context"
	"fmt"
	"sort"

	"github.com/saintparish4/wifisim/logging"
	"github.com/saintparish4/wifisim/nodes"
	"github.com/saintparish4/wifisim/simulator"
)

// Probe is what the health checker reads from a device. Implemented by
// mac.MAC.
type Probe interface {
	Device() *nodes.Device
	QueueLen() int
}

// HealthRecord is one change of a device's health
type HealthRecord struct {
	Target  string
	Time    float64
	Healthy bool
	Reason  string
}

// HealthChecker periodically marks devices unhealthy when their radio is
// off or their transmit queue grows past maxQueue. It runs on the
// scheduler and is not safe for concurrent use.
type HealthChecker struct {
	sched    *simulator.Scheduler
	log      logging.Logger
	interval float64
	maxQueue int

	probes    map[string]Probe
	unhealthy map[string]string
	history   []HealthRecord
	next      simulator.EventHandle
	running   bool
	checks    int
}

// NewHealthChecker creates a checker. maxQueue <= 0 disables the queue rule.
func NewHealthChecker(sched *simulator.Scheduler, interval float64, maxQueue int, log logging.Logger) (*HealthChecker, error) {
	if !nonNegative(interval) || interval == 0 {
		return nil, invalid("health check interval %v", interval)
	}
	if log == nil {
		log = logging.Noop()
	}
	return &HealthChecker{
		sched:     sched,
		log:       log,
		interval:  interval,
		maxQueue:  maxQueue,
		probes:    make(map[string]Probe),
		unhealthy: make(map[string]string),
	}, nil
}

// Watch adds a device to every later check
func (hc *HealthChecker) Watch(name string, p Probe) {
	hc.probes[name] = p
}

// Start schedules the first check at start and repeats every interval
func (hc *HealthChecker) Start(start float64) error {
	if hc.running {
		return nil
	}
	h, err := hc.sched.ScheduleAt(start, hc.tick)
	if err != nil {
		return fmt.Errorf("start health checks: %w", err)
	}
	hc.next = h
	hc.running = true
	return nil
}

// Stop cancels the pending check
func (hc *HealthChecker) Stop() {
	if !hc.running {
		return
	}
	hc.sched.Cancel(hc.next)
	hc.running = false
}

func (hc *HealthChecker) tick() {
	hc.PerformHealthChecks()
	h, err := hc.sched.Schedule(hc.interval, hc.tick)
	if err != nil {
		hc.running = false
		return
	}
	hc.next = h
}

// PerformHealthChecks checks all watched devices now
func (hc *HealthChecker) PerformHealthChecks() {
	now := hc.sched.Now()
	hc.checks++

	names := make([]string, 0, len(hc.probes))
	for name := range hc.probes {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		reason := hc.diagnose(hc.probes[name])
		prev, wasUnhealthy := hc.unhealthy[name]

		switch {
		case reason != "" && (!wasUnhealthy || prev != reason):
			hc.unhealthy[name] = reason
			hc.history = append(hc.history, HealthRecord{Target: name, Time: now, Reason: reason})
			hc.log.Warn(context.Background(), "device unhealthy",
				logging.Device(name), logging.String("reason", reason), logging.SimTime(now))
		case reason == "" && wasUnhealthy:
			delete(hc.unhealthy, name)
			hc.history = append(hc.history, HealthRecord{Target: name, Time: now, Healthy: true})
			hc.log.Info(context.Background(), "device healthy again",
				logging.Device(name), logging.SimTime(now))
		}
	}
}

func (hc *HealthChecker) diagnose(p Probe) string {
	if !p.Device().RadioEnabled() {
		return "radio off"
	}
	if hc.maxQueue > 0 && p.QueueLen() > hc.maxQueue {
		return fmt.Sprintf("queue above %d", hc.maxQueue)
	}
	return ""
}

// IsHealthy reports the result of the last check for name
func (hc *HealthChecker) IsHealthy(name string) bool {
	_, bad := hc.unhealthy[name]
	return !bad
}

// GetUnhealthyNodes returns the unhealthy device names in sorted order
func (hc *HealthChecker) GetUnhealthyNodes() []string {
	names := make([]string, 0, len(hc.unhealthy))
	for name := range hc.unhealthy {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// History returns health transitions in time order
func (hc *HealthChecker) History() []HealthRecord {
	return append([]HealthRecord(nil), hc.history...)
}

// Checks returns how many checks have run
func (hc *HealthChecker) Checks() int { return hc.checks }
