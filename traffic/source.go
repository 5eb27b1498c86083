package traffic

import (
	"fmt"
	"math"
	"math/rand"
	"net/netip"

	"github.com/saintparish4/wifisim/nodes"
	"github.com/saintparish4/wifisim/simulator"
)

// Pattern selects how send times are spaced
type Pattern string

const (
	PatternConstant Pattern = "constant"
	PatternPoisson  Pattern = "poisson"
)

// Sender accepts packets for transmission. Implemented by mac.MAC.
type Sender interface {
	Send(pkt nodes.Packet)
}

// SendObserver is told about every packet a source emits.
type SendObserver interface {
	OnSend(pkt nodes.Packet)
}

// SourceConfig describes one application-level UDP sender.
type SourceConfig struct {
	Source      netip.Addr
	Destination netip.Addr
	PacketSize  int     // bytes
	RateBps     float64 // used when Interval is zero
	Interval    float64 // seconds between packets
	Start       float64
	Stop        float64
	MaxPackets  uint64 // 0 means unlimited
	Pattern     Pattern
	Seed        int64 // poisson only
}

// Validate rejects configurations that cannot produce a packet schedule
func (c SourceConfig) Validate() error {
	if c.PacketSize <= 0 {
		return fmt.Errorf("packet size %d: %w", c.PacketSize, simulator.ErrInvalidArgument)
	}
	if c.Interval == 0 && !(c.RateBps > 0) {
		return fmt.Errorf("rate %v bps: %w", c.RateBps, simulator.ErrInvalidArgument)
	}
	if math.IsNaN(c.Interval) || c.Interval < 0 || math.IsInf(c.Interval, 0) {
		return fmt.Errorf("interval %v: %w", c.Interval, simulator.ErrInvalidArgument)
	}
	if math.IsNaN(c.Start) || c.Start < 0 {
		return fmt.Errorf("start %v: %w", c.Start, simulator.ErrInvalidArgument)
	}
	if math.IsNaN(c.Stop) || c.Stop < c.Start {
		return fmt.Errorf("stop %v before start %v: %w", c.Stop, c.Start, simulator.ErrInvalidArgument)
	}
	if !c.Source.IsValid() || !c.Destination.IsValid() {
		return fmt.Errorf("flow %v -> %v: %w", c.Source, c.Destination, simulator.ErrInvalidArgument)
	}
	switch c.Pattern {
	case "", PatternConstant, PatternPoisson:
	default:
		return fmt.Errorf("pattern %q: %w", c.Pattern, simulator.ErrInvalidArgument)
	}
	return nil
}

// SendInterval returns the mean spacing between packets
func (c SourceConfig) SendInterval() float64 {
	if c.Interval > 0 {
		return c.Interval
	}
	return float64(c.PacketSize*8) / c.RateBps
}

// OfferedRateBps returns the offered load implied by size and interval
func (c SourceConfig) OfferedRateBps() float64 {
	return float64(c.PacketSize*8) / c.SendInterval()
}

// Source emits packets of one flow on the scheduler.
type Source struct {
	cfg      SourceConfig
	flow     nodes.FlowID
	interval float64
	sched    *simulator.Scheduler
	out      Sender
	observer SendObserver
	rng      *rand.Rand

	seq     uint64
	pending simulator.EventHandle
	stopped bool
}

// NewSource validates cfg. observer may be nil.
func NewSource(cfg SourceConfig, sched *simulator.Scheduler, out Sender, observer SendObserver) (*Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if sched == nil || out == nil {
		return nil, fmt.Errorf("source needs a scheduler and sender: %w", simulator.ErrInvalidArgument)
	}
	if cfg.Pattern == "" {
		cfg.Pattern = PatternConstant
	}

	s := &Source{
		cfg: cfg,
		flow: nodes.FlowID{
			Source:      cfg.Source,
			Destination: cfg.Destination,
			Protocol:    nodes.ProtocolUDP,
		},
		interval: cfg.SendInterval(),
		sched:    sched,
		out:      out,
		observer: observer,
	}
	if cfg.Pattern == PatternPoisson {
		s.rng = rand.New(rand.NewSource(cfg.Seed))
	}
	return s, nil
}

// Flow returns the id of the flow this source feeds
func (s *Source) Flow() nodes.FlowID {
	return s.flow
}

// Config returns the validated configuration
func (s *Source) Config() SourceConfig {
	return s.cfg
}

// Sent returns the number of packets emitted so far
func (s *Source) Sent() uint64 {
	return s.seq
}

// Start schedules the first packet at the configured start time.
func (s *Source) Start() error {
	first := s.cfg.Start
	if s.rng != nil {
		first += s.rng.ExpFloat64() * s.interval
	}
	if !s.allowed(first) {
		return nil
	}
	h, err := s.sched.ScheduleAt(first, s.emit)
	if err != nil {
		return fmt.Errorf("start source %s: %w", s.flow, err)
	}
	s.pending = h
	return nil
}

// Stop cancels the next pending send.
func (s *Source) Stop() {
	s.stopped = true
	s.sched.Cancel(s.pending)
}

func (s *Source) allowed(t float64) bool {
	if s.stopped || t >= s.cfg.Stop {
		return false
	}
	return s.cfg.MaxPackets == 0 || s.seq < s.cfg.MaxPackets
}

func (s *Source) emit() {
	now := s.sched.Now()
	pkt := nodes.Packet{
		Flow:     s.flow,
		Size:     s.cfg.PacketSize,
		SendTime: now,
		Seq:      s.seq,
	}
	s.seq++

	if s.observer != nil {
		s.observer.OnSend(pkt)
	}
	s.out.Send(pkt)

	next := s.nextTime(now)
	if !s.allowed(next) {
		return
	}
	h, err := s.sched.ScheduleAt(next, s.emit)
	if err != nil {
		return
	}
	s.pending = h
}

// nextTime computes constant send times from the packet index so rounding
// does not accumulate.
func (s *Source) nextTime(now float64) float64 {
	if s.rng != nil {
		return now + s.rng.ExpFloat64()*s.interval
	}
	return s.cfg.Start + float64(s.seq)*s.interval
}

func (s *Source) String() string {
	return fmt.Sprintf("Source(%s, %s, %.0f bps, %d bytes, %.3f-%.3fs)",
		s.flow, s.cfg.Pattern, s.cfg.OfferedRateBps(), s.cfg.PacketSize, s.cfg.Start, s.cfg.Stop)
}
