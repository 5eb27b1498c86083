package mac

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/netip"

	"github.com/saintparish4/wifisim/channel"
	"github.com/saintparish4/wifisim/logging"
	"github.com/saintparish4/wifisim/nodes"
	"github.com/saintparish4/wifisim/simulator"
)

// ErrMissingDependency is returned when Env lacks a required collaborator.
var ErrMissingDependency = errors.New("missing mac dependency")

// State of the per-device transmitter
type State string

const (
	StateIdle         State = "IDLE"
	StateTransmitting State = "TRANSMITTING"
)

// Default MAC parameters.
const (
	DefaultPropagationDelay = 1e-6   // seconds
	DefaultBeaconInterval   = 0.1024 // 100 TU
	DefaultBeaconSize       = 200    // bytes
)

// SignalObserver receives one sample per attempted reception.
type SignalObserver interface {
	OnSignalSample(deviceID int, time, signalDbm float64)
}

// Receiver consumes data packets addressed to a device.
type Receiver interface {
	Receive(pkt nodes.Packet, now float64)
}

// Observer is notified of MAC activity. Used for metrics.
type Observer interface {
	FrameTransmitted(device string)
	FrameReceived(device string, result string)
	QueueDepth(device string, depth int)
}

// Config holds MAC timing parameters.
type Config struct {
	PropagationDelay float64
	ControlMCS       channel.MCS
	BeaconInterval   float64 // 0 disables beacons
	BeaconSize       int
}

// DefaultConfig returns the standard beacon interval and a 1 us delay
func DefaultConfig() Config {
	return Config{
		PropagationDelay: DefaultPropagationDelay,
		ControlMCS:       channel.MCS0,
		BeaconInterval:   DefaultBeaconInterval,
		BeaconSize:       DefaultBeaconSize,
	}
}

// Validate rejects negative timings and invalid control rates
func (c Config) Validate() error {
	if math.IsNaN(c.PropagationDelay) || c.PropagationDelay < 0 {
		return fmt.Errorf("propagation delay %v: %w", c.PropagationDelay, simulator.ErrInvalidArgument)
	}
	if math.IsNaN(c.BeaconInterval) || c.BeaconInterval < 0 {
		return fmt.Errorf("beacon interval %v: %w", c.BeaconInterval, simulator.ErrInvalidArgument)
	}
	if c.BeaconInterval > 0 && c.BeaconSize <= 0 {
		return fmt.Errorf("beacon size %d: %w", c.BeaconSize, simulator.ErrInvalidArgument)
	}
	if !c.ControlMCS.Valid() {
		return fmt.Errorf("control mcs %d: %w", c.ControlMCS, simulator.ErrInvalidArgument)
	}
	return nil
}

// Env bundles the collaborators a MAC is constructed with. Signals,
// Observer and Logger are optional.
type Env struct {
	Scheduler *simulator.Scheduler
	Channel   *channel.Model
	Rates     channel.RateManager
	Medium    *Medium
	Config    Config
	Signals   SignalObserver
	Observer  Observer
	Logger    logging.Logger
}

// Stats are per-device MAC counters
type Stats struct {
	Enqueued    int64
	Transmitted int64
	Delivered   int64 // frames this device received successfully
	Dropped     map[channel.Reason]int64
	MaxQueue    int
}

// MAC is the medium access layer of one device.
type MAC struct {
	dev      *nodes.Device
	env      Env
	log      logging.Logger
	state    State
	queue    []Frame
	receiver Receiver
	beacon   simulator.EventHandle
	stats    Stats
}

// New attaches a MAC for dev to env.Medium.
func New(dev *nodes.Device, env Env) (*MAC, error) {
	switch {
	case dev == nil:
		return nil, fmt.Errorf("device: %w", ErrMissingDependency)
	case env.Scheduler == nil:
		return nil, fmt.Errorf("scheduler: %w", ErrMissingDependency)
	case env.Channel == nil:
		return nil, fmt.Errorf("channel model: %w", ErrMissingDependency)
	case env.Rates == nil:
		return nil, fmt.Errorf("rate manager: %w", ErrMissingDependency)
	case env.Medium == nil:
		return nil, fmt.Errorf("medium: %w", ErrMissingDependency)
	}
	if err := env.Config.Validate(); err != nil {
		return nil, err
	}
	if env.Logger == nil {
		env.Logger = logging.Noop()
	}

	m := &MAC{
		dev:   dev,
		env:   env,
		log:   env.Logger.With(logging.Device(dev.Name())),
		state: StateIdle,
		stats: Stats{Dropped: make(map[channel.Reason]int64)},
	}
	env.Medium.attach(m)
	return m, nil
}

// Device returns the device this MAC serves
func (m *MAC) Device() *nodes.Device {
	return m.dev
}

// State returns the transmitter state
func (m *MAC) State() State {
	return m.state
}

// QueueLen returns the number of frames waiting behind the current one
func (m *MAC) QueueLen() int {
	return len(m.queue)
}

// Stats returns a copy of the counters
func (m *MAC) Stats() Stats {
	s := m.stats
	s.Dropped = make(map[channel.Reason]int64, len(m.stats.Dropped))
	for k, v := range m.stats.Dropped {
		s.Dropped[k] = v
	}
	return s
}

// SetReceiver installs the consumer of data packets addressed to this device
func (m *MAC) SetReceiver(r Receiver) {
	m.receiver = r
}

// Send queues a data packet for transmission to pkt.Flow.Destination.
func (m *MAC) Send(pkt nodes.Packet) {
	m.enqueue(Frame{
		Kind:   FrameData,
		Source: m.dev,
		Dest:   pkt.Flow.Destination,
		Size:   pkt.Size,
		Packet: pkt,
	})
}

func (m *MAC) enqueue(f Frame) {
	m.queue = append(m.queue, f)
	m.stats.Enqueued++
	if len(m.queue) > m.stats.MaxQueue {
		m.stats.MaxQueue = len(m.queue)
	}
	m.reportQueue()
	m.tryTransmit()
}

// tryTransmit starts the head-of-line frame if the transmitter is free.
func (m *MAC) tryTransmit() {
	if m.state != StateIdle || len(m.queue) == 0 || !m.dev.RadioEnabled() {
		return
	}

	f := m.queue[0]
	m.queue[0] = Frame{}
	m.queue = m.queue[1:]
	m.reportQueue()

	if f.IsBroadcast() {
		f.MCS = m.env.Config.ControlMCS
	} else {
		f.MCS = m.rateFor(f.Dest)
	}

	rate := f.MCS.DataRateBps(m.env.Channel.WidthMHz())
	duration := float64(f.Size*8) / rate

	m.state = StateTransmitting
	if _, err := m.env.Scheduler.Schedule(duration, func() { m.completeTransmit(f) }); err != nil {
		// Unreachable: every valid MCS and width has a positive rate.
		m.state = StateIdle
		m.log.Error(context.Background(), "schedule transmission", logging.Err(err))
	}
}

func (m *MAC) rateFor(dest netip.Addr) channel.MCS {
	for _, peer := range m.env.Medium.macs {
		if peer.dev.Address == dest {
			return m.env.Rates.SelectMCS(m.dev, peer.dev)
		}
	}
	return m.env.Rates.SelectMCS(m.dev, m.dev)
}

// completeTransmit delivers f to every other powered device on the medium.
func (m *MAC) completeTransmit(f Frame) {
	now := m.env.Scheduler.Now()
	m.stats.Transmitted++
	if m.env.Observer != nil {
		m.env.Observer.FrameTransmitted(m.dev.Name())
	}

	for _, peer := range m.env.Medium.macs {
		if peer == m || !peer.dev.RadioEnabled() {
			continue
		}
		peer.hear(f, now)
	}

	m.state = StateIdle
	m.tryTransmit()
}

// hear evaluates one reception attempt of f at this device.
func (m *MAC) hear(f Frame, now float64) {
	out := m.env.Channel.Evaluate(f.Source, m.dev, f.Source.TxPowerDbm, f.MCS)

	if m.env.Signals != nil {
		m.env.Signals.OnSignalSample(m.dev.ID, now, out.SignalDbm)
	}
	if m.env.Observer != nil {
		m.env.Observer.FrameReceived(m.dev.Name(), string(out.Reason))
	}

	if !out.Delivered {
		m.stats.Dropped[out.Reason]++
		if f.AddressedTo(m.dev) && f.Kind == FrameData {
			m.log.Debug(context.Background(), "frame lost",
				logging.SimTime(now),
				logging.String("reason", string(out.Reason)),
				logging.Float("signal_dbm", out.SignalDbm),
				logging.Any("seq", f.Packet.Seq))
		}
		return
	}

	m.env.Rates.Observe(f.Source, m.dev, out.SignalDbm)
	if !f.AddressedTo(m.dev) {
		return
	}
	m.stats.Delivered++

	if f.Kind != FrameData {
		return
	}
	pkt := f.Packet
	_, err := m.env.Scheduler.Schedule(m.env.Config.PropagationDelay, func() {
		if m.receiver != nil {
			m.receiver.Receive(pkt, m.env.Scheduler.Now())
		}
	})
	if err != nil {
		m.log.Error(context.Background(), "schedule receive", logging.Err(err))
	}
}

// StartBeacons makes this device broadcast a beacon every configured
// interval from start on. It is a no-op when beacons are disabled.
func (m *MAC) StartBeacons(start float64) error {
	interval := m.env.Config.BeaconInterval
	if interval <= 0 {
		return nil
	}
	var tick func()
	tick = func() {
		if m.dev.RadioEnabled() {
			m.enqueue(Frame{
				Kind:   FrameBeacon,
				Source: m.dev,
				Dest:   nodes.BroadcastAddress,
				Size:   m.env.Config.BeaconSize,
			})
		}
		h, err := m.env.Scheduler.Schedule(interval, tick)
		if err != nil {
			m.log.Error(context.Background(), "schedule beacon", logging.Err(err))
			return
		}
		m.beacon = h
	}

	h, err := m.env.Scheduler.ScheduleAt(start, tick)
	if err != nil {
		return fmt.Errorf("start beacons on %s: %w", m.dev.Name(), err)
	}
	m.beacon = h
	return nil
}

// StopBeacons cancels the pending beacon
func (m *MAC) StopBeacons() {
	m.env.Scheduler.Cancel(m.beacon)
}

// SetRadio turns the device radio on or off. Frames queued while the radio
// is off are sent once it comes back; a transmission already on air
// completes.
func (m *MAC) SetRadio(state nodes.RadioState) {
	if !m.dev.SetRadio(state) {
		return
	}
	m.log.Info(context.Background(), "radio state changed",
		logging.SimTime(m.env.Scheduler.Now()),
		logging.String("radio", string(state)),
		logging.Int("queued", len(m.queue)))
	if state == nodes.RadioOn {
		m.tryTransmit()
	}
}

func (m *MAC) reportQueue() {
	if m.env.Observer != nil {
		m.env.Observer.QueueDepth(m.dev.Name(), len(m.queue))
	}
}
