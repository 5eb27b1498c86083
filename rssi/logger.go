package rssi

import "sort"

// Sample is one signal strength observation at a device
type Sample struct {
	Time      float64
	DeviceID  int
	SignalDbm float64
}

// Logger records every attempted reception per device, in arrival order.
// Samples are neither deduplicated nor aggregated.
type Logger struct {
	samples map[int][]Sample
	total   int
	filter  map[int]bool
}

// NewLogger records samples for the given devices only, or for every
// device when none are given.
func NewLogger(devices ...int) *Logger {
	l := &Logger{samples: make(map[int][]Sample)}
	if len(devices) > 0 {
		l.filter = make(map[int]bool, len(devices))
		for _, id := range devices {
			l.filter[id] = true
		}
	}
	return l
}

// OnSignalSample appends one sample.
func (l *Logger) OnSignalSample(deviceID int, time, signalDbm float64) {
	if l.filter != nil && !l.filter[deviceID] {
		return
	}
	l.samples[deviceID] = append(l.samples[deviceID], Sample{
		Time:      time,
		DeviceID:  deviceID,
		SignalDbm: signalDbm,
	})
	l.total++
}

// Samples returns the samples of one device. The slice must not be modified.
func (l *Logger) Samples(deviceID int) []Sample {
	return l.samples[deviceID]
}

// Devices returns the ids of devices with at least one sample, ascending
func (l *Logger) Devices() []int {
	ids := make([]int, 0, len(l.samples))
	for id := range l.samples {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Latest returns the most recent sample of a device
func (l *Logger) Latest(deviceID int) (Sample, bool) {
	s := l.samples[deviceID]
	if len(s) == 0 {
		return Sample{}, false
	}
	return s[len(s)-1], true
}

// Len returns the total number of samples recorded
func (l *Logger) Len() int {
	return l.total
}
