package rssi

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppendsInOrder(t *testing.T) {
	l := NewLogger()

	l.OnSignalSample(1, 0.1, -40)
	l.OnSignalSample(0, 0.1, -70)
	l.OnSignalSample(1, 0.2, -41)
	// Identical samples are kept
	l.OnSignalSample(1, 0.2, -41)

	assert.Equal(t, 4, l.Len())
	assert.Equal(t, []int{0, 1}, l.Devices())

	got := l.Samples(1)
	assert.Len(t, got, 3)
	assert.Equal(t, Sample{Time: 0.1, DeviceID: 1, SignalDbm: -40}, got[0])
	assert.Equal(t, got[1], got[2])

	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i].Time, got[i-1].Time)
	}

	latest, ok := l.Latest(0)
	assert.True(t, ok)
	assert.Equal(t, -70.0, latest.SignalDbm)

	_, ok = l.Latest(9)
	assert.False(t, ok)
	assert.Empty(t, l.Samples(9))
}

func TestFilter(t *testing.T) {
	l := NewLogger(0, 1)

	l.OnSignalSample(0, 1, -50)
	l.OnSignalSample(2, 1, -50)
	l.OnSignalSample(1, 1, -60)

	assert.Equal(t, 2, l.Len())
	assert.Equal(t, []int{0, 1}, l.Devices())
	assert.Empty(t, l.Samples(2))
}
