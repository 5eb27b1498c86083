package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONLoggerWritesFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "debug", Format: "json", Output: &buf})

	log.With(Device("uav0")).Info(context.Background(), "frame dropped",
		SimTime(1.5), Int("queue", 3), String("reason", "frame-error"))

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "frame dropped", rec["msg"])
	assert.Equal(t, "uav0", rec["device"])
	assert.Equal(t, 1.5, rec["sim_time"])
	assert.Equal(t, float64(3), rec["queue"])
	assert.Equal(t, "frame-error", rec["reason"])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "warn", Output: &buf})

	log.Info(context.Background(), "hidden")
	assert.Zero(t, buf.Len())

	log.Warn(context.Background(), "shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestNoop(t *testing.T) {
	log := Noop().With(String("k", "v"))
	log.Error(context.Background(), "ignored")
}

func TestWithRunLogger(t *testing.T) {
	var buf bytes.Buffer
	base := New(Config{Format: "json", Output: &buf})

	ctx, log, id := WithRunLogger(context.Background(), base)
	_, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.Equal(t, id, RunIDFromContext(ctx))

	// An existing run id is reused
	_, _, again := WithRunLogger(ctx, base)
	assert.Equal(t, id, again)

	log.Info(ctx, "run started")
	assert.Contains(t, buf.String(), id)

	assert.Empty(t, RunIDFromContext(context.Background()))
}
