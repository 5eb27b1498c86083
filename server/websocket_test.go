package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/saintparish4/wifisim/observability"
	"github.com/saintparish4/wifisim/qos"
	"github.com/saintparish4/wifisim/scenario"
)

type runResult struct {
	report qos.Report
	err    error
}

func startServer(t *testing.T, opts Options) (*WebSocketServer, *httptest.Server, <-chan runResult) {
	t.Helper()
	cfg := scenario.SingleUAV()
	cfg.Duration = 2
	cfg.Flows[0].Stop = 2

	sim, err := scenario.Build(cfg, scenario.Options{Metrics: opts.Metrics})
	require.NoError(t, err)

	ws := NewWebSocketServer(sim, opts)
	ts := httptest.NewServer(NewHTTPHandler(ws))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan runResult, 1)
	go func() {
		r, err := ws.Run(ctx)
		done <- runResult{r, err}
	}()
	t.Cleanup(func() {
		cancel()
		ts.Close()
	})
	return ws, ts, done
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestStreamsUntilFinished(t *testing.T) {
	ws, ts, done := startServer(t, Options{Tick: 5 * time.Millisecond, Speed: 100})
	conn := dial(t, ts)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(10*time.Second)))

	var initial Update
	require.NoError(t, conn.ReadJSON(&initial))
	assert.Equal(t, MsgInitialState, initial.Type)
	assert.False(t, initial.Running)
	require.NotNil(t, initial.State)
	assert.Equal(t, 0.0, initial.State.Time)
	assert.Len(t, initial.State.Devices, 2)

	require.NoError(t, conn.WriteJSON(Command{Type: "START"}))

	updates := 0
	var last Update
	for {
		var u Update
		require.NoError(t, conn.ReadJSON(&u))
		if u.Type == MsgStateUpdate {
			updates++
			require.NotNil(t, u.State)
			assert.LessOrEqual(t, u.State.Time, 2.0)
		}
		if u.Type == MsgFinished {
			last = u
			break
		}
	}
	assert.Greater(t, updates, 0)
	require.NotNil(t, last.State)
	assert.True(t, last.State.Done)
	assert.Equal(t, 2.0, last.State.Time)
	assert.False(t, last.Running)

	select {
	case res := <-done:
		require.NoError(t, res.err)
		require.Len(t, res.report.Flows, 1)
		assert.Greater(t, res.report.Flows[0].RxPackets, uint64(0))
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after the simulation finished")
	}

	final, ok := ws.FinalReport()
	require.True(t, ok)
	assert.Len(t, final.Flows, 1)
}

func TestControlEndpoint(t *testing.T) {
	ws, ts, _ := startServer(t, Options{Tick: 5 * time.Millisecond})

	post := func(body string) *http.Response {
		resp, err := http.Post(ts.URL+"/api/control", "application/json", strings.NewReader(body))
		require.NoError(t, err)
		resp.Body.Close()
		return resp
	}

	assert.Equal(t, http.StatusAccepted, post(`{"type":"SET_SPEED","speed":4}`).StatusCode)
	assert.Equal(t, http.StatusAccepted, post(`{"type":"INJECT_OUTAGE","target":"uav0","duration":1}`).StatusCode)
	assert.Equal(t, http.StatusAccepted, post(`{"type":"REQUEST_STATE"}`).StatusCode)
	assert.Equal(t, http.StatusBadRequest, post(`{not json`).StatusCode)

	assert.Eventually(t, func() bool {
		return ws.Latest().Speed == 4
	}, 2*time.Second, 5*time.Millisecond)
	assert.False(t, ws.Latest().Running)

	resp, err := http.Get(ts.URL + "/api/control")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/api/state")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"run_id"`)
	assert.Contains(t, string(body), `"single_uav"`)

	resp, err = http.Get(ts.URL + "/api/state?format=msgpack")
	require.NoError(t, err)
	assert.Equal(t, "application/msgpack", resp.Header.Get("Content-Type"))
	dec := msgpack.NewDecoder(resp.Body)
	dec.SetCustomStructTag("json")
	var packed Update
	require.NoError(t, dec.Decode(&packed))
	resp.Body.Close()
	require.NotNil(t, packed.State)
	assert.Equal(t, ws.Latest().State.RunID, packed.State.RunID)
	assert.Len(t, packed.State.Devices, 2)

	resp, err = http.Get(ts.URL + "/api/export?format=csv")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode, "nothing to export before the run finishes")

	resp, err = http.Get(ts.URL + "/nope")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMetricsRoute(t *testing.T) {
	metrics, err := observability.NewSimCollector(prometheus.NewRegistry())
	require.NoError(t, err)
	_, ts, _ := startServer(t, Options{Tick: 5 * time.Millisecond, Metrics: metrics})

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "wifisim_events_executed_total")

	_, bare, _ := startServer(t, Options{Tick: 5 * time.Millisecond})
	resp, err = http.Get(bare.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
