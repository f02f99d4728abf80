package socketio

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zishang520/engine.io/v2/types"
	sioclient "github.com/zishang520/socket.io-client-go/socket"

	"guildcloner/models"
)

type emitted struct {
	event   string
	payload any
}

func newTestBroadcaster(apiKey string) (*ProgressBroadcaster, *[]emitted) {
	b := NewProgressBroadcaster(apiKey, zerolog.Nop())
	var events []emitted
	b.emit = func(event string, payload any) {
		events = append(events, emitted{event, payload})
	}
	return b, &events
}

func TestProgressBroadcaster_EmitsSinkEvents(t *testing.T) {
	b, events := newTestBroadcaster("")
	defer b.Close()

	b.OnState("run_1", models.RunStateRunning)
	b.OnProgress("run_1", 0.25)
	b.OnStats("run_1", models.CloneStats{RolesCreated: 2})

	require.Len(t, *events, 3)
	assert.Equal(t, emitted{EventState, StateEvent{RunID: "run_1", State: models.RunStateRunning}}, (*events)[0])
	assert.Equal(t, emitted{EventProgress, ProgressEvent{RunID: "run_1", Progress: 0.25}}, (*events)[1])
	assert.Equal(t, EventStats, (*events)[2].event)
	assert.Equal(t, 2, (*events)[2].payload.(StatsEvent).Stats.RolesCreated)
}

func TestProgressBroadcaster_KeepsLatestEventPerKind(t *testing.T) {
	b, _ := newTestBroadcaster("")
	defer b.Close()

	b.OnProgress("run_1", 0.1)
	b.OnProgress("run_1", 0.6)

	b.mutex.RLock()
	defer b.mutex.RUnlock()
	assert.Equal(t, ProgressEvent{RunID: "run_1", Progress: 0.6}, b.latest[EventProgress])
	assert.NotContains(t, b.latest, EventState)
}

func TestProgressBroadcaster_Authorize(t *testing.T) {
	open, _ := newTestBroadcaster("")
	defer open.Close()
	assert.True(t, open.authorize(nil))

	guarded, _ := newTestBroadcaster("secret")
	defer guarded.Close()
	assert.True(t, guarded.authorize(map[string][]string{"x-cloner-api-key": {"secret"}}))
	assert.False(t, guarded.authorize(map[string][]string{"X-CLONER-API-KEY": {"wrong"}}))
	assert.False(t, guarded.authorize(map[string][]string{"X-CLONER-API-KEY": {""}}))
	assert.False(t, guarded.authorize(nil))
}

func TestProgressBroadcaster_ServesHandshake(t *testing.T) {
	b, _ := newTestBroadcaster("")
	defer b.Close()

	router := mux.NewRouter()
	b.RegisterWithRouter(router)
	srv := httptest.NewServer(router)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/socket.io/?EIO=4&transport=polling")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.HasPrefix(string(body), "0{"), "unexpected handshake %q", body)
	assert.Zero(t, b.ConnectedCount())
}

type dashboardClient struct {
	sock         *sioclient.Socket
	events       chan emitted
	connected    chan struct{}
	disconnected chan string
}

// dialDashboard connects a polling-only client that records every event it receives.
func dialDashboard(t *testing.T, url, apiKey string) *dashboardClient {
	t.Helper()
	opts := sioclient.DefaultOptions()
	opts.SetTransports(types.NewSet(sioclient.Polling))
	opts.SetReconnection(false)
	opts.SetForceNew(true)
	opts.SetAutoConnect(false)
	opts.SetExtraHeaders(http.Header{apiKeyHeader: {apiKey}})

	sock, err := sioclient.Connect(url, opts)
	require.NoError(t, err)

	c := &dashboardClient{
		sock:         sock,
		events:       make(chan emitted, 16),
		connected:    make(chan struct{}, 1),
		disconnected: make(chan string, 1),
	}
	sock.OnAny(func(args ...any) {
		if len(args) < 2 {
			return
		}
		if event, ok := args[0].(string); ok {
			c.events <- emitted{event, args[1]}
		}
	})
	require.NoError(t, sock.On("connect", func(...any) {
		c.connected <- struct{}{}
	}))
	require.NoError(t, sock.On("disconnect", func(args ...any) {
		reason := ""
		if len(args) > 0 {
			reason, _ = args[0].(string)
		}
		c.disconnected <- reason
	}))
	sock.Connect()
	t.Cleanup(func() { sock.Disconnect() })
	return c
}

func (c *dashboardClient) next(t *testing.T) emitted {
	t.Helper()
	select {
	case e := <-c.events:
		return e
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for dashboard event")
		return emitted{}
	}
}

func newBroadcasterServer(t *testing.T, apiKey string) (*ProgressBroadcaster, *httptest.Server) {
	t.Helper()
	b := NewProgressBroadcaster(apiKey, zerolog.Nop())
	router := mux.NewRouter()
	b.RegisterWithRouter(router)
	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		b.Close()
		srv.Close()
	})
	return b, srv
}

func TestProgressBroadcaster_ReplaysLatestEventsOnConnect(t *testing.T) {
	b, srv := newBroadcasterServer(t, "secret")
	b.OnState("run_1", models.RunStateRunning)
	b.OnProgress("run_1", 0.2)
	b.OnProgress("run_1", 0.5)

	client := dialDashboard(t, srv.URL, "secret")

	select {
	case <-client.connected:
	case <-time.After(5 * time.Second):
		t.Fatal("dashboard never connected")
	}

	state := client.next(t)
	assert.Equal(t, EventState, state.event)
	statePayload, ok := state.payload.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "run_1", statePayload["run_id"])
	assert.Equal(t, string(models.RunStateRunning), statePayload["state"])

	progress := client.next(t)
	assert.Equal(t, EventProgress, progress.event)
	progressPayload, ok := progress.payload.(map[string]any)
	require.True(t, ok)
	assert.InDelta(t, 0.5, progressPayload["progress"], 1e-9)

	assert.Eventually(t, func() bool { return b.ConnectedCount() == 1 }, 5*time.Second, 20*time.Millisecond)

	b.OnStats("run_1", models.CloneStats{RolesCreated: 3})
	live := client.next(t)
	assert.Equal(t, EventStats, live.event)
}

func TestProgressBroadcaster_DisconnectsInvalidAPIKey(t *testing.T) {
	b, srv := newBroadcasterServer(t, "secret")
	b.OnState("run_1", models.RunStateRunning)

	client := dialDashboard(t, srv.URL, "wrong")

	select {
	case reason := <-client.disconnected:
		assert.Equal(t, "io server disconnect", reason)
	case <-time.After(5 * time.Second):
		t.Fatal("connection with invalid api key was not dropped")
	}
	assert.Empty(t, client.events)
	assert.Zero(t, b.ConnectedCount())
}
