// Package socketio pushes live clone progress to connected dashboards.
package socketio

import (
	"fmt"
	"strings"
	"sync"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/zishang520/socket.io/v2/socket"

	"guildcloner/models"
	"guildcloner/utils"
)

const (
	EventProgress = "clone_progress"
	EventStats    = "clone_stats"
	EventState    = "clone_state"

	apiKeyHeader = "X-CLONER-API-KEY"
)

type ProgressEvent struct {
	RunID    string  `json:"run_id"`
	Progress float64 `json:"progress"`
}

type StatsEvent struct {
	RunID string            `json:"run_id"`
	Stats models.CloneStats `json:"stats"`
}

type StateEvent struct {
	RunID string          `json:"run_id"`
	State models.RunState `json:"state"`
}

// ProgressBroadcaster is a run sink that fans events out to every connected socket.
// A socket that connects mid-run is first sent the latest event of each kind.
type ProgressBroadcaster struct {
	server *socket.Server
	apiKey string
	logger zerolog.Logger
	emit   func(event string, payload any)

	mutex   sync.RWMutex
	sockets map[socket.SocketId]*socket.Socket
	latest  map[string]any
}

// NewProgressBroadcaster builds the socket server. An empty apiKey accepts every connection.
func NewProgressBroadcaster(apiKey string, logger zerolog.Logger) *ProgressBroadcaster {
	server := socket.NewServer(nil, nil)
	b := &ProgressBroadcaster{
		server:  server,
		apiKey:  apiKey,
		logger:  logger.With().Str("component", "progress_broadcaster").Logger(),
		sockets: make(map[socket.SocketId]*socket.Socket),
		latest:  make(map[string]any),
	}
	b.emit = func(event string, payload any) {
		server.Emit(event, payload)
	}

	err := server.On("connection", func(sockets ...any) {
		sock := sockets[0].(*socket.Socket)
		b.handleConnection(sock)
	})
	utils.AssertInvariant(err == nil, fmt.Sprintf("Failed to register connection handler: %v", err))

	return b
}

func (b *ProgressBroadcaster) RegisterWithRouter(router *mux.Router) {
	router.PathPrefix("/socket.io/").Handler(b.server.ServeHandler(nil))
	b.logger.Info().Msg("Socket.IO progress endpoint registered on /socket.io/")
}

func (b *ProgressBroadcaster) Close() {
	b.server.Close(nil)
}

func (b *ProgressBroadcaster) ConnectedCount() int {
	b.mutex.RLock()
	defer b.mutex.RUnlock()
	return len(b.sockets)
}

func (b *ProgressBroadcaster) OnProgress(runID string, progress float64) {
	b.publish(EventProgress, ProgressEvent{RunID: runID, Progress: progress})
}

func (b *ProgressBroadcaster) OnStats(runID string, stats models.CloneStats) {
	b.publish(EventStats, StatsEvent{RunID: runID, Stats: stats})
}

func (b *ProgressBroadcaster) OnState(runID string, state models.RunState) {
	b.publish(EventState, StateEvent{RunID: runID, State: state})
}

func (b *ProgressBroadcaster) publish(event string, payload any) {
	b.mutex.Lock()
	b.latest[event] = payload
	b.mutex.Unlock()
	b.emit(event, payload)
}

// getSocketIOHeader performs a case-insensitive lookup for a header in the handshake headers
func getSocketIOHeader(headers map[string][]string, headerName string) (string, bool) {
	for key, value := range headers {
		if strings.EqualFold(key, headerName) && len(value) > 0 && value[0] != "" {
			return value[0], true
		}
	}
	return "", false
}

func (b *ProgressBroadcaster) authorize(headers map[string][]string) bool {
	if b.apiKey == "" {
		return true
	}
	key, ok := getSocketIOHeader(headers, apiKeyHeader)
	return ok && key == b.apiKey
}

func (b *ProgressBroadcaster) handleConnection(sock *socket.Socket) {
	log := b.logger.With().Str("socket_id", string(sock.Id())).Logger()
	if !b.authorize(sock.Handshake().Headers) {
		log.Warn().Msg("Rejecting dashboard connection: invalid api key")
		sock.Disconnect(true)
		return
	}

	b.mutex.Lock()
	b.sockets[sock.Id()] = sock
	replay := make(map[string]any, len(b.latest))
	for event, payload := range b.latest {
		replay[event] = payload
	}
	total := len(b.sockets)
	b.mutex.Unlock()
	log.Info().Int("connected", total).Msg("Dashboard connected")

	for _, event := range []string{EventState, EventProgress, EventStats} {
		if payload, ok := replay[event]; ok {
			if err := sock.Emit(event, payload); err != nil {
				log.Warn().Err(err).Str("event", event).Msg("Failed to replay event")
			}
		}
	}

	err := sock.On("disconnect", func(...any) {
		b.mutex.Lock()
		delete(b.sockets, sock.Id())
		remaining := len(b.sockets)
		b.mutex.Unlock()
		log.Info().Int("connected", remaining).Msg("Dashboard disconnected")
	})
	utils.AssertInvariant(err == nil, fmt.Sprintf("Failed to set up disconnection handler: %v", err))
}
