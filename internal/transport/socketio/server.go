// Package socketio provides the Socket.io server for client communication.
package socketio

import (
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/zishang520/socket.io/servers/socket/v3"
	"github.com/zishang520/socket.io/v3/pkg/types"

	"github.com/achupryn/atvbridge/internal/identity"
	"github.com/achupryn/atvbridge/internal/tv"
)

const (
	// maxExternalClients bounds concurrent non-localhost connections.
	maxExternalClients = 4

	// pushWindow collapses poll ticks and client refreshes that land in
	// quick succession into one broadcast.
	pushWindow = 150 * time.Millisecond
)

// Server handles Socket.io connections and events.
type Server struct {
	io         *socket.Server
	controller *tv.Controller
	identity   *identity.Service
	limiter    *ConnectionLimiter
	debounce   *PushDebouncer

	mu            sync.RWMutex
	clients       map[string]*socket.Socket
	lastAvailable bool
}

// NewServer creates a new Socket.io server over controller.
func NewServer(controller *tv.Controller, identitySvc *identity.Service) (*Server, error) {
	opts := socket.DefaultServerOptions()
	opts.SetPingTimeout(20 * time.Second)
	opts.SetPingInterval(25 * time.Second)
	opts.SetCors(&types.Cors{
		Origin:      "*",
		Credentials: true,
	})

	server := socket.NewServer(nil, opts)

	s := &Server{
		io:            server,
		controller:    controller,
		identity:      identitySvc,
		limiter:       NewConnectionLimiter(maxExternalClients),
		clients:       make(map[string]*socket.Socket),
		lastAvailable: controller.Snapshot().Available,
	}
	s.debounce = NewPushDebouncer(pushWindow, s.pushState, s.pushAvailability)

	s.setupHandlers()

	return s, nil
}

// setupHandlers registers all Socket.io event handlers.
func (s *Server) setupHandlers() {
	s.io.On("connection", func(clients ...any) {
		client := clients[0].(*socket.Socket)
		clientID := string(client.Id())
		remoteIP := clientIP(client)

		allowed, evictedID := s.limiter.TryAdd(clientID, remoteIP)
		if !allowed {
			client.Disconnect(true)
			return
		}
		if evictedID != "" {
			s.disconnectClient(evictedID)
		}

		log.Info().Str("id", clientID).Str("ip", remoteIP).Msg("Client connected")

		s.mu.Lock()
		s.clients[clientID] = client
		s.mu.Unlock()

		// Send initial state after small delay
		go func() {
			time.Sleep(100 * time.Millisecond)
			client.Emit("pushState", s.controller.Snapshot())
		}()

		client.On("disconnect", func(args ...any) {
			reason := ""
			if len(args) > 0 {
				if r, ok := args[0].(string); ok {
					reason = r
				}
			}
			log.Info().Str("id", clientID).Str("reason", reason).Msg("Client disconnected")

			s.limiter.Remove(clientID)
			s.mu.Lock()
			delete(s.clients, clientID)
			s.mu.Unlock()
		})

		client.On("getState", func(args ...any) {
			log.Debug().Str("id", clientID).Msg("getState")
			client.Emit("pushState", s.controller.Snapshot())
		})

		client.On("refresh", func(args ...any) {
			log.Debug().Str("id", clientID).Msg("refresh")
			update, err := s.controller.Refresh()
			if err != nil {
				log.Error().Err(err).Msg("Refresh failed")
				return
			}
			s.BroadcastUpdate(update)
		})

		client.On("launchApp", func(args ...any) {
			app := stringValue(args)
			log.Debug().Str("id", clientID).Str("app", app).Msg("launchApp")
			if app == "" {
				return
			}
			if _, err := s.controller.LaunchApp(app); err != nil {
				log.Error().Err(err).Str("app", app).Msg("LaunchApp failed")
			}
		})

		client.On("stopApp", func(args ...any) {
			app := stringValue(args)
			log.Debug().Str("id", clientID).Str("app", app).Msg("stopApp")
			if app == "" {
				return
			}
			if _, err := s.controller.StopApp(app); err != nil {
				log.Error().Err(err).Str("app", app).Msg("StopApp failed")
			}
		})

		client.On("turnOn", func(args ...any) {
			log.Debug().Str("id", clientID).Msg("turnOn")
			if err := s.controller.TurnOn(); err != nil {
				log.Error().Err(err).Msg("TurnOn failed")
			}
		})

		client.On("turnOff", func(args ...any) {
			log.Debug().Str("id", clientID).Msg("turnOff")
			if err := s.controller.TurnOff(); err != nil {
				log.Error().Err(err).Msg("TurnOff failed")
			}
		})

		client.On("getIdentity", func(args ...any) {
			log.Debug().Str("id", clientID).Msg("getIdentity")
			if s.identity != nil {
				client.Emit("pushIdentity", s.identity.GetInfo())
			}
		})
	})
}

// BroadcastUpdate schedules a push of the refresh result to all connected
// clients. Updates landing within the debounce window collapse into a
// single pushState; availability edges additionally fire pushAvailability.
func (s *Server) BroadcastUpdate(update tv.Update) {
	s.mu.Lock()
	edge := update.Available != s.lastAvailable
	s.lastAvailable = update.Available
	s.mu.Unlock()

	if edge {
		s.debounce.TriggerAvailability()
	} else {
		s.debounce.TriggerState()
	}
}

// pushState broadcasts the current snapshot to every client.
func (s *Server) pushState() {
	update := s.controller.Snapshot()
	s.io.Emit("pushState", update)

	s.mu.RLock()
	clientCount := len(s.clients)
	s.mu.RUnlock()
	log.Debug().
		Bool("available", update.Available).
		Str("state", string(update.State)).
		Int("clients", clientCount).
		Msg("Broadcast state")
}

// pushAvailability broadcasts the availability flag on its own event so
// thin clients can track reachability without parsing the state document.
func (s *Server) pushAvailability() {
	s.io.Emit("pushAvailability", map[string]bool{"available": s.controller.Snapshot().Available})
}

// disconnectClient forcibly disconnects a tracked client by ID.
func (s *Server) disconnectClient(clientID string) {
	s.mu.Lock()
	client, ok := s.clients[clientID]
	delete(s.clients, clientID)
	s.mu.Unlock()

	if ok {
		log.Info().Str("id", clientID).Msg("Evicting oldest external client")
		client.Disconnect(true)
	}
}

// stringValue extracts a string argument passed either bare or wrapped in
// a {"value": ...} object.
func stringValue(args []any) string {
	if len(args) == 0 {
		return ""
	}
	if s, ok := args[0].(string); ok {
		return s
	}
	if m, ok := args[0].(map[string]interface{}); ok {
		if s, ok := m["value"].(string); ok {
			return s
		}
	}
	return ""
}

// clientIP extracts the remote IP of a connected socket.
func clientIP(client *socket.Socket) string {
	if handshake := client.Handshake(); handshake != nil {
		return handshake.Address
	}
	return ""
}

// ServeHTTP implements http.Handler for the Socket.io server.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.io.ServeHandler(nil).ServeHTTP(w, r)
}

// Close stops pending pushes and closes the Socket.io server.
func (s *Server) Close() error {
	s.debounce.Stop()
	s.io.Close(nil)
	return nil
}
