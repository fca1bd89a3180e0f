// Package main is the entry point for the ATV bridge backend.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/achupryn/atvbridge/internal/adb"
	"github.com/achupryn/atvbridge/internal/identity"
	"github.com/achupryn/atvbridge/internal/infra/history"
	"github.com/achupryn/atvbridge/internal/transport/mqtt"
	"github.com/achupryn/atvbridge/internal/transport/socketio"
	"github.com/achupryn/atvbridge/internal/tv"
	"github.com/achupryn/atvbridge/internal/version"
)

func main() {
	// Command line flags
	port := flag.String("port", "3001", "HTTP server port")
	host := flag.String("host", "", "Android TV / Fire TV device IP (required)")
	adbPort := flag.Int("adb-port", 5555, "Device debug port")
	adbKey := flag.String("adbkey", "", "Path to the RSA private key for direct connections (generated when missing)")
	adbServerHost := flag.String("adb-server-host", "", "ADB server host; empty connects to the device directly")
	adbServerPort := flag.Int("adb-server-port", 5037, "ADB server port")
	pollInterval := flag.Duration("poll-interval", 5*time.Second, "Device state poll interval")
	mqttBroker := flag.String("mqtt-broker", "", "MQTT broker URL, e.g. tcp://localhost:1883 (empty disables MQTT)")
	mqttPrefix := flag.String("mqtt-prefix", "atvbridge", "MQTT topic prefix")
	historyPath := flag.String("history-db", "", "Path to the sqlite transition history (empty disables history)")
	identityPath := flag.String("identity-config", "atvbridge-identity.json", "Path to the persisted bridge identity")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	// Setup logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	if *host == "" {
		flag.Usage()
		log.Fatal().Msg("-host is required")
	}
	target := fmt.Sprintf("%s:%d", *host, *adbPort)

	// Print startup banner
	versionInfo := version.GetInfo()
	log.Info().Msg("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	log.Info().Msgf("  %s", versionInfo.String())
	log.Info().Msg("  Android TV Bridge Backend")
	log.Info().Msg("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	log.Info().
		Str("port", *port).
		Str("target", target).
		Str("adb_server", *adbServerHost).
		Dur("poll_interval", *pollInterval).
		Bool("mqtt", *mqttBroker != "").
		Bool("history", *historyPath != "").
		Msg("Configuration")

	// Persisted bridge identity
	identitySvc, err := identity.NewService(*identityPath, target)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load bridge identity")
	}

	// Connection manager: direct wire transport or local ADB server proxy
	var manager adb.Manager
	if *adbServerHost != "" {
		manager = adb.NewServerManager(target, adb.NewServerClient(*adbServerHost, *adbServerPort))
	} else {
		manager = adb.NewDirectManager(target, *adbKey, adb.NewNetTransport())
	}

	// First connect is allowed to fail; the poll loop keeps retrying.
	if manager.Connect(true) {
		log.Info().Str("target", target).Msg("Device connected")
	} else {
		log.Warn().Str("target", target).Msg("Device not reachable yet, will retry")
	}

	controller := tv.NewController(manager)

	// Transition history
	var store *history.Store
	if *historyPath != "" {
		store = history.NewStore(*historyPath)
		if err := store.Open(); err != nil {
			log.Fatal().Err(err).Msg("Failed to open history database")
		}
		defer store.Close()
	}

	// MQTT publisher
	var publisher *mqtt.Publisher
	if *mqttBroker != "" {
		publisher = mqtt.NewPublisher(*mqttBroker, "atvbridge-"+identitySvc.GetInfo().UUID, *mqttPrefix)
		if err := publisher.Connect(); err != nil {
			log.Warn().Err(err).Msg("MQTT broker not reachable, continuing without it")
			publisher = nil
		} else {
			defer publisher.Close()
		}
	}

	// Create Socket.io server
	socketServer, err := socketio.NewServer(controller, identitySvc)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Socket.io server")
	}
	defer socketServer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Poll loop
	go pollLoop(ctx, *pollInterval, controller, socketServer, publisher, store)

	// Setup HTTP server
	mux := http.NewServeMux()

	// Socket.io endpoint
	mux.Handle("/socket.io/", socketServer)

	// Health check
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if !controller.Available() {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"ok","device":"unavailable"}`))
			return
		}
		w.Write([]byte(`{"status":"ok","device":"available"}`))
	})

	// Version endpoint
	mux.HandleFunc("/api/v1/version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(version.GetInfo())
	})

	// Device state endpoint (REST fallback)
	mux.HandleFunc("/api/v1/state", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(controller.Snapshot())
	})

	// Transition history endpoint
	mux.HandleFunc("/api/v1/history", func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			http.Error(w, "history disabled", http.StatusNotFound)
			return
		}
		transitions, err := store.Recent(target, 50)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(transitions)
	})

	// Start HTTP server
	server := &http.Server{
		Addr:         ":" + *port,
		Handler:      corsMiddleware(mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		log.Info().Msg("Shutting down...")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server shutdown error")
		}
	}()

	log.Info().Str("addr", ":"+*port).Msg("HTTP server listening")
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("HTTP server error")
	}

	log.Info().Msg("Server stopped")
}

// pollLoop drives one refresh per tick and fans changed results out to the
// push channels and the transition history.
func pollLoop(ctx context.Context, interval time.Duration, controller *tv.Controller, socketServer *socketio.Server, publisher *mqtt.Publisher, store *history.Store) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := controller.Snapshot()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		update, err := controller.Refresh()
		if err != nil {
			log.Error().Err(err).Msg("Refresh failed")
			continue
		}
		if updatesEqual(update, last) {
			continue
		}
		last = update

		socketServer.BroadcastUpdate(update)
		if publisher != nil {
			if err := publisher.PublishUpdate(update); err != nil {
				log.Warn().Err(err).Msg("MQTT publish failed")
			}
		}
		if store != nil {
			if err := store.Record(controller.Target(), update.Available, string(update.State)); err != nil {
				log.Warn().Err(err).Msg("History record failed")
			}
		}
	}
}

func updatesEqual(a, b tv.Update) bool {
	if a.Available != b.Available || a.State != b.State || a.CurrentApp != b.CurrentApp {
		return false
	}
	if len(a.RunningApps) != len(b.RunningApps) {
		return false
	}
	for i := range a.RunningApps {
		if a.RunningApps[i] != b.RunningApps[i] {
			return false
		}
	}
	return true
}
