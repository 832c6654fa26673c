// Package web exposes the follow-target simulator over HTTP: start, stop and
// reconfigure runs, read the status, and watch published target locations on
// a WebSocket.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Bucknalla/go-follow-target-sim/sim"
	"github.com/Bucknalla/go-follow-target-sim/target"
)

// Server owns at most one simulator and the clients watching it
type Server struct {
	mu         sync.Mutex
	simulator  *sim.Simulator
	baseConfig sim.Config // defaults for keys missing from request bodies
	lastConfig sim.Config
	vehicle    sim.Vehicle
	logger     *slog.Logger

	registry *prometheus.Registry
	metrics  *sim.Metrics

	upgrader  websocket.Upgrader
	clientsMu sync.Mutex
	clients   map[*websocket.Conn]bool
	broadcast chan sim.Publication
}

// NewServer creates a server whose simulators drive vehicle. base is the
// configuration an empty start request runs and the one request bodies are
// merged into. Metrics are registered against reg, or a fresh registry when
// reg is nil.
func NewServer(base sim.Config, vehicle sim.Vehicle, reg *prometheus.Registry) (*Server, error) {
	if err := base.Validate(); err != nil {
		return nil, err
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	metrics, err := sim.NewMetrics(reg)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	return &Server{
		baseConfig: base,
		lastConfig: base,
		vehicle:    vehicle,
		registry:   reg,
		metrics:    metrics,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins for development
			},
		},
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan sim.Publication, 64),
	}, nil
}

// SetLogger sets the logger handed to every simulator the server starts
func (ws *Server) SetLogger(logger *slog.Logger) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	ws.logger = logger
}

// Handler returns the router serving the API and metrics
func (ws *Server) Handler() http.Handler {
	r := mux.NewRouter()

	// API routes live on the root router so a method mismatch is a 405
	r.HandleFunc("/api/start", ws.handleStartSimulator).Methods(http.MethodPost)
	r.HandleFunc("/api/stop", ws.handleStopSimulator).Methods(http.MethodPost)
	r.HandleFunc("/api/status", ws.handleGetStatus).Methods(http.MethodGet)
	r.HandleFunc("/api/config", ws.handleUpdateConfig).Methods(http.MethodPost)
	r.HandleFunc("/api/models", ws.handleGetModels).Methods(http.MethodGet)
	r.HandleFunc("/api/ws", ws.handleWebSocket)

	r.Handle("/metrics", promhttp.HandlerFor(ws.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	return r
}

// ListenAndServe serves on addr until ctx is cancelled, then stops any
// running simulator.
func (ws *Server) ListenAndServe(ctx context.Context, addr string) error {
	go ws.broadcastToClients(ctx)

	server := &http.Server{
		Addr:         addr,
		Handler:      ws.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Starting follow-target web server on %s", addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := server.Shutdown(shutdownCtx)

	ws.mu.Lock()
	if ws.simulator != nil && ws.simulator.IsRunning() {
		ws.simulator.Stop()
	}
	ws.mu.Unlock()

	return err
}

func (ws *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := ws.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ws.clientsMu.Lock()
	ws.clients[conn] = true
	log.Printf("Client connected. Total clients: %d", len(ws.clients))

	// Send current status immediately
	ws.mu.Lock()
	simulator := ws.simulator
	ws.mu.Unlock()
	if simulator != nil {
		if err := conn.WriteJSON(map[string]interface{}{
			"type": "status",
			"data": simulator.GetStatus(),
		}); err != nil {
			log.Printf("Error sending status: %v", err)
		}
	}
	ws.clientsMu.Unlock()

	// Drain client messages until the connection closes
	for {
		var msg map[string]interface{}
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}
		log.Printf("Received message: %v", msg)
	}

	ws.clientsMu.Lock()
	delete(ws.clients, conn)
	log.Printf("Client disconnected. Total clients: %d", len(ws.clients))
	ws.clientsMu.Unlock()
}

func (ws *Server) broadcastToClients(ctx context.Context) {
	for {
		var publication sim.Publication
		select {
		case <-ctx.Done():
			return
		case publication = <-ws.broadcast:
		}

		message := map[string]interface{}{
			"type": "target_location",
			"data": publication,
		}

		ws.clientsMu.Lock()
		for client := range ws.clients {
			if err := client.WriteJSON(message); err != nil {
				log.Printf("WebSocket write error: %v", err)
				client.Close()
				delete(ws.clients, client)
			}
		}
		ws.clientsMu.Unlock()
	}
}

func (ws *Server) handleStartSimulator(w http.ResponseWriter, r *http.Request) {
	var jsonConfig map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&jsonConfig); err != nil {
		// Use stored config if no valid config provided
		jsonConfig = make(map[string]interface{})
	}

	ws.mu.Lock()
	defer ws.mu.Unlock()

	config := ws.lastConfig
	if len(jsonConfig) > 0 {
		var err error
		if config, err = parseConfig(jsonConfig, ws.baseConfig); err != nil {
			http.Error(w, fmt.Sprintf("Invalid config: %v", err), http.StatusBadRequest)
			return
		}
	}
	ws.lastConfig = config

	log.Printf("Starting simulator with model %s", config.Model)

	if ws.simulator != nil {
		if ws.simulator.IsRunning() {
			log.Printf("Stopping existing simulator before starting new one")
			ws.simulator.Stop()
		}
		ws.simulator = nil
	}

	simulator, err := sim.NewSimulator(config, ws.vehicle)
	if err != nil {
		log.Printf("Failed to create simulator: %v", err)
		http.Error(w, fmt.Sprintf("Failed to create simulator: %v", err), http.StatusBadRequest)
		return
	}
	simulator.SetMetrics(ws.metrics)
	if ws.logger != nil {
		simulator.SetLogger(ws.logger)
	}
	simulator.AddCallback(func(data sim.Publication) {
		select {
		case ws.broadcast <- data:
		default:
			// Channel full, skip this update
		}
	})

	if err := simulator.Start(); err != nil {
		log.Printf("Failed to start simulator: %v", err)
		http.Error(w, fmt.Sprintf("Failed to start simulator: %v", err), http.StatusInternalServerError)
		return
	}
	ws.simulator = simulator

	writeJSON(w, map[string]string{"status": "started", "run_id": simulator.GetStatus().RunID})
}

func (ws *Server) handleStopSimulator(w http.ResponseWriter, r *http.Request) {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	if ws.simulator != nil {
		if err := ws.simulator.Stop(); err != nil && !errors.Is(err, sim.ErrSimulatorNotRunning) {
			log.Printf("Failed to stop simulator: %v", err)
			http.Error(w, fmt.Sprintf("Failed to stop simulator: %v", err), http.StatusInternalServerError)
			return
		}
		ws.simulator = nil
		log.Printf("Simulator stopped and cleared")
	}

	writeJSON(w, map[string]string{"status": "stopped"})
}

func (ws *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	ws.mu.Lock()
	simulator := ws.simulator
	ws.mu.Unlock()

	if simulator == nil {
		writeJSON(w, map[string]interface{}{
			"running": false,
			"message": "No simulator instance",
		})
		return
	}
	writeJSON(w, simulator.GetStatus())
}

func (ws *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	var jsonConfig map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&jsonConfig); err != nil {
		http.Error(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
		return
	}

	config, err := parseConfig(jsonConfig, ws.baseConfig)
	if err == nil {
		err = config.Validate()
	}
	if err != nil {
		http.Error(w, fmt.Sprintf("Invalid config: %v", err), http.StatusBadRequest)
		return
	}

	ws.mu.Lock()
	defer ws.mu.Unlock()

	if ws.simulator != nil && ws.simulator.IsRunning() {
		if err := ws.simulator.UpdateConfig(config); err != nil {
			http.Error(w, fmt.Sprintf("Failed to update config: %v", err), http.StatusBadRequest)
			return
		}
		log.Printf("Configuration updated for running simulator")
	}
	ws.lastConfig = config

	writeJSON(w, map[string]string{"status": "updated"})
}

func (ws *Server) handleGetModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string][]string{"models": target.Names()})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

// parseConfig merges a JSON map into base. Durations are Go duration strings
// such as "500ms"; missing keys keep the base values.
func parseConfig(jsonConfig map[string]interface{}, base sim.Config) (sim.Config, error) {
	config := base

	getFloat := func(key string, defaultValue float64) float64 {
		if f, ok := jsonConfig[key].(float64); ok {
			return f
		}
		return defaultValue
	}
	getInt := func(key string, defaultValue int) int {
		if f, ok := jsonConfig[key].(float64); ok {
			return int(f)
		}
		return defaultValue
	}
	getBool := func(key string, defaultValue bool) bool {
		if b, ok := jsonConfig[key].(bool); ok {
			return b
		}
		return defaultValue
	}
	getString := func(key string, defaultValue string) string {
		if s, ok := jsonConfig[key].(string); ok {
			return s
		}
		return defaultValue
	}

	var errs []error
	getDuration := func(key string, defaultValue time.Duration) time.Duration {
		s, ok := jsonConfig[key].(string)
		if !ok {
			return defaultValue
		}
		d, err := time.ParseDuration(s)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return defaultValue
		}
		return d
	}

	config.Latitude = getFloat("latitude", config.Latitude)
	config.Longitude = getFloat("longitude", config.Longitude)
	config.Altitude = getFloat("altitude", config.Altitude)
	config.Model = getString("model", config.Model)
	config.TickRate = getDuration("tick_rate", config.TickRate)
	config.PublishRate = getDuration("publish_rate", config.PublishRate)
	config.FollowStart = getDuration("follow_start", config.FollowStart)
	config.TrackingStart = getDuration("tracking_start", config.TrackingStart)
	config.TrackingEnd = getDuration("tracking_end", config.TrackingEnd)
	config.RTLDelay = getDuration("rtl_delay", config.RTLDelay)
	config.SpamGPS = getBool("spam_gps", config.SpamGPS)
	config.PublishRC = getBool("publish_rc", config.PublishRC)
	config.NoTakeoff = getBool("no_takeoff", config.NoTakeoff)
	config.Responsiveness = getFloat("responsiveness", config.Responsiveness)
	config.FollowHeight = getFloat("follow_height", config.FollowHeight)
	config.FollowDistance = getFloat("follow_distance", config.FollowDistance)
	config.FollowDirection = sim.FollowDirection(getString("follow_direction", string(config.FollowDirection)))
	config.Satellites = getInt("satellites", config.Satellites)
	config.GPXEnabled = getBool("gpx_enabled", config.GPXEnabled)
	config.GPXFile = getString("gpx_file", config.GPXFile)
	config.Duration = getDuration("duration", config.Duration)

	if raw, ok := jsonConfig["line_schedule"].(string); ok {
		schedule, err := target.ParseLineSchedule(raw)
		if err != nil {
			errs = append(errs, err)
		}
		config.LineSchedule = schedule
	}

	return config, errors.Join(errs...)
}
