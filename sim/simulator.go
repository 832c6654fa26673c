// Package sim drives a target motion model against a vehicle running follow
// mode: it sequences arming, takeoff and follow mode, updates the model every
// tick and sends the target location at a GPS-like rate.
package sim

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Bucknalla/go-follow-target-sim/geo"
	"github.com/Bucknalla/go-follow-target-sim/target"
)

// Simulator represents the follow-target simulation
type Simulator struct {
	mu         sync.RWMutex
	config     Config
	vehicle    Vehicle
	law        target.Law
	model      *target.Model
	logger     *slog.Logger
	metrics    *Metrics
	nmeaWriter io.Writer
	gpxWriter  *GPXWriter
	callbacks  []func(Publication)

	// Mission state, reset on every start
	runID           string
	startTime       time.Time
	elapsed         time.Duration
	phase           Phase
	armed           bool
	tookOff         bool
	following       bool
	followStopped   bool
	followStoppedAt time.Duration
	rtlSent         bool
	hasPublished    bool
	lastPublish     time.Duration
	location        *TargetLocation
	published       int

	// Control fields
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSimulator creates a simulator for config. The model is selected here, so
// an unknown model name fails before the vehicle is touched. A nil vehicle
// defaults to LogVehicle.
func NewSimulator(config Config, vehicle Vehicle) (*Simulator, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	law, err := target.NewLaw(config.Model, target.WithLineSchedule(config.LineSchedule))
	if err != nil {
		return nil, err
	}

	if vehicle == nil {
		vehicle = LogVehicle{}
	}

	sim := &Simulator{
		config:    config,
		vehicle:   vehicle,
		law:       law,
		logger:    slog.Default(),
		callbacks: make([]func(Publication), 0),
	}
	sim.reset()

	return sim, nil
}

// SetNMEAWriter sets the writer for NMEA output
func (s *Simulator) SetNMEAWriter(writer io.Writer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nmeaWriter = writer
}

// SetLogger replaces the default slog logger
func (s *Simulator) SetLogger(logger *slog.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger = logger
}

// SetMetrics enables Prometheus metrics
func (s *Simulator) SetMetrics(metrics *Metrics) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = metrics
}

// AddCallback adds a callback function that will be called with each new
// target location
func (s *Simulator) AddCallback(callback func(Publication)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callbacks = append(s.callbacks, callback)
}

// reset returns the mission to its initial state with a fresh model
func (s *Simulator) reset() {
	s.model = target.NewModel(s.law, s.config.Home())
	s.runID = uuid.NewString()
	s.startTime = time.Now()
	s.elapsed = 0
	s.phase = PhaseIdle
	s.armed = false
	s.tookOff = s.config.NoTakeoff
	s.following = false
	s.followStopped = false
	s.followStoppedAt = 0
	s.rtlSent = s.config.NoTakeoff
	s.hasPublished = false
	s.lastPublish = 0
	s.location = nil
	s.published = 0
}

// run holds the values a loop needs for its whole lifetime
type run struct {
	id       string
	start    time.Time
	tickRate time.Duration
	duration time.Duration
	logger   *slog.Logger
}

// begin prepares a new run. Callers hold s.mu.
func (s *Simulator) begin(cancel context.CancelFunc) (run, error) {
	s.reset()

	if s.config.GPXEnabled {
		filename := s.config.GPXFile
		if filename == "" {
			filename = fmt.Sprintf("%s.gpx", s.startTime.Format("20060102_150405"))
		}
		trackName := fmt.Sprintf("Follow target %s (%s)", s.config.Model, s.runID)
		gpxWriter, err := NewGPXWriter(filename, trackName)
		if err != nil {
			return run{}, err
		}
		s.gpxWriter = gpxWriter
	}

	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true

	s.logger.Info("simulation started",
		"run_id", s.runID,
		"model", s.config.Model,
		"home_lat", s.config.Latitude,
		"home_lon", s.config.Longitude,
		"home_alt", s.config.Altitude)

	return run{
		id:       s.runID,
		start:    s.startTime,
		tickRate: s.config.TickRate,
		duration: s.config.Duration,
		logger:   s.logger,
	}, nil
}

// Start runs the simulation in the background
func (s *Simulator) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrSimulatorAlreadyRunning
	}

	ctx, cancel := context.WithCancel(context.Background())
	r, err := s.begin(cancel)
	if err != nil {
		cancel()
		return err
	}

	go s.loop(ctx, r)
	return nil
}

// Run runs the simulation until ctx is cancelled, the configured duration
// elapses or the mission completes.
func (s *Simulator) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrSimulatorAlreadyRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	r, err := s.begin(cancel)
	if err != nil {
		s.mu.Unlock()
		cancel()
		return err
	}
	s.mu.Unlock()

	s.loop(ctx, r)
	return nil
}

// Stop stops the simulation and waits for the loop to exit
func (s *Simulator) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrSimulatorNotRunning
	}
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	<-done
	return nil
}

// IsRunning returns whether the simulator is currently running
func (s *Simulator) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Complete reports whether every mission step has been issued
func (s *Simulator) Complete() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.complete()
}

func (s *Simulator) complete() bool {
	return s.followStopped && s.rtlSent
}

// GetStatus returns the current simulator status
func (s *Simulator) GetStatus() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fix := s.model.Fix()
	status := Status{
		RunID:            s.runID,
		Running:          s.running,
		StartTime:        s.startTime,
		ElapsedTime:      s.elapsed,
		Phase:            s.phase,
		Model:            s.model.Name(),
		Fix:              fix,
		DistanceFromHome: geo.Distance(s.model.Origin(), geo.Origin{Lat: fix.Lat, Lon: fix.Lon}),
		Published:        s.published,
		Config:           s.config,
	}
	if s.location != nil {
		loc := *s.location
		status.Location = &loc
	}
	return status
}

// UpdateConfig replaces the configuration. Publishing flags and rates apply
// from the next tick; model, home position and tick rate apply from the next
// start.
func (s *Simulator) UpdateConfig(newConfig Config) error {
	if err := newConfig.Validate(); err != nil {
		return err
	}
	law, err := target.NewLaw(newConfig.Model, target.WithLineSchedule(newConfig.LineSchedule))
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.config = newConfig
	s.law = law
	if !s.running {
		s.reset()
	}
	return nil
}

// loop is the main simulation loop
func (s *Simulator) loop(ctx context.Context, r run) {
	defer s.finish()

	ticker := time.NewTicker(r.tickRate)
	defer ticker.Stop()

	var durationChan <-chan time.Time
	if r.duration > 0 {
		durationTimer := time.NewTimer(r.duration)
		durationChan = durationTimer.C
		defer durationTimer.Stop()
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-durationChan:
			return
		case <-ticker.C:
			if err := s.Step(ctx, time.Since(r.start)); err != nil {
				r.logger.Warn("simulation step failed", "run_id", r.id, "error", err)
			}
			if s.Complete() {
				r.logger.Info("mission complete", "run_id", r.id)
				return
			}
		}
	}
}

// finish releases the resources of a run
func (s *Simulator) finish() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gpxWriter != nil {
		if err := s.gpxWriter.Close(); err != nil {
			s.logger.Warn("failed to close GPX track", "error", err)
		}
		s.gpxWriter = nil
	}

	s.cancel()
	s.running = false
	close(s.done)
	s.logger.Info("simulation stopped", "run_id", s.runID, "published", s.published)
}

// Step advances the mission to elapsed time since start. It issues each
// vehicle command once at its point in the timeline, updates the model while
// tracking and sends the target location at the publish rate. Vehicle errors
// are collected and returned; they do not stop the mission.
func (s *Simulator) Step(ctx context.Context, elapsed time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg := s.config
	s.elapsed = elapsed
	s.metrics.tick()

	var errs []error

	if cfg.PublishRC {
		errs = append(errs, s.command("center_sticks", s.vehicle.CenterSticks(ctx)))
	}

	if !s.armed {
		s.armed = true
		s.setPhase(PhaseArmed)
		errs = append(errs, s.command("arm", s.vehicle.Arm(ctx)))
	}

	if !s.tookOff {
		s.tookOff = true
		s.setPhase(PhaseAirborne)
		errs = append(errs, s.command("takeoff", s.vehicle.Takeoff(ctx)))
	}

	if !s.following && elapsed > cfg.FollowStart {
		s.following = true
		s.setPhase(PhaseFollowing)
		errs = append(errs, s.command("follow_config", s.vehicle.SetFollowConfig(ctx, FollowConfig{
			Height:         cfg.FollowHeight,
			Distance:       cfg.FollowDistance,
			Direction:      cfg.FollowDirection,
			Responsiveness: cfg.Responsiveness,
		})))
		errs = append(errs, s.command("start_follow", s.vehicle.StartFollow(ctx)))
	}

	if elapsed > cfg.TrackingStart && elapsed < cfg.TrackingEnd {
		s.setPhase(PhaseTracking)
		s.track(ctx, elapsed, &errs)
	}

	if elapsed > cfg.TrackingEnd {
		if !s.followStopped {
			s.followStopped = true
			s.followStoppedAt = elapsed
			s.setPhase(PhaseReturning)
			errs = append(errs, s.command("stop_follow", s.vehicle.StopFollow(ctx)))
		}
		if !s.rtlSent && elapsed > s.followStoppedAt+cfg.RTLDelay {
			s.rtlSent = true
			s.setPhase(PhaseLanding)
			errs = append(errs, s.command("return_to_launch", s.vehicle.ReturnToLaunch(ctx)))
		}
	}

	return errors.Join(errs...)
}

// track updates the model and publishes. Callers hold s.mu.
func (s *Simulator) track(ctx context.Context, elapsed time.Duration, errs *[]error) {
	cfg := s.config
	home := s.model.Origin()
	modelTime := (elapsed - cfg.TrackingStart).Seconds()

	err := s.model.Update(modelTime)
	fix := s.model.Fix()
	s.metrics.modelUpdated(s.model.Name(), fix.Time,
		geo.Distance(home, geo.Origin{Lat: fix.Lat, Lon: fix.Lon}), err)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("model update: %w", err))
		return
	}

	if !s.hasPublished || elapsed-s.lastPublish >= cfg.PublishRate {
		s.hasPublished = true
		s.lastPublish = elapsed

		loc := TargetLocation{
			Lat:       fix.Lat,
			Lon:       fix.Lon,
			AbsAlt:    home.Alt,
			VX:        fix.VX,
			VY:        fix.VY,
			VZ:        0,
			ModelTime: fix.Time,
			Timestamp: s.startTime.Add(elapsed),
		}
		s.location = &loc
		s.record(loc)

		if !cfg.SpamGPS {
			*errs = append(*errs, s.send(ctx, loc))
		}
	}

	if cfg.SpamGPS && s.location != nil {
		*errs = append(*errs, s.send(ctx, *s.location))
	}
}

// send forwards a location to the vehicle. Callers hold s.mu.
func (s *Simulator) send(ctx context.Context, loc TargetLocation) error {
	s.published++
	s.metrics.published()
	return s.command("set_target_location", s.vehicle.SetTargetLocation(ctx, loc))
}

// record writes a fresh location to the NMEA, GPX and callback sinks.
// Callers hold s.mu.
func (s *Simulator) record(loc TargetLocation) {
	sentences := Sentences(loc, s.config.Satellites)

	if s.nmeaWriter != nil {
		for _, sentence := range sentences {
			fmt.Fprint(s.nmeaWriter, sentence)
		}
	}

	if s.gpxWriter != nil {
		s.gpxWriter.AddLocation(loc)
		// Write to file periodically
		if s.gpxWriter.GetTrackPointCount()%10 == 0 {
			if err := s.gpxWriter.WriteToFile(); err != nil {
				s.logger.Warn("failed to write GPX track", "error", err)
			}
		}
	}

	data := Publication{
		Location:  loc,
		Sentences: sentences,
		Timestamp: loc.Timestamp,
	}
	for _, callback := range s.callbacks {
		go callback(data) // Call async to avoid blocking
	}
}

// command wraps a vehicle error with the command name. Callers hold s.mu.
func (s *Simulator) command(name string, err error) error {
	if err == nil {
		return nil
	}
	s.metrics.vehicleError(name)
	return fmt.Errorf("%s: %w", name, err)
}

// setPhase logs phase transitions. Callers hold s.mu.
func (s *Simulator) setPhase(phase Phase) {
	if s.phase == phase {
		return
	}
	s.logger.Info("phase changed", "run_id", s.runID, "from", s.phase, "to", phase, "t", s.elapsed.Seconds())
	s.phase = phase
}
