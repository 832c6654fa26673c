package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.bug.st/serial"

	"github.com/Bucknalla/go-follow-target-sim/sim"
	"github.com/Bucknalla/go-follow-target-sim/target"
	"github.com/Bucknalla/go-follow-target-sim/web"
)

// Version information - populated at build time via ldflags
var (
	Version   = "dev"     // Will be set to git tag if available, otherwise "dev"
	Commit    = "unknown" // Will be set to git commit hash
	BuildDate = "unknown" // Will be set to build timestamp
)

type options struct {
	config      sim.Config
	showVersion bool
	webAddr     string
}

// parseFlags builds the simulator configuration from the command line and
// the PX4_HOME_* environment. The result is validated, so an unknown model
// is rejected here before anything is opened or sent.
func parseFlags(args []string, getenv func(string) string, output io.Writer) (options, error) {
	opts := options{config: sim.DefaultConfig()}
	config := &opts.config

	var noRC bool
	var lineSchedule string

	fs := flag.NewFlagSet("follow-target-sim", flag.ContinueOnError)
	fs.SetOutput(output)

	fs.BoolVar(&opts.showVersion, "version", false, "Show version information and exit")
	fs.StringVar(&config.Model, "model", config.Model, "Target motion model: "+strings.Join(target.Names(), ", "))
	fs.StringVar(&lineSchedule, "line-schedule", "a", "Timing of the line model: a (from tracking start) or b (from model time zero)")
	fs.Float64Var(&config.Responsiveness, "responsiveness", config.Responsiveness, "Follow mode responsiveness (0.0-1.0)")
	fs.BoolVar(&noRC, "no-rc", false, "Do not send centered sticks on every tick")
	fs.BoolVar(&config.SpamGPS, "spam-gps", false, "Resend the last target location on every tick")
	fs.BoolVar(&config.NoTakeoff, "no-takeoff", false, "Vehicle is already airborne; skip takeoff and return to launch")
	fs.IntVar(&config.Satellites, "satellites", config.Satellites, "Number of satellites reported in NMEA fixes (4-12)")
	fs.StringVar(&config.SerialPort, "serial", "", "Serial port for NMEA output (e.g., /dev/ttyUSB0, COM1)")
	fs.IntVar(&config.BaudRate, "baud", config.BaudRate, "Serial port baud rate")
	fs.BoolVar(&config.Quiet, "quiet", false, "Suppress info messages")
	fs.BoolVar(&config.GPXEnabled, "gpx", false, "Record published target locations to a timestamp-named GPX file")
	fs.DurationVar(&config.Duration, "duration", 0, "Stop after this long (e.g., 30s, 5m). Default is until the mission completes")
	fs.StringVar(&opts.webAddr, "web", "", "Serve the HTTP control API on this address (e.g., :8080) instead of running once")

	fs.Usage = func() {
		fmt.Fprintf(output, "Usage: follow-target-sim [options]\n")
		fmt.Fprintf(output, "\nFollow-target simulator\n")
		fmt.Fprintf(output, "Moves a virtual target along a motion model and feeds its position to a vehicle in follow mode.\n")
		fmt.Fprintf(output, "The home position is read from %s, %s and %s when set.\n\n", sim.EnvHomeLat, sim.EnvHomeLon, sim.EnvHomeAlt)
		fmt.Fprintf(output, "Options:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if opts.showVersion {
		return opts, nil
	}

	config.PublishRC = !noRC

	schedule, err := target.ParseLineSchedule(lineSchedule)
	if err != nil {
		return opts, err
	}
	config.LineSchedule = schedule

	if err := config.ApplyEnv(getenv); err != nil {
		return opts, err
	}
	if err := config.Validate(); err != nil {
		return opts, err
	}
	return opts, nil
}

func versionString() string {
	if Version != "dev" {
		return fmt.Sprintf("v%s", Version)
	}
	return Commit
}

func newLogger(quiet bool) *slog.Logger {
	level := slog.LevelInfo
	if quiet {
		level = slog.LevelWarn
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func printBanner(w io.Writer, config sim.Config) {
	home := config.Home()
	fmt.Fprintf(w, "Starting follow-target simulator...\n")
	fmt.Fprintf(w, "Model: %s\n", config.Model)
	if config.Model == target.NameLine {
		fmt.Fprintf(w, "Line schedule: %s\n", config.LineSchedule)
	}
	fmt.Fprintf(w, "Home position: %.6f, %.6f, %.1fm\n", home.Lat, home.Lon, home.Alt)
	fmt.Fprintf(w, "Follow: %.1fm %s at %.1fm, responsiveness %.2f\n",
		config.FollowDistance, config.FollowDirection, config.FollowHeight, config.Responsiveness)
	fmt.Fprintf(w, "Tracking: %v to %v, publishing every %v\n", config.TrackingStart, config.TrackingEnd, config.PublishRate)
	if config.SpamGPS {
		fmt.Fprintf(w, "Resending target location on every tick (%v)\n", config.TickRate)
	}
	if config.NoTakeoff {
		fmt.Fprintf(w, "Skipping takeoff and return to launch\n")
	}
	if config.SerialPort != "" {
		fmt.Fprintf(w, "NMEA output: %s (%d baud)\n", config.SerialPort, config.BaudRate)
	} else {
		fmt.Fprintf(w, "NMEA output: stdout\n")
	}
	fmt.Fprintf(w, "\nPress Ctrl+C to stop\n\n")
}

// openSerial opens the NMEA serial port with 8N1 framing
func openSerial(name string, baud int) (serial.Port, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		Parity:   serial.NoParity,
		DataBits: 8,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(name, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", name, err)
	}
	return port, nil
}

// newWebServer serves the control API with the command-line configuration as
// the base for every run it starts
func newWebServer(config sim.Config, logger *slog.Logger) (*web.Server, error) {
	srv, err := web.NewServer(config, sim.LogVehicle{Logger: logger}, nil)
	if err != nil {
		return nil, err
	}
	srv.SetLogger(logger)
	return srv, nil
}

func run(ctx context.Context, opts options, stdout io.Writer) error {
	config := opts.config
	logger := newLogger(config.Quiet)

	if opts.webAddr != "" {
		srv, err := newWebServer(config, logger)
		if err != nil {
			return err
		}
		log.Printf("Open http://localhost%s/api/status to watch the simulator", opts.webAddr)
		if err := srv.ListenAndServe(ctx, opts.webAddr); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	}

	simulator, err := sim.NewSimulator(config, sim.LogVehicle{Logger: logger})
	if err != nil {
		return err
	}
	simulator.SetLogger(logger)

	nmeaWriter := stdout
	if config.SerialPort != "" {
		port, err := openSerial(config.SerialPort, config.BaudRate)
		if err != nil {
			return err
		}
		defer port.Close()
		nmeaWriter = port
	}
	simulator.SetNMEAWriter(nmeaWriter)

	if !config.Quiet {
		printBanner(os.Stderr, config)
	}

	if err := simulator.Run(ctx); err != nil {
		return err
	}

	status := simulator.GetStatus()
	logger.Info("simulation finished",
		"run_id", status.RunID,
		"complete", simulator.Complete(),
		"published", status.Published,
		"elapsed", status.ElapsedTime)
	return nil
}

func main() {
	opts, err := parseFlags(os.Args[1:], os.Getenv, os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if opts.showVersion {
		fmt.Println(versionString())
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
