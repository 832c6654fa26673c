package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Bucknalla/go-follow-target-sim/sim"
	"github.com/Bucknalla/go-follow-target-sim/target"
)

func noEnv(string) string { return "" }

func TestParseFlagsDefaults(t *testing.T) {
	opts, err := parseFlags(nil, noEnv, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("parseFlags failed: %v", err)
	}

	config := opts.config
	if config.Model != target.NameCircle {
		t.Errorf("Expected model %q, got %q", target.NameCircle, config.Model)
	}
	if !config.PublishRC {
		t.Error("Centered sticks should be sent by default")
	}
	if config.SpamGPS || config.NoTakeoff {
		t.Error("SpamGPS and NoTakeoff should be off by default")
	}
	if config.Responsiveness != 0.1 {
		t.Errorf("Expected responsiveness 0.1, got %f", config.Responsiveness)
	}
	if config.LineSchedule != target.LineScheduleA {
		t.Errorf("Expected line schedule a, got %s", config.LineSchedule)
	}
	if opts.webAddr != "" {
		t.Errorf("Web server should be off by default, got %q", opts.webAddr)
	}
}

func TestParseFlags(t *testing.T) {
	args := []string{
		"-model", "line",
		"-line-schedule", "B",
		"-responsiveness", "0.5",
		"-no-rc",
		"-spam-gps",
		"-no-takeoff",
		"-satellites", "10",
		"-duration", "30s",
		"-gpx",
		"-web", ":8080",
	}

	opts, err := parseFlags(args, noEnv, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("parseFlags failed: %v", err)
	}

	config := opts.config
	if config.Model != target.NameLine {
		t.Errorf("Expected model %q, got %q", target.NameLine, config.Model)
	}
	if config.LineSchedule != target.LineScheduleB {
		t.Errorf("Expected line schedule b, got %s", config.LineSchedule)
	}
	if config.Responsiveness != 0.5 {
		t.Errorf("Expected responsiveness 0.5, got %f", config.Responsiveness)
	}
	if config.PublishRC {
		t.Error("-no-rc should disable centered sticks")
	}
	if !config.SpamGPS || !config.NoTakeoff || !config.GPXEnabled {
		t.Error("Boolean flags should be set")
	}
	if config.Satellites != 10 {
		t.Errorf("Expected 10 satellites, got %d", config.Satellites)
	}
	if config.Duration != 30*time.Second {
		t.Errorf("Expected duration 30s, got %v", config.Duration)
	}
	if opts.webAddr != ":8080" {
		t.Errorf("Expected web address :8080, got %q", opts.webAddr)
	}
}

func TestParseFlagsEnvironment(t *testing.T) {
	env := map[string]string{
		sim.EnvHomeLat: "-35.363261",
		sim.EnvHomeLon: "149.165230",
		sim.EnvHomeAlt: "584",
	}

	opts, err := parseFlags(nil, func(key string) string { return env[key] }, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("parseFlags failed: %v", err)
	}

	home := opts.config.Home()
	if home.Lat != -35.363261 || home.Lon != 149.165230 || home.Alt != 584 {
		t.Errorf("Unexpected home %+v", home)
	}
}

func TestParseFlagsErrors(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		env     map[string]string
		wantErr error
	}{
		{"unknown model", []string{"-model", "zigzag"}, nil, target.ErrUnknownModel},
		{"unknown line schedule", []string{"-line-schedule", "c"}, nil, target.ErrUnknownLineSchedule},
		{"responsiveness out of range", []string{"-responsiveness", "2"}, nil, sim.ErrInvalidResponsiveness},
		{"too many satellites", []string{"-satellites", "20"}, nil, sim.ErrInvalidSatelliteCount},
		{"bad environment", nil, map[string]string{sim.EnvHomeLat: "north"}, sim.ErrInvalidEnv},
		{"help", []string{"-h"}, nil, flag.ErrHelp},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			getenv := func(key string) string { return tt.env[key] }
			_, err := parseFlags(tt.args, getenv, &bytes.Buffer{})
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestParseFlagsUnknownModelListsModels(t *testing.T) {
	_, err := parseFlags([]string{"-model", "zigzag"}, noEnv, &bytes.Buffer{})
	if err == nil {
		t.Fatal("Expected an error")
	}
	for _, name := range target.Names() {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("Error %q should list model %q", err, name)
		}
	}
}

func TestParseFlagsVersion(t *testing.T) {
	opts, err := parseFlags([]string{"-version", "-model", "zigzag"}, noEnv, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("-version should skip validation, got %v", err)
	}
	if !opts.showVersion {
		t.Error("Expected showVersion")
	}
}

func TestUsageListsModels(t *testing.T) {
	output := &bytes.Buffer{}
	parseFlags([]string{"-h"}, noEnv, output)

	usage := output.String()
	if !strings.Contains(usage, "Follow-target simulator") {
		t.Error("Usage should describe the program")
	}
	if !strings.Contains(usage, target.NameGoAndStop) {
		t.Error("Usage should list the models")
	}
	if !strings.Contains(usage, sim.EnvHomeLat) {
		t.Error("Usage should mention the home position environment")
	}
}

// Test version variables
func TestVersionVariables(t *testing.T) {
	if Version == "" {
		t.Error("Version should have a default value")
	}
	if Commit == "" {
		t.Error("Commit should have a default value")
	}
	if BuildDate == "" {
		t.Error("BuildDate should have a default value")
	}
	if versionString() != Commit {
		t.Errorf("Development builds should report the commit, got %q", versionString())
	}
}

func TestPrintBanner(t *testing.T) {
	config := sim.DefaultConfig()
	config.Model = target.NameLine
	config.SpamGPS = true

	output := &bytes.Buffer{}
	printBanner(output, config)

	banner := output.String()
	for _, want := range []string{"Model: line", "Line schedule: a", "47.397742", "NMEA output: stdout", "every tick"} {
		if !strings.Contains(banner, want) {
			t.Errorf("Banner should contain %q:\n%s", want, banner)
		}
	}
}

func TestRunMission(t *testing.T) {
	opts, err := parseFlags([]string{"-model", "point", "-no-rc", "-quiet"}, noEnv, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("parseFlags failed: %v", err)
	}
	opts.config.TickRate = time.Millisecond
	opts.config.PublishRate = 10 * time.Millisecond
	opts.config.FollowStart = 2 * time.Millisecond
	opts.config.TrackingStart = 5 * time.Millisecond
	opts.config.TrackingEnd = 30 * time.Millisecond
	opts.config.RTLDelay = 5 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stdout := &bytes.Buffer{}
	if err := run(ctx, opts, stdout); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if !strings.Contains(stdout.String(), "$GPGGA,") {
		t.Error("Expected NMEA sentences on stdout")
	}
}

func TestWebServerUsesCommandLineConfig(t *testing.T) {
	env := map[string]string{
		sim.EnvHomeLat: "-35.363261",
		sim.EnvHomeLon: "149.165230",
	}
	args := []string{"-model", "line", "-spam-gps", "-no-rc", "-web", ":0"}

	opts, err := parseFlags(args, func(key string) string { return env[key] }, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("parseFlags failed: %v", err)
	}

	srv, err := newWebServer(opts.config, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("newWebServer failed: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/start", "application/json", nil)
	if err != nil {
		t.Fatalf("Start request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200 from start, got %d", resp.StatusCode)
	}
	defer func() {
		if resp, err := http.Post(ts.URL+"/api/stop", "application/json", nil); err == nil {
			resp.Body.Close()
		}
	}()

	resp, err = http.Get(ts.URL + "/api/status")
	if err != nil {
		t.Fatalf("Status request failed: %v", err)
	}
	defer resp.Body.Close()

	var status sim.Status
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("Failed to decode status: %v", err)
	}
	if status.Model != target.NameLine {
		t.Errorf("Expected model %q, got %q", target.NameLine, status.Model)
	}
	if status.Config.Latitude != -35.363261 || status.Config.Longitude != 149.165230 {
		t.Errorf("Expected home from the environment, got %f, %f", status.Config.Latitude, status.Config.Longitude)
	}
	if !status.Config.SpamGPS || status.Config.PublishRC {
		t.Error("Flags should carry into runs started over HTTP")
	}
}
