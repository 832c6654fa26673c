package sim

import (
	"fmt"
	"strconv"
	"time"

	"github.com/Bucknalla/go-follow-target-sim/geo"
	"github.com/Bucknalla/go-follow-target-sim/target"
)

// Environment variables shared with the flight simulator for the home position
const (
	EnvHomeLat = "PX4_HOME_LAT"
	EnvHomeLon = "PX4_HOME_LON"
	EnvHomeAlt = "PX4_HOME_ALT"
)

// FollowDirection is where the vehicle keeps itself relative to the target.
type FollowDirection string

const (
	FollowNone       FollowDirection = "none"
	FollowFront      FollowDirection = "front"
	FollowFrontLeft  FollowDirection = "front_left"
	FollowFrontRight FollowDirection = "front_right"
	FollowBehind     FollowDirection = "behind"
)

func (d FollowDirection) valid() bool {
	switch d {
	case FollowNone, FollowFront, FollowFrontLeft, FollowFrontRight, FollowBehind:
		return true
	}
	return false
}

// Config holds all configuration options for the follow-target simulator
type Config struct {
	Latitude  float64 `json:"latitude"`  // home latitude, degrees
	Longitude float64 `json:"longitude"` // home longitude, degrees
	Altitude  float64 `json:"altitude"`  // home altitude, meters

	Model        string              `json:"model"`
	LineSchedule target.LineSchedule `json:"line_schedule"`

	TickRate      time.Duration `json:"tick_rate"`      // model update cadence
	PublishRate   time.Duration `json:"publish_rate"`   // target location cadence
	FollowStart   time.Duration `json:"follow_start"`   // follow mode is started after this
	TrackingStart time.Duration `json:"tracking_start"` // model time zero
	TrackingEnd   time.Duration `json:"tracking_end"`   // follow mode is stopped after this
	RTLDelay      time.Duration `json:"rtl_delay"`      // wait between stopping follow mode and return to launch

	SpamGPS   bool `json:"spam_gps"`   // resend the last location on every tick
	PublishRC bool `json:"publish_rc"` // send centered sticks on every tick
	NoTakeoff bool `json:"no_takeoff"` // vehicle is already airborne

	Responsiveness  float64         `json:"responsiveness"`
	FollowHeight    float64         `json:"follow_height"`   // meters
	FollowDistance  float64         `json:"follow_distance"` // meters
	FollowDirection FollowDirection `json:"follow_direction"`

	Satellites int           `json:"satellites"` // reported in NMEA fixes
	SerialPort string        `json:"serial_port"`
	BaudRate   int           `json:"baud_rate"`
	Quiet      bool          `json:"quiet"`
	GPXEnabled bool          `json:"gpx_enabled"`
	GPXFile    string        `json:"gpx_file"`
	Duration   time.Duration `json:"duration"` // 0 = until the mission completes
}

// DefaultConfig returns a configuration matching the default SITL home
func DefaultConfig() Config {
	return Config{
		Latitude:        47.397742,
		Longitude:       8.545594,
		Altitude:        488,
		Model:           target.NameCircle,
		LineSchedule:    target.LineScheduleA,
		TickRate:        10 * time.Millisecond,
		PublishRate:     1 * time.Second,
		FollowStart:     8 * time.Second,
		TrackingStart:   12 * time.Second,
		TrackingEnd:     100 * time.Second,
		RTLDelay:        5 * time.Second,
		PublishRC:       true,
		Responsiveness:  0.1,
		FollowHeight:    8.0,
		FollowDistance:  8.0,
		FollowDirection: FollowBehind,
		Satellites:      8,
		BaudRate:        9600,
	}
}

// Home returns the origin of the target's local frame.
func (c *Config) Home() geo.Origin {
	return geo.Origin{Lat: c.Latitude, Lon: c.Longitude, Alt: c.Altitude}
}

// Validate checks if the configuration is valid and returns an error if not.
// The model name is checked first so an unknown model is reported before
// anything else.
func (c *Config) Validate() error {
	if _, err := target.NewLaw(c.Model); err != nil {
		return err
	}
	if c.Latitude < -90 || c.Latitude > 90 {
		return ErrInvalidLatitude
	}
	if c.Longitude < -180 || c.Longitude > 180 {
		return ErrInvalidLongitude
	}
	if c.TickRate <= 0 {
		return ErrInvalidTickRate
	}
	if c.PublishRate <= 0 {
		return ErrInvalidPublishRate
	}
	if c.FollowStart < 0 || c.FollowStart > c.TrackingStart || c.TrackingEnd <= c.TrackingStart {
		return ErrInvalidPhaseTiming
	}
	if c.RTLDelay < 0 {
		return ErrInvalidRTLDelay
	}
	if c.Responsiveness < 0.0 || c.Responsiveness > 1.0 {
		return ErrInvalidResponsiveness
	}
	if !c.FollowDirection.valid() {
		return ErrInvalidFollowDirection
	}
	if c.FollowHeight < 0 || c.FollowDistance < 0 {
		return ErrInvalidFollowGeometry
	}
	if c.Satellites < 4 || c.Satellites > 12 {
		return ErrInvalidSatelliteCount
	}
	if c.BaudRate <= 0 {
		return ErrInvalidBaudRate
	}
	return nil
}

// ApplyEnv overrides the home position from PX4_HOME_LAT, PX4_HOME_LON and
// PX4_HOME_ALT when they are set.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	for _, v := range []struct {
		key string
		dst *float64
	}{
		{EnvHomeLat, &c.Latitude},
		{EnvHomeLon, &c.Longitude},
		{EnvHomeAlt, &c.Altitude},
	} {
		raw := getenv(v.key)
		if raw == "" {
			continue
		}
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Errorf("%w: %s=%q", ErrInvalidEnv, v.key, raw)
		}
		*v.dst = f
	}
	return nil
}
