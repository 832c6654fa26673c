package sim

import (
	"math"
	"time"

	"github.com/Bucknalla/go-follow-target-sim/target"
)

// Phase is the stage of the follow-target mission
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseArmed     Phase = "armed"
	PhaseAirborne  Phase = "airborne"
	PhaseFollowing Phase = "following" // follow mode started, target not moving yet
	PhaseTracking  Phase = "tracking"
	PhaseReturning Phase = "returning" // follow mode stopped
	PhaseLanding   Phase = "landing"
)

// TargetLocation is what the vehicle is told about the target
type TargetLocation struct {
	Lat       float64   `json:"lat"`
	Lon       float64   `json:"lon"`
	AbsAlt    float64   `json:"abs_alt"` // meters, always the home altitude
	VX        float64   `json:"vx"`      // north, m/s
	VY        float64   `json:"vy"`      // east, m/s
	VZ        float64   `json:"vz"`
	ModelTime float64   `json:"model_time"` // seconds since tracking started
	Timestamp time.Time `json:"timestamp"`
}

// SpeedKnots returns the ground speed in knots
func (l TargetLocation) SpeedKnots() float64 {
	return math.Hypot(l.VX, l.VY) * 1.94384
}

// Course returns the course over ground in degrees
func (l TargetLocation) Course() float64 {
	return target.Fix{VX: l.VX, VY: l.VY}.Course()
}

// FollowConfig is sent to the vehicle before follow mode starts
type FollowConfig struct {
	Height         float64         `json:"height"`
	Distance       float64         `json:"distance"`
	Direction      FollowDirection `json:"direction"`
	Responsiveness float64         `json:"responsiveness"`
}

// Publication is handed to callbacks each time a target location is sent
type Publication struct {
	Location  TargetLocation `json:"location"`
	Sentences []string       `json:"sentences"`
	Timestamp time.Time      `json:"timestamp"`
}

// Status represents the current simulator status
type Status struct {
	RunID            string          `json:"run_id"`
	Running          bool            `json:"running"`
	StartTime        time.Time       `json:"start_time,omitempty"`
	ElapsedTime      time.Duration   `json:"elapsed_time"`
	Phase            Phase           `json:"phase"`
	Model            string          `json:"model"`
	Fix              target.Fix      `json:"fix"`
	Location         *TargetLocation `json:"location,omitempty"`
	DistanceFromHome float64         `json:"distance_from_home"` // meters
	Published        int             `json:"published"`
	Config           Config          `json:"config"`
}
