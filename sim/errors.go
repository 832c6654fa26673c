package sim

import "errors"

// Common errors returned by the follow-target simulator
var (
	ErrInvalidLatitude         = errors.New("home latitude must be between -90 and 90 degrees")
	ErrInvalidLongitude        = errors.New("home longitude must be between -180 and 180 degrees")
	ErrInvalidSatelliteCount   = errors.New("number of satellites must be between 4 and 12")
	ErrInvalidBaudRate         = errors.New("baud rate must be positive")
	ErrInvalidTickRate         = errors.New("tick rate must be positive")
	ErrInvalidPublishRate      = errors.New("publish rate must be positive")
	ErrInvalidPhaseTiming      = errors.New("follow start must not be after tracking start, and tracking must end after it starts")
	ErrInvalidRTLDelay         = errors.New("return-to-launch delay must be non-negative")
	ErrInvalidResponsiveness   = errors.New("responsiveness must be between 0.0 and 1.0")
	ErrInvalidFollowDirection  = errors.New("follow direction must be one of none, front, front_left, front_right, behind")
	ErrInvalidFollowGeometry   = errors.New("follow height and distance must be non-negative")
	ErrInvalidEnv              = errors.New("invalid home position in environment")
	ErrSimulatorNotRunning     = errors.New("simulator is not running")
	ErrSimulatorAlreadyRunning = errors.New("simulator is already running")
)
