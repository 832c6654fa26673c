package sim

import (
	"context"
	"log/slog"
)

// Vehicle is the control link to the vehicle following the target. The
// simulator calls it from a single goroutine.
type Vehicle interface {
	CenterSticks(ctx context.Context) error
	Arm(ctx context.Context) error
	Takeoff(ctx context.Context) error
	SetFollowConfig(ctx context.Context, cfg FollowConfig) error
	StartFollow(ctx context.Context) error
	SetTargetLocation(ctx context.Context, loc TargetLocation) error
	StopFollow(ctx context.Context) error
	ReturnToLaunch(ctx context.Context) error
}

// LogVehicle is a Vehicle that only logs the commands it receives. Useful for
// dry runs without a flight stack.
type LogVehicle struct {
	Logger *slog.Logger
}

func (v LogVehicle) logger() *slog.Logger {
	if v.Logger == nil {
		return slog.Default()
	}
	return v.Logger
}

func (v LogVehicle) CenterSticks(ctx context.Context) error {
	v.logger().DebugContext(ctx, "manual control", "x", 0.0, "y", 0.0, "z", 0.5, "r", 0.0)
	return nil
}

func (v LogVehicle) Arm(ctx context.Context) error {
	v.logger().InfoContext(ctx, "arming")
	return nil
}

func (v LogVehicle) Takeoff(ctx context.Context) error {
	v.logger().InfoContext(ctx, "taking off")
	return nil
}

func (v LogVehicle) SetFollowConfig(ctx context.Context, cfg FollowConfig) error {
	v.logger().InfoContext(ctx, "follow config",
		"height", cfg.Height,
		"distance", cfg.Distance,
		"direction", cfg.Direction,
		"responsiveness", cfg.Responsiveness)
	return nil
}

func (v LogVehicle) StartFollow(ctx context.Context) error {
	v.logger().InfoContext(ctx, "starting follow me mode")
	return nil
}

func (v LogVehicle) SetTargetLocation(ctx context.Context, loc TargetLocation) error {
	v.logger().InfoContext(ctx, "target location",
		"t", loc.ModelTime,
		"lat", loc.Lat,
		"lon", loc.Lon,
		"alt", loc.AbsAlt,
		"vx", loc.VX,
		"vy", loc.VY)
	return nil
}

func (v LogVehicle) StopFollow(ctx context.Context) error {
	v.logger().InfoContext(ctx, "stopping follow me mode")
	return nil
}

func (v LogVehicle) ReturnToLaunch(ctx context.Context) error {
	v.logger().InfoContext(ctx, "returning to launch")
	return nil
}
