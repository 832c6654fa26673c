package sim

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the Prometheus collectors updated by the simulator loop.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Ticks            prometheus.Counter
	ModelUpdates     *prometheus.CounterVec
	Publishes        prometheus.Counter
	VehicleErrors    *prometheus.CounterVec
	ModelTime        prometheus.Gauge
	DistanceFromHome prometheus.Gauge
}

// NewMetrics registers the simulator metrics against reg, defaulting to the
// global Prometheus registry when nil. Registering twice against the same
// registry returns the existing collectors.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	ticks, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "follow_target_ticks_total",
		Help: "Total number of simulator loop ticks.",
	}), "follow_target_ticks_total")
	if err != nil {
		return nil, err
	}

	updates, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "follow_target_model_updates_total",
		Help: "Target model updates, labeled by model and result.",
	}, []string{"model", "result"}), "follow_target_model_updates_total")
	if err != nil {
		return nil, err
	}

	publishes, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "follow_target_publishes_total",
		Help: "Total number of target locations sent to the vehicle.",
	}), "follow_target_publishes_total")
	if err != nil {
		return nil, err
	}

	vehicleErrors, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "follow_target_vehicle_errors_total",
		Help: "Vehicle commands that returned an error, labeled by command.",
	}, []string{"command"}), "follow_target_vehicle_errors_total")
	if err != nil {
		return nil, err
	}

	modelTime, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "follow_target_model_time_seconds",
		Help: "Model time of the last target update.",
	}), "follow_target_model_time_seconds")
	if err != nil {
		return nil, err
	}

	distance, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "follow_target_distance_from_home_meters",
		Help: "Ground distance between the target and the home position.",
	}), "follow_target_distance_from_home_meters")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		Ticks:            ticks,
		ModelUpdates:     updates,
		Publishes:        publishes,
		VehicleErrors:    vehicleErrors,
		ModelTime:        modelTime,
		DistanceFromHome: distance,
	}, nil
}

func (m *Metrics) tick() {
	if m == nil {
		return
	}
	m.Ticks.Inc()
}

func (m *Metrics) modelUpdated(model string, t, distance float64, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.ModelUpdates.WithLabelValues(model, "error").Inc()
		return
	}
	m.ModelUpdates.WithLabelValues(model, "ok").Inc()
	m.ModelTime.Set(t)
	m.DistanceFromHome.Set(distance)
}

func (m *Metrics) published() {
	if m == nil {
		return
	}
	m.Publishes.Inc()
}

func (m *Metrics) vehicleError(command string) {
	if m == nil {
		return
	}
	m.VehicleErrors.WithLabelValues(command).Inc()
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
