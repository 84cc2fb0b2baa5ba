// Package orchestrator implements the Optimization Scheduler (component
// design §4.1) and the top-level wiring of ports, the optimizer backend,
// and the control state machine (§2, "Orchestrator" row) — the single
// canonical assembly point replacing the two near-duplicate startup paths
// observed in the source.
package orchestrator

import (
	"log"
	"time"

	"github.com/devskill-org/ems/backend"
	"github.com/devskill-org/ems/ctrl"
)

// Config holds the orchestrator's tunables, independent of how they were
// loaded (see the config package for JSON/env parsing).
type Config struct {
	UpdateInterval  time.Duration
	OptimizeTimeout time.Duration
	Zone            *time.Location

	InverterMaxW        float64
	NegativePriceSwitch bool
	Resolution          ctrl.Resolution
}

// Ports bundles the port implementations the orchestrator wires into the
// request assembler and control state machine. Concrete adapters live
// under the ports package; any value satisfying these interfaces works,
// which is what lets tests substitute fakes.
type Ports struct {
	Forecast ctrl.ForecastSource
	Price    ctrl.PriceSource
	Load     ctrl.LoadSource
	Battery  ctrl.BatterySource
	EV       EVSource
	Limits   LimitsSource
	Inverter ctrl.Inverter
}

// Orchestrator owns the assembled scheduler and exposes start/stop and the
// override API to the HTTP/MQTT surfaces.
type Orchestrator struct {
	scheduler *Scheduler
	logger    *log.Logger
}

// New assembles an Orchestrator from ports, a backend, and a config. The
// warm-up delay described in §3 ("≈3s + 1s per forecast provider") is the
// caller's responsibility, since only the caller knows how many forecast
// providers it registered.
func New(cfg Config, ports Ports, be backend.Backend, logger *log.Logger) *Orchestrator {
	if logger == nil {
		logger = log.Default()
	}
	zone := cfg.Zone
	if zone == nil {
		zone = time.UTC
	}

	sched := &Scheduler{
		Assembler: &ctrl.Assembler{
			InverterMaxW:        cfg.InverterMaxW,
			NegativePriceSwitch: cfg.NegativePriceSwitch,
			Resolution:          cfg.Resolution,
		},
		Interpreter: &ctrl.Interpreter{Zone: zone},
		Machine:     ctrl.NewMachine(logger),
		Backend:     be,
		Inverter:    ports.Inverter,

		Forecast: ports.Forecast,
		Price:    ports.Price,
		Load:     ports.Load,
		Battery:  ports.Battery,
		EV:       ports.EV,
		Limits:   ports.Limits,

		UpdateInterval:  cfg.UpdateInterval,
		OptimizeTimeout: cfg.OptimizeTimeout,
		Zone:            zone,
		Logger:          logger,
	}

	return &Orchestrator{scheduler: sched, logger: logger}
}

// Start begins the outer and inner loops.
func (o *Orchestrator) Start() { o.scheduler.Start() }

// Stop requests cooperative shutdown and waits for both loops to exit.
func (o *Orchestrator) Stop() { o.scheduler.Stop() }

// Snapshot returns the current observable scheduler state for the HTTP API
// and MQTT publisher.
func (o *Orchestrator) Snapshot() Snapshot { return o.scheduler.Snapshot() }

// SetOverride installs or clears (mode=-1) a manual control override.
func (o *Orchestrator) SetOverride(mode int, duration time.Duration, gridChargeKW float64, now time.Time) {
	if mode < 0 {
		o.scheduler.SetOverride(nil)
		return
	}
	o.scheduler.SetOverride(&ctrl.Override{
		Mode:         mode,
		EndTime:      now.Add(duration),
		GridChargeKW: gridChargeKW,
	})
}

// CurrentState returns the control state machine's currently selected
// overall state.
func (o *Orchestrator) CurrentState() ctrl.OverallState {
	return o.scheduler.Machine.State()
}
