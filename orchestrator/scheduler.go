package orchestrator

import (
	"log"
	"time"

	"github.com/devskill-org/ems/backend"
	"github.com/devskill-org/ems/ctrl"
)

// Refreshable is implemented by ports whose forecast needs an explicit poll
// before a cycle's request is built. Refresh errors are logged and
// swallowed — an empty/missing forecast never aborts a cycle.
type Refreshable interface {
	Refresh() error
}

// ThermalInverter is an optional inverter capability: drivers in the
// fronius_gen24 family expose per-module temperature and fan telemetry that
// the inner loop refreshes and publishes on its own faster cadence.
type ThermalInverter interface {
	Family() string
	RefreshThermals() error
}

// EVSource supplies the EV-charger telemetry the control state machine
// reads every cycle.
type EVSource interface {
	EVTelemetry() ctrl.EVTelemetry
}

// LimitsSource supplies the battery port's SoC-dependent charge ceilings.
type LimitsSource interface {
	DynamicLimits() ctrl.DynamicLimits
}

// innerLoopInterval is the fixed cadence of the telemetry refresh task
// (component design §4.1).
const innerLoopInterval = 15 * time.Second

// sleepChunk bounds how long a cooperative sleep blocks before re-checking
// the stop-signal.
const sleepChunk = 1 * time.Second

// Scheduler runs the outer optimization loop and the inner telemetry loop
// as two independent cooperative tasks sharing one stop-signal, following
// the teacher's PeriodicTask idiom (scheduler/scheduler.go) generalized to
// a variable, algorithm-computed wake time instead of a fixed ticker.
type Scheduler struct {
	Assembler   *ctrl.Assembler
	Interpreter *ctrl.Interpreter
	Machine     *ctrl.Machine
	Backend     backend.Backend
	Inverter    ctrl.Inverter

	Forecast ctrl.ForecastSource
	Price    ctrl.PriceSource
	Load     ctrl.LoadSource
	Battery  ctrl.BatterySource
	EV       EVSource
	Limits   LimitsSource

	UpdateInterval time.Duration
	OptimizeTimeout time.Duration
	Zone           *time.Location
	Logger         *log.Logger

	state sharedState

	stopChan chan struct{}
	doneOuter chan struct{}
	doneInner chan struct{}
}

// Start launches the outer and inner loops. Stop blocks until both have
// observed the stop-signal.
func (s *Scheduler) Start() {
	s.stopChan = make(chan struct{})
	s.doneOuter = make(chan struct{})
	s.doneInner = make(chan struct{})

	go s.runOuterLoop()
	go s.runInnerLoop()
}

// Stop requests cooperative shutdown and waits for both loops to exit.
func (s *Scheduler) Stop() {
	close(s.stopChan)
	<-s.doneOuter
	<-s.doneInner
}

// Snapshot returns the current observable scheduler state.
func (s *Scheduler) Snapshot() Snapshot {
	return s.state.snapshot()
}

// SetOverride installs or clears (mode=-1) a manual override.
func (s *Scheduler) SetOverride(o *ctrl.Override) {
	if o != nil && o.Mode < 0 {
		o = nil
	}
	s.state.setOverride(o)
}

func (s *Scheduler) zone() *time.Location {
	if s.Zone == nil {
		return time.UTC
	}
	return s.Zone
}

func (s *Scheduler) logf(format string, args ...interface{}) {
	if s.Logger != nil {
		s.Logger.Printf("[SCHEDULER] "+format, args...)
	}
}

// runOuterLoop implements the outer-loop 9-step contract (component design
// §4.1). It runs the first cycle immediately, then sleeps cooperatively
// until the next computed wake-time.
func (s *Scheduler) runOuterLoop() {
	defer close(s.doneOuter)

	var runtimeEstimate time.Duration

	for {
		s.runOuterCycle(&runtimeEstimate)

		wake, filler := NextWake(time.Now(), runtimeEstimate, s.UpdateInterval)
		s.state.setNextRun(wake)
		if !filler.IsZero() {
			s.logf("gap-fill: filler run at %s, next quarter-aligned run at %s", wake, filler)
		}

		if s.sleepUntil(wake) {
			return
		}
	}
}

func (s *Scheduler) runOuterCycle(runtimeEstimate *time.Duration) {
	now := time.Now()

	// Step 1+2: refresh forecast/price/load and EV-charger ports. Failures
	// are logged and swallowed — an empty or missing forecast never aborts a
	// cycle.
	for _, r := range []interface{}{s.Forecast, s.Price, s.Load, s.EV} {
		if ref, ok := r.(Refreshable); ok {
			if err := ref.Refresh(); err != nil {
				s.logf("port refresh failed: %v", err)
			}
		}
	}

	// Step 3: build request.
	req := s.Assembler.Build(s.Forecast, s.Price, s.Load, s.Battery, s.state.startSolution(), now)
	s.state.setRequestSent(req, now)

	// Step 4: call backend.
	timeout := s.OptimizeTimeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	resp, avg := s.Backend.Optimize(req, timeout)
	*runtimeEstimate = avg

	// Step 5+6: store response, mark received.
	receivedAt := time.Now()
	s.state.setResponseReceived(resp, receivedAt)

	if resp.HasError() {
		s.logf("optimizer call failed, skipping control update this cycle: %s", resp.Error)
		return
	}

	// Step 7: interpret and drive the control state machine.
	dec, startSolution, released := s.Interpreter.Interpret(resp, receivedAt)
	s.state.setInterpreted(dec, startSolution, released)

	ev := ctrl.EVTelemetry{}
	if s.EV != nil {
		ev = s.EV.EVTelemetry()
	}
	var limits ctrl.DynamicLimits
	if s.Limits != nil {
		limits = s.Limits.DynamicLimits()
	}
	override := s.state.getOverride()

	s.Machine.Evaluate(dec[0], ev, override, limits, s.Inverter, receivedAt)
}

// runInnerLoop implements the inner-loop telemetry-refresh contract: every
// ≈15s, if the inverter is of the fronius_gen24 family, refresh and publish
// its thermal telemetry; otherwise no-op. Failures log-and-continue and
// never disrupt the outer loop.
func (s *Scheduler) runInnerLoop() {
	defer close(s.doneInner)

	for {
		if s.sleepUntil(time.Now().Add(innerLoopInterval)) {
			return
		}

		thermal, ok := s.Inverter.(ThermalInverter)
		if !ok || thermal.Family() != "fronius_gen24" {
			continue
		}
		if err := thermal.RefreshThermals(); err != nil {
			s.logf("inner loop: thermal refresh failed: %v", err)
		}
	}
}

// sleepUntil blocks in ≤1s chunks until wake or the stop-signal fires.
// Returns true iff the stop-signal fired.
func (s *Scheduler) sleepUntil(wake time.Time) bool {
	for {
		remaining := time.Until(wake)
		if remaining <= 0 {
			return false
		}
		chunk := remaining
		if chunk > sleepChunk {
			chunk = sleepChunk
		}
		select {
		case <-s.stopChan:
			return true
		case <-time.After(chunk):
		}
	}
}
