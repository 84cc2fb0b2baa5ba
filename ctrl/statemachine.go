package ctrl

import (
	"log"
	"time"
)

// EVTelemetry is the subset of EV-charger port state the state machine
// reads.
type EVTelemetry struct {
	Charging bool
	Mode     EVChargerMode
}

// SelectState is the pure selection function required by DESIGN NOTES: the
// exact interaction between a DISCHARGE_ALLOWED optimizer decision and an EV
// mode of pv/minpv is not documented in the source, so every cell of the
// priority table is enumerated explicitly here and pinned by tests.
//
// Priority order: active override wins outright; otherwise EV-charging
// state/mode is checked before the optimizer-driven (ac/dc/discharge)
// cells, matching the table in the component design.
func SelectState(slot HourSlot, ev EVTelemetry, override *Override, now time.Time) OverallState {
	if override != nil && override.Active(now) {
		return OverallState(override.Mode)
	}

	if ev.Charging {
		switch ev.Mode {
		case EVModeNow:
			return StateAvoidDischargeEVFast
		case EVModePV:
			return StateDischargeAllowedEVPV
		case EVModeMinPV:
			return StateDischargeAllowedEVMinPV
		default:
			// off/unknown mode while "charging" is reported true falls back
			// to the non-EV table below, since no observed behavior pins a
			// cell for that combination.
		}
	}

	switch {
	case slot.ACChargeDemand > 0:
		return StateChargeFromGrid
	case slot.DCChargeDemand == 0 && !slot.DischargeAllowed:
		return StateAvoidDischarge
	case slot.DischargeAllowed:
		return StateDischargeAllowed
	default:
		return StateAvoidDischarge
	}
}

// DynamicLimits is the battery port's SoC-dependent ceiling on charge power.
type DynamicLimits struct {
	MaxGridChargeW float64
	MaxPVChargeW   float64
	DynMaxChargeW  float64 // from the battery port, SoC-dependent
}

// Targets computes the commanded charge power targets for the current slot.
func (l DynamicLimits) Targets(slot HourSlot) (tgtACW, tgtDCW float64) {
	tgtACW = min(slot.ACChargeDemand*l.MaxGridChargeW, l.DynMaxChargeW)
	tgtDCW = min(slot.DCChargeDemand*l.MaxPVChargeW, l.DynMaxChargeW)
	return
}

// Inverter is the capability interface the state machine commands. Drivers
// implement whichever methods apply; SetMaxPVChargeRate is optional.
type Inverter interface {
	SetForceCharge(watts float64) error
	SetAvoidDischarge() error
	SetAllowDischarge() error
}

// PVChargeLimiter is an optional inverter capability for drivers with an
// explicit PV charge cap.
type PVChargeLimiter interface {
	SetMaxPVChargeRate(watts float64) error
}

// Machine is the stateful control state machine: it tracks the last
// selected state and its transition time, and serializes command dispatch
// as a critical section.
type Machine struct {
	Logger *log.Logger

	state     OverallState
	changedAt time.Time
}

// NewMachine returns a machine initialized to StateUninitialized.
func NewMachine(logger *log.Logger) *Machine {
	return &Machine{Logger: logger, state: StateUninitialized}
}

// Recent reports whether the current state changed within RecentWindow of
// now.
func (m *Machine) Recent(now time.Time) bool {
	return now.Sub(m.changedAt) < RecentWindow
}

// Evaluate selects the new state, updates changedAt if it differs from the
// previous state, and — if the state changed recently — dispatches the
// matching command to inv. Returns true iff a command was issued.
func (m *Machine) Evaluate(slot HourSlot, ev EVTelemetry, override *Override, limits DynamicLimits, inv Inverter, now time.Time) bool {
	next := SelectState(slot, ev, override, now)
	if next != m.state {
		m.state = next
		m.changedAt = now
	}

	if !m.Recent(now) {
		if m.Logger != nil {
			m.Logger.Printf("[CTRL] state %s not recent, skipping command", m.state)
		}
		return false
	}

	tgtAC, tgtDC := limits.Targets(slot)
	if override != nil && override.Active(now) {
		tgtAC = override.GridChargeKW * 1000
	}

	var err error
	switch m.state {
	case StateChargeFromGrid:
		err = inv.SetForceCharge(tgtAC)
	case StateAvoidDischarge, StateAvoidDischargeEVFast:
		err = inv.SetAvoidDischarge()
	case StateDischargeAllowed, StateDischargeAllowedEVPV, StateDischargeAllowedEVMinPV:
		err = inv.SetAllowDischarge()
	default:
		return false
	}
	if err != nil {
		if m.Logger != nil {
			m.Logger.Printf("[CTRL] inverter command failed: %v", err)
		}
		return false
	}

	if limiter, ok := inv.(PVChargeLimiter); ok {
		if lerr := limiter.SetMaxPVChargeRate(tgtDC); lerr != nil && m.Logger != nil {
			m.Logger.Printf("[CTRL] set max PV charge rate failed: %v", lerr)
		}
	}

	return true
}

// State returns the currently selected overall state.
func (m *Machine) State() OverallState { return m.state }

// ChangedAt returns the timestamp of the last state transition.
func (m *Machine) ChangedAt() time.Time { return m.changedAt }
