// Package ctrl holds the canonical data model shared between the request
// assembler, the optimizer backend adapters, the response interpreter, and
// the control state machine.
package ctrl

import "time"

// TimeSeries is an ordered sequence of non-negative slot values (48 hourly
// slots, or 192 quarter-hour slots). Slot 0 starts at today's midnight in
// the configured zone, so slot i of an hourly series is hour i of the day.
type TimeSeries []float64

// Resolution identifies the slot width shared by every series in a request.
type Resolution int

const (
	ResolutionHourly Resolution = iota
	ResolutionQuarterHour
)

// Slots returns the canonical horizon length for the resolution.
func (r Resolution) Slots() int {
	if r == ResolutionQuarterHour {
		return 192
	}
	return 48
}

// Pad returns a copy of ts extended to length n by repeating the last value,
// or truncated to length n if it is already longer. An empty series pads
// with zero.
func (ts TimeSeries) Pad(n int) TimeSeries {
	out := make(TimeSeries, n)
	if len(ts) == 0 {
		return out
	}
	copy(out, ts)
	last := ts[len(ts)-1]
	for i := len(ts); i < n; i++ {
		out[i] = last
	}
	if len(ts) > n {
		out = append(TimeSeries(nil), ts[:n]...)
	}
	return out
}

// BatterySpec describes the battery the optimizer is planning against.
type BatterySpec struct {
	CapacityWh    float64
	ChargeEff     float64 // (0,1]
	DischargeEff  float64 // (0,1]
	MaxChargeW    float64
	MinSoCPct     float64
	MaxSoCPct     float64
	InitialSoCPct float64
}

// EMS is the forecast/price/load bundle of a request.
type EMS struct {
	PV          TimeSeries
	PriceImport TimeSeries // €/Wh
	PriceFeedin TimeSeries // €/Wh
	Load        TimeSeries // Wh
}

// OptimizeRequest is the canonical internal request form.
type OptimizeRequest struct {
	EMS           EMS
	Battery       BatterySpec
	InverterMaxW  float64
	StartSolution []int // nil if no prior warm-start
	Resolution    Resolution
	Timestamp     time.Time
}

// Totals holds the optional scalar summaries a backend may report.
type Totals struct {
	LossesWh     float64
	BalanceEuro  float64
	RevenueEuro  float64
	CostEuro     float64
}

// OptimizeResponse is the canonical internal response form. The control
// arrays span length H (the full-day horizon at the request's resolution)
// with elapsed slots zero-padded; the result arrays are only meaningful from
// "now" onward and may start at "now", so they can be shorter than H.
type OptimizeResponse struct {
	ACCharge         TimeSeries // ∈ [0,1] grid-origin AC charge fraction of max
	DCCharge         TimeSeries // ∈ {0,1} PV-origin DC charge enable
	DischargeAllowed []int      // ∈ {0,1}
	StartSolution    []int

	// Optional result arrays for UI.
	HouseholdLoadWh TimeSeries
	GridImportWh    TimeSeries
	GridExportWh    TimeSeries
	RevenueEuro     TimeSeries
	CostEuro        TimeSeries
	BatterySoCPct   TimeSeries
	PricePerSlot    TimeSeries
	Totals          *Totals

	WashingStart *int // optional household-appliance start hour
	Timestamp    time.Time
	Error        string // non-empty => "skip control update this cycle"
}

// HasError reports whether the response carries a failure marker.
func (r *OptimizeResponse) HasError() bool {
	return r != nil && r.Error != ""
}

// HourSlot is one half of a ControlDecision: the demand figures the state
// machine reads for a single hour of the day.
type HourSlot struct {
	ACChargeDemand    float64
	DCChargeDemand    float64
	DischargeAllowed  bool
	Error             bool
	Hour              int // 0..23
}

// ControlDecision is the pair (current_hour, next_hour) used for status
// reporting and as the input to the control state machine.
type ControlDecision [2]HourSlot

// OverallState is the inverter operating mode selected for the current
// cycle.
type OverallState int

const (
	StateUninitialized            OverallState = -1
	StateChargeFromGrid           OverallState = 0
	StateAvoidDischarge           OverallState = 1
	StateDischargeAllowed         OverallState = 2
	StateAvoidDischargeEVFast     OverallState = 3
	StateDischargeAllowedEVPV     OverallState = 4
	StateDischargeAllowedEVMinPV  OverallState = 5
)

func (s OverallState) String() string {
	switch s {
	case StateChargeFromGrid:
		return "CHARGE_FROM_GRID"
	case StateAvoidDischarge:
		return "AVOID_DISCHARGE"
	case StateDischargeAllowed:
		return "DISCHARGE_ALLOWED"
	case StateAvoidDischargeEVFast:
		return "AVOID_DISCHARGE_EV_FAST"
	case StateDischargeAllowedEVPV:
		return "DISCHARGE_ALLOWED_EV_PV"
	case StateDischargeAllowedEVMinPV:
		return "DISCHARGE_ALLOWED_EV_MIN_PV"
	default:
		return "UNINITIALIZED"
	}
}

// RecentWindow is the duration within which a state change is considered
// "recent" and re-triggers a command to the inverter.
const RecentWindow = 180 * time.Second

// Override is a manual decision that supersedes optimizer output until its
// end-time.
type Override struct {
	Mode         int // -1 clears; otherwise an OverallState value 0..2
	EndTime      time.Time
	GridChargeKW float64
}

// Active reports whether the override is currently in force.
func (o Override) Active(now time.Time) bool {
	return o.Mode >= 0 && now.Before(o.EndTime)
}

// EVChargerMode is the EVCC charging mode.
type EVChargerMode string

const (
	EVModeOff   EVChargerMode = "off"
	EVModePV    EVChargerMode = "pv"
	EVModeMinPV EVChargerMode = "minpv"
	EVModeNow   EVChargerMode = "now"
)
