package ctrl

import "time"

// Interpreter extracts the current-hour control decision from an
// OptimizeResponse. It does not command the inverter; it only populates
// state consumed by the Control State Machine.
type Interpreter struct {
	Zone *time.Location
}

// Interpret reads the response for the current wall-clock hour H in the
// interpreter's configured zone and returns the (current_hour, next_hour)
// decision pair plus the warm-start vector and the home-appliance release
// flag.
func (ip *Interpreter) Interpret(resp *OptimizeResponse, now time.Time) (ControlDecision, []int, bool) {
	zone := ip.Zone
	if zone == nil {
		zone = time.UTC
	}
	h := now.In(zone).Hour()
	next := h + 1
	if next > 23 {
		next = 0
	}

	var dec ControlDecision
	dec[0].Hour = h
	dec[1].Hour = next

	if resp == nil || resp.HasError() {
		dec[0].Error = true
		dec[1].Error = true
		return dec, nil, false
	}

	missingControls := len(resp.ACCharge) == 0 && len(resp.DCCharge) == 0 && len(resp.DischargeAllowed) == 0
	shortStartSolution := len(resp.StartSolution) <= 1

	if missingControls || shortStartSolution {
		dec[0].Error = true
		dec[1].Error = true
		return dec, resp.StartSolution, false
	}

	if h < len(resp.ACCharge) {
		dec[0].ACChargeDemand = resp.ACCharge[h]
	}
	if next < len(resp.ACCharge) {
		dec[1].ACChargeDemand = resp.ACCharge[next]
	}
	if h < len(resp.DCCharge) {
		dec[0].DCChargeDemand = resp.DCCharge[h]
	}
	if next < len(resp.DCCharge) {
		dec[1].DCChargeDemand = resp.DCCharge[next]
	}
	if h < len(resp.DischargeAllowed) {
		dec[0].DischargeAllowed = resp.DischargeAllowed[h] != 0
	}
	if next < len(resp.DischargeAllowed) {
		dec[1].DischargeAllowed = resp.DischargeAllowed[next] != 0
	}

	released := resp.WashingStart != nil && *resp.WashingStart == h

	return dec, resp.StartSolution, released
}
