// Package evopt implements the EVopt backend: a bidirectional schema
// translator between the canonical EOS-shaped model and the EVopt wire
// format (strategy/grid/batteries[]/time_series). Grounded field-for-field
// on optimization_backend_evopt.py.
package evopt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"net/http"
	"time"

	"github.com/devskill-org/ems/backend"
	"github.com/devskill-org/ems/ctrl"
)

// Hardcoded per spec §9 Open Questions: the source hardcodes these; they
// are preserved as constants, not configuration, unless deliberately
// parameterized by a future implementer.
const (
	gridImportLimitW     = 10000.0
	gridExportLimitW     = 10000.0
	chargingStrategy     = "charge_before_export"
	dischargingStrategy  = "discharge_before_import"
	defaultBatteryEta    = 0.95
)

// Backend is the EVopt translating adapter.
type Backend struct {
	BaseURL       string
	TimeFrameBase int // seconds: 3600 (hourly) or 900 (quarter-hour)
	Zone          *time.Location
	Logger        *log.Logger

	client  *http.Client
	runtime backend.RuntimeTracker
}

// New returns an EVopt backend posting to baseURL.
func New(baseURL string, timeFrameBase int, zone *time.Location, logger *log.Logger) *Backend {
	return &Backend{
		BaseURL:       baseURL,
		TimeFrameBase: timeFrameBase,
		Zone:          zone,
		Logger:        logger,
		client:        &http.Client{},
	}
}

type evoptBattery struct {
	DeviceID        string    `json:"device_id"`
	ChargeFromGrid  bool      `json:"charge_from_grid"`
	DischargeToGrid bool      `json:"discharge_to_grid"`
	SMin            float64   `json:"s_min"`
	SMax            float64   `json:"s_max"`
	SInitial        float64   `json:"s_initial"`
	PDemand         []float64 `json:"p_demand"`
	SGoal           []float64 `json:"s_goal"`
	CMin            float64   `json:"c_min"`
	CMax            float64   `json:"c_max"`
	DMax            float64   `json:"d_max"`
	PA              float64   `json:"p_a"`
}

type evoptRequest struct {
	Strategy struct {
		ChargingStrategy    string `json:"charging_strategy"`
		DischargingStrategy string `json:"discharging_strategy"`
	} `json:"strategy"`
	Grid struct {
		PMaxImp    float64 `json:"p_max_imp"`
		PMaxExp    float64 `json:"p_max_exp"`
		PrcPImpExc float64 `json:"prc_p_imp_exc"`
	} `json:"grid"`
	Batteries  []evoptBattery `json:"batteries"`
	TimeSeries struct {
		Dt []float64 `json:"dt"`
		Gt []float64 `json:"gt"`
		Ft []float64 `json:"ft"`
		PN []float64 `json:"p_N"`
		PE []float64 `json:"p_E"`
	} `json:"time_series"`
	EtaC float64 `json:"eta_c"`
	EtaD float64 `json:"eta_d"`
}

type evoptBatteryResp struct {
	ChargingPower    []float64 `json:"charging_power"`
	DischargingPower []float64 `json:"discharging_power"`
	StateOfCharge    []float64 `json:"state_of_charge"`
}

type evoptResponse struct {
	Batteries   []evoptBatteryResp `json:"batteries"`
	GridImport  []float64          `json:"grid_import"`
	GridExport  []float64          `json:"grid_export"`
	Start       []float64          `json:"start_solution"`
	WashStart   *int               `json:"washingstart"`
	EautoObj    *struct {
		ChargeArray []float64 `json:"charge_array"`
	} `json:"eauto_obj"`
}

// currentSlot returns the slot index of "now" within the day at the given
// resolution, and the total slots per day (n-cap).
func currentSlot(now time.Time, timeFrameBase int) (slot, capN int) {
	if timeFrameBase == 900 {
		return now.Hour()*4 + now.Minute()/15, 192
	}
	return now.Hour(), 48
}

// sliceFromNow implements Step A.1: slice to horizon starting "now" with
// wrap-around at quarter-hour resolution, or a simple drop-the-past slice
// at hourly resolution.
func sliceFromNow(series ctrl.TimeSeries, slot, capN int, quarterHour bool) ctrl.TimeSeries {
	if len(series) == 0 {
		return nil
	}
	if quarterHour {
		if slot >= len(series) {
			slot = 0
		}
		wrapped := append(append(ctrl.TimeSeries{}, series[slot:]...), series[:slot]...)
		if len(wrapped) > capN {
			wrapped = wrapped[:capN]
		}
		return wrapped
	}
	if slot < len(series) {
		return series[slot:]
	}
	return series
}

func normalize(series ctrl.TimeSeries, n int) []float64 {
	out := make([]float64, n)
	if len(series) == 0 {
		return out
	}
	last := series[len(series)-1]
	for i := 0; i < n; i++ {
		if i < len(series) {
			out[i] = series[i]
		} else {
			out[i] = last
		}
	}
	return out
}

// ValidationError carries external-validation problems found before POST;
// the payload is still built and sent for inspection.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("evopt request validation: %v", e.Errors)
}

func validateExternal(req ctrl.OptimizeRequest) []string {
	var errs []string
	lengths := map[string]int{}
	series := map[string]ctrl.TimeSeries{
		"pv": req.EMS.PV, "price_import": req.EMS.PriceImport,
		"price_feedin": req.EMS.PriceFeedin, "load": req.EMS.Load,
	}
	for name, s := range series {
		if len(s) == 0 {
			errs = append(errs, fmt.Sprintf("ems series %q missing or empty", name))
			continue
		}
		for _, v := range s {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				errs = append(errs, fmt.Sprintf("ems series %q contains NaN/Inf", name))
				break
			}
		}
		lengths[name] = len(s)
	}
	first := -1
	for _, l := range lengths {
		if first == -1 {
			first = l
		} else if l != first {
			errs = append(errs, "ems series lengths do not match")
			break
		}
	}
	if req.Battery.CapacityWh < 0 {
		errs = append(errs, "battery capacity must not be negative")
	}
	if req.Battery.MinSoCPct < 0 || req.Battery.MaxSoCPct > 100 {
		errs = append(errs, "battery SoC percentages must lie within [0,100]")
	}
	return errs
}

// translateRequest implements Step A in full.
func (b *Backend) translateRequest(req ctrl.OptimizeRequest, now time.Time) (evoptRequest, []string) {
	errs := validateExternal(req)

	quarterHour := b.TimeFrameBase == 900
	slot, capN := currentSlot(now, b.TimeFrameBase)

	pv := sliceFromNow(req.EMS.PV, slot, capN, quarterHour)
	price := sliceFromNow(req.EMS.PriceImport, slot, capN, quarterHour)
	feed := sliceFromNow(req.EMS.PriceFeedin, slot, capN, quarterHour)
	load := sliceFromNow(req.EMS.Load, slot, capN, quarterHour)

	var n int
	if quarterHour {
		n = capN
	} else {
		lengths := []int{}
		for _, s := range []ctrl.TimeSeries{pv, price, feed, load} {
			if len(s) > 0 {
				lengths = append(lengths, len(s))
			}
		}
		n = 1
		if len(lengths) > 0 {
			n = lengths[0]
			for _, l := range lengths {
				if l < n {
					n = l
				}
			}
		}
	}

	var w evoptRequest
	w.Strategy.ChargingStrategy = chargingStrategy
	w.Strategy.DischargingStrategy = dischargingStrategy
	w.Grid.PMaxImp = gridImportLimitW
	w.Grid.PMaxExp = gridExportLimitW
	w.Grid.PrcPImpExc = 0

	// Batteries: Python omits the battery entirely when capacity <= 0,
	// rather than emitting a zero-capacity placeholder — see SPEC_FULL.md
	// "zero-capacity battery placeholder vs. omission".
	etaC, etaD := defaultBatteryEta, defaultBatteryEta
	if req.Battery.CapacityWh > 0 {
		if req.Battery.ChargeEff > 0 {
			etaC = req.Battery.ChargeEff
		}
		if req.Battery.DischargeEff > 0 {
			etaD = req.Battery.DischargeEff
		}
		sMin := req.Battery.CapacityWh * req.Battery.MinSoCPct / 100.0
		sMax := req.Battery.CapacityWh * req.Battery.MaxSoCPct / 100.0
		sInitial := req.Battery.CapacityWh * req.Battery.InitialSoCPct / 100.0
		w.Batteries = append(w.Batteries, evoptBattery{
			DeviceID:        "akku1",
			ChargeFromGrid:  true,
			DischargeToGrid: true,
			SMin:            sMin,
			SMax:            sMax,
			SInitial:        sInitial,
			PDemand:         make([]float64, n),
			SGoal:           make([]float64, n),
			CMin:            0,
			CMax:            req.Battery.MaxChargeW,
			DMax:            req.Battery.MaxChargeW,
			PA:              0,
		})
	}
	w.EtaC, w.EtaD = etaC, etaD

	zone := b.Zone
	if zone == nil {
		zone = time.UTC
	}
	nowZ := now.In(zone)
	secondsSinceMidnight := nowZ.Hour()*3600 + nowZ.Minute()*60 + nowZ.Second()
	tfb := b.TimeFrameBase
	if tfb == 0 {
		tfb = 3600
	}
	dtFirst := float64(tfb - secondsSinceMidnight%tfb)
	dt := make([]float64, n)
	if n > 0 {
		dt[0] = dtFirst
		for i := 1; i < n; i++ {
			dt[i] = float64(tfb)
		}
	}
	w.TimeSeries.Dt = dt
	w.TimeSeries.Gt = normalize(load, n)
	w.TimeSeries.Ft = normalize(pv, n)
	w.TimeSeries.PN = normalize(price, n)
	w.TimeSeries.PE = normalize(feed, n)

	return w, errs
}

func validateInternal(w evoptRequest) []string {
	var errs []string
	if w.Strategy.ChargingStrategy == "" || w.Strategy.DischargingStrategy == "" {
		errs = append(errs, "strategy fields must be non-empty strings")
	}
	n := len(w.TimeSeries.Dt)
	for name, s := range map[string][]float64{
		"gt": w.TimeSeries.Gt, "ft": w.TimeSeries.Ft, "p_N": w.TimeSeries.PN, "p_E": w.TimeSeries.PE,
	} {
		if len(s) != n {
			errs = append(errs, fmt.Sprintf("time_series.%s length mismatch", name))
		}
	}
	for _, batt := range w.Batteries {
		if len(batt.PDemand) != n || len(batt.SGoal) != n {
			errs = append(errs, "battery p_demand/s_goal length mismatch with dt")
		}
	}
	return errs
}

// translateResponse implements Step C.
func (b *Backend) translateResponse(resp evoptResponse, req evoptRequest, now time.Time) *ctrl.OptimizeResponse {
	zone := b.Zone
	if zone == nil {
		zone = time.UTC
	}
	nowZ := now.In(zone)
	h := nowZ.Hour()
	const nTotal = 48
	n := nTotal - h
	if b.TimeFrameBase == 900 {
		n *= 4
	}
	if n < 0 {
		n = 0
	}

	var battResp evoptBatteryResp
	if len(resp.Batteries) > 0 {
		battResp = resp.Batteries[0]
	}
	chargingPower := padTo(battResp.ChargingPower, n)
	dischargingPower := padTo(battResp.DischargingPower, n)
	socWh := truncTo(battResp.StateOfCharge, n)
	gridImport := padTo(resp.GridImport, n)
	gridExport := padTo(resp.GridExport, n)

	pN := padLastOrZero(req.TimeSeries.PN, n)
	pE := padLastOrZero(req.TimeSeries.PE, n)

	var cMax, dMax float64
	if len(req.Batteries) > 0 {
		cMax = req.Batteries[0].CMax
		dMax = req.Batteries[0].DMax
	}
	if cMax <= 0 {
		cMax = maxOf(chargingPower, 1.0)
	}
	if dMax <= 0 {
		dMax = maxOf(dischargingPower, 1.0)
	}

	acCharge := make(ctrl.TimeSeries, n)
	for i := 0; i < n; i++ {
		chargeFromGrid := math.Min(chargingPower[i], gridImport[i])
		frac := 0.0
		if cMax > 0 {
			frac = chargeFromGrid / cMax
		}
		if math.IsNaN(frac) {
			frac = 0
		}
		frac = math.Max(0, math.Min(1, frac))
		if gridImport[i] <= 0 {
			frac = 0
		}
		acCharge[i] = frac
	}

	dcCharge := make(ctrl.TimeSeries, n)
	discharge := make([]int, n)
	kosten := make([]float64, n)
	einnahmen := make([]float64, n)
	verluste := make([]float64, n)
	for i := 0; i < n; i++ {
		if chargingPower[i] > 0 {
			dcCharge[i] = 1.0
		}
		if dischargingPower[i] > 1e-9 {
			discharge[i] = 1
		}
		kosten[i] = gridImport[i] * pN[i]
		einnahmen[i] = gridExport[i] * pE[i]
		etaC, etaD := req.EtaC, req.EtaD
		if etaC == 0 {
			etaC = defaultBatteryEta
		}
		if etaD == 0 {
			etaD = defaultBatteryEta
		}
		verluste[i] = chargingPower[i]*(1-etaC) + dischargingPower[i]*(1-etaD)
	}

	var socPct ctrl.TimeSeries
	if len(socWh) > 0 {
		ref := 0.0
		if len(req.Batteries) > 0 && req.Batteries[0].SMax > 0 {
			ref = req.Batteries[0].SMax
		} else {
			ref = maxOf(socWh, 0)
		}
		socPct = make(ctrl.TimeSeries, len(socWh))
		for i, v := range socWh {
			if ref > 0 {
				socPct[i] = v / ref * 100.0
			} else {
				socPct[i] = v
			}
		}
	}

	startSolution := make([]int, n)
	switch {
	case len(resp.Start) > 0:
		for i := 0; i < n && i < len(resp.Start); i++ {
			startSolution[i] = int(resp.Start[i])
		}
	case resp.EautoObj != nil && len(resp.EautoObj.ChargeArray) > 0:
		for i := 0; i < n && i < len(resp.EautoObj.ChargeArray); i++ {
			if resp.EautoObj.ChargeArray[i] > 0 {
				startSolution[i] = 1
			}
		}
	}

	var totalLoss, totalBalance, totalRevenue, totalCost float64
	for i := 0; i < n; i++ {
		totalLoss += verluste[i]
		totalRevenue += einnahmen[i]
		totalCost += kosten[i]
	}
	totalBalance = totalRevenue - totalCost

	lastWh := padLastOrZero(req.TimeSeries.Gt, n)
	if len(lastWh) == 0 {
		lastWh = gridImport
	}

	padPast := make(ctrl.TimeSeries, h)
	padPastInt := make([]int, h)
	if b.TimeFrameBase == 900 {
		padPast = make(ctrl.TimeSeries, h*4)
		padPastInt = make([]int, h*4)
	}

	out := &ctrl.OptimizeResponse{
		ACCharge:         append(append(ctrl.TimeSeries{}, padPast...), acCharge...),
		DCCharge:         append(append(ctrl.TimeSeries{}, padPast...), dcCharge...),
		DischargeAllowed: append(append([]int{}, padPastInt...), discharge...),
		StartSolution:    append(append([]int{}, padPastInt...), startSolution...),
		HouseholdLoadWh:  ctrl.TimeSeries(lastWh),
		GridImportWh:     ctrl.TimeSeries(gridImport),
		GridExportWh:     ctrl.TimeSeries(gridExport),
		RevenueEuro:      ctrl.TimeSeries(einnahmen),
		CostEuro:         ctrl.TimeSeries(kosten),
		BatterySoCPct:    socPct,
		PricePerSlot:     ctrl.TimeSeries(pN),
		Totals: &ctrl.Totals{
			LossesWh:    totalLoss,
			BalanceEuro: totalBalance,
			RevenueEuro: totalRevenue,
			CostEuro:    totalCost,
		},
		WashingStart: resp.WashStart,
		Timestamp:    nowZ,
	}
	return out
}

func padTo(s []float64, n int) []float64 {
	out := make([]float64, n)
	copy(out, s)
	return out
}

func truncTo(s []float64, n int) []float64 {
	if len(s) > n {
		return s[:n]
	}
	return s
}

func padLastOrZero(s []float64, n int) []float64 {
	out := make([]float64, n)
	if len(s) == 0 {
		return out
	}
	last := s[len(s)-1]
	for i := 0; i < n; i++ {
		if i < len(s) {
			out[i] = s[i]
		} else {
			out[i] = last
		}
	}
	return out
}

func maxOf(s []float64, fallback float64) float64 {
	m := 0.0
	for _, v := range s {
		if v > m {
			m = v
		}
	}
	if m <= 0 {
		return fallback
	}
	return m
}

// Optimize translates req to EVopt format, POSTs it to
// `{base}/optimize/charge-schedule`, and translates the response back.
func (b *Backend) Optimize(req ctrl.OptimizeRequest, timeout time.Duration) (*ctrl.OptimizeResponse, time.Duration) {
	zone := b.Zone
	if zone == nil {
		zone = time.UTC
	}
	now := time.Now().In(zone)

	wreq, extErrs := b.translateRequest(req, now)
	if len(extErrs) > 0 {
		b.logf("request translation errors: %v", extErrs)
	}
	if intErrs := validateInternal(wreq); len(intErrs) > 0 {
		b.logf("internal schema validation errors: %v", intErrs)
	}

	body, err := json.Marshal(wreq)
	if err != nil {
		return &ctrl.OptimizeResponse{Error: err.Error(), Timestamp: now}, b.runtime.Average()
	}

	url := b.BaseURL + "/optimize/charge-schedule"
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return &ctrl.OptimizeResponse{Error: err.Error(), Timestamp: now}, b.runtime.Average()
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	httpResp, err := b.client.Do(httpReq)
	elapsed := time.Since(start)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			b.logf("request timed out after %s", timeout)
			return &ctrl.OptimizeResponse{Error: "Request timed out - trying again with next run", Timestamp: now}, b.runtime.Average()
		}
		b.logf("connection error at %s: %v", b.BaseURL, err)
		return &ctrl.OptimizeResponse{Error: fmt.Sprintf("EVopt server not reachable at %s will try again with next cycle", b.BaseURL), Timestamp: now}, b.runtime.Average()
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		b.logf("response status: %d", httpResp.StatusCode)
		return &ctrl.OptimizeResponse{Error: fmt.Sprintf("unexpected status %d", httpResp.StatusCode), Timestamp: now}, b.runtime.Average()
	}

	var wresp evoptResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&wresp); err != nil {
		b.logf("invalid JSON body: %v", err)
		return &ctrl.OptimizeResponse{Error: err.Error(), Timestamp: now}, b.runtime.Average()
	}

	avg := b.runtime.Record(elapsed)
	return b.translateResponse(wresp, wreq, now), avg
}

func (b *Backend) logf(format string, args ...interface{}) {
	if b.Logger != nil {
		b.Logger.Printf("[BACKEND:EVOPT] "+format, args...)
	}
}
