// Package eos implements the native "EOS" backend: a pass-through adapter
// to a remote optimizer speaking the same schema as the canonical internal
// model, up to a documented field renaming. Grounded on
// optimization_backend_eos.py and the teacher's net/http client usage
// (meteo/client.go, entsoe/api_client.go).
package eos

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/devskill-org/ems/backend"
	"github.com/devskill-org/ems/ctrl"
)

// Backend is the EOS pass-through adapter.
type Backend struct {
	BaseURL string
	Zone    *time.Location
	Logger  *log.Logger

	client  *http.Client
	runtime backend.RuntimeTracker
}

// New returns an EOS backend posting to baseURL.
func New(baseURL string, zone *time.Location, logger *log.Logger) *Backend {
	return &Backend{
		BaseURL: baseURL,
		Zone:    zone,
		Logger:  logger,
		client:  &http.Client{},
	}
}

// wireRequest is the EOS server's native JSON shape. Field names follow the
// original EOS schema (German household-load naming retained verbatim,
// matching the wire contract external servers expect).
type wireRequest struct {
	EMS struct {
		PVPrognoseWh              []float64 `json:"pv_prognose_wh"`
		StrompreisEuroProWh       []float64 `json:"strompreis_euro_pro_wh"`
		EinspeiseverguetungEuro   []float64 `json:"einspeiseverguetung_euro_pro_wh"`
		Gesamtlast                []float64 `json:"gesamtlast"`
	} `json:"ems"`
	PVAkku struct {
		CapacityWh       float64 `json:"capacity_wh"`
		InitialSoCPct    float64 `json:"initial_soc_percentage"`
		MinSoCPct        float64 `json:"min_soc_percentage"`
		MaxSoCPct        float64 `json:"max_soc_percentage"`
		MaxChargePowerW  float64 `json:"max_charge_power_w"`
		ChargingEff      float64 `json:"charging_efficiency"`
		DischargingEff   float64 `json:"discharging_efficiency"`
	} `json:"pv_akku"`
	InverterMaxW  float64 `json:"inverter_max_w"`
	StartSolution []int   `json:"start_solution,omitempty"`
}

type wireResponse struct {
	ACCharge         []float64 `json:"ac_charge"`
	DCCharge         []float64 `json:"dc_charge"`
	DischargeAllowed []int     `json:"discharge_allowed"`
	StartSolution    []int     `json:"start_solution"`
	WashingStart     *int      `json:"washingstart"`
	Error            string    `json:"error"`
	Result           struct {
		LastWhProStunde          []float64 `json:"Last_Wh_pro_Stunde"`
		NetzbezugWhProStunde     []float64 `json:"Netzbezug_Wh_pro_Stunde"`
		NetzeinspeisungWhProS    []float64 `json:"Netzeinspeisung_Wh_pro_Stunde"`
		EinnahmenEuroProStunde   []float64 `json:"Einnahmen_Euro_pro_Stunde"`
		KostenEuroProStunde      []float64 `json:"Kosten_Euro_pro_Stunde"`
		AkkuSoCProStunde         []float64 `json:"akku_soc_pro_stunde"`
		ElectricityPrice         []float64 `json:"Electricity_price"`
		GesamtVerluste           float64   `json:"Gesamt_Verluste"`
		GesamtbilanzEuro         float64   `json:"Gesamtbilanz_Euro"`
		GesamteinnahmenEuro      float64   `json:"Gesamteinnahmen_Euro"`
		GesamtkostenEuro         float64   `json:"Gesamtkosten_Euro"`
	} `json:"result"`
}

func toWireRequest(req ctrl.OptimizeRequest) wireRequest {
	var w wireRequest
	w.EMS.PVPrognoseWh = req.EMS.PV
	w.EMS.StrompreisEuroProWh = req.EMS.PriceImport
	w.EMS.EinspeiseverguetungEuro = req.EMS.PriceFeedin
	w.EMS.Gesamtlast = req.EMS.Load
	w.PVAkku.CapacityWh = req.Battery.CapacityWh
	w.PVAkku.InitialSoCPct = req.Battery.InitialSoCPct
	w.PVAkku.MinSoCPct = req.Battery.MinSoCPct
	w.PVAkku.MaxSoCPct = req.Battery.MaxSoCPct
	w.PVAkku.MaxChargePowerW = req.Battery.MaxChargeW
	w.PVAkku.ChargingEff = req.Battery.ChargeEff
	w.PVAkku.DischargingEff = req.Battery.DischargeEff
	w.InverterMaxW = req.InverterMaxW
	w.StartSolution = req.StartSolution
	return w
}

func fromWireResponse(w wireResponse, now time.Time) *ctrl.OptimizeResponse {
	if w.Error != "" {
		return &ctrl.OptimizeResponse{Error: w.Error, Timestamp: now}
	}
	return &ctrl.OptimizeResponse{
		ACCharge:         w.ACCharge,
		DCCharge:         w.DCCharge,
		DischargeAllowed: w.DischargeAllowed,
		StartSolution:    w.StartSolution,
		WashingStart:     w.WashingStart,
		HouseholdLoadWh:  w.Result.LastWhProStunde,
		GridImportWh:     w.Result.NetzbezugWhProStunde,
		GridExportWh:     w.Result.NetzeinspeisungWhProS,
		RevenueEuro:      w.Result.EinnahmenEuroProStunde,
		CostEuro:         w.Result.KostenEuroProStunde,
		BatterySoCPct:    w.Result.AkkuSoCProStunde,
		PricePerSlot:     w.Result.ElectricityPrice,
		Totals: &ctrl.Totals{
			LossesWh:    w.Result.GesamtVerluste,
			BalanceEuro: w.Result.GesamtbilanzEuro,
			RevenueEuro: w.Result.GesamteinnahmenEuro,
			CostEuro:    w.Result.GesamtkostenEuro,
		},
		Timestamp: now,
	}
}

// Optimize posts the canonical request to `{base}/optimize?start_hour={H}`
// and parses the JSON body. Timeout and connection errors yield an
// {error:...} response without raising, matching optimization_backend_eos.py.
func (b *Backend) Optimize(req ctrl.OptimizeRequest, timeout time.Duration) (*ctrl.OptimizeResponse, time.Duration) {
	zone := b.Zone
	if zone == nil {
		zone = time.UTC
	}
	now := time.Now().In(zone)
	url := fmt.Sprintf("%s/optimize?start_hour=%d", b.BaseURL, now.Hour())

	body, err := json.Marshal(toWireRequest(req))
	if err != nil {
		return &ctrl.OptimizeResponse{Error: err.Error(), Timestamp: now}, b.runtime.Average()
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return &ctrl.OptimizeResponse{Error: err.Error(), Timestamp: now}, b.runtime.Average()
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := b.client.Do(httpReq)
	elapsed := time.Since(start)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			b.logf("OPTIMIZE request timed out after %s", timeout)
			return &ctrl.OptimizeResponse{Error: "Request timed out - trying again with next run", Timestamp: now}, b.runtime.Average()
		}
		b.logf("OPTIMIZE connection error at %s: %v", b.BaseURL, err)
		return &ctrl.OptimizeResponse{Error: fmt.Sprintf("EOS server not reachable at %s will try again with next cycle", b.BaseURL), Timestamp: now}, b.runtime.Average()
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b.logf("OPTIMIZE response status: %d", resp.StatusCode)
		return &ctrl.OptimizeResponse{Error: fmt.Sprintf("unexpected status %d", resp.StatusCode), Timestamp: now}, b.runtime.Average()
	}

	var w wireResponse
	if err := json.NewDecoder(resp.Body).Decode(&w); err != nil {
		b.logf("OPTIMIZE invalid JSON body: %v", err)
		return &ctrl.OptimizeResponse{Error: err.Error(), Timestamp: now}, b.runtime.Average()
	}

	avg := b.runtime.Record(elapsed)
	return fromWireResponse(w, now), avg
}

func (b *Backend) logf(format string, args ...interface{}) {
	if b.Logger != nil {
		b.Logger.Printf("[BACKEND:EOS] "+format, args...)
	}
}
