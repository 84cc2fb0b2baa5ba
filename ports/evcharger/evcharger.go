// Package evcharger polls an evcc (Electric Vehicle Charging Controller)
// instance's loadpoint state over its JSON API. Grounded on
// evcc_interface.py's EvccInterface: a background poller tracking
// last-known charging state/mode, with the HTTP fetch itself kept
// synchronous here (the orchestrator's outer cycle calls Refresh before
// each request, so this port does not need its own thread).
package evcharger

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/devskill-org/ems/ctrl"
	"github.com/devskill-org/ems/orchestrator"
)

// Port is the evcc-backed EV-charger port.
type Port struct {
	BaseURL string
	client  *http.Client

	mu      sync.RWMutex
	charging bool
	mode    ctrl.EVChargerMode
}

// New returns an EV-charger port polling baseURL's /api/state endpoint.
func New(baseURL string) *Port {
	return &Port{BaseURL: baseURL, client: &http.Client{Timeout: 6 * time.Second}}
}

type loadpoint struct {
	Charging bool   `json:"charging"`
	Mode     string `json:"mode"`
}

type stateResponse struct {
	Result struct {
		Loadpoints []loadpoint `json:"loadpoints"`
	} `json:"result"`
}

// Refresh fetches the first loadpoint's charging state and mode. An invalid
// or missing loadpoint leaves the last-known values in place, matching
// EvccInterface's "log and keep prior state" behavior on a bad response.
func (p *Port) Refresh() error {
	resp, err := p.client.Get(p.BaseURL + "/api/state")
	if err != nil {
		return fmt.Errorf("evcharger: fetch failed: %w", err)
	}
	defer resp.Body.Close()

	var s stateResponse
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return fmt.Errorf("evcharger: decode failed: %w", err)
	}
	if len(s.Result.Loadpoints) == 0 {
		return fmt.Errorf("evcharger: no loadpoints in response")
	}
	lp := s.Result.Loadpoints[0]

	mode := ctrl.EVChargerMode(lp.Mode)
	switch mode {
	case ctrl.EVModeOff, ctrl.EVModePV, ctrl.EVModeMinPV, ctrl.EVModeNow:
	default:
		return fmt.Errorf("evcharger: unrecognized charging mode %q", lp.Mode)
	}

	p.mu.Lock()
	p.charging = lp.Charging
	p.mode = mode
	p.mu.Unlock()
	return nil
}

// EVTelemetry returns the last polled charging state/mode, satisfying the
// orchestrator's EVSource port.
func (p *Port) EVTelemetry() ctrl.EVTelemetry {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return ctrl.EVTelemetry{Charging: p.charging, Mode: p.mode}
}

var _ orchestrator.EVSource = (*Port)(nil)
