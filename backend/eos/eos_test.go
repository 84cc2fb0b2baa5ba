package eos

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/devskill-org/ems/ctrl"
)

func TestOptimize_PassThroughSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var got map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&got)
		resp := wireResponse{
			ACCharge:         []float64{0.5, 0.6},
			DCCharge:         []float64{0, 0},
			DischargeAllowed: []int{0, 1},
			StartSolution:    []int{0, 1},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	b := New(srv.URL, time.UTC, nil)
	req := ctrl.OptimizeRequest{EMS: ctrl.EMS{PV: ctrl.TimeSeries{1, 2}}}

	resp, _ := b.Optimize(req, 2*time.Second)
	if resp.HasError() {
		t.Fatalf("unexpected error: %s", resp.Error)
	}
	if resp.ACCharge[0] != 0.5 {
		t.Errorf("expected ac_charge[0]=0.5, got %v", resp.ACCharge[0])
	}
}

func TestOptimize_ConnectionErrorYieldsErrorResponse(t *testing.T) {
	b := New("http://127.0.0.1:1", time.UTC, nil)
	req := ctrl.OptimizeRequest{}
	resp, _ := b.Optimize(req, 200*time.Millisecond)
	if !resp.HasError() {
		t.Error("expected error response for unreachable server")
	}
}

func TestOptimize_RuntimeAveragedOverFiveSuccessfulCalls(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(5 * time.Millisecond)
		_ = json.NewEncoder(w).Encode(wireResponse{ACCharge: []float64{0}, DCCharge: []float64{0}, DischargeAllowed: []int{0}, StartSolution: []int{0, 0}})
	}))
	defer srv.Close()

	b := New(srv.URL, time.UTC, nil)
	var avg time.Duration
	for i := 0; i < 3; i++ {
		_, avg = b.Optimize(ctrl.OptimizeRequest{}, time.Second)
	}
	if avg <= 0 {
		t.Errorf("expected positive average runtime, got %v", avg)
	}
}
