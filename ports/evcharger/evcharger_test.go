package evcharger

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/devskill-org/ems/ctrl"
)

func TestRefresh_PopulatesChargingStateAndMode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result":{"loadpoints":[{"charging":true,"mode":"pv"}]}}`))
	}))
	defer srv.Close()

	p := New(srv.URL)
	if err := p.Refresh(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tel := p.EVTelemetry()
	if !tel.Charging || tel.Mode != ctrl.EVModePV {
		t.Errorf("expected charging=true mode=pv, got %+v", tel)
	}
}

func TestRefresh_RejectsUnrecognizedMode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result":{"loadpoints":[{"charging":true,"mode":"turbo"}]}}`))
	}))
	defer srv.Close()

	p := New(srv.URL)
	if err := p.Refresh(); err == nil {
		t.Fatal("expected error for unrecognized charging mode")
	}
}

func TestRefresh_NoLoadpointsIsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result":{"loadpoints":[]}}`))
	}))
	defer srv.Close()

	p := New(srv.URL)
	if err := p.Refresh(); err == nil {
		t.Fatal("expected error for empty loadpoints")
	}
}
