// Package fronius is a placeholder driver for the Fronius GEN24 inverter
// family. inverter_fronius_v3.py never implements this driver beyond its
// constructor — every method raises NotImplementedError — so this port
// keeps the same shape (satisfying ctrl.Inverter and
// orchestrator.ThermalInverter) but returns an explicit "not implemented"
// error from every command, rather than inventing behavior the source
// never specified.
package fronius

import "fmt"

// Port is the Fronius GEN24 driver scaffold: REST endpoint configuration
// is kept here so a future implementation has somewhere to hang
// authentication state, but no request is ever issued yet.
type Port struct {
	BaseURL  string
	Username string
	Password string
}

var errNotImplemented = fmt.Errorf("fronius: driver not implemented")

func (p *Port) SetForceCharge(watts float64) error { return errNotImplemented }
func (p *Port) SetAvoidDischarge() error            { return errNotImplemented }
func (p *Port) SetAllowDischarge() error             { return errNotImplemented }

// Family identifies this driver as the fronius_gen24 family so the
// orchestrator's inner loop attempts the per-module thermal refresh.
func (p *Port) Family() string { return "fronius_gen24" }

// RefreshThermals is unimplemented; the inner loop logs and continues.
func (p *Port) RefreshThermals() error { return errNotImplemented }
