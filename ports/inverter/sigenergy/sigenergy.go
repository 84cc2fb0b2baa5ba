// Package sigenergy adapts the Sigenergy Modbus TCP plant client into the
// ctrl.Inverter, ctrl.PVChargeLimiter, ctrl.BatterySource, and
// orchestrator.LimitsSource ports. Grounded on sigenergy/modbus_client.go.
package sigenergy

import (
	"fmt"

	"github.com/devskill-org/ems/ctrl"
	"github.com/devskill-org/ems/sigenergy"
)

// Port is the Sigenergy-backed inverter/battery adapter. One Port per
// plant; the underlying Modbus client is reopened per call since the
// teacher's client type does not expose a persistent-connection keepalive
// contract (modbus_client.go's Close() is always called by its own
// examples immediately after use).
type Port struct {
	Address string
	SlaveID byte

	Config ctrl.BatterySpec
}

func (p *Port) dial() (*sigenergy.SigenModbusClient, error) {
	return sigenergy.NewTCPClient(p.Address, sigenergy.PlantAddress)
}

// SetForceCharge commands the plant to charge at the given watt target by
// setting the ESS max charging limit and engaging remote EMS mode.
func (p *Port) SetForceCharge(watts float64) error {
	c, err := p.dial()
	if err != nil {
		return fmt.Errorf("sigenergy: dial failed: %w", err)
	}
	defer c.Close()

	if err := c.EnableRemoteEMS(true); err != nil {
		return fmt.Errorf("sigenergy: enable remote EMS failed: %w", err)
	}
	if err := c.SetESSMaxChargingLimit(watts / 1000.0); err != nil {
		return fmt.Errorf("sigenergy: set charging limit failed: %w", err)
	}
	return nil
}

// SetAvoidDischarge zeroes the ESS max discharging limit.
func (p *Port) SetAvoidDischarge() error {
	c, err := p.dial()
	if err != nil {
		return fmt.Errorf("sigenergy: dial failed: %w", err)
	}
	defer c.Close()
	return c.SetESSMaxDischargingLimit(0)
}

// SetAllowDischarge restores the ESS max discharging limit to the plant's
// currently available maximum discharging power, as read from its running
// info.
func (p *Port) SetAllowDischarge() error {
	c, err := p.dial()
	if err != nil {
		return fmt.Errorf("sigenergy: dial failed: %w", err)
	}
	defer c.Close()

	info, err := c.ReadPlantRunningInfo()
	if err != nil {
		return fmt.Errorf("sigenergy: read running info failed: %w", err)
	}
	return c.SetESSMaxDischargingLimit(info.ESSAvailableMaxDischargingPower)
}

// SetMaxPVChargeRate caps the plant's PV production, satisfying
// ctrl.PVChargeLimiter.
func (p *Port) SetMaxPVChargeRate(watts float64) error {
	c, err := p.dial()
	if err != nil {
		return fmt.Errorf("sigenergy: dial failed: %w", err)
	}
	defer c.Close()
	return c.SetPVMaxPowerLimit(watts / 1000.0)
}

// StaticSpec returns the configured battery capacity/limits.
func (p *Port) StaticSpec() ctrl.BatterySpec { return p.Config }

// CurrentSoCPct reads the plant's live ESS state of charge.
func (p *Port) CurrentSoCPct() float64 {
	c, err := p.dial()
	if err != nil {
		return p.Config.InitialSoCPct
	}
	defer c.Close()

	info, err := c.ReadPlantRunningInfo()
	if err != nil {
		return p.Config.InitialSoCPct
	}
	return info.ESSSOC
}

// DynamicLimits reads the plant's live SoC-dependent charge/discharge
// ceilings, satisfying orchestrator.LimitsSource.
func (p *Port) DynamicLimits() ctrl.DynamicLimits {
	limits := ctrl.DynamicLimits{
		MaxGridChargeW: p.Config.MaxChargeW,
		MaxPVChargeW:   p.Config.MaxChargeW,
		DynMaxChargeW:  p.Config.MaxChargeW,
	}
	c, err := p.dial()
	if err != nil {
		return limits
	}
	defer c.Close()

	info, err := c.ReadPlantRunningInfo()
	if err != nil {
		return limits
	}
	limits.DynMaxChargeW = info.ESSAvailableMaxChargingPower * 1000.0
	return limits
}

// Family identifies the inverter driver family; the inner loop only
// refreshes thermals for "fronius_gen24", so Sigenergy plants are a no-op
// there.
func (p *Port) Family() string { return "sigenergy" }

// RefreshThermals is a no-op: the Sigenergy plant register map exposed by
// modbus_client.go has no per-module temperature/fan block.
func (p *Port) RefreshThermals() error { return nil }
