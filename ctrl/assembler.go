package ctrl

import "time"

// ForecastSource returns the current PV forecast vector, in Wh per slot.
type ForecastSource interface {
	PVForecast() TimeSeries
}

// PriceSource returns the current import/feed-in price vectors, in €/Wh.
type PriceSource interface {
	ImportPrices() TimeSeries
	FeedinTariff(negativePriceSwitch bool, importPrices TimeSeries) TimeSeries
}

// LoadSource returns the current household load profile, in Wh per slot.
type LoadSource interface {
	LoadForecast() TimeSeries
}

// BatterySource returns the live battery telemetry needed to compose a
// BatterySpec.
type BatterySource interface {
	StaticSpec() BatterySpec
	CurrentSoCPct() float64
}

// Assembler builds an OptimizeRequest from the current port values. It does
// not itself fetch anything over the network; it is handed already-polled
// port snapshots by the orchestrator.
type Assembler struct {
	InverterMaxW        float64
	NegativePriceSwitch bool
	Resolution          Resolution
}

// Build assembles a request. Empty or missing forecasts are not an error:
// the request is still built and sent with whatever is available, per the
// "empty/missing forecasts do not abort a cycle" rule.
func (a *Assembler) Build(forecast ForecastSource, price PriceSource, load LoadSource, battery BatterySource, lastStartSolution []int, now time.Time) OptimizeRequest {
	pv := forecast.PVForecast()
	importPrices := price.ImportPrices()
	feedin := price.FeedinTariff(a.NegativePriceSwitch, importPrices)
	loadTS := load.LoadForecast()

	spec := battery.StaticSpec()
	spec.InitialSoCPct = battery.CurrentSoCPct()

	return OptimizeRequest{
		EMS: EMS{
			PV:          pv,
			PriceImport: importPrices,
			PriceFeedin: feedin,
			Load:        loadTS,
		},
		Battery:       spec,
		InverterMaxW:  a.InverterMaxW,
		StartSolution: lastStartSolution,
		Resolution:    a.Resolution,
		Timestamp:     now,
	}
}
