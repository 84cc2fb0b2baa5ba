// Package load implements the household load forecast port. The original
// system reads historical smart-meter consumption; lacking that telemetry
// source in this pack, this port falls back to a fixed 24-hour shape
// (household load profile) scaled by a configured daily average, which is
// what load_interface.py does when no metering history is available.
package load

import (
	"time"

	"github.com/devskill-org/ems/ctrl"
)

// defaultShape is a 24-hour relative household load profile (higher in the
// morning and evening, lower overnight). LoadForecast divides it by its own
// mean, so the scaled profile averages DailyAverageW.
var defaultShape = [24]float64{
	0.6, 0.5, 0.5, 0.5, 0.5, 0.6,
	0.9, 1.2, 1.1, 0.9, 0.8, 0.8,
	0.9, 0.8, 0.8, 0.8, 0.9, 1.3,
	1.6, 1.5, 1.3, 1.1, 0.9, 0.7,
}

// Port is the fallback household load port.
type Port struct {
	DailyAverageW float64
	Zone          *time.Location
}

// LoadForecast returns 48 hourly Wh slots (two repetitions of the 24-hour
// shape) starting at today's midnight in the configured zone.
func (p *Port) LoadForecast() ctrl.TimeSeries {
	var sum float64
	for _, v := range defaultShape {
		sum += v
	}
	scale := p.DailyAverageW / (sum / float64(len(defaultShape)))

	out := make(ctrl.TimeSeries, 48)
	for i := range out {
		out[i] = defaultShape[i%24] * scale
	}
	return out
}
