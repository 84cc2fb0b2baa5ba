// Package forecast adapts the MET Norway weather client and a sun-position
// clear-sky model into the ctrl.ForecastSource port. Grounded on
// scheduler/pv.go's WeatherForecastCache/fetchCloudCoverage pattern and the
// sun package's suncalc wiring (sun/example/main.go).
package forecast

import (
	"log"
	"math"
	"sync"
	"time"

	"github.com/sixdouglas/suncalc"

	"github.com/devskill-org/ems/ctrl"
	"github.com/devskill-org/ems/meteo"
)

// Port is the PV forecast port: a clear-sky estimate from sun position,
// attenuated by MET Norway's cloud-area-fraction forecast.
type Port struct {
	Latitude, Longitude float64
	PanelCapacityW      float64
	UserAgent           string
	Zone                *time.Location
	Logger              *log.Logger

	cacheDuration time.Duration
	client        *meteo.Client

	mu        sync.RWMutex
	forecast  *meteo.METJSONForecast
	fetchedAt time.Time
}

// New returns a forecast port with the teacher's 2-hour weather cache
// duration.
func New(latitude, longitude, panelCapacityW float64, userAgent string, zone *time.Location, logger *log.Logger) *Port {
	return &Port{
		Latitude:       latitude,
		Longitude:      longitude,
		PanelCapacityW: panelCapacityW,
		UserAgent:      userAgent,
		Zone:           zone,
		Logger:         logger,
		cacheDuration:  2 * time.Hour,
		client:         meteo.NewClient(userAgent),
	}
}

// Refresh fetches a new compact forecast if the cached one has expired.
func (p *Port) Refresh() error {
	p.mu.RLock()
	fresh := p.forecast != nil && time.Since(p.fetchedAt) <= p.cacheDuration
	p.mu.RUnlock()
	if fresh {
		return nil
	}

	params := meteo.QueryParams{Location: meteo.Location{Latitude: p.Latitude, Longitude: p.Longitude}}
	fc, err := p.client.GetCompact(params)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.forecast = fc
	p.fetchedAt = time.Now()
	p.mu.Unlock()
	return nil
}

// PVForecast returns 48 hourly Wh slots starting at today's midnight in the
// configured zone: a clear-sky estimate (panel capacity scaled by sun
// altitude) attenuated by the cloud-area fraction at each hour. A missing
// weather forecast degrades to the unattenuated clear-sky curve rather than
// aborting the request, per the "empty/missing forecasts do not abort a
// cycle" rule.
func (p *Port) PVForecast() ctrl.TimeSeries {
	zone := p.Zone
	if zone == nil {
		zone = time.UTC
	}
	n := time.Now().In(zone)
	midnight := time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, zone)

	p.mu.RLock()
	fc := p.forecast
	p.mu.RUnlock()

	out := make(ctrl.TimeSeries, 48)
	for i := 0; i < 48; i++ {
		slotTime := midnight.Add(time.Duration(i) * time.Hour)
		out[i] = p.clearSkyWh(slotTime) * p.cloudAttenuation(fc, slotTime)
	}
	return out
}

// clearSkyWh estimates the Wh generated in the hour starting at t from the
// sun's altitude at the midpoint of that hour.
func (p *Port) clearSkyWh(t time.Time) float64 {
	mid := t.Add(30 * time.Minute)
	pos := suncalc.GetPosition(mid, p.Latitude, p.Longitude)
	if pos.Altitude <= 0 {
		return 0
	}
	return p.PanelCapacityW * math.Sin(pos.Altitude)
}

// cloudAttenuation returns a multiplier in [0.1,1] derived from the cloud
// area fraction (%) reported for the slot; 1 when no forecast is cached.
func (p *Port) cloudAttenuation(fc *meteo.METJSONForecast, t time.Time) float64 {
	if fc == nil {
		return 1
	}
	step := fc.GetWeatherAtTime(t)
	if step == nil {
		return 1
	}
	return step.PVAttenuationFactor()
}
