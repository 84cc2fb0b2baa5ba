// Package price adapts the ENTSO-E day-ahead market client into the
// ctrl.PriceSource port, converting EUR/MWh publication prices into the
// €/Wh series the request assembler expects and applying the operator's
// fixed fee schedule. Grounded on entsoe/api_client.go and
// entsoe/energy_prices_decoder.go.
package price

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/devskill-org/ems/ctrl"
	"github.com/devskill-org/ems/entsoe"
	"github.com/devskill-org/ems/persistence"
)

// eurPerMWhToEurPerWh converts ENTSO-E's EUR/MWh unit to the canonical
// model's €/Wh unit.
const eurPerMWhToEurPerWh = 1.0 / 1_000_000.0

// Port is the ENTSO-E-backed price port.
type Port struct {
	SecurityToken string
	URLFormat     string
	Zone          *time.Location
	Logger        *log.Logger

	// ImportPriceOperatorFee and DeliveryFee are flat per-Wh additions to
	// the day-ahead import price (grid fees, taxes); ExportPriceOperatorFee
	// is subtracted from the feed-in tariff. All default to 0.
	ImportPriceOperatorFee float64
	DeliveryFee            float64
	ExportPriceOperatorFee float64

	// FlatFeedinTariff is the constant €/Wh feed-in price used when the
	// document carries no separate feed-in series (ENTSO-E day-ahead data
	// is import-side only; feed-in is a configured flat tariff, per the
	// household's fixed PPA rate).
	FlatFeedinTariff float64

	// Cache optionally backs price lookups with a Postgres price-history
	// table so a transient ENTSO-E outage doesn't leave the port with no
	// prices at all. A nil Cache (the default, when PriceHistoryDSN is
	// unconfigured) disables this entirely.
	Cache *persistence.Store

	mu  sync.RWMutex
	doc *entsoe.PublicationMarketDocument
}

// Refresh downloads today's (and, after 13:00 local, tomorrow's)
// publication market document, replacing the cached one, and persists the
// resulting import prices to Cache if one is configured. On download
// failure with a Cache configured, logs the error and returns nil, keeping
// the previously fetched document; the cache's coverage is not checked
// here, and ImportPrices reads the cache only while no document has been
// fetched yet.
func (p *Port) Refresh() error {
	zone := p.Zone
	if zone == nil {
		zone = time.UTC
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	doc, err := entsoe.DownloadPublicationMarketDocument(ctx, p.SecurityToken, p.URLFormat, zone)
	if err != nil {
		if p.Cache == nil {
			return fmt.Errorf("price port: refresh failed: %w", err)
		}
		if p.Logger != nil {
			p.Logger.Printf("price port: live refresh failed (%v), falling back to cache", err)
		}
		return nil
	}

	p.mu.Lock()
	p.doc = doc
	p.mu.Unlock()

	if p.Cache != nil {
		p.saveToCache(ctx, zone)
	}
	return nil
}

func (p *Port) saveToCache(ctx context.Context, zone *time.Location) {
	imports := p.ImportPrices()
	feedin := p.FeedinTariff(false, imports)
	n := time.Now().In(zone)
	midnight := time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, zone)

	slots := make([]persistence.PriceSlot, len(imports))
	for i := range imports {
		slots[i] = persistence.PriceSlot{
			SlotTime:    midnight.Add(time.Duration(i) * time.Hour),
			ImportPrice: imports[i],
			FeedinPrice: feedin[i],
		}
	}
	if err := p.Cache.SaveSlots(ctx, slots); err != nil && p.Logger != nil {
		p.Logger.Printf("price port: failed to persist price history: %v", err)
	}
}

// ImportPrices returns 48 hourly €/Wh slots starting at today's midnight in
// the configured zone, including the flat operator fee. Slots with no
// matching price default to the previous slot's value, or 0 for the first
// slot if the document has no coverage at all.
func (p *Port) ImportPrices() ctrl.TimeSeries {
	p.mu.RLock()
	doc := p.doc
	p.mu.RUnlock()

	out := make(ctrl.TimeSeries, 48)
	if doc == nil {
		return p.fromCacheOrZero()
	}

	zone := p.Zone
	if zone == nil {
		zone = time.UTC
	}
	n := time.Now().In(zone)
	midnight := time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, zone)

	for i, eurPerMWh := range doc.HourlySlotPrices(midnight, 48) {
		out[i] = eurPerMWh*eurPerMWhToEurPerWh + p.ImportPriceOperatorFee + p.DeliveryFee
	}
	return out
}

// fromCacheOrZero falls back to the last persisted price history when no
// live document has been fetched yet (e.g. at startup before the first
// successful Refresh). Returns an all-zero series if no Cache is
// configured or the cache has no coverage for today.
func (p *Port) fromCacheOrZero() ctrl.TimeSeries {
	out := make(ctrl.TimeSeries, 48)
	if p.Cache == nil {
		return out
	}

	zone := p.Zone
	if zone == nil {
		zone = time.UTC
	}
	n := time.Now().In(zone)
	midnight := time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, zone)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	slots, err := p.Cache.LoadSince(ctx, midnight)
	if err != nil || len(slots) == 0 {
		return out
	}

	var last float64
	bySlot := make(map[time.Time]float64, len(slots))
	for _, slot := range slots {
		bySlot[slot.SlotTime] = slot.ImportPrice
	}
	for i := 0; i < 48; i++ {
		slotTime := midnight.Add(time.Duration(i) * time.Hour)
		if v, ok := bySlot[slotTime]; ok {
			last = v
		}
		out[i] = last
	}
	return out
}

// FeedinTariff returns the configured flat feed-in tariff (minus the
// export operator fee) for all 48 slots, zeroed where the import price at
// that slot is negative and negativePriceSwitch is enabled.
func (p *Port) FeedinTariff(negativePriceSwitch bool, importPrices ctrl.TimeSeries) ctrl.TimeSeries {
	tariff := p.FlatFeedinTariff - p.ExportPriceOperatorFee
	if tariff < 0 {
		tariff = 0
	}
	out := make(ctrl.TimeSeries, len(importPrices))
	for i := range out {
		if negativePriceSwitch && importPrices[i] < 0 {
			out[i] = 0
			continue
		}
		out[i] = tariff
	}
	return out
}
