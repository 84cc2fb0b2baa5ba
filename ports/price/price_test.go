package price

import (
	"testing"

	"github.com/devskill-org/ems/ctrl"
)

func TestFeedinTariff_ZeroesOnNegativePriceWhenSwitchOn(t *testing.T) {
	p := &Port{FlatFeedinTariff: 0.0001}
	imports := ctrl.TimeSeries{0.0002, -0.0001, 0.0003}
	out := p.FeedinTariff(true, imports)
	if out[1] != 0 {
		t.Errorf("expected feed-in zeroed at negative import price, got %v", out[1])
	}
	if out[0] != 0.0001 || out[2] != 0.0001 {
		t.Errorf("expected unaffected slots to keep flat tariff, got %v", out)
	}
}

func TestFeedinTariff_IgnoresNegativePricesWhenSwitchOff(t *testing.T) {
	p := &Port{FlatFeedinTariff: 0.0001}
	imports := ctrl.TimeSeries{-0.0005}
	out := p.FeedinTariff(false, imports)
	if out[0] != 0.0001 {
		t.Errorf("expected flat tariff unaffected by negative price with switch off, got %v", out[0])
	}
}

func TestFeedinTariff_SubtractsExportOperatorFee(t *testing.T) {
	p := &Port{FlatFeedinTariff: 0.0001, ExportPriceOperatorFee: 0.00005}
	out := p.FeedinTariff(false, ctrl.TimeSeries{0.0002})
	if out[0] != 0.00005 {
		t.Errorf("expected fee subtracted, got %v", out[0])
	}
}

func TestImportPrices_EmptyDocumentReturnsZeros(t *testing.T) {
	p := &Port{}
	out := p.ImportPrices()
	if len(out) != 48 {
		t.Fatalf("expected 48 slots, got %d", len(out))
	}
	for _, v := range out {
		if v != 0 {
			t.Errorf("expected all-zero prices with no document, got %v", v)
		}
	}
}

func TestImportPrices_EmptyDocumentWithNoCacheReturnsZeros(t *testing.T) {
	p := &Port{Cache: nil}
	out := p.fromCacheOrZero()
	for _, v := range out {
		if v != 0 {
			t.Errorf("expected all-zero prices with no cache configured, got %v", v)
		}
	}
}
