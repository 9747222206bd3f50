package idhash

import (
	"testing"
	"time"

	"fuel-price-watch/internal/domain"
)

func TestComputeVariationID(t *testing.T) {
	day := time.Date(2025, 9, 23, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		stationID int64
		fuelType  string
		isSelf    bool
		source    domain.DetectionSource
		oldPrice  float64
		newPrice  float64
	}{
		{"bulk increase", 1001, "Benzina", true, domain.SourceBulk, 1.899, 1.999},
		{"live decrease", 1001, "Gasolio", false, domain.SourceLive, 1.799, 1.699},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeVariationID(tt.stationID, tt.fuelType, tt.isSelf, day, tt.source, tt.oldPrice, tt.newPrice)
			if len(got) != 64 {
				t.Errorf("ComputeVariationID() length = %d, want 64", len(got))
			}

			got2 := ComputeVariationID(tt.stationID, tt.fuelType, tt.isSelf, day, tt.source, tt.oldPrice, tt.newPrice)
			if got != got2 {
				t.Errorf("ComputeVariationID() not deterministic: %s != %s", got, got2)
			}
		})
	}
}

func TestComputeVariationID_DistinguishesFields(t *testing.T) {
	day := time.Date(2025, 9, 23, 0, 0, 0, 0, time.UTC)
	base := ComputeVariationID(1001, "Benzina", true, day, domain.SourceBulk, 1.899, 1.999)

	variants := map[string]string{
		"station": ComputeVariationID(1002, "Benzina", true, day, domain.SourceBulk, 1.899, 1.999),
		"fuel":    ComputeVariationID(1001, "Gasolio", true, day, domain.SourceBulk, 1.899, 1.999),
		"self":    ComputeVariationID(1001, "Benzina", false, day, domain.SourceBulk, 1.899, 1.999),
		"day":     ComputeVariationID(1001, "Benzina", true, day.AddDate(0, 0, 1), domain.SourceBulk, 1.899, 1.999),
		"source":  ComputeVariationID(1001, "Benzina", true, day, domain.SourceLive, 1.899, 1.999),
		"old":     ComputeVariationID(1001, "Benzina", true, day, domain.SourceBulk, 1.889, 1.999),
		"new":     ComputeVariationID(1001, "Benzina", true, day, domain.SourceBulk, 1.899, 1.989),
	}
	for field, id := range variants {
		if id == base {
			t.Errorf("changing %s did not change the id", field)
		}
	}
}

func TestComputeVariationID_IgnoresSubPrecisionNoise(t *testing.T) {
	day := time.Date(2025, 9, 23, 0, 0, 0, 0, time.UTC)
	a := ComputeVariationID(1001, "Benzina", true, day, domain.SourceBulk, 1.899, 1.999)
	b := ComputeVariationID(1001, "Benzina", true, day, domain.SourceBulk, 1.8990000001, 1.9989999999)
	if a != b {
		t.Errorf("expected equal ids, got %s and %s", a, b)
	}
}

func TestComputeFeedChecksum(t *testing.T) {
	if ComputeFeedChecksum("a;b\n1;2\n") == ComputeFeedChecksum("a;b\n1;3\n") {
		t.Error("different documents must hash differently")
	}
	if len(ComputeFeedChecksum("")) != 64 {
		t.Error("expected 64 hex characters")
	}
}
