package domain

import (
	"math"
	"time"
)

// Direction is the sign of a detected price change.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

// String returns the string representation of Direction.
func (d Direction) String() string {
	return string(d)
}

// IsValid checks if the direction is a valid value.
func (d Direction) IsValid() bool {
	return d == DirectionUp || d == DirectionDown
}

// DetectionSource tags which ingestion pairing produced an observation or variation.
type DetectionSource string

const (
	SourceBulk       DetectionSource = "bulk"        // bulk price feed vs stored state
	SourceLive       DetectionSource = "live"        // live station API vs stored state
	SourceDayCompare DetectionSource = "day_compare" // stored day vs latest prior stored day
)

// String returns the string representation of DetectionSource.
func (s DetectionSource) String() string {
	return string(s)
}

// IsValid checks if the source is a valid value.
func (s DetectionSource) IsValid() bool {
	return s == SourceBulk || s == SourceLive || s == SourceDayCompare
}

// PriceVariation is an immutable record of a detected price change.
// Corresponds to price_variations table in PostgreSQL.
type PriceVariation struct {
	ID         string // deterministic hash, see idhash.ComputeVariationID
	StationID  int64
	FuelType   string
	IsSelf     bool
	OldPrice   float64
	NewPrice   float64
	Delta      float64 // NewPrice - OldPrice, rounded to 3 decimals
	Percent    float64 // Delta / OldPrice * 100, 0 when OldPrice == 0
	Direction  Direction
	Day        time.Time
	Source     DetectionSource
	DetectedAt time.Time
}

// Key returns the (station, fuel, service) key of the variation.
func (v *PriceVariation) Key() PriceKey {
	return PriceKey{StationID: v.StationID, FuelType: v.FuelType, IsSelf: v.IsSelf}
}

// AbsDelta returns the magnitude of the change.
func (v *PriceVariation) AbsDelta() float64 {
	return math.Abs(v.Delta)
}
