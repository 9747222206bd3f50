package domain

import (
	"fmt"
	"math"
	"time"
)

// PriceKey identifies a priced offer independently of the day:
// one fuel at one station for one service type.
type PriceKey struct {
	StationID int64
	FuelType  string // canonical fuel type
	IsSelf    bool
}

// String returns the key as "station|fuel|self" or "station|fuel|served".
func (k PriceKey) String() string {
	return fmt.Sprintf("%d|%s|%s", k.StationID, k.FuelType, ServiceLabel(k.IsSelf))
}

// ServiceLabel returns "self" or "served".
func ServiceLabel(isSelf bool) string {
	if isSelf {
		return "self"
	}
	return "served"
}

// DayKey identifies one stored PricePoint.
type DayKey struct {
	Key PriceKey
	Day time.Time
}

// PricePoint is one stored price for a (station, fuel, day, service) natural key.
// Corresponds to price_points table in PostgreSQL.
type PricePoint struct {
	StationID      int64
	FuelType       string
	Day            time.Time // UTC midnight, part of the natural key
	IsSelf         bool
	Price          float64 // 3-decimal precision
	CommunicatedAt time.Time
}

// Key returns the day-independent key of the point.
func (p *PricePoint) Key() PriceKey {
	return PriceKey{StationID: p.StationID, FuelType: p.FuelType, IsSelf: p.IsSelf}
}

// CurrentPrice is the latest PricePoint per (station, fuel, service) regardless of day.
// Corresponds to current_prices table in PostgreSQL.
type CurrentPrice struct {
	StationID      int64
	FuelType       string
	IsSelf         bool
	Day            time.Time
	Price          float64
	CommunicatedAt time.Time
}

// Key returns the key of the current price.
func (c *CurrentPrice) Key() PriceKey {
	return PriceKey{StationID: c.StationID, FuelType: c.FuelType, IsSelf: c.IsSelf}
}

// PriceObservation is the canonical form every upstream record is converted
// to before detection. The detector never sees upstream shapes.
type PriceObservation struct {
	StationID      int64
	FuelType       string // already normalized
	IsSelf         bool
	Price          float64
	CommunicatedAt time.Time
	Day            time.Time // UTC midnight derived from the record's own timestamp
	Source         DetectionSource
}

// Key returns the day-independent key of the observation.
func (o PriceObservation) Key() PriceKey {
	return PriceKey{StationID: o.StationID, FuelType: o.FuelType, IsSelf: o.IsSelf}
}

// Point returns the observation as the PricePoint it would be stored as.
func (o PriceObservation) Point() *PricePoint {
	return &PricePoint{
		StationID:      o.StationID,
		FuelType:       o.FuelType,
		Day:            o.Day,
		IsSelf:         o.IsSelf,
		Price:          o.Price,
		CommunicatedAt: o.CommunicatedAt,
	}
}

// RoundPrice rounds to the 3-decimal precision prices are stored with.
func RoundPrice(v float64) float64 {
	return math.Round(v*1000) / 1000
}
