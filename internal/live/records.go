package live

import (
	"fmt"

	"fuel-price-watch/internal/domain"
	"fuel-price-watch/internal/fuelname"
	"fuel-price-watch/internal/locale"
)

// StationRecord is the live API payload for one station.
type StationRecord struct {
	ID    int64        `json:"id"`
	Name  string       `json:"name"`
	Fuels []FuelRecord `json:"fuels"`
}

// FuelRecord is one priced fuel offer in a StationRecord.
type FuelRecord struct {
	ID           int64   `json:"id"`
	Name         string  `json:"name"`
	Price        float64 `json:"price"`
	IsSelf       bool    `json:"isSelf"`
	FuelID       int64   `json:"fuelId"`
	InsertDate   string  `json:"insertDate"`
	ValidityDate string  `json:"validityDate"`
}

// Rejected is a fuel entry that could not become an observation.
type Rejected struct {
	Fuel   FuelRecord
	Reason domain.SkipReason
	Err    error
}

// ToObservations converts a station payload into canonical observations
// tagged as live. Fuel names go through norm; entries without a positive
// price or a parsable insertDate are returned as rejected.
// stationID is used when the payload omits its own id.
func ToObservations(stationID int64, rec *StationRecord, norm *fuelname.Normalizer) ([]domain.PriceObservation, []Rejected) {
	if rec == nil {
		return nil, nil
	}
	id := rec.ID
	if id <= 0 {
		id = stationID
	}

	var (
		out      []domain.PriceObservation
		rejected []Rejected
	)
	for _, f := range rec.Fuels {
		if f.Name == "" {
			rejected = append(rejected, Rejected{Fuel: f, Reason: domain.SkipMalformedRow, Err: fmt.Errorf("empty fuel name")})
			continue
		}
		if !(f.Price > 0) {
			rejected = append(rejected, Rejected{Fuel: f, Reason: domain.SkipBadPrice, Err: fmt.Errorf("price %v", f.Price)})
			continue
		}
		at, err := locale.ParseISOTimestamp(f.InsertDate)
		if err != nil {
			rejected = append(rejected, Rejected{Fuel: f, Reason: domain.SkipBadDate, Err: err})
			continue
		}

		out = append(out, domain.PriceObservation{
			StationID:      id,
			FuelType:       norm.Normalize(f.Name),
			IsSelf:         f.IsSelf,
			Price:          domain.RoundPrice(f.Price),
			CommunicatedAt: at,
			Day:            locale.Day(at),
			Source:         domain.SourceLive,
		})
	}
	return out, rejected
}
