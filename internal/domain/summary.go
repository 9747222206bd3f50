package domain

import "time"

// SkipReason names why a single feed record was not ingested.
type SkipReason string

const (
	SkipBadPrice           SkipReason = "bad_price"
	SkipBadDate            SkipReason = "bad_date"
	SkipBadStationID       SkipReason = "bad_station_id"
	SkipUnknownDistributor SkipReason = "unknown_distributor"
	SkipMalformedRow       SkipReason = "malformed_row"
	SkipStoreError         SkipReason = "store_error"
)

// AllSkipReasons lists every skip reason in reporting order.
var AllSkipReasons = []SkipReason{
	SkipBadPrice,
	SkipBadDate,
	SkipBadStationID,
	SkipUnknownDistributor,
	SkipMalformedRow,
	SkipStoreError,
}

// ImportSummary accumulates the outcome of one price ingestion batch.
// It is threaded through the batch and returned, never shared globally.
type ImportSummary struct {
	Total      int // records read, including skipped ones
	Inserted   int
	Updated    int
	Unchanged  int
	Stale      int // older than the stored same-day observation, ignored
	ColdStarts int
	NoChange   int // within epsilon of the baseline
	Variations int

	SkippedBadPrice           int
	SkippedBadDate            int
	SkippedBadStationID       int
	SkippedUnknownDistributor int
	SkippedMalformedRow       int
	SkippedStoreError         int

	Days []time.Time // distinct days seen, ascending

	// Written lists the points this batch inserted or repriced, in apply
	// order. A rewrite with an unchanged price is not listed.
	Written []DayKey
}

// WrittenOn returns the keys written on day, nil when none.
func (s *ImportSummary) WrittenOn(day time.Time) map[PriceKey]bool {
	var keys map[PriceKey]bool
	for _, w := range s.Written {
		if !w.Day.Equal(day) {
			continue
		}
		if keys == nil {
			keys = make(map[PriceKey]bool)
		}
		keys[w.Key] = true
	}
	return keys
}

// Skip increments the counter for reason.
func (s *ImportSummary) Skip(reason SkipReason) {
	switch reason {
	case SkipBadPrice:
		s.SkippedBadPrice++
	case SkipBadDate:
		s.SkippedBadDate++
	case SkipBadStationID:
		s.SkippedBadStationID++
	case SkipUnknownDistributor:
		s.SkippedUnknownDistributor++
	case SkipMalformedRow:
		s.SkippedMalformedRow++
	default:
		s.SkippedStoreError++
	}
}

// SkippedBy returns the counter for reason.
func (s *ImportSummary) SkippedBy(reason SkipReason) int {
	switch reason {
	case SkipBadPrice:
		return s.SkippedBadPrice
	case SkipBadDate:
		return s.SkippedBadDate
	case SkipBadStationID:
		return s.SkippedBadStationID
	case SkipUnknownDistributor:
		return s.SkippedUnknownDistributor
	case SkipMalformedRow:
		return s.SkippedMalformedRow
	case SkipStoreError:
		return s.SkippedStoreError
	}
	return 0
}

// Skipped returns the number of records skipped for any reason.
func (s *ImportSummary) Skipped() int {
	return s.SkippedBadPrice + s.SkippedBadDate + s.SkippedBadStationID +
		s.SkippedUnknownDistributor + s.SkippedMalformedRow + s.SkippedStoreError
}

// Add merges other into s. Days are merged keeping ascending order.
func (s *ImportSummary) Add(other ImportSummary) {
	s.Total += other.Total
	s.Inserted += other.Inserted
	s.Updated += other.Updated
	s.Unchanged += other.Unchanged
	s.Stale += other.Stale
	s.ColdStarts += other.ColdStarts
	s.NoChange += other.NoChange
	s.Variations += other.Variations
	s.SkippedBadPrice += other.SkippedBadPrice
	s.SkippedBadDate += other.SkippedBadDate
	s.SkippedBadStationID += other.SkippedBadStationID
	s.SkippedUnknownDistributor += other.SkippedUnknownDistributor
	s.SkippedMalformedRow += other.SkippedMalformedRow
	s.SkippedStoreError += other.SkippedStoreError
	for _, d := range other.Days {
		s.AddDay(d)
	}
	s.Written = append(s.Written, other.Written...)
}

// AddDay records day if not already present, keeping Days sorted.
func (s *ImportSummary) AddDay(day time.Time) {
	for i, d := range s.Days {
		if d.Equal(day) {
			return
		}
		if day.Before(d) {
			s.Days = append(s.Days, time.Time{})
			copy(s.Days[i+1:], s.Days[i:])
			s.Days[i] = day
			return
		}
	}
	s.Days = append(s.Days, day)
}

// RegistrySummary accumulates the outcome of one registry import batch.
type RegistrySummary struct {
	Total               int
	Inserted            int
	Updated             int
	Unchanged           int
	SkippedBadStationID int
	SkippedMalformedRow int
	SkippedStoreError   int
}

// Skipped returns the number of registry records skipped for any reason.
func (s *RegistrySummary) Skipped() int {
	return s.SkippedBadStationID + s.SkippedMalformedRow + s.SkippedStoreError
}
