package feed

import (
	"errors"
	"fmt"
	"strconv"

	"fuel-price-watch/internal/domain"
	"fuel-price-watch/internal/fuelname"
	"fuel-price-watch/internal/locale"
)

// Header markers identify each export and locate its header row.
const (
	RegistryMarker = "idImpianto;Gestore"
	PriceMarker    = "idImpianto;descCarburante"
)

// Registry export columns.
const (
	ColStationID    = "idImpianto"
	ColOperator     = "Gestore"
	ColBrand        = "Bandiera"
	ColKind         = "Tipo Impianto"
	ColName         = "Nome Impianto"
	ColAddress      = "Indirizzo"
	ColMunicipality = "Comune"
	ColProvince     = "Provincia"
	ColLatitude     = "Latitudine"
	ColLongitude    = "Longitudine"
)

// Price export columns.
const (
	ColFuel           = "descCarburante"
	ColPrice          = "prezzo"
	ColIsSelf         = "isSelf"
	ColCommunicatedAt = "dtComu"
)

// RecordError is a record-level conversion failure. The batch skips the
// record and counts Reason.
type RecordError struct {
	Line   int
	Reason domain.SkipReason
	Err    error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("line %d: %s: %v", e.Line, e.Reason, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

// SkipReasonOf returns the skip reason carried by err, or SkipStoreError for
// any other error.
func SkipReasonOf(err error) domain.SkipReason {
	var rerr *RecordError
	if errors.As(err, &rerr) {
		return rerr.Reason
	}
	return domain.SkipStoreError
}

func recordErr(line int, reason domain.SkipReason, format string, args ...any) *RecordError {
	return &RecordError{Line: line, Reason: reason, Err: fmt.Errorf(format, args...)}
}

// RegistryRecord is one row of the station registry export, unparsed.
type RegistryRecord struct {
	Line         int
	StationID    string
	Operator     string
	Brand        string
	Kind         string
	Name         string
	Address      string
	Municipality string
	Province     string
	Latitude     string
	Longitude    string
}

// RegistryRecordFromRow maps a table row onto a RegistryRecord.
func RegistryRecordFromRow(row Row) (RegistryRecord, error) {
	id, ok := row.Get(ColStationID)
	if !ok {
		return RegistryRecord{}, recordErr(row.Line, domain.SkipMalformedRow, "missing %s", ColStationID)
	}
	get := func(col string) string {
		v, _ := row.Get(col)
		return v
	}
	return RegistryRecord{
		Line:         row.Line,
		StationID:    id,
		Operator:     get(ColOperator),
		Brand:        get(ColBrand),
		Kind:         get(ColKind),
		Name:         get(ColName),
		Address:      get(ColAddress),
		Municipality: get(ColMunicipality),
		Province:     get(ColProvince),
		Latitude:     get(ColLatitude),
		Longitude:    get(ColLongitude),
	}, nil
}

// ToStation converts the record to a Station.
func (r RegistryRecord) ToStation() (domain.Station, error) {
	id, err := parseStationID(r.StationID)
	if err != nil {
		return domain.Station{}, recordErr(r.Line, domain.SkipBadStationID, "%v", err)
	}
	return domain.Station{
		StationID:    id,
		Operator:     r.Operator,
		Brand:        r.Brand,
		Kind:         r.Kind,
		Name:         r.Name,
		Address:      r.Address,
		Municipality: r.Municipality,
		Province:     r.Province,
		Latitude:     locale.ParseCoordinate(r.Latitude),
		Longitude:    locale.ParseCoordinate(r.Longitude),
	}, nil
}

// BulkPriceRecord is one row of the daily price export, unparsed.
type BulkPriceRecord struct {
	Line           int
	StationID      string
	Fuel           string
	Price          string
	IsSelf         string
	CommunicatedAt string
}

// BulkPriceRecordFromRow maps a table row onto a BulkPriceRecord.
func BulkPriceRecordFromRow(row Row) (BulkPriceRecord, error) {
	rec := BulkPriceRecord{Line: row.Line}
	var ok bool
	for _, f := range []struct {
		col string
		dst *string
	}{
		{ColStationID, &rec.StationID},
		{ColFuel, &rec.Fuel},
		{ColPrice, &rec.Price},
		{ColIsSelf, &rec.IsSelf},
		{ColCommunicatedAt, &rec.CommunicatedAt},
	} {
		if *f.dst, ok = row.Get(f.col); !ok {
			return BulkPriceRecord{}, recordErr(row.Line, domain.SkipMalformedRow, "missing %s", f.col)
		}
	}
	return rec, nil
}

// ToObservation converts the record to a canonical observation tagged as
// bulk. The day is derived from the record's own communication timestamp.
func (r BulkPriceRecord) ToObservation(norm *fuelname.Normalizer) (domain.PriceObservation, error) {
	id, err := parseStationID(r.StationID)
	if err != nil {
		return domain.PriceObservation{}, recordErr(r.Line, domain.SkipBadStationID, "%v", err)
	}
	if r.Fuel == "" {
		return domain.PriceObservation{}, recordErr(r.Line, domain.SkipMalformedRow, "empty fuel name")
	}

	price, ok := locale.ParseDecimalEU(r.Price)
	if !ok || price <= 0 {
		return domain.PriceObservation{}, recordErr(r.Line, domain.SkipBadPrice, "price %q", r.Price)
	}

	day, err := locale.DayOf(r.CommunicatedAt)
	if err != nil {
		return domain.PriceObservation{}, recordErr(r.Line, domain.SkipBadDate, "%v", err)
	}

	return domain.PriceObservation{
		StationID:      id,
		FuelType:       norm.Normalize(r.Fuel),
		IsSelf:         locale.ParseBoolean01(r.IsSelf),
		Price:          domain.RoundPrice(price),
		CommunicatedAt: locale.ParseItalianDateTime(r.CommunicatedAt),
		Day:            day,
		Source:         domain.SourceBulk,
	}, nil
}

func parseStationID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("station id %q", raw)
	}
	return id, nil
}
