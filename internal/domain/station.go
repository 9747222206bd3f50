package domain

import "time"

// Station is a physical fuel retail point from the national registry.
// Corresponds to stations table in PostgreSQL.
type Station struct {
	StationID    int64    // registry identifier (idImpianto), immutable
	Operator     string   // Gestore
	Brand        string   // Bandiera
	Kind         string   // Tipo Impianto (Stradale, Autostradale, ...)
	Name         string   // Nome Impianto
	Address      string   // Indirizzo
	Municipality string   // Comune
	Province     string   // Provincia (two-letter code)
	Latitude     *float64 // nullable
	Longitude    *float64 // nullable
	UpdatedAt    time.Time
}

// SameAs reports whether two stations carry identical registry attributes.
// UpdatedAt is ignored.
func (s *Station) SameAs(o *Station) bool {
	if s == nil || o == nil {
		return s == o
	}
	return s.StationID == o.StationID &&
		s.Operator == o.Operator &&
		s.Brand == o.Brand &&
		s.Kind == o.Kind &&
		s.Name == o.Name &&
		s.Address == o.Address &&
		s.Municipality == o.Municipality &&
		s.Province == o.Province &&
		floatPtrEqual(s.Latitude, o.Latitude) &&
		floatPtrEqual(s.Longitude, o.Longitude)
}

func floatPtrEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
