package variation

import (
	"sort"

	"fuel-price-watch/internal/domain"
)

// Merge collapses variations from several detection strategies into at most
// one entry per (station, fuel, service). When two entries share a key the
// one with the larger |delta| wins; on equal magnitude the first seen wins.
// The result keeps first-seen key order.
func Merge(sets ...[]domain.PriceVariation) []domain.PriceVariation {
	index := make(map[domain.PriceKey]int)
	var out []domain.PriceVariation

	for _, set := range sets {
		for _, v := range set {
			k := v.Key()
			i, seen := index[k]
			if !seen {
				index[k] = len(out)
				out = append(out, v)
				continue
			}
			if v.AbsDelta() > out[i].AbsDelta() {
				out[i] = v
			}
		}
	}
	return out
}

// Order returns the sequence handed to notification dispatch.
// With onlyDown only decreases are kept, most negative first; otherwise all
// variations are sorted by descending |delta|. Ties are broken by key.
func Order(vs []domain.PriceVariation, onlyDown bool) []domain.PriceVariation {
	out := make([]domain.PriceVariation, 0, len(vs))
	for _, v := range vs {
		if onlyDown && v.Direction != domain.DirectionDown {
			continue
		}
		out = append(out, v)
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if onlyDown {
			if a.Delta != b.Delta {
				return a.Delta < b.Delta
			}
		} else if a.AbsDelta() != b.AbsDelta() {
			return a.AbsDelta() > b.AbsDelta()
		}
		return lessKey(a.Key(), b.Key())
	})
	return out
}

// lessKey orders keys by station, fuel, then served before self.
func lessKey(a, b domain.PriceKey) bool {
	if a.StationID != b.StationID {
		return a.StationID < b.StationID
	}
	if a.FuelType != b.FuelType {
		return a.FuelType < b.FuelType
	}
	return !a.IsSelf && b.IsSelf
}
