package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"fuel-price-watch/internal/domain"
)

// ComputeVariationID computes a deterministic variation id using SHA256.
// Formula: SHA256(station_id|fuel_type|self|day|source|old_price|new_price)
// Prices are formatted with 3 decimals so float noise below the stored
// precision does not change the id. Returns hex-encoded hash (64 characters).
func ComputeVariationID(
	stationID int64,
	fuelType string,
	isSelf bool,
	day time.Time,
	source domain.DetectionSource,
	oldPrice float64,
	newPrice float64,
) string {
	data := fmt.Sprintf("%d|%s|%t|%s|%s|%.3f|%.3f",
		stationID,
		fuelType,
		isSelf,
		day.UTC().Format("2006-01-02"),
		string(source),
		oldPrice,
		newPrice,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// ComputeFeedChecksum hashes a decoded feed document.
func ComputeFeedChecksum(text string) string {
	hash := sha256.Sum256([]byte(text))
	return hex.EncodeToString(hash[:])
}
