package sink

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"fuel-price-watch/internal/domain"
)

const csvHeader = "station_id,fuel_type,service,day,old_price,new_price,delta,percent,direction,source,detected_at\n"

// RenderCSV renders variations as CSV string, in the given order.
func RenderCSV(vs []domain.PriceVariation) string {
	var sb strings.Builder

	// Header
	sb.WriteString(csvHeader)

	// Rows
	for _, v := range vs {
		sb.WriteString(fmt.Sprintf("%d,%s,%s,%s,%.3f,%.3f,%.3f,%.4f,%s,%s,%s\n",
			v.StationID,
			csvField(v.FuelType),
			domain.ServiceLabel(v.IsSelf),
			v.Day.Format("2006-01-02"),
			v.OldPrice,
			v.NewPrice,
			v.Delta,
			v.Percent,
			v.Direction,
			v.Source,
			v.DetectedAt.UTC().Format(time.RFC3339),
		))
	}

	return sb.String()
}

// WriteCSV writes the rendered report to w.
func WriteCSV(w io.Writer, vs []domain.PriceVariation) error {
	_, err := io.WriteString(w, RenderCSV(vs))
	return err
}

// csvField quotes fuel names containing separators or quotes.
func csvField(s string) string {
	if !strings.ContainsAny(s, ",\"\n") {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// CSVSink writes one report file per run into a directory.
type CSVSink struct {
	dir string
	now func() time.Time
}

// NewCSVSink creates a CSVSink writing into dir.
func NewCSVSink(dir string) *CSVSink {
	return &CSVSink{dir: dir, now: time.Now}
}

// Name implements Sink.
func (s *CSVSink) Name() string {
	return "csv"
}

// Publish writes variations_<timestamp>.csv. Empty runs write nothing.
func (s *CSVSink) Publish(_ context.Context, vs []domain.PriceVariation) error {
	if len(vs) == 0 {
		return nil
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	path := filepath.Join(s.dir, fmt.Sprintf("variations_%s.csv", s.now().UTC().Format("20060102T150405Z")))
	if err := os.WriteFile(path, []byte(RenderCSV(vs)), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

var _ Sink = (*CSVSink)(nil)
