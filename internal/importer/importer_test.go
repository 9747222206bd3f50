package importer

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fuel-price-watch/internal/domain"
	"fuel-price-watch/internal/feed"
	"fuel-price-watch/internal/fuelname"
	"fuel-price-watch/internal/storage/memory"
	"fuel-price-watch/internal/variation"
)

const registryText = "Estrazione del 2025-09-23\n" +
	"idImpianto;Gestore;Bandiera;Tipo Impianto;Nome Impianto;Indirizzo;Comune;Provincia;Latitudine;Longitudine\n" +
	"1001;ROSSI SRL;Agip Eni;Stradale;ENI ROMA;VIA APPIA 1;ROMA;RM;41.89;12.49\n" +
	"1002;BIANCHI SNC;Q8;Stradale;Q8 MILANO;VIA PO 2;MILANO;MI;45.46;9.19\n" +
	"abc;BROKEN;;;;;;;;\n"

func quietLogger() logrus.FieldLogger {
	logger, _ := test.NewNullLogger()
	return logger
}

func table(t *testing.T, text, marker string) *feed.Table {
	t.Helper()
	tbl, err := feed.ReadTable(text, marker)
	require.NoError(t, err)
	return tbl
}

type fixture struct {
	stations *memory.StationStore
	prices   *memory.PriceStore
	registry *RegistryImporter
	importer *PriceImporter
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	stations := memory.NewStationStore()
	prices := memory.NewPriceStore(stations)
	det := variation.NewDetector(variation.Options{
		Store: prices,
		Now:   func() time.Time { return time.Date(2025, 9, 23, 9, 0, 0, 0, time.UTC) },
	})
	log := quietLogger()
	return &fixture{
		stations: stations,
		prices:   prices,
		registry: NewRegistryImporter(RegistryOptions{Stations: stations, Logger: log}),
		importer: NewPriceImporter(PriceOptions{
			Detector:   det,
			Normalizer: fuelname.NewNormalizer(fuelname.Options{Logger: log}),
			Logger:     log,
		}),
	}
}

func TestRegistryImporter_Import(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sum, err := f.registry.Import(ctx, table(t, registryText, feed.RegistryMarker))
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Total)
	assert.Equal(t, 2, sum.Inserted)
	assert.Equal(t, 1, sum.SkippedBadStationID)

	st, err := f.stations.Get(ctx, 1002)
	require.NoError(t, err)
	assert.Equal(t, "Q8", st.Brand)

	sum, err = f.registry.Import(ctx, table(t, registryText, feed.RegistryMarker))
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Unchanged)
	assert.Equal(t, 0, sum.Inserted)
}

func TestPriceImporter_EndToEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.registry.Import(ctx, table(t, registryText, feed.RegistryMarker))
	require.NoError(t, err)

	day1 := "idImpianto;descCarburante;prezzo;isSelf;dtComu\n" +
		"1001;Benzina;1,899;1;22/09/2025 07:00:00\n" +
		"1001;Gasolio;1,799;1;22/09/2025 07:00:00\n"
	sum, vs, err := f.importer.Import(ctx, table(t, day1, feed.PriceMarker))
	require.NoError(t, err)
	assert.Equal(t, 2, sum.ColdStarts)
	assert.Equal(t, 2, sum.Inserted)
	assert.Empty(t, vs)

	day2 := "idImpianto;descCarburante;prezzo;isSelf;dtComu\n" +
		"1001;Benzina;1,999;1;23/09/2025 07:00:00\n" +
		"1001;Gasolio;1,699;1;23/09/2025 07:00:00\n"
	sum, vs, err = f.importer.Import(ctx, table(t, day2, feed.PriceMarker))
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Variations)
	require.Len(t, vs, 2)

	ordered := variation.Order(variation.Merge(vs), false)
	require.Len(t, ordered, 2)
	assert.Equal(t, domain.DirectionUp, vs[0].Direction)
	assert.InDelta(t, 0.100, vs[0].Delta, 1e-9)
	assert.Equal(t, domain.DirectionDown, vs[1].Direction)
	assert.InDelta(t, -0.100, vs[1].Delta, 1e-9)

	down := variation.Order(vs, true)
	require.Len(t, down, 1)
	assert.Equal(t, "Gasolio", down[0].FuelType)

	// Re-running the same batch is idempotent.
	sum, vs, err = f.importer.Import(ctx, table(t, day2, feed.PriceMarker))
	require.NoError(t, err)
	assert.Empty(t, vs)
	assert.Equal(t, 2, sum.Unchanged)
	assert.Equal(t, 2, sum.NoChange)
}

func TestPriceImporter_TracksWrittenPoints(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.registry.Import(ctx, table(t, registryText, feed.RegistryMarker))
	require.NoError(t, err)

	header := "idImpianto;descCarburante;prezzo;isSelf;dtComu\n"
	day := time.Date(2025, 9, 22, 0, 0, 0, 0, time.UTC)
	benzina := domain.PriceKey{StationID: 1001, FuelType: "Benzina", IsSelf: true}
	gasolio := domain.PriceKey{StationID: 1001, FuelType: "Gasolio", IsSelf: true}

	sum, _, err := f.importer.Import(ctx, table(t, header+
		"1001;Benzina;1,899;1;22/09/2025 07:00:00\n"+
		"1001;Gasolio;1,799;1;22/09/2025 07:00:00\n", feed.PriceMarker))
	require.NoError(t, err)
	assert.Equal(t, []domain.DayKey{{Key: benzina, Day: day}, {Key: gasolio, Day: day}}, sum.Written)
	assert.Equal(t, map[domain.PriceKey]bool{benzina: true, gasolio: true}, sum.WrittenOn(day))

	// A later communication at the same price is stored but not listed.
	sum, _, err = f.importer.Import(ctx, table(t, header+
		"1001;Benzina;1,899;1;22/09/2025 10:00:00\n"+
		"1001;Gasolio;1,759;1;22/09/2025 10:00:00\n", feed.PriceMarker))
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Updated)
	assert.Equal(t, []domain.DayKey{{Key: gasolio, Day: day}}, sum.Written)
	assert.Nil(t, sum.WrittenOn(day.AddDate(0, 0, 1)))
}

func TestPriceImporter_SkipsBadRecords(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.registry.Import(ctx, table(t, registryText, feed.RegistryMarker))
	require.NoError(t, err)

	text := "idImpianto;descCarburante;prezzo;isSelf;dtComu\n" +
		"1001;Benzina;1,899;1;22/09/2025 07:00:00\n" +
		"1001;Gasolio;;1;22/09/2025 07:00:00\n" +
		"1001;GPL;0,719;0;32/09/2025 07:00:00\n" +
		"9999;Benzina;1,899;1;22/09/2025 07:00:00\n" +
		"x;Benzina;1,899;1;22/09/2025 07:00:00\n" +
		"1002;Metano\n" +
		"1002;Metano;1,299;0;22/09/2025 08:00:00\n"

	sum, _, err := f.importer.Import(ctx, table(t, text, feed.PriceMarker))
	require.NoError(t, err)
	assert.Equal(t, 7, sum.Total)
	assert.Equal(t, 2, sum.Inserted)
	assert.Equal(t, 1, sum.SkippedBadPrice)
	assert.Equal(t, 1, sum.SkippedBadDate)
	assert.Equal(t, 1, sum.SkippedUnknownDistributor)
	assert.Equal(t, 1, sum.SkippedBadStationID)
	assert.Equal(t, 1, sum.SkippedMalformedRow)
	assert.Equal(t, 5, sum.Skipped())
}

func TestPriceImporter_ProcessesDaysAscending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.registry.Import(ctx, table(t, registryText, feed.RegistryMarker))
	require.NoError(t, err)

	text := "idImpianto;descCarburante;prezzo;isSelf;dtComu\n" +
		"1001;Benzina;1,959;1;23/09/2025 07:00:00\n" +
		"1001;Benzina;1,899;1;21/09/2025 07:00:00\n"

	sum, vs, err := f.importer.Import(ctx, table(t, text, feed.PriceMarker))
	require.NoError(t, err)
	require.Len(t, sum.Days, 2)
	assert.True(t, sum.Days[0].Before(sum.Days[1]))
	assert.Equal(t, 1, sum.ColdStarts)
	require.Len(t, vs, 1)
	assert.Equal(t, 1.899, vs[0].OldPrice)
	assert.Equal(t, 1.959, vs[0].NewPrice)
}

func TestPriceImporter_ImportObservations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.registry.Import(ctx, table(t, registryText, feed.RegistryMarker))
	require.NoError(t, err)

	bulk := "idImpianto;descCarburante;prezzo;isSelf;dtComu\n" +
		"1001;Gasolio;1,799;1;22/09/2025 07:00:00\n"
	_, _, err = f.importer.Import(ctx, table(t, bulk, feed.PriceMarker))
	require.NoError(t, err)

	live := []domain.PriceObservation{{
		StationID:      1001,
		FuelType:       "Gasolio",
		IsSelf:         true,
		Price:          1.749,
		CommunicatedAt: time.Date(2025, 9, 23, 6, 0, 0, 0, time.UTC),
		Day:            time.Date(2025, 9, 23, 0, 0, 0, 0, time.UTC),
		Source:         domain.SourceLive,
	}}
	sum, vs, err := f.importer.ImportObservations(ctx, live)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Total)
	require.Len(t, vs, 1)
	assert.Equal(t, domain.SourceLive, vs[0].Source)
	assert.InDelta(t, -0.05, vs[0].Delta, 1e-9)
}

func TestPriceImporter_CancelledContext(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	text := "idImpianto;descCarburante;prezzo;isSelf;dtComu\n" +
		"1001;Benzina;1,899;1;22/09/2025 07:00:00\n"
	_, _, err := f.importer.Import(ctx, table(t, text, feed.PriceMarker))
	assert.ErrorIs(t, err, context.Canceled)
}
