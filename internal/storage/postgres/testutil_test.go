package postgres

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"fuel-price-watch/internal/domain"
)

// One container serves every test in the package; tables are emptied
// between tests.
var (
	containerOnce sync.Once
	sharedPool    *Pool
	containerErr  error
	terminate     func()
)

func TestMain(m *testing.M) {
	code := m.Run()
	if terminate != nil {
		terminate()
	}
	os.Exit(code)
}

// setupTestDB returns a pool on a migrated, empty database.
// The returned cleanup is kept for symmetry with the per-test call sites.
func setupTestDB(t *testing.T) (*Pool, func()) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	containerOnce.Do(func() {
		sharedPool, containerErr = startPostgres(context.Background())
	})
	require.NoError(t, containerErr, "failed to start postgres")

	_, err := sharedPool.Exec(context.Background(),
		"TRUNCATE price_variations, current_prices, price_points, feed_runs, stations CASCADE")
	require.NoError(t, err, "failed to reset tables")

	return sharedPool, func() {}
}

func startPostgres(ctx context.Context) (*Pool, error) {
	container, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("fuelwatch"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("run container: %w", err)
	}
	terminate = func() { _ = container.Terminate(context.Background()) }

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return nil, fmt.Errorf("connection string: %w", err)
	}

	pool, err := NewPool(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := applyMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// applyMigrations runs the schema files from the source tree. The embedded
// copies live in the migrations package, which imports this one.
func applyMigrations(ctx context.Context, pool *Pool) error {
	root, err := projectRoot()
	if err != nil {
		return err
	}
	dir := os.DirFS(filepath.Join(root, "internal", "storage", "migrations", "postgres"))

	files, err := fs.Glob(dir, "*.sql")
	if err != nil {
		return err
	}
	sort.Strings(files)

	for _, f := range files {
		sql, err := fs.ReadFile(dir, f)
		if err != nil {
			return err
		}
		if _, err := pool.Exec(ctx, string(sql)); err != nil {
			return fmt.Errorf("apply %s: %w", f, err)
		}
	}
	return nil
}

// projectRoot walks up from the working directory to the go.mod.
func projectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New("go.mod not found")
		}
		dir = parent
	}
}

// seedStations registers ids so price points can reference them.
func seedStations(t *testing.T, ctx context.Context, pool *Pool, ids ...int64) {
	t.Helper()

	store := NewStationStore(pool)
	for _, id := range ids {
		_, err := store.Upsert(ctx, &domain.Station{StationID: id, Name: "test"})
		require.NoError(t, err, "failed to seed station %d", id)
	}
}

func ptr[T any](v T) *T {
	return &v
}
