// Package integration runs the persistence layer against a real PostgreSQL
// started with testcontainers and migrated with the production SQL files.
package integration

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/storepulse/backend/internal/infrastructure/migration"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// TestDB is a migrated database in its own container
type TestDB struct {
	DB             *gorm.DB
	SqlDB          *sql.DB
	Container      testcontainers.Container
	DSN            string
	MigrationsPath string
	t              *testing.T
}

// NewTestDB starts a PostgreSQL container, applies every migration and
// registers cleanup. Each call gets a fresh container.
func NewTestDB(t *testing.T) *TestDB {
	t.Helper()
	tdb := newUnmigratedTestDB(t)

	m, err := migration.New(tdb.SqlDB, tdb.MigrationsPath, nil)
	require.NoError(t, err, "Failed to create migrator")
	require.NoError(t, m.Up(), "Failed to run migrations")
	return tdb
}

func newUnmigratedTestDB(t *testing.T) *TestDB {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("storepulse_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("storepulse"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "Failed to start PostgreSQL container")

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "Failed to get connection string")

	migrationsPath := findMigrationsPath()
	require.NotEmpty(t, migrationsPath, "Could not find migrations directory")

	db, sqlDB := connectToDatabase(t, dsn)
	tdb := &TestDB{
		DB:             db,
		SqlDB:          sqlDB,
		Container:      container,
		DSN:            dsn,
		MigrationsPath: migrationsPath,
		t:              t,
	}
	t.Cleanup(tdb.Close)
	return tdb
}

// Close closes the connection and terminates the container
func (tdb *TestDB) Close() {
	if tdb.SqlDB != nil {
		_ = tdb.SqlDB.Close()
	}
	if tdb.Container != nil {
		if err := tdb.Container.Terminate(context.Background()); err != nil {
			tdb.t.Logf("Warning: Failed to terminate container: %v", err)
		}
	}
}

// CleanTables truncates every analytics table
func (tdb *TestDB) CleanTables() {
	tdb.t.Helper()
	for _, table := range []string{"daily_stats", "product_stats", "customer_stats", "coupon_stats", "sync_logs"} {
		require.NoError(tdb.t, tdb.DB.Exec(fmt.Sprintf("TRUNCATE TABLE %s", table)).Error)
	}
}

// TableExists reports whether a public table exists
func (tdb *TestDB) TableExists(name string) bool {
	tdb.t.Helper()
	var exists bool
	err := tdb.DB.Raw(`
		SELECT EXISTS (
			SELECT 1 FROM pg_tables WHERE schemaname = 'public' AND tablename = ?
		)`, name).Scan(&exists).Error
	require.NoError(tdb.t, err)
	return exists
}

func connectToDatabase(t *testing.T, dsn string) (*gorm.DB, *sql.DB) {
	t.Helper()

	gormConfig := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}
	if os.Getenv("TEST_DB_DEBUG") != "" {
		gormConfig.Logger = logger.Default.LogMode(logger.Info)
	}

	db, err := gorm.Open(gormpostgres.Open(dsn), gormConfig)
	require.NoError(t, err, "Failed to connect to database")

	sqlDB, err := db.DB()
	require.NoError(t, err, "Failed to get underlying SQL DB")
	sqlDB.SetMaxOpenConns(5)
	sqlDB.SetMaxIdleConns(2)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	return db, sqlDB
}

// findMigrationsPath walks up from this file to the repository's migrations directory
func findMigrationsPath() string {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		return ""
	}
	dir := filepath.Dir(filename)
	for range 5 {
		candidate := filepath.Join(dir, "migrations")
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		dir = filepath.Dir(dir)
	}
	return ""
}
