// Package testutil provides shared test helpers for config files and
// migrated SQLite databases.
package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Gidwell/jiro/internal/config"
	"github.com/Gidwell/jiro/internal/database"
)

// SetupTestConfig creates a minimal config file backed by a SQLite database
// and a local audio directory under tmpDir.
// Returns the path to the generated config file.
func SetupTestConfig(t *testing.T, tmpDir string) string {
	t.Helper()

	audioDir := filepath.Join(tmpDir, "audio")
	require.NoError(t, os.MkdirAll(audioDir, 0755))

	configContent := fmt.Sprintf(`database:
  backend: sqlite
  sqlite_path: %s
audio_store:
  backend: local
  local_directory: %s
`,
		filepath.Join(tmpDir, "jiro.db"),
		audioDir,
	)

	configPath := filepath.Join(tmpDir, "config.yml")
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0644))
	return configPath
}

// NewSQLiteGateway opens a migrated SQLite database under t.TempDir().
func NewSQLiteGateway(t *testing.T, opts ...database.Option) *database.Gateway {
	t.Helper()

	db, dialect, err := database.Open(config.DatabaseConfig{
		Backend:    "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "jiro.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.MigrateUp(db, dialect))

	gateway, err := database.NewGateway(db, dialect, opts...)
	require.NoError(t, err)
	return gateway
}

// SeedLearners inserts bare learner rows so tests can write items, turns and
// summaries that reference them.
func SeedLearners(t *testing.T, gateway *database.Gateway, ids ...int64) {
	t.Helper()

	db := gateway.DB()
	now := time.Now().UTC().Truncate(time.Microsecond)
	for _, id := range ids {
		_, err := db.Exec(db.Rebind(`INSERT INTO learners (id, error_patterns, created_at, updated_at) VALUES (?, '{}', ?, ?)`), id, now, now)
		require.NoError(t, err)
	}
}

// SchedulerConfig returns the scheduler settings used by default.
func SchedulerConfig() config.SchedulerConfig {
	return config.SchedulerConfig{
		InitialIntervalDays:  1,
		MinIntervalDays:      1,
		MaxIntervalDays:      365,
		MasteredIntervalDays: 30,
		DefaultEase:          2.5,
		MinEase:              1.3,
		MaxEaseDelta:         0.3,
		FastLatency:          5 * time.Second,
		SlowLatency:          15 * time.Second,
	}
}

// FixedClock returns a clock that always reports at.
func FixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}
