package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/repfit/repfit/internal/database"
)

// Option customises test database provisioning.
type Option func(*options)

type options struct {
	seed bool
}

// WithSeedData applies the default seed data after migrating.
func WithSeedData() Option {
	return func(o *options) {
		o.seed = true
	}
}

// MustOpenTestDB opens an isolated in-memory SQLite database with the full
// schema migrated, closing it when the test finishes.
func MustOpenTestDB(t *testing.T, opts ...Option) *gorm.DB {
	t.Helper()

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, database.AutoMigrate(db))
	if o.seed {
		require.NoError(t, database.SeedData(db))
	}

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	return db
}
