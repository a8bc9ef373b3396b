package db

import (
	"github.com/pkg/errors"

	"github.com/hrygo/harvestline/internal/profile"
	"github.com/hrygo/harvestline/store"
	"github.com/hrygo/harvestline/store/db/postgres"
	"github.com/hrygo/harvestline/store/db/sqlite"
)

// ============================================================================
// DATABASE SUPPORT POLICY
// ============================================================================
// PostgreSQL: production, vector search through pgvector.
// SQLite: development and single-node installs. Embeddings are stored as
// BLOBs and ranked in process.
// ============================================================================

// NewDBDriver creates new db driver based on profile.
func NewDBDriver(profile *profile.Profile) (store.Driver, error) {
	var driver store.Driver
	var err error

	switch profile.Driver {
	case "sqlite":
		driver, err = sqlite.NewDB(profile)
	case "postgres":
		driver, err = postgres.NewDB(profile)
	default:
		return nil, errors.New("unknown db driver: only 'postgres' and 'sqlite' are supported")
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to create db driver")
	}
	return driver, nil
}
