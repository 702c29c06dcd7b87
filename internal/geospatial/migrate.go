package geospatial

import (
	"context"
	"embed"
	"io/fs"
	"slices"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/site-screener/internal/db"
)

//go:embed migrations/*.sql
var geoMigrationFS embed.FS

// geoMigrationLockID serializes concurrent migration runs across processes.
const geoMigrationLockID = 8675310

const geoMigrationTable = `
	CREATE SCHEMA IF NOT EXISTS geo;
	CREATE TABLE IF NOT EXISTS geo.schema_migrations (
		filename   TEXT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);`

// Migrate brings the feature-layer schema up to date. Each pending file
// runs in its own transaction together with its bookkeeping row, so a
// failed file leaves no trace and is retried on the next run.
func Migrate(ctx context.Context, pool db.Pool) error {
	log := zap.L().With(zap.String("component", "geo.migrate"))

	if _, err := pool.Exec(ctx, "SELECT pg_advisory_lock($1)", geoMigrationLockID); err != nil {
		return eris.Wrap(err, "geo: acquire migration advisory lock")
	}
	defer func() {
		if _, err := pool.Exec(ctx, "SELECT pg_advisory_unlock($1)", geoMigrationLockID); err != nil {
			log.Warn("geo: release migration advisory lock", zap.Error(err))
		}
	}()

	if _, err := pool.Exec(ctx, geoMigrationTable); err != nil {
		return eris.Wrap(err, "geo: ensure migration table")
	}

	pending, err := pendingGeoMigrations(ctx, pool)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		log.Debug("geo schema up to date")
		return nil
	}

	for _, name := range pending {
		if err := applyGeoMigration(ctx, pool, name); err != nil {
			return err
		}
		log.Info("geo migration applied", zap.String("file", name))
	}
	return nil
}

// pendingGeoMigrations lists embedded files not yet recorded, in name order.
func pendingGeoMigrations(ctx context.Context, pool db.Pool) ([]string, error) {
	entries, err := fs.ReadDir(geoMigrationFS, "migrations")
	if err != nil {
		return nil, eris.Wrap(err, "geo: read migration dir")
	}

	rows, err := pool.Query(ctx, "SELECT filename FROM geo.schema_migrations")
	if err != nil {
		return nil, eris.Wrap(err, "geo: query applied migrations")
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, eris.Wrap(err, "geo: scan migration row")
		}
		applied[name] = true
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "geo: iterate migration rows")
	}

	var pending []string
	for _, e := range entries {
		if !applied[e.Name()] {
			pending = append(pending, e.Name())
		}
	}
	slices.Sort(pending)
	return pending, nil
}

func applyGeoMigration(ctx context.Context, pool db.Pool, name string) error {
	script, err := geoMigrationFS.ReadFile("migrations/" + name)
	if err != nil {
		return eris.Wrapf(err, "geo: read migration %s", name)
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return eris.Wrapf(err, "geo: begin migration %s", name)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, string(script)); err != nil {
		return eris.Wrapf(err, "geo: apply migration %s", name)
	}
	if _, err := tx.Exec(ctx, "INSERT INTO geo.schema_migrations (filename) VALUES ($1)", name); err != nil {
		return eris.Wrapf(err, "geo: record migration %s", name)
	}
	return eris.Wrapf(tx.Commit(ctx), "geo: commit migration %s", name)
}
