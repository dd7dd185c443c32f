package storage

import (
	"context"
	"database/sql"
	"fmt"
)

var migrations = []string{
	`CREATE TABLE video_record (
video_id VARCHAR(255) PRIMARY KEY,
channel_id VARCHAR(255) NOT NULL,
title TEXT NOT NULL DEFAULT '',
published_at VARCHAR(32) NOT NULL,
status VARCHAR(16) NOT NULL,
attempt_count INTEGER NOT NULL DEFAULT 0,
last_attempted_at VARCHAR(32),
last_error TEXT NOT NULL DEFAULT '',
result_summary TEXT NOT NULL DEFAULT '',
digest_id VARCHAR(36),
created_at VARCHAR(32) NOT NULL,
updated_at VARCHAR(32) NOT NULL
)`,
	`CREATE INDEX video_record_status ON video_record (status)`,
	`CREATE INDEX video_record_digest ON video_record (digest_id)`,
	`CREATE TABLE channel_state (
channel_id VARCHAR(255) PRIMARY KEY,
high_water_mark VARCHAR(32) NOT NULL,
updated_at VARCHAR(32) NOT NULL
)`,
	`CREATE TABLE digest (
id VARCHAR(36) PRIMARY KEY,
status VARCHAR(16) NOT NULL,
attempt_count INTEGER NOT NULL DEFAULT 0,
last_error TEXT NOT NULL DEFAULT '',
created_at VARCHAR(32) NOT NULL,
claimed_at VARCHAR(32),
delivered_at VARCHAR(32),
merged_into VARCHAR(36)
)`,
	`CREATE INDEX digest_status ON digest (status)`,
}

func migrate(ctx context.Context, db *sql.DB, dialect Dialect, wanted []string) error {
	query := `CREATE TABLE IF NOT EXISTS migration
("id" SERIAL PRIMARY KEY, "query" TEXT)`
	if dialect == DialectSQLite {
		query = `CREATE TABLE IF NOT EXISTS migration
("id" INTEGER PRIMARY KEY AUTOINCREMENT, "query" TEXT)`
	}
	if _, err := db.ExecContext(ctx, query); err != nil {
		return err
	}

	// find existing
	rows, err := db.QueryContext(ctx, `SELECT query FROM migration ORDER BY id`)
	if err != nil {
		return err
	}

	existing := []string{}
	for rows.Next() {
		var query string
		if err := rows.Scan(&query); err != nil {
			rows.Close()
			return err
		}
		existing = append(existing, query)
	}
	rows.Close()

	// compare
	missing, err := compareMigrations(wanted, existing)
	if err != nil {
		return err
	}

	// execute missing
	for _, query := range missing {
		if _, err := db.ExecContext(ctx, query); err != nil {
			return err
		}

		// register
		if _, err := db.ExecContext(ctx, dialect.rebind(`
INSERT INTO migration
(query) VALUES (?)
`), query); err != nil {
			return err
		}
	}

	return nil
}

func compareMigrations(wanted, existing []string) ([]string, error) {
	needed := []string{}
	if len(wanted) < len(existing) {
		return []string{}, fmt.Errorf("not enough migrations")
	}

	for i, want := range wanted {
		switch {
		case i >= len(existing):
			needed = append(needed, want)
		case want == existing[i]:
			// do nothing
		case want != existing[i]:
			return []string{}, fmt.Errorf("incompatible migration: %v", want)
		}
	}

	return needed, nil
}
