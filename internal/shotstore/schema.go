// Package shotstore is the Shot History Engine (§4.4): a SQLite-backed
// store for shot records, with WAL journaling, compressed sample blobs,
// FTS5 full-text search, schema migrations, and background-worker
// save/query pipelines whose results are delivered back to the caller
// without ever touching a destroyed engine.
package shotstore

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/decenza/de1core/internal/logging"
)

// CurrentSchemaVersion is the schema version this build knows how to
// migrate to (§4.4 "Known migrations to version 7").
const CurrentSchemaVersion = 7

const createSchemaSQL = `
CREATE TABLE IF NOT EXISTS shots (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	uuid TEXT NOT NULL UNIQUE,
	timestamp INTEGER NOT NULL,
	profile_name TEXT NOT NULL DEFAULT '',
	profile_json TEXT NOT NULL DEFAULT '',
	beverage_type TEXT NOT NULL DEFAULT 'espresso',
	duration_seconds REAL NOT NULL DEFAULT 0,
	final_yield_grams REAL NOT NULL DEFAULT 0,
	dose_grams REAL NOT NULL DEFAULT 0,
	tds REAL NOT NULL DEFAULT 0,
	ey REAL NOT NULL DEFAULT 0,
	enjoyment INTEGER NOT NULL DEFAULT 0,
	bean_brand TEXT NOT NULL DEFAULT '',
	bean_type TEXT NOT NULL DEFAULT '',
	roast_date TEXT NOT NULL DEFAULT '',
	roast_level TEXT NOT NULL DEFAULT '',
	grinder_model TEXT NOT NULL DEFAULT '',
	grinder_setting TEXT NOT NULL DEFAULT '',
	barista TEXT NOT NULL DEFAULT '',
	espresso_notes TEXT NOT NULL DEFAULT '',
	visualizer_id TEXT,
	visualizer_url TEXT,
	debug_log TEXT
);

CREATE TABLE IF NOT EXISTS shot_samples (
	shot_id INTEGER PRIMARY KEY REFERENCES shots(id) ON DELETE CASCADE,
	sample_count INTEGER NOT NULL,
	data_blob BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS shot_phases (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	shot_id INTEGER NOT NULL REFERENCES shots(id) ON DELETE CASCADE,
	time_offset REAL NOT NULL,
	label TEXT NOT NULL,
	frame_number INTEGER NOT NULL,
	is_flow_mode INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_shots_timestamp ON shots(timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_shots_profile_name ON shots(profile_name);
CREATE INDEX IF NOT EXISTS idx_shots_bean ON shots(bean_brand, bean_type);
CREATE INDEX IF NOT EXISTS idx_shots_grinder ON shots(grinder_model);
CREATE INDEX IF NOT EXISTS idx_shots_enjoyment ON shots(enjoyment);
CREATE INDEX IF NOT EXISTS idx_shot_phases_shot_id ON shot_phases(shot_id);
`

// Open opens (creating if needed) the shot database at path in WAL mode
// with foreign keys enforced and a 5s busy timeout, then runs migrations
// up to CurrentSchemaVersion.
func Open(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open shot database %s: %w", path, err)
	}

	if _, err := db.Exec(createSchemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("create shot schema: %w", err)
	}

	if err := runAllMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate shot database: %w", err)
	}

	logging.Get(logging.CategoryShotStore).Info("shot database opened at %s", path)
	return db, nil
}

func tableExists(db *sql.DB, table string) bool {
	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
	return err == nil && count > 0
}

func columnExists(db *sql.DB, table, column string) bool {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dflt interface{}
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			continue
		}
		if name == column {
			return true
		}
	}
	return false
}
