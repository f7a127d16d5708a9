package shotstore

import (
	"compress/zlib"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/decenza/de1core/internal/logging"
)

// getSchemaVersion reads the single-row schema_version table, defaulting
// to 1 if the table is empty (a freshly created database).
func getSchemaVersion(db *sql.DB) int {
	var v int
	if err := db.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&v); err != nil {
		return 1
	}
	return v
}

// setSchemaVersion overwrites the stored version using delete-then-insert
// rather than UPDATE (§4.4: "UPDATE is avoided because early versions
// accidentally inserted duplicate rows").
func setSchemaVersion(db *sql.DB, version int) error {
	if _, err := db.Exec("DELETE FROM schema_version"); err != nil {
		return fmt.Errorf("clear schema_version: %w", err)
	}
	if _, err := db.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
		return fmt.Errorf("set schema_version: %w", err)
	}
	return nil
}

// runAllMigrations walks the current version up to CurrentSchemaVersion,
// applying each numbered migration in order.
func runAllMigrations(db *sql.DB) error {
	logger := logging.Get(logging.CategoryShotStore)
	version := getSchemaVersion(db)
	if version == 0 {
		version = 1
	}

	for version < CurrentSchemaVersion {
		next := version + 1
		var err error
		switch next {
		case 2:
			// no-op placeholder: v1->v2 has no schema change in this core.
		case 3:
			err = migrateV2ToV3(db)
		case 4:
			err = migrateV3ToV4(db)
		case 5:
			err = migrateV4ToV5(db)
		case 6:
			err = migrateV5ToV6(db)
		case 7:
			err = migrateV6ToV7(db)
		}

		if err != nil {
			logger.Error("migration to v%d failed: %v", next, err)
			if next != 7 {
				return fmt.Errorf("migrate to schema v%d: %w", next, err)
			}
			// v7 is cosmetic smoothing; bump the version anyway so startup
			// doesn't loop retrying it forever (§9 Open Questions).
			logger.Warn("schema v7 smoothing failed; advancing version anyway since it is cosmetic: %v", err)
		}

		if err := setSchemaVersion(db, next); err != nil {
			return fmt.Errorf("record schema v%d: %w", next, err)
		}
		logger.Info("shot database migrated to schema v%d", next)
		version = next
	}
	return nil
}

func addColumnIfMissing(db *sql.DB, table, column, def string) error {
	if !columnExists(db, table, column) {
		_, err := db.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, def))
		if err != nil {
			return fmt.Errorf("add %s.%s: %w", table, column, err)
		}
	}
	return nil
}

// migrateV2ToV3 adds temperature_override, yield_override REAL columns.
func migrateV2ToV3(db *sql.DB) error {
	if err := addColumnIfMissing(db, "shots", "temperature_override", "REAL"); err != nil {
		return err
	}
	return addColumnIfMissing(db, "shots", "yield_override", "REAL")
}

// migrateV3ToV4 adds transition_reason TEXT on shot_phases.
func migrateV3ToV4(db *sql.DB) error {
	return addColumnIfMissing(db, "shot_phases", "transition_reason", "TEXT NOT NULL DEFAULT ''")
}

// migrateV4ToV5 drops/recreates shots_fts and its sync triggers to include
// profile_name and grinder_model, then rebuilds the FTS index.
func migrateV4ToV5(db *sql.DB) error {
	stmts := []string{
		`DROP TABLE IF EXISTS shots_fts`,
		`CREATE VIRTUAL TABLE shots_fts USING fts5(
			espresso_notes, bean_brand, bean_type, profile_name, grinder_model,
			content='shots', content_rowid='id'
		)`,
		`DROP TRIGGER IF EXISTS shots_ai`,
		`DROP TRIGGER IF EXISTS shots_ad`,
		`DROP TRIGGER IF EXISTS shots_au`,
		`CREATE TRIGGER shots_ai AFTER INSERT ON shots BEGIN
			INSERT INTO shots_fts(rowid, espresso_notes, bean_brand, bean_type, profile_name, grinder_model)
			VALUES (new.id, new.espresso_notes, new.bean_brand, new.bean_type, new.profile_name, new.grinder_model);
		END`,
		`CREATE TRIGGER shots_ad AFTER DELETE ON shots BEGIN
			INSERT INTO shots_fts(shots_fts, rowid, espresso_notes, bean_brand, bean_type, profile_name, grinder_model)
			VALUES ('delete', old.id, old.espresso_notes, old.bean_brand, old.bean_type, old.profile_name, old.grinder_model);
		END`,
		`CREATE TRIGGER shots_au AFTER UPDATE ON shots BEGIN
			INSERT INTO shots_fts(shots_fts, rowid, espresso_notes, bean_brand, bean_type, profile_name, grinder_model)
			VALUES ('delete', old.id, old.espresso_notes, old.bean_brand, old.bean_type, old.profile_name, old.grinder_model);
			INSERT INTO shots_fts(rowid, espresso_notes, bean_brand, bean_type, profile_name, grinder_model)
			VALUES (new.id, new.espresso_notes, new.bean_brand, new.bean_type, new.profile_name, new.grinder_model);
		END`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("rebuild shots_fts: %w", err)
		}
	}

	// Rebuild the index from existing rows.
	_, err := db.Exec(`INSERT INTO shots_fts(rowid, espresso_notes, bean_brand, bean_type, profile_name, grinder_model)
		SELECT id, espresso_notes, bean_brand, bean_type, profile_name, grinder_model FROM shots`)
	if err != nil {
		return fmt.Errorf("populate shots_fts: %w", err)
	}
	return nil
}

var beverageTypeFromProfileJSON = regexp.MustCompile(`"beverage_type"\s*:\s*"([^"]+)"`)

// migrateV5ToV6 adds beverage_type, bean_notes, profile_notes and
// backfills beverage_type by parsing the stored profile_json.
func migrateV5ToV6(db *sql.DB) error {
	if err := addColumnIfMissing(db, "shots", "beverage_type", "TEXT NOT NULL DEFAULT 'espresso'"); err != nil {
		return err
	}
	if err := addColumnIfMissing(db, "shots", "bean_notes", "TEXT NOT NULL DEFAULT ''"); err != nil {
		return err
	}
	if err := addColumnIfMissing(db, "shots", "profile_notes", "TEXT NOT NULL DEFAULT ''"); err != nil {
		return err
	}
	return backfillBeverageType(db)
}

func backfillBeverageType(db *sql.DB) error {
	rows, err := db.Query(`SELECT id, profile_json FROM shots WHERE profile_json != ''`)
	if err != nil {
		return fmt.Errorf("query shots for beverage_type backfill: %w", err)
	}
	defer rows.Close()

	type update struct {
		id  int64
		typ string
	}
	var updates []update
	for rows.Next() {
		var id int64
		var profileJSON string
		if err := rows.Scan(&id, &profileJSON); err != nil {
			continue
		}
		m := beverageTypeFromProfileJSON.FindStringSubmatch(profileJSON)
		if m == nil {
			continue
		}
		updates = append(updates, update{id: id, typ: m[1]})
	}

	for _, u := range updates {
		if _, err := db.Exec("UPDATE shots SET beverage_type = ? WHERE id = ?", u.typ, u.id); err != nil {
			return fmt.Errorf("backfill beverage_type for shot %d: %w", u.id, err)
		}
	}
	return nil
}

// sampleChannels is the decompressed sample-blob shape (§3.4).
type sampleChannels map[string]struct {
	T []float64 `json:"t"`
	V []float64 `json:"v"`
}

// migrateV6ToV7 smooths historical weight-flow-rate channels with a
// centered moving average of half-window=5 (11-point window), inside a
// transaction. A failure here is cosmetic only and must not block startup
// (§4.4, §9 Open Questions).
func migrateV6ToV7(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin v7 smoothing transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.Query(`SELECT shot_id, data_blob FROM shot_samples`)
	if err != nil {
		return fmt.Errorf("query samples for smoothing: %w", err)
	}

	type rewrite struct {
		shotID int64
		blob   []byte
	}
	var toWrite []rewrite

	for rows.Next() {
		var shotID int64
		var blob []byte
		if err := rows.Scan(&shotID, &blob); err != nil {
			continue
		}
		smoothed, changed, err := smoothWeightFlowBlob(blob)
		if err != nil || !changed {
			continue
		}
		toWrite = append(toWrite, rewrite{shotID: shotID, blob: smoothed})
	}
	rows.Close()

	for _, rw := range toWrite {
		if _, err := tx.Exec(`UPDATE shot_samples SET data_blob = ? WHERE shot_id = ?`, rw.blob, rw.shotID); err != nil {
			return fmt.Errorf("write smoothed samples for shot %d: %w", rw.shotID, err)
		}
	}

	return tx.Commit()
}

const smoothingHalfWindow = 5

func smoothWeightFlowBlob(blob []byte) ([]byte, bool, error) {
	data, err := decompressBlob(blob)
	if err != nil {
		return nil, false, err
	}

	var channels sampleChannels
	if err := json.Unmarshal(data, &channels); err != nil {
		return nil, false, err
	}

	target := "smoothed weight flow rate"
	ch, ok := channels[target]
	if !ok || len(ch.V) == 0 {
		return nil, false, nil
	}

	ch.V = centeredMovingAverage(ch.V, smoothingHalfWindow)
	channels[target] = ch

	out, err := json.Marshal(channels)
	if err != nil {
		return nil, false, err
	}
	compressed, err := compressBlob(out)
	if err != nil {
		return nil, false, err
	}
	return compressed, true, nil
}

func centeredMovingAverage(v []float64, halfWindow int) []float64 {
	out := make([]float64, len(v))
	for i := range v {
		lo := i - halfWindow
		if lo < 0 {
			lo = 0
		}
		hi := i + halfWindow
		if hi >= len(v) {
			hi = len(v) - 1
		}
		var sum float64
		for j := lo; j <= hi; j++ {
			sum += v[j]
		}
		out[i] = sum / float64(hi-lo+1)
	}
	return out
}

func decompressBlob(blob []byte) ([]byte, error) {
	r, err := zlib.NewReader(strings.NewReader(string(blob)))
	if err != nil {
		return nil, fmt.Errorf("zlib reader: %w", err)
	}
	defer r.Close()
	return io.ReadAll(r)
}

func compressBlob(data []byte) ([]byte, error) {
	var buf strings.Builder
	w, err := zlib.NewWriterLevel(&buf, zlib.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return []byte(buf.String()), nil
}
