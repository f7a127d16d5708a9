package shotstore

import (
	"database/sql"
	"fmt"

	"github.com/decenza/de1core/internal/logging"
)

// ImportDatabase imports shots from the database at path into the
// engine's database, either merging (skip shots whose UUID already
// exists) or replacing (wipe shots/samples/phases first). At most one
// import may run at a time (§4.4 "Import", "Concurrency").
func (e *Engine) ImportDatabase(path string, merge bool) {
	if !e.importInProgress.CompareAndSwap(false, true) {
		e.post(Event{Kind: EventErrorOccurred, Err: fmt.Errorf("an import is already in progress")})
		return
	}
	go e.importWorker(path, merge)
}

func (e *Engine) importWorker(path string, merge bool) {
	defer e.importInProgress.Store(false)

	if err := e.importDatabaseSync(path, merge); err != nil {
		e.logger().Error("import database failed: %v", err)
		logging.Audit().ShotImported(path, false, err.Error())
		e.post(Event{Kind: EventErrorOccurred, Err: fmt.Errorf("import database: %w", err)})
		return
	}

	e.distinct.invalidate()
	logging.Audit().ShotImported(path, true, "")
	e.post(Event{Kind: EventImportCompleted})
}

func (e *Engine) importDatabaseSync(path string, merge bool) error {
	src, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?mode=ro", path))
	if err != nil {
		return fmt.Errorf("open source database: %w", err)
	}
	defer src.Close()

	if !tableExists(src, "shots") {
		return fmt.Errorf("source database has no shots table")
	}
	var srcCount int
	if err := src.QueryRow("SELECT COUNT(*) FROM shots").Scan(&srcCount); err != nil {
		return fmt.Errorf("count source shots: %w", err)
	}
	if srcCount == 0 {
		return fmt.Errorf("source database has no shots")
	}

	dst, err := e.openWorkerConn()
	if err != nil {
		return err
	}
	defer dst.Close()

	tx, err := dst.Begin()
	if err != nil {
		return fmt.Errorf("begin destination transaction: %w", err)
	}
	defer tx.Rollback()

	existing := map[string]bool{}
	if merge {
		rows, err := tx.Query("SELECT uuid FROM shots")
		if err != nil {
			return fmt.Errorf("read existing uuids: %w", err)
		}
		for rows.Next() {
			var u string
			if err := rows.Scan(&u); err == nil {
				existing[u] = true
			}
		}
		rows.Close()
	} else {
		if _, err := tx.Exec("DELETE FROM shot_phases"); err != nil {
			return fmt.Errorf("clear shot_phases: %w", err)
		}
		if _, err := tx.Exec("DELETE FROM shot_samples"); err != nil {
			return fmt.Errorf("clear shot_samples: %w", err)
		}
		if _, err := tx.Exec("DELETE FROM shots"); err != nil {
			return fmt.Errorf("clear shots: %w", err)
		}
	}

	srcHasTransitionReason := columnExists(src, "shot_phases", "transition_reason")

	srcRows, err := src.Query(`SELECT id, uuid, timestamp, profile_name, profile_json, beverage_type,
		duration_seconds, final_yield_grams, dose_grams, tds, ey, enjoyment,
		bean_brand, bean_type, roast_date, roast_level, grinder_model,
		grinder_setting, barista, espresso_notes, visualizer_id, visualizer_url, debug_log
		FROM shots`)
	if err != nil {
		return fmt.Errorf("read source shots: %w", err)
	}
	defer srcRows.Close()

	for srcRows.Next() {
		var srcID int64
		var s Shot
		if err := srcRows.Scan(&srcID, &s.UUID, &s.Timestamp, &s.ProfileName, &s.ProfileJSON, &s.BeverageType,
			&s.DurationSeconds, &s.FinalYieldGrams, &s.DoseGrams, &s.TDS, &s.EY, &s.Enjoyment,
			&s.BeanBrand, &s.BeanType, &s.RoastDate, &s.RoastLevel, &s.GrinderModel,
			&s.GrinderSetting, &s.Barista, &s.EspressoNotes, &s.VisualizerID, &s.VisualizerURL, &s.DebugLog,
		); err != nil {
			return fmt.Errorf("scan source shot: %w", err)
		}

		if merge && existing[s.UUID] {
			continue
		}

		if err := importOneShot(tx, src, srcID, s, srcHasTransitionReason); err != nil {
			return fmt.Errorf("import shot %s: %w", s.UUID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit import: %w", err)
	}

	if err := backfillBeverageType(dst); err != nil {
		e.logger().Warn("beverage_type backfill after import failed: %v", err)
	}
	return nil
}

func importOneShot(tx *sql.Tx, src *sql.DB, srcID int64, s Shot, srcHasTransitionReason bool) error {
	res, err := tx.Exec(`INSERT INTO shots (
		uuid, timestamp, profile_name, profile_json, beverage_type,
		duration_seconds, final_yield_grams, dose_grams, tds, ey, enjoyment,
		bean_brand, bean_type, roast_date, roast_level, grinder_model,
		grinder_setting, barista, espresso_notes, visualizer_id, visualizer_url, debug_log
	) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		s.UUID, s.Timestamp, s.ProfileName, s.ProfileJSON, s.BeverageType,
		s.DurationSeconds, s.FinalYieldGrams, s.DoseGrams, s.TDS, s.EY, s.Enjoyment,
		s.BeanBrand, s.BeanType, s.RoastDate, s.RoastLevel, s.GrinderModel,
		s.GrinderSetting, s.Barista, s.EspressoNotes, s.VisualizerID, s.VisualizerURL, s.DebugLog,
	)
	if err != nil {
		return fmt.Errorf("insert shot: %w", err)
	}
	newID, err := res.LastInsertId()
	if err != nil {
		return err
	}

	var sampleCount int
	var blob []byte
	err = src.QueryRow("SELECT sample_count, data_blob FROM shot_samples WHERE shot_id = ?", srcID).Scan(&sampleCount, &blob)
	if err == nil {
		if _, err := tx.Exec("INSERT INTO shot_samples (shot_id, sample_count, data_blob) VALUES (?,?,?)", newID, sampleCount, blob); err != nil {
			return fmt.Errorf("insert samples: %w", err)
		}
	} else if err != sql.ErrNoRows {
		return fmt.Errorf("read source samples: %w", err)
	}

	return importPhases(tx, src, srcID, newID, srcHasTransitionReason)
}

func importPhases(tx *sql.Tx, src *sql.DB, srcID, newID int64, srcHasTransitionReason bool) error {
	query := "SELECT time_offset, label, frame_number, is_flow_mode, transition_reason FROM shot_phases WHERE shot_id = ? ORDER BY time_offset"
	if !srcHasTransitionReason {
		query = "SELECT time_offset, label, frame_number, is_flow_mode FROM shot_phases WHERE shot_id = ? ORDER BY time_offset"
	}

	rows, err := src.Query(query, srcID)
	if err != nil {
		return fmt.Errorf("read source phases: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p PhaseMarker
		var isFlow int
		if srcHasTransitionReason {
			if err := rows.Scan(&p.TimeOffset, &p.Label, &p.FrameNumber, &isFlow, &p.TransitionReason); err != nil {
				return fmt.Errorf("scan phase: %w", err)
			}
		} else {
			if err := rows.Scan(&p.TimeOffset, &p.Label, &p.FrameNumber, &isFlow); err != nil {
				return fmt.Errorf("scan phase: %w", err)
			}
		}
		p.IsFlowMode = isFlow != 0

		_, err := tx.Exec("INSERT INTO shot_phases (shot_id, time_offset, label, frame_number, is_flow_mode, transition_reason) VALUES (?,?,?,?,?,?)",
			newID, p.TimeOffset, p.Label, p.FrameNumber, boolToInt(p.IsFlowMode), p.TransitionReason)
		if err != nil {
			return fmt.Errorf("insert phase: %w", err)
		}
	}
	return rows.Err()
}
