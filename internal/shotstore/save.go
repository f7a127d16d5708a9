package shotstore

import (
	"fmt"

	"github.com/decenza/de1core/internal/logging"
)

// SaveShot persists data asynchronously (§4.4 "Save pipeline"). The
// caller must already have compressed CompressedSamples on its own
// goroutine, since only it has access to the live shot-data model. The
// resulting id (or an error) arrives via Events() as EventShotSaved or
// EventErrorOccurred; at most one save runs at a time.
func (e *Engine) SaveShot(data ShotSaveData) {
	if !e.saveInProgress.CompareAndSwap(false, true) {
		e.post(Event{Kind: EventErrorOccurred, Err: fmt.Errorf("a save is already in progress")})
		return
	}
	go e.saveWorker(data)
}

func (e *Engine) saveWorker(data ShotSaveData) {
	defer e.saveInProgress.Store(false)

	id, err := e.insertShot(data)
	if err != nil {
		e.logger().Error("save shot failed: %v", err)
		logging.Audit().ShotSaved(data.UUID, false, err.Error())
		e.post(Event{Kind: EventErrorOccurred, Err: fmt.Errorf("save shot: %w", err)})
		return
	}

	e.distinct.invalidate()
	logging.Audit().ShotSaved(data.UUID, true, "")
	e.post(Event{Kind: EventShotSaved, ShotID: id})
}

func (e *Engine) insertShot(data ShotSaveData) (id int64, err error) {
	db, err := e.openWorkerConn()
	if err != nil {
		return -1, err
	}
	defer db.Close()

	tx, err := db.Begin()
	if err != nil {
		return -1, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	res, err := tx.Exec(`INSERT INTO shots (
		uuid, timestamp, profile_name, profile_json, beverage_type,
		duration_seconds, final_yield_grams, dose_grams, tds, ey, enjoyment,
		bean_brand, bean_type, roast_date, roast_level, grinder_model,
		grinder_setting, barista, espresso_notes, bean_notes, profile_notes,
		temperature_override, yield_override, visualizer_id, visualizer_url, debug_log
	) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		data.UUID, data.Timestamp, data.ProfileName, data.ProfileJSON, data.BeverageType,
		data.DurationSeconds, data.FinalYieldGrams, data.DoseGrams, data.TDS, data.EY, data.Enjoyment,
		data.BeanBrand, data.BeanType, data.RoastDate, data.RoastLevel, data.GrinderModel,
		data.GrinderSetting, data.Barista, data.EspressoNotes, data.BeanNotes, data.ProfileNotes,
		data.TemperatureOverride, data.YieldOverride, data.VisualizerID, data.VisualizerURL, data.DebugLog,
	)
	if err != nil {
		return -1, fmt.Errorf("insert shot: %w", err)
	}
	id, err = res.LastInsertId()
	if err != nil {
		return -1, fmt.Errorf("last insert id: %w", err)
	}

	_, err = tx.Exec(`INSERT INTO shot_samples (shot_id, sample_count, data_blob) VALUES (?, ?, ?)`,
		id, data.SampleCount, data.CompressedSamples)
	if err != nil {
		return -1, fmt.Errorf("insert samples: %w", err)
	}

	for _, p := range data.Phases {
		_, err = tx.Exec(`INSERT INTO shot_phases (shot_id, time_offset, label, frame_number, is_flow_mode, transition_reason)
			VALUES (?,?,?,?,?,?)`, id, p.TimeOffset, p.Label, p.FrameNumber, boolToInt(p.IsFlowMode), p.TransitionReason)
		if err != nil {
			return -1, fmt.Errorf("insert phase: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return -1, fmt.Errorf("commit: %w", err)
	}

	if _, ckErr := db.Exec("PRAGMA wal_checkpoint(PASSIVE)"); ckErr != nil {
		e.logger().Warn("wal checkpoint after save failed: %v", ckErr)
	}

	return id, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
