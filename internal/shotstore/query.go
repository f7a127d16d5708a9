package shotstore

import (
	"database/sql"
	"fmt"
	"strings"
)

// RequestShotsFiltered builds the SQL synchronously on the caller's
// goroutine, then spawns a worker to run it. The result is posted to
// Events() tagged with a monotonically increasing serial; the caller
// should drop any ShotsResult whose Serial is not the latest it issued
// (§4.4 "Query pipeline").
func (e *Engine) RequestShotsFiltered(filter Filter, offset, limit int) int64 {
	serial := e.serial.Add(1)
	where, args := buildWhereClause(filter)
	orderBy := resolveSortColumn(filter.SortColumn, filter.SortDesc)

	dataQuery := fmt.Sprintf(`SELECT
		id, uuid, timestamp, profile_name, profile_json, beverage_type,
		duration_seconds, final_yield_grams, dose_grams, tds, ey, enjoyment,
		bean_brand, bean_type, roast_date, roast_level, grinder_model,
		grinder_setting, barista, espresso_notes, bean_notes, profile_notes,
		temperature_override, yield_override, visualizer_id, visualizer_url, debug_log
		FROM shots %s ORDER BY %s LIMIT ? OFFSET ?`, where, orderBy)
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM shots %s`, where)

	dataArgs := append(append([]any{}, args...), limit, offset)

	go e.queryWorker(serial, dataQuery, countQuery, dataArgs, args)
	return serial
}

func (e *Engine) queryWorker(serial int64, dataQuery, countQuery string, dataArgs, countArgs []any) {
	db, err := e.openWorkerConn()
	if err != nil {
		e.post(Event{Kind: EventErrorOccurred, Err: err})
		return
	}
	defer db.Close()

	shots, err := queryShots(db, dataQuery, dataArgs...)
	if err != nil {
		e.post(Event{Kind: EventErrorOccurred, Err: fmt.Errorf("query shots: %w", err)})
		return
	}

	var total int
	if err := db.QueryRow(countQuery, countArgs...).Scan(&total); err != nil {
		e.post(Event{Kind: EventErrorOccurred, Err: fmt.Errorf("count shots: %w", err)})
		return
	}

	if e.serial.Load() != serial {
		return // a newer request superseded this one; drop the stale page.
	}
	e.post(Event{Kind: EventShotsReady, Shots: ShotsResult{Shots: shots, Total: total, Serial: serial}})
}

func queryShots(db *sql.DB, query string, args ...any) ([]Shot, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var shots []Shot
	for rows.Next() {
		var s Shot
		if err := rows.Scan(
			&s.ID, &s.UUID, &s.Timestamp, &s.ProfileName, &s.ProfileJSON, &s.BeverageType,
			&s.DurationSeconds, &s.FinalYieldGrams, &s.DoseGrams, &s.TDS, &s.EY, &s.Enjoyment,
			&s.BeanBrand, &s.BeanType, &s.RoastDate, &s.RoastLevel, &s.GrinderModel,
			&s.GrinderSetting, &s.Barista, &s.EspressoNotes, &s.BeanNotes, &s.ProfileNotes,
			&s.TemperatureOverride, &s.YieldOverride, &s.VisualizerID, &s.VisualizerURL, &s.DebugLog,
		); err != nil {
			return nil, err
		}
		shots = append(shots, s)
	}
	return shots, rows.Err()
}

func buildWhereClause(f Filter) (string, []any) {
	var clauses []string
	var args []any

	if f.BeanBrand != "" {
		clauses = append(clauses, "bean_brand = ?")
		args = append(args, f.BeanBrand)
	}
	if f.BeanType != "" {
		clauses = append(clauses, "bean_type = ?")
		args = append(args, f.BeanType)
	}
	if f.ProfileName != "" {
		clauses = append(clauses, "profile_name = ?")
		args = append(args, f.ProfileName)
	}
	if f.GrinderModel != "" {
		clauses = append(clauses, "grinder_model = ?")
		args = append(args, f.GrinderModel)
	}
	if f.BeverageType != "" {
		clauses = append(clauses, "beverage_type = ?")
		args = append(args, f.BeverageType)
	}
	if f.MinEnjoyment > 0 {
		clauses = append(clauses, "enjoyment >= ?")
		args = append(args, f.MinEnjoyment)
	}
	if formatted := formatFTSQuery(f.SearchText); formatted != "" {
		// Embedded directly: the sqlite3 driver does not support bound
		// parameters inside MATCH. formatFTSQuery already escapes quotes.
		clauses = append(clauses, fmt.Sprintf("id IN (SELECT rowid FROM shots_fts WHERE shots_fts MATCH '%s')", formatted))
	}

	if len(clauses) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}

func resolveSortColumn(key string, desc bool) string {
	expr, ok := sortColumnWhitelist[key]
	if !ok {
		expr = sortColumnWhitelist["timestamp"]
	}
	if desc {
		return expr + " DESC"
	}
	return expr + " ASC"
}
