package shotstore

import (
	"database/sql"
	"fmt"
)

// GroupBy selects how RequestFavorites buckets shots (§4.4 "Auto-favorites").
type GroupBy string

const (
	GroupByBean               GroupBy = "bean"
	GroupByProfile            GroupBy = "profile"
	GroupByBeanProfile        GroupBy = "bean_profile"
	GroupByBeanProfileGrinder GroupBy = "bean_profile_grinder"
)

// groupByColumns maps each GroupBy mode to the columns it coalesces on.
var groupByColumns = map[GroupBy][]string{
	GroupByBean:               {"bean_brand", "bean_type"},
	GroupByProfile:            {"profile_name"},
	GroupByBeanProfile:        {"bean_brand", "bean_type", "profile_name"},
	GroupByBeanProfileGrinder: {"bean_brand", "bean_type", "profile_name", "grinder_model"},
}

// FavoriteGroup is the most-recent shot in a group plus the group's
// aggregates (§4.4 "Auto-favorites").
type FavoriteGroup struct {
	MostRecent   Shot
	ShotCount    int
	AvgTDS       float64
	AvgEY        float64
	AvgDuration  float64
	AvgDose      float64
	AvgYield     float64
	AvgTemp      float64
	AvgEnjoyment float64
	Notes        []string // all non-empty espresso_notes across the group, newest first
}

// RequestFavorites groups shots by mode and returns, per group, the most
// recent shot plus aggregates. It is implemented as a subquery that
// finds MAX(timestamp) per coalesced-column group, joined back to the
// main table.
func (e *Engine) RequestFavorites(mode GroupBy) error {
	cols, ok := groupByColumns[mode]
	if !ok {
		return fmt.Errorf("unknown group-by mode %q", mode)
	}
	go e.favoritesWorker(cols)
	return nil
}

func (e *Engine) favoritesWorker(cols []string) {
	db, err := e.openWorkerConn()
	if err != nil {
		e.post(Event{Kind: EventErrorOccurred, Err: err})
		return
	}
	defer db.Close()

	groupExpr := coalescedGroupExpr(cols)

	latestQuery := fmt.Sprintf(`
		SELECT s.id, s.uuid, s.timestamp, s.profile_name, s.profile_json, s.beverage_type,
			s.duration_seconds, s.final_yield_grams, s.dose_grams, s.tds, s.ey, s.enjoyment,
			s.bean_brand, s.bean_type, s.roast_date, s.roast_level, s.grinder_model,
			s.grinder_setting, s.barista, s.espresso_notes, s.bean_notes, s.profile_notes,
			s.temperature_override, s.yield_override, s.visualizer_id, s.visualizer_url, s.debug_log
		FROM shots s
		JOIN (
			SELECT %s AS grp, MAX(timestamp) AS max_ts
			FROM shots GROUP BY %s
		) latest ON %s = latest.grp AND s.timestamp = latest.max_ts
		ORDER BY s.timestamp DESC`, groupExpr, groupExpr, groupExpr)

	shots, err := queryShots(db, latestQuery)
	if err != nil {
		e.post(Event{Kind: EventErrorOccurred, Err: fmt.Errorf("query favorite groups: %w", err)})
		return
	}

	groups := make([]FavoriteGroup, 0, len(shots))
	for _, shot := range shots {
		agg, notes, err := favoriteAggregate(db, cols, shot)
		if err != nil {
			e.post(Event{Kind: EventErrorOccurred, Err: fmt.Errorf("aggregate favorite group: %w", err)})
			return
		}
		agg.MostRecent = shot
		agg.Notes = notes
		groups = append(groups, agg)
	}

	e.post(Event{Kind: EventFavoritesReady, Groups: groups})
}

func coalescedGroupExpr(cols []string) string {
	expr := ""
	for i, c := range cols {
		if i > 0 {
			expr += " || '\x1f' || "
		}
		expr += fmt.Sprintf("COALESCE(%s, '')", c)
	}
	return expr
}

// groupColumnValue extracts the value of one of the four possible
// group-by columns from a Shot, for matching other members of its group.
func groupColumnValue(col string, s Shot) string {
	switch col {
	case "bean_brand":
		return s.BeanBrand
	case "bean_type":
		return s.BeanType
	case "profile_name":
		return s.ProfileName
	case "grinder_model":
		return s.GrinderModel
	}
	return ""
}

// favoriteAggregate computes aggregates and notes for every shot sharing
// sample's values across cols.
func favoriteAggregate(db *sql.DB, cols []string, sample Shot) (FavoriteGroup, []string, error) {
	where := ""
	args := make([]any, 0, len(cols))
	for i, c := range cols {
		if i > 0 {
			where += " AND "
		}
		where += fmt.Sprintf("%s = ?", c)
		args = append(args, groupColumnValue(c, sample))
	}

	var agg FavoriteGroup
	var avgTDS, avgEY, avgDuration, avgDose, avgYield, avgTemp, avgEnjoyment sql.NullFloat64
	aggQuery := fmt.Sprintf(`SELECT COUNT(*), AVG(tds), AVG(ey), AVG(duration_seconds),
		AVG(dose_grams), AVG(final_yield_grams), AVG(temperature_override), AVG(enjoyment)
		FROM shots WHERE %s`, where)
	err := db.QueryRow(aggQuery, args...).Scan(
		&agg.ShotCount, &avgTDS, &avgEY, &avgDuration,
		&avgDose, &avgYield, &avgTemp, &avgEnjoyment,
	)
	if err != nil {
		return FavoriteGroup{}, nil, fmt.Errorf("aggregate query: %w", err)
	}
	agg.AvgTDS, agg.AvgEY, agg.AvgDuration = avgTDS.Float64, avgEY.Float64, avgDuration.Float64
	agg.AvgDose, agg.AvgYield, agg.AvgTemp, agg.AvgEnjoyment = avgDose.Float64, avgYield.Float64, avgTemp.Float64, avgEnjoyment.Float64

	notesQuery := fmt.Sprintf(`SELECT espresso_notes FROM shots WHERE %s AND espresso_notes != ''
		ORDER BY timestamp DESC`, where)
	rows, err := db.Query(notesQuery, args...)
	if err != nil {
		return agg, nil, fmt.Errorf("notes query: %w", err)
	}
	defer rows.Close()

	var notes []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			continue
		}
		notes = append(notes, n)
	}
	return agg, notes, rows.Err()
}
