package shotstore

import (
	"fmt"
	"sync"
)

// distinctCache caches GetDistinct results per column, invalidated
// wholesale on any save/update/delete/import commit (§4.4 "Distinct-value
// cache").
type distinctCache struct {
	mu     sync.Mutex
	values map[string][]string
}

func newDistinctCache() *distinctCache {
	return &distinctCache{values: make(map[string][]string)}
}

func (c *distinctCache) invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values = make(map[string][]string)
}

func (c *distinctCache) get(column string) ([]string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[column]
	return v, ok
}

func (c *distinctCache) set(column string, values []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[column] = values
}

// RequestDistinct returns cached values for column if present, otherwise
// spawns a worker to compute and cache them. column must be a member of
// the closed whitelist; otherwise the request is rejected.
func (e *Engine) RequestDistinct(column string) error {
	if !distinctColumnWhitelist[column] {
		return fmt.Errorf("column %q is not in the distinct-value whitelist", column)
	}

	if cached, ok := e.distinct.get(column); ok {
		e.post(Event{Kind: EventDistinctReady, Column: column, Values: cached})
		return nil
	}

	go e.distinctWorker(column)
	return nil
}

func (e *Engine) distinctWorker(column string) {
	db, err := e.openWorkerConn()
	if err != nil {
		e.post(Event{Kind: EventErrorOccurred, Err: err})
		return
	}
	defer db.Close()

	query := fmt.Sprintf(`SELECT DISTINCT %s FROM shots WHERE %s != '' ORDER BY %s`, column, column, column)
	rows, err := db.Query(query)
	if err != nil {
		e.post(Event{Kind: EventErrorOccurred, Err: fmt.Errorf("query distinct %s: %w", column, err)})
		return
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			continue
		}
		values = append(values, v)
	}

	e.distinct.set(column, values)
	e.post(Event{Kind: EventDistinctReady, Column: column, Values: values})
}
