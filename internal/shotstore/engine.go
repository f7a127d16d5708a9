package shotstore

import (
	"database/sql"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/decenza/de1core/internal/logging"
)

// EventKind distinguishes the asynchronous results an Engine posts back
// to its owner (§4.4, §5 "Ordering guarantees").
type EventKind int

const (
	EventShotSaved EventKind = iota
	EventShotsReady
	EventDistinctReady
	EventFavoritesReady
	EventImportCompleted
	EventErrorOccurred
)

// ShotsResult is the payload of an EventShotsReady event.
type ShotsResult struct {
	Shots  []Shot
	Total  int
	Serial int64
}

// Event is posted by a background worker and delivered through
// Engine.Events(). Only one of the typed payload fields is populated,
// matching Kind.
type Event struct {
	Kind    EventKind
	ShotID  int64
	Shots   ShotsResult
	Column  string
	Values  []string
	Groups  []FavoriteGroup
	Err     error
}

// Engine is the Shot History Engine (§4.4): it owns the persistence
// layer and runs all blocking work on background workers, posting
// results back through a channel that is safe against the engine
// having been closed mid-flight. Go has no destructors, so "destroyed"
// is modeled as a closed channel that every worker checks before
// posting (the same shape as the spec's shared boolean sentinel).
type Engine struct {
	path string

	mu     sync.Mutex
	closed chan struct{}
	events chan Event

	serial atomic.Int64

	saveInProgress    atomic.Bool
	importInProgress  atomic.Bool
	restoreInProgress atomic.Bool

	distinct *distinctCache
}

// NewEngine opens (creating and migrating if needed) the shot database
// at path and returns a ready Engine.
func NewEngine(path string) (*Engine, error) {
	db, err := Open(path)
	if err != nil {
		return nil, err
	}
	db.Close() // schema/migration only needed the main-thread connection transiently.

	e := &Engine{
		path:     path,
		closed:   make(chan struct{}),
		events:   make(chan Event, 64),
		distinct: newDistinctCache(),
	}
	return e, nil
}

// Events returns the channel on which all asynchronous results and
// errors are delivered.
func (e *Engine) Events() <-chan Event {
	return e.events
}

// Done returns a channel that closes once the engine has been closed, so a
// consumer ranging over Events can stop without the engine itself closing
// (and thereby risking a send-on-closed-channel panic from an in-flight
// worker) its events channel.
func (e *Engine) Done() <-chan struct{} {
	return e.closed
}

// Close marks the engine destroyed. Workers already running will still
// finish their SQL, but their result post is dropped rather than sent,
// mirroring the spec's destructor-set sentinel.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	select {
	case <-e.closed:
		return
	default:
		close(e.closed)
	}
}

// post delivers ev unless the engine has been closed.
func (e *Engine) post(ev Event) {
	select {
	case <-e.closed:
		return
	default:
	}
	select {
	case e.events <- ev:
	case <-e.closed:
	}
}

// openWorkerConn opens a dedicated connection for a background worker,
// distinct from any caller-held connection (§4.4 "spawn a worker that
// opens its own connection").
func (e *Engine) openWorkerConn() (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000", e.path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open worker connection: %w", err)
	}
	return db, nil
}

func (e *Engine) logger() *logging.Logger {
	return logging.Get(logging.CategoryShotStore)
}
