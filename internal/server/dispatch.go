package server

import (
	"fmt"
	"sync"
	"time"

	"github.com/decenza/de1core/internal/backup"
	"github.com/decenza/de1core/internal/shotstore"
)

// requestTimeout bounds how long a handler parks waiting for an engine's
// async ready signal before giving up (§5 "Companion Server request
// handlers... park the socket until the corresponding ready signal
// arrives").
const requestTimeout = 10 * time.Second

// dispatcher bridges the engines' single shared event channel to
// concurrently-parked HTTP handlers. Shot queries are disambiguated by
// their monotonic serial; backup/restore operations are single-flight
// (the engine itself refuses a second concurrent op), so their waiters
// form a FIFO queue.
type dispatcher struct {
	mu           sync.Mutex
	shotsWaiters map[int64]chan shotstore.Event
	backupQueue  []chan backup.Event
}

func newDispatcher() *dispatcher {
	return &dispatcher{shotsWaiters: make(map[int64]chan shotstore.Event)}
}

func (d *dispatcher) runShots(events <-chan shotstore.Event, done <-chan struct{}, hub *sseHub) {
	for {
		select {
		case <-done:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch ev.Kind {
			case shotstore.EventShotsReady:
				d.mu.Lock()
				ch, ok := d.shotsWaiters[ev.Shots.Serial]
				if ok {
					delete(d.shotsWaiters, ev.Shots.Serial)
				}
				d.mu.Unlock()
				if ok {
					ch <- ev
				}
			case shotstore.EventErrorOccurred:
				d.mu.Lock()
				waiters := d.shotsWaiters
				d.shotsWaiters = make(map[int64]chan shotstore.Event)
				d.mu.Unlock()
				for _, ch := range waiters {
					ch <- ev
				}
			}
		}
	}
}

func (d *dispatcher) waitForShots(serial int64) (shotstore.ShotsResult, error) {
	ch := make(chan shotstore.Event, 1)
	d.mu.Lock()
	d.shotsWaiters[serial] = ch
	d.mu.Unlock()

	select {
	case ev := <-ch:
		if ev.Kind == shotstore.EventErrorOccurred {
			return shotstore.ShotsResult{}, ev.Err
		}
		return ev.Shots, nil
	case <-time.After(requestTimeout):
		d.mu.Lock()
		delete(d.shotsWaiters, serial)
		d.mu.Unlock()
		return shotstore.ShotsResult{}, fmt.Errorf("timed out waiting for shot query result")
	}
}

func (d *dispatcher) runBackups(events <-chan backup.Event, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch ev.Kind {
			case backup.EventRestoreCompleted, backup.EventRestoreFailed:
				d.mu.Lock()
				var ch chan backup.Event
				if len(d.backupQueue) > 0 {
					ch = d.backupQueue[0]
					d.backupQueue = d.backupQueue[1:]
				}
				d.mu.Unlock()
				if ch != nil {
					ch <- ev
				}
			}
		}
	}
}

func (d *dispatcher) waitForRestore() (backup.Event, error) {
	ch := make(chan backup.Event, 1)
	d.mu.Lock()
	d.backupQueue = append(d.backupQueue, ch)
	d.mu.Unlock()

	select {
	case ev := <-ch:
		return ev, nil
	case <-time.After(requestTimeout):
		return backup.Event{}, fmt.Errorf("timed out waiting for restore result")
	}
}
