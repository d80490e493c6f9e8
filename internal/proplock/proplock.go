// Package proplock serializes sync cycles per property.
package proplock

import (
	"errors"
	"sync"
)

// ErrBusy is returned when the property already has a cycle running.
var ErrBusy = errors.New("property sync already in progress")

// Locks hands out one non-blocking lock per property id.
type Locks struct {
	mu   sync.Mutex
	held map[string]bool
}

// New creates an empty lock set.
func New() *Locks {
	return &Locks{held: make(map[string]bool)}
}

// TryLock takes the property's lock or returns ErrBusy. The returned
// function releases it.
func (l *Locks) TryLock(propertyID string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[propertyID] {
		return nil, ErrBusy
	}
	l.held[propertyID] = true
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, propertyID)
			l.mu.Unlock()
		})
	}, nil
}

// Held reports whether the property's lock is taken.
func (l *Locks) Held(propertyID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held[propertyID]
}
