// Package inmemdb keeps users & records in process memory. Used by tests and the `memory` engine.
package inmemdb

import (
	"sync"
	"time"

	"github.com/trezcool/chuo/core/record"
	"github.com/trezcool/chuo/core/user"
)

type (
	userTable struct {
		mutex sync.RWMutex
		table map[string]*user.User
	}

	recordTable struct {
		mutex sync.RWMutex
		table map[record.Kind]map[string]*record.Record
	}

	DB struct {
		user   *userTable
		record *recordTable
		now    func() time.Time
	}

	Option func(db *DB)
)

// WithClock overrides the clock used to stamp records.
func WithClock(now func() time.Time) Option {
	return func(db *DB) { db.now = now }
}

func Open(opts ...Option) *DB {
	db := &DB{
		user:   &userTable{table: make(map[string]*user.User)},
		record: &recordTable{table: make(map[record.Kind]map[string]*record.Record)},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(db)
	}
	return db
}

// Reset drops every row.
func (db *DB) Reset() {
	db.user.mutex.Lock()
	db.user.table = make(map[string]*user.User)
	db.user.mutex.Unlock()

	db.record.mutex.Lock()
	db.record.table = make(map[record.Kind]map[string]*record.Record)
	db.record.mutex.Unlock()
}

func (db *DB) stamp() time.Time {
	return db.now().UTC()
}
