package inmemdb

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/trezcool/chuo/core/record"
)

type recordStore struct {
	db *DB
}

var _ record.Store = (*recordStore)(nil) // interface compliance check

func NewRecordStore(db *DB) *recordStore {
	return &recordStore{db: db}
}

func (s *recordStore) kindTable(kind record.Kind) map[string]*record.Record {
	tbl, ok := s.db.record.table[kind]
	if !ok {
		tbl = make(map[string]*record.Record)
		s.db.record.table[kind] = tbl
	}
	return tbl
}

// findByKey must be called with the lock held.
func (s *recordStore) findByKey(key record.Key) *record.Record {
	for _, rec := range s.db.record.table[key.Kind] {
		if rec.Key == key {
			return rec
		}
	}
	return nil
}

func (s *recordStore) insert(key record.Key, data json.RawMessage) record.Record {
	now := s.db.stamp()
	rec := &record.Record{
		ID:        uuid.New().String(),
		Key:       key,
		Data:      copyData(data),
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.kindTable(key.Kind)[rec.ID] = rec
	return *rec
}

func (s *recordStore) Upsert(_ context.Context, key record.Key, data json.RawMessage) (record.Record, error) {
	s.db.record.mutex.Lock()
	defer s.db.record.mutex.Unlock()

	if rec := s.findByKey(key); rec != nil {
		rec.Data = copyData(data)
		rec.UpdatedAt = s.db.stamp()
		if !rec.UpdatedAt.After(rec.CreatedAt) { // keep IsNew() meaningful under a frozen clock
			rec.UpdatedAt = rec.CreatedAt.Add(1)
		}
		return *rec, nil
	}
	return s.insert(key, data), nil
}

func (s *recordStore) InsertOnce(_ context.Context, key record.Key, data json.RawMessage) (record.Record, bool, error) {
	s.db.record.mutex.Lock()
	defer s.db.record.mutex.Unlock()

	if rec := s.findByKey(key); rec != nil {
		return *rec, false, nil
	}
	return s.insert(key, data), true, nil
}

func (s *recordStore) Find(_ context.Context, kind record.Kind, filter record.Filter) ([]record.Record, error) {
	s.db.record.mutex.RLock()
	defer s.db.record.mutex.RUnlock()

	recs := make([]record.Record, 0)
	for _, rec := range s.db.record.table[kind] {
		if filter.Matches(*rec) {
			recs = append(recs, *rec)
		}
	}
	record.Sort(recs, filter.OrderingOrDefault())
	return recs, nil
}

func (s *recordStore) FindOne(_ context.Context, kind record.Kind, id, userID string) (record.Record, error) {
	s.db.record.mutex.RLock()
	defer s.db.record.mutex.RUnlock()

	rec, ok := s.db.record.table[kind][id]
	if !ok || (userID != "" && rec.Key.UserID != userID) {
		return record.Record{}, record.ErrNotFound
	}
	return *rec, nil
}

func (s *recordStore) DeleteOne(_ context.Context, kind record.Kind, id string) error {
	s.db.record.mutex.Lock()
	defer s.db.record.mutex.Unlock()

	if _, ok := s.db.record.table[kind][id]; !ok {
		return record.ErrNotFound
	}
	delete(s.db.record.table[kind], id)
	return nil
}

func (s *recordStore) DeleteMany(_ context.Context, kind record.Kind, ids []string) (int, error) {
	s.db.record.mutex.Lock()
	defer s.db.record.mutex.Unlock()

	var cnt int
	for _, id := range ids {
		if _, ok := s.db.record.table[kind][id]; ok {
			delete(s.db.record.table[kind], id)
			cnt++
		}
	}
	return cnt, nil
}

// Seed stores recs as they are, bypassing the natural key uniqueness.
// Records without an ID get one. Used to reproduce data written before uniqueness was enforced.
func (s *recordStore) Seed(recs ...record.Record) []record.Record {
	s.db.record.mutex.Lock()
	defer s.db.record.mutex.Unlock()

	seeded := make([]record.Record, 0, len(recs))
	for _, rec := range recs {
		rec := rec
		if rec.ID == "" {
			rec.ID = uuid.New().String()
		}
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = s.db.stamp()
		}
		if rec.UpdatedAt.IsZero() {
			rec.UpdatedAt = rec.CreatedAt
		}
		rec.Data = copyData(rec.Data)
		s.kindTable(rec.Key.Kind)[rec.ID] = &rec
		seeded = append(seeded, rec)
	}
	return seeded
}

func copyData(data json.RawMessage) json.RawMessage {
	return append(json.RawMessage(nil), data...)
}
