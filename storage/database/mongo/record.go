package mongodb

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/trezcool/chuo/core/record"
)

// Record document fields
const (
	fieldID        = "_id"
	fieldUser      = "user"
	fieldCourse    = "course"
	fieldUnit      = "unit"
	fieldLesson    = "lesson"
	fieldType      = "type"
	fieldData      = "data"
	fieldCreatedAt = "createdAt"
	fieldUpdatedAt = "updatedAt"
)

var sortFields = map[string]string{
	record.FieldCreatedAt: fieldCreatedAt,
	record.FieldUpdatedAt: fieldUpdatedAt,
}

type recordDoc struct {
	ID        bson.RawValue `bson:"_id"`
	User      string        `bson:"user"`
	Course    string        `bson:"course"`
	Unit      *string       `bson:"unit"`
	Lesson    string        `bson:"lesson"`
	Type      string        `bson:"type"`
	Data      bson.RawValue `bson:"data"`
	CreatedAt time.Time     `bson:"createdAt"`
	UpdatedAt time.Time     `bson:"updatedAt"`
}

func (doc recordDoc) record(kind record.Kind) (record.Record, error) {
	data, err := fromBSON(doc.Data)
	if err != nil {
		return record.Record{}, err
	}
	rec := record.Record{
		ID: idString(doc.ID),
		Key: record.Key{
			Kind:     kind,
			UserID:   doc.User,
			CourseID: doc.Course,
			LessonID: doc.Lesson,
			Type:     doc.Type,
		},
		Data:      data,
		CreatedAt: doc.CreatedAt.UTC(),
		UpdatedAt: doc.UpdatedAt.UTC(),
	}
	if doc.Unit != nil {
		rec.Key.UnitID = *doc.Unit
	}
	return rec, nil
}

type recordStore struct {
	db *mongo.Database
}

var _ record.Store = (*recordStore)(nil) // interface compliance check

// NewRecordStore keeps each record kind in its own collection.
func NewRecordStore(db *mongo.Database) *recordStore {
	return &recordStore{db: db}
}

func (s *recordStore) coll(kind record.Kind) *mongo.Collection {
	return s.db.Collection(string(kind))
}

// keyFilter matches the record of key. {unit: null} also matches documents without a unit.
func keyFilter(key record.Key) bson.D {
	var unit interface{}
	if key.UnitID != "" {
		unit = key.UnitID
	}
	return bson.D{
		{Key: fieldUser, Value: key.UserID},
		{Key: fieldCourse, Value: key.CourseID},
		{Key: fieldUnit, Value: unit},
		{Key: fieldLesson, Value: key.LessonID},
		{Key: fieldType, Value: key.Type},
	}
}

// findOneAndUpsert runs update on the record of key and reports whether the document was inserted.
func (s *recordStore) findOneAndUpsert(ctx context.Context, key record.Key, newID string, update bson.M) (record.Record, bool, error) {
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var doc recordDoc
	err := s.coll(key.Kind).FindOneAndUpdate(ctx, keyFilter(key), update, opts).Decode(&doc)
	if err != nil {
		return record.Record{}, false, record.NewStoreError("upserting record", err)
	}
	rec, err := doc.record(key.Kind)
	if err != nil {
		return record.Record{}, false, record.NewStoreError("decoding record", err)
	}
	return rec, rec.ID == newID, nil
}

func (s *recordStore) Upsert(ctx context.Context, key record.Key, data json.RawMessage) (record.Record, error) {
	val, err := toBSON(data)
	if err != nil {
		return record.Record{}, err
	}
	now := time.Now().UTC().Truncate(time.Millisecond)
	newID := uuid.New().String()

	rec, created, err := s.findOneAndUpsert(ctx, key, newID, bson.M{
		"$set":         bson.M{fieldData: val, fieldUpdatedAt: now},
		"$setOnInsert": bson.M{fieldID: newID, fieldCreatedAt: now},
	})
	if err != nil {
		return record.Record{}, err
	}
	// dates are stored with a millisecond precision: an update within the millisecond of the
	// insert must not look like an insert.
	if !created && !rec.UpdatedAt.After(rec.CreatedAt) {
		rec.UpdatedAt = rec.CreatedAt.Add(time.Millisecond)
	}
	return rec, nil
}

func (s *recordStore) InsertOnce(ctx context.Context, key record.Key, data json.RawMessage) (record.Record, bool, error) {
	val, err := toBSON(data)
	if err != nil {
		return record.Record{}, false, err
	}
	now := time.Now().UTC().Truncate(time.Millisecond)
	newID := uuid.New().String()

	return s.findOneAndUpsert(ctx, key, newID, bson.M{
		"$setOnInsert": bson.M{fieldID: newID, fieldData: val, fieldCreatedAt: now, fieldUpdatedAt: now},
	})
}

func (s *recordStore) Find(ctx context.Context, kind record.Kind, filter record.Filter) ([]record.Record, error) {
	q := bson.M{}
	eq := func(field, val string) {
		if val != "" {
			q[field] = val
		}
	}
	eq(fieldUser, filter.UserID)
	eq(fieldCourse, filter.CourseID)
	eq(fieldLesson, filter.LessonID)
	eq(fieldType, filter.Type)
	if filter.UnitID != nil {
		if *filter.UnitID == "" {
			q[fieldUnit] = nil
		} else {
			q[fieldUnit] = *filter.UnitID
		}
	}
	created := bson.M{}
	if !filter.CreatedFrom.IsZero() {
		created["$gte"] = filter.CreatedFrom.UTC()
	}
	if !filter.CreatedTo.IsZero() {
		created["$lte"] = filter.CreatedTo.UTC()
	}
	if len(created) > 0 {
		q[fieldCreatedAt] = created
	}

	sort := bson.D{}
	for _, ord := range filter.OrderingOrDefault() {
		field, ok := sortFields[ord.Field]
		if !ok {
			continue
		}
		dir := -1
		if ord.Ascending {
			dir = 1
		}
		sort = append(sort, bson.E{Key: field, Value: dir})
	}
	sort = append(sort, bson.E{Key: fieldID, Value: 1})

	cur, err := s.coll(kind).Find(ctx, q, options.Find().SetSort(sort))
	if err != nil {
		return nil, record.NewStoreError("querying records", err)
	}
	defer func() { _ = cur.Close(ctx) }()

	recs := make([]record.Record, 0)
	for cur.Next(ctx) {
		var doc recordDoc
		if err = cur.Decode(&doc); err != nil {
			return nil, record.NewStoreError("decoding record", err)
		}
		rec, err := doc.record(kind)
		if err != nil {
			return nil, record.NewStoreError("decoding record", err)
		}
		recs = append(recs, rec)
	}
	if err = cur.Err(); err != nil {
		return nil, record.NewStoreError("querying records", err)
	}
	return recs, nil
}

func (s *recordStore) FindOne(ctx context.Context, kind record.Kind, id, userID string) (record.Record, error) {
	q := bson.M{fieldID: bson.M{"$in": idValues(id)}}
	if userID != "" {
		q[fieldUser] = userID
	}

	var doc recordDoc
	if err := s.coll(kind).FindOne(ctx, q).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return record.Record{}, record.ErrNotFound
		}
		return record.Record{}, record.NewStoreError("finding record", err)
	}
	rec, err := doc.record(kind)
	if err != nil {
		return record.Record{}, record.NewStoreError("decoding record", err)
	}
	return rec, nil
}

func (s *recordStore) DeleteOne(ctx context.Context, kind record.Kind, id string) error {
	res, err := s.coll(kind).DeleteOne(ctx, bson.M{fieldID: bson.M{"$in": idValues(id)}})
	if err != nil {
		return record.NewStoreError("deleting record", err)
	}
	if res.DeletedCount == 0 {
		return record.ErrNotFound
	}
	return nil
}

func (s *recordStore) DeleteMany(ctx context.Context, kind record.Kind, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	vals := make([]interface{}, 0, len(ids))
	for _, id := range ids {
		vals = append(vals, idValues(id)...)
	}
	res, err := s.coll(kind).DeleteMany(ctx, bson.M{fieldID: bson.M{"$in": vals}})
	if err != nil {
		return 0, record.NewStoreError("deleting records", err)
	}
	return int(res.DeletedCount), nil
}
