// Package mongodb implements the stores on MongoDB, and reads the legacy course documents.
package mongodb

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/trezcool/chuo/core"
	"github.com/trezcool/chuo/core/record"
)

// Collections
const (
	UsersCollection   = "users"
	CoursesCollection = "courses"
)

// Connect opens a client on conf.Database.MongoURI and waits for the server to be ready.
func Connect(ctx context.Context, conf *core.Config) (*mongo.Client, *mongo.Database, error) {
	client, err := mongo.Connect(ctx, options.Client().
		ApplyURI(conf.Database.MongoURI).
		SetAppName(conf.AppName))
	if err != nil {
		return nil, nil, errors.Wrap(err, "connecting to mongodb")
	}
	if err = ping(ctx, client); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, err
	}
	return client, client.Database(conf.Database.MongoDatabase), nil
}

// ping waits for the server to be ready. Waits 100ms longer between each attempt.
func ping(ctx context.Context, client *mongo.Client) error {
	var err error
	maxAttempts := 30
	for attempts := 1; attempts <= maxAttempts; attempts++ {
		err = client.Ping(ctx, readpref.Primary())
		if err == nil {
			break
		}
		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "mongodb ping")
		case <-time.After(time.Duration(attempts) * 100 * time.Millisecond):
		}
	}

	if err != nil {
		return errors.Wrap(err, "mongodb ping timeout")
	}
	return nil
}

// EnsureIndexes creates the natural key indexes of every record collection and the user indexes.
// A unique index cannot be built while duplicates exist: the failure is logged and the remaining
// indexes are still created. Run the sweep then try again.
func EnsureIndexes(ctx context.Context, db *mongo.Database, logger core.Logger) error {
	for _, kind := range record.Kinds {
		models := []mongo.IndexModel{
			{
				Keys: bson.D{
					{Key: fieldUser, Value: 1}, {Key: fieldCourse, Value: 1}, {Key: fieldUnit, Value: 1},
					{Key: fieldLesson, Value: 1}, {Key: fieldType, Value: 1},
				},
				Options: options.Index().SetName("natural_key").SetUnique(true),
			},
			{
				Keys:    bson.D{{Key: fieldUser, Value: 1}, {Key: fieldUpdatedAt, Value: -1}},
				Options: options.Index().SetName("user_updated"),
			},
			{
				Keys:    bson.D{{Key: fieldCreatedAt, Value: 1}},
				Options: options.Index().SetName("created"),
			},
		}
		for _, model := range models {
			if _, err := db.Collection(string(kind)).Indexes().CreateOne(ctx, model); err != nil {
				if ctx.Err() != nil {
					return errors.Wrap(err, "creating indexes")
				}
				logger.Warn(fmt.Sprintf("mongodb: creating index %s on %s: %v", *model.Options.Name, kind, err))
			}
		}
	}

	for _, field := range []string{"username", "email", "phone"} {
		_, err := db.Collection(UsersCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys: bson.D{{Key: field, Value: 1}},
			Options: options.Index().
				SetName(field + "_unique").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{field: bson.M{"$type": "string"}}),
		})
		if err != nil {
			return errors.Wrapf(err, "creating %s index", field)
		}
	}
	return nil
}
