package mongodb

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/trezcool/chuo/core/examresult"
)

// CourseSource reads the legacy course documents, with their embedded attempts, from the courses collection.
type CourseSource struct {
	coll *mongo.Collection
}

var _ examresult.CourseSource = (*CourseSource)(nil) // interface compliance check

func NewCourseSource(db *mongo.Database) *CourseSource {
	return &CourseSource{coll: db.Collection(CoursesCollection)}
}

// Courses decodes every course through relaxed extended JSON, the format the course types read.
func (src *CourseSource) Courses(ctx context.Context) ([]examresult.Course, error) {
	cur, err := src.coll.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: fieldID, Value: 1}}))
	if err != nil {
		return nil, errors.Wrap(err, "querying courses")
	}
	defer func() { _ = cur.Close(ctx) }()

	courses := make([]examresult.Course, 0)
	for cur.Next(ctx) {
		ext, err := bson.MarshalExtJSON(cur.Current, false, false)
		if err != nil {
			return nil, errors.Wrap(err, "converting course")
		}
		var course examresult.Course
		if err = json.Unmarshal(ext, &course); err != nil {
			return nil, errors.Wrapf(err, "decoding course %s", idString(cur.Current.Lookup(fieldID)))
		}
		courses = append(courses, course)
	}
	if err = cur.Err(); err != nil {
		return nil, errors.Wrap(err, "querying courses")
	}
	return courses, nil
}
