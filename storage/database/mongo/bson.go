package mongodb

import (
	"encoding/json"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// payload wraps a JSON value so that it can be converted as a BSON document.
type payload struct {
	V json.RawMessage `json:"v"`
}

// toBSON converts a JSON payload to a BSON value.
func toBSON(data json.RawMessage) (bson.RawValue, error) {
	wrapped, err := json.Marshal(payload{V: data})
	if err != nil {
		return bson.RawValue{}, errors.Wrap(err, "wrapping payload")
	}
	var doc bson.Raw
	if err = bson.UnmarshalExtJSON(wrapped, false, &doc); err != nil {
		return bson.RawValue{}, errors.Wrap(err, "converting payload to bson")
	}
	return doc.Lookup("v"), nil
}

// fromBSON converts a BSON value back to JSON. Numbers & strings keep their JSON form.
func fromBSON(val bson.RawValue) (json.RawMessage, error) {
	if val.Type == 0 {
		return json.RawMessage("null"), nil
	}
	doc, err := bson.Marshal(bson.D{{Key: "v", Value: val}})
	if err != nil {
		return nil, errors.Wrap(err, "wrapping payload")
	}
	ext, err := bson.MarshalExtJSON(bson.Raw(doc), false, false)
	if err != nil {
		return nil, errors.Wrap(err, "converting payload to json")
	}
	var p payload
	if err = json.Unmarshal(ext, &p); err != nil {
		return nil, errors.Wrap(err, "decoding payload")
	}
	return p.V, nil
}

// idString returns the string form of a document id, either an ObjectID or a string.
func idString(val bson.RawValue) string {
	switch val.Type {
	case bsontype.ObjectID:
		return val.ObjectID().Hex()
	case bsontype.String:
		return val.StringValue()
	}
	return ""
}

// idValues returns the values an id may have been stored as.
func idValues(id string) []interface{} {
	vals := []interface{}{id}
	if oid, err := primitive.ObjectIDFromHex(id); err == nil {
		vals = append(vals, oid)
	}
	return vals
}
