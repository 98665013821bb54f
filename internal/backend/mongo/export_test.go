package mongo

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
)

// BumpSchemaForTest overwrites the schema marker so tests can simulate a
// database written by a newer engine.
func (s *Store) BumpSchemaForTest(ctx context.Context, version int) error {
	_, err := s.db.Collection(schemaCollection).UpdateOne(ctx,
		bson.M{"_id": "schema"},
		bson.M{"$set": bson.M{"version": version}})
	return err
}
