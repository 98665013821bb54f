package mongo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"spool/internal/workitem"
)

type fileDoc struct {
	ItemID   string              `bson:"item_id"`
	Name     string              `bson:"name"`
	Size     int64               `bson:"size"`
	Inline   []byte              `bson:"inline,omitempty"`
	GridFSID *primitive.ObjectID `bson:"gridfs_id,omitempty"`
}

// AddFile stores an attachment for an item, inline below the threshold and
// in the GridFS bucket above it. Re-adding an existing name replaces the
// previous content and re-evaluates the tier.
func (s *Store) AddFile(ctx context.Context, itemID, name string, content []byte) error {
	if err := workitem.ValidateFilename(name); err != nil {
		return err
	}
	if int64(len(content)) > workitem.MaxAttachmentSize {
		return workitem.Errorf(workitem.ErrInvalid, "attachment %q exceeds %d bytes", name, workitem.MaxAttachmentSize)
	}
	if err := s.requireItem(ctx, itemID); err != nil {
		return err
	}

	var previous fileDoc
	err := s.files.FindOne(ctx, bson.M{"item_id": itemID, "name": name}).Decode(&previous)
	if err != nil && !errors.Is(err, mongo.ErrNoDocuments) {
		return classify(fmt.Errorf("look up attachment %q: %w", name, err))
	}

	doc := fileDoc{ItemID: itemID, Name: name, Size: int64(len(content))}
	if int64(len(content)) >= s.threshold {
		objectID, err := s.bucket.UploadFromStream(itemID+"/"+name, bytes.NewReader(content))
		if err != nil {
			return classify(fmt.Errorf("upload attachment %q: %w", name, err))
		}
		doc.GridFSID = &objectID
	} else {
		doc.Inline = content
		if doc.Inline == nil {
			doc.Inline = []byte{}
		}
	}

	_, err = s.files.ReplaceOne(ctx,
		bson.M{"item_id": itemID, "name": name},
		doc,
		options.Replace().SetUpsert(true))
	if err != nil {
		// An index entry referencing nothing beats a blob referenced by
		// nothing; drop the fresh upload on failure.
		if doc.GridFSID != nil {
			_ = s.bucket.Delete(*doc.GridFSID)
		}
		return classify(fmt.Errorf("index attachment %q: %w", name, err))
	}

	if previous.GridFSID != nil {
		if err := s.bucket.Delete(*previous.GridFSID); err != nil {
			s.logger.Warn("failed to remove superseded attachment blob",
				"item", itemID, "file", name, "error", err)
		}
	}
	return nil
}

// GetFile returns attachment content regardless of its storage tier.
func (s *Store) GetFile(ctx context.Context, itemID, name string) ([]byte, error) {
	if err := workitem.ValidateFilename(name); err != nil {
		return nil, err
	}
	var doc fileDoc
	err := s.files.FindOne(ctx, bson.M{"item_id": itemID, "name": name}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, workitem.Errorf(workitem.ErrFileNotFound, "item %s has no attachment %q", itemID, name)
	}
	if err != nil {
		return nil, classify(fmt.Errorf("get attachment %q: %w", name, err))
	}
	if doc.GridFSID == nil {
		if doc.Inline == nil {
			return []byte{}, nil
		}
		return doc.Inline, nil
	}
	var buf bytes.Buffer
	if _, err := s.bucket.DownloadToStream(*doc.GridFSID, &buf); err != nil {
		return nil, workitem.Errorf(workitem.ErrFileNotFound,
			"attachment %q blob missing: %v", name, err)
	}
	return buf.Bytes(), nil
}

// ListFiles returns the attachment names recorded for an item, sorted.
func (s *Store) ListFiles(ctx context.Context, itemID string) ([]string, error) {
	if err := s.requireItem(ctx, itemID); err != nil {
		return nil, err
	}
	cursor, err := s.files.Find(ctx,
		bson.M{"item_id": itemID},
		options.Find().SetProjection(bson.M{"name": 1}))
	if err != nil {
		return nil, classify(fmt.Errorf("list attachments for %s: %w", itemID, err))
	}
	defer cursor.Close(ctx)

	var names []string
	for cursor.Next(ctx) {
		var doc struct {
			Name string `bson:"name"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("list attachments for %s: %w", itemID, err)
		}
		names = append(names, doc.Name)
	}
	if err := cursor.Err(); err != nil {
		return nil, classify(fmt.Errorf("list attachments for %s: %w", itemID, err))
	}
	sort.Strings(names)
	return names, nil
}

// RemoveFile deletes an attachment entry and any GridFS blob behind it.
func (s *Store) RemoveFile(ctx context.Context, itemID, name string) error {
	if err := workitem.ValidateFilename(name); err != nil {
		return err
	}
	var doc fileDoc
	err := s.files.FindOneAndDelete(ctx, bson.M{"item_id": itemID, "name": name}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return workitem.Errorf(workitem.ErrFileNotFound, "item %s has no attachment %q", itemID, name)
	}
	if err != nil {
		return classify(fmt.Errorf("remove attachment %q: %w", name, err))
	}
	if doc.GridFSID != nil {
		if err := s.bucket.Delete(*doc.GridFSID); err != nil {
			s.logger.Warn("failed to remove attachment blob",
				"item", itemID, "file", name, "error", err)
		}
	}
	return nil
}
