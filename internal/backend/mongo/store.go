package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"spool/internal/backend"
	"spool/internal/config"
	"spool/internal/workitem"
)

func init() {
	backend.Register(config.BackendMongo, func(cfg *config.Config, logger *slog.Logger) (backend.Backend, error) {
		return Open(cfg, logger)
	})
}

const (
	itemsCollection    = "work_items"
	filesCollection    = "work_item_files"
	countersCollection = "counters"
	schemaCollection   = "schema_info"
	bucketName         = "work_item_blobs"
)

// schemaVersion is bumped whenever the document layout changes
// incompatibly.
const schemaVersion = 1

// Store manages work-item persistence backed by MongoDB.
type Store struct {
	client    *mongo.Client
	db        *mongo.Database
	items     *mongo.Collection
	files     *mongo.Collection
	counters  *mongo.Collection
	bucket    *gridfs.Bucket
	threshold int64
	logger    *slog.Logger
}

// Open connects to the configured deployment, ensures indexes, verifies the
// schema marker, and returns a ready store.
func Open(cfg *config.Config, logger *slog.Logger) (*Store, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	opts := options.Client().
		ApplyURI(cfg.Mongo.URI).
		SetMaxPoolSize(cfg.Mongo.PoolSize)
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, classify(fmt.Errorf("connect %s: %w", cfg.Mongo.URI, err))
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, classify(fmt.Errorf("ping %s: %w", cfg.Mongo.URI, err))
	}

	db := client.Database(cfg.Mongo.Database)
	bucket, err := gridfs.NewBucket(db, options.GridFSBucket().SetName(bucketName))
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("open gridfs bucket: %w", err)
	}

	store := &Store{
		client:    client,
		db:        db,
		items:     db.Collection(itemsCollection),
		files:     db.Collection(filesCollection),
		counters:  db.Collection(countersCollection),
		bucket:    bucket,
		threshold: cfg.Files.InlineThreshold,
		logger:    logger,
	}
	if err := store.checkSchema(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	if err := store.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	logger.Info("mongo backend ready", "database", cfg.Mongo.Database)
	return store, nil
}

// Close disconnects the client and its connection pool.
func (s *Store) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// checkSchema claims the schema marker for this engine's version, or
// refuses to serve a database written by a newer engine.
func (s *Store) checkSchema(ctx context.Context) error {
	var marker struct {
		Version int `bson:"version"`
	}
	err := s.db.Collection(schemaCollection).FindOneAndUpdate(ctx,
		bson.M{"_id": "schema"},
		bson.M{"$setOnInsert": bson.M{"version": schemaVersion}},
		options.FindOneAndUpdate().
			SetUpsert(true).
			SetReturnDocument(options.After),
	).Decode(&marker)
	if err != nil {
		return classify(fmt.Errorf("read schema marker: %w", err))
	}
	if marker.Version > schemaVersion {
		return workitem.Errorf(workitem.ErrSchemaVersion,
			"database records schema %d but this engine supports up to %d", marker.Version, schemaVersion)
	}
	return nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.items.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "queue_name", Value: 1}, {Key: "state", Value: 1}, {Key: "seq", Value: 1}}},
		{Keys: bson.D{{Key: "queue_name", Value: 1}, {Key: "state", Value: 1}, {Key: "claimed_at", Value: 1}}},
	})
	if err != nil {
		return classify(fmt.Errorf("ensure item indexes: %w", err))
	}
	_, err = s.files.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "item_id", Value: 1}, {Key: "name", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return classify(fmt.Errorf("ensure file index: %w", err))
	}
	return nil
}

// classify maps driver failures onto the shared error taxonomy so the
// engine facade can decide what to retry.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	msg := err.Error()
	if strings.Contains(msg, "waiting for connection") || strings.Contains(msg, "pool") {
		return workitem.Errorf(workitem.ErrPoolExhausted, "%v", err)
	}
	var netErr net.Error
	if mongo.IsTimeout(err) || errors.As(err, &netErr) ||
		errors.Is(err, mongo.ErrClientDisconnected) ||
		strings.Contains(msg, "server selection error") ||
		strings.Contains(msg, "connection refused") {
		return workitem.Errorf(workitem.ErrUnavailable, "%v", err)
	}
	return err
}
