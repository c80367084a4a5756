package mongodb

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/lowfatcats/contentstore/pkg/observability/logger"
)

// Adapter provides MongoDB connectivity.
type Adapter struct {
	client   *mongo.Client
	database string
	logger   logger.Logger
	timeout  time.Duration
	mu       sync.RWMutex
	closed   bool
}

// Config holds MongoDB adapter configuration.
type Config struct {
	URL              string
	Database         string
	ConnectTimeout   time.Duration
	OperationTimeout time.Duration
}

// NewAdapter connects and pings the primary.
//
// Cosa fa: inizializza un adapter MongoDB e verifica connettività via ping.
// Cosa NON fa: non crea indici o collezioni automaticamente (vedi EnsureIndexes).
// Esempio minimo: adapter, err := mongodb.NewAdapter(cfg, log)
func NewAdapter(cfg Config, log logger.Logger) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("mongodb URL is required")
	}
	if cfg.Database == "" {
		return nil, fmt.Errorf("mongodb database is required")
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = 5 * time.Second
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URL).SetRetryReads(false).SetRetryWrites(false))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	log.Info("MongoDB connection established", "database", cfg.Database)
	return &Adapter{
		client:   client,
		database: cfg.Database,
		logger:   log,
		timeout:  cfg.OperationTimeout,
	}, nil
}

func (a *Adapter) Database() *mongo.Database {
	return a.client.Database(a.database)
}

func (a *Adapter) Collection(name string) *mongo.Collection {
	return a.Database().Collection(name)
}

func (a *Adapter) Ping(ctx context.Context) error {
	a.mu.RLock()
	closed := a.closed
	a.mu.RUnlock()
	if closed {
		return fmt.Errorf("mongodb adapter is closed")
	}
	return a.client.Ping(ctx, readpref.Primary())
}

func (a *Adapter) HealthCheck(ctx context.Context) error {
	hcCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := a.Ping(hcCtx); err != nil {
		a.logger.Error("MongoDB health check failed", "error", err)
		return fmt.Errorf("mongodb health check failed: %w", err)
	}
	return nil
}

func (a *Adapter) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	a.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to close mongodb connection: %w", err)
	}
	return nil
}

// FindOne returns the first matching document, or nil when none matches.
func (a *Adapter) FindOne(ctx context.Context, collection string, filter any) (bson.M, error) {
	opCtx, cancel := a.withOperationTimeout(ctx)
	defer cancel()
	var out bson.M
	err := a.Collection(collection).FindOne(opCtx, filter).Decode(&out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	return out, err
}

// Find returns every matching document.
func (a *Adapter) Find(ctx context.Context, collection string, filter any, opts *options.FindOptions) ([]bson.M, error) {
	opCtx, cancel := a.withOperationTimeout(ctx)
	defer cancel()
	cur, err := a.Collection(collection).Find(opCtx, filter, opts)
	if err != nil {
		return nil, err
	}
	out := []bson.M{}
	if err := cur.All(opCtx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (a *Adapter) InsertOne(ctx context.Context, collection string, doc any) error {
	opCtx, cancel := a.withOperationTimeout(ctx)
	defer cancel()
	_, err := a.Collection(collection).InsertOne(opCtx, doc)
	return err
}

// ReplaceOne replaces the matching document and reports how many matched.
func (a *Adapter) ReplaceOne(ctx context.Context, collection string, filter, doc any, upsert bool) (int64, error) {
	opCtx, cancel := a.withOperationTimeout(ctx)
	defer cancel()
	res, err := a.Collection(collection).ReplaceOne(opCtx, filter, doc, options.Replace().SetUpsert(upsert))
	if err != nil {
		return 0, err
	}
	return res.MatchedCount, nil
}

// UpdateOne applies update to the matching document and reports how many matched.
func (a *Adapter) UpdateOne(ctx context.Context, collection string, filter, update any, upsert bool) (int64, error) {
	opCtx, cancel := a.withOperationTimeout(ctx)
	defer cancel()
	res, err := a.Collection(collection).UpdateOne(opCtx, filter, update, options.Update().SetUpsert(upsert))
	if err != nil {
		return 0, err
	}
	return res.MatchedCount, nil
}

func (a *Adapter) DeleteOne(ctx context.Context, collection string, filter any) error {
	opCtx, cancel := a.withOperationTimeout(ctx)
	defer cancel()
	_, err := a.Collection(collection).DeleteOne(opCtx, filter)
	return err
}

// CreateIndexes creates the given indexes. Existing identical indexes are kept.
func (a *Adapter) CreateIndexes(ctx context.Context, collection string, models []mongo.IndexModel) error {
	opCtx, cancel := a.withOperationTimeout(ctx)
	defer cancel()
	_, err := a.Collection(collection).Indexes().CreateMany(opCtx, models)
	if err != nil {
		return fmt.Errorf("create indexes on %s: %w", collection, err)
	}
	a.logger.Info("MongoDB indexes ensured", "collection", collection, "count", len(models))
	return nil
}

func (a *Adapter) withOperationTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.timeout <= 0 {
		return ctx, func() {}
	}
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, a.timeout)
}
