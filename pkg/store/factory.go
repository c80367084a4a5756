package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/lowfatcats/contentstore/pkg/config"
	"github.com/lowfatcats/contentstore/pkg/observability/logger"
	"github.com/lowfatcats/contentstore/pkg/repository/document"
	"github.com/lowfatcats/contentstore/pkg/store/dynamodb"
	"github.com/lowfatcats/contentstore/pkg/store/mongodb"
)

// Backend bundles the document.Store of a backend with its connection
// lifecycle and schema provisioning.
type Backend struct {
	Name  string
	Store document.Store

	adapter   Adapter
	provision func(ctx context.Context) error
}

// HealthCheck checks the backend connection. The memory backend is always healthy.
func (b *Backend) HealthCheck(ctx context.Context) error {
	if b.adapter == nil {
		return nil
	}
	return b.adapter.HealthCheck(ctx)
}

// Close releases the backend connection.
func (b *Backend) Close() error {
	if b.adapter == nil {
		return nil
	}
	return b.adapter.Close()
}

// Provision creates the tables or indexes the backend needs.
func (b *Backend) Provision(ctx context.Context) error {
	if b.provision == nil {
		return nil
	}
	return b.provision(ctx)
}

// Open connects to the backend selected by cfg.Backend.
//
// Cosa fa: seleziona e inizializza lo storage adapter in base alla config e
// lo avvolge nell'executor document corrispondente.
// Cosa NON fa: non crea tabelle o indici (vedi Backend.Provision).
// Esempio minimo: backend, err := store.Open(cfg.Store, log)
func Open(cfg config.StoreConfig, log logger.Logger) (*Backend, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case config.BackendDynamoDB:
		adapter, err := dynamodb.NewAdapter(dynamodb.Config{
			Region:           cfg.DynamoDB.Region,
			Endpoint:         cfg.DynamoDB.Endpoint,
			AccessKeyID:      cfg.DynamoDB.AccessKeyID,
			SecretAccessKey:  cfg.DynamoDB.SecretAccessKey,
			SessionToken:     cfg.DynamoDB.SessionToken,
			OperationTimeout: cfg.DynamoDB.OperationTimeout,
		}, log)
		if err != nil {
			return nil, err
		}
		exec, err := dynamodb.NewExecutor(adapter, cfg.Prefix, log)
		if err != nil {
			_ = adapter.Close()
			return nil, err
		}
		return &Backend{
			Name:    config.BackendDynamoDB,
			Store:   exec,
			adapter: adapter,
			provision: func(ctx context.Context) error {
				return dynamodb.CreateTables(ctx, adapter, cfg.Prefix, cfg.DynamoDB.TableWait)
			},
		}, nil
	case config.BackendMongoDB:
		adapter, err := mongodb.NewAdapter(mongodb.Config{
			URL:              cfg.MongoDB.URL,
			Database:         cfg.MongoDB.Database,
			ConnectTimeout:   cfg.MongoDB.ConnectTimeout,
			OperationTimeout: cfg.MongoDB.OperationTimeout,
		}, log)
		if err != nil {
			return nil, err
		}
		exec, err := mongodb.NewExecutor(adapter, cfg.Prefix, log)
		if err != nil {
			_ = adapter.Close()
			return nil, err
		}
		return &Backend{
			Name:    config.BackendMongoDB,
			Store:   exec,
			adapter: adapter,
			provision: func(ctx context.Context) error {
				return mongodb.EnsureIndexes(ctx, adapter, cfg.Prefix)
			},
		}, nil
	case config.BackendMemory:
		log.Warn("using in-memory store, data is lost on exit")
		return &Backend{Name: config.BackendMemory, Store: document.NewInMemoryStore()}, nil
	default:
		return nil, fmt.Errorf("unsupported store.backend %q (supported: dynamodb, mongodb, memory)", cfg.Backend)
	}
}
