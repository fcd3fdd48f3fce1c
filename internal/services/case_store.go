package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"caseflow-pipeline/internal/config"
	"caseflow-pipeline/internal/models"
	"caseflow-pipeline/internal/pkg/logger"
)

const casesCollection = "cases"

// CaseStore is the durable key-value view of cases, last-write-wins per case id.
// The orchestrator saves on every transition and must not advance state without
// a durable acknowledgment.
type CaseStore interface {
	SaveCase(ctx context.Context, kase *models.Case) error
	LoadCase(ctx context.Context, caseID string) (*models.Case, error)
	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

type MongoCaseStore struct {
	client   *mongo.Client
	database *mongo.Database
	cases    *mongo.Collection
	logger   *logger.Logger
}

func NewMongoCaseStore(cfg config.MongoConfig, log *logger.Logger) (*MongoCaseStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()

	clientOptions := options.Client().
		ApplyURI(cfg.URI).
		SetMaxPoolSize(50).
		SetMinPoolSize(5).
		SetMaxConnIdleTime(30 * time.Second).
		SetServerSelectionTimeout(5 * time.Second).
		SetConnectTimeout(cfg.ConnectTimeout)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("connect to case store failed: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("ping case store failed: %w", err)
	}

	database := client.Database(cfg.Database)
	store := &MongoCaseStore{
		client:   client,
		database: database,
		cases:    database.Collection(casesCollection),
		logger:   log,
	}

	if err := store.ensureIndexes(ctx); err != nil {
		return nil, err
	}

	log.Info("Case store initialized", "database", cfg.Database, "collection", casesCollection)

	return store, nil
}

func (store *MongoCaseStore) ensureIndexes(ctx context.Context) error {
	_, err := store.cases.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "case_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("create case index failed: %w", err)
	}
	return nil
}

// Database exposes the underlying database so sibling services (audit log)
// can share the connection.
func (store *MongoCaseStore) Database() *mongo.Database {
	return store.database
}

func (store *MongoCaseStore) SaveCase(ctx context.Context, kase *models.Case) error {
	startTime := time.Now()

	kase.UpdatedAt = time.Now().UTC()

	_, err := store.cases.ReplaceOne(
		ctx,
		bson.M{"case_id": kase.ID},
		kase,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		store.logger.LogService("case_store", "save_case", time.Since(startTime), map[string]interface{}{
			"case_id": kase.ID,
			"state":   kase.State,
		}, err)
		return models.NewPersistenceFault(err).WithMetadata("case_id", kase.ID)
	}

	store.logger.LogService("case_store", "save_case", time.Since(startTime), map[string]interface{}{
		"case_id":  kase.ID,
		"state":    kase.State,
		"revision": kase.Revision,
	}, nil)

	return nil
}

func (store *MongoCaseStore) LoadCase(ctx context.Context, caseID string) (*models.Case, error) {
	startTime := time.Now()

	var kase models.Case
	err := store.cases.FindOne(ctx, bson.M{"case_id": caseID}).Decode(&kase)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.ErrCaseNotFound.WithMetadata("case_id", caseID)
		}
		store.logger.LogService("case_store", "load_case", time.Since(startTime), map[string]interface{}{
			"case_id": caseID,
		}, err)
		return nil, models.NewPersistenceFault(err).WithMetadata("case_id", caseID)
	}

	store.logger.LogService("case_store", "load_case", time.Since(startTime), map[string]interface{}{
		"case_id": caseID,
		"state":   kase.State,
	}, nil)

	return &kase, nil
}

func (store *MongoCaseStore) HealthCheck(ctx context.Context) error {
	if err := store.client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("case store unhealthy: %w", err)
	}
	return nil
}

func (store *MongoCaseStore) Close(ctx context.Context) error {
	store.logger.Info("Closing case store")
	return store.client.Disconnect(ctx)
}
