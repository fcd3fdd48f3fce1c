package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"caseflow-pipeline/internal/models"
	"caseflow-pipeline/internal/pkg/logger"
)

const (
	auditEntriesCollection  = "audit_entries"
	auditCountersCollection = "audit_counters"
)

// AuditLog is the append-only explainability trail. Append is the only
// mutation; no update or delete exists at this layer. Sequence numbers are
// scoped per case, start at 1, and are gap-free.
type AuditLog interface {
	Append(ctx context.Context, entry *models.AuditEntry) (int64, error)
	Read(ctx context.Context, caseID string) ([]models.AuditEntry, error)
	ReadRange(ctx context.Context, from, to time.Time) ([]models.AuditEntry, error)
	Close(ctx context.Context) error
}

type MongoAuditLog struct {
	entries  *mongo.Collection
	counters *mongo.Collection
	logger   *logger.Logger
}

func NewMongoAuditLog(database *mongo.Database, log *logger.Logger) (*MongoAuditLog, error) {
	auditLog := &MongoAuditLog{
		entries:  database.Collection(auditEntriesCollection),
		counters: database.Collection(auditCountersCollection),
		logger:   log,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := auditLog.entries.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "case_id", Value: 1}, {Key: "seq", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "timestamp", Value: 1}}},
	})
	if err != nil {
		return nil, models.NewPersistenceFault(err)
	}

	return auditLog, nil
}

// Append allocates the next per-case sequence number with an atomic counter
// increment and inserts the entry. Allocation is safe under concurrent writers
// across cases; within one case the orchestrator is the single writer, so the
// allocate-then-insert pair cannot interleave with itself.
func (auditLog *MongoAuditLog) Append(ctx context.Context, entry *models.AuditEntry) (int64, error) {
	startTime := time.Now()

	seq, err := auditLog.nextSeq(ctx, entry.CaseID)
	if err != nil {
		return 0, models.NewPersistenceFault(err).WithMetadata("case_id", entry.CaseID)
	}

	entry.Seq = seq
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	if _, err := auditLog.entries.InsertOne(ctx, entry); err != nil {
		auditLog.logger.LogService("audit_log", "append", time.Since(startTime), map[string]interface{}{
			"case_id": entry.CaseID,
			"action":  entry.Action,
		}, err)
		return 0, models.NewPersistenceFault(err).WithMetadata("case_id", entry.CaseID)
	}

	auditLog.logger.LogService("audit_log", "append", time.Since(startTime), map[string]interface{}{
		"case_id": entry.CaseID,
		"seq":     seq,
		"actor":   entry.Actor,
		"action":  entry.Action,
	}, nil)

	return seq, nil
}

func (auditLog *MongoAuditLog) nextSeq(ctx context.Context, caseID string) (int64, error) {
	var counter struct {
		Seq int64 `bson:"seq"`
	}

	err := auditLog.counters.FindOneAndUpdate(
		ctx,
		bson.M{"_id": caseID},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		return 0, err
	}

	return counter.Seq, nil
}

func (auditLog *MongoAuditLog) Read(ctx context.Context, caseID string) ([]models.AuditEntry, error) {
	cursor, err := auditLog.entries.Find(
		ctx,
		bson.M{"case_id": caseID},
		options.Find().SetSort(bson.D{{Key: "seq", Value: 1}}),
	)
	if err != nil {
		return nil, models.NewPersistenceFault(err).WithMetadata("case_id", caseID)
	}
	defer cursor.Close(ctx)

	var entries []models.AuditEntry
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, models.NewPersistenceFault(err).WithMetadata("case_id", caseID)
	}

	return entries, nil
}

func (auditLog *MongoAuditLog) ReadRange(ctx context.Context, from, to time.Time) ([]models.AuditEntry, error) {
	cursor, err := auditLog.entries.Find(
		ctx,
		bson.M{"timestamp": bson.M{"$gte": from, "$lte": to}},
		options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}}),
	)
	if err != nil {
		return nil, models.NewPersistenceFault(err)
	}
	defer cursor.Close(ctx)

	var entries []models.AuditEntry
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, models.NewPersistenceFault(err)
	}

	return entries, nil
}

func (auditLog *MongoAuditLog) Close(ctx context.Context) error {
	// Lifecycle of the underlying client belongs to the case store.
	return nil
}

// MemoryAuditLog keeps the trail in memory. Tests and single-process
// deployments substitute it for the Mongo-backed log.
type MemoryAuditLog struct {
	mu      sync.Mutex
	entries map[string][]models.AuditEntry
}

func NewMemoryAuditLog() *MemoryAuditLog {
	return &MemoryAuditLog{entries: make(map[string][]models.AuditEntry)}
}

func (auditLog *MemoryAuditLog) Append(ctx context.Context, entry *models.AuditEntry) (int64, error) {
	auditLog.mu.Lock()
	defer auditLog.mu.Unlock()

	seq := int64(len(auditLog.entries[entry.CaseID]) + 1)
	entry.Seq = seq
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	auditLog.entries[entry.CaseID] = append(auditLog.entries[entry.CaseID], *entry)

	return seq, nil
}

func (auditLog *MemoryAuditLog) Read(ctx context.Context, caseID string) ([]models.AuditEntry, error) {
	auditLog.mu.Lock()
	defer auditLog.mu.Unlock()

	entries := make([]models.AuditEntry, len(auditLog.entries[caseID]))
	copy(entries, auditLog.entries[caseID])
	return entries, nil
}

func (auditLog *MemoryAuditLog) ReadRange(ctx context.Context, from, to time.Time) ([]models.AuditEntry, error) {
	auditLog.mu.Lock()
	defer auditLog.mu.Unlock()

	var entries []models.AuditEntry
	for _, caseEntries := range auditLog.entries {
		for _, entry := range caseEntries {
			if !entry.Timestamp.Before(from) && !entry.Timestamp.After(to) {
				entries = append(entries, entry)
			}
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})

	return entries, nil
}

func (auditLog *MemoryAuditLog) Close(ctx context.Context) error {
	return nil
}
