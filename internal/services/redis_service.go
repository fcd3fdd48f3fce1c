package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"caseflow-pipeline/internal/config"
	"caseflow-pipeline/internal/models"
	"caseflow-pipeline/internal/pkg/logger"
)

// UpdatePublisher fans case progress out to stream consumers and keeps a hot
// status snapshot. Failures here are logged and never fail a transition.
type UpdatePublisher interface {
	PublishCaseUpdate(ctx context.Context, update *models.CaseUpdate) error
	CacheCaseStatus(ctx context.Context, kase *models.Case) error
	GetCachedCase(ctx context.Context, caseID string) (*models.Case, error)
	HealthCheck(ctx context.Context) error
}

type RedisService struct {
	client *redis.Client
	logger *logger.Logger
	config config.RedisConfig
}

func NewRedisService(cfg config.RedisConfig, log *logger.Logger) (*RedisService, error) {
	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid Redis URL: %w", err)
	}

	opt.PoolSize = cfg.PoolSize
	opt.DialTimeout = cfg.DialTimeout
	opt.ReadTimeout = cfg.ReadTimeout
	opt.WriteTimeout = cfg.WriteTimeout

	service := &RedisService{
		client: redis.NewClient(opt),
		logger: log,
		config: cfg,
	}

	if err := service.testConnection(); err != nil {
		return nil, fmt.Errorf("connection to Redis failed: %w", err)
	}

	log.Info("Redis service initialized", "url", cfg.URL, "pool_size", cfg.PoolSize)

	return service, nil
}

func (service *RedisService) testConnection() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return service.client.Ping(ctx).Err()
}

// PublishCaseUpdate appends the update to the case's stream, capped so a noisy
// case cannot grow without bound.
func (service *RedisService) PublishCaseUpdate(ctx context.Context, update *models.CaseUpdate) error {
	streamName := fmt.Sprintf("case:%s:updates", update.CaseID)
	startTime := time.Now()

	values := map[string]interface{}{
		"type":      "case_update",
		"case_id":   update.CaseID,
		"state":     string(update.State),
		"actor":     update.Actor,
		"message":   update.Message,
		"revision":  update.Revision,
		"timestamp": update.Timestamp.Format(time.RFC3339),
	}
	if update.Error != "" {
		values["error"] = update.Error
	}

	messageID, err := service.client.XAdd(ctx, &redis.XAddArgs{
		Stream: streamName,
		Values: values,
		MaxLen: service.config.UpdateStreamMaxLen,
		Approx: true,
	}).Result()
	if err != nil {
		service.logger.LogService("redis", "publish_case_update", time.Since(startTime), map[string]interface{}{
			"stream":  streamName,
			"case_id": update.CaseID,
		}, err)
		return models.NewExternalError("REDIS_PUBLISH_FAILED", "failed to publish case update").WithCause(err)
	}

	service.logger.WithFields(logger.Fields{
		"stream":     streamName,
		"message_id": messageID,
		"state":      update.State,
		"case_id":    update.CaseID,
	}).Debug("Published case update")

	return nil
}

func (service *RedisService) CacheCaseStatus(ctx context.Context, kase *models.Case) error {
	key := fmt.Sprintf("case:%s:state", kase.ID)
	startTime := time.Now()

	snapshot, err := json.Marshal(kase)
	if err != nil {
		return models.NewInternalError("SERIALIZATION_FAILED", "failed to serialize case snapshot").WithCause(err)
	}

	if err := service.client.Set(ctx, key, snapshot, service.config.StatusTTL).Err(); err != nil {
		service.logger.LogService("redis", "cache_case_status", time.Since(startTime), map[string]interface{}{
			"case_id": kase.ID,
		}, err)
		return models.NewExternalError("REDIS_STORE_FAILED", "failed to cache case status").WithCause(err)
	}

	return nil
}

func (service *RedisService) GetCachedCase(ctx context.Context, caseID string) (*models.Case, error) {
	key := fmt.Sprintf("case:%s:state", caseID)

	snapshot, err := service.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, models.ErrCaseNotFound.WithMetadata("case_id", caseID)
		}
		return nil, models.NewExternalError("REDIS_GET_FAILED", "failed to read cached case").WithCause(err)
	}

	var kase models.Case
	if err := json.Unmarshal([]byte(snapshot), &kase); err != nil {
		return nil, models.NewInternalError("DESERIALIZATION_FAILED", "failed to parse cached case").WithCause(err)
	}

	return &kase, nil
}

func (service *RedisService) HealthCheck(ctx context.Context) error {
	if err := service.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis connection unhealthy: %w", err)
	}
	return nil
}

func (service *RedisService) Close() error {
	service.logger.Info("Closing Redis service")
	return service.client.Close()
}
