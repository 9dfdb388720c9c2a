// Package status assigns call request ids and records each request's
// lifecycle so other services can look up what happened to a submission.
package status

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis"

	"github.com/chainstacklabs/contract-caller/internal/domain"
)

const (
	counterKey      = "call_counter"
	recordKeyPrefix = "call_status:"
)

var ErrNotFound = errors.New("status: record not found")

type StatusStoreInterface interface {
	NextID(appName string) (string, error)
	MarkSubmitted(id string, txHash string) error
	MarkConfirmed(id string, txHash string) error
	MarkFailed(id string, txHash string, cause error) error
	Get(id string) (*domain.StatusRecord, error)
}

// RedisStatusStore keeps status records in Redis as JSON documents.
type RedisStatusStore struct {
	client *redis.Client
	ttl    time.Duration
}

var _ StatusStoreInterface = (*RedisStatusStore)(nil)

// NewRedisStatusStore creates a store. ttl 0 keeps records forever.
func NewRedisStatusStore(client *redis.Client, ttl time.Duration) *RedisStatusStore {
	return &RedisStatusStore{
		client: client,
		ttl:    ttl,
	}
}

// NextID generates a unique call id using Redis' INCR command
func (s *RedisStatusStore) NextID(appName string) (string, error) {
	callNumber, err := s.client.Incr(counterKey).Result()
	if err != nil {
		return "", fmt.Errorf("failed to increment call counter in Redis: %w", err)
	}

	// Combine app name and incremented value to form a call id
	return fmt.Sprintf("%s-%d", appName, callNumber), nil
}

func (s *RedisStatusStore) MarkSubmitted(id string, txHash string) error {
	return s.save(&domain.StatusRecord{
		Id:     id,
		TxHash: txHash,
		Status: domain.StatusSubmitted,
	})
}

func (s *RedisStatusStore) MarkConfirmed(id string, txHash string) error {
	return s.save(&domain.StatusRecord{
		Id:     id,
		TxHash: txHash,
		Status: domain.StatusConfirmed,
	})
}

func (s *RedisStatusStore) MarkFailed(id string, txHash string, cause error) error {
	record := &domain.StatusRecord{
		Id:     id,
		TxHash: txHash,
		Status: domain.StatusFailed,
	}
	if cause != nil {
		record.Error = cause.Error()
	}
	return s.save(record)
}

func (s *RedisStatusStore) Get(id string) (*domain.StatusRecord, error) {
	data, err := s.client.Get(recordKeyPrefix + id).Result()
	if err == redis.Nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get status record from Redis: %w", err)
	}

	var record domain.StatusRecord
	if err := json.Unmarshal([]byte(data), &record); err != nil {
		return nil, fmt.Errorf("failed to parse status record: %w", err)
	}
	return &record, nil
}

func (s *RedisStatusStore) save(record *domain.StatusRecord) error {
	record.UpdatedAt = time.Now()

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to serialize status record: %w", err)
	}

	if err := s.client.Set(recordKeyPrefix+record.Id, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store status record in Redis: %w", err)
	}
	return nil
}
