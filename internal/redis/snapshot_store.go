package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ramiqadoumi/quote-stream/internal/domain"
)

const (
	snapshotTTL = 24 * time.Hour
	resultTTL   = 24 * time.Hour
)

func snapshotKey(workflowID string) string { return "workflow:snapshot:" + workflowID }
func resultKey(workflowID string) string   { return "workflow:result:" + workflowID }

// SnapshotStore persists workflow checkpoints and terminal results in Redis.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, snap *domain.Snapshot) error
	GetSnapshot(ctx context.Context, workflowID string) (*domain.Snapshot, error)
	SaveResult(ctx context.Context, result *domain.Result) error
	GetResult(ctx context.Context, workflowID string) (*domain.Result, error)
}

type snapshotStore struct {
	client *redis.Client
}

// NewSnapshotStore creates a Redis-backed SnapshotStore.
func NewSnapshotStore(client *redis.Client) SnapshotStore {
	return &snapshotStore{client: client}
}

// NewClient creates and returns a new Redis client.
func NewClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
		PoolSize:     10,
	})
}

func (s *snapshotStore) SaveSnapshot(ctx context.Context, snap *domain.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := s.client.Set(ctx, snapshotKey(snap.WorkflowID), data, snapshotTTL).Err(); err != nil {
		return fmt.Errorf("redis set snapshot for %s: %w", snap.WorkflowID, err)
	}
	return nil
}

func (s *snapshotStore) GetSnapshot(ctx context.Context, workflowID string) (*domain.Snapshot, error) {
	data, err := s.client.Get(ctx, snapshotKey(workflowID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, &domain.WorkflowNotFoundError{WorkflowID: workflowID}
		}
		return nil, fmt.Errorf("redis get snapshot for %s: %w", workflowID, err)
	}
	var snap domain.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

func (s *snapshotStore) SaveResult(ctx context.Context, result *domain.Result) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	if err := s.client.Set(ctx, resultKey(result.WorkflowID), data, resultTTL).Err(); err != nil {
		return fmt.Errorf("redis set result for %s: %w", result.WorkflowID, err)
	}
	return nil
}

func (s *snapshotStore) GetResult(ctx context.Context, workflowID string) (*domain.Result, error) {
	data, err := s.client.Get(ctx, resultKey(workflowID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, &domain.WorkflowNotFoundError{WorkflowID: workflowID}
		}
		return nil, fmt.Errorf("redis get result for %s: %w", workflowID, err)
	}
	var result domain.Result
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("unmarshal result: %w", err)
	}
	return &result, nil
}
