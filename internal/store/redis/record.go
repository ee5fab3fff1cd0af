package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/satyamsundaram01/confsync/internal/domain"
)

// Store persists materialization records in Redis. Records carry the
// agent's idempotency memory across restarts, so they are written without
// a TTL; the pruner deletes them when their descriptor goes away.
type Store struct {
	client *redis.Client
}

// NewStore creates a new Redis store
func NewStore(client *redis.Client) *Store {
	return &Store{
		client: client,
	}
}

// SaveRecord stores a materialization record in Redis
func (s *Store) SaveRecord(ctx context.Context, record *domain.Record) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	key := RecordKey(record.Filename)

	if err := s.client.Set(ctx, key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save record: %w", err)
	}

	if err := s.client.SAdd(ctx, AllRecordsKey(), record.Filename).Err(); err != nil {
		return fmt.Errorf("failed to add record to set: %w", err)
	}

	return nil
}

// GetRecord retrieves a record from Redis by descriptor filename
func (s *Store) GetRecord(ctx context.Context, filename string) (*domain.Record, error) {
	key := RecordKey(filename)
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("record not found: %s", filename)
		}
		return nil, fmt.Errorf("failed to get record: %w", err)
	}

	var record domain.Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record: %w", err)
	}

	return &record, nil
}

// GetAllRecords retrieves all materialization records from Redis
func (s *Store) GetAllRecords(ctx context.Context) ([]*domain.Record, error) {
	filenames, err := s.client.SMembers(ctx, AllRecordsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get record filenames: %w", err)
	}

	if len(filenames) == 0 {
		return []*domain.Record{}, nil
	}

	records := make([]*domain.Record, 0, len(filenames))
	for _, filename := range filenames {
		record, err := s.GetRecord(ctx, filename)
		if err != nil {
			// Skip records that couldn't be retrieved
			continue
		}
		records = append(records, record)
	}

	return records, nil
}

// DeleteRecord removes a record from Redis
func (s *Store) DeleteRecord(ctx context.Context, filename string) error {
	key := RecordKey(filename)

	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}

	if err := s.client.SRem(ctx, AllRecordsKey(), filename).Err(); err != nil {
		return fmt.Errorf("failed to remove record from set: %w", err)
	}

	return nil
}

// SaveRecordsMany stores multiple records in Redis (bulk operation)
func (s *Store) SaveRecordsMany(ctx context.Context, records []*domain.Record) error {
	pipe := s.client.Pipeline()

	for _, record := range records {
		data, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("failed to marshal record %s: %w", record.Filename, err)
		}

		key := RecordKey(record.Filename)
		pipe.Set(ctx, key, data, 0)
		pipe.SAdd(ctx, AllRecordsKey(), record.Filename)
	}

	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to save records: %w", err)
	}

	return nil
}

// FlushRecords removes every record, used by the forced-refresh path so a
// re-materialized descriptor set starts from a clean slate.
func (s *Store) FlushRecords(ctx context.Context) error {
	iter := s.client.Scan(ctx, 0, KeyPrefixRecord+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("failed to delete record key: %w", err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to flush records: %w", err)
	}

	if err := s.client.Del(ctx, AllRecordsKey()).Err(); err != nil {
		return fmt.Errorf("failed to clear record set: %w", err)
	}
	return nil
}
