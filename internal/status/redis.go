package status

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// claimScript creates a processing record when absent, or re-claims a failed
// one below the attempt limit. KEYS[1]=record key; ARGV: id, uid, now, max attempts.
var claimScript = redis.NewScript(`
local status = redis.call('HGET', KEYS[1], 'status')
if not status then
  redis.call('HSET', KEYS[1], 'id', ARGV[1], 'uid', ARGV[2], 'status', 'processing',
    'attempts', 1, 'created_at', ARGV[3], 'updated_at', ARGV[3])
  return 1
end
if status == 'failed' then
  local attempts = tonumber(redis.call('HGET', KEYS[1], 'attempts') or '0')
  if attempts < tonumber(ARGV[4]) then
    redis.call('HSET', KEYS[1], 'uid', ARGV[2], 'status', 'processing', 'updated_at', ARGV[3])
    redis.call('HDEL', KEYS[1], 'error', 'filename')
    redis.call('HINCRBY', KEYS[1], 'attempts', 1)
    return 1
  end
end
return 0
`)

// reclaimScript fails a processing record only if it has not been touched
// since it was read. KEYS[1]=record key; ARGV: expected updated_at, now, reason.
var reclaimScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'status') ~= 'processing' then
  return 0
end
if redis.call('HGET', KEYS[1], 'updated_at') ~= ARGV[1] then
  return 0
end
redis.call('HSET', KEYS[1], 'status', 'failed', 'error', ARGV[3], 'updated_at', ARGV[2])
return 1
`)

// touchScript bumps updated_at only while the record is processing.
// KEYS[1]=record key; ARGV: now.
var touchScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'status') ~= 'processing' then
  return 0
end
redis.call('HSET', KEYS[1], 'updated_at', ARGV[1])
return 1
`)

// RedisStore keeps each record in a hash at prefix+id.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedis wraps an existing client.
func NewRedis(client redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(id string) string { return s.prefix + id }

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) Exists(ctx context.Context, id string) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(id)).Result()
	if err != nil {
		return false, fmt.Errorf("check record: %w", err)
	}
	return n > 0, nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Record, error) {
	fields, err := s.client.HGetAll(ctx, s.key(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return recordFromHash(id, fields), nil
}

func (s *RedisStore) Claim(ctx context.Context, rec Record, maxAttempts int) (bool, error) {
	if err := validateClaim(rec, maxAttempts); err != nil {
		return false, err
	}
	claimed, err := claimScript.Run(ctx, s.client, []string{s.key(rec.ID)},
		rec.ID, rec.UID, formatTime(time.Now()), maxAttempts,
	).Int()
	if err != nil {
		return false, fmt.Errorf("claim record: %w", err)
	}
	return claimed == 1, nil
}

func (s *RedisStore) Upsert(ctx context.Context, id string, patch Patch) error {
	if id == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidRecord)
	}
	if err := patch.validate(); err != nil {
		return err
	}
	key := s.key(id)
	now := formatTime(time.Now())
	initial := StatusProcessing
	if patch.Status != nil {
		initial = *patch.Status
	}

	set := map[string]any{"updated_at": now}
	var clear []string
	if patch.UID != nil {
		set["uid"] = *patch.UID
	}
	if patch.Status != nil {
		set["status"] = string(*patch.Status)
	}
	for field, value := range map[string]*string{"filename": patch.Filename, "error": patch.Error} {
		switch {
		case value == nil:
		case *value == "":
			clear = append(clear, field)
		default:
			set[field] = *value
		}
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSetNX(ctx, key, "id", id)
		pipe.HSetNX(ctx, key, "uid", "")
		pipe.HSetNX(ctx, key, "status", string(initial))
		pipe.HSetNX(ctx, key, "attempts", 0)
		pipe.HSetNX(ctx, key, "created_at", now)
		pipe.HSet(ctx, key, set)
		if len(clear) > 0 {
			pipe.HDel(ctx, key, clear...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("upsert record: %w", err)
	}
	return nil
}

func (s *RedisStore) List(ctx context.Context, statuses ...Status) ([]*Record, error) {
	wanted := make(map[Status]struct{}, len(statuses))
	for _, status := range statuses {
		wanted[status] = struct{}{}
	}

	var records []*Record
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		fields, err := s.client.HGetAll(ctx, key).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return nil, fmt.Errorf("list records: %w", err)
		}
		if len(fields) == 0 {
			continue
		}
		rec := recordFromHash(key[len(s.prefix):], fields)
		if len(wanted) > 0 {
			if _, ok := wanted[rec.Status]; !ok {
				continue
			}
		}
		records = append(records, rec)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].ID < records[j].ID
		}
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
	return records, nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) (bool, error) {
	n, err := s.client.Del(ctx, s.key(id)).Result()
	if err != nil {
		return false, fmt.Errorf("delete record: %w", err)
	}
	return n > 0, nil
}

func (s *RedisStore) Touch(ctx context.Context, id string) (bool, error) {
	touched, err := touchScript.Run(ctx, s.client, []string{s.key(id)}, formatTime(time.Now())).Int()
	if err != nil {
		return false, fmt.Errorf("touch record: %w", err)
	}
	return touched == 1, nil
}

func (s *RedisStore) ReclaimStale(ctx context.Context, cutoff time.Time, reason string) (int64, error) {
	processing, err := s.List(ctx, StatusProcessing)
	if err != nil {
		return 0, err
	}
	var reclaimed int64
	for _, rec := range processing {
		if !rec.UpdatedAt.Before(cutoff) {
			continue
		}
		n, err := reclaimScript.Run(ctx, s.client, []string{s.key(rec.ID)},
			formatTime(rec.UpdatedAt), formatTime(time.Now()), reason,
		).Int()
		if err != nil {
			return reclaimed, fmt.Errorf("reclaim stale record %s: %w", rec.ID, err)
		}
		reclaimed += int64(n)
	}
	return reclaimed, nil
}

func recordFromHash(id string, fields map[string]string) *Record {
	rec := &Record{
		ID:        id,
		UID:       fields["uid"],
		Status:    Status(fields["status"]),
		Filename:  fields["filename"],
		Error:     fields["error"],
		CreatedAt: parseTime(fields["created_at"]),
		UpdatedAt: parseTime(fields["updated_at"]),
	}
	if stored := fields["id"]; stored != "" {
		rec.ID = stored
	}
	if attempts, err := strconv.Atoi(fields["attempts"]); err == nil {
		rec.Attempts = attempts
	}
	return rec
}
