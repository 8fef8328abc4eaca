package storage

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisIndexedStorage stores each (namespace, key) stream as a sorted
// set scored by entry id, the same layout the redis indexed-storage
// backend uses: ZADD for append, ZRANGEBYSCORE for range reads.
type RedisIndexedStorage struct {
	client *redis.Client
}

func NewRedisIndexedStorage(client *redis.Client) *RedisIndexedStorage {
	return &RedisIndexedStorage{client: client}
}

func redisStreamKey(namespace, key string) string {
	return fmt.Sprintf("golem:idx:%s:%s", namespace, key)
}

func (s *RedisIndexedStorage) Append(ctx context.Context, _, _, namespace, key string, data []byte) (uint64, error) {
	streamKey := redisStreamKey(namespace, key)
	id, err := s.client.Eval(ctx, redisAppendScript, []string{streamKey}, data).Uint64()
	if err != nil {
		return 0, fmt.Errorf("redis append: %w", err)
	}
	return id, nil
}

// redisAppendScript atomically reads the current max score and adds a
// new member scored one past it, avoiding a round trip + race between
// ZSCORE and ZADD.
const redisAppendScript = `
local top = redis.call('ZREVRANGE', KEYS[1], 0, 0, 'WITHSCORES')
local id = 1
if #top > 0 then
  id = tonumber(top[2]) + 1
end
redis.call('ZADD', KEYS[1], id, id .. ':' .. ARGV[1])
return id
`

func parseRedisMember(member string, wantId uint64) (uint64, []byte, bool) {
	idx := strings.IndexByte(member, ':')
	if idx < 0 {
		return 0, nil, false
	}
	id, err := strconv.ParseUint(member[:idx], 10, 64)
	if err != nil {
		return 0, nil, false
	}
	return id, []byte(member[idx+1:]), true
}

func (s *RedisIndexedStorage) Read(ctx context.Context, _, _, namespace, key string, id uint64) ([]byte, error) {
	members, err := s.client.ZRangeByScore(ctx, redisStreamKey(namespace, key), &redis.ZRangeBy{
		Min: strconv.FormatUint(id, 10), Max: strconv.FormatUint(id, 10),
	}).Result()
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return nil, ErrNotFound
	}
	_, data, ok := parseRedisMember(members[0], id)
	if !ok {
		return nil, ErrNotFound
	}
	return data, nil
}

func (s *RedisIndexedStorage) ReadRange(ctx context.Context, _, _, namespace, key string, start, end uint64) ([]Entry, error) {
	members, err := s.client.ZRangeByScore(ctx, redisStreamKey(namespace, key), &redis.ZRangeBy{
		Min: strconv.FormatUint(start, 10), Max: strconv.FormatUint(end, 10),
	}).Result()
	if err != nil {
		return nil, err
	}
	var out []Entry
	for _, m := range members {
		id, data, ok := parseRedisMember(m, 0)
		if !ok {
			continue
		}
		out = append(out, Entry{Id: id, Data: data})
	}
	return out, nil
}

func (s *RedisIndexedStorage) First(ctx context.Context, _, _, namespace, key string) (Entry, bool, error) {
	members, err := s.client.ZRangeWithScores(ctx, redisStreamKey(namespace, key), 0, 0).Result()
	if err != nil || len(members) == 0 {
		return Entry{}, false, err
	}
	id, data, ok := parseRedisMember(members[0].Member.(string), 0)
	return Entry{Id: id, Data: data}, ok, nil
}

func (s *RedisIndexedStorage) Last(ctx context.Context, _, _, namespace, key string) (Entry, bool, error) {
	members, err := s.client.ZRevRangeWithScores(ctx, redisStreamKey(namespace, key), 0, 0).Result()
	if err != nil || len(members) == 0 {
		return Entry{}, false, err
	}
	id, data, ok := parseRedisMember(members[0].Member.(string), 0)
	return Entry{Id: id, Data: data}, ok, nil
}

func (s *RedisIndexedStorage) Closest(ctx context.Context, _, _, namespace, key string, from uint64) (Entry, bool, error) {
	members, err := s.client.ZRangeByScore(ctx, redisStreamKey(namespace, key), &redis.ZRangeBy{
		Min: strconv.FormatUint(from, 10), Max: "+inf", Count: 1,
	}).Result()
	if err != nil || len(members) == 0 {
		return Entry{}, false, err
	}
	id, data, ok := parseRedisMember(members[0], 0)
	return Entry{Id: id, Data: data}, ok, nil
}

func (s *RedisIndexedStorage) Length(ctx context.Context, _, _, namespace, key string) (uint64, error) {
	n, err := s.client.ZCard(ctx, redisStreamKey(namespace, key)).Result()
	return uint64(n), err
}

func (s *RedisIndexedStorage) Delete(ctx context.Context, _, _, namespace, key string) error {
	return s.client.Del(ctx, redisStreamKey(namespace, key)).Err()
}

func (s *RedisIndexedStorage) TruncatePrefix(ctx context.Context, _, _, namespace, key string, beforeId uint64) error {
	return s.client.ZRemRangeByScore(ctx, redisStreamKey(namespace, key), "-inf", fmt.Sprintf("(%d", beforeId)).Err()
}

func (s *RedisIndexedStorage) DropPrefix(ctx context.Context, _, _, namespace, keyPrefix string) error {
	pattern := redisStreamKey(namespace, keyPrefix) + "*"
	iter := s.client.Scan(ctx, 0, pattern, 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return s.client.Del(ctx, keys...).Err()
}

func (s *RedisIndexedStorage) Exists(ctx context.Context, _, _, namespace, key string) (bool, error) {
	n, err := s.client.Exists(ctx, redisStreamKey(namespace, key)).Result()
	return n > 0, err
}

func (s *RedisIndexedStorage) Scan(ctx context.Context, _, _, namespace, keyPrefix string, cursor ScanCursor, count int) ([]string, ScanCursor, error) {
	prefix := redisStreamKey(namespace, "")
	pattern := redisStreamKey(namespace, keyPrefix) + "*"
	if count <= 0 {
		count = 1000
	}
	redisKeys, next, err := s.client.Scan(ctx, uint64(cursor), pattern, int64(count)).Result()
	if err != nil {
		return nil, 0, err
	}
	out := make([]string, 0, len(redisKeys))
	for _, k := range redisKeys {
		out = append(out, strings.TrimPrefix(k, prefix))
	}
	return out, ScanCursor(next), nil
}

func (s *RedisIndexedStorage) WaitForReplicas(ctx context.Context, numberOfReplicas int, timeout time.Duration) error {
	if numberOfReplicas <= 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	acked, err := s.client.Wait(ctx, numberOfReplicas, timeout).Result()
	if err != nil {
		return err
	}
	if int(acked) < numberOfReplicas {
		return fmt.Errorf("only %d of %d replicas acknowledged", acked, numberOfReplicas)
	}
	return nil
}

func (s *RedisIndexedStorage) Close() error { return s.client.Close() }
