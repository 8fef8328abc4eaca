package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/golemproject/golem/pkg/types"
	"github.com/redis/go-redis/v9"
)

// ScheduledItem is one invocation waiting for its ScheduledFor time to
// arrive, outside any worker's own oplog.
type ScheduledItem struct {
	ID         string            `json:"id"`
	WorkerId   types.WorkerId    `json:"worker_id"`
	Invocation types.Invocation  `json:"invocation"`
}

// ScheduleStore is the sorted-by-time structure scheduled invocations
// live in until they come due. Implementations need not keep items
// sorted internally as long as DueBefore can find everything at or
// before t.
type ScheduleStore interface {
	Schedule(ctx context.Context, item ScheduledItem) error
	DueBefore(ctx context.Context, t time.Time) ([]ScheduledItem, error)
	Remove(ctx context.Context, item ScheduledItem) error
}

// MemoryScheduleStore is a mutex-protected sorted slice, suitable for a
// single-process deployment or tests.
type MemoryScheduleStore struct {
	mu    sync.Mutex
	items []ScheduledItem
}

func NewMemoryScheduleStore() *MemoryScheduleStore {
	return &MemoryScheduleStore{}
}

func (m *MemoryScheduleStore) Schedule(_ context.Context, item ScheduledItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = append(m.items, item)
	sort.Slice(m.items, func(i, j int) bool {
		return m.items[i].Invocation.ScheduledFor.Before(m.items[j].Invocation.ScheduledFor)
	})
	return nil
}

func (m *MemoryScheduleStore) DueBefore(_ context.Context, t time.Time) ([]ScheduledItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var due []ScheduledItem
	for _, item := range m.items {
		if !item.Invocation.ScheduledFor.After(t) {
			due = append(due, item)
		}
	}
	return due, nil
}

func (m *MemoryScheduleStore) Remove(_ context.Context, item ScheduledItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.items {
		if existing.ID == item.ID {
			m.items = append(m.items[:i], m.items[i+1:]...)
			return nil
		}
	}
	return nil
}

// redisScheduleKey is the single sorted set every scheduled invocation
// lives in, scored by its due time in Unix nanoseconds.
const redisScheduleKey = "golem:scheduled-invocations"

// RedisScheduleStore backs the scheduled-invocation queue with a single
// redis sorted set: ZADD scores members by due time, ZRANGEBYSCORE
// finds everything due, ZREM retires a delivered item.
type RedisScheduleStore struct {
	client *redis.Client
}

func NewRedisScheduleStore(client *redis.Client) *RedisScheduleStore {
	return &RedisScheduleStore{client: client}
}

func (s *RedisScheduleStore) Schedule(ctx context.Context, item ScheduledItem) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("encode scheduled item: %w", err)
	}
	score := float64(item.Invocation.ScheduledFor.UnixNano())
	return s.client.ZAdd(ctx, redisScheduleKey, redis.Z{Score: score, Member: data}).Err()
}

func (s *RedisScheduleStore) DueBefore(ctx context.Context, t time.Time) ([]ScheduledItem, error) {
	members, err := s.client.ZRangeByScore(ctx, redisScheduleKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", t.UnixNano()),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("query due invocations: %w", err)
	}
	items := make([]ScheduledItem, 0, len(members))
	for _, member := range members {
		var item ScheduledItem
		if err := json.Unmarshal([]byte(member), &item); err != nil {
			return nil, fmt.Errorf("decode scheduled item: %w", err)
		}
		items = append(items, item)
	}
	return items, nil
}

func (s *RedisScheduleStore) Remove(ctx context.Context, item ScheduledItem) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("encode scheduled item: %w", err)
	}
	return s.client.ZRem(ctx, redisScheduleKey, data).Err()
}
