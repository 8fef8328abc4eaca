// Package config loads the YAML configuration files the executor and
// shard-manager binaries start from, following the same plain
// struct-plus-yaml.v3 shape warren's apply.go uses for resource files.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/golemproject/golem/pkg/types"
	"gopkg.in/yaml.v3"
)

// StorageBackend names which IndexedStorage/BlobStorage implementation
// a process should construct.
type StorageBackend string

const (
	BackendMemory StorageBackend = "memory"
	BackendBolt   StorageBackend = "bbolt"
	BackendSQLite StorageBackend = "sqlite"
	BackendRedis  StorageBackend = "redis"
)

// RetryPolicy mirrors types.RetryPolicy field for field, with yaml tags;
// durations are time.Duration, which yaml.v3 decodes from strings such
// as "1s".
type RetryPolicy struct {
	MaxAttempts int           `yaml:"max_attempts"`
	MinDelay    time.Duration `yaml:"min_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
	Multiplier  float64       `yaml:"multiplier"`
	Jitter      float64       `yaml:"jitter"`
}

// ToTypes converts to types.RetryPolicy, the shape pkg/worker actually
// consumes.
func (r RetryPolicy) ToTypes() types.RetryPolicy {
	return types.RetryPolicy{
		MaxAttempts: r.MaxAttempts,
		MinDelay:    r.MinDelay,
		MaxDelay:    r.MaxDelay,
		Multiplier:  r.Multiplier,
		Jitter:      r.Jitter,
	}
}

// Executor configures one executor process: which pod identity it
// presents for certificate lookup, where it listens, how it stores
// worker oplogs/blobs, and how to reach the shard manager.
type Executor struct {
	PodID            string         `yaml:"pod_id"`
	ListenAddr       string         `yaml:"listen_addr"`
	HealthAddr       string         `yaml:"health_addr"`
	DataDir          string         `yaml:"data_dir"`
	Backend          StorageBackend `yaml:"backend"`
	RedisAddr        string         `yaml:"redis_addr,omitempty"`
	ShardManagerAddr string         `yaml:"shard_manager_addr"`
	NumberOfShards   int            `yaml:"number_of_shards"`
	RetryPolicy      RetryPolicy    `yaml:"retry_policy"`
	OplogArchive     OplogArchive   `yaml:"oplog_archive"`
}

// OplogArchive selects layered oplogs with a colder, zstd-compressed
// tier and a size trigger (MaxEntries) for LayeredOplog.ShouldArchive.
// Entries move into that tier only when LayeredOplog.Archive is called;
// the executor does not call it. Enabled is false by default: a
// zero-value OplogArchive keeps every worker on the bare primary tier.
type OplogArchive struct {
	Enabled    bool `yaml:"enabled"`
	MaxEntries int  `yaml:"max_entries"`
}

// ShardManager configures the single shard-manager process: its pod
// identity, where it listens, how it persists the routing table, and
// how many shards the fleet is partitioned into.
type ShardManager struct {
	PodID          string         `yaml:"pod_id"`
	ListenAddr     string         `yaml:"listen_addr"`
	HealthAddr     string         `yaml:"health_addr"`
	Backend        StorageBackend `yaml:"backend"`
	RedisAddr      string         `yaml:"redis_addr,omitempty"`
	NumberOfShards int            `yaml:"number_of_shards"`
}

// DefaultExecutor returns sane single-node defaults, overridden field
// by field from whatever a config file supplies.
func DefaultExecutor() Executor {
	return Executor{
		ListenAddr:       "0.0.0.0:9090",
		HealthAddr:       "0.0.0.0:9190",
		DataDir:          "./data/executor",
		Backend:          BackendBolt,
		ShardManagerAddr: "localhost:9091",
		NumberOfShards:   64,
		RetryPolicy: RetryPolicy{
			MaxAttempts: 5,
			MinDelay:    1 * time.Second,
			MaxDelay:    30 * time.Second,
			Multiplier:  2.0,
			Jitter:      0.2,
		},
		OplogArchive: OplogArchive{Enabled: false, MaxEntries: 10000},
	}
}

// DefaultShardManager returns sane single-node defaults.
func DefaultShardManager() ShardManager {
	return ShardManager{
		ListenAddr:     "0.0.0.0:9091",
		HealthAddr:     "0.0.0.0:9191",
		Backend:        BackendBolt,
		NumberOfShards: 64,
	}
}

// LoadExecutor reads and parses an executor config file at path,
// unmarshaling onto base so fields the file omits keep base's values
// (typically DefaultExecutor()).
func LoadExecutor(path string, base Executor) (Executor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Executor{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &base); err != nil {
		return Executor{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return base, nil
}

// LoadShardManager reads and parses a shard-manager config file at path.
func LoadShardManager(path string, base ShardManager) (ShardManager, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ShardManager{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &base); err != nil {
		return ShardManager{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return base, nil
}
