// Package redis provides the tier-2 store: a Redis-backed remote key-value
// adapter built on rueidis, satisfying cache.RemoteStore.
package redis

import (
	"context"
	"fmt"
	"time"

	"tiercache/pkg/cache"

	"github.com/redis/rueidis"
)

// Store is a RemoteStore backed by Redis. Values are stored as opaque
// strings; serialization is the caller's concern.
type Store struct {
	client rueidis.Client
	name   string
	config Config
}

// Config holds Redis connection configuration.
type Config struct {
	Name string
	// Addr is the Redis server address for single node mode.
	// For cluster mode, use ClusterAddrs instead.
	Addr string
	// ClusterAddrs is a list of Redis cluster node addresses.
	// If set, cluster mode is enabled automatically.
	ClusterAddrs []string
	Username     string
	Password     string
	// DB is the Redis database number (0-15). Cluster mode supports only DB 0.
	DB           int
	KeyPrefix    string
	DialTimeout  time.Duration
	WriteTimeout time.Duration
	// Sentinel configuration for high availability
	SentinelMasterSet string
	// SentinelAddrs is a list of Redis Sentinel addresses.
	// If set, sentinel mode is enabled.
	SentinelAddrs    []string
	SentinelUsername string
	SentinelPassword string
}

// DefaultConfig returns a single-node configuration for a local Redis.
func DefaultConfig() Config {
	return Config{
		Name:         "redis",
		Addr:         "localhost:6379",
		DB:           0,
		KeyPrefix:    "tiercache:",
		DialTimeout:  5 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// ClusterConfig returns a configuration for Redis Cluster mode.
func ClusterConfig(name string, clusterAddrs []string, password string) Config {
	config := DefaultConfig()
	config.Name = name
	config.ClusterAddrs = clusterAddrs
	config.Password = password
	config.Addr = ""
	config.DB = 0
	return config
}

// SentinelConfig returns a configuration for Redis Sentinel mode.
// masterSet is the name of the master set to connect to.
func SentinelConfig(name string, sentinelAddrs []string, masterSet, password string) Config {
	config := DefaultConfig()
	config.Name = name
	config.SentinelAddrs = sentinelAddrs
	config.SentinelMasterSet = masterSet
	config.Password = password
	config.Addr = ""
	return config
}

// NewStore connects to Redis and verifies the connection with a ping.
func NewStore(config Config) (*Store, error) {
	if config.Name == "" {
		config.Name = "redis"
	}

	var initAddress []string
	switch {
	case len(config.ClusterAddrs) > 0:
		initAddress = config.ClusterAddrs
	case len(config.SentinelAddrs) > 0:
		initAddress = config.SentinelAddrs
	case config.Addr != "":
		initAddress = []string{config.Addr}
	default:
		return nil, fmt.Errorf("redis: no addresses configured (set Addr, ClusterAddrs, or SentinelAddrs)")
	}

	clientOpts := rueidis.ClientOption{
		InitAddress:      initAddress,
		Username:         config.Username,
		Password:         config.Password,
		SelectDB:         config.DB,
		ConnWriteTimeout: config.WriteTimeout,
		MaxFlushDelay:    100 * time.Microsecond,
	}

	if len(config.SentinelAddrs) > 0 {
		clientOpts.Sentinel = rueidis.SentinelOption{
			MasterSet: config.SentinelMasterSet,
			Username:  config.SentinelUsername,
			Password:  config.SentinelPassword,
		}
	}

	client, err := rueidis.NewClient(clientOpts)
	if err != nil {
		return nil, fmt.Errorf("redis: failed to create client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.DialTimeout)
	defer cancel()

	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis: failed to ping server: %w", err)
	}

	return &Store{
		client: client,
		name:   config.Name,
		config: config,
	}, nil
}

// Get returns the raw value stored under key, or cache.ErrKeyNotFound.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	fullKey := s.config.KeyPrefix + key

	resp := s.client.Do(ctx, s.client.B().Get().Key(fullKey).Build())
	if err := resp.Error(); err != nil {
		if rueidis.IsRedisNil(err) {
			return "", cache.ErrKeyNotFound
		}
		return "", fmt.Errorf("redis get: %w", err)
	}

	value, err := resp.ToString()
	if err != nil {
		return "", fmt.Errorf("redis get: failed to read response: %w", err)
	}

	return value, nil
}

// SetWithExpiry stores value under key with the given TTL.
func (s *Store) SetWithExpiry(ctx context.Context, key, value string, ttl time.Duration) error {
	fullKey := s.config.KeyPrefix + key

	cmd := s.client.B().Set().Key(fullKey).Value(value).Ex(ttl).Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}

	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	fullKey := s.config.KeyPrefix + key

	if err := s.client.Do(ctx, s.client.B().Del().Key(fullKey).Build()).Error(); err != nil {
		return fmt.Errorf("redis delete: %w", err)
	}

	return nil
}

// Name returns the store identifier.
func (s *Store) Name() string {
	return s.name
}

// Close releases the underlying client.
func (s *Store) Close() error {
	s.client.Close()
	return nil
}

// Ping verifies the connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Do(ctx, s.client.B().Ping().Build()).Error(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// TTL returns the remaining time-to-live for key.
// Returns cache.ErrKeyNotFound for absent keys and -1 for keys with no expiry.
func (s *Store) TTL(ctx context.Context, key string) (time.Duration, error) {
	fullKey := s.config.KeyPrefix + key

	resp := s.client.Do(ctx, s.client.B().Ttl().Key(fullKey).Build())
	if err := resp.Error(); err != nil {
		return 0, fmt.Errorf("redis ttl: %w", err)
	}

	seconds, err := resp.AsInt64()
	if err != nil {
		return 0, fmt.Errorf("redis ttl: failed to read response: %w", err)
	}

	switch seconds {
	case -2:
		return 0, cache.ErrKeyNotFound
	case -1:
		return -1, nil
	default:
		return time.Duration(seconds) * time.Second, nil
	}
}

// Exists reports whether key is present.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	fullKey := s.config.KeyPrefix + key

	resp := s.client.Do(ctx, s.client.B().Exists().Key(fullKey).Build())
	if err := resp.Error(); err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}

	count, err := resp.AsInt64()
	if err != nil {
		return false, fmt.Errorf("redis exists: failed to read response: %w", err)
	}

	return count > 0, nil
}
