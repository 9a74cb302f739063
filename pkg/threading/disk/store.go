package disk

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/vnykmshr/uthread/pkg/common/validation"
)

// DefaultBlockSize is the size of a block that was never written.
const DefaultBlockSize = 512

// Store is the backing storage of a Device.
type Store interface {
	// Load returns the contents of block.
	Load(ctx context.Context, block uint64) ([]byte, error)
}

// MemoryStore is an in-memory Store.
type MemoryStore struct {
	blockSize int

	mu     sync.RWMutex
	blocks map[uint64][]byte
}

// NewMemoryStore creates an empty store. Unwritten blocks read as blockSize
// zero bytes.
func NewMemoryStore(blockSize int) *MemoryStore {
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	return &MemoryStore{
		blockSize: blockSize,
		blocks:    make(map[uint64][]byte),
	}
}

// Save stores a copy of data as block.
func (s *MemoryStore) Save(block uint64, data []byte) {
	buf := make([]byte, len(data))
	copy(buf, data)

	s.mu.Lock()
	s.blocks[block] = buf
	s.mu.Unlock()
}

// Load implements Store.
func (s *MemoryStore) Load(ctx context.Context, block uint64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	data, ok := s.blocks[block]
	s.mu.RUnlock()

	if !ok {
		return make([]byte, s.blockSize), nil
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// RedisConfig configures a RedisStore.
type RedisConfig struct {
	// Redis client holding the blocks
	Redis redis.UniversalClient

	// Prefix namespaces the block keys. Defaults to a random instance prefix.
	Prefix string

	// BlockSize is the size of a block that has no key
	BlockSize int

	// Timeout bounds every Redis call (defaults to 500ms)
	Timeout time.Duration

	// KeyTTL expires saved blocks; zero keeps them forever
	KeyTTL time.Duration
}

// DefaultRedisConfig returns a configuration without a client.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Prefix:    "uthread-" + uuid.NewString(),
		BlockSize: DefaultBlockSize,
		Timeout:   500 * time.Millisecond,
	}
}

// RedisStore keeps blocks in Redis.
type RedisStore struct {
	config RedisConfig
}

// NewRedisStore creates a store on top of config.Redis.
func NewRedisStore(config RedisConfig) (*RedisStore, error) {
	defaults := DefaultRedisConfig()
	if config.Prefix == "" {
		config.Prefix = defaults.Prefix
	}
	if config.BlockSize == 0 {
		config.BlockSize = defaults.BlockSize
	}
	if config.Timeout == 0 {
		config.Timeout = defaults.Timeout
	}

	if err := validation.ValidateNotNil("disk", "Redis", config.Redis); err != nil {
		return nil, err
	}
	if err := validation.ValidatePositive("disk", "BlockSize", config.BlockSize); err != nil {
		return nil, err
	}
	if err := validation.ValidateNonNegativeDuration("disk", "KeyTTL", config.KeyTTL); err != nil {
		return nil, err
	}

	return &RedisStore{config: config}, nil
}

// Key returns the Redis key of block.
func (s *RedisStore) Key(block uint64) string {
	return s.config.Prefix + ":block:" + strconv.FormatUint(block, 10)
}

// Load implements Store.
func (s *RedisStore) Load(ctx context.Context, block uint64) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	data, err := s.config.Redis.Get(ctx, s.Key(block)).Bytes()
	if errors.Is(err, redis.Nil) {
		return make([]byte, s.config.BlockSize), nil
	}
	if err != nil {
		return nil, fmt.Errorf("disk: load block %d: %w", block, err)
	}
	return data, nil
}

// Save writes data as block.
func (s *RedisStore) Save(ctx context.Context, block uint64, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	if err := s.config.Redis.Set(ctx, s.Key(block), data, s.config.KeyTTL).Err(); err != nil {
		return fmt.Errorf("disk: save block %d: %w", block, err)
	}
	return nil
}
