package redisstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"sketch-lobby/internal/domain"
	"sketch-lobby/internal/repository"
)

// RedisGuestRepository keeps guest identities in Redis with a TTL.
type RedisGuestRepository struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

var _ repository.GuestRepository = (*RedisGuestRepository)(nil)

// NewRedisGuestRepository creates a RedisGuestRepository.
func NewRedisGuestRepository(client *redis.Client, keyPrefix string, ttl time.Duration) *RedisGuestRepository {
	if client == nil {
		panic("redis client cannot be nil for RedisGuestRepository")
	}
	if keyPrefix == "" {
		keyPrefix = "sl:"
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisGuestRepository{client: client, keyPrefix: keyPrefix, ttl: ttl}
}

func (r *RedisGuestRepository) sequenceKey() string {
	return r.keyPrefix + "guest:seq"
}

func (r *RedisGuestRepository) guestKey(id uint64) string {
	return fmt.Sprintf("%sguest:%d", r.keyPrefix, id)
}

// NextSequence increments the shared guest counter.
func (r *RedisGuestRepository) NextSequence(ctx context.Context) (uint64, error) {
	n, err := r.client.Incr(ctx, r.sequenceKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("redis: incr %s: %w", r.sequenceKey(), err)
	}
	return uint64(n), nil
}

func (r *RedisGuestRepository) Save(ctx context.Context, guest *domain.Guest) error {
	data, err := json.Marshal(guest)
	if err != nil {
		return fmt.Errorf("redis: marshal guest %d: %w", guest.ID, err)
	}
	key := r.guestKey(guest.ID)
	if err := r.client.Set(ctx, key, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set %s: %w", key, err)
	}
	return nil
}

func (r *RedisGuestRepository) FindByID(ctx context.Context, id uint64) (*domain.Guest, error) {
	key := r.guestKey(id)
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("redis: get %s: %w", key, err)
	}
	var guest domain.Guest
	if err := json.Unmarshal(data, &guest); err != nil {
		return nil, fmt.Errorf("redis: unmarshal %s: %w", key, err)
	}
	return &guest, nil
}
