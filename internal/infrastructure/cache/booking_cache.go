package cache

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"guidebook/internal/domain/entity"
)

// NewRedisClient connects to addr and pings it. It returns nil when the
// server is unreachable so callers can run without a cache.
func NewRedisClient(addr, password string) *redis.Client {
	if addr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Printf("redis: ping %s failed, booking cache disabled: %v", addr, err)
		_ = client.Close()
		return nil
	}
	return client
}

// BookingCache keeps the booking of each room for a short TTL.
type BookingCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

func NewBookingCache(client *redis.Client, ttl time.Duration) *BookingCache {
	return &BookingCache{client: client, ttl: ttl, prefix: "booking:room:"}
}

func (c *BookingCache) key(roomID string) string {
	return c.prefix + roomID
}

func (c *BookingCache) Get(ctx context.Context, roomID string) (*entity.Booking, bool) {
	raw, err := c.client.Get(ctx, c.key(roomID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Printf("redis: get %s failed: %v", c.key(roomID), err)
		}
		return nil, false
	}

	var booking entity.Booking
	if err := json.Unmarshal(raw, &booking); err != nil {
		return nil, false
	}
	return &booking, true
}

func (c *BookingCache) Set(ctx context.Context, roomID string, booking *entity.Booking) {
	raw, err := json.Marshal(booking)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, c.key(roomID), raw, c.ttl).Err(); err != nil {
		log.Printf("redis: set %s failed: %v", c.key(roomID), err)
	}
}

func (c *BookingCache) Invalidate(ctx context.Context, roomID string) {
	if err := c.client.Del(ctx, c.key(roomID)).Err(); err != nil {
		log.Printf("redis: del %s failed: %v", c.key(roomID), err)
	}
}
