package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"

	"guidebook/internal/domain/entity"
)

func TestNewRedisClientDisabledWithoutAddr(t *testing.T) {
	assert.Nil(t, NewRedisClient("", ""))
}

func TestBookingCacheMissesWhenServerDown(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	c := NewBookingCache(client, time.Minute)
	c.Set(context.Background(), "room-1", &entity.Booking{ID: "b-1"})

	b, ok := c.Get(context.Background(), "room-1")
	assert.False(t, ok)
	assert.Nil(t, b)
	assert.Equal(t, "booking:room:room-1", c.key("room-1"))
}
