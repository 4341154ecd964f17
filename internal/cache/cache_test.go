package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type payload struct {
	Score int `json:"score"`
}

func newTestRedis(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	rc := NewRedisCacheFromClient(client)
	t.Cleanup(func() { _ = rc.Close() })
	return rc, mr
}

func TestRedisCache_RoundTripAndExpiry(t *testing.T) {
	ctx := context.Background()
	rc, mr := newTestRedis(t)

	if err := SetJSON(ctx, rc, EngagementKey("abc"), payload{Score: 25}, time.Minute); err != nil {
		t.Fatalf("Failed to set: %v", err)
	}

	var got payload
	if err := GetJSON(ctx, rc, EngagementKey("abc"), &got); err != nil {
		t.Fatalf("Failed to get: %v", err)
	}
	if got.Score != 25 {
		t.Errorf("Expected 25, got %d", got.Score)
	}

	if !mr.Exists("card-engagement:engagement:abc") {
		t.Error("Expected prefixed key in redis")
	}

	mr.FastForward(2 * time.Minute)
	if _, err := rc.Get(ctx, EngagementKey("abc")); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound after expiry, got %v", err)
	}
}

func TestRedisCache_Delete(t *testing.T) {
	ctx := context.Background()
	rc, _ := newTestRedis(t)

	_ = rc.Set(ctx, "k", []byte("v"), time.Minute)
	if err := rc.Delete(ctx, "k"); err != nil {
		t.Fatalf("Failed to delete: %v", err)
	}
	if _, err := rc.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestNewRedisCache_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	if _, err := NewRedisCache(context.Background(), addr, "", 0); err == nil {
		t.Error("Expected error connecting to a closed server")
	}
}

func TestInMemoryCache_Expiry(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache()
	now := time.Date(2025, 10, 21, 10, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	_ = c.Set(ctx, "k", []byte("v"), time.Second)
	if v, err := c.Get(ctx, "k"); err != nil || string(v) != "v" {
		t.Fatalf("Expected v, got %q (%v)", v, err)
	}

	now = now.Add(2 * time.Second)
	if _, err := c.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}
