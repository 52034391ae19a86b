package conversation

import (
	"context"
	"net"
	"os"
	"strconv"
	"testing"
	"time"

	"companion/internal/config"
	"companion/internal/redis"
)

func TestCachedStoreServesAndInvalidates(t *testing.T) {
	client := newTestRedis(t)
	store := newTestStore(t)
	cached := NewCachedStore(store, client, time.Minute)
	ctx := context.Background()

	if err := cached.AppendExchange(ctx, "erin", "one", "uno"); err != nil {
		t.Fatalf("append: %v", err)
	}
	first, err := cached.History(ctx, "erin")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(first) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(first))
	}
	if _, err := client.Get(ctx, historyKey("erin")); err != nil {
		t.Fatalf("expected history to be cached: %v", err)
	}

	// a write behind the cache's back is invisible until invalidation
	if err := store.AppendExchange(ctx, "erin", "two", "dos"); err != nil {
		t.Fatalf("direct append: %v", err)
	}
	stale, err := cached.History(ctx, "erin")
	if err != nil {
		t.Fatalf("cached history: %v", err)
	}
	if len(stale) != 2 {
		t.Fatalf("expected cached history of 2, got %d", len(stale))
	}

	if err := cached.AppendExchange(ctx, "erin", "three", "tres"); err != nil {
		t.Fatalf("append through cache: %v", err)
	}
	fresh, err := cached.History(ctx, "erin")
	if err != nil {
		t.Fatalf("fresh history: %v", err)
	}
	if len(fresh) != 6 || fresh[5].Content != "tres" {
		t.Fatalf("unexpected fresh history: %+v", fresh)
	}
}

func TestCachedStoreWithoutRedis(t *testing.T) {
	cached := NewCachedStore(newTestStore(t), nil, 0)
	ctx := context.Background()
	if err := cached.AppendExchange(ctx, "frank", "hi", "hello"); err != nil {
		t.Fatalf("append: %v", err)
	}
	history, err := cached.History(ctx, "frank")
	if err != nil || len(history) != 2 {
		t.Fatalf("expected passthrough history, got %v %v", history, err)
	}
}

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set TEST_REDIS_ADDR to run redis-backed cache tests")
	}
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("split host port: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("atoi port: %v", err)
	}
	client, err := redis.NewRedisClient(&config.Config{Redis: config.RedisConfig{Host: host, Port: port}})
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Raw().FlushDB(ctx).Err(); err != nil {
		t.Fatalf("flush db: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}
