package cache

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type payload struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestMemoryBackendRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := New(NewMemoryBackend())

	if err := c.Put(ctx, "k", payload{Name: "ETH-PERP", Count: 3}, time.Minute); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	var got payload
	age, ok, err := c.Get(ctx, "k", &got)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !ok {
		t.Fatal("expected a cache hit")
	}
	if got.Name != "ETH-PERP" || got.Count != 3 {
		t.Fatalf("unexpected value: %+v", got)
	}
	if age < 0 || age > time.Second {
		t.Fatalf("unexpected age: %v", age)
	}
}

func TestMemoryBackendExpiry(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	base := time.Now()
	backend.now = func() time.Time { return base }

	c := New(backend)
	if err := c.Put(ctx, "k", payload{Name: "x"}, time.Minute); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	// Advance past the TTL.
	backend.now = func() time.Time { return base.Add(2 * time.Minute) }

	var got payload
	_, ok, err := c.Get(ctx, "k", &got)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if ok {
		t.Fatal("expected entry to have expired")
	}
}

func TestCacheMissOnUnknownKey(t *testing.T) {
	ctx := context.Background()
	c := New(NewMemoryBackend())

	var got payload
	_, ok, err := c.Get(ctx, "missing", &got)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if ok {
		t.Fatal("expected a miss")
	}
}

func TestRedisBackendRoundTrip(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	c := New(NewRedisBackend(client, "test"))

	if err := c.Put(ctx, "k", payload{Name: "BTC-PERP", Count: 1}, time.Minute); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	var got payload
	_, ok, err := c.Get(ctx, "k", &got)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !ok {
		t.Fatal("expected a cache hit")
	}
	if got.Name != "BTC-PERP" {
		t.Fatalf("unexpected value: %+v", got)
	}

	// Keys are namespaced under the prefix.
	if !mr.Exists("test:k") {
		t.Fatal("expected namespaced key in redis")
	}

	// TTL expiry is delegated to redis.
	mr.FastForward(2 * time.Minute)
	_, ok, err = c.Get(ctx, "k", &got)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if ok {
		t.Fatal("expected entry to have expired")
	}
}

func TestRedisBackendDelete(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	c := New(NewRedisBackend(client, ""))

	if err := c.Put(ctx, "k", payload{Name: "x"}, 0); err != nil {
		t.Fatalf("put failed: %v", err)
	}
	if err := c.Delete(ctx, "k"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	var got payload
	_, ok, err := c.Get(ctx, "k", &got)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if ok {
		t.Fatal("expected key to be gone")
	}
}
