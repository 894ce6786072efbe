package cache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/LeventeLantos/loyalty-outreach/internal/model"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	// Start in-memory Redis
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestRedisCache_StoreSent_Success(t *testing.T) {
	t.Parallel()

	mr, rdb := newTestRedis(t)

	ttl := 10 * time.Second
	cache := NewRedisCache(rdb, ttl)

	ctx := context.Background()
	sentAt := time.Date(2026, 2, 2, 18, 0, 0, 0, time.UTC)

	if err := cache.StoreSent(ctx, "c123", model.ChannelEmail, "remote-123", sentAt); err != nil {
		t.Fatalf("StoreSent() error: %v", err)
	}

	key := "loyalty:sent:Email:c123"

	if !mr.Exists(key) {
		t.Fatalf("expected key %q to exist", key)
	}

	ttlRemaining := mr.TTL(key)
	if ttlRemaining <= 0 {
		t.Fatalf("expected TTL to be set, got %v", ttlRemaining)
	}

	raw, err := mr.Get(key)
	if err != nil {
		t.Fatalf("failed to get key %q: %v", key, err)
	}

	var got SentRecord
	if err := json.Unmarshal([]byte(raw), &got); err != nil {
		t.Fatalf("failed to unmarshal value: %v", err)
	}

	if got.RemoteMessageID != "remote-123" {
		t.Fatalf("expected RemoteMessageID %q, got %q", "remote-123", got.RemoteMessageID)
	}
	if !got.SentAt.Equal(sentAt) {
		t.Fatalf("expected SentAt %v, got %v", sentAt, got.SentAt)
	}
}

func TestRedisCache_LookupSent(t *testing.T) {
	t.Parallel()

	_, rdb := newTestRedis(t)
	cache := NewRedisCache(rdb, time.Minute)
	ctx := context.Background()

	if _, ok, err := cache.LookupSent(ctx, "c1", model.ChannelSMS); err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}

	sentAt := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	if err := cache.StoreSent(ctx, "c1", model.ChannelSMS, "m-1", sentAt); err != nil {
		t.Fatalf("StoreSent() error: %v", err)
	}

	rec, ok, err := cache.LookupSent(ctx, "c1", model.ChannelSMS)
	if err != nil {
		t.Fatalf("LookupSent() error: %v", err)
	}
	if !ok {
		t.Fatalf("expected hit")
	}
	if rec.RemoteMessageID != "m-1" || !rec.SentAt.Equal(sentAt) {
		t.Fatalf("unexpected record %+v", rec)
	}

	// Channels are tracked separately.
	if _, ok, _ := cache.LookupSent(ctx, "c1", model.ChannelEmail); ok {
		t.Fatalf("did not expect email hit")
	}
}

func TestRedisCache_LookupSent_CorruptValue(t *testing.T) {
	t.Parallel()

	mr, rdb := newTestRedis(t)
	cache := NewRedisCache(rdb, time.Minute)

	if err := mr.Set("loyalty:sent:SMS:c1", "not json"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if _, _, err := cache.LookupSent(context.Background(), "c1", model.ChannelSMS); err == nil {
		t.Fatalf("expected decode error, got nil")
	}
}

func TestRedisCache_StoreSent_ContextCanceled(t *testing.T) {
	t.Parallel()

	_, rdb := newTestRedis(t)
	cache := NewRedisCache(rdb, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := cache.StoreSent(ctx, "c1", model.ChannelEmail, "x", time.Now())
	if err == nil {
		t.Fatalf("expected error due to canceled context, got nil")
	}
}

func TestRedisLock_AcquireRelease(t *testing.T) {
	t.Parallel()

	mr, rdb := newTestRedis(t)
	ctx := context.Background()

	a := NewRedisLock(rdb, "sheet-1/Sheet1", time.Minute)
	b := NewRedisLock(rdb, "sheet-1/Sheet1", time.Minute)

	if err := a.Acquire(ctx, "run-a"); err != nil {
		t.Fatalf("first Acquire() error: %v", err)
	}
	if ttl := mr.TTL("loyalty:lock:sheet-1/Sheet1"); ttl <= 0 {
		t.Fatalf("expected lock TTL, got %v", ttl)
	}

	if err := b.Acquire(ctx, "run-b"); !errors.Is(err, ErrLockHeld) {
		t.Fatalf("expected ErrLockHeld, got %v", err)
	}

	// A non-owner release must not free the lock.
	if err := b.Release(ctx, "run-b"); err != nil {
		t.Fatalf("Release() by non-owner error: %v", err)
	}
	if !mr.Exists("loyalty:lock:sheet-1/Sheet1") {
		t.Fatalf("expected lock to survive non-owner release")
	}

	if err := a.Release(ctx, "run-a"); err != nil {
		t.Fatalf("Release() error: %v", err)
	}
	if err := b.Acquire(ctx, "run-b"); err != nil {
		t.Fatalf("Acquire() after release error: %v", err)
	}
}

func TestRedisLock_ExpiresAfterTTL(t *testing.T) {
	t.Parallel()

	mr, rdb := newTestRedis(t)
	ctx := context.Background()

	lock := NewRedisLock(rdb, "s", time.Second)
	if err := lock.Acquire(ctx, "crashed-run"); err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}

	mr.FastForward(2 * time.Second)

	if err := lock.Acquire(ctx, "next-run"); err != nil {
		t.Fatalf("expected lock free after TTL, got %v", err)
	}
}

func TestNop(t *testing.T) {
	var n Nop
	ctx := context.Background()

	if err := n.StoreSent(ctx, "c", model.ChannelSMS, "", time.Now()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok, err := n.LookupSent(ctx, "c", model.ChannelSMS); ok || err != nil {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}
	if err := n.Acquire(ctx, "x"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := n.Release(ctx, "x"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
