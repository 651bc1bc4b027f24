package repositories

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/motioncourse/web/internal/models"
	"github.com/motioncourse/web/internal/session"
)

type fakeRedis struct {
	redis.Cmdable
	values map[string]string
	ttls   map[string]time.Duration
	err    error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{values: make(map[string]string), ttls: make(map[string]time.Duration)}
}

func (f *fakeRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(ctx)
	if f.err != nil {
		cmd.SetErr(f.err)
		return cmd
	}
	switch v := value.(type) {
	case []byte:
		f.values[key] = string(v)
	default:
		f.values[key] = fmt.Sprint(v)
	}
	f.ttls[key] = expiration
	cmd.SetVal("OK")
	return cmd
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	cmd := redis.NewStringCmd(ctx)
	if f.err != nil {
		cmd.SetErr(f.err)
		return cmd
	}
	value, ok := f.values[key]
	if !ok {
		cmd.SetErr(redis.Nil)
		return cmd
	}
	cmd.SetVal(value)
	return cmd
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	var removed int64
	for _, key := range keys {
		if _, ok := f.values[key]; ok {
			delete(f.values, key)
			removed++
		}
	}
	cmd.SetVal(removed)
	return cmd
}

func (f *fakeRedis) Ping(ctx context.Context) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(ctx)
	if f.err != nil {
		cmd.SetErr(f.err)
		return cmd
	}
	cmd.SetVal("PONG")
	return cmd
}

func TestRedisSessionStoreSaveLoadDelete(t *testing.T) {
	ctx := context.Background()
	client := newFakeRedis()
	store := NewRedisSessionStore(client, time.Hour)

	email := "alice@example.com"
	course := 7
	user := models.User{Username: "alice", Email: &email, Course: &course}

	if err := store.Save(ctx, "sid-1", user); err != nil {
		t.Fatalf("save: %v", err)
	}
	if got := client.ttls[redisKeyPrefix+"sid-1"]; got != time.Hour {
		t.Fatalf("expected ttl 1h got %s", got)
	}

	loaded, err := store.Load(ctx, "sid-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Username != "alice" || loaded.Email == nil || *loaded.Email != email || loaded.Course == nil || *loaded.Course != 7 {
		t.Fatalf("unexpected user: %+v", loaded)
	}

	if err := store.Delete(ctx, "sid-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Load(ctx, "sid-1"); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("expected ErrNotFound got %v", err)
	}
}

func TestRedisSessionStoreSurfacesErrors(t *testing.T) {
	ctx := context.Background()
	client := newFakeRedis()
	client.err = errors.New("connection refused")
	store := NewRedisSessionStore(client, 0)

	if err := store.Save(ctx, "sid", models.User{Username: "bob"}); err == nil {
		t.Fatal("expected save error")
	}
	if _, err := store.Load(ctx, "sid"); err == nil || errors.Is(err, session.ErrNotFound) {
		t.Fatalf("expected wrapped transport error got %v", err)
	}
	if err := store.Ping(ctx); err == nil {
		t.Fatal("expected ping error")
	}

	client.err = nil
	if err := store.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
}
