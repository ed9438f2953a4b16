package redis

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/flagit/flagit-backend/pkg/config"
)

func TestCountRequestStartsWindowOnFirstRequest(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}

	for want := int64(1); want <= 3; want++ {
		count, err := client.CountRequest(ctx, "certification_status:member:m-1", time.Minute)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if count != want {
			t.Fatalf("expected counter %d got %d", want, count)
		}
	}
	if len(mock.expireCalls) != 1 {
		t.Fatalf("expected a single expire call, got %d", len(mock.expireCalls))
	}
	call := mock.expireCalls[0]
	if call.key != "flagit:rate_limit:certification_status:member:m-1" || call.ttl != time.Minute {
		t.Fatalf("unexpected expire call %+v", call)
	}
}

func TestCountRequestWithoutWindowNeverExpires(t *testing.T) {
	mock := newMockCmdable()
	client := &Client{store: mock}
	if _, err := client.CountRequest(context.Background(), "status", 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(mock.expireCalls) != 0 {
		t.Fatalf("expected no expire call")
	}
}

func TestCountRequestSurfacesIncrFailure(t *testing.T) {
	mock := newMockCmdable()
	mock.incrErr = errors.New("connection reset")
	client := &Client{store: mock}
	if _, err := client.CountRequest(context.Background(), "status", time.Minute); err == nil {
		t.Fatalf("expected incr failure to surface")
	}
}

func TestSubmissionFirstWriterWins(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}

	if _, found, err := client.LoadSubmission(ctx, "member-1|POST|/api/v1/certifications/s-1", "key-1"); err != nil || found {
		t.Fatalf("expected empty store, found=%v err=%v", found, err)
	}

	saved, err := client.SaveSubmission(ctx, "member-1|POST|/api/v1/certifications/s-1", "key-1", `{"status":201}`, time.Hour)
	if err != nil || !saved {
		t.Fatalf("expected first save to win, saved=%v err=%v", saved, err)
	}
	saved, err = client.SaveSubmission(ctx, "member-1|POST|/api/v1/certifications/s-1", "key-1", `{"status":200}`, time.Hour)
	if err != nil || saved {
		t.Fatalf("expected second save to lose, saved=%v err=%v", saved, err)
	}

	record, found, err := client.LoadSubmission(ctx, "member-1|POST|/api/v1/certifications/s-1", "key-1")
	if err != nil || !found {
		t.Fatalf("expected stored record, found=%v err=%v", found, err)
	}
	if record != `{"status":201}` {
		t.Fatalf("expected first record, got %s", record)
	}
	if _, ok := mock.data["flagit:submission:member-1|POST|/api/v1/certifications/s-1:key-1"]; !ok {
		t.Fatalf("unexpected key layout %v", mock.data)
	}
}

func TestLoadSubmissionSurfacesReadFailure(t *testing.T) {
	mock := newMockCmdable()
	mock.getErr = errors.New("i/o timeout")
	client := &Client{store: mock}
	if _, _, err := client.LoadSubmission(context.Background(), "scope", "key"); err == nil {
		t.Fatalf("expected read failure to surface")
	}
}

func TestUninitializedClientErrors(t *testing.T) {
	client := &Client{}
	ctx := context.Background()
	if err := client.Ping(ctx); !errors.Is(err, errNotInitialized) {
		t.Fatalf("expected ping to fail without a connection, got %v", err)
	}
	if _, _, err := client.LoadSubmission(ctx, "s", "k"); !errors.Is(err, errNotInitialized) {
		t.Fatalf("expected load to fail without a connection, got %v", err)
	}
	if _, err := client.CountRequest(ctx, "s", time.Second); !errors.Is(err, errNotInitialized) {
		t.Fatalf("expected count to fail without a connection, got %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("close without connection should be a no-op, got %v", err)
	}
}

func TestBuildKeyTrimsParts(t *testing.T) {
	client := &Client{}
	if got := client.buildKey(rateLimitPrefix, " status:member ", ""); got != "flagit:rate_limit:status:member" {
		t.Fatalf("unexpected key %s", got)
	}
}

func TestOptionsFromConfig(t *testing.T) {
	opts, err := optionsFromConfig(config.RedisConfig{URL: "redis://:secret@cache:6379/2", DB: 5, PoolSize: 20})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.Addr != "cache:6379" || opts.DB != 2 || opts.PoolSize != 20 || opts.Password != "secret" {
		t.Fatalf("unexpected options %+v", opts)
	}

	opts, err = optionsFromConfig(config.RedisConfig{Address: "localhost:6379", DB: 3})
	if err != nil || opts.Addr != "localhost:6379" || opts.DB != 3 {
		t.Fatalf("unexpected address options %+v err=%v", opts, err)
	}

	if _, err := optionsFromConfig(config.RedisConfig{}); err == nil {
		t.Fatalf("expected missing url and address to fail")
	}
}

type mockCmdable struct {
	data        map[string]string
	incr        map[string]int64
	expireCalls []expireCall
	getErr      error
	incrErr     error
}

type expireCall struct {
	key string
	ttl time.Duration
}

func newMockCmdable() *mockCmdable {
	return &mockCmdable{
		data: make(map[string]string),
		incr: make(map[string]int64),
	}
}

func (m *mockCmdable) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (m *mockCmdable) Get(_ context.Context, key string) *redis.StringCmd {
	if m.getErr != nil {
		return redis.NewStringResult("", m.getErr)
	}
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *mockCmdable) SetNX(_ context.Context, key string, value any, _ time.Duration) *redis.BoolCmd {
	if _, exists := m.data[key]; exists {
		return redis.NewBoolResult(false, nil)
	}
	m.data[key] = fmt.Sprint(value)
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) Incr(_ context.Context, key string) *redis.IntCmd {
	if m.incrErr != nil {
		return redis.NewIntResult(0, m.incrErr)
	}
	m.incr[key]++
	return redis.NewIntResult(m.incr[key], nil)
}

func (m *mockCmdable) Expire(_ context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	m.expireCalls = append(m.expireCalls, expireCall{key: key, ttl: expiration})
	return redis.NewBoolResult(true, nil)
}
