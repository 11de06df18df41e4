package testutil

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisCandidates are tried in order when REDIS_ADDR is unset.
var redisCandidates = []string{"localhost:56379", "localhost:6379", "redis:6379"}

// SetupTestRedis returns a client on an emptied logical database of the first
// reachable Redis. Parallel packages reserve different databases through a
// lock key in DB 0. The caller closes the client. The test is skipped when no
// Redis answers, unless TEST_REQUIRE_REDIS or TEST_REQUIRE_INFRA is set.
func SetupTestRedis(t testing.TB) *redis.Client {
	t.Helper()
	addr, ok := findRedis()
	if !ok {
		skipOrFail(t, envBool("TEST_REQUIRE_REDIS"), "redis not available for testing")
	}

	client := redis.NewClient(&redis.Options{Addr: addr, DB: reserveRedisDB(t, addr)})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.FlushDB(ctx).Err(); err != nil {
		_ = client.Close()
		skipOrFail(t, envBool("TEST_REQUIRE_REDIS"), "redis at %s not usable: %v", addr, err)
	}
	return client
}

func findRedis() (string, bool) {
	candidates := redisCandidates
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		candidates = []string{addr}
	}
	for _, addr := range candidates {
		if pingRedis(addr) {
			return addr, true
		}
	}
	return "", false
}

func pingRedis(addr string) bool {
	c := redis.NewClient(&redis.Options{Addr: addr})
	defer c.Close()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return c.Ping(ctx).Err() == nil
}

// reserveRedisDB picks TEST_REDIS_DB when set, otherwise the first of DBs
// 1..15 whose lock it can take. The lock is released on cleanup.
func reserveRedisDB(t testing.TB, addr string) int {
	t.Helper()
	if v := os.Getenv("TEST_REDIS_DB"); v != "" {
		if i, err := strconv.Atoi(v); err == nil && i >= 0 {
			return i
		}
		t.Logf("ignoring invalid TEST_REDIS_DB=%q", v)
	}

	meta := redis.NewClient(&redis.Options{Addr: addr, DB: 0})
	for i := 1; i <= 15; i++ {
		key := fmt.Sprintf("accountdesk:testutil:db_lock:%d", i)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		ok, err := meta.SetNX(ctx, key, os.Getpid(), 30*time.Minute).Result()
		cancel()
		if err != nil || !ok {
			continue
		}
		t.Cleanup(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := meta.Del(ctx, key).Err(); err != nil {
				t.Logf("release redis db lock %s: %v", key, err)
			}
			_ = meta.Close()
		})
		return i
	}
	_ = meta.Close()
	return 1
}
