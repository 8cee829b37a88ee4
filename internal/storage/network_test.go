package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	logx "bonfire/pkg/logx"
)

func TestRedisContract(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	url := os.Getenv("BONFIRE_TEST_REDIS_URL")
	if url == "" {
		t.Skip("BONFIRE_TEST_REDIS_URL not set")
	}

	st, err := Open(Config{Driver: "redis", Redis: RedisConfig{URL: url, Prefix: "bonfire-test"}}, logx.Nop())
	require.NoError(t, err)
	defer st.Close()

	ns := "contract" + time.Now().Format("150405000")
	runStoreContract(t, st, ns)

	ctx := context.Background()
	for _, k := range []string{"a", "c"} {
		require.NoError(t, st.Delete(ctx, Join(ns, k)))
	}
}

func TestPostgresContract(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	dsn := os.Getenv("BONFIRE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("BONFIRE_TEST_POSTGRES_DSN not set")
	}

	st, err := Open(Config{Driver: "postgres", DSN: dsn}, logx.Nop())
	require.NoError(t, err)
	defer st.Close()

	ns := "contract" + time.Now().Format("150405000")
	runStoreContract(t, st, ns)

	ctx := context.Background()
	for _, k := range []string{"a", "c"} {
		require.NoError(t, st.Delete(ctx, Join(ns, k)))
	}
}
