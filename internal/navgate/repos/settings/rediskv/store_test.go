package rediskv

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/gomodule/redigo/redis"
	"github.com/haukened/navgate/internal/navgate/repos/settings"
	"github.com/haukened/navgate/internal/navgate/repos/settings/settingstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testPortEnvVarName is the environment variable the presence and value of
// which define whether to run the integration tests and on which port Redis
// is listening.
const testPortEnvVarName = "TEST_REDIS_PORT"

const testDBIndex = 15

// newIntegrationStore returns a Store on a scratch database or skips the
// test. The database is flushed after the test.
func newIntegrationStore(tb testing.TB) *Store {
	tb.Helper()
	port := os.Getenv(testPortEnvVarName)
	if port == "" {
		tb.Skipf("skipping; %s is not set", testPortEnvVarName)
	}
	s := New(Config{Addr: "localhost:" + port, DB: testDBIndex, Prefix: "navgate-test:"})
	tb.Cleanup(func() {
		c := s.pool.Get()
		_, _ = c.Do("FLUSHDB")
		_ = c.Close()
		_ = s.Close()
	})
	return s
}

func TestStore_Backend(t *testing.T) {
	settingstest.RunBackendTests(t, newIntegrationStore(t))
}

func TestStore_KeysArePrefixed(t *testing.T) {
	s := newIntegrationStore(t)
	require.NoError(t, s.Set(context.Background(), settings.Record{"whitelist": json.RawMessage(`["a"]`)}))

	c := s.pool.Get()
	defer c.Close()
	v, err := redis.String(c.Do("GET", "navgate-test:whitelist"))
	require.NoError(t, err)
	assert.JSONEq(t, `["a"]`, v)
}

func TestStore_Unreachable(t *testing.T) {
	// nothing listens on port 1
	s := New(Config{Addr: "127.0.0.1:1", DialTimeout: 200 * time.Millisecond})
	t.Cleanup(func() { _ = s.Close() })

	_, err := s.Get(context.Background(), []string{"whitelist"})
	assert.ErrorIs(t, err, settings.ErrBackendUnavailable)
	err = s.Set(context.Background(), settings.Record{"whitelist": json.RawMessage(`[]`)})
	assert.ErrorIs(t, err, settings.ErrBackendUnavailable)
	assert.Equal(t, "redis", s.Name())
}
