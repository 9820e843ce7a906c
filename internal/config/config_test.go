package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_YAML(t *testing.T) {
	path := writeConfig(t, `
grpc:
  addr: ":6000"
store:
  driver: postgres
  sql:
    host: db
    db_name: ledger
retry:
  max_attempts: 3
  base_delay: 5ms
  max_delay: 100ms
kafka:
  enabled: true
  brokers: [k1:9092, k2:9092]
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":6000", cfg.GRPC.Addr)
	assert.Equal(t, DriverPostgres, cfg.Store.Driver)
	assert.Equal(t, DriverPostgres, cfg.Store.SQL.Driver)
	assert.Equal(t, "db", cfg.Store.SQL.Host)
	// 沒寫的欄位保留預設值
	assert.Equal(t, 100, cfg.Store.SQL.MaxOpenConns)
	assert.Equal(t, "ledger.events", cfg.Kafka.Topic)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)

	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 5*time.Millisecond, cfg.Retry.BaseDelay)
	assert.Equal(t, 100*time.Millisecond, cfg.Retry.MaxDelay)
	assert.Equal(t, uint64(50), cfg.Retry.JitterPercent)
}

// 專案內附的設定檔切換 driver 時，埠號要跟著 driver 走
func TestLoad_ShippedConfigPortFollowsDriver(t *testing.T) {
	path := filepath.Join("..", "..", "config", "config.yaml")

	t.Setenv("LEDGER_STORE_DRIVER", DriverPostgres)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.Store.SQL.Port)
	assert.Contains(t, cfg.Store.SQL.DSN(), "port=5432")

	t.Setenv("LEDGER_STORE_DRIVER", DriverMySQL)
	cfg, err = Load(path)
	require.NoError(t, err)
	assert.Contains(t, cfg.Store.SQL.DSN(), "tcp(localhost:3306)")

	t.Setenv("LEDGER_SQL_PORT", "6543")
	t.Setenv("LEDGER_STORE_DRIVER", DriverPostgres)
	cfg, err = Load(path)
	require.NoError(t, err)
	assert.Contains(t, cfg.Store.SQL.DSN(), "port=6543")
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, "store:\n  driver: memory\n")
	t.Setenv("LEDGER_STORE_DRIVER", "redis")
	t.Setenv("LEDGER_REDIS_ADDRS", "r1:6379, r2:6379")
	t.Setenv("LEDGER_RETRY_MAX_ATTEMPTS", "7")
	t.Setenv("LEDGER_RETRY_MAX_DELAY", "2s")
	t.Setenv("LEDGER_NATS_ENABLED", "true")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DriverRedis, cfg.Store.Driver)
	assert.Equal(t, []string{"r1:6379", "r2:6379"}, cfg.Store.Redis.Addrs)
	assert.Equal(t, 7, cfg.Retry.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.Retry.MaxDelay)
	assert.True(t, cfg.NATS.Enabled)
}

func TestLoad_Errors(t *testing.T) {
	t.Run("missing explicit file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("unknown driver", func(t *testing.T) {
		_, err := Load(writeConfig(t, "store:\n  driver: cassandra\n"))
		assert.ErrorContains(t, err, "unknown store.driver")
	})

	t.Run("bad env value", func(t *testing.T) {
		t.Setenv("LEDGER_RETRY_MAX_ATTEMPTS", "many")
		_, err := Load(writeConfig(t, "store:\n  driver: memory\n"))
		assert.ErrorContains(t, err, "LEDGER_RETRY_MAX_ATTEMPTS")
	})
}

func TestValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	cfg.Retry.MaxAttempts = 0
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Retry.MaxDelay = cfg.Retry.BaseDelay / 2
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Store.Driver = DriverMySQL
	assert.Error(t, cfg.Validate(), "sql host/db_name missing")

	cfg = Default()
	cfg.Kafka.Enabled = true
	cfg.Kafka.Topic = ""
	assert.Error(t, cfg.Validate())
}
