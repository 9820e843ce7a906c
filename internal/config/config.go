package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/JoeShih716/go-wallet-ledger/pkg/gormdb"
	"github.com/JoeShih716/go-wallet-ledger/pkg/logger"
)

// DefaultPath 預設設定檔位置
const DefaultPath = "config/config.yaml"

// Store drivers
const (
	DriverMemory   = "memory"
	DriverMySQL    = gormdb.DriverMySQL
	DriverPostgres = gormdb.DriverPostgres
	DriverRedis    = "redis"
)

type Config struct {
	Logger logger.Config `yaml:"logger"`
	GRPC   GRPCConfig    `yaml:"grpc"`
	Store  StoreConfig   `yaml:"store"`
	Retry  RetryConfig   `yaml:"retry"`
	NATS   NATSConfig    `yaml:"nats"`
	Kafka  KafkaConfig   `yaml:"kafka"`
}

type GRPCConfig struct {
	Addr string `yaml:"addr"`
}

type StoreConfig struct {
	Driver  string        `yaml:"driver"`   // memory / mysql / postgres / redis
	WALPath string        `yaml:"wal_path"` // memory 使用，空字串代表不持久化
	SQL     gormdb.Config `yaml:"sql"`
	Redis   RedisConfig   `yaml:"redis"`
}

type RedisConfig struct {
	Addrs    []string `yaml:"addrs"` // 多個地址時使用 Cluster
	Password string   `yaml:"password"`
	DB       int      `yaml:"db"`
}

type RetryConfig struct {
	MaxAttempts   int           `yaml:"max_attempts"`
	BaseDelay     time.Duration `yaml:"base_delay"`
	MaxDelay      time.Duration `yaml:"max_delay"`
	JitterPercent uint64        `yaml:"jitter_percent"`
}

type NATSConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
	Queue   string `yaml:"queue"`
}

type KafkaConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Brokers         []string      `yaml:"brokers"`
	Topic           string        `yaml:"topic"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	BreakerFailures uint32        `yaml:"breaker_failures"`
	BreakerTimeout  time.Duration `yaml:"breaker_timeout"`
	BufferSize      int           `yaml:"buffer_size"` // 非同步發布的輸送帶容量
}

// Default 預設值：記憶體儲存、不連 NATS / Kafka
func Default() *Config {
	return &Config{
		Logger: logger.Config{Level: "info", Encoding: "json"},
		GRPC:   GRPCConfig{Addr: ":50051"},
		Store: StoreConfig{
			Driver:  DriverMemory,
			WALPath: "wal.log",
			SQL: gormdb.Config{
				MaxOpenConns:    100,
				MaxIdleConns:    10,
				ConnMaxLifetime: 30 * time.Minute,
				LogLevel:        "error",
			},
			Redis: RedisConfig{Addrs: []string{"localhost:6379"}},
		},
		Retry: RetryConfig{
			MaxAttempts:   5,
			BaseDelay:     10 * time.Millisecond,
			MaxDelay:      500 * time.Millisecond,
			JitterPercent: 50,
		},
		NATS: NATSConfig{
			URL:     "nats://localhost:4222",
			Subject: "payments.confirmed",
			Queue:   "ledger_reconcile",
		},
		Kafka: KafkaConfig{
			Brokers:      []string{"localhost:9092"},
			Topic:        "ledger.events",
			WriteTimeout: 5 * time.Second,
			BufferSize:   1024,
		},
	}
}

// Load 載入設定：預設值 → YAML 檔 → .env / 環境變數 (LEDGER_*)
// path 為空時讀取 DefaultPath，檔案不存在時只使用預設值與環境變數
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if cfg.Store.Driver == DriverMySQL || cfg.Store.Driver == DriverPostgres {
		cfg.Store.SQL.Driver = cfg.Store.Driver
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 檢查設定
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverMemory:
	case DriverMySQL, DriverPostgres:
		if err := c.Store.SQL.Validate(); err != nil {
			return fmt.Errorf("config: store.sql: %w", err)
		}
	case DriverRedis:
		if len(c.Store.Redis.Addrs) == 0 {
			return fmt.Errorf("config: store.redis.addrs is required")
		}
	default:
		return fmt.Errorf("config: unknown store.driver %q (memory|mysql|postgres|redis)", c.Store.Driver)
	}

	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("config: retry.max_attempts must be >= 1")
	}
	if c.Retry.BaseDelay <= 0 || c.Retry.MaxDelay < c.Retry.BaseDelay {
		return fmt.Errorf("config: retry delays must satisfy 0 < base_delay <= max_delay")
	}
	if c.Retry.JitterPercent > 100 {
		return fmt.Errorf("config: retry.jitter_percent must be <= 100")
	}
	if c.GRPC.Addr == "" {
		return fmt.Errorf("config: grpc.addr is required")
	}
	if c.NATS.Enabled && c.NATS.URL == "" {
		return fmt.Errorf("config: nats.url is required when nats is enabled")
	}
	if c.Kafka.Enabled && (len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "") {
		return fmt.Errorf("config: kafka.brokers and kafka.topic are required when kafka is enabled")
	}
	return nil
}

func (c *Config) applyEnv() error {
	setString("LEDGER_LOG_LEVEL", &c.Logger.Level)
	setString("LEDGER_LOG_ENCODING", &c.Logger.Encoding)
	setString("LEDGER_GRPC_ADDR", &c.GRPC.Addr)

	setString("LEDGER_STORE_DRIVER", &c.Store.Driver)
	setString("LEDGER_WAL_PATH", &c.Store.WALPath)
	setString("LEDGER_SQL_HOST", &c.Store.SQL.Host)
	setString("LEDGER_SQL_USER", &c.Store.SQL.User)
	setString("LEDGER_SQL_PASSWORD", &c.Store.SQL.Password)
	setString("LEDGER_SQL_DB_NAME", &c.Store.SQL.DBName)
	setString("LEDGER_SQL_SSL_MODE", &c.Store.SQL.SSLMode)
	setList("LEDGER_REDIS_ADDRS", &c.Store.Redis.Addrs)
	setString("LEDGER_REDIS_PASSWORD", &c.Store.Redis.Password)

	setString("LEDGER_NATS_URL", &c.NATS.URL)
	setString("LEDGER_NATS_SUBJECT", &c.NATS.Subject)
	setList("LEDGER_KAFKA_BROKERS", &c.Kafka.Brokers)
	setString("LEDGER_KAFKA_TOPIC", &c.Kafka.Topic)

	var errs []error
	errs = append(errs,
		setInt("LEDGER_SQL_PORT", &c.Store.SQL.Port),
		setInt("LEDGER_REDIS_DB", &c.Store.Redis.DB),
		setInt("LEDGER_RETRY_MAX_ATTEMPTS", &c.Retry.MaxAttempts),
		setDuration("LEDGER_RETRY_BASE_DELAY", &c.Retry.BaseDelay),
		setDuration("LEDGER_RETRY_MAX_DELAY", &c.Retry.MaxDelay),
		setBool("LEDGER_NATS_ENABLED", &c.NATS.Enabled),
		setBool("LEDGER_KAFKA_ENABLED", &c.Kafka.Enabled),
	)
	return errors.Join(errs...)
}

func setString(key string, dst *string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setList(key string, dst *[]string) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	*dst = out
}

func setInt(key string, dst *int) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	*dst = n
	return nil
}

func setDuration(key string, dst *time.Duration) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	*dst = d
	return nil
}

func setBool(key string, dst *bool) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	*dst = b
	return nil
}
