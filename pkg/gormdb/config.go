package gormdb

import (
	"fmt"
	"time"
)

// 支援的資料庫
const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
)

// Config 定義資料庫連線與連線池的配置
type Config struct {
	Driver   string `yaml:"driver"`   // "mysql" 或 "postgres"
	Host     string `yaml:"host"`     // 資料庫主機地址
	Port     int    `yaml:"port"`     // 資料庫埠號 (mysql 預設 3306，postgres 預設 5432)
	User     string `yaml:"user"`     // 使用者名稱
	Password string `yaml:"password"` // 密碼
	DBName   string `yaml:"db_name"`  // 資料庫名稱
	SSLMode  string `yaml:"ssl_mode"` // 只有 postgres 使用

	// 連線池設定 (Connection Pool)
	// 參考: https://github.com/go-sql-driver/mysql#important-settings
	MaxOpenConns    int           `yaml:"max_open_conns"`    // 最大開啟連線數
	MaxIdleConns    int           `yaml:"max_idle_conns"`    // 最大閒置連線數
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"` // 連線最大存活時間

	// 連線重試
	ConnectRetries int           `yaml:"connect_retries"`
	RetryInterval  time.Duration `yaml:"retry_interval"`

	// GORM 設定
	LogLevel string `yaml:"log_level"` // Log 等級: "silent", "error", "warn", "info"
}

// DSN (Data Source Name) 產生連線字串
//
//	mysql:    user:password@tcp(host:port)/dbname?charset=utf8mb4&parseTime=True&loc=UTC
//	postgres: host=... port=... user=... password=... dbname=... sslmode=...
func (c *Config) DSN() string {
	switch c.Driver {
	case DriverPostgres:
		port := c.Port
		if port == 0 {
			port = 5432
		}
		sslMode := c.SSLMode
		if sslMode == "" {
			sslMode = "disable"
		}
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
			c.Host, port, c.User, c.Password, c.DBName, sslMode)
	default:
		port := c.Port
		if port == 0 {
			port = 3306
		}
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			c.User,
			c.Password,
			c.Host,
			port,
			c.DBName,
		)
	}
}

// Validate 檢查必要欄位
func (c *Config) Validate() error {
	if c.Driver != DriverMySQL && c.Driver != DriverPostgres {
		return fmt.Errorf("gormdb: unsupported driver %q", c.Driver)
	}
	if c.Host == "" || c.DBName == "" {
		return fmt.Errorf("gormdb: host and db_name are required")
	}
	return nil
}
