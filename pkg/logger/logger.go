package logger

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config 日誌設定
type Config struct {
	Level    string `yaml:"level"`    // debug / info / warn / error
	Encoding string `yaml:"encoding"` // json / console
}

// New 依設定建立 zap.Logger
//
// json 使用 Production 設定 (適合收集到 ELK / Loki)，console 使用 Development 設定 (本機開發)。
func New(cfg Config) (*zap.Logger, error) {
	var zcfg zap.Config
	switch strings.ToLower(strings.TrimSpace(cfg.Encoding)) {
	case "", "json":
		zcfg = zap.NewProductionConfig()
	case "console":
		zcfg = zap.NewDevelopmentConfig()
	default:
		return nil, fmt.Errorf("logger: unknown encoding %q", cfg.Encoding)
	}

	if strings.TrimSpace(cfg.Level) != "" {
		var level zapcore.Level
		if err := level.Set(cfg.Level); err != nil {
			return nil, fmt.Errorf("logger: invalid level %q: %w", cfg.Level, err)
		}
		zcfg.Level = zap.NewAtomicLevelAt(level)
	}
	zcfg.EncoderConfig.TimeKey = "ts"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zcfg.DisableStacktrace = true

	return zcfg.Build()
}
