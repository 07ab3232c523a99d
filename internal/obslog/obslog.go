package obslog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// process-wide logger; console and file outputs are teed.
var (
	globalLogger *zap.Logger = zap.NewNop()
)

// L returns the global logger.
func L() *zap.Logger { return globalLogger }

// Config selects outputs and encoding. Format is legacy, console or json.
type Config struct {
	Level   string `yaml:"level"`
	Console bool   `yaml:"console"`
	ToFile  bool   `yaml:"to_file"`
	File    string `yaml:"file"`
	Format  string `yaml:"format" validate:"omitempty,oneof=legacy console json"`
	Caller  bool   `yaml:"caller"`
}

// DefaultConfig logs to a file only, so the interactive console stays readable.
func DefaultConfig() Config {
	return Config{
		Level:  "info",
		ToFile: true,
		File:   filepath.Join("logs", "chess-client.log"),
		Format: "legacy",
	}
}

// Init builds a logger from cfg and installs it as the global logger.
func Init(cfg Config) error {
	logger, err := New(cfg)
	if err != nil {
		return err
	}
	globalLogger = logger
	return nil
}

// InitFromEnv applies LOG_* variables over DefaultConfig.
func InitFromEnv() error {
	return Init(ApplyEnv(DefaultConfig(), os.Getenv))
}

// ApplyEnv overrides cfg with LOG_LEVEL, LOG_TO_CONSOLE, LOG_TO_FILE, LOG_FILE,
// LOG_FORMAT and LOG_CALLER when set.
func ApplyEnv(cfg Config, getenv func(string) string) Config {
	if v := strings.TrimSpace(getenv("LOG_LEVEL")); v != "" {
		cfg.Level = v
	}
	if v := strings.TrimSpace(getenv("LOG_TO_CONSOLE")); v != "" {
		cfg.Console = strings.EqualFold(v, "true")
	}
	if v := strings.TrimSpace(getenv("LOG_TO_FILE")); v != "" {
		cfg.ToFile = strings.EqualFold(v, "true")
	}
	if v := strings.TrimSpace(getenv("LOG_FILE")); v != "" {
		cfg.File = v
	}
	if v := strings.TrimSpace(getenv("LOG_FORMAT")); v != "" {
		cfg.Format = strings.ToLower(v)
	}
	if v := strings.TrimSpace(getenv("LOG_CALLER")); v != "" {
		cfg.Caller = strings.EqualFold(v, "true")
	}
	return cfg
}

// New builds a logger without touching the global one.
func New(cfg Config) (*zap.Logger, error) {
	level := parseLevel(cfg.Level)
	format := strings.ToLower(strings.TrimSpace(cfg.Format))
	if format != "legacy" && format != "json" && format != "console" {
		format = "legacy"
	}
	var cores []zapcore.Core

	if cfg.Console {
		cores = append(cores, zapcore.NewCore(encoderFor(format), zapcore.AddSync(os.Stdout), level))
	}

	if cfg.ToFile {
		filePath := strings.TrimSpace(cfg.File)
		if filePath == "" {
			filePath = DefaultConfig().File
		}
		if err := ensureDir(filepath.Dir(filePath)); err != nil {
			return nil, err
		}
		f, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		cores = append(cores, zapcore.NewCore(encoderFor(format), zapcore.AddSync(f), level))
	}

	if len(cores) == 0 {
		enc := zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
		cores = append(cores, zapcore.NewCore(enc, zapcore.AddSync(os.Stderr), level))
	}

	logger := zap.New(zapcore.NewTee(cores...))
	if cfg.Caller || format == "legacy" {
		logger = logger.WithOptions(zap.AddCaller())
	}
	logger = logger.WithOptions(zap.AddStacktrace(zapcore.ErrorLevel))
	return logger, nil
}

func encoderFor(format string) zapcore.Encoder {
	switch format {
	case "json":
		return zapcore.NewJSONEncoder(jsonEncoderConfig())
	case "console":
		return zapcore.NewConsoleEncoder(consoleEncoderConfig(false))
	default:
		return zapcore.NewConsoleEncoder(legacyEncoderConfig())
	}
}

func ensureDir(dir string) error {
	if strings.TrimSpace(dir) == "" || dir == "." {
		return nil
	}
	if _, err := os.Stat(dir); err == nil {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func parseLevel(s string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "dpanic":
		return zapcore.DPanicLevel
	case "panic":
		return zapcore.PanicLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// encoder configs
func legacyEncoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	cfg.ConsoleSeparator = " | "
	return cfg
}

func consoleEncoderConfig(color bool) zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	if color {
		cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	}
	return cfg
}

func jsonEncoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeLevel = zapcore.LowercaseLevelEncoder
	return cfg
}
