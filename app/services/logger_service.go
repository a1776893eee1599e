package services

import (
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"PosPrint/app/config"
)

// LoggerService handles application logging
type LoggerService struct {
	logDir string
	logger *zap.Logger
	sugar  *zap.SugaredLogger
	file   *lumberjack.Logger
}

// NewLoggerService builds a logger writing to stdout and, when a log
// directory is configured, to a rotated file. The stdlib log package is
// redirected to it.
func NewLoggerService(cfg config.LogConfig, name string) *LoggerService {
	level := zap.NewAtomicLevel()
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level.SetLevel(zap.DebugLevel)
	case "warn", "warning":
		level.SetLevel(zap.WarnLevel)
	case "error":
		level.SetLevel(zap.ErrorLevel)
	default:
		level.SetLevel(zap.InfoLevel)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	if cfg.Development {
		encCfg = zap.NewDevelopmentEncoderConfig()
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	var encoder zapcore.Encoder
	if strings.ToLower(cfg.Format) == "json" {
		encoder = zapcore.NewJSONEncoder(encCfg)
	} else {
		encoder = zapcore.NewConsoleEncoder(encCfg)
	}

	s := &LoggerService{}
	cores := []zapcore.Core{zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), level)}

	if cfg.Dir != "" {
		if err := os.MkdirAll(cfg.Dir, 0755); err == nil {
			s.logDir = cfg.Dir
			s.file = &lumberjack.Logger{
				Filename:   filepath.Join(cfg.Dir, name+".log"),
				MaxSize:    atLeast(cfg.MaxSizeMB, 10),
				MaxBackups: atLeast(cfg.MaxBackups, 1),
				MaxAge:     atLeast(cfg.MaxAgeDays, 7),
				Compress:   cfg.Compress,
				LocalTime:  true,
			}
			// files never get color codes
			fileEnc := zap.NewProductionEncoderConfig()
			fileEnc.EncodeTime = zapcore.ISO8601TimeEncoder
			cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(fileEnc), zapcore.AddSync(s.file), level))
		}
	}

	opts := []zap.Option{zap.AddCaller(), zap.AddCallerSkip(1), zap.AddStacktrace(zap.ErrorLevel)}
	if cfg.Development {
		opts = append(opts, zap.Development())
	}
	s.logger = zap.New(zapcore.NewTee(cores...), opts...).Named(name)
	s.sugar = s.logger.Sugar()

	zap.ReplaceGlobals(s.logger)
	_, _ = zap.RedirectStdLogAt(s.logger, zap.InfoLevel)

	if s.logDir != "" {
		s.LogInfo("Logger initialized", "Log directory: "+s.logDir)
	}
	return s
}

// NewNopLogger returns a logger that discards everything, for tests
func NewNopLogger() *LoggerService {
	l := zap.NewNop()
	return &LoggerService{logger: l, sugar: l.Sugar()}
}

func atLeast(v, min int) int {
	if v > min {
		return v
	}
	return min
}

func detailField(details []string) []zap.Field {
	if len(details) == 0 || details[0] == "" {
		return nil
	}
	return []zap.Field{zap.String("details", details[0])}
}

// LogInfo logs an informational message
func (s *LoggerService) LogInfo(message string, details ...string) {
	s.logger.Info(message, detailField(details)...)
}

// LogWarning logs a warning message
func (s *LoggerService) LogWarning(message string, details ...string) {
	s.logger.Warn(message, detailField(details)...)
}

// LogError logs an error message
func (s *LoggerService) LogError(message string, err error, details ...string) {
	fields := detailField(details)
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	s.logger.Error(message, fields...)
}

// LogDebug logs at debug level with structured key/value pairs
func (s *LoggerService) LogDebug(message string, keysAndValues ...interface{}) {
	s.sugar.Debugw(message, keysAndValues...)
}

// LogFatal logs a fatal error and exits
func (s *LoggerService) LogFatal(message string, err error) {
	s.logger.Fatal(message, zap.Error(err))
}

// LogPanic logs a recovered panic with stack trace
func (s *LoggerService) LogPanic(recovered interface{}) {
	s.logger.Error("Recovered from panic",
		zap.Any("panic", recovered),
		zap.ByteString("stack", debug.Stack()))
}

// RecoverPanic is a helper to recover from panics in goroutines
func (s *LoggerService) RecoverPanic() {
	if r := recover(); r != nil {
		s.LogPanic(r)
	}
}

// With returns a child logger carrying fields on every entry
func (s *LoggerService) With(fields ...zap.Field) *LoggerService {
	l := s.logger.With(fields...)
	return &LoggerService{logDir: s.logDir, logger: l, sugar: l.Sugar(), file: s.file}
}

// Zap exposes the underlying logger
func (s *LoggerService) Zap() *zap.Logger {
	return s.logger
}

// GetLogDirectory returns the directory where logs are stored
func (s *LoggerService) GetLogDirectory() string {
	return s.logDir
}

// Close flushes buffered entries and closes the log file
func (s *LoggerService) Close() {
	_ = s.logger.Sync()
	if s.file != nil {
		_ = s.file.Close()
	}
}
