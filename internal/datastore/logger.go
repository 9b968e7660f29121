// Package datastore logging infrastructure for database operations
package datastore

import (
	"context"
	"log/slog"
	"sync"
	"time"

	gormlogger "gorm.io/gorm/logger"

	"github.com/radgrid/radreview-go/internal/logging"
)

// DefaultSlowQueryThreshold defines the duration after which a query is
// considered slow. 1 second accommodates worklist aggregations over large
// seeded datasets while still flagging queries that need an index.
const DefaultSlowQueryThreshold = 1 * time.Second

var (
	datastoreLogger   *slog.Logger
	datastoreLevelVar = new(slog.LevelVar)
	loggerCloseFunc   func() error
	loggerOnce        sync.Once
	loggerMu          sync.RWMutex
)

const defaultLogPath = "logs/datastore.log"

// InitializeLogger initializes the datastore file logger. Safe to call
// multiple times; initialization happens only once.
func InitializeLogger(logFilePath string) error {
	var initErr error
	loggerOnce.Do(func() {
		if logFilePath == "" {
			logFilePath = defaultLogPath
		}
		datastoreLevelVar.Set(slog.LevelInfo)

		logger, closeFunc, err := logging.NewFileLogger(logFilePath, "datastore", datastoreLevelVar)
		if err != nil {
			// Fall back to the process-wide logger rather than failing startup.
			loggerMu.Lock()
			datastoreLogger = logging.Structured().With("service", "datastore")
			loggerCloseFunc = func() error { return nil }
			loggerMu.Unlock()
			initErr = err
			return
		}
		loggerMu.Lock()
		datastoreLogger = logger
		loggerCloseFunc = closeFunc
		loggerMu.Unlock()
	})
	return initErr
}

// CloseLogger closes the datastore log file if one was opened.
func CloseLogger() error {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	if loggerCloseFunc != nil {
		return loggerCloseFunc()
	}
	return nil
}

func getLogger() *slog.Logger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	if datastoreLogger != nil {
		return datastoreLogger
	}
	return logging.Structured().With("service", "datastore")
}

// gormSlogLogger adapts the datastore slog logger to GORM's logger interface.
type gormSlogLogger struct {
	slowThreshold time.Duration
	level         gormlogger.LogLevel
}

// createGormLogger configures and returns a new GORM logger instance.
func createGormLogger() gormlogger.Interface {
	return &gormSlogLogger{
		slowThreshold: DefaultSlowQueryThreshold,
		level:         gormlogger.Warn,
	}
}

func (l *gormSlogLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	newLogger := *l
	newLogger.level = level
	return &newLogger
}

func (l *gormSlogLogger) Info(ctx context.Context, msg string, data ...any) {
	if l.level >= gormlogger.Info {
		getLogger().InfoContext(ctx, msg, "data", data)
	}
}

func (l *gormSlogLogger) Warn(ctx context.Context, msg string, data ...any) {
	if l.level >= gormlogger.Warn {
		getLogger().WarnContext(ctx, msg, "data", data)
	}
}

func (l *gormSlogLogger) Error(ctx context.Context, msg string, data ...any) {
	if l.level >= gormlogger.Error {
		getLogger().ErrorContext(ctx, msg, "data", data)
	}
}

func (l *gormSlogLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	switch {
	case err != nil && l.level >= gormlogger.Error:
		sql, rows := fc()
		getLogger().ErrorContext(ctx, "Query failed",
			"error", err, "sql", sql, "rows", rows, "elapsed", elapsed)
	case elapsed > l.slowThreshold && l.slowThreshold > 0 && l.level >= gormlogger.Warn:
		sql, rows := fc()
		getLogger().WarnContext(ctx, "Slow query",
			"sql", sql, "rows", rows, "elapsed", elapsed,
			"threshold", l.slowThreshold)
	case l.level >= gormlogger.Info:
		sql, rows := fc()
		getLogger().DebugContext(ctx, "Query", "sql", sql, "rows", rows, "elapsed", elapsed)
	}
}
