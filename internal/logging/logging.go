// Package logging はスコープ別のレベル付きロガーを提供する
package logging

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/pion/logging"
)

var (
	mu            sync.Mutex
	loggerFactory = newFactory(os.Stderr, levelFromEnv())
)

// Logger は各コンポーネントが使うロガー
type Logger = logging.LeveledLogger

// NewLogger は指定スコープのロガーを返す
func NewLogger(scope string) Logger {
	mu.Lock()
	defer mu.Unlock()
	return loggerFactory.NewLogger(scope)
}

// Configure は出力先とレベルを差し替える。以降に作られるロガーにのみ反映される
func Configure(w io.Writer, level string) {
	mu.Lock()
	defer mu.Unlock()
	loggerFactory = newFactory(w, ParseLevel(level))
}

// Discard はテスト用に何も出力しないロガーを返す
func Discard(scope string) Logger {
	return newFactory(io.Discard, logging.LogLevelDisabled).NewLogger(scope)
}

// ParseLevel はレベル名を変換する。不明な値はinfo扱い
func ParseLevel(level string) logging.LogLevel {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "disabled", "off":
		return logging.LogLevelDisabled
	case "error":
		return logging.LogLevelError
	case "warn", "warning":
		return logging.LogLevelWarn
	case "debug":
		return logging.LogLevelDebug
	case "trace":
		return logging.LogLevelTrace
	default:
		return logging.LogLevelInfo
	}
}

func newFactory(w io.Writer, level logging.LogLevel) *logging.DefaultLoggerFactory {
	factory := logging.NewDefaultLoggerFactory()
	factory.Writer = w
	factory.DefaultLogLevel = level
	return factory
}

func levelFromEnv() logging.LogLevel {
	return ParseLevel(os.Getenv("DEPTHRIG_LOG_LEVEL"))
}
