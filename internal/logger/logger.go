// Package logger provides the process-wide slog logger: a readable console
// handler on stderr plus an optional JSONL file, both passed through
// redaction so keys and book text never reach a log.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"sync/atomic"

	"golang.org/x/term"
)

const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

const redacted = "[REDACTED]"

var (
	current    atomic.Pointer[slog.Logger]
	isTerminal = term.IsTerminal
)

// Attribute keys that carry credentials or book content.
var sensitiveKeys = map[string]bool{
	"access_token":       true,
	"api_key":            true,
	"authorization":      true,
	"markup":             true,
	"prompt":             true,
	"request":            true,
	"response":           true,
	"segment":            true,
	"segments":           true,
	"system_instruction": true,
	"translation":        true,
}

var sensitiveKeySubstrings = []string{
	"apikey",
	"api_key",
	"secret",
	"password",
	"bearer",
	"body",
	"text",
}

var sensitiveValuePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bsk-[A-Za-z0-9_-]{10,}\b`),
	regexp.MustCompile(`\bAIza[0-9A-Za-z\-_]{10,}\b`),
	regexp.MustCompile(`(?i)\bbearer\s+[A-Za-z0-9\-._~+/]+=*`),
	regexp.MustCompile(`(?i)\b(api[_-]?key|access[_-]?token|secret)\b\s*[:=]\s*\S+`),
}

// RedactAttr is a slog.ReplaceAttr that hides sensitive values.
func RedactAttr(_ []string, a slog.Attr) slog.Attr {
	if shouldRedact(a) {
		return slog.String(a.Key, redacted)
	}
	return a
}

func shouldRedact(a slog.Attr) bool {
	key := strings.ToLower(a.Key)
	if sensitiveKeys[key] {
		return true
	}
	for _, sub := range sensitiveKeySubstrings {
		if strings.Contains(key, sub) {
			return true
		}
	}
	if a.Value.Kind() == slog.KindGroup {
		return false
	}
	value := a.Value.String()
	if a.Value.Kind() == slog.KindAny {
		value = fmt.Sprint(a.Value.Any())
	}
	for _, re := range sensitiveValuePatterns {
		if re.MatchString(value) {
			return true
		}
	}
	return false
}

func init() {
	Init(LevelInfo, nil)
}

// Init replaces the global logger. When logFile is set every record is also
// written to it as JSON and console colors are turned off.
func Init(level slog.Level, logFile io.Writer) {
	opts := &slog.HandlerOptions{Level: level, ReplaceAttr: RedactAttr}
	useColor := logFile == nil && isTerminal(int(os.Stderr.Fd()))

	var handler slog.Handler = NewPrettyHandler(os.Stderr, opts, useColor)
	if logFile != nil {
		handler = fanout{handler, slog.NewJSONHandler(logFile, opts)}
	}
	l := slog.New(handler)
	current.Store(l)
	slog.SetDefault(l)
}

// With returns the global logger carrying args on every record.
func With(args ...any) *slog.Logger { return current.Load().With(args...) }

func Debug(msg string, args ...any) { current.Load().Debug(msg, args...) }
func Info(msg string, args ...any)  { current.Load().Info(msg, args...) }
func Warn(msg string, args ...any)  { current.Load().Warn(msg, args...) }
func Error(msg string, args ...any) { current.Load().Error(msg, args...) }
