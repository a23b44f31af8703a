package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	levelVar slog.LevelVar
	mu       sync.RWMutex
	format   = "text"
	out      io.Writer = os.Stdout
	root     *slog.Logger
)

func init() {
	levelVar.Set(slog.LevelInfo)
	root = build(out, format)
}

func build(w io.Writer, f string) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	opts := &slog.HandlerOptions{Level: &levelVar}
	if f == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// SetOutput 替换日志输出目标，已有 With 派生的 logger 不受影响。
func SetOutput(w io.Writer) {
	mu.Lock()
	out = w
	root = build(out, format)
	mu.Unlock()
}

// SetFormat switches between "text" (default) and "json" handlers.
func SetFormat(f string) {
	f = strings.ToLower(strings.TrimSpace(f))
	if f != "json" {
		f = "text"
	}
	mu.Lock()
	format = f
	root = build(out, format)
	mu.Unlock()
}

func SetLevel(level string) {
	levelVar.Set(ParseLevel(level))
}

func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func L() *slog.Logger {
	mu.RLock()
	l := root
	mu.RUnlock()
	return l
}

// With returns a structured logger carrying the given attributes, e.g.
// logger.With("component", "monitor", "tick", id).
func With(args ...any) *slog.Logger {
	return L().With(args...)
}

func Debugf(format string, v ...any) {
	L().Debug(fmt.Sprintf(format, v...))
}

func Infof(format string, v ...any) {
	L().Info(fmt.Sprintf(format, v...))
}

func Warnf(format string, v ...any) {
	L().Warn(fmt.Sprintf(format, v...))
}

func Errorf(format string, v ...any) {
	L().Error(fmt.Sprintf(format, v...))
}
