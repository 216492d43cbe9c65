package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"sgi/internal/config"
)

// ANSI色コード
const (
	colorReset  = "\033[0m"
	colorDim    = "\033[2m"
	colorBright = "\033[1m"
	colorCyan   = "\033[36m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorRed    = "\033[31m"
)

var levelColors = map[slog.Level]string{
	slog.LevelDebug: colorCyan,
	slog.LevelInfo:  colorGreen,
	slog.LevelWarn:  colorYellow,
	slog.LevelError: colorRed,
}

// consoleHandler はANSI色付きのコンソール出力ハンドラ。
type consoleHandler struct {
	level slog.Level
	mu    sync.Mutex
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *consoleHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	timestamp := r.Time.Format(time.RFC3339)
	color := levelColors[r.Level]
	levelStr := strings.ToUpper(r.Level.String())
	// 5文字にパディング
	for len(levelStr) < 5 {
		levelStr += " "
	}

	var attrs strings.Builder
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == "error" {
			fmt.Fprintf(&attrs, " %sError: %s%s", colorRed, a.Value.String(), colorReset)
		} else {
			fmt.Fprintf(&attrs, " %s=%s", a.Key, a.Value.String())
		}
		return true
	})

	line := fmt.Sprintf("%s[%s]%s %s%s%s %s%s%s",
		colorDim, timestamp, colorReset,
		color, levelStr, colorReset,
		colorBright, r.Message, colorReset,
	)
	if attrs.Len() > 0 {
		line += attrs.String()
	}

	if r.Level >= slog.LevelWarn {
		_, _ = fmt.Fprintln(os.Stderr, line)
	} else {
		_, _ = fmt.Fprintln(os.Stdout, line)
	}

	return nil
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	return h
}

// fileHandler はJSON形式のファイル出力ハンドラ。日付ごとにファイルを分ける。
type fileHandler struct {
	level   slog.Level
	logDir  string
	mu      sync.Mutex
	ensured bool
}

// ensureDir はログディレクトリを確保する。
func (h *fileHandler) ensureDir() {
	if h.ensured {
		return
	}
	if err := os.MkdirAll(h.logDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create log directory: %v\n", err)
	}
	h.ensured = true
}

func (h *fileHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *fileHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ensureDir()

	entry := map[string]any{
		"timestamp": r.Time.Format(time.RFC3339),
		"level":     strings.ToLower(r.Level.String()),
		"message":   r.Message,
	}

	metadata := make(map[string]any)
	r.Attrs(func(a slog.Attr) bool {
		metadata[a.Key] = a.Value.Any()
		return true
	})
	if len(metadata) > 0 {
		entry["metadata"] = metadata
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	logLine := string(data) + "\n"

	dateStr := r.Time.Format("2006-01-02")
	h.appendToFile(filepath.Join(h.logDir, "sgi-"+dateStr+".log"), logLine)

	if r.Level >= slog.LevelError {
		h.appendToFile(filepath.Join(h.logDir, "sgi-error-"+dateStr+".log"), logLine)
	}

	return nil
}

func (h *fileHandler) appendToFile(path, line string) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write log to %s: %v\n", path, err)
		return
	}
	defer func() { _ = f.Close() }()
	_, _ = f.WriteString(line)
}

func (h *fileHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h
}

func (h *fileHandler) WithGroup(name string) slog.Handler {
	return h
}

// multiHandler は複数のslog.Handlerに同時出力する。
type multiHandler struct {
	handlers []slog.Handler
}

func (m *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, h := range m.handlers {
		if h.Enabled(ctx, r.Level) {
			if err := h.Handle(ctx, r); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		handlers[i] = h.WithAttrs(attrs)
	}
	return &multiHandler{handlers: handlers}
}

func (m *multiHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		handlers[i] = h.WithGroup(name)
	}
	return &multiHandler{handlers: handlers}
}

// parseSlogLevel はログレベル文字列をslog.Levelに変換する。
func parseSlogLevel(level string) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogInfo:
		return slog.LevelInfo
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// setupLogger はslogのグローバルロガーをセットアップする。
func setupLogger(level string) {
	slogLevel := parseSlogLevel(level)

	handler := &multiHandler{
		handlers: []slog.Handler{
			&consoleHandler{level: slogLevel},
			&fileHandler{level: slogLevel, logDir: "./logs"},
		},
	}

	slog.SetDefault(slog.New(handler))
}
