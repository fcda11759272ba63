package logging

import (
	"log/slog"
	"os"
	"strings"
	"sync"
)

const historySize = 500

// Logger is satisfied by *slog.Logger. Components take this instead of the
// concrete type so tests can pass their own.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config holds the [logging] table.
type Config struct {
	Level   string            `toml:"level"`
	Format  string            `toml:"format"`
	Modules map[string]string `toml:"modules"`
}

type registry struct {
	mu       sync.RWMutex
	cfg      Config
	ready    bool
	levels   map[string]*slog.LevelVar
	loggers  map[string]*slog.Logger
	root     slog.LevelVar
	history  *History
	listener func(Entry)
}

var reg = newRegistry()

func newRegistry() *registry {
	return &registry{
		levels:  make(map[string]*slog.LevelVar),
		loggers: make(map[string]*slog.Logger),
		history: NewHistory(historySize),
	}
}

// Initialize applies cfg to the default logger and every module logger
// created so far. It may be called again to apply a reloaded config.
func Initialize(cfg Config) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	reg.cfg = cfg
	reg.ready = true
	reg.root.Set(levelOr(cfg.Level, slog.LevelInfo))

	for module, lv := range reg.levels {
		lv.Set(reg.moduleLevel(module))
		reg.loggers[module] = slog.New(reg.handler(lv)).With("module", module)
	}
	slog.SetDefault(slog.New(reg.handler(&reg.root)))
}

// GetLogger returns the logger for module, creating it on first use.
func GetLogger(module string) *slog.Logger {
	reg.mu.RLock()
	l, ok := reg.loggers[module]
	reg.mu.RUnlock()
	if ok {
		return l
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()
	if l, ok := reg.loggers[module]; ok {
		return l
	}

	lv := &slog.LevelVar{}
	lv.Set(reg.moduleLevel(module))
	l = slog.New(reg.handler(lv)).With("module", module)
	reg.levels[module] = lv
	reg.loggers[module] = l
	return l
}

// SetModuleLevel changes one module's level at runtime. It returns false
// when level is not recognised.
func SetModuleLevel(module, level string) bool {
	parsed, ok := ParseLevel(level)
	if !ok {
		return false
	}
	GetLogger(module)
	reg.mu.Lock()
	reg.levels[module].Set(parsed)
	reg.mu.Unlock()
	return true
}

// Recent returns the in-memory log history, oldest first.
func Recent() *History {
	return reg.history
}

// OnEntry registers fn to receive every entry accepted by the history.
// Passing nil removes the listener.
func OnEntry(fn func(Entry)) {
	reg.mu.Lock()
	reg.listener = fn
	reg.mu.Unlock()
}

func currentListener() func(Entry) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return reg.listener
}

// moduleLevel must be called with mu held.
func (r *registry) moduleLevel(module string) slog.Level {
	if !r.ready {
		return slog.LevelInfo
	}
	level := levelOr(r.cfg.Level, slog.LevelInfo)
	if s, ok := r.cfg.Modules[module]; ok {
		level = levelOr(s, level)
	}
	return level
}

// handler must be called with mu held.
func (r *registry) handler(level slog.Leveler) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}

	var handlers []slog.Handler
	if stdoutAttached() {
		if r.ready && r.cfg.Format == "json" {
			handlers = append(handlers, slog.NewJSONHandler(os.Stdout, opts))
		} else {
			handlers = append(handlers, slog.NewTextHandler(os.Stdout, opts))
		}
	}
	if JournalAvailable() {
		handlers = append(handlers, NewJournalHandler(level))
	}
	handlers = append(handlers, NewHistoryHandler(r.history, level))

	if len(handlers) == 1 {
		return handlers[0]
	}
	return NewFanout(handlers...)
}

// stdoutAttached is false when stdout is /dev/null, as under systemd with
// StandardOutput=null.
func stdoutAttached() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	mode := fi.Mode()
	switch {
	case mode.IsRegular(), mode&os.ModeNamedPipe != 0, mode&os.ModeSocket != 0:
		return true
	case mode&os.ModeCharDevice != 0:
		return fi.Name() != "null"
	default:
		return false
	}
}

// ParseLevel accepts debug, info, warn/warning and error in any case.
func ParseLevel(s string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return 0, false
	}
}

func levelOr(s string, fallback slog.Level) slog.Level {
	if l, ok := ParseLevel(s); ok {
		return l
	}
	return fallback
}
