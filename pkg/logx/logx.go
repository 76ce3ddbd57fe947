// Package logx provides leveled, component-tagged logging with domain-filtered debug output.
package logx

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const timestampFormat = "2006-01-02T15:04:05.000Z"

// Logger writes lines of the form "[timestamp] [component] LEVEL: message".
type Logger struct {
	component string
	sessionID string
}

type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// DebugConfig controls debug logging behavior.
type DebugConfig struct {
	Enabled     bool
	FileLogging bool
	LogDir      string
	Domains     map[string]bool // nil enables every domain
}

// LogEntry is a captured log line, kept for the HTTP log endpoint.
type LogEntry struct {
	Timestamp string `json:"timestamp"`
	Component string `json:"component"`
	SessionID string `json:"session_id,omitempty"`
	Level     string `json:"level"`
	Message   string `json:"message"`
	Domain    string `json:"domain,omitempty"`
}

// InMemoryLogBuffer stores the most recent log entries.
type InMemoryLogBuffer struct {
	entries []LogEntry
	mutex   sync.RWMutex
	maxSize int
}

type sessionKey struct{}

var (
	debugConfig = &DebugConfig{}
	debugMutex  sync.RWMutex

	logBuffer = &InMemoryLogBuffer{
		entries: make([]LogEntry, 0),
		maxSize: 1000,
	}

	logWriter     io.Writer
	logWriterLock sync.RWMutex
)

func init() { //nolint:gochecknoinits // env-driven debug settings
	initDebugFromEnv()
}

// initDebugFromEnv reads DEBUG, DEBUG_FILE, DEBUG_LOG_DIR and DEBUG_DOMAINS.
func initDebugFromEnv() {
	debugMutex.Lock()
	defer debugMutex.Unlock()

	debugConfig.Enabled = envFlag("DEBUG")
	debugConfig.FileLogging = envFlag("DEBUG_FILE")
	debugConfig.LogDir = "logs"
	if dir := os.Getenv("DEBUG_LOG_DIR"); dir != "" {
		debugConfig.LogDir = dir
	}

	debugConfig.Domains = nil
	if domains := os.Getenv("DEBUG_DOMAINS"); domains != "" {
		debugConfig.Domains = make(map[string]bool)
		for _, domain := range strings.Split(domains, ",") {
			debugConfig.Domains[strings.TrimSpace(domain)] = true
		}
	}
}

func envFlag(name string) bool {
	v := os.Getenv(name)
	return v == "1" || strings.EqualFold(v, "true")
}

// NewLogger creates a logger tagged with the given component name.
func NewLogger(component string) *Logger {
	return &Logger{component: component}
}

// SetOutput redirects all log output. A nil writer restores stderr.
func SetOutput(w io.Writer) {
	logWriterLock.Lock()
	defer logWriterLock.Unlock()
	logWriter = w
}

func output() *log.Logger {
	logWriterLock.RLock()
	defer logWriterLock.RUnlock()
	if logWriter != nil {
		return log.New(logWriter, "", 0)
	}
	return log.New(os.Stderr, "", 0)
}

// SetDebugConfig configures global debug logging settings.
func SetDebugConfig(enabled, fileLogging bool, logDir string) {
	debugMutex.Lock()
	defer debugMutex.Unlock()

	debugConfig.Enabled = enabled
	debugConfig.FileLogging = fileLogging
	if logDir != "" {
		debugConfig.LogDir = logDir
	}
}

// SetDebugDomains restricts debug logging to the listed domains. An empty list enables all.
func SetDebugDomains(domains []string) {
	debugMutex.Lock()
	defer debugMutex.Unlock()

	if len(domains) == 0 {
		debugConfig.Domains = nil
		return
	}
	debugConfig.Domains = make(map[string]bool)
	for _, domain := range domains {
		debugConfig.Domains[strings.TrimSpace(domain)] = true
	}
}

// IsDebugEnabled returns whether debug logging is enabled.
func IsDebugEnabled() bool {
	debugMutex.RLock()
	defer debugMutex.RUnlock()
	return debugConfig.Enabled
}

// IsDebugEnabledForDomain returns whether debug logging is enabled for a specific domain.
func IsDebugEnabledForDomain(domain string) bool {
	debugMutex.RLock()
	defer debugMutex.RUnlock()

	if !debugConfig.Enabled {
		return false
	}
	if debugConfig.Domains == nil {
		return true
	}
	return debugConfig.Domains[domain]
}

// AddLogEntry appends an entry, dropping the oldest past capacity.
func (b *InMemoryLogBuffer) AddLogEntry(entry *LogEntry) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.entries = append(b.entries, *entry)
	if len(b.entries) > b.maxSize {
		b.entries = b.entries[len(b.entries)-b.maxSize:]
	}
}

// GetLogEntries returns a copy of the buffered entries filtered by session and time.
func (b *InMemoryLogBuffer) GetLogEntries(sessionID string, since time.Time) []LogEntry {
	b.mutex.RLock()
	defer b.mutex.RUnlock()

	filtered := make([]LogEntry, 0, len(b.entries))
	for i := range b.entries {
		entry := &b.entries[i]
		if sessionID != "" && entry.SessionID != sessionID {
			continue
		}
		if !since.IsZero() {
			ts, err := time.Parse(timestampFormat, entry.Timestamp)
			if err != nil || ts.Before(since) {
				continue
			}
		}
		filtered = append(filtered, *entry)
	}
	return filtered
}

// GetRecentLogEntries returns buffered entries, optionally restricted to one session.
func GetRecentLogEntries(sessionID string, since time.Time) []LogEntry {
	return logBuffer.GetLogEntries(sessionID, since)
}

// WithSessionID attaches an interaction id to ctx for log correlation.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionKey{}, id)
}

// SessionID returns the interaction id stored in ctx, or "".
func SessionID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(sessionKey{}).(string); ok {
		return id
	}
	return ""
}

func write(component, sessionID, domain string, level Level, message string) {
	timestamp := time.Now().UTC().Format(timestampFormat)
	tag := component
	if sessionID != "" {
		tag = component + "/" + shortID(sessionID)
	}
	text := message
	if domain != "" {
		text = fmt.Sprintf("[%s] %s", domain, message)
	}
	output().Printf("[%s] [%s] %s: %s", timestamp, tag, level, text)

	logBuffer.AddLogEntry(&LogEntry{
		Timestamp: timestamp,
		Component: component,
		SessionID: sessionID,
		Level:     string(level),
		Message:   message,
		Domain:    domain,
	})
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func (l *Logger) log(level Level, format string, args ...any) {
	write(l.component, l.sessionID, "", level, fmt.Sprintf(format, args...))
}

func (l *Logger) Debug(format string, args ...any) {
	if !IsDebugEnabled() {
		return
	}
	l.log(LevelDebug, format, args...)
}

func (l *Logger) Info(format string, args ...any) {
	l.log(LevelInfo, format, args...)
}

func (l *Logger) Warn(format string, args ...any) {
	l.log(LevelWarn, format, args...)
}

func (l *Logger) Error(format string, args ...any) {
	l.log(LevelError, format, args...)
}

// Component returns the component tag of this logger.
func (l *Logger) Component() string {
	return l.component
}

// WithSession returns a copy of the logger that tags lines with the session in ctx.
func (l *Logger) WithSession(ctx context.Context) *Logger {
	return &Logger{component: l.component, sessionID: SessionID(ctx)}
}

// Debug logs a domain-scoped debug message.
//
// Environment variable control:
//
//	DEBUG=1                               # all domains
//	DEBUG=1 DEBUG_DOMAINS=toolloop        # one domain
//	DEBUG=1 DEBUG_DOMAINS=toolloop,tools  # several domains
//	DEBUG=1 DEBUG_FILE=1                  # also append to {DEBUG_LOG_DIR}/debug.log
func Debug(ctx context.Context, domain, format string, args ...any) {
	if !IsDebugEnabledForDomain(domain) {
		return
	}

	sessionID := SessionID(ctx)
	message := fmt.Sprintf(format, args...)
	write("debug", sessionID, domain, LevelDebug, message)

	debugMutex.RLock()
	fileLogging := debugConfig.FileLogging
	logDir := debugConfig.LogDir
	debugMutex.RUnlock()
	if fileLogging {
		appendDebugFile(logDir, fmt.Sprintf("[%s] [%s] [%s] DEBUG: %s\n",
			time.Now().UTC().Format(timestampFormat), sessionID, domain, message))
	}
}

func appendDebugFile(dir, line string) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return
	}
	path := filepath.Join(dir, "debug.log")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to open debug log %s: %v\n", path, err)
		return
	}
	defer f.Close() //nolint:errcheck
	_, _ = f.WriteString(line)
}

var defaultLogger = NewLogger("system")

func Infof(format string, args ...any) {
	defaultLogger.Info(format, args...)
}

func Warnf(format string, args ...any) {
	defaultLogger.Warn(format, args...)
}

// Errorf logs and returns the formatted error.
func Errorf(format string, args ...any) error {
	err := fmt.Errorf(format, args...)
	defaultLogger.Error("%s", err.Error())
	return err
}

// Wrap logs msg + ": " + err.Error() and returns fmt.Errorf("%s: %w", msg, err).
//
//	if err != nil { return logx.Wrap(err, "open index") }
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	wrapped := fmt.Errorf("%s: %w", msg, err)
	defaultLogger.Error("%s", wrapped.Error())
	return wrapped
}
