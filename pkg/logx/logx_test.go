package logx

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// setupTestLogger captures log output in a buffer.
func setupTestLogger() *bytes.Buffer {
	var buf bytes.Buffer
	SetOutput(&buf)
	return &buf
}

func resetTestLogger() {
	SetOutput(nil)
	SetDebugConfig(false, false, "")
	SetDebugDomains(nil)
}

func TestLogFormat(t *testing.T) {
	buf := setupTestLogger()
	defer resetTestLogger()

	logger := NewLogger("toolloop")
	logger.Info("Test message with %s", "formatting")

	output := buf.String()
	if !strings.Contains(output, "[toolloop]") {
		t.Errorf("Expected component in output, got: %s", output)
	}
	if !strings.Contains(output, "INFO: Test message with formatting") {
		t.Errorf("Expected level and message in output, got: %s", output)
	}
}

func TestTimestampFormat(t *testing.T) {
	buf := setupTestLogger()
	defer resetTestLogger()

	NewLogger("test").Info("timestamp test")

	output := buf.String()
	start := strings.Index(output, "[")
	end := strings.Index(output, "]")
	if start == -1 || end <= start {
		t.Fatalf("Could not find timestamp in output: %s", output)
	}
	if _, err := time.Parse(timestampFormat, output[start+1:end]); err != nil {
		t.Errorf("Invalid timestamp %q: %v", output[start+1:end], err)
	}
}

func TestLogLevels(t *testing.T) {
	logger := NewLogger("levels")

	tests := []struct {
		level   Level
		logFunc func(string, ...any)
	}{
		{LevelDebug, logger.Debug},
		{LevelInfo, logger.Info},
		{LevelWarn, logger.Warn},
		{LevelError, logger.Error},
	}

	for _, tt := range tests {
		t.Run(string(tt.level), func(t *testing.T) {
			buf := setupTestLogger()
			defer resetTestLogger()
			if tt.level == LevelDebug {
				SetDebugConfig(true, false, "")
			}

			tt.logFunc("test message")

			if !strings.Contains(buf.String(), string(tt.level)) {
				t.Errorf("Expected level %s in output, got: %s", tt.level, buf.String())
			}
		})
	}
}

func TestDebugDisabledByDefault(t *testing.T) {
	buf := setupTestLogger()
	defer resetTestLogger()

	NewLogger("quiet").Debug("should not appear")
	Debug(context.Background(), "tools", "nor this")

	if buf.Len() != 0 {
		t.Errorf("Expected no output with debug disabled, got: %s", buf.String())
	}
}

func TestDebugDomainFiltering(t *testing.T) {
	buf := setupTestLogger()
	defer resetTestLogger()

	SetDebugConfig(true, false, "")
	SetDebugDomains([]string{"toolloop"})

	Debug(context.Background(), "toolloop", "loop message")
	Debug(context.Background(), "tools", "tool message")

	output := buf.String()
	if !strings.Contains(output, "[toolloop] loop message") {
		t.Errorf("Expected toolloop debug line, got: %s", output)
	}
	if strings.Contains(output, "tool message") {
		t.Errorf("Expected tools domain to be filtered, got: %s", output)
	}
}

func TestEnvironmentVariableConfiguration(t *testing.T) {
	t.Setenv("DEBUG", "1")
	t.Setenv("DEBUG_DOMAINS", "toolloop, tools")
	initDebugFromEnv()
	defer func() {
		os.Unsetenv("DEBUG")
		os.Unsetenv("DEBUG_DOMAINS")
		initDebugFromEnv()
	}()

	if !IsDebugEnabled() {
		t.Error("Expected debug to be enabled via DEBUG=1")
	}
	if !IsDebugEnabledForDomain("tools") {
		t.Error("Expected tools domain to be enabled")
	}
	if IsDebugEnabledForDomain("config") {
		t.Error("Expected config domain to be disabled")
	}
}

func TestSessionTagging(t *testing.T) {
	buf := setupTestLogger()
	defer resetTestLogger()

	ctx := WithSessionID(context.Background(), "0123456789abcdef")
	NewLogger("toolloop").WithSession(ctx).Info("tagged")

	if !strings.Contains(buf.String(), "[toolloop/01234567]") {
		t.Errorf("Expected session tag in output, got: %s", buf.String())
	}

	entries := GetRecentLogEntries("0123456789abcdef", time.Time{})
	if len(entries) == 0 || entries[len(entries)-1].Message != "tagged" {
		t.Errorf("Expected buffered entry for session, got %+v", entries)
	}
}

func TestDebugFileLogging(t *testing.T) {
	setupTestLogger()
	defer resetTestLogger()

	dir := t.TempDir()
	SetDebugConfig(true, true, dir)
	Debug(context.Background(), "tools", "to file %d", 1)

	data, err := os.ReadFile(filepath.Join(dir, "debug.log"))
	if err != nil {
		t.Fatalf("Expected debug.log to exist: %v", err)
	}
	if !strings.Contains(string(data), "[tools] DEBUG: to file 1") {
		t.Errorf("Unexpected debug file content: %s", data)
	}
}

func TestBufferCapacity(t *testing.T) {
	b := &InMemoryLogBuffer{maxSize: 3}
	for i := 0; i < 5; i++ {
		b.AddLogEntry(&LogEntry{Message: string(rune('a' + i))})
	}

	entries := b.GetLogEntries("", time.Time{})
	if len(entries) != 3 {
		t.Fatalf("Expected 3 entries, got %d", len(entries))
	}
	if entries[0].Message != "c" || entries[2].Message != "e" {
		t.Errorf("Expected oldest entries dropped, got %+v", entries)
	}
}

func TestWrap(t *testing.T) {
	buf := setupTestLogger()
	defer resetTestLogger()

	base := errors.New("boom")
	err := Wrap(base, "open index")
	if !errors.Is(err, base) {
		t.Error("Expected wrapped error to match base")
	}
	if err.Error() != "open index: boom" {
		t.Errorf("Unexpected message: %s", err.Error())
	}
	if !strings.Contains(buf.String(), "ERROR: open index: boom") {
		t.Errorf("Expected error logged, got: %s", buf.String())
	}
	if Wrap(nil, "noop") != nil {
		t.Error("Expected nil for nil error")
	}
}
