package logging

import (
	"bytes"
	"strings"
	"testing"
)

func newBufLogger(level LogLevel) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return NewLogger(&Config{Level: level, Output: &buf}), &buf
}

func TestLevelFiltering(t *testing.T) {
	logger, buf := newBufLogger(LevelWarn)

	logger.Debug("slot transition")
	logger.Info("connected")
	if buf.Len() != 0 {
		t.Errorf("messages below the configured level were emitted: %s", buf.String())
	}

	logger.Warn("queue full")
	if !strings.Contains(buf.String(), "[WARN] queue full") {
		t.Errorf("expected warn line, got: %s", buf.String())
	}

	buf.Reset()
	logger.Error("impossible state")
	if !strings.Contains(buf.String(), "[ERROR] impossible state") {
		t.Errorf("expected error line, got: %s", buf.String())
	}
}

func TestKeyValueFormatting(t *testing.T) {
	logger, buf := newBufLogger(LevelDebug)

	logger.Debug("queued message", "server", 3, "slot", 17)
	out := buf.String()
	if !strings.Contains(out, "server=3") || !strings.Contains(out, "slot=17") {
		t.Errorf("expected key-value pairs in output, got: %s", out)
	}

	// A trailing key with no value is dropped rather than rendered.
	buf.Reset()
	logger.Debug("lonely key", "pid")
	if strings.Contains(buf.String(), "pid") {
		t.Errorf("dangling key should be dropped, got: %s", buf.String())
	}
}

func TestWithBindsContext(t *testing.T) {
	logger, buf := newBufLogger(LevelDebug)

	tt := logger.With("server", "ticktimer")
	tt.Warn("dropping scalar message", "op", 99)

	out := buf.String()
	if !strings.Contains(out, "server=ticktimer") {
		t.Errorf("expected bound context in output, got: %s", out)
	}
	if !strings.Contains(out, "op=99") {
		t.Errorf("expected call-site pairs after bound context, got: %s", out)
	}

	// The parent is untouched.
	buf.Reset()
	logger.Warn("bare message")
	if strings.Contains(buf.String(), "server=ticktimer") {
		t.Errorf("parent logger leaked child context: %s", buf.String())
	}
}

func TestEnabled(t *testing.T) {
	logger, _ := newBufLogger(LevelInfo)
	if logger.Enabled(LevelDebug) {
		t.Error("debug should be disabled at info level")
	}
	if !logger.Enabled(LevelError) {
		t.Error("error should be enabled at info level")
	}
}

func TestLevelString(t *testing.T) {
	for level, want := range map[LogLevel]string{
		LevelDebug: "DEBUG",
		LevelInfo:  "INFO",
		LevelWarn:  "WARN",
		LevelError: "ERROR",
	} {
		if got := level.String(); got != want {
			t.Errorf("level %d String() = %q, want %q", int(level), got, want)
		}
	}
}

func TestSetDefault(t *testing.T) {
	old := Default()
	defer SetDefault(old)

	logger, buf := newBufLogger(LevelDebug)
	SetDefault(logger)
	Default().Debug("via default")
	if !strings.Contains(buf.String(), "via default") {
		t.Errorf("default logger not replaced, got: %s", buf.String())
	}
}
