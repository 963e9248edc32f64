package log

import (
	"testing"
)

type captureLogger struct {
	lines []string
}

func (l *captureLogger) Debug(_ map[string]any, msg string) { l.lines = append(l.lines, "D:"+msg) }
func (l *captureLogger) Info(_ map[string]any, msg string)  { l.lines = append(l.lines, "I:"+msg) }
func (l *captureLogger) Warn(_ map[string]any, msg string)  { l.lines = append(l.lines, "W:"+msg) }
func (l *captureLogger) Error(_ map[string]any, msg string) { l.lines = append(l.lines, "E:"+msg) }
func (l *captureLogger) Panic(_ map[string]any, msg string) {}
func (l *captureLogger) Fatal(_ map[string]any, msg string) {}

func swapLogger(t *testing.T, l Logger) {
	t.Helper()
	orig := GetLogger()
	SetLogger(l)
	t.Cleanup(func() { SetLogger(orig) })
}

func TestGlobalLoggingDispatch(t *testing.T) {
	capture := &captureLogger{}
	swapLogger(t, capture)

	Debug(nil, "d")
	Info(nil, "i")
	Warn(nil, "w")
	Error(nil, "e")

	expected := []string{"D:d", "I:i", "W:w", "E:e"}
	if len(capture.lines) != len(expected) {
		t.Fatalf("expected %d log lines, got %d", len(expected), len(capture.lines))
	}
	for i, want := range expected {
		if capture.lines[i] != want {
			t.Errorf("line %d: expected %q, got %q", i, want, capture.lines[i])
		}
	}
}

func TestZapLoggerLevels(t *testing.T) {
	// exercise the real zap path with and without fields
	Debug(map[string]any{"query": "www.google.com", "count": 3, "ok": true}, "debug with fields")
	Info(nil, "plain info")
	Warn(nil, "plain warn")
	Error(nil, "plain error")

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic, but none occurred")
		}
	}()
	Panic(nil, "panic message")
}

func TestConfigure(t *testing.T) {
	swapLogger(t, &captureLogger{})

	if err := Configure("dev", "debug"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := Configure("prod", "info"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := Configure("prod", "chatty"); err == nil {
		t.Fatal("expected error for invalid log level, got nil")
	}
}

func TestNoopLoggerDiscardsEverything(t *testing.T) {
	swapLogger(t, NewNoopLogger())

	Debug(nil, "dropped")
	Info(nil, "dropped")
	Warn(nil, "dropped")
	Error(nil, "dropped")
}
