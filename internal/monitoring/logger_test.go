package monitoring

import (
	"fmt"
	"testing"
)

func captureLogs(t *testing.T) *[]string {
	t.Helper()
	original := Logf
	t.Cleanup(func() {
		Logf = original
		SetDebug(false)
	})

	var lines []string
	SetLogger(func(format string, v ...interface{}) {
		lines = append(lines, fmt.Sprintf(format, v...))
	})
	return &lines
}

func TestSetLogger(t *testing.T) {
	lines := captureLogs(t)

	Logf("frame %d", 1)
	if len(*lines) != 1 || (*lines)[0] != "frame 1" {
		t.Errorf("custom logger got %q", *lines)
	}

	// nil installs a no-op logger
	SetLogger(nil)
	Logf("dropped")
	if len(*lines) != 1 {
		t.Errorf("no-op logger should not have forwarded, got %q", *lines)
	}
}

func TestDebugf(t *testing.T) {
	lines := captureLogs(t)

	Debugf("poll timeout")
	if len(*lines) != 0 {
		t.Fatalf("Debugf logged while disabled: %q", *lines)
	}

	SetDebug(true)
	Debugf("poll timeout %d", 3)
	if len(*lines) != 1 || (*lines)[0] != "poll timeout 3" {
		t.Errorf("Debugf got %q", *lines)
	}
}

func TestLogf_Default(t *testing.T) {
	if Logf == nil {
		t.Error("Logf should not be nil by default")
	}

	defer func() {
		if r := recover(); r != nil {
			t.Errorf("Logf panicked: %v", r)
		}
	}()

	Logf("test message: %s", "value")
}
