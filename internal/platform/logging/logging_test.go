package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNew_Levels(t *testing.T) {
	cases := []struct {
		level string
		debug bool
		info  bool
	}{
		{"debug", true, true},
		{"INFO", false, true},
		{"error", false, false},
		{"nonsense", false, true},
	}
	for _, tc := range cases {
		log, err := New("threads", tc.level, "json")
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.level, err)
		}
		if got := log.Core().Enabled(zapcore.DebugLevel); got != tc.debug {
			t.Fatalf("%s: debug enabled = %v", tc.level, got)
		}
		if got := log.Core().Enabled(zapcore.InfoLevel); got != tc.info {
			t.Fatalf("%s: info enabled = %v", tc.level, got)
		}
	}
}

func TestNew_Console(t *testing.T) {
	if _, err := New("", "warn", "console"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
