package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/pion/logging"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want logging.LogLevel
	}{
		{"error", logging.LogLevelError},
		{"WARN", logging.LogLevelWarn},
		{" debug ", logging.LogLevelDebug},
		{"trace", logging.LogLevelTrace},
		{"off", logging.LogLevelDisabled},
		{"", logging.LogLevelInfo},
		{"verbose", logging.LogLevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseLevel(tt.in); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestNewFactory_FiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewFactory("warn", &buf).NewLogger("verifier")

	log.Info("hidden")
	log.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info line leaked at warn level: %q", out)
	}
	if !strings.Contains(out, "shown") || !strings.Contains(out, "verifier") {
		t.Errorf("missing warn line or scope: %q", out)
	}
}
