package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestParseLogLevel(t *testing.T) {
	for in, want := range map[string]LogLevel{
		"error":   LogLevelError,
		"WARN":    LogLevelWarn,
		"warning": LogLevelWarn,
		"info":    LogLevelInfo,
		"Debug":   LogLevelDebug,
	} {
		got, err := parseLogLevel(in)
		if err != nil || got != want {
			t.Errorf("parseLogLevel(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := parseLogLevel("trace"); err == nil {
		t.Fatalf("parseLogLevel(trace) succeeded, want error")
	}
}

func TestSetupLogger_FiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := setupLogger(LogLevelWarn, &buf)

	logger.Info("hidden")
	logger.Warn("shown", "key", "value")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info record written at warn level:\n%s", out)
	}
	if !strings.Contains(out, "msg=shown key=value") {
		t.Errorf("warn record missing:\n%s", out)
	}
}
