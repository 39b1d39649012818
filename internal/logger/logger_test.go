package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestLevels(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf, "warn", "text")
	t.Cleanup(func() { defaultLogger = nil })

	Debug("debug %d", 1)
	Info("info %d", 2)
	Warn("warn %d", 3)
	Error("error %d", 4)

	out := buf.String()
	if strings.Contains(out, "debug 1") || strings.Contains(out, "info 2") {
		t.Errorf("messages below level were written:\n%s", out)
	}
	if !strings.Contains(out, "[WARN] warn 3") || !strings.Contains(out, "[ERROR] error 4") {
		t.Errorf("missing messages:\n%s", out)
	}
	if !strings.Contains(out, "logger_test.go") {
		t.Errorf("text format should carry the caller file:\n%s", out)
	}
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf, "debug", "json")
	t.Cleanup(func() { defaultLogger = nil })

	Info("processed %d events", 42)

	var got map[string]string
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
	}
	if got["level"] != "info" || got["msg"] != "processed 42 events" {
		t.Errorf("unexpected entry: %v", got)
	}
	if !strings.HasPrefix(got["caller"], "logger_test.go:") {
		t.Errorf("unexpected caller: %q", got["caller"])
	}
}

func TestUninitializedIsSilent(t *testing.T) {
	defaultLogger = nil
	Info("nobody listens")
}
