package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	SetOutput(buf)
	prev := GetLevel()
	t.Cleanup(func() {
		SetOutput(os.Stderr)
		SetLevel(prev)
	})
	return buf
}

func TestInfoCF_IncludesComponentAndFields(t *testing.T) {
	buf := captureOutput(t)
	SetLevel(INFO)

	InfoCF("cron", "job registered", map[string]interface{}{"job_id": "msg_0"})

	out := buf.String()
	if !strings.Contains(out, "component=cron") {
		t.Fatalf("expected component field, got %q", out)
	}
	if !strings.Contains(out, "job_id=msg_0") {
		t.Fatalf("expected job_id field, got %q", out)
	}
	if !strings.Contains(out, "job registered") {
		t.Fatalf("expected message, got %q", out)
	}
}

func TestSetLevel_FiltersDebug(t *testing.T) {
	buf := captureOutput(t)

	SetLevel(INFO)
	DebugC("memory", "hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug line should be filtered at INFO, got %q", buf.String())
	}

	SetLevel(DEBUG)
	DebugC("memory", "visible")
	if !strings.Contains(buf.String(), "visible") {
		t.Fatalf("debug line should pass at DEBUG, got %q", buf.String())
	}
	if GetLevel() != DEBUG {
		t.Fatalf("GetLevel = %v, want DEBUG", GetLevel())
	}
}

func TestEnableFileLogging_WritesJSONLines(t *testing.T) {
	captureOutput(t)
	SetLevel(INFO)

	path := filepath.Join(t.TempDir(), "logs", "app.log")
	if err := EnableFileLogging(path); err != nil {
		t.Fatalf("EnableFileLogging: %v", err)
	}
	t.Cleanup(DisableFileLogging)

	WarnCF("usage", "log append failed", map[string]interface{}{"user_id": "u1"})

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one log line, got %d: %q", len(lines), string(data))
	}

	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["component"] != "usage" || entry["user_id"] != "u1" || entry["level"] != "warning" {
		t.Fatalf("unexpected entry: %#v", entry)
	}
}
