package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf, "warn", "text")
	t.Cleanup(func() { defaultLogger = nil })

	Info("hidden %d", 1)
	Warn("shown %d", 2)
	Error("also shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("Expected info line to be filtered, got %q", out)
	}
	if !strings.Contains(out, "[WARN] shown 2") || !strings.Contains(out, "[ERROR] also shown") {
		t.Errorf("Expected warn and error lines, got %q", out)
	}
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf, "debug", "json")
	t.Cleanup(func() { defaultLogger = nil })

	Debug("report ok: entity=%s", "-100")

	var line struct {
		Time  string `json:"time"`
		Level string `json:"level"`
		Msg   string `json:"msg"`
	}
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("Expected a JSON line, got %q: %v", buf.String(), err)
	}
	if line.Level != "debug" || line.Msg != "report ok: entity=-100" || line.Time == "" {
		t.Errorf("Unexpected JSON line: %+v", line)
	}
}

func TestUninitializedLoggerIsSilent(t *testing.T) {
	defaultLogger = nil
	Info("nothing happens")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", DebugLevel},
		{"INFO", InfoLevel},
		{"warn", WarnLevel},
		{"error", ErrorLevel},
		{"verbose", InfoLevel},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, expected %v", tt.in, got, tt.want)
		}
	}
}

func TestJSONFormat_Levels(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf, "info", "json")
	t.Cleanup(func() { defaultLogger = nil })

	Debug("hidden")
	Warn("lease held by %s", "run-1")
	Error("index write failed")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("Expected 2 JSON lines, got %d: %q", len(lines), buf.String())
	}
	for i, want := range []string{"warn", "error"} {
		var line map[string]interface{}
		if err := json.Unmarshal([]byte(lines[i]), &line); err != nil {
			t.Fatalf("Expected a JSON line, got %q: %v", lines[i], err)
		}
		if line["level"] != want {
			t.Errorf("Expected level %q, got %v", want, line["level"])
		}
		ts, _ := line["time"].(string)
		if !strings.HasSuffix(ts, "Z") {
			t.Errorf("Expected UTC timestamp, got %q", ts)
		}
	}
}
