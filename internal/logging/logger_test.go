package logging

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestNewLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "production", false)
	logger.Debug().Msg("hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug output leaked at info level: %s", buf.String())
	}

	logger.Info().Str("job_id", "j1").Msg("visible")
	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON line, got %q: %v", buf.String(), err)
	}
	if entry["job_id"] != "j1" || entry["message"] != "visible" {
		t.Fatalf("unexpected entry: %v", entry)
	}
	if _, ok := entry["time"]; !ok {
		t.Fatalf("timestamp missing: %v", entry)
	}
}

func TestNewLoggerVerbose(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "production", true)
	logger.Debug().Msg("shown")
	if buf.Len() == 0 {
		t.Fatalf("verbose logger dropped debug output")
	}
}
