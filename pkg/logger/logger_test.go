package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, false, "json").Info("Page rendered", "session", "abc")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("not json: %q", buf.String())
	}
	if rec["msg"] != "Page rendered" || rec["session"] != "abc" {
		t.Fatalf("unexpected record %v", rec)
	}
}

func TestNewTextDebug(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, true, "TEXT")
	l.Debug("Refresh superseded")
	if !strings.Contains(buf.String(), "msg=\"Refresh superseded\"") {
		t.Fatalf("got %q", buf.String())
	}

	buf.Reset()
	New(&buf, false, "text").Debug("hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug record written at info level: %q", buf.String())
	}
}
