package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewAppliesLevelAndAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := newWithWriter(&buf, "warn", "service", "bondify")

	logger.Info("hidden")
	logger.Warn("shown", "bond_id", "b-1")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info record should be filtered at warn level: %s", out)
	}
	if !strings.Contains(out, `"service":"bondify"`) || !strings.Contains(out, `"bond_id":"b-1"`) {
		t.Fatalf("missing attributes: %s", out)
	}
}

func TestNewFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	newWithWriter(&buf, "verbose").Info("kept")
	if !strings.Contains(buf.String(), "kept") {
		t.Fatalf("invalid level should default to info")
	}
}
