package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewRedactsSensitiveAttributes(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "debug")

	logger.Info("confirm", "account_id", "acct-1", "code", "482913", "PIN", "1234")

	out := buf.String()
	if !strings.Contains(out, `"code":"[REDACTED]"`) || !strings.Contains(out, `"PIN":"[REDACTED]"`) {
		t.Fatalf("secret leaked into log line: %s", out)
	}
	if !strings.Contains(out, `"account_id":"acct-1"`) {
		t.Fatalf("unexpected log line: %s", out)
	}
}

func TestNewFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "chatty")

	logger.Debug("hidden")
	logger.Info("shown")

	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Fatalf("unexpected level filtering: %s", buf.String())
	}
}
