package debug

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLogfRespectsEnabled(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(nil)
	prev := Enabled()
	defer SetEnabled(prev)

	SetEnabled(false)
	Logf("hidden %d\n", 1)
	if buf.Len() != 0 {
		t.Fatalf("expected no output while disabled, got %q", buf.String())
	}

	SetEnabled(true)
	Logf("shown %d\n", 2)
	if got := buf.String(); got != "shown 2\n" {
		t.Fatalf("got %q", got)
	}
}

func TestSetLogFile(t *testing.T) {
	prev := Enabled()
	defer SetEnabled(prev)

	path := filepath.Join(t.TempDir(), "bd-debug.log")
	SetLogFile(path, 1)
	Logf("written to file\n")
	if err := Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), "written to file") {
		t.Fatalf("log file missing message: %q", data)
	}
}
