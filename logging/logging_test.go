package logging

import (
	"bytes"
	"os"
	"strings"
	"testing"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stdout)

	SetLogLevel(WARN)
	Debug("hidden %d", 1)
	Warn("visible %d", 2)
	if strings.Contains(buf.String(), "hidden 1") {
		t.Errorf("Expected debug message to be filtered at WARN level. Output: %v", buf.String())
	}
	if !strings.Contains(buf.String(), "visible 2") {
		t.Errorf("Expected warn message in output. Output: %v", buf.String())
	}

	SetLogLevel("debug")
	Debug("now shown")
	if !strings.Contains(buf.String(), "now shown") {
		t.Errorf("Expected debug message once level is lowered. Output: %v", buf.String())
	}
	SetLogLevel(INFO)
}
