package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestInitWritesToConsoleAndFile(t *testing.T) {
	var console bytes.Buffer
	path := filepath.Join(t.TempDir(), "logs", "quoter.log")
	if err := Init(Config{Level: "debug", OutputFile: path, NoColor: true, Stdout: &console}); err != nil {
		t.Fatalf("init: %v", err)
	}
	defer Close()

	logrus.WithField("component", "test").Info("hello ladder")

	if !strings.Contains(console.String(), "hello ladder") {
		t.Fatalf("console missing line: %q", console.String())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "component=test") {
		t.Fatalf("file missing fields: %q", data)
	}
	if GetCurrentLogFile() != path {
		t.Fatalf("current log file=%q", GetCurrentLogFile())
	}
	if logrus.GetLevel() != logrus.DebugLevel {
		t.Fatalf("level=%s", logrus.GetLevel())
	}
}

func TestJSONFormat(t *testing.T) {
	var console bytes.Buffer
	if err := Init(Config{Level: "bogus", Format: "json", Stdout: &console}); err != nil {
		t.Fatalf("init: %v", err)
	}
	Infof("tick %d", 3)
	if !strings.HasPrefix(strings.TrimSpace(console.String()), "{") {
		t.Fatalf("expected json line, got %q", console.String())
	}
	if Logger.GetLevel() != logrus.InfoLevel {
		t.Fatalf("invalid level should fall back to info")
	}
}
