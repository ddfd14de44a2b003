package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/openvoicekit/bargein/internal/filter"
)

func TestLoadFromReader_Defaults(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("LoadFromReader() error: %v", err)
	}
	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("listen_addr = %q, want :8080", cfg.Server.ListenAddr)
	}
	if cfg.Server.LogLevel != LogInfo {
		t.Errorf("log_level = %q, want info", cfg.Server.LogLevel)
	}
	if !cfg.Filter.Enabled {
		t.Error("filtering should be enabled by default")
	}
	if got := cfg.Filter.ToFilter().BufferTime; got != 500*time.Millisecond {
		t.Errorf("buffer time = %v, want 500ms", got)
	}
}

func TestLoadFromReader_Full(t *testing.T) {
	const doc = `
server:
  listen_addr: ":9090"
  log_level: debug
filter:
  enabled: true
  case_sensitive: true
  fuzzy_match: true
  buffer_time: 1.5
  ignore_list:
    - "mm-hmm"
    - "Roger"
`
	cfg, err := LoadFromReader(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("LoadFromReader() error: %v", err)
	}
	if cfg.Server.ListenAddr != ":9090" {
		t.Errorf("listen_addr = %q, want :9090", cfg.Server.ListenAddr)
	}
	if cfg.Server.LogLevel != LogDebug {
		t.Errorf("log_level = %q, want debug", cfg.Server.LogLevel)
	}

	fc := cfg.Filter.ToFilter()
	if !fc.CaseSensitive {
		t.Error("case_sensitive should carry through")
	}
	if !fc.FuzzyMatch {
		t.Error("fuzzy_match should carry through")
	}
	if fc.BufferTime != 1500*time.Millisecond {
		t.Errorf("buffer time = %v, want 1.5s", fc.BufferTime)
	}
	if len(fc.IgnoreList) != 2 || fc.IgnoreList[1] != "Roger" {
		t.Errorf("ignore_list = %v, want the two configured phrases", fc.IgnoreList)
	}
}

func TestLoadFromReader_UnknownFieldRejected(t *testing.T) {
	_, err := LoadFromReader(strings.NewReader("filter:\n  bufer_time: 0.5\n"))
	if err == nil {
		t.Fatal("misspelled field should be rejected")
	}
	if !strings.Contains(err.Error(), "bufer_time") {
		t.Errorf("error %q should name the unknown field", err)
	}
}

func TestLoadFromReader_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"negative buffer time", "filter:\n  buffer_time: -0.1\n"},
		{"buffer time above bound", "filter:\n  buffer_time: 2.5\n"},
		{"bad log level", "server:\n  log_level: verbose\n"},
		{"empty listen addr", "server:\n  listen_addr: \"\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadFromReader(strings.NewReader(tt.doc)); err == nil {
				t.Errorf("LoadFromReader(%q) should fail", tt.doc)
			}
		})
	}
}

func TestLoadFromReader_FilterErrorsWrapped(t *testing.T) {
	_, err := LoadFromReader(strings.NewReader("filter:\n  buffer_time: 3\n"))
	if !errors.Is(err, filter.ErrConfig) {
		t.Errorf("error = %v, want wrapped filter.ErrConfig", err)
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	doc := "server:\n  listen_addr: \":7070\"\nfilter:\n  buffer_time: 0.25\n"
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Server.ListenAddr != ":7070" {
		t.Errorf("listen_addr = %q, want :7070", cfg.Server.ListenAddr)
	}
	if got := cfg.Filter.ToFilter().BufferTime; got != 250*time.Millisecond {
		t.Errorf("buffer time = %v, want 250ms", got)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Load() on a missing file should fail")
	}
}

func TestLogLevel_IsValid(t *testing.T) {
	for _, l := range []LogLevel{LogDebug, LogInfo, LogWarn, LogError} {
		if !l.IsValid() {
			t.Errorf("%q should be valid", l)
		}
	}
	if LogLevel("trace").IsValid() {
		t.Error("trace should be invalid")
	}
}
