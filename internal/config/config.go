// Package config provides the configuration schema and loader for the
// bargein service.
package config

import (
	"time"

	"github.com/openvoicekit/bargein/internal/filter"
)

// LogLevel controls log verbosity for the bargein server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure. It is typically loaded from a
// YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server ServerConfig `yaml:"server"`
	Filter FilterConfig `yaml:"filter"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the HTTP server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// FilterConfig holds the interruption-arbitration settings.
type FilterConfig struct {
	// Enabled switches filtering on.
	Enabled bool `yaml:"enabled"`

	// IgnoreList is the backchannel phrase list. Empty means the built-in
	// default list.
	IgnoreList []string `yaml:"ignore_list"`

	// CaseSensitive disables case folding when matching.
	CaseSensitive bool `yaml:"case_sensitive"`

	// FuzzyMatch folds phonetically-close tokens onto ignore-list words,
	// absorbing recogniser spelling drift ("mhm" for "mm hmm").
	FuzzyMatch bool `yaml:"fuzzy_match"`

	// BufferTime is the maximum wait for a final transcription, in
	// seconds. Must be in [0, 2].
	BufferTime float64 `yaml:"buffer_time"`
}

// Default returns the configuration used when no file is supplied: filtering
// enabled with the built-in ignore list and a 0.5 s transcription buffer.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr: ":8080",
			LogLevel:   LogInfo,
		},
		Filter: FilterConfig{
			Enabled:    true,
			BufferTime: filter.DefaultBufferTime.Seconds(),
		},
	}
}

// ToFilter converts the YAML block into the arbitration core's own config.
func (f FilterConfig) ToFilter() filter.Config {
	var list []string
	if len(f.IgnoreList) > 0 {
		list = append(list, f.IgnoreList...)
	}
	return filter.Config{
		Enabled:       f.Enabled,
		IgnoreList:    list,
		CaseSensitive: f.CaseSensitive,
		FuzzyMatch:    f.FuzzyMatch,
		BufferTime:    time.Duration(f.BufferTime * float64(time.Second)),
	}
}
