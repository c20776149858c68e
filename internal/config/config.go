// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package config loads the settings of the HTTP dispatch service from
// YAML or JSON, and watches a settings file for changes.
package config

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gogama/corehttp/class"
	"github.com/gogama/corehttp/retry"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// Format is a settings file format.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

var (
	ErrEmptyPath         = errors.New("config: empty path")
	ErrUnsupportedFormat = errors.New("config: unsupported format")
	ErrLoadFailed        = errors.New("config: load failed")
	ErrParseFailed       = errors.New("config: parse failed")
	ErrInvalid           = errors.New("config: invalid settings")
)

// Settings is the complete configuration of the dispatch service.
type Settings struct {
	Log  LogSettings  `koanf:"log"`
	HTTP HTTPSettings `koanf:"http"`
	// Controls holds named integer controls, such as
	// TextureFetchConcurrency, consulted by class.Resolve and by the
	// coprocedure pools.
	Controls map[string]uint32 `koanf:"controls"`
	// Retry overrides the retry tunables of a class, keyed by class name.
	Retry map[string]RetrySettings `koanf:"retry"`
	// Throttle caps the request rate of a class in requests per second,
	// keyed by class name. Zero or absent means no cap.
	Throttle map[string]float64 `koanf:"throttle"`
}

// LogSettings configures the service logger.
type LogSettings struct {
	Level      string `koanf:"level"`
	Format     string `koanf:"format"`
	File       string `koanf:"file"`
	MaxSizeMB  int    `koanf:"max_size_mb"`
	MaxBackups int    `koanf:"max_backups"`
	MaxAgeDays int    `koanf:"max_age_days"`
	Compress   bool   `koanf:"compress"`
}

// HTTPSettings configures the shared transport.
type HTTPSettings struct {
	// CAFile is a PEM bundle of additional trusted roots.
	CAFile string `koanf:"ca_file"`
	// Proxy is the URL of an HTTP proxy for all traffic.
	Proxy string `koanf:"proxy"`
	// Trace sets the verbosity of per-attempt debug logging: 0 logs
	// nothing per attempt, 1 logs failures, 2 logs every attempt.
	Trace int `koanf:"trace"`
	// StopTimeout bounds how long Stop waits for in-flight requests.
	StopTimeout time.Duration `koanf:"stop_timeout"`
	// AttemptTimeout is the timeout of each request attempt.
	AttemptTimeout time.Duration `koanf:"attempt_timeout"`
}

// RetrySettings overrides a class's retry tunables. Zero fields keep
// the class default.
type RetrySettings struct {
	MinDelay   time.Duration `koanf:"min_delay"`
	MaxDelay   time.Duration `koanf:"max_delay"`
	Backoff    float64       `koanf:"backoff"`
	MaxRetries *int          `koanf:"max_retries"`
}

// Default returns the settings used when no file is given.
func Default() Settings {
	return Settings{
		Log: LogSettings{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 7,
			Compress:   true,
		},
		HTTP: HTTPSettings{
			StopTimeout:    10 * time.Second,
			AttemptTimeout: 30 * time.Second,
		},
		Controls: map[string]uint32{},
		Retry:    map[string]RetrySettings{},
		Throttle: map[string]float64{},
	}
}

// Load reads settings from a YAML or JSON file, chosen by extension,
// on top of Default. The result is validated.
func Load(path string) (Settings, error) {
	if path == "" {
		return Settings{}, ErrEmptyPath
	}
	format, err := DetectFormat(path)
	if err != nil {
		return Settings{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("%w: %w", ErrLoadFailed, err)
	}
	return LoadBytes(data, format)
}

// LoadBytes parses settings in the given format on top of Default. An
// empty input yields the defaults. The result is validated.
func LoadBytes(data []byte, format Format) (Settings, error) {
	var parser koanf.Parser
	switch format {
	case FormatYAML:
		parser = yaml.Parser()
	case FormatJSON:
		parser = json.Parser()
	default:
		return Settings{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	s := Default()
	if len(data) == 0 {
		return s, nil
	}
	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(data), parser); err != nil {
		return Settings{}, fmt.Errorf("%w: %w", ErrParseFailed, err)
	}
	if err := k.UnmarshalWithConf("", &s, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return Settings{}, fmt.Errorf("%w: %w", ErrParseFailed, err)
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// DetectFormat returns the format implied by the extension of path.
func DetectFormat(path string) (Format, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: unknown extension %q", ErrUnsupportedFormat, ext)
	}
}

// Validate checks every setting and returns all problems found, joined,
// each wrapping ErrInvalid.
func (s Settings) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	switch strings.ToLower(s.Log.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		bad("log.level %q", s.Log.Level)
	}
	switch strings.ToLower(s.Log.Format) {
	case "", "text", "json":
	default:
		bad("log.format %q", s.Log.Format)
	}
	if s.Log.MaxSizeMB < 0 || s.Log.MaxBackups < 0 || s.Log.MaxAgeDays < 0 {
		bad("log rotation limits must not be negative")
	}

	if s.HTTP.Proxy != "" {
		if u, err := url.Parse(s.HTTP.Proxy); err != nil || u.Host == "" {
			bad("http.proxy %q", s.HTTP.Proxy)
		}
	}
	if s.HTTP.StopTimeout < 0 {
		bad("http.stop_timeout %v", s.HTTP.StopTimeout)
	}
	if s.HTTP.AttemptTimeout < 0 {
		bad("http.attempt_timeout %v", s.HTTP.AttemptTimeout)
	}

	for name, r := range s.Retry {
		c, err := class.Parse(name)
		if err != nil {
			bad("retry.%s: %v", name, err)
			continue
		}
		f := s.RetryFactory(c)
		switch {
		case r.MinDelay < 0 || r.MaxDelay < 0:
			bad("retry.%s: delays must not be negative", name)
		case f.Max < f.Min:
			bad("retry.%s: max_delay %v below min_delay %v", name, f.Max, f.Min)
		case r.Backoff != 0 && !(r.Backoff >= 1 && !math.IsInf(r.Backoff, 1)):
			bad("retry.%s: backoff %v must be a finite number of at least 1", name, r.Backoff)
		case r.MaxRetries != nil && *r.MaxRetries < 0:
			bad("retry.%s: max_retries %d", name, *r.MaxRetries)
		}
	}

	for name, rps := range s.Throttle {
		if _, err := class.Parse(name); err != nil {
			bad("throttle.%s: %v", name, err)
		} else if !(rps >= 0) || math.IsInf(rps, 1) {
			bad("throttle.%s: %v", name, rps)
		}
	}

	return errors.Join(errs...)
}

// RetryFactory returns the retry tunables for c: the class defaults
// with any override from s.Retry applied.
func (s Settings) RetryFactory(c class.Class) retry.AdaptiveFactory {
	f := class.Info(c).Retry
	r, ok := s.retryOverride(c)
	if !ok {
		return f
	}
	if r.MinDelay > 0 {
		f.Min = r.MinDelay
	}
	if r.MaxDelay > 0 {
		f.Max = r.MaxDelay
	}
	if r.Backoff != 0 {
		f.Factor = r.Backoff
	}
	if r.MaxRetries != nil {
		f.MaxRetries = *r.MaxRetries
	}
	return f
}

func (s Settings) retryOverride(c class.Class) (RetrySettings, bool) {
	for name, r := range s.Retry {
		if parsed, err := class.Parse(name); err == nil && parsed == c {
			return r, true
		}
	}
	return RetrySettings{}, false
}

// ThrottleFor returns the request rate cap of c, or zero if c is not
// throttled.
func (s Settings) ThrottleFor(c class.Class) float64 {
	for name, rps := range s.Throttle {
		if parsed, err := class.Parse(name); err == nil && parsed == c {
			return rps
		}
	}
	return 0
}
