package config

import (
	"fmt"
	"strings"
	"time"
)

// Resolved defaults. Raw config keeps durations as strings for strict
// decoding; Resolve methods turn each section into ready-to-use settings.
const (
	DefaultRunnerTimezone  = "UTC"
	DefaultRefreshInterval = time.Second
	DefaultMaxCacheEntries = 8

	DefaultHTTPAddr         = "127.0.0.1:8080"
	DefaultHTTPReadTimeout  = 10 * time.Second
	DefaultHTTPWriteTimeout = 30 * time.Second
	DefaultHTTPIdleTimeout  = 60 * time.Second
	DefaultHTTPRatePerSec   = 20
	DefaultHTTPBurst        = 40

	DefaultStorageDriver = "file"
	DefaultStoragePath   = "./cronlens_store"
)

// ParseDurationField parses an optional duration string from the raw config.
// Empty means unset and resolves to 0; negative values are rejected. key names
// the config field for error messages.
func ParseDurationField(key, raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	switch {
	case err != nil:
		return 0, fmt.Errorf("%s: %q is not a duration: %w", key, raw, err)
	case d < 0:
		return 0, fmt.Errorf("%s: negative durations are not allowed", key)
	}
	return d, nil
}

// ParseDurationOrDefault is ParseDurationField with a fallback for unset
// fields.
func ParseDurationOrDefault(key, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(key, raw)
	if err != nil {
		return 0, err
	}
	if d == 0 {
		return def, nil
	}
	return d, nil
}

type CalendarSettings struct {
	RunnerTimezone     string
	ProjectionTimezone string
	RefreshInterval    time.Duration
	MaxCacheEntries    int
}

func (c CalendarConfig) Resolve() (CalendarSettings, error) {
	s := CalendarSettings{
		RunnerTimezone:     strings.TrimSpace(c.RunnerTimezone),
		ProjectionTimezone: strings.TrimSpace(c.ProjectionTimezone),
		MaxCacheEntries:    c.MaxCacheEntries,
	}
	if s.RunnerTimezone == "" {
		s.RunnerTimezone = DefaultRunnerTimezone
	}
	if s.ProjectionTimezone == "" {
		s.ProjectionTimezone = s.RunnerTimezone
	}
	iv, err := ParseDurationOrDefault("calendar.refresh_interval", c.RefreshInterval, DefaultRefreshInterval)
	if err != nil {
		return CalendarSettings{}, err
	}
	s.RefreshInterval = iv
	if s.MaxCacheEntries == 0 {
		s.MaxCacheEntries = DefaultMaxCacheEntries
	}
	if s.MaxCacheEntries < 0 {
		s.MaxCacheEntries = 0
	}
	return s, nil
}

type HTTPSettings struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	RatePerSec   int
	Burst        int
}

func (c HTTPConfig) Resolve() (HTTPSettings, error) {
	s := HTTPSettings{
		Addr:       strings.TrimSpace(c.Addr),
		RatePerSec: c.RatePerSec,
		Burst:      c.Burst,
	}
	if s.Addr == "" {
		s.Addr = DefaultHTTPAddr
	}
	var err error
	if s.ReadTimeout, err = ParseDurationOrDefault("http.read_timeout", c.ReadTimeout, DefaultHTTPReadTimeout); err != nil {
		return HTTPSettings{}, err
	}
	if s.WriteTimeout, err = ParseDurationOrDefault("http.write_timeout", c.WriteTimeout, DefaultHTTPWriteTimeout); err != nil {
		return HTTPSettings{}, err
	}
	if s.IdleTimeout, err = ParseDurationOrDefault("http.idle_timeout", c.IdleTimeout, DefaultHTTPIdleTimeout); err != nil {
		return HTTPSettings{}, err
	}
	if s.RatePerSec == 0 && s.Burst == 0 {
		s.RatePerSec = DefaultHTTPRatePerSec
		s.Burst = DefaultHTTPBurst
	}
	if s.RatePerSec < 0 {
		return HTTPSettings{}, fmt.Errorf("http.rate_per_sec: must be >= 0")
	}
	if s.Burst < s.RatePerSec {
		s.Burst = s.RatePerSec
	}
	return s, nil
}

type StorageSettings struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration
	SeedDemo    bool
}

// ResolveStorage applies defaults for an omitted storage section.
func ResolveStorage(c *StorageConfig) (StorageSettings, error) {
	s := StorageSettings{Driver: DefaultStorageDriver, Path: DefaultStoragePath}
	if c == nil {
		return s, nil
	}
	if d := strings.TrimSpace(c.Driver); d != "" {
		s.Driver = d
	}
	if p := strings.TrimSpace(c.Path); p != "" {
		s.Path = p
	}
	bt, err := ParseDurationField("storage.busy_timeout", c.BusyTimeout)
	if err != nil {
		return StorageSettings{}, err
	}
	s.BusyTimeout = bt
	s.SeedDemo = c.SeedDemo
	switch s.Driver {
	case "file", "sqlite":
	default:
		return StorageSettings{}, fmt.Errorf("storage.driver: unknown driver %q", s.Driver)
	}
	return s, nil
}
