package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestParseYAML(t *testing.T) {
	t.Parallel()
	path := writeTemp(t, "config.yaml", `
logging:
  level: debug
  console: true
calendar:
  runner_timezone: Europe/Madrid
  refresh_interval: 2s
http:
  addr: 127.0.0.1:9090
storage:
  driver: sqlite
  path: ./data.db
  busy_timeout: 5s
`)

	m := NewManager(path)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Logging.Level != "debug" || !cfg.Logging.Console {
		t.Fatalf("logging section wrong: %+v", cfg.Logging)
	}
	if cfg.Calendar.RunnerTimezone != "Europe/Madrid" {
		t.Fatalf("runner timezone = %q", cfg.Calendar.RunnerTimezone)
	}
	if cfg.Storage == nil || cfg.Storage.Driver != "sqlite" {
		t.Fatalf("storage section wrong: %+v", cfg.Storage)
	}
	if got := m.Get(); got != cfg {
		t.Fatal("Get did not return the committed config")
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	path := writeTemp(t, "config.yaml", `
calendar:
  runner_timezone: UTC
  not_a_real_key: 1
`)

	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestParseRejectsTrailingJSON(t *testing.T) {
	t.Parallel()
	path := writeTemp(t, "config.json", `{"logging":{"level":"info"}}{"extra":true}`)

	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatal("expected error for trailing data")
	}
}

func TestCalendarResolveDefaults(t *testing.T) {
	t.Parallel()
	s, err := CalendarConfig{}.Resolve()
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if s.RunnerTimezone != "UTC" || s.ProjectionTimezone != "UTC" {
		t.Fatalf("timezone defaults wrong: %+v", s)
	}
	if s.RefreshInterval != time.Second {
		t.Fatalf("refresh interval = %v", s.RefreshInterval)
	}
	if s.MaxCacheEntries != DefaultMaxCacheEntries {
		t.Fatalf("cache entries = %d", s.MaxCacheEntries)
	}

	s, err = CalendarConfig{RunnerTimezone: "Asia/Tokyo"}.Resolve()
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if s.ProjectionTimezone != "Asia/Tokyo" {
		t.Fatalf("projection timezone should follow runner: %+v", s)
	}

	if _, err := (CalendarConfig{RefreshInterval: "soon"}).Resolve(); err == nil {
		t.Fatal("expected error for bad refresh interval")
	}
}

func TestHTTPResolve(t *testing.T) {
	t.Parallel()
	s, err := HTTPConfig{}.Resolve()
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if s.Addr != DefaultHTTPAddr || s.RatePerSec != DefaultHTTPRatePerSec || s.Burst != DefaultHTTPBurst {
		t.Fatalf("defaults wrong: %+v", s)
	}

	s, err = HTTPConfig{RatePerSec: 5, Burst: 2}.Resolve()
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if s.Burst != 5 {
		t.Fatalf("burst should be raised to the rate: %+v", s)
	}
}

func TestResolveStorage(t *testing.T) {
	t.Parallel()
	s, err := ResolveStorage(nil)
	if err != nil {
		t.Fatalf("ResolveStorage error: %v", err)
	}
	if s.Driver != "file" || s.Path == "" {
		t.Fatalf("defaults wrong: %+v", s)
	}

	if _, err := ResolveStorage(&StorageConfig{Driver: "redis"}); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	t.Parallel()
	oldCfg := &Config{Calendar: CalendarConfig{RunnerTimezone: "UTC"}}
	newCfg := &Config{
		Calendar: CalendarConfig{RunnerTimezone: "Europe/Madrid"},
		HTTP:     HTTPConfig{Addr: ":9000"},
	}

	changed, _ := SummarizeConfigChange(oldCfg, newCfg)
	want := map[string]bool{"calendar": true, "http": true}
	if len(changed) != len(want) {
		t.Fatalf("changed = %v", changed)
	}
	for _, c := range changed {
		if !want[c] {
			t.Fatalf("unexpected section %q in %v", c, changed)
		}
	}
}

func TestSubscribeDropOldest(t *testing.T) {
	t.Parallel()
	m := NewManager("unused")
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	first := &Config{Logging: LoggingConfig{Level: "info"}}
	second := &Config{Logging: LoggingConfig{Level: "debug"}}
	m.publish(first)
	m.publish(second)

	got := <-ch
	if got != second {
		t.Fatalf("subscriber got %+v, want the latest config", got.Logging)
	}
}
