package config

type Config struct {
	Logging  LoggingConfig  `json:"logging"`
	Calendar CalendarConfig `json:"calendar"`
	HTTP     HTTPConfig     `json:"http"`
	Pprof    PprofConfig    `json:"pprof,omitempty"`

	// Storage controls the schedule persistence layer. If omitted, the file
	// driver is used with a default path next to the working directory.
	Storage *StorageConfig `json:"storage,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// CalendarConfig controls occurrence evaluation and projection.
//
// All durations are Go duration strings (e.g. "500ms", "1s").
//
// Defaults (when fields are omitted/zero):
//   - runner_timezone: "UTC"
//   - projection_timezone: runner_timezone
//   - refresh_interval: "1s"
//   - max_cache_entries: 8
type CalendarConfig struct {
	// RunnerTimezone is the IANA zone cron fields are interpreted in.
	RunnerTimezone string `json:"runner_timezone,omitempty"`

	// ProjectionTimezone is the IANA zone day views are rendered in.
	ProjectionTimezone string `json:"projection_timezone,omitempty"`

	// RefreshInterval drives the running-set re-evaluation loop.
	RefreshInterval string `json:"refresh_interval,omitempty"`

	// MaxCacheEntries caps the month evaluation memo. 0 uses the default;
	// negative disables caching.
	MaxCacheEntries int `json:"max_cache_entries,omitempty"`
}

// HTTPConfig controls the API server.
//
// Defaults (when fields are omitted/zero):
//   - addr: "127.0.0.1:8080"
//   - read_timeout: "10s"
//   - write_timeout: "30s"
//   - idle_timeout: "60s"
//   - rate_per_sec: 20, burst: 40 (0 disables rate limiting)
type HTTPConfig struct {
	Addr string `json:"addr,omitempty"`

	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`

	RatePerSec int `json:"rate_per_sec,omitempty"`
	Burst      int `json:"burst,omitempty"`
}

// StorageConfig controls the persistence layer.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./cronlens_store" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)

	// SeedDemo populates an empty store with a small demo schedule set on
	// first start.
	SeedDemo bool `json:"seed_demo,omitempty"`
}

// PprofConfig controls the optional pprof HTTP server.
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:6060").
//   - If you bind to a non-loopback address, set a token or explicitly allow_insecure.
type PprofConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`   // default: "127.0.0.1:6060"
	Prefix        string `json:"prefix,omitempty"` // default: "/debug/pprof/"
	Token         string `json:"token,omitempty"`  // optional bearer token (do not log)
	AllowInsecure bool   `json:"allow_insecure,omitempty"`

	// Server timeouts (Go duration strings). WriteTimeout defaults to 0 (disabled)
	// so /profile (which can take 30s+) works reliably.
	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`

	// Runtime profiling rates. Leave 0 to keep Go defaults.
	MutexProfileFraction int `json:"mutex_profile_fraction,omitempty"`
	BlockProfileRate     int `json:"block_profile_rate,omitempty"`
	MemProfileRate       int `json:"mem_profile_rate,omitempty"`
}
