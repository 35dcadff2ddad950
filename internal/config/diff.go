package config

import (
	"sort"
	"strings"

	logx "cronlens/pkg/logx"
)

// SummarizeConfigChange returns (1) a compact list of changed sections and
// (2) safe structured attrs for logging (never includes secrets like the
// pprof token).
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 5)
	attrs := make([]logx.Field, 0, 16)

	// Logging
	if oldCfg.Logging.Level != newCfg.Logging.Level ||
		oldCfg.Logging.Console != newCfg.Logging.Console ||
		oldCfg.Logging.File.Enabled != newCfg.Logging.File.Enabled ||
		strings.TrimSpace(oldCfg.Logging.File.Path) != strings.TrimSpace(newCfg.Logging.File.Path) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	// Calendar
	if strings.TrimSpace(oldCfg.Calendar.RunnerTimezone) != strings.TrimSpace(newCfg.Calendar.RunnerTimezone) ||
		strings.TrimSpace(oldCfg.Calendar.ProjectionTimezone) != strings.TrimSpace(newCfg.Calendar.ProjectionTimezone) ||
		strings.TrimSpace(oldCfg.Calendar.RefreshInterval) != strings.TrimSpace(newCfg.Calendar.RefreshInterval) ||
		oldCfg.Calendar.MaxCacheEntries != newCfg.Calendar.MaxCacheEntries {
		changed = append(changed, "calendar")
		attrs = append(attrs,
			logx.String("calendar.runner_timezone", strings.TrimSpace(newCfg.Calendar.RunnerTimezone)),
			logx.String("calendar.projection_timezone", strings.TrimSpace(newCfg.Calendar.ProjectionTimezone)),
			logx.String("calendar.refresh_interval", strings.TrimSpace(newCfg.Calendar.RefreshInterval)),
			logx.Int("calendar.max_cache_entries", newCfg.Calendar.MaxCacheEntries),
		)
	}

	// HTTP
	if strings.TrimSpace(oldCfg.HTTP.Addr) != strings.TrimSpace(newCfg.HTTP.Addr) ||
		strings.TrimSpace(oldCfg.HTTP.ReadTimeout) != strings.TrimSpace(newCfg.HTTP.ReadTimeout) ||
		strings.TrimSpace(oldCfg.HTTP.WriteTimeout) != strings.TrimSpace(newCfg.HTTP.WriteTimeout) ||
		strings.TrimSpace(oldCfg.HTTP.IdleTimeout) != strings.TrimSpace(newCfg.HTTP.IdleTimeout) ||
		oldCfg.HTTP.RatePerSec != newCfg.HTTP.RatePerSec ||
		oldCfg.HTTP.Burst != newCfg.HTTP.Burst {
		changed = append(changed, "http")
		attrs = append(attrs,
			logx.String("http.addr", strings.TrimSpace(newCfg.HTTP.Addr)),
			logx.Int("http.rate_per_sec", newCfg.HTTP.RatePerSec),
			logx.Int("http.burst", newCfg.HTTP.Burst),
		)
	}

	// Pprof (never log token)
	if oldCfg.Pprof.Enabled != newCfg.Pprof.Enabled ||
		strings.TrimSpace(oldCfg.Pprof.Addr) != strings.TrimSpace(newCfg.Pprof.Addr) ||
		strings.TrimSpace(oldCfg.Pprof.Prefix) != strings.TrimSpace(newCfg.Pprof.Prefix) ||
		oldCfg.Pprof.AllowInsecure != newCfg.Pprof.AllowInsecure ||
		strings.TrimSpace(oldCfg.Pprof.ReadTimeout) != strings.TrimSpace(newCfg.Pprof.ReadTimeout) ||
		strings.TrimSpace(oldCfg.Pprof.WriteTimeout) != strings.TrimSpace(newCfg.Pprof.WriteTimeout) ||
		strings.TrimSpace(oldCfg.Pprof.IdleTimeout) != strings.TrimSpace(newCfg.Pprof.IdleTimeout) ||
		oldCfg.Pprof.MutexProfileFraction != newCfg.Pprof.MutexProfileFraction ||
		oldCfg.Pprof.BlockProfileRate != newCfg.Pprof.BlockProfileRate ||
		oldCfg.Pprof.MemProfileRate != newCfg.Pprof.MemProfileRate ||
		(strings.TrimSpace(oldCfg.Pprof.Token) != "") != (strings.TrimSpace(newCfg.Pprof.Token) != "") {
		changed = append(changed, "pprof")
		attrs = append(attrs,
			logx.Bool("pprof.enabled", newCfg.Pprof.Enabled),
			logx.String("pprof.addr", strings.TrimSpace(newCfg.Pprof.Addr)),
			logx.Bool("pprof.token_set", strings.TrimSpace(newCfg.Pprof.Token) != ""),
			logx.Bool("pprof.allow_insecure", newCfg.Pprof.AllowInsecure),
		)
	}

	// Storage (nil means defaults)
	oldS := oldCfg.Storage
	newS := newCfg.Storage
	var oDriver, nDriver, oBusy, nBusy string
	var oPathSet, nPathSet, oSeed, nSeed bool
	if oldS != nil {
		oDriver = strings.TrimSpace(oldS.Driver)
		oBusy = strings.TrimSpace(oldS.BusyTimeout)
		oPathSet = strings.TrimSpace(oldS.Path) != ""
		oSeed = oldS.SeedDemo
	}
	if newS != nil {
		nDriver = strings.TrimSpace(newS.Driver)
		nBusy = strings.TrimSpace(newS.BusyTimeout)
		nPathSet = strings.TrimSpace(newS.Path) != ""
		nSeed = newS.SeedDemo
	}
	if oDriver != nDriver || oBusy != nBusy || oPathSet != nPathSet || oSeed != nSeed {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", nDriver),
			logx.Bool("storage.path_set", nPathSet),
			logx.String("storage.busy_timeout", nBusy),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}
