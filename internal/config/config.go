package config

import "time"

// Config holds runtime settings for the fieldsync CLI.
//
// Fields:
//   - BackendURL: base URL of the dispatch backend HTTP API.
//   - DatabasePath: SQLite file backing the local store.
//   - Technician: user recorded on started service types.
//   - OnlineCheckInterval: how often the client probes backend reachability.
//   - OfflineWarning/Orange/Critical/Ceiling: graduated offline-work limits.
//   - SyncBackoffBase/SyncBackoffCap: retry backoff for failed deliveries.
//
// Units: all intervals are time.Duration values.
type Config struct {
	BackendURL          string
	DatabasePath        string
	Technician          string
	OnlineCheckInterval time.Duration
	OfflineWarning      time.Duration
	OfflineOrange       time.Duration
	OfflineCritical     time.Duration
	OfflineCeiling      time.Duration
	SyncBackoffBase     time.Duration
	SyncBackoffCap      time.Duration
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.BackendURL = "http://127.0.0.1:8080"
	c.DatabasePath = "fieldsync.db"
	c.Technician = "technician"
	c.OnlineCheckInterval = 3 * time.Second
	c.OfflineWarning = 8 * time.Hour
	c.OfflineOrange = 9 * time.Hour
	c.OfflineCritical = 9*time.Hour + 30*time.Minute
	c.OfflineCeiling = 10 * time.Hour
	c.SyncBackoffBase = time.Second
	c.SyncBackoffCap = 2 * time.Minute
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
