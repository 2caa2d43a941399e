package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/wasteops/fieldsync/internal/flagx"
	"github.com/wasteops/fieldsync/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. It relies on
// timex.Duration so JSON can specify intervals either as strings like "3s"
// or as integer nanoseconds. After parsing, values are copied into the
// runtime Config (which uses time.Duration).
type JsonConfig struct {
	BackendURL          string         `json:"backend_url"`
	DatabasePath        string         `json:"database_path"`
	Technician          string         `json:"technician"`
	OnlineCheckInterval timex.Duration `json:"online_check_interval"`
	OfflineWarning      timex.Duration `json:"offline_warning"`
	OfflineOrange       timex.Duration `json:"offline_orange"`
	OfflineCritical     timex.Duration `json:"offline_critical"`
	OfflineCeiling      timex.Duration `json:"offline_ceiling"`
	SyncBackoffBase     timex.Duration `json:"sync_backoff_base"`
	SyncBackoffCap      timex.Duration `json:"sync_backoff_cap"`
}

// parseJson overlays Config with values loaded from a JSON file selected via
// the -c / -config flags. A missing path means no JSON is loaded. Read or
// unmarshal errors panic; LoadConfig runs before any background work starts.
// Fields absent from the file keep their earlier values.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.BackendURL != "" {
		cfg.BackendURL = jc.BackendURL
	}
	if jc.DatabasePath != "" {
		cfg.DatabasePath = jc.DatabasePath
	}
	if jc.Technician != "" {
		cfg.Technician = jc.Technician
	}
	setDuration(&cfg.OnlineCheckInterval, jc.OnlineCheckInterval)
	setDuration(&cfg.OfflineWarning, jc.OfflineWarning)
	setDuration(&cfg.OfflineOrange, jc.OfflineOrange)
	setDuration(&cfg.OfflineCritical, jc.OfflineCritical)
	setDuration(&cfg.OfflineCeiling, jc.OfflineCeiling)
	setDuration(&cfg.SyncBackoffBase, jc.SyncBackoffBase)
	setDuration(&cfg.SyncBackoffCap, jc.SyncBackoffCap)
}

func setDuration(dst *time.Duration, src timex.Duration) {
	if src.Duration != 0 {
		*dst = src.Duration
	}
}
