package config

import (
	_ "embed"
	"encoding/json"
	"os"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
)

type Config struct {
	Quota struct {
		DefaultRegionQuota int64 `json:"default_region_quota"`
		DefaultHostQuota   int64 `json:"default_host_quota"`
		WarnPercent        int   `json:"warn_percent"`
	} `json:"quota"`

	Allocation struct {
		MaxRetries          int    `json:"max_retries"`
		RetryBackoffMs      uint32 `json:"retry_backoff_ms"`
		SingleTimeoutSecs   uint32 `json:"single_timeout_secs"`
		BatchTimeoutSecs    uint32 `json:"batch_timeout_secs"`
		CapacityWarnPercent int    `json:"capacity_warn_percent"`
	} `json:"allocation"`

	Cache struct {
		IndexTTLSecs  uint32 `json:"index_ttl_secs"`
		QuotaTTLSecs  uint32 `json:"quota_ttl_secs"`
		RefMapTTLSecs uint32 `json:"refmap_ttl_secs"`
		StatsTTLSecs  uint32 `json:"stats_ttl_secs"`
	} `json:"cache"`

	Reservation struct {
		DefaultDays int   `json:"default_days"`
		SweepTimer  Timer `json:"sweep_timer"`
	} `json:"reservation"`
}

type Timer struct {
	Days    uint32 `json:"days"`
	Hours   uint32 `json:"hours"`
	Minutes uint32 `json:"minutes"`
	Seconds uint32 `json:"seconds"`
}

const settingsFilePath = "data/settings.json"

var (
	//go:embed default_settings.json
	defaultConfig []byte

	configValue atomic.Value
	configMu    sync.Mutex
)

func init() {
	cfg, err := parseConfig(defaultConfig)
	if err != nil {
		cfg = Config{}
	}
	configValue.Store(cfg)
}

// ReadSettings loads data/settings.json, creating it from the embedded
// defaults when absent.
func ReadSettings() {
	data, err := os.ReadFile(settingsFilePath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warn("Settings file not found, creating with default configuration")

			if err := os.MkdirAll("data", os.ModePerm); err != nil {
				log.Error("Error creating directory for settings file:", err)
				return
			}
			if err := os.WriteFile(settingsFilePath, defaultConfig, os.ModePerm); err != nil {
				log.Error("Error writing default settings file:", err)
				return
			}

			data = defaultConfig
		} else {
			log.Error("Error reading settings file:", err)
			return
		}
	}

	newConfig, err := parseConfig(data)
	if err != nil {
		log.Error("Error unmarshalling settings file:", err)
		return
	}

	applyConfigUpdate(newConfig, false)
	log.Debug("Settings file loaded successfully")
}

func GetConfig() Config {
	return configValue.Load().(Config)
}

// SetConfig applies a new configuration and persists it to disk.
func SetConfig(newConfig Config) {
	applyConfigUpdate(newConfig, true)
}

func parseConfig(data []byte) (Config, error) {
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyConfigUpdate(newConfig Config, persist bool) {
	configMu.Lock()
	defer configMu.Unlock()

	configValue.Store(newConfig)
	setSweepInterval(newConfig)

	if !persist {
		return
	}

	data, err := json.MarshalIndent(newConfig, "", "  ")
	if err != nil {
		log.Error("Error marshalling new configuration:", err)
		return
	}
	if err := os.WriteFile(settingsFilePath, data, os.ModePerm); err != nil {
		log.Error("Error writing new configuration to file:", err)
	}
}
