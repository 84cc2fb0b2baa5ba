// Package config loads and validates the daemon's configuration, following
// the teacher's JSON-with-custom-Duration-marshaling idiom
// (scheduler/config.go) and adding godotenv for secrets the JSON file
// should never carry (API tokens, MQTT credentials).
package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config is the daemon's full configuration.
type Config struct {
	// Scheduler settings (component design §4.1)
	UpdateInterval  time.Duration `json:"update_interval"`
	OptimizeTimeout time.Duration `json:"optimize_timeout"`
	Location        string        `json:"location"` // e.g. "CET"
	DryRun          bool          `json:"dry_run"`

	// Optimizer backend selection
	BackendKind     string `json:"backend_kind"` // "eos" or "evopt"
	BackendBaseURL  string `json:"backend_base_url"`
	EVoptTimeFrameBase int `json:"evopt_time_frame_base"` // seconds; 3600 or 900

	// Inverter driver selection
	InverterDriver     string `json:"inverter_driver"` // "sigenergy" or "fronius"
	PlantModbusAddress string `json:"plant_modbus_address"`
	FroniusBaseURL     string `json:"fronius_base_url"`

	// Weather/forecast settings
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	UserAgent      string  `json:"user_agent"`
	PanelCapacityW float64 `json:"panel_capacity_w"`

	// Load fallback
	HouseholdDailyAverageW float64 `json:"household_daily_average_w"`

	// EV charger (evcc)
	EVCCBaseURL string `json:"evcc_base_url"`

	// Price settings
	URLFormat              string  `json:"url_format"`
	NegativePriceSwitch    bool    `json:"negative_price_switch"`
	FlatFeedinTariff       float64 `json:"flat_feedin_tariff"` // €/Wh
	ImportPriceOperatorFee float64 `json:"import_price_operator_fee"`
	ImportPriceDeliveryFee float64 `json:"import_price_delivery_fee"`
	ExportPriceOperatorFee float64 `json:"export_price_operator_fee"`
	PriceHistoryDSN        string  `json:"-"` // loaded from env; empty disables the cache

	// Battery/inverter static spec
	BatteryCapacityWh float64 `json:"battery_capacity_wh"`
	BatteryMaxChargeW float64 `json:"battery_max_charge_w"`
	BatteryMinSoCPct  float64 `json:"battery_min_soc_pct"`
	BatteryMaxSoCPct  float64 `json:"battery_max_soc_pct"`
	BatteryChargeEff  float64 `json:"battery_charge_eff"`
	BatteryDischargeEff float64 `json:"battery_discharge_eff"`
	InverterMaxW      float64 `json:"inverter_max_w"`

	// MQTT settings
	MQTTBrokerURL string `json:"mqtt_broker_url"`
	MQTTClientID  string `json:"mqtt_client_id"`
	MQTTTopicRoot string `json:"mqtt_topic_root"`

	// HTTP API settings
	HTTPPort int `json:"http_port"`

	// Logging
	LogLevel  string `json:"log_level"`
	LogFormat string `json:"log_format"`

	// Secrets — never stored in the JSON file, loaded from the environment
	// (.env via godotenv, or the process environment directly).
	SecurityToken string `json:"-"`
	MQTTUsername  string `json:"-"`
	MQTTPassword  string `json:"-"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		UpdateInterval:         5 * time.Minute,
		OptimizeTimeout:        20 * time.Second,
		Location:               "CET",
		BackendKind:            "eos",
		BackendBaseURL:         "http://localhost:8503",
		EVoptTimeFrameBase:     3600,
		InverterDriver:         "sigenergy",
		Latitude:               56.9496,
		Longitude:              24.1052,
		UserAgent:              "ems-daemon/1.0",
		PanelCapacityW:         8000,
		HouseholdDailyAverageW: 600,
		URLFormat:              "https://web-api.tp.entsoe.eu/api?documentType=A44&out_Domain=10YLV-1001A00074&in_Domain=10YLV-1001A00074&periodStart=%s&periodEnd=%s&securityToken=%s",
		FlatFeedinTariff:       0.00008,
		ImportPriceOperatorFee: 0.0000085,
		ImportPriceDeliveryFee: 0.00004,
		ExportPriceOperatorFee: 0.000017,
		BatteryCapacityWh:      10000,
		BatteryMaxChargeW:      5000,
		BatteryMinSoCPct:       10,
		BatteryMaxSoCPct:       100,
		BatteryChargeEff:       0.95,
		BatteryDischargeEff:    0.95,
		InverterMaxW:           10000,
		MQTTTopicRoot:          "ems",
		HTTPPort:               8080,
		LogLevel:               "info",
		LogFormat:              "text",
	}
}

// LoadConfig reads the JSON config file, then overlays secrets from the
// environment (loading envPath via godotenv first if it exists).
func LoadConfig(filename, envPath string) (*Config, error) {
	if envPath != "" {
		if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load env file: %w", err)
		}
	}

	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	cfg, err := LoadConfigFromReader(file)
	if err != nil {
		return nil, err
	}

	cfg.SecurityToken = os.Getenv("ENTSOE_SECURITY_TOKEN")
	cfg.MQTTUsername = os.Getenv("MQTT_USERNAME")
	cfg.MQTTPassword = os.Getenv("MQTT_PASSWORD")
	cfg.PriceHistoryDSN = os.Getenv("PRICE_HISTORY_DSN")

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadConfigFromReader loads configuration from an io.Reader, without
// touching the environment.
func LoadConfigFromReader(reader io.Reader) (*Config, error) {
	cfg := DefaultConfig()
	decoder := json.NewDecoder(reader)
	if err := decoder.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config JSON: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration values are self-consistent.
func (c *Config) Validate() error {
	if c.UpdateInterval <= 0 {
		return fmt.Errorf("update_interval must be greater than 0, got: %s", c.UpdateInterval)
	}
	if c.OptimizeTimeout <= 0 {
		return fmt.Errorf("optimize_timeout must be greater than 0, got: %s", c.OptimizeTimeout)
	}
	if c.BackendKind != "eos" && c.BackendKind != "evopt" {
		return fmt.Errorf("backend_kind must be \"eos\" or \"evopt\", got: %s", c.BackendKind)
	}
	if c.BackendBaseURL == "" {
		return fmt.Errorf("backend_base_url cannot be empty")
	}
	if c.InverterDriver != "sigenergy" && c.InverterDriver != "fronius" {
		return fmt.Errorf("inverter_driver must be \"sigenergy\" or \"fronius\", got: %s", c.InverterDriver)
	}
	if c.Latitude < -90 || c.Latitude > 90 {
		return fmt.Errorf("latitude must be between -90 and 90, got: %f", c.Latitude)
	}
	if c.Longitude < -180 || c.Longitude > 180 {
		return fmt.Errorf("longitude must be between -180 and 180, got: %f", c.Longitude)
	}
	if c.BatteryCapacityWh < 0 {
		return fmt.Errorf("battery_capacity_wh must be non-negative, got: %f", c.BatteryCapacityWh)
	}
	if c.BatteryMinSoCPct < 0 || c.BatteryMinSoCPct > 100 {
		return fmt.Errorf("battery_min_soc_pct must be between 0 and 100, got: %f", c.BatteryMinSoCPct)
	}
	if c.BatteryMaxSoCPct < 0 || c.BatteryMaxSoCPct > 100 {
		return fmt.Errorf("battery_max_soc_pct must be between 0 and 100, got: %f", c.BatteryMaxSoCPct)
	}
	if c.BatteryMinSoCPct > c.BatteryMaxSoCPct {
		return fmt.Errorf("battery_min_soc_pct (%f) cannot exceed battery_max_soc_pct (%f)", c.BatteryMinSoCPct, c.BatteryMaxSoCPct)
	}
	if c.HTTPPort < 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("http_port must be between 0 and 65535, got: %d", c.HTTPPort)
	}
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log_level: %s", c.LogLevel)
	}
	return nil
}

// MarshalJSON implements custom JSON marshaling to render durations as
// human-readable strings instead of raw nanosecond counts.
func (c *Config) MarshalJSON() ([]byte, error) {
	type Alias Config
	return json.Marshal(&struct {
		*Alias
		UpdateInterval  string `json:"update_interval"`
		OptimizeTimeout string `json:"optimize_timeout"`
	}{
		Alias:           (*Alias)(c),
		UpdateInterval:  c.UpdateInterval.String(),
		OptimizeTimeout: c.OptimizeTimeout.String(),
	})
}

// UnmarshalJSON implements custom JSON unmarshaling to parse duration
// strings back into time.Duration.
func (c *Config) UnmarshalJSON(data []byte) error {
	type Alias Config
	aux := &struct {
		*Alias
		UpdateInterval  string `json:"update_interval"`
		OptimizeTimeout string `json:"optimize_timeout"`
	}{Alias: (*Alias)(c)}

	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}

	var err error
	if aux.UpdateInterval != "" {
		if c.UpdateInterval, err = time.ParseDuration(aux.UpdateInterval); err != nil {
			return fmt.Errorf("invalid update_interval: %w", err)
		}
	}
	if aux.OptimizeTimeout != "" {
		if c.OptimizeTimeout, err = time.ParseDuration(aux.OptimizeTimeout); err != nil {
			return fmt.Errorf("invalid optimize_timeout: %w", err)
		}
	}
	return nil
}
