package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Tracking TrackingConfig `yaml:"tracking"`
	Relay    RelayConfig    `yaml:"relay"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	GeoIP    GeoIPConfig    `yaml:"geoip"`
	Debug    bool           `yaml:"debug"`
}

type ServerConfig struct {
	HTTPPort int `yaml:"http_port"`
}

type TrackingConfig struct {
	DebounceMs       int      `yaml:"debounce_ms"`
	FallbackCurrency string   `yaml:"fallback_currency"`
	CartEndpoint     string   `yaml:"cart_endpoint"`
	RemoveActions    []string `yaml:"remove_actions"`
	SessionTTL       string   `yaml:"session_ttl"`
}

// SessionTTLDuration parses the session TTL, defaulting to 30 minutes.
func (t TrackingConfig) SessionTTLDuration() time.Duration {
	if d, err := time.ParseDuration(t.SessionTTL); err == nil && d > 0 {
		return d
	}
	return 30 * time.Minute
}

type RelayConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	WriteKey      string `yaml:"write_key"`
	SkipSSLVerify bool   `yaml:"skip_ssl_verify"`
}

type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type GeoIPConfig struct {
	DatabasePath string `yaml:"database_path"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
