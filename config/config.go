package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/svitlobot/svitlo/infra/notify"
)

type Config struct {
	Sources  []SourceConfig `json:"sources"`
	Poll     PollConfig     `json:"poll"`
	Store    StoreConfig    `json:"store"`
	Delivery DeliveryConfig `json:"delivery"`
	API      APIConfig      `json:"api"`
	Metrics  MetricsConfig  `json:"metrics"`
	Sentry   SentryConfig   `json:"sentry"`
}

func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	// Optional environment overrides
	if err := k.Load(env.Provider("SVITLO_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "svitlo_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.Poll.SetDefaults()
	cfg.Store.SetDefaults()
	cfg.Delivery.SetDefaults()
	cfg.API.SetDefaults()
	cfg.Metrics.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the loaded configuration as a whole.
func (c Config) Validate() error {
	if len(c.Sources) == 0 {
		return fmt.Errorf("at least one source is required")
	}
	seen := map[string]bool{}
	for i, s := range c.Sources {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("source %d: %w", i, err)
		}
		if seen[s.ID] {
			return fmt.Errorf("duplicate source id %s", s.ID)
		}
		seen[s.ID] = true
	}
	if err := c.Poll.Validate(); err != nil {
		return err
	}
	if err := c.Store.Validate(); err != nil {
		return err
	}
	if err := c.Delivery.Validate(); err != nil {
		return err
	}
	if err := c.API.Validate(); err != nil {
		return err
	}
	return c.Metrics.Validate()
}

// DeliveryConfig selects the notification backend.
type DeliveryConfig struct {
	// Backend selects the channel type: "telegram" or "mqtt".
	Backend string `json:"backend"`

	Telegram notify.TelegramConfig `json:"telegram"`
	MQTT     notify.MQTTConfig     `json:"mqtt"`
}

// SetDefaults applies sane defaults.
func (c *DeliveryConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = "telegram"
	}
	c.Telegram.SetDefaults()
	c.MQTT.SetDefaults()
}

// Validate checks the selected backend's settings.
func (c DeliveryConfig) Validate() error {
	switch c.Backend {
	case "telegram":
		return c.Telegram.Validate()
	case "mqtt":
		return c.MQTT.Validate()
	default:
		return fmt.Errorf("unknown delivery backend %s", c.Backend)
	}
}
