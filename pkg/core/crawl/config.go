package crawl

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Config is the crawler run configuration, loaded from YAML.
type Config struct {
	StartDate string `yaml:"start_date"`
	EndDate   string `yaml:"end_date"`
	Category  string `yaml:"category"`
	Plate     string `yaml:"plate"`
	Trade     string `yaml:"trade"`

	OutputCSV     string `yaml:"output_csv"`
	WatermarkFile string `yaml:"watermark_file"`

	WindowDelaySeconds int      `yaml:"window_delay_seconds"`
	ExcludeKeywords    []string `yaml:"exclude_keywords"`
}

// Delay is the pause between day windows.
func (c *Config) Delay() time.Duration {
	return time.Duration(c.WindowDelaySeconds) * time.Second
}

// LoadConfig reads a YAML config file and fills in defaults for
// anything the file leaves out.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyDefaults()
	if cfg.StartDate == "" || cfg.EndDate == "" {
		return nil, fmt.Errorf("config %s: start_date and end_date are required", path)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.OutputCSV == "" {
		c.OutputCSV = "announcements.csv"
	}
	if c.WatermarkFile == "" {
		c.WatermarkFile = "crawl.watermark"
	}
	if c.WindowDelaySeconds == 0 {
		c.WindowDelaySeconds = 2
	}
}
