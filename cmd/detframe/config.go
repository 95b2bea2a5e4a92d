package main

import (
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// Config is the optional file ~/.config/detframe/config.yaml. Values only
// apply where the matching flag was not set on the command line.
type Config struct {
	FormatsFile string `yaml:"formats_file"`
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`

	ServerAddress string `yaml:"server_address"`
	UDPAddress    string `yaml:"udp_address"`

	StoreDir string   `yaml:"store_dir"`
	Brokers  []string `yaml:"brokers"`
	Topic    string   `yaml:"topic"`
}

func configPath() string {
	if p := os.Getenv("DETFRAME_CONFIG"); p != "" {
		return p
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "detframe", "config.yaml")
}

// LoadConfig reads the config file. A missing or unreadable file yields the
// zero Config.
func LoadConfig() Config {
	path := configPath()
	if path == "" {
		return Config{}
	}
	return loadConfigFile(path)
}

func loadConfigFile(path string) Config {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}
	}
	return cfg
}

func setIfUnset(c *cli.Command, flag string, dst *string, v string) {
	if v != "" && !c.IsSet(flag) {
		*dst = v
	}
}

func applyGlobalConfig(c *cli.Command, cfg Config) {
	setIfUnset(c, "formats-file", &formatsFile, cfg.FormatsFile)
	setIfUnset(c, "log-level", &logLevel, cfg.LogLevel)
	setIfUnset(c, "log-format", &logFormat, cfg.LogFormat)
}

func applyStoreConfig(c *cli.Command, cfg Config, dir *string) {
	setIfUnset(c, "store", dir, cfg.StoreDir)
}

func applyBusConfig(c *cli.Command, cfg Config, brokers *[]string, topic *string) {
	if len(cfg.Brokers) > 0 && !c.IsSet("brokers") {
		*brokers = cfg.Brokers
	}
	setIfUnset(c, "topic", topic, cfg.Topic)
}
