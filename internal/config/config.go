// Package config loads dserv's YAML configuration file, applies defaults,
// then environment overrides, then validates the result.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v2"

	"github.com/sheinberglab/dserv/pkg/dserverr"
)

// Config is the root configuration tree, one section per long-lived
// subsystem (§10.3).
type Config struct {
	App       AppConfig       `yaml:"app"`
	Server    ServerConfig    `yaml:"server"`
	HTTP      HTTPConfig      `yaml:"http"`
	Table     TableConfig     `yaml:"table"`
	Trigger   TriggerConfig   `yaml:"trigger"`
	Processor ProcessorConfig `yaml:"processor"`
	LogDir    LogDirConfig    `yaml:"logdir"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Tracing   TracingConfig   `yaml:"tracing"`
	FileSource FileSourceConfig `yaml:"filesource"`
}

type AppConfig struct {
	Name      string `yaml:"name"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

type TableConfig struct {
	Shards int `yaml:"shards"`
}

type TriggerConfig struct {
	ScriptDir string `yaml:"script_dir"`
}

type ProcessorConfig struct {
	PluginDir string `yaml:"plugin_dir"`
	HotReload bool   `yaml:"hot_reload"`
}

type LogDirConfig struct {
	Root          string `yaml:"root"`
	MaxTotalBytes int64  `yaml:"max_total_bytes"`
	MinFreeBytes  int64  `yaml:"min_free_bytes"`
	Compress      bool   `yaml:"compress"`
}

type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type TracingConfig struct {
	Enabled        bool    `yaml:"enabled"`
	OTLPEndpoint   string  `yaml:"otlp_endpoint"`
	SamplingRatio  float64 `yaml:"sampling_ratio"`
}

type FileSourceConfig struct {
	Enabled          bool     `yaml:"enabled"`
	Paths            []string `yaml:"paths"`
	PositionsDir     string   `yaml:"positions_dir"`
}

// Load reads path (if non-empty), applies defaults, then environment
// overrides, then validates. A missing path is not fatal — defaults and
// environment variables still apply — but any other read error, or a
// malformed file, is.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, dserverr.New(dserverr.KindBadArgument, "config", "load", "read config file").Wrap(err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, dserverr.New(dserverr.KindBadArgument, "config", "load", "parse config file").Wrap(err)
		}
	}
	applyDefaults(cfg)
	applyEnvOverrides(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(c *Config) {
	if c.App.Name == "" {
		c.App.Name = "dserv"
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.App.LogFormat == "" {
		c.App.LogFormat = "text"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 4620
	}
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 4621
	}
	if c.HTTP.Host == "" {
		c.HTTP.Host = "0.0.0.0"
	}
	if c.Table.Shards == 0 {
		c.Table.Shards = 32
	}
	if c.Trigger.ScriptDir == "" {
		c.Trigger.ScriptDir = "/etc/dserv/triggers"
	}
	if c.Processor.PluginDir == "" {
		c.Processor.PluginDir = "/etc/dserv/processors"
	}
	if c.LogDir.Root == "" {
		c.LogDir.Root = "/var/log/dserv"
	}
	if c.LogDir.MaxTotalBytes == 0 {
		c.LogDir.MaxTotalBytes = 10 << 30 // 10 GiB
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "dserv.datapoints"
	}
	if c.Tracing.SamplingRatio == 0 {
		c.Tracing.SamplingRatio = 0.05
	}
	if c.FileSource.PositionsDir == "" {
		c.FileSource.PositionsDir = "/var/lib/dserv/positions"
	}
}

func applyEnvOverrides(c *Config) {
	c.App.Name = getEnvString("DSERV_APP_NAME", c.App.Name)
	c.App.LogLevel = getEnvString("DSERV_LOG_LEVEL", c.App.LogLevel)
	c.App.LogFormat = getEnvString("DSERV_LOG_FORMAT", c.App.LogFormat)
	c.Server.Host = getEnvString("DSERV_SERVER_HOST", c.Server.Host)
	c.Server.Port = getEnvInt("DSERV_SERVER_PORT", c.Server.Port)
	c.HTTP.Enabled = getEnvBool("DSERV_HTTP_ENABLED", c.HTTP.Enabled)
	c.HTTP.Port = getEnvInt("DSERV_HTTP_PORT", c.HTTP.Port)
	c.Table.Shards = getEnvInt("DSERV_TABLE_SHARDS", c.Table.Shards)
	c.Trigger.ScriptDir = getEnvString("DSERV_TRIGGER_SCRIPT_DIR", c.Trigger.ScriptDir)
	c.Processor.PluginDir = getEnvString("DSERV_PROCESSOR_PLUGIN_DIR", c.Processor.PluginDir)
	c.Processor.HotReload = getEnvBool("DSERV_PROCESSOR_HOT_RELOAD", c.Processor.HotReload)
	c.LogDir.Root = getEnvString("DSERV_LOGDIR_ROOT", c.LogDir.Root)
	c.Kafka.Enabled = getEnvBool("DSERV_KAFKA_ENABLED", c.Kafka.Enabled)
	if brokers := getEnvString("DSERV_KAFKA_BROKERS", ""); brokers != "" {
		c.Kafka.Brokers = strings.Split(brokers, ",")
	}
	c.Tracing.Enabled = getEnvBool("DSERV_TRACING_ENABLED", c.Tracing.Enabled)
	c.Tracing.OTLPEndpoint = getEnvString("DSERV_TRACING_OTLP_ENDPOINT", c.Tracing.OTLPEndpoint)
	c.FileSource.Enabled = getEnvBool("DSERV_FILESOURCE_ENABLED", c.FileSource.Enabled)
}

func getEnvString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

// Validate checks field-level constraints, collecting every violation
// before returning (so a misconfigured deployment gets the whole list at
// once rather than one round-trip per fix).
func Validate(c *Config) error {
	var problems []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("server.port out of range: %d", c.Server.Port))
	}
	if c.HTTP.Enabled {
		if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
			problems = append(problems, fmt.Sprintf("http.port out of range: %d", c.HTTP.Port))
		}
		if c.HTTP.Port == c.Server.Port {
			problems = append(problems, "http.port conflicts with server.port")
		}
	}
	if c.Table.Shards <= 0 {
		problems = append(problems, "table.shards must be positive")
	}
	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true}
	if !validLevels[c.App.LogLevel] {
		problems = append(problems, fmt.Sprintf("app.log_level invalid: %s", c.App.LogLevel))
	}
	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.App.LogFormat] {
		problems = append(problems, fmt.Sprintf("app.log_format invalid: %s", c.App.LogFormat))
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		problems = append(problems, "kafka.brokers required when kafka.enabled")
	}
	if c.Tracing.Enabled && c.Tracing.OTLPEndpoint == "" {
		problems = append(problems, "tracing.otlp_endpoint required when tracing.enabled")
	}
	if c.FileSource.Enabled && len(c.FileSource.Paths) == 0 {
		problems = append(problems, "filesource.paths required when filesource.enabled")
	}

	if len(problems) == 0 {
		return nil
	}
	return dserverr.BadArgument("config", "validate", strings.Join(problems, "; "))
}
