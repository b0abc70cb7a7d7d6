// Package config loads server configuration from file, environment, and
// defaults, in that order of increasing precedence for the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/inematds/inemavox/pkg/archive"
)

// Config is the full server configuration tree.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Jobs     JobsConfig     `mapstructure:"jobs"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Stats    StatsConfig    `mapstructure:"stats"`
	Archive  archive.Config `mapstructure:"archive"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	SubmitRPS       float64       `mapstructure:"submit_rps"`
	SubmitBurst     int           `mapstructure:"submit_burst"`
}

type JobsConfig struct {
	Dir          string        `mapstructure:"dir"`
	QueueSize    int           `mapstructure:"queue_size"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	StopGrace    time.Duration `mapstructure:"stop_grace"`
	Device       string        `mapstructure:"device"`
}

type PipelineConfig struct {
	Python string `mapstructure:"python"`
	Script string `mapstructure:"script"`
}

type StatsConfig struct {
	Path string `mapstructure:"path"`
}

type LoggingConfig struct {
	Level    string `mapstructure:"level"`
	Encoding string `mapstructure:"encoding"`
}

// EnvPrefix is the prefix for environment overrides, e.g.
// INEMAVOX_SERVER_PORT=9090.
const EnvPrefix = "INEMAVOX"

// Load reads configuration. path selects an explicit config file; empty
// path searches the working directory and /etc/inemavox for inemavox.yaml.
// A missing file is not an error; environment and defaults still apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("inemavox")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/inemavox")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Minute)
	v.SetDefault("server.idle_timeout", 120*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.submit_rps", 2.0)
	v.SetDefault("server.submit_burst", 5)

	v.SetDefault("jobs.dir", "./data/jobs")
	v.SetDefault("jobs.queue_size", 256)
	v.SetDefault("jobs.poll_interval", 2*time.Second)
	v.SetDefault("jobs.stop_grace", 10*time.Second)
	v.SetDefault("jobs.device", "cpu")

	v.SetDefault("pipeline.python", "python3")
	v.SetDefault("pipeline.script", "./pipeline/dub.py")

	v.SetDefault("stats.path", "./data/stats.json")

	v.SetDefault("archive.enabled", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.encoding", "console")
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Jobs.Dir == "" {
		return fmt.Errorf("jobs.dir is required")
	}
	if c.Pipeline.Script == "" {
		return fmt.Errorf("pipeline.script is required")
	}
	if c.Jobs.Device != "cpu" && c.Jobs.Device != "cuda" {
		return fmt.Errorf("jobs.device must be cpu or cuda, got %q", c.Jobs.Device)
	}
	return c.Archive.Validate()
}
