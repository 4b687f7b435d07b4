package config

import (
	"fmt"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Mode     string `mapstructure:"mode"`
	Port     int    `mapstructure:"port"`
	LogLevel string `mapstructure:"log_level"`
	Secret   string `mapstructure:"secret"`

	ReadLimit    int64         `mapstructure:"read_limit"`
	PingPeriod   time.Duration `mapstructure:"ping_period"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	SendBuffer   int           `mapstructure:"send_buffer"`

	DrainLimit  int    `mapstructure:"drain_limit"`
	RejectFatal bool   `mapstructure:"reject_fatal"`
	MaxBuffered uint64 `mapstructure:"max_buffered"`

	BroadcastLimit    int           `mapstructure:"broadcast_limit"`
	BroadcastInterval time.Duration `mapstructure:"broadcast_interval"`
}

// Flags registers the command line overrides. Unset flags leave file values alone.
func Flags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("msgpipe", pflag.ContinueOnError)
	fs.String("mode", "release", "gin mode: release or debug")
	fs.Int("port", 8080, "listen port")
	fs.String("log-level", "info", "zerolog level")
	fs.Int("drain-limit", 0, "max messages dispatched per readable notification (0 = unlimited)")
	fs.Bool("reject-fatal", false, "treat messages the service rejects as fatal")
	return fs
}

func newViper(fs *pflag.FlagSet) (*viper.Viper, string, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)
	v.SetConfigFile(fileName)

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("log_level", "info")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("write_timeout", "5s")
	v.SetDefault("send_buffer", 32)
	v.SetDefault("drain_limit", 0)
	v.SetDefault("reject_fatal", false)
	v.SetDefault("max_buffered", 1<<20)
	v.SetDefault("broadcast_limit", 20)
	v.SetDefault("broadcast_interval", "1s")

	if fs != nil {
		for key, flag := range map[string]string{
			"mode":         "mode",
			"port":         "port",
			"log_level":    "log-level",
			"drain_limit":  "drain-limit",
			"reject_fatal": "reject-fatal",
		} {
			if err := v.BindPFlag(key, fs.Lookup(flag)); err != nil {
				return nil, "", fmt.Errorf("bind flag %s: %w", flag, err)
			}
		}
	}
	return v, fileName, nil
}

// Load reads config/config.<CONFIG_ENV>.yaml over the defaults, then applies
// flags from fs if it is not nil. A missing file is not an error.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v, fileName, err := newViper(fs)
	if err != nil {
		return nil, err
	}
	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
		watch(v)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Msg("config ready")
	return &cfg, nil
}

// ApplyLogLevel sets the global zerolog level, keeping the current one if
// level does not parse.
func ApplyLogLevel(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		log.Warn().Str("module", "config").Str("level", level).Msg("bad log level, ignored")
		return
	}
	zerolog.SetGlobalLevel(lvl)
}

// watch re-applies the log level whenever the config file changes. Other
// settings need a restart.
func watch(v *viper.Viper) {
	v.OnConfigChange(func(e fsnotify.Event) {
		log.Info().Str("module", "config").Str("file", e.Name).Msg("config changed")
		ApplyLogLevel(v.GetString("log_level"))
	})
	v.WatchConfig()
}
