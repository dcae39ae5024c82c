package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Server struct {
	Mode         string        `mapstructure:"mode"`
	Port         int           `mapstructure:"port"`
	StaticPath   string        `mapstructure:"static_path"`
	ReadLimit    int64         `mapstructure:"read_limit"`
	PingPeriod   time.Duration `mapstructure:"ping_period"`
	Secret       string        `mapstructure:"secret"`
	SendBuffer   int           `mapstructure:"send_buffer"`
	RateLimit    int           `mapstructure:"rate_limit"`
	RateInterval time.Duration `mapstructure:"rate_interval"`
	LogLevel     string        `mapstructure:"log_level"`
}

type Client struct {
	RelayURL        string        `mapstructure:"relay_url"`
	Session         string        `mapstructure:"session"`
	Name            string        `mapstructure:"name"`
	Debounce        time.Duration `mapstructure:"debounce"`
	ICEServers      []string      `mapstructure:"ice_servers"`
	Mic             string        `mapstructure:"mic"`
	SendBuffer      int           `mapstructure:"send_buffer"`
	ReadLimit       int64         `mapstructure:"read_limit"`
	CandidateBuffer int           `mapstructure:"candidate_buffer"`
	LogLevel        string        `mapstructure:"log_level"`
}

func LoadServer() (*Server, error) {
	v := newViper("server")
	v.SetDefault("mode", "release")
	v.SetDefault("port", 5000)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 1<<20)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("send_buffer", 256)
	v.SetDefault("rate_limit", 200)
	v.SetDefault("rate_interval", "1s")
	v.SetDefault("log_level", "info")
	readFile(v)

	var cfg Server
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Str("static", cfg.StaticPath).Msg("server config")
	return &cfg, nil
}

func LoadClient() (*Client, error) {
	v := newViper("client")
	v.SetDefault("relay_url", "ws://localhost:5000/ws")
	v.SetDefault("session", "main")
	v.SetDefault("name", "guest")
	v.SetDefault("debounce", "300ms")
	v.SetDefault("ice_servers", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("mic", "silence")
	v.SetDefault("send_buffer", 256)
	v.SetDefault("read_limit", 1<<20)
	v.SetDefault("candidate_buffer", 64)
	v.SetDefault("log_level", "info")
	readFile(v)

	var cfg Client
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	log.Info().Str("module", "config").Str("relay", cfg.RelayURL).Str("session", cfg.Session).Msg("client config")
	return &cfg, nil
}

// Level maps a config log level onto zerolog, defaulting to info.
func Level(s string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(s))
	if err != nil || s == "" {
		return zerolog.InfoLevel
	}
	return lvl
}

// newViper reads config/<role>.<CONFIG_ENV>.yaml; CODESYNC_* env vars override.
func newViper(role string) *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	v.SetConfigFile(fmt.Sprintf("config/%s.%s.yaml", role, env))

	v.SetEnvPrefix("codesync")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func readFile(v *viper.Viper) {
	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", v.ConfigFileUsed()).Msg("config file not found, using defaults")
		return
	}
	log.Info().Str("module", "config").Str("file", v.ConfigFileUsed()).Msg("loaded config")
}
