package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "ROOMSCRIBE"

type IngestConfig struct {
	Workers      int           `mapstructure:"workers"`
	QueueSize    int           `mapstructure:"queue_size"`
	Retries      int           `mapstructure:"retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	Diarize      bool          `mapstructure:"diarize"`
	AudioRate    float64       `mapstructure:"audio_rate"`
	AudioBurst   int           `mapstructure:"audio_burst"`
}

type CaptureConfig struct {
	PacketsPerChunk int  `mapstructure:"packets_per_chunk"`
	Denoise         bool `mapstructure:"denoise"`
}

type ServiceConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type Config struct {
	Mode       string `mapstructure:"mode"`
	Port       int    `mapstructure:"port"`
	StaticPath string `mapstructure:"static_path"`
	Secret     string `mapstructure:"secret"`
	LogLevel   string `mapstructure:"log_level"`
	Language   string `mapstructure:"language"`

	ReadLimit        int64         `mapstructure:"read_limit"`
	SendQueue        int           `mapstructure:"send_queue"`
	PingPeriod       time.Duration `mapstructure:"ping_period"`
	HeartbeatTimeout time.Duration `mapstructure:"heartbeat_timeout"`
	JoinLimit        int           `mapstructure:"join_limit"`
	JoinInterval     time.Duration `mapstructure:"join_interval"`
	ReapGrace        time.Duration `mapstructure:"reap_grace"`
	ICEServers       []string      `mapstructure:"ice_servers"`

	Ingest      IngestConfig  `mapstructure:"ingest"`
	Capture     CaptureConfig `mapstructure:"capture"`
	Transcriber ServiceConfig `mapstructure:"transcriber"`
	Docgen      ServiceConfig `mapstructure:"docgen"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("secret", "change-me")
	v.SetDefault("log_level", "info")
	v.SetDefault("language", "ta")

	v.SetDefault("read_limit", 4<<20)
	v.SetDefault("send_queue", 64)
	v.SetDefault("ping_period", "25s")
	v.SetDefault("heartbeat_timeout", "30s")
	v.SetDefault("join_limit", 10)
	v.SetDefault("join_interval", "1m")
	v.SetDefault("reap_grace", "5m")
	v.SetDefault("ice_servers", []string{"stun:stun.l.google.com:19302"})

	v.SetDefault("ingest.workers", 4)
	v.SetDefault("ingest.queue_size", 64)
	v.SetDefault("ingest.retries", 2)
	v.SetDefault("ingest.retry_backoff", "500ms")
	v.SetDefault("ingest.diarize", false)
	v.SetDefault("ingest.audio_rate", 4.0)
	v.SetDefault("ingest.audio_burst", 8)

	v.SetDefault("capture.packets_per_chunk", 250)
	v.SetDefault("capture.denoise", false)

	v.SetDefault("transcriber.url", "http://localhost:8000")
	v.SetDefault("transcriber.timeout", "60s")
	v.SetDefault("docgen.url", "http://localhost:8000")
	v.SetDefault("docgen.timeout", "120s")
}

// Flags declares the command line overrides bound by Load.
func Flags(fs *pflag.FlagSet) {
	fs.String("config", "", "config file (default config/config.<CONFIG_ENV>.yaml)")
	fs.Int("port", 0, "HTTP listen port")
	fs.String("mode", "", "gin mode: debug or release")
	fs.String("log-level", "", "log level: debug, info, warn, error")
	fs.String("transcriber-url", "", "speech-to-text service base URL")
	fs.String("docgen-url", "", "document service base URL")
}

var flagKeys = map[string]string{
	"port":            "port",
	"mode":            "mode",
	"log-level":       "log_level",
	"transcriber-url": "transcriber.url",
	"docgen-url":      "docgen.url",
}

// Load reads .env, the YAML file for CONFIG_ENV, ROOMSCRIBE_* variables and
// any flags that were set, in increasing priority. fs may be nil.
func Load(fs *pflag.FlagSet) (*Config, *viper.Viper, error) {
	if err := godotenv.Load(); err == nil {
		log.Debug().Str("module", "config").Msg("loaded .env")
	}

	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)
	if fs != nil {
		if f, _ := fs.GetString("config"); f != "" {
			fileName = f
		}
	}
	v.SetConfigFile(fileName)

	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if fs != nil {
		for name, key := range flagKeys {
			f := fs.Lookup(name)
			if f == nil || !f.Changed {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, nil, fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, nil, err
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).
		Str("transcriber", cfg.Transcriber.URL).Str("docgen", cfg.Docgen.URL).Msg("config ready")
	return cfg, v, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.HeartbeatTimeout <= 0 {
		return nil, fmt.Errorf("heartbeat_timeout must be positive")
	}
	if cfg.PingPeriod >= cfg.HeartbeatTimeout {
		return nil, fmt.Errorf("ping_period %s must be shorter than heartbeat_timeout %s", cfg.PingPeriod, cfg.HeartbeatTimeout)
	}
	return &cfg, nil
}

// Watch re-decodes the file on change and hands the result to fn. Only
// settings read at call time (such as the log level) pick up new values.
func Watch(v *viper.Viper, fn func(*Config)) {
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := decode(v)
		if err != nil {
			log.Error().Err(err).Str("module", "config").Msg("reload rejected")
			return
		}
		log.Info().Str("module", "config").Str("file", e.Name).Msg("config reloaded")
		fn(cfg)
	})
	v.WatchConfig()
}
