package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/dkeye/Gallery/internal/core"
	"github.com/dkeye/Gallery/internal/logging"
)

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	StaticPath string        `mapstructure:"static_path"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	SendBuffer int           `mapstructure:"send_buffer"`
	Secret     string        `mapstructure:"secret"`

	Room       RoomConfig      `mapstructure:"room"`
	RateLimit  RateLimitConfig `mapstructure:"rate_limit"`
	IceServers []ICEServer     `mapstructure:"ice_servers"`
	Log        logging.Config  `mapstructure:"log"`
}

type RoomConfig struct {
	Names        []string      `mapstructure:"names"`
	MaxClients   int           `mapstructure:"max_clients"`
	PatchRate    time.Duration `mapstructure:"patch_rate"`
	SpawnGrid    int           `mapstructure:"spawn_grid"`
	SessionIDs   string        `mapstructure:"session_ids"` // uuid or sequential
	AutoDispose  bool          `mapstructure:"auto_dispose"`
	Backpressure string        `mapstructure:"backpressure"` // kick or drop
}

type RateLimitConfig struct {
	Messages int           `mapstructure:"messages"`
	Interval time.Duration `mapstructure:"interval"`
}

type ICEServer struct {
	URLs       []string `mapstructure:"urls"`
	Username   string   `mapstructure:"username"`
	Credential string   `mapstructure:"credential"`
}

// WebRTC converts the configured servers into the form handed to clients.
func (c *Config) WebRTC() []webrtc.ICEServer {
	out := make([]webrtc.ICEServer, 0, len(c.IceServers))
	for _, s := range c.IceServers {
		out = append(out, webrtc.ICEServer{URLs: s.URLs, Username: s.Username, Credential: s.Credential})
	}
	return out
}

// PongWait is how long a connection may stay silent before it is dropped.
func (c *Config) PongWait() time.Duration { return c.PingPeriod * 10 / 9 }

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("send_buffer", 64)
	v.SetDefault("secret", "")

	v.SetDefault("room.names", []string{"gallery"})
	v.SetDefault("room.max_clients", core.DefaultMaxClients)
	v.SetDefault("room.patch_rate", core.DefaultPatchRate)
	v.SetDefault("room.spawn_grid", core.DefaultSpawnGrid)
	v.SetDefault("room.session_ids", "uuid")
	v.SetDefault("room.auto_dispose", true)
	v.SetDefault("room.backpressure", "kick")

	v.SetDefault("rate_limit.messages", 120)
	v.SetDefault("rate_limit.interval", "1s")

	v.SetDefault("ice_servers", []map[string]any{})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 7)
}

// AddFlags registers the command-line overrides.
func AddFlags(fs *pflag.FlagSet) {
	fs.IntP("port", "p", 8080, "HTTP listen port")
	fs.String("mode", "release", "gin mode: release or debug")
	fs.StringP("config", "c", "", "config file, overrides CONFIG_ENV lookup")
}

// Load reads defaults, the yaml file, GALLERY_* environment variables and
// the flags in fs, in increasing priority. fs may be nil.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	v.SetEnvPrefix("GALLERY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	fileName := ""
	if fs != nil {
		for _, key := range []string{"port", "mode"} {
			if f := fs.Lookup(key); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", key, err)
				}
			}
		}
		if f := fs.Lookup("config"); f != nil {
			fileName = f.Value.String()
		}
	}
	if fileName == "" {
		env := os.Getenv("CONFIG_ENV")
		if env == "" {
			env = "dev"
		}
		fileName = fmt.Sprintf("config/config.%s.yaml", env)
	}
	v.SetConfigFile(fileName)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config %s: %w", fileName, err)
		}
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.Port <= 0 || c.Port > 65535:
		return fmt.Errorf("invalid port %d", c.Port)
	case c.Room.MaxClients <= 0:
		return fmt.Errorf("room.max_clients must be positive, got %d", c.Room.MaxClients)
	case c.Room.PatchRate < 0:
		return fmt.Errorf("room.patch_rate must not be negative, got %s", c.Room.PatchRate)
	case c.Room.SessionIDs != "uuid" && c.Room.SessionIDs != "sequential":
		return fmt.Errorf("room.session_ids must be uuid or sequential, got %q", c.Room.SessionIDs)
	case c.SendBuffer <= 0:
		return fmt.Errorf("send_buffer must be positive, got %d", c.SendBuffer)
	}
	return nil
}
