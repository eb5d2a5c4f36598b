package bird

import (
	"fmt"
	"strings"
	"time"

	"github.com/joomcode/errorx"
	"github.com/spf13/viper"
)

// Config holds the settings of a Manager. Start from DefaultConfig, all
// durations have to be greater 0.
type Config struct {
	// Endpoint is the websocket address of the backend, e.g. ws://host:port
	Endpoint string `mapstructure:"endpoint"`
	// BotID identifies the bot towards the backend
	BotID string `mapstructure:"botId"`
	// CacheDir is the root of the mirror databases. Empty keeps them in memory.
	CacheDir string `mapstructure:"cacheDir"`

	DedupeExpiry        time.Duration `mapstructure:"dedupeExpiry"`
	LivenessTimeout     time.Duration `mapstructure:"livenessTimeout"`
	AlarmInterval       time.Duration `mapstructure:"alarmInterval"`
	AvatarPollInterval  time.Duration `mapstructure:"avatarPollInterval"`
	AvatarPollAttempts  int           `mapstructure:"avatarPollAttempts"`
	DialRetryMaxElapsed time.Duration `mapstructure:"dialRetryMaxElapsed"`
	MessageCacheLife    time.Duration `mapstructure:"messageCacheLife"`
}

// DefaultConfig returns a Config with all tunables set. Endpoint and BotID
// have no defaults.
func DefaultConfig() Config {
	return Config{
		DedupeExpiry:        DefaultDedupeExpiry,
		LivenessTimeout:     30 * time.Second,
		AlarmInterval:       5 * time.Second,
		AvatarPollInterval:  time.Second,
		AvatarPollAttempts:  120,
		DialRetryMaxElapsed: 10 * time.Second,
		MessageCacheLife:    time.Hour,
	}
}

// LoadConfig reads the config file at path. Every key can be overridden by an
// environment variable GOBIRD_<KEY>, e.g. GOBIRD_ENDPOINT. An empty path only
// reads the environment.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("gobird")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errorx.EnsureStackTrace(err)
		}
	}

	cfg := Config{}
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errorx.EnsureStackTrace(err)
	}
	return cfg, cfg.validate()
}

func setDefaults(v *viper.Viper) {
	d := DefaultConfig()
	// AutomaticEnv only sees keys viper knows about
	v.SetDefault("endpoint", "")
	v.SetDefault("botId", "")
	v.SetDefault("cacheDir", "")
	v.SetDefault("dedupeExpiry", d.DedupeExpiry)
	v.SetDefault("livenessTimeout", d.LivenessTimeout)
	v.SetDefault("alarmInterval", d.AlarmInterval)
	v.SetDefault("avatarPollInterval", d.AvatarPollInterval)
	v.SetDefault("avatarPollAttempts", d.AvatarPollAttempts)
	v.SetDefault("dialRetryMaxElapsed", d.DialRetryMaxElapsed)
	v.SetDefault("messageCacheLife", d.MessageCacheLife)
}

func (c Config) validate() error {
	if c.Endpoint == "" {
		return errorx.EnsureStackTrace(fmt.Errorf("%w: config: endpoint missing", ErrorInvalidArgument))
	}
	if c.BotID == "" {
		return errorx.EnsureStackTrace(fmt.Errorf("%w: config: botId missing", ErrorInvalidArgument))
	}
	for name, d := range map[string]time.Duration{
		"dedupeExpiry":        c.DedupeExpiry,
		"livenessTimeout":     c.LivenessTimeout,
		"alarmInterval":       c.AlarmInterval,
		"avatarPollInterval":  c.AvatarPollInterval,
		"dialRetryMaxElapsed": c.DialRetryMaxElapsed,
		"messageCacheLife":    c.MessageCacheLife,
	} {
		if d <= 0 {
			return errorx.EnsureStackTrace(fmt.Errorf("%w: config: %s %v must be greater 0", ErrorInvalidArgument, name, d))
		}
	}
	if c.AvatarPollAttempts < 0 {
		return errorx.EnsureStackTrace(fmt.Errorf("%w: config: avatarPollAttempts %d < 0", ErrorInvalidArgument, c.AvatarPollAttempts))
	}
	return nil
}
