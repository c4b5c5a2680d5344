package config

import (
	"path/filepath"
	"runtime"
	"strings"

	internal "github.com/ZanzyTHEbar/streammash/smash"
	"github.com/ZanzyTHEbar/streammash/smash/common"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Config stores all configuration of the application.
// The values are read by viper from a config file or environment variables.
type Config struct {
	Match MatchConfig `mapstructure:"match"`
	Store StoreConfig `mapstructure:"store"`
	Log   LogConfig   `mapstructure:"log"`
}

// MatchConfig stores the matching engine settings.
type MatchConfig struct {
	KSizes                 []int   `mapstructure:"kSizes"`
	NumWorkers             int     `mapstructure:"numWorkers"`
	MatchThreshold         int     `mapstructure:"matchThreshold"`
	MaxSketches            int     `mapstructure:"maxSketches"`
	QueueCapacity          int     `mapstructure:"queueCapacity"`
	DedupPolicy            string  `mapstructure:"dedupPolicy"`
	IndexBackend           string  `mapstructure:"indexBackend"`
	FilterShards           int     `mapstructure:"filterShards"`
	BloomFalsePositiveRate float64 `mapstructure:"bloomFalsePositiveRate"`
	ProgressInterval       int     `mapstructure:"progressInterval"`
}

// StoreConfig stores the reference sketch database settings.
type StoreConfig struct {
	DSN string `mapstructure:"dsn"`
}

// LogConfig stores logger settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

var (
	validPolicies = map[string]bool{"first": true, "every": true}
	validBackends = map[string]bool{"radix": true, "iradix": true}
)

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath(filepath.Join("etc", internal.DefaultAppName))
		v.AddConfigPath(internal.DefaultConfigPath)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	setDefaults(v)

	// SMASH_MATCH_NUMWORKERS overrides match.numWorkers
	v.SetEnvPrefix(internal.DefaultAppName)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || configPath != "" {
			return nil, errors.Wrap(err, "failed to read config file")
		}
		// No config file on the search path; defaults and env still apply.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "unable to decode into struct")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("match.kSizes", internal.DefaultKSizes)
	v.SetDefault("match.numWorkers", runtime.NumCPU())
	v.SetDefault("match.matchThreshold", 0)
	v.SetDefault("match.maxSketches", 0)
	v.SetDefault("match.queueCapacity", internal.DefaultQueueCapacity)
	v.SetDefault("match.dedupPolicy", internal.DefaultDedupPolicy)
	v.SetDefault("match.indexBackend", internal.DefaultIndexBackend)
	v.SetDefault("match.filterShards", internal.DefaultFilterShards)
	v.SetDefault("match.bloomFalsePositiveRate", internal.DefaultBloomFalsePositiveRate)
	v.SetDefault("match.progressInterval", internal.DefaultProgressInterval)
	v.SetDefault("store.dsn", internal.DefaultStoreDSN)
	v.SetDefault("log.level", internal.DefaultLogLevel)
	v.SetDefault("log.format", "json")
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	vu := common.NewValidationUtils()
	m := c.Match

	if err := vu.ValidateKSizes(m.KSizes); err != nil {
		return err
	}
	if m.NumWorkers < 1 {
		return errors.Wrapf(common.ErrInvalidConfig, "match.numWorkers must be >= 1, got %d", m.NumWorkers)
	}
	if m.MatchThreshold < 0 {
		return errors.Wrapf(common.ErrInvalidConfig, "match.matchThreshold must be >= 0, got %d", m.MatchThreshold)
	}
	if m.MaxSketches < 0 {
		return errors.Wrapf(common.ErrInvalidConfig, "match.maxSketches must be >= 0, got %d", m.MaxSketches)
	}
	if m.QueueCapacity < 1 {
		return errors.Wrapf(common.ErrInvalidConfig, "match.queueCapacity must be >= 1, got %d", m.QueueCapacity)
	}
	if !validPolicies[m.DedupPolicy] {
		return errors.Wrapf(common.ErrInvalidConfig, "match.dedupPolicy must be first or every, got %q", m.DedupPolicy)
	}
	if !validBackends[m.IndexBackend] {
		return errors.Wrapf(common.ErrInvalidConfig, "match.indexBackend must be radix or iradix, got %q", m.IndexBackend)
	}
	if m.FilterShards < 1 {
		return errors.Wrapf(common.ErrInvalidConfig, "match.filterShards must be >= 1, got %d", m.FilterShards)
	}
	if m.BloomFalsePositiveRate < 0 || m.BloomFalsePositiveRate >= 1 {
		return errors.Wrapf(common.ErrInvalidConfig, "match.bloomFalsePositiveRate must be in [0, 1), got %v", m.BloomFalsePositiveRate)
	}
	if m.ProgressInterval < 0 {
		return errors.Wrapf(common.ErrInvalidConfig, "match.progressInterval must be >= 0, got %d", m.ProgressInterval)
	}
	return vu.ValidateRequiredString(c.Store.DSN, "store.dsn")
}
