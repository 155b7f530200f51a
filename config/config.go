// Package config provides a viper-backed loader for the configuration
// surface: validator bounds, pool sizing, per-block transaction limits,
// and the trace engine's depth bound.
package config

import (
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/spf13/viper"

	"github.com/provchain/provchain-core/pverr"
)

// Values mirrors the configuration surface.
type Values struct {
	MinValidators		int	`mapstructure:"min_validators" json:"min_validators"`
	MaxValidators		int	`mapstructure:"max_validators" json:"max_validators"`
	PoolMaxSize		int	`mapstructure:"pool_max_size" json:"pool_max_size"`
	MaxTransactionsPerBlock	int	`mapstructure:"max_transactions_per_block" json:"max_transactions_per_block"`
	TraceMaxDepth		int	`mapstructure:"trace_max_depth" json:"trace_max_depth"`
}

func defaults() Values {
	return Values{
		MinValidators: 1,
		MaxValidators: 100,
		PoolMaxSize: 1000,
		MaxTransactionsPerBlock: 10,
		TraceMaxDepth: 50,
	}
}

// Config is the live, mutable configuration: a Values snapshot guarded by
// a lock so a governance.UpdateConfigurationAction can mutate it safely
// while readers (ledger, trace engine) take snapshots concurrently. It
// implements governance.ConfigSetter.
type Config struct {
	mu	sync.RWMutex
	vals	Values
	extra	map[string]string
}

// Load reads configuration from configPath (if non-empty) merged over the
// built-in default values, then applies PROVCHAIN_-prefixed environment
// overrides.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	d := defaults()
	v.SetDefault("min_validators", d.MinValidators)
	v.SetDefault("max_validators", d.MaxValidators)
	v.SetDefault("pool_max_size", d.PoolMaxSize)
	v.SetDefault("max_transactions_per_block", d.MaxTransactionsPerBlock)
	v.SetDefault("trace_max_depth", d.TraceMaxDepth)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, pverr.Wrap(pverr.Validation, "read config file", err)
		}
	}

	v.SetEnvPrefix("PROVCHAIN")
	v.AutomaticEnv()

	var vals Values
	if err := v.Unmarshal(&vals); err != nil {
		return nil, pverr.Wrap(pverr.Validation, "unmarshal config", err)
	}
	return &Config{vals: vals, extra: make(map[string]string)}, nil
}

// LoadFromEnv loads configuration using the PROVCHAIN_CONFIG_FILE
// environment variable, if set, falling back to built-in defaults.
func LoadFromEnv() (*Config, error) {
	return Load(os.Getenv("PROVCHAIN_CONFIG_FILE"))
}

// Snapshot returns a copy of the current configuration values.
func (c *Config) Snapshot() Values {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals
}

// Set applies a governance UpdateConfiguration action's (key, value) pair
// at runtime. Recognized keys update the typed fields directly; unrecognized
// keys are stored verbatim for callers that consult them by name.
func (c *Config) Set(key, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch key {
	case "min_validators":
		n, err := strconv.Atoi(value)
		if err != nil {
			return pverr.Wrap(pverr.Validation, "parse min_validators", err)
		}
		c.vals.MinValidators = n
	case "max_validators":
		n, err := strconv.Atoi(value)
		if err != nil {
			return pverr.Wrap(pverr.Validation, "parse max_validators", err)
		}
		c.vals.MaxValidators = n
	case "pool_max_size":
		n, err := strconv.Atoi(value)
		if err != nil {
			return pverr.Wrap(pverr.Validation, "parse pool_max_size", err)
		}
		c.vals.PoolMaxSize = n
	case "max_transactions_per_block":
		n, err := strconv.Atoi(value)
		if err != nil {
			return pverr.Wrap(pverr.Validation, "parse max_transactions_per_block", err)
		}
		c.vals.MaxTransactionsPerBlock = n
	case "trace_max_depth":
		n, err := strconv.Atoi(value)
		if err != nil {
			return pverr.Wrap(pverr.Validation, "parse trace_max_depth", err)
		}
		c.vals.TraceMaxDepth = n
	default:
		if c.extra == nil {
			c.extra = make(map[string]string)
		}
		c.extra[key] = value
	}
	return nil
}

// Get returns a previously-set unrecognized configuration key, for callers
// that define their own keys via UpdateConfiguration.
func (c *Config) Get(key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.extra[key]
	return v, ok
}

func (c *Config) String() string {
	v := c.Snapshot()
	return fmt.Sprintf("Config{min_validators=%d max_validators=%d pool_max_size=%d max_transactions_per_block=%d trace_max_depth=%d}",
		v.MinValidators, v.MaxValidators, v.PoolMaxSize, v.MaxTransactionsPerBlock, v.TraceMaxDepth)
}
