package common

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// Config represents the configuration of the application.
type Config struct {
	LogLevel string           `yaml:"logLevel" json:"logLevel"`
	Server   *ServerConfig    `yaml:"server" json:"server"`
	Metrics  *MetricsConfig   `yaml:"metrics" json:"metrics"`
	Networks []*NetworkConfig `yaml:"networks" json:"networks"`
}

type ServerConfig struct {
	HttpHost     string    `yaml:"httpHost" json:"httpHost"`
	HttpPort     int       `yaml:"httpPort" json:"httpPort"`
	MaxTimeout   *Duration `yaml:"maxTimeout" json:"maxTimeout"`
	ReadTimeout  *Duration `yaml:"readTimeout" json:"readTimeout"`
	WriteTimeout *Duration `yaml:"writeTimeout" json:"writeTimeout"`
}

type MetricsConfig struct {
	Enabled *bool `yaml:"enabled" json:"enabled"`
}

// NetworkConfig is the descriptor of one network: a chain id and an ordered
// list of candidate endpoints, index 0 being the operator's preference.
type NetworkConfig struct {
	Id        string           `yaml:"id" json:"id"`
	ChainId   int64            `yaml:"chainId" json:"chainId"`
	Endpoints []string         `yaml:"endpoints" json:"endpoints"`
	Client    *ClientConfig    `yaml:"client" json:"client"`
	Failsafe  *FailsafeConfig  `yaml:"failsafe" json:"failsafe"`
	Multicall *MulticallConfig `yaml:"multicall" json:"multicall"`
}

type ClientConfig struct {
	Timeout        *Duration `yaml:"timeout" json:"timeout"`
	RateLimitRps   float64   `yaml:"rateLimitRps" json:"rateLimitRps"`
	RateLimitBurst int       `yaml:"rateLimitBurst" json:"rateLimitBurst"`
}

type FailsafeConfig struct {
	Retry *RetryPolicyConfig `yaml:"retry" json:"retry"`
}

type RetryPolicyConfig struct {
	MaxAttempts int `yaml:"maxAttempts" json:"maxAttempts"`
}

type MulticallConfig struct {
	Enabled *bool `yaml:"enabled" json:"enabled"`
	// Address overrides the aggregation contract resolved from the chain id.
	Address          string    `yaml:"address" json:"address"`
	InitialBatchSize int       `yaml:"initialBatchSize" json:"initialBatchSize"`
	MinBatchSize     int       `yaml:"minBatchSize" json:"minBatchSize"`
	ShrinkFactor     float64   `yaml:"shrinkFactor" json:"shrinkFactor"`
	DebounceWindow   *Duration `yaml:"debounceWindow" json:"debounceWindow"`
	MaxAttempts      int       `yaml:"maxAttempts" json:"maxAttempts"`
}

// Duration accepts either a Go duration string ("150ms") or an integer number
// of milliseconds in YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err == nil {
			*d = Duration(parsed)
			return nil
		}
	}
	var ms int64
	if err := value.Decode(&ms); err == nil {
		*d = Duration(time.Duration(ms) * time.Millisecond)
		return nil
	}
	return fmt.Errorf("invalid duration %q", value.Value)
}

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return SonicCfg.Marshal(time.Duration(d).String())
}

func (d Duration) Ptr() *Duration {
	return &d
}

// LoadConfig reads a YAML file from fs, expands ${ENV} references and applies
// defaults. A .env file next to the working directory is loaded first if present.
func LoadConfig(fs afero.Fs, filename string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	data, err := afero.ReadFile(fs, filename)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(expandedData, &cfg); err != nil {
		return nil, err
	}

	if err := cfg.SetDefaults(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// GetNetworkConfig returns the network configuration by id, or nil.
func (c *Config) GetNetworkConfig(networkId string) *NetworkConfig {
	for _, n := range c.Networks {
		if n.Id == networkId {
			return n
		}
	}
	return nil
}

func (c *NetworkConfig) MarshalZerologObject(e *zerolog.Event) {
	e.Str("id", c.Id).
		Int64("chainId", c.ChainId).
		Int("endpoints", len(c.Endpoints))
}

func (c *ServerConfig) MarshalZerologObject(e *zerolog.Event) {
	e.Str("host", c.HttpHost).
		Int("port", c.HttpPort)
	if c.MaxTimeout != nil {
		e.Str("maxTimeout", c.MaxTimeout.String())
	}
}
