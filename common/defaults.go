package common

import (
	"time"

	"github.com/erpc/walletrpc/util"
)

const (
	DefaultMaxAttempts            = 5
	DefaultMulticallInitialBatch  = 300
	DefaultMulticallMinBatch      = 10
	DefaultMulticallShrinkFactor  = 0.75
	DefaultMulticallDebounce      = 100 * time.Millisecond
	DefaultEndpointRequestTimeout = 30 * time.Second
)

func (c *Config) SetDefaults() error {
	if c.LogLevel == "" {
		c.LogLevel = "INFO"
	}
	if c.Server == nil {
		c.Server = &ServerConfig{}
	}
	if err := c.Server.SetDefaults(); err != nil {
		return err
	}
	if c.Metrics == nil {
		c.Metrics = &MetricsConfig{}
	}
	if err := c.Metrics.SetDefaults(); err != nil {
		return err
	}
	for _, n := range c.Networks {
		if err := n.SetDefaults(); err != nil {
			return err
		}
	}

	return nil
}

func (s *ServerConfig) SetDefaults() error {
	if s.HttpHost == "" {
		s.HttpHost = "0.0.0.0"
	}
	if s.HttpPort == 0 {
		s.HttpPort = 4000
	}
	if s.MaxTimeout == nil {
		s.MaxTimeout = Duration(150 * time.Second).Ptr()
	}
	if s.ReadTimeout == nil {
		s.ReadTimeout = Duration(30 * time.Second).Ptr()
	}
	if s.WriteTimeout == nil {
		s.WriteTimeout = Duration(120 * time.Second).Ptr()
	}

	return nil
}

func (m *MetricsConfig) SetDefaults() error {
	if m.Enabled == nil {
		m.Enabled = util.BoolPtr(true)
	}

	return nil
}

func (n *NetworkConfig) SetDefaults() error {
	if n.Id == "" && n.ChainId > 0 {
		n.Id = util.EvmNetworkId(n.ChainId)
	}
	if n.Client == nil {
		n.Client = &ClientConfig{}
	}
	if err := n.Client.SetDefaults(); err != nil {
		return err
	}
	if n.Failsafe == nil {
		n.Failsafe = &FailsafeConfig{}
	}
	if n.Failsafe.Retry == nil {
		n.Failsafe.Retry = &RetryPolicyConfig{}
	}
	if n.Failsafe.Retry.MaxAttempts <= 0 {
		n.Failsafe.Retry.MaxAttempts = DefaultMaxAttempts
	}
	if n.Multicall == nil {
		n.Multicall = &MulticallConfig{}
	}

	return n.Multicall.SetDefaults()
}

func (c *ClientConfig) SetDefaults() error {
	if c.Timeout == nil {
		c.Timeout = Duration(DefaultEndpointRequestTimeout).Ptr()
	}
	if c.RateLimitRps > 0 && c.RateLimitBurst <= 0 {
		c.RateLimitBurst = int(c.RateLimitRps)
		if c.RateLimitBurst < 1 {
			c.RateLimitBurst = 1
		}
	}

	return nil
}

func (m *MulticallConfig) SetDefaults() error {
	if m.Enabled == nil {
		m.Enabled = util.BoolPtr(true)
	}
	if m.InitialBatchSize <= 0 {
		m.InitialBatchSize = DefaultMulticallInitialBatch
	}
	if m.MinBatchSize <= 0 {
		m.MinBatchSize = DefaultMulticallMinBatch
	}
	if m.MinBatchSize > m.InitialBatchSize {
		m.MinBatchSize = m.InitialBatchSize
	}
	if m.ShrinkFactor <= 0 || m.ShrinkFactor >= 1 {
		m.ShrinkFactor = DefaultMulticallShrinkFactor
	}
	if m.DebounceWindow == nil {
		m.DebounceWindow = Duration(DefaultMulticallDebounce).Ptr()
	}
	if m.MaxAttempts <= 0 {
		m.MaxAttempts = DefaultMaxAttempts
	}

	return nil
}
