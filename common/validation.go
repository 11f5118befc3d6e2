package common

import (
	"fmt"
	"net/url"

	"github.com/erpc/walletrpc/util"
	ethcommon "github.com/ethereum/go-ethereum/common"
)

func (c *Config) Validate() error {
	if c.Server != nil {
		if err := c.Server.Validate(); err != nil {
			return err
		}
	}
	seen := make(map[string]bool, len(c.Networks))
	for _, n := range c.Networks {
		if err := n.Validate(); err != nil {
			return err
		}
		if seen[n.Id] {
			return NewErrInvalidConfig(fmt.Sprintf("network id '%s' is defined more than once", n.Id))
		}
		seen[n.Id] = true
	}

	return nil
}

func (s *ServerConfig) Validate() error {
	if s.HttpPort < 0 || s.HttpPort > 65535 {
		return NewErrInvalidConfig(fmt.Sprintf("server.httpPort %d is out of range", s.HttpPort))
	}
	return nil
}

func (n *NetworkConfig) Validate() error {
	if n.Id == "" {
		return NewErrInvalidConfig("network.*.id or network.*.chainId is required")
	}
	if !util.IsValidIdentifier(n.Id) {
		return NewErrInvalidConfig(fmt.Sprintf("network id '%s' must only contain alphanumeric characters, underscores, dashes or colons", n.Id))
	}
	if n.ChainId <= 0 {
		return NewErrInvalidConfig(fmt.Sprintf("network '%s' must have a positive chainId", n.Id))
	}
	if len(n.Endpoints) == 0 {
		return NewErrInvalidConfig(fmt.Sprintf("network '%s' must have at least one endpoint", n.Id))
	}
	seen := make(map[string]bool, len(n.Endpoints))
	for _, ep := range n.Endpoints {
		u, err := url.Parse(ep)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return NewErrInvalidConfig(fmt.Sprintf("network '%s' has an invalid endpoint url", n.Id))
		}
		if seen[ep] {
			return NewErrInvalidConfig(fmt.Sprintf("network '%s' lists the same endpoint twice", n.Id))
		}
		seen[ep] = true
	}
	if n.Multicall != nil && n.Multicall.Address != "" && !ethcommon.IsHexAddress(n.Multicall.Address) {
		return NewErrInvalidConfig(fmt.Sprintf("network '%s' has an invalid multicall.address", n.Id))
	}

	return nil
}
