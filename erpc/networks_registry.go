package erpc

import (
	"fmt"
	"sync"

	"github.com/erpc/walletrpc/common"
	"github.com/erpc/walletrpc/health"
	"github.com/rs/zerolog"
)

// NetworksRegistry holds the live networks of the process. Every network
// shares one health tracker, so an endpoint url backing two networks carries
// one failure count.
type NetworksRegistry struct {
	logger  *zerolog.Logger
	tracker *health.Tracker
	opts    []NetworkOption

	mu       sync.RWMutex
	networks map[string]*Network
	order    []string
}

func NewNetworksRegistry(logger *zerolog.Logger, tracker *health.Tracker, opts ...NetworkOption) *NetworksRegistry {
	if tracker == nil {
		tracker = health.NewTracker()
	}
	return &NetworksRegistry{
		logger:   logger,
		tracker:  tracker,
		opts:     opts,
		networks: make(map[string]*Network),
	}
}

func (r *NetworksRegistry) Tracker() *health.Tracker {
	return r.tracker
}

// Reload replaces every network with ones built from nwCfgs. The new set is
// built first; if any network fails to build the old set stays in place.
// Replaced networks are shut down, rejecting their queued calls.
func (r *NetworksRegistry) Reload(nwCfgs []*common.NetworkConfig) error {
	next := make(map[string]*Network, len(nwCfgs))
	order := make([]string, 0, len(nwCfgs))
	for _, nwCfg := range nwCfgs {
		if _, dup := next[nwCfg.Id]; dup {
			shutdownAll(next)
			return common.NewErrInvalidConfig(fmt.Sprintf("duplicate network id %s", nwCfg.Id))
		}
		nw, err := NewNetwork(r.logger, nwCfg, r.tracker, r.opts...)
		if err != nil {
			shutdownAll(next)
			return fmt.Errorf("failed to prepare network %s: %w", nwCfg.Id, err)
		}
		next[nwCfg.Id] = nw
		order = append(order, nwCfg.Id)
	}

	r.mu.Lock()
	prev := r.networks
	r.networks = next
	r.order = order
	r.mu.Unlock()

	shutdownAll(prev)
	r.logger.Info().Strs("networks", order).Msg("networks loaded")

	return nil
}

func (r *NetworksRegistry) GetNetwork(networkId string) (*Network, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if networkId == "" && len(r.order) == 1 {
		return r.networks[r.order[0]], nil
	}
	nw, ok := r.networks[networkId]
	if !ok {
		return nil, common.NewErrNetworkNotFound(networkId)
	}
	return nw, nil
}

// Networks returns the live networks in configuration order.
func (r *NetworksRegistry) Networks() []*Network {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Network, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.networks[id])
	}
	return out
}

func (r *NetworksRegistry) Shutdown() {
	r.mu.Lock()
	prev := r.networks
	r.networks = make(map[string]*Network)
	r.order = nil
	r.mu.Unlock()

	shutdownAll(prev)
}

func shutdownAll(networks map[string]*Network) {
	for _, nw := range networks {
		nw.Shutdown()
	}
}
