package erpc

import (
	"context"
	"testing"
	"time"

	"github.com/erpc/walletrpc/common"
	"github.com/erpc/walletrpc/health"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNetworksRegistry_SharesTrackerAcrossNetworks(t *testing.T) {
	node := &multicallNode{}
	tracker := health.NewTracker()
	reg := NewNetworksRegistry(&log.Logger, tracker, WithClientFactory(node.factory))
	defer reg.Shutdown()

	require.NoError(t, reg.Reload([]*common.NetworkConfig{
		newNetworkConfig(t, 1, rpc1, rpc2),
		newNetworkConfig(t, 137, rpc1, rpc3),
	}))

	mainnet, err := reg.GetNetwork("evm:1")
	require.NoError(t, err)
	polygon, err := reg.GetNetwork("evm:137")
	require.NoError(t, err)

	reg.Tracker().RecordFailure(common.NewEndpoint(rpc1))
	assert.Equal(t, 1, mainnet.FailureCount(common.NewEndpoint(rpc1)))
	assert.Equal(t, 1, polygon.FailureCount(common.NewEndpoint(rpc1)))
	assert.Same(t, tracker, reg.Tracker())

	ids := []string{}
	for _, nw := range reg.Networks() {
		ids = append(ids, nw.Id())
	}
	assert.Equal(t, []string{"evm:1", "evm:137"}, ids)
}

func TestNetworksRegistry_GetNetwork(t *testing.T) {
	reg := NewNetworksRegistry(&log.Logger, nil)
	defer reg.Shutdown()
	require.NoError(t, reg.Reload([]*common.NetworkConfig{newNetworkConfig(t, 1, rpc1)}))

	nw, err := reg.GetNetwork("")
	require.NoError(t, err, "a single network is the default")
	assert.Equal(t, "evm:1", nw.Id())

	_, err = reg.GetNetwork("evm:10")
	require.Error(t, err)
	assert.True(t, common.HasErrorCode(err, common.ErrCodeNetworkNotFound))

	require.NoError(t, reg.Reload([]*common.NetworkConfig{
		newNetworkConfig(t, 1, rpc1),
		newNetworkConfig(t, 10, rpc2),
	}))
	_, err = reg.GetNetwork("")
	assert.True(t, common.HasErrorCode(err, common.ErrCodeNetworkNotFound))
}

func TestNetworksRegistry_ReloadShutsDownPreviousNetworks(t *testing.T) {
	node := &multicallNode{}
	reg := NewNetworksRegistry(&log.Logger, nil, WithClientFactory(node.factory))
	defer reg.Shutdown()

	cfg := newNetworkConfig(t, 1, rpc1)
	cfg.Multicall.DebounceWindow = common.Duration(time.Hour).Ptr()
	require.NoError(t, reg.Reload([]*common.NetworkConfig{cfg}))
	old, err := reg.GetNetwork("evm:1")
	require.NoError(t, err)

	queued := make(chan error, 1)
	go func() {
		_, err := old.Send(context.Background(), "eth_call", balanceOfParams(usdc, "0x01"), true)
		queued <- err
	}()
	require.Eventually(t, func() bool { return old.batcher.QueueLen() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, reg.Reload([]*common.NetworkConfig{newNetworkConfig(t, 1, rpc2)}))

	select {
	case err := <-queued:
		assert.True(t, common.HasErrorCode(err, common.ErrCodeNetworkShutdown))
	case <-time.After(time.Second):
		t.Fatal("call queued on the replaced network was not rejected")
	}

	current, err := reg.GetNetwork("evm:1")
	require.NoError(t, err)
	assert.NotSame(t, old, current)
	assert.Equal(t, rpc2, current.Candidates()[0].Url)

	res, err := current.Send(context.Background(), "eth_blockNumber", nil, true)
	require.NoError(t, err)
	assert.Equal(t, `"0x2a"`, string(res))
}

func TestNetworksRegistry_FailedReloadKeepsCurrentNetworks(t *testing.T) {
	reg := NewNetworksRegistry(&log.Logger, nil)
	defer reg.Shutdown()
	require.NoError(t, reg.Reload([]*common.NetworkConfig{newNetworkConfig(t, 1, rpc1)}))

	err := reg.Reload([]*common.NetworkConfig{
		newNetworkConfig(t, 10, rpc1),
		newNetworkConfig(t, 10, rpc2),
	})
	require.Error(t, err)
	assert.True(t, common.HasErrorCode(err, common.ErrCodeInvalidConfig))

	nw, err := reg.GetNetwork("evm:1")
	require.NoError(t, err)
	_, err = nw.Send(context.Background(), "eth_chainId", nil, true)
	assert.NoError(t, err)

	empty := &common.NetworkConfig{Id: "evm:5", ChainId: 5}
	err = reg.Reload([]*common.NetworkConfig{empty})
	require.Error(t, err)
	assert.True(t, common.HasErrorCode(err, common.ErrCodeEmptyCandidateList))
}
