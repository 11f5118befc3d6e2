package upstream

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/erpc/walletrpc/common"
	"github.com/h2non/gock"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGockClient(t *testing.T, cfg *common.ClientConfig) *HttpJsonRpcClient {
	t.Helper()
	if cfg == nil {
		cfg = &common.ClientConfig{}
	}
	require.NoError(t, cfg.SetDefaults())
	client, err := NewHttpJsonRpcClient(&log.Logger, common.NewEndpoint(rpcA), cfg)
	require.NoError(t, err)
	return client
}

func TestHttpJsonRpcClient(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		defer gock.Off()
		gock.New(rpcA).
			Post("").
			MatchType("json").
			BodyString(`"method":"eth_blockNumber"`).
			Reply(200).
			JSON(map[string]interface{}{"jsonrpc": "2.0", "id": 1, "result": "0x1234"})

		client := newGockClient(t, nil)
		res, err := client.SendRequest(context.Background(), common.NewJsonRpcRequest("eth_blockNumber", nil))
		require.NoError(t, err)
		assert.JSONEq(t, `"0x1234"`, string(res))
		assert.True(t, gock.IsDone())
	})

	t.Run("JsonRpcError", func(t *testing.T) {
		defer gock.Off()
		gock.New(rpcA).
			Post("").
			Reply(200).
			JSON(map[string]interface{}{
				"jsonrpc": "2.0",
				"id":      1,
				"error":   map[string]interface{}{"code": -32005, "message": "limit exceeded"},
			})

		client := newGockClient(t, nil)
		_, err := client.SendRequest(context.Background(), common.NewJsonRpcRequest("eth_getLogs", nil))
		require.Error(t, err)

		var jre *common.ErrJsonRpcException
		require.True(t, errors.As(err, &jre))
		assert.Equal(t, -32005, jre.RpcCode)
		assert.Equal(t, "limit exceeded", jre.Message)
	})

	t.Run("ServerSideStatus", func(t *testing.T) {
		defer gock.Off()
		gock.New(rpcA).
			Post("").
			Reply(413).
			BodyString("request entity too large")

		client := newGockClient(t, nil)
		_, err := client.SendRequest(context.Background(), common.NewJsonRpcRequest("eth_call", nil))
		require.Error(t, err)

		var sse *common.ErrEndpointServerSide
		require.True(t, errors.As(err, &sse))
		assert.Equal(t, 413, sse.StatusCode)
		assert.Contains(t, sse.Body, "too large")
		assert.NotContains(t, err.Error(), "rpc-a.localhost:8545/")
	})

	t.Run("MalformedBody", func(t *testing.T) {
		defer gock.Off()
		gock.New(rpcA).
			Post("").
			Reply(200).
			BodyString("<html>oops</html>")

		client := newGockClient(t, nil)
		_, err := client.SendRequest(context.Background(), common.NewJsonRpcRequest("eth_call", nil))
		require.Error(t, err)
		assert.True(t, common.HasErrorCode(err, common.ErrCodeEndpointMalformedResponse))
	})

	t.Run("Timeout", func(t *testing.T) {
		defer gock.Off()
		gock.New(rpcA).
			Post("").
			Reply(200).
			Delay(500 * time.Millisecond).
			JSON(map[string]interface{}{"jsonrpc": "2.0", "id": 1, "result": "0x1"})

		client := newGockClient(t, nil)
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		_, err := client.SendRequest(ctx, common.NewJsonRpcRequest("eth_call", nil))
		require.Error(t, err)
		assert.True(t, common.HasErrorCode(err, common.ErrCodeEndpointTimeout))
		assert.Contains(t, err.Error(), "remote endpoint request timeout")
	})
}

func TestTransport_OverHttp(t *testing.T) {
	defer gock.Off()

	gock.New(rpcA).
		Post("").
		Times(3).
		Reply(503).
		BodyString("upstream busy")
	gock.New(rpcB).
		Post("").
		Reply(200).
		JSON(map[string]interface{}{"jsonrpc": "2.0", "id": 1, "result": "0xde0b6b3a7640000"})

	cfg := &common.NetworkConfig{Id: "evm:1", ChainId: 1, Endpoints: []string{rpcA, rpcB}}
	require.NoError(t, cfg.SetDefaults())
	tracker := newTrackerForTest()
	tr, err := NewTransport(&log.Logger, cfg, tracker, nil)
	require.NoError(t, err)

	res, err := tr.Send(context.Background(), "eth_getBalance", []interface{}{"0x0000000000000000000000000000000000000001", "latest"})
	require.NoError(t, err)
	assert.JSONEq(t, `"0xde0b6b3a7640000"`, string(res))
	assert.Equal(t, 3, tracker.FailureCount(common.NewEndpoint(rpcA)))
	assert.True(t, gock.IsDone())
}
