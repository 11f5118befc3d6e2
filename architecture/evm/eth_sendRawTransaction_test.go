package evm

import (
	"context"
	"encoding/json"
	"math/big"
	"testing"

	"github.com/erpc/walletrpc/common"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type callerFunc func(ctx context.Context, method string, params []interface{}) (json.RawMessage, error)

func (f callerFunc) Send(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
	return f(ctx, method, params)
}

func signedTx(t *testing.T) (string, ethcommon.Hash) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    7,
		To:       &tokenA,
		Value:    big.NewInt(1),
		Gas:      21000,
		GasPrice: big.NewInt(1_000_000_000),
	})
	signed, err := types.SignTx(tx, types.NewEIP155Signer(big.NewInt(1)), key)
	require.NoError(t, err)
	raw, err := signed.MarshalBinary()
	require.NoError(t, err)
	return hexutil.Encode(raw), signed.Hash()
}

func TestSendRawTransaction_Success(t *testing.T) {
	rawTx, hash := signedTx(t)
	var methods []string
	caller := callerFunc(func(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
		methods = append(methods, method)
		assert.Equal(t, rawTx, params[0])
		return json.RawMessage(`"` + hash.Hex() + `"`), nil
	})

	got, err := SendRawTransaction(context.Background(), caller, rawTx)
	require.NoError(t, err)
	assert.Equal(t, hash, got)
	assert.Equal(t, []string{"eth_sendRawTransaction"}, methods)
}

func TestSendRawTransaction_AlreadyKnownIsSuccess(t *testing.T) {
	rawTx, hash := signedTx(t)
	caller := callerFunc(func(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
		return nil, common.NewErrJsonRpcException(-32000, "already known", "")
	})

	got, err := SendRawTransaction(context.Background(), caller, rawTx)
	require.NoError(t, err)
	assert.Equal(t, hash, got)
}

func TestSendRawTransaction_NonceTooLow(t *testing.T) {
	rawTx, hash := signedTx(t)

	t.Run("OwnTransactionFound", func(t *testing.T) {
		caller := callerFunc(func(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
			if method == "eth_getTransactionByHash" {
				assert.Equal(t, hash.Hex(), params[0])
				return json.RawMessage(`{"hash":"` + hash.Hex() + `"}`), nil
			}
			return nil, common.NewErrJsonRpcException(-32000, "nonce too low", "")
		})
		got, err := SendRawTransaction(context.Background(), caller, rawTx)
		require.NoError(t, err)
		assert.Equal(t, hash, got)
	})

	t.Run("SomeoneElsesTransaction", func(t *testing.T) {
		caller := callerFunc(func(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
			if method == "eth_getTransactionByHash" {
				return json.RawMessage(`null`), nil
			}
			return nil, common.NewErrJsonRpcException(-32000, "nonce too low", "")
		})
		_, err := SendRawTransaction(context.Background(), caller, rawTx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "nonce too low")
	})
}

func TestSendRawTransaction_RejectsGarbage(t *testing.T) {
	caller := callerFunc(func(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
		t.Fatal("garbage must not reach the network")
		return nil, nil
	})

	_, err := SendRawTransaction(context.Background(), caller, "0xdeadbeef")
	require.Error(t, err)
	assert.True(t, common.HasErrorCode(err, common.ErrCodeInvalidRequest))

	_, err = SendRawTransaction(context.Background(), caller, "not-hex")
	require.Error(t, err)
}

func TestIsWriteMethod(t *testing.T) {
	assert.True(t, IsWriteMethod("eth_sendRawTransaction"))
	assert.False(t, IsWriteMethod("eth_call"))
}
