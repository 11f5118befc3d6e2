package evm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/erpc/walletrpc/common"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

// Caller sends one logical request through the failover transport.
type Caller interface {
	Send(ctx context.Context, method string, params []interface{}) (json.RawMessage, error)
}

// SendRawTransaction submits a signed transaction and returns its hash. Since
// the transport may retry on another endpoint, a node saying it already has
// the transaction counts as success.
func SendRawTransaction(ctx context.Context, caller Caller, signedTxHex string) (ethcommon.Hash, error) {
	tx, err := decodeRawTransaction(signedTxHex)
	if err != nil {
		return ethcommon.Hash{}, common.NewErrInvalidRequest(err)
	}
	txHash := tx.Hash()

	res, err := caller.Send(ctx, "eth_sendRawTransaction", []interface{}{signedTxHex})
	if err == nil {
		var returned string
		if uerr := common.SonicCfg.Unmarshal(res, &returned); uerr == nil && returned != "" && !strings.EqualFold(returned, txHash.Hex()) {
			return ethcommon.Hash{}, fmt.Errorf("node returned transaction hash %s, expected %s", returned, txHash.Hex())
		}
		return txHash, nil
	}

	switch rejectionReason(err) {
	case "already known", "already in mempool":
		return txHash, nil
	case "nonce too low":
		// Only ours if the node can find it by hash.
		found, lerr := caller.Send(ctx, "eth_getTransactionByHash", []interface{}{txHash.Hex()})
		if lerr == nil && len(found) > 0 && string(found) != "null" {
			return txHash, nil
		}
	}

	return ethcommon.Hash{}, err
}

func decodeRawTransaction(signedTxHex string) (*types.Transaction, error) {
	raw, err := hexutil.Decode(signedTxHex)
	if err != nil {
		return nil, fmt.Errorf("invalid raw transaction hex: %w", err)
	}
	var tx types.Transaction
	if err := tx.UnmarshalBinary(raw); err != nil {
		return nil, fmt.Errorf("invalid raw transaction: %w", err)
	}
	return &tx, nil
}

func rejectionReason(err error) string {
	var jre *common.ErrJsonRpcException
	if !errors.As(err, &jre) {
		return ""
	}
	msg := strings.ToLower(jre.Message)
	switch {
	case strings.Contains(msg, "already known"):
		return "already known"
	case strings.Contains(msg, "already in mempool"), strings.Contains(msg, "already imported"):
		return "already in mempool"
	case strings.Contains(msg, "nonce too low"):
		return "nonce too low"
	}
	return ""
}
