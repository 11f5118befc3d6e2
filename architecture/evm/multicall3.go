// Package evm includes Multicall3 helpers for aggregating eth_call batches.
// Calls are packed into tryBlockAndAggregate(false, (address,bytes)[]) so one
// reverting sub-call never prevents the others from returning, and results
// come back positionally as (bool success, bytes returnData).
package evm

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/erpc/walletrpc/common"
	"github.com/ethereum/go-ethereum/accounts/abi"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

const Multicall3Address = "0xcA11bde05977b3631167028862bE2a173976CA11"

const tryBlockAndAggregateMethod = "tryBlockAndAggregate"

const multicall3AbiJson = `[{
	"name": "tryBlockAndAggregate",
	"type": "function",
	"stateMutability": "payable",
	"inputs": [
		{"name": "requireSuccess", "type": "bool"},
		{"name": "calls", "type": "tuple[]", "components": [
			{"name": "target", "type": "address"},
			{"name": "callData", "type": "bytes"}
		]}
	],
	"outputs": [
		{"name": "blockNumber", "type": "uint256"},
		{"name": "blockHash", "type": "bytes32"},
		{"name": "returnData", "type": "tuple[]", "components": [
			{"name": "success", "type": "bool"},
			{"name": "returnData", "type": "bytes"}
		]}
	]
}]`

var multicall3Abi = func() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(multicall3AbiJson))
	if err != nil {
		panic(fmt.Sprintf("invalid multicall3 abi: %v", err))
	}
	return parsed
}()

// Multicall3Call is one sub-call of an aggregated invocation. Field names
// follow the ABI component names so the packer can match them.
type Multicall3Call struct {
	Target   ethcommon.Address
	CallData []byte
}

type Multicall3Result struct {
	Success    bool
	ReturnData []byte
}

type tryBlockAndAggregateOutput struct {
	BlockNumber *big.Int
	BlockHash   [32]byte
	ReturnData  []Multicall3Result
}

// Multicall3Response is the decoded return value of one aggregated call.
type Multicall3Response struct {
	BlockNumber *big.Int
	BlockHash   ethcommon.Hash
	Results     []Multicall3Result
}

// EncodeMulticall3Calldata packs calls into tryBlockAndAggregate calldata with
// requireSuccess disabled.
func EncodeMulticall3Calldata(calls []Multicall3Call) ([]byte, error) {
	if len(calls) == 0 {
		return nil, errors.New("no calls to aggregate")
	}
	return multicall3Abi.Pack(tryBlockAndAggregateMethod, false, calls)
}

// DecodeMulticall3Result unpacks the return data of tryBlockAndAggregate.
func DecodeMulticall3Result(data []byte) (*Multicall3Response, error) {
	if len(data) == 0 {
		return nil, common.NewErrMulticallDecode(errors.New("empty return data"))
	}
	var out tryBlockAndAggregateOutput
	if err := multicall3Abi.UnpackIntoInterface(&out, tryBlockAndAggregateMethod, data); err != nil {
		return nil, common.NewErrMulticallDecode(err)
	}
	return &Multicall3Response{
		BlockNumber: out.BlockNumber,
		BlockHash:   ethcommon.Hash(out.BlockHash),
		Results:     out.ReturnData,
	}, nil
}

// DecodeMulticall3Calldata is the inverse of EncodeMulticall3Calldata.
func DecodeMulticall3Calldata(calldata []byte) ([]Multicall3Call, error) {
	method := multicall3Abi.Methods[tryBlockAndAggregateMethod]
	if len(calldata) < 4 || !bytes.Equal(calldata[:4], method.ID) {
		return nil, common.NewErrMulticallDecode(errors.New("calldata is not a tryBlockAndAggregate call"))
	}
	var in struct {
		RequireSuccess bool
		Calls          []Multicall3Call
	}
	args, err := method.Inputs.Unpack(calldata[4:])
	if err != nil {
		return nil, common.NewErrMulticallDecode(err)
	}
	if err := method.Inputs.Copy(&in, args); err != nil {
		return nil, common.NewErrMulticallDecode(err)
	}
	return in.Calls, nil
}

// EncodeMulticall3Result packs results the way the contract returns them.
func EncodeMulticall3Result(blockNumber *big.Int, blockHash ethcommon.Hash, results []Multicall3Result) ([]byte, error) {
	if blockNumber == nil {
		blockNumber = new(big.Int)
	}
	return multicall3Abi.Methods[tryBlockAndAggregateMethod].Outputs.Pack(blockNumber, [32]byte(blockHash), results)
}

// DecodeRevertReason extracts a readable reason from revert data. Error(string)
// and Panic(uint256) payloads are decoded, custom errors fall back to hex and
// empty data yields an empty reason.
func DecodeRevertReason(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	if reason, err := abi.UnpackRevert(data); err == nil {
		return reason
	}
	return hexutil.Encode(data)
}

// AggregatorAddressResolver maps a chain id to its aggregation contract, nil
// when the chain has none.
type AggregatorAddressResolver func(chainId int64) *ethcommon.Address

// CanonicalMulticall3Resolver knows the chains carrying the canonical
// Multicall3 deployment.
func CanonicalMulticall3Resolver(chainId int64) *ethcommon.Address {
	if _, ok := multicall3Chains[chainId]; !ok {
		return nil
	}
	addr := ethcommon.HexToAddress(Multicall3Address)
	return &addr
}

// ResolveMulticall3Address returns the aggregation contract for a network.
// An explicit address in cfg wins over the resolver, which defaults to
// CanonicalMulticall3Resolver. A nil result disables aggregation.
func ResolveMulticall3Address(chainId int64, cfg *common.MulticallConfig, resolver AggregatorAddressResolver) *ethcommon.Address {
	if cfg != nil && cfg.Enabled != nil && !*cfg.Enabled {
		return nil
	}
	if cfg != nil && cfg.Address != "" {
		addr := ethcommon.HexToAddress(cfg.Address)
		return &addr
	}
	if resolver == nil {
		resolver = CanonicalMulticall3Resolver
	}
	return resolver(chainId)
}

// Chains with the canonical Multicall3 deployment.
var multicall3Chains = map[int64]struct{}{
	1:        {}, // ethereum
	5:        {}, // goerli
	10:       {}, // optimism
	56:       {}, // bsc
	100:      {}, // gnosis
	137:      {}, // polygon
	250:      {}, // fantom
	8453:     {}, // base
	42161:    {}, // arbitrum one
	42220:    {}, // celo
	43114:    {}, // avalanche
	59144:    {}, // linea
	80002:    {}, // polygon amoy
	84532:    {}, // base sepolia
	421614:   {}, // arbitrum sepolia
	11155111: {}, // sepolia
	11155420: {}, // optimism sepolia
}
