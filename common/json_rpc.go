package common

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog"
)

var jsonRpcIdCounter atomic.Int64

type JsonRpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      interface{}   `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

// NewJsonRpcRequest builds a request with a process-unique numeric id.
func NewJsonRpcRequest(method string, params []interface{}) *JsonRpcRequest {
	if params == nil {
		params = []interface{}{}
	}
	return &JsonRpcRequest{
		JSONRPC: "2.0",
		ID:      jsonRpcIdCounter.Add(1),
		Method:  method,
		Params:  params,
	}
}

type JsonRpcErrorObject struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

type JsonRpcResponse struct {
	JSONRPC string              `json:"jsonrpc"`
	ID      interface{}         `json:"id"`
	Result  json.RawMessage     `json:"result,omitempty"`
	Error   *JsonRpcErrorObject `json:"error,omitempty"`
}

func (r *JsonRpcRequest) MarshalZerologObject(e *zerolog.Event) {
	e.Str("method", r.Method).Interface("params", r.Params).Interface("id", r.ID)
}

func (r *JsonRpcResponse) MarshalZerologObject(e *zerolog.Event) {
	e.Interface("id", r.ID)
	if len(r.Result) > 0 {
		e.RawJSON("result", r.Result)
	}
	if r.Error != nil {
		e.Int("errorCode", r.Error.Code).Str("errorMessage", r.Error.Message)
	}
}

// ToError converts the error object of a response into an ErrJsonRpcException.
func (r *JsonRpcResponse) ToError() error {
	if r.Error == nil {
		return nil
	}
	var data string
	switch d := r.Error.Data.(type) {
	case nil:
	case string:
		data = d
	default:
		if b, err := SonicCfg.Marshal(d); err == nil {
			data = string(b)
		}
	}
	return NewErrJsonRpcException(r.Error.Code, r.Error.Message, data)
}

const (
	JsonRpcErrorParseException  = -32700
	JsonRpcErrorInvalidRequest  = -32600
	JsonRpcErrorServerSideError = -32603
	JsonRpcErrorEvmReverted     = 3
)

// NewJsonRpcErrorResponse renders any error as a JSON-RPC error object so the
// HTTP server can hand it back to the caller.
func NewJsonRpcErrorResponse(id interface{}, err error) *JsonRpcResponse {
	obj := &JsonRpcErrorObject{
		Code:    JsonRpcErrorServerSideError,
		Message: err.Error(),
	}

	var rev *ErrCallReverted
	var jre *ErrJsonRpcException
	var ire *ErrInvalidRequest
	switch {
	case errors.As(err, &rev):
		obj.Code = JsonRpcErrorEvmReverted
		obj.Message = rev.Message
		obj.Data = rev.Details["data"]
	case errors.As(err, &jre):
		obj.Code = jre.RpcCode
		obj.Message = jre.Message
		if jre.Data != "" {
			obj.Data = jre.Data
		}
	case errors.As(err, &ire):
		obj.Code = JsonRpcErrorInvalidRequest
	default:
		var se StandardError
		if errors.As(err, &se) {
			obj.Data = map[string]interface{}{
				"codeChain": se.CodeChain(),
			}
		}
	}

	return &JsonRpcResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   obj,
	}
}

// ParseJsonRpcRequest decodes a single request body.
func ParseJsonRpcRequest(body []byte) (*JsonRpcRequest, error) {
	var req JsonRpcRequest
	if err := SonicCfg.Unmarshal(body, &req); err != nil {
		return nil, NewErrInvalidRequest(err)
	}
	if req.Method == "" {
		return nil, NewErrInvalidRequest(fmt.Errorf("method is required"))
	}
	if req.Params == nil {
		req.Params = []interface{}{}
	}
	return &req, nil
}
