package common

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

//
// Base Types
//

type ErrorCode string

type BaseError struct {
	Code    ErrorCode              `json:"code"`
	Message string                 `json:"message"`
	Cause   error                  `json:"cause,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

type StandardError interface {
	HasCode(codes ...ErrorCode) bool
	CodeChain() string
	GetCause() error
}

func (e *BaseError) Unwrap() error {
	return e.Cause
}

func (e *BaseError) GetCause() error {
	return e.Cause
}

func (e *BaseError) Error() string {
	var detailsStr string
	if len(e.Details) > 0 {
		detailsStr = fmt.Sprintf(" %v", e.Details)
	}
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s%s", e.Code, e.Message, detailsStr)
	}
	return fmt.Sprintf("%s: %s%s -> %s", e.Code, e.Message, detailsStr, e.Cause.Error())
}

func (e *BaseError) signature() string {
	return string(e.Code) + ": " + e.Message
}

func (e *BaseError) CodeChain() string {
	if e.Cause != nil {
		if se, ok := e.Cause.(StandardError); ok {
			return fmt.Sprintf("%s <- %s", e.Code, se.CodeChain())
		}
	}

	return string(e.Code)
}

func (e *BaseError) HasCode(codes ...ErrorCode) bool {
	for _, code := range codes {
		if e.Code == code {
			return true
		}
	}

	if e.Cause != nil {
		if se, ok := e.Cause.(StandardError); ok {
			return se.HasCode(codes...)
		}
	}

	return false
}

// HasErrorCode walks the cause chain of err looking for any of the given codes.
func HasErrorCode(err error, codes ...ErrorCode) bool {
	for err != nil {
		if se, ok := err.(StandardError); ok {
			return se.HasCode(codes...)
		}
		err = errors.Unwrap(err)
	}
	return false
}

// ErrorSignature identifies "the same failure" across attempts regardless of
// which endpoint produced it. Only codes, fixed messages and the class of a
// foreign cause take part; urls, bodies and request ids never do.
func ErrorSignature(err error) string {
	parts := make([]string, 0, 4)
	for err != nil {
		sm, ok := err.(interface{ signature() string })
		if !ok {
			parts = append(parts, causeClass(err))
			break
		}
		parts = append(parts, sm.signature())
		err = errors.Unwrap(err)
	}
	return strings.Join(parts, " <- ")
}

func causeClass(err error) string {
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return "net:" + opErr.Op
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return "url:" + urlErr.Op
	}
	return fmt.Sprintf("%T", err)
}

type ErrorWithStatusCode interface {
	ErrorStatusCode() int
}

//
// Programmer errors
//

type ErrEmptyCandidateList struct{ BaseError }

const ErrCodeEmptyCandidateList ErrorCode = "ErrEmptyCandidateList"

var NewErrEmptyCandidateList = func() error {
	return &ErrEmptyCandidateList{
		BaseError{
			Code:    ErrCodeEmptyCandidateList,
			Message: "cannot select an endpoint from an empty candidate list",
		},
	}
}

type ErrNetworkShutdown struct{ BaseError }

const ErrCodeNetworkShutdown ErrorCode = "ErrNetworkShutdown"

var NewErrNetworkShutdown = func(networkId string) error {
	return &ErrNetworkShutdown{
		BaseError{
			Code:    ErrCodeNetworkShutdown,
			Message: "network has been shut down",
			Details: map[string]interface{}{
				"networkId": networkId,
			},
		},
	}
}

func (e *ErrNetworkShutdown) ErrorStatusCode() int { return 503 }

type ErrNetworkNotFound struct{ BaseError }

const ErrCodeNetworkNotFound ErrorCode = "ErrNetworkNotFound"

var NewErrNetworkNotFound = func(networkId string) error {
	return &ErrNetworkNotFound{
		BaseError{
			Code:    ErrCodeNetworkNotFound,
			Message: "network not configured",
			Details: map[string]interface{}{
				"networkId": networkId,
			},
		},
	}
}

func (e *ErrNetworkNotFound) ErrorStatusCode() int { return 404 }

type ErrInvalidConfig struct{ BaseError }

const ErrCodeInvalidConfig ErrorCode = "ErrInvalidConfig"

var NewErrInvalidConfig = func(message string) error {
	return &ErrInvalidConfig{
		BaseError{
			Code:    ErrCodeInvalidConfig,
			Message: message,
		},
	}
}

type ErrInvalidRequest struct{ BaseError }

const ErrCodeInvalidRequest ErrorCode = "ErrInvalidRequest"

var NewErrInvalidRequest = func(cause error) error {
	return &ErrInvalidRequest{
		BaseError{
			Code:    ErrCodeInvalidRequest,
			Message: "invalid json-rpc request",
			Cause:   cause,
		},
	}
}

func (e *ErrInvalidRequest) ErrorStatusCode() int { return 400 }

//
// Transport errors
//

type ErrEndpointTransport struct{ BaseError }

const ErrCodeEndpointTransport ErrorCode = "ErrEndpointTransport"

var NewErrEndpointTransport = func(endpoint string, cause error) error {
	return &ErrEndpointTransport{
		BaseError{
			Code:    ErrCodeEndpointTransport,
			Message: "failed to reach endpoint",
			Cause:   cause,
			Details: map[string]interface{}{
				"endpoint": endpoint,
			},
		},
	}
}

type ErrLocalRateLimited struct{ BaseError }

const ErrCodeLocalRateLimited ErrorCode = "ErrLocalRateLimited"

var NewErrLocalRateLimited = func(endpoint string, cause error) error {
	return &ErrLocalRateLimited{
		BaseError{
			Code:    ErrCodeLocalRateLimited,
			Message: "request not sent, local rate limit for endpoint cannot be honored in time",
			Cause:   cause,
			Details: map[string]interface{}{
				"endpoint": endpoint,
			},
		},
	}
}

func (e *ErrLocalRateLimited) ErrorStatusCode() int { return 429 }

type ErrEndpointTimeout struct{ BaseError }

const ErrCodeEndpointTimeout ErrorCode = "ErrEndpointTimeout"

var NewErrEndpointTimeout = func(endpoint string, cause error) error {
	return &ErrEndpointTimeout{
		BaseError{
			Code:    ErrCodeEndpointTimeout,
			Message: "remote endpoint request timeout",
			Cause:   cause,
			Details: map[string]interface{}{
				"endpoint": endpoint,
			},
		},
	}
}

func (e *ErrEndpointTimeout) ErrorStatusCode() int { return 504 }

type ErrEndpointServerSide struct {
	BaseError
	StatusCode int
	Body       string
}

const ErrCodeEndpointServerSide ErrorCode = "ErrEndpointServerSide"

var NewErrEndpointServerSide = func(endpoint string, statusCode int, body string) error {
	return &ErrEndpointServerSide{
		BaseError: BaseError{
			Code:    ErrCodeEndpointServerSide,
			Message: "server responded with non-2xx status code",
			Details: map[string]interface{}{
				"endpoint":   endpoint,
				"statusCode": statusCode,
				"body":       body,
			},
		},
		StatusCode: statusCode,
		Body:       body,
	}
}

func (e *ErrEndpointServerSide) ErrorStatusCode() int { return 502 }

func (e *ErrEndpointServerSide) signature() string {
	return fmt.Sprintf("%s: %d", e.Code, e.StatusCode)
}

type ErrEndpointMalformedResponse struct{ BaseError }

const ErrCodeEndpointMalformedResponse ErrorCode = "ErrEndpointMalformedResponse"

var NewErrEndpointMalformedResponse = func(endpoint string, cause error) error {
	return &ErrEndpointMalformedResponse{
		BaseError{
			Code:    ErrCodeEndpointMalformedResponse,
			Message: "could not parse json-rpc response from endpoint",
			Cause:   cause,
			Details: map[string]interface{}{
				"endpoint": endpoint,
			},
		},
	}
}

type ErrJsonRpcException struct {
	BaseError
	RpcCode int    `json:"rpcCode"`
	Data    string `json:"data,omitempty"`
}

const ErrCodeJsonRpcException ErrorCode = "ErrJsonRpcException"

var NewErrJsonRpcException = func(rpcCode int, message string, data string) *ErrJsonRpcException {
	var details map[string]interface{}
	if data != "" {
		details = map[string]interface{}{
			"data": data,
		}
	}
	return &ErrJsonRpcException{
		BaseError: BaseError{
			Code:    ErrCodeJsonRpcException,
			Message: message,
			Details: details,
		},
		RpcCode: rpcCode,
		Data:    data,
	}
}

func (e *ErrJsonRpcException) Error() string {
	return fmt.Sprintf("%s: %d %s", e.Code, e.RpcCode, e.Message)
}

func (e *ErrJsonRpcException) signature() string {
	return e.Error()
}

//
// Failsafe errors
//

type ErrRetryExhausted struct {
	BaseError
	errs []error
}

const ErrCodeRetryExhausted ErrorCode = "ErrRetryExhausted"

var NewErrRetryExhausted = func(errs []error) error {
	var cause error
	if len(errs) > 0 {
		cause = errs[len(errs)-1]
	}
	return &ErrRetryExhausted{
		BaseError: BaseError{
			Code:    ErrCodeRetryExhausted,
			Message: fmt.Sprintf("all %d attempts failed", len(errs)),
			Cause:   cause,
		},
		errs: errs,
	}
}

// Errors returns every attempt's error in the order they happened.
func (e *ErrRetryExhausted) Errors() []error {
	return e.errs
}

func (e *ErrRetryExhausted) First() error {
	if len(e.errs) == 0 {
		return nil
	}
	return e.errs[0]
}

type ErrHeterogeneousFailures struct {
	BaseError
	errs []error
}

const ErrCodeHeterogeneousFailures ErrorCode = "ErrHeterogeneousFailures"

var NewErrHeterogeneousFailures = func(errs []error) error {
	return &ErrHeterogeneousFailures{
		BaseError: BaseError{
			Code:    ErrCodeHeterogeneousFailures,
			Message: fmt.Sprintf("%d attempts failed with different errors", len(errs)),
		},
		errs: errs,
	}
}

func (e *ErrHeterogeneousFailures) Errors() []error {
	return e.errs
}

func (e *ErrHeterogeneousFailures) Unwrap() []error {
	return e.errs
}

func (e *ErrHeterogeneousFailures) Error() string {
	s := make([]string, 0, len(e.errs))
	for _, err := range e.errs {
		s = append(s, err.Error())
	}
	return fmt.Sprintf("%s: %s: [%s]", e.Code, e.Message, strings.Join(s, ", "))
}

func (e *ErrHeterogeneousFailures) ErrorStatusCode() int { return 502 }

//
// Contract-level errors
//

type ErrCallReverted struct {
	BaseError
	Target string
	Reason string
}

const ErrCodeCallReverted ErrorCode = "ErrCallReverted"

var NewErrCallReverted = func(target string, reason string, returnData string) error {
	msg := "execution reverted"
	if reason != "" {
		msg += ": " + reason
	}
	return &ErrCallReverted{
		BaseError: BaseError{
			Code:    ErrCodeCallReverted,
			Message: msg,
			Details: map[string]interface{}{
				"target": target,
				"data":   returnData,
			},
		},
		Target: target,
		Reason: reason,
	}
}

type ErrMulticallDecode struct{ BaseError }

const ErrCodeMulticallDecode ErrorCode = "ErrMulticallDecode"

var NewErrMulticallDecode = func(cause error) error {
	return &ErrMulticallDecode{
		BaseError{
			Code:    ErrCodeMulticallDecode,
			Message: "could not decode aggregated call response",
			Cause:   cause,
		},
	}
}
