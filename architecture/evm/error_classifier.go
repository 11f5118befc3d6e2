package evm

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/erpc/walletrpc/common"
)

type ErrorClass int

const (
	ErrorClassOther ErrorClass = iota
	ErrorClassTimeout
	ErrorClassCapacityExceeded
)

func (c ErrorClass) String() string {
	switch c {
	case ErrorClassTimeout:
		return "timeout"
	case ErrorClassCapacityExceeded:
		return "capacity_exceeded"
	default:
		return "other"
	}
}

// ShouldShrink reports whether a failure of this class means the batch was
// too big for the endpoint.
func (c ErrorClass) ShouldShrink() bool {
	return c == ErrorClassTimeout || c == ErrorClassCapacityExceeded
}

// Lowercase fragments that endpoints use to say a request exceeded their
// resource limits.
var capacityMarkers = []string{
	"allowance",
	"gas limit",
	"out of gas",
	"too large",
	"request entity too large",
	"response size exceeded",
}

// ClassifyError looks at one failed attempt of an aggregated call and decides
// whether it points at the endpoint's capacity.
func ClassifyError(err error) ErrorClass {
	if err == nil {
		return ErrorClassOther
	}
	if errors.Is(err, context.DeadlineExceeded) || common.HasErrorCode(err, common.ErrCodeEndpointTimeout) {
		return ErrorClassTimeout
	}

	var sse *common.ErrEndpointServerSide
	if errors.As(err, &sse) {
		if sse.StatusCode == http.StatusRequestEntityTooLarge {
			return ErrorClassCapacityExceeded
		}
		if hasCapacityMarker(sse.Body) {
			return ErrorClassCapacityExceeded
		}
	}

	var jre *common.ErrJsonRpcException
	if errors.As(err, &jre) {
		if hasCapacityMarker(jre.Message) || hasCapacityMarker(jre.Data) {
			return ErrorClassCapacityExceeded
		}
		return ErrorClassOther
	}

	if hasCapacityMarker(err.Error()) {
		return ErrorClassCapacityExceeded
	}

	return ErrorClassOther
}

func hasCapacityMarker(s string) bool {
	if s == "" {
		return false
	}
	s = strings.ToLower(s)
	for _, m := range capacityMarkers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
