package fetcher

import (
	"errors"
	"fmt"

	"github.com/rickgao/airvpn-bridge/internal/api"
)

// Kind classifies why a fetch cycle failed.
type Kind int

const (
	KindTransport  Kind = iota + 1 // connection, DNS, timeout, cancellation
	KindHTTPStatus                 // non-2xx response
	KindParse                      // malformed JSON or unexpected shape
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindHTTPStatus:
		return "http status"
	case KindParse:
		return "parse"
	default:
		return "unknown"
	}
}

// FetchError is the only error Fetch returns.
type FetchError struct {
	Kind     Kind
	Endpoint string // "userinfo" or "devices"
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %s error: %v", e.Endpoint, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of a FetchError anywhere in err's chain.
func KindOf(err error) (Kind, bool) {
	var fe *FetchError
	if !errors.As(err, &fe) {
		return 0, false
	}
	return fe.Kind, true
}

func classify(endpoint string, err error) *FetchError {
	kind := KindTransport

	var apiErr *api.APIError
	var decErr *api.DecodeError
	switch {
	case errors.As(err, &apiErr):
		kind = KindHTTPStatus
	case errors.As(err, &decErr):
		kind = KindParse
	}

	return &FetchError{Kind: kind, Endpoint: endpoint, Err: err}
}
