package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/sashabaranov/go-openai"
)

// ErrorKind classifies provider failures.
type ErrorKind string

const (
	KindAuth      ErrorKind = "auth"
	KindNetwork   ErrorKind = "network"
	KindTimeout   ErrorKind = "timeout"
	KindStatus    ErrorKind = "status"
	KindMalformed ErrorKind = "malformed"
	KindConfig    ErrorKind = "config"
)

// ErrNoChoices is returned when the provider answers without any choice.
var ErrNoChoices = errors.New("no choices in response")

// ProviderError wraps a failed completion with its classification.
type ProviderError struct {
	Provider   string
	Kind       ErrorKind
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s error (status %d): %v", e.Provider, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s error: %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// classify maps a go-openai client error onto a ProviderError.
func classify(provider string, err error) *ProviderError {
	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr
	}

	out := &ProviderError{Provider: provider, Kind: KindMalformed, Err: err}

	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		out.Kind = KindTimeout
	case errors.Is(err, context.Canceled):
		out.Kind = KindNetwork
	case errors.As(err, &apiErr):
		out.StatusCode = apiErr.HTTPStatusCode
		out.Kind = statusKind(apiErr.HTTPStatusCode)
	case errors.As(err, &reqErr):
		out.StatusCode = reqErr.HTTPStatusCode
		out.Kind = statusKind(reqErr.HTTPStatusCode)
	case errors.As(err, &netErr):
		out.Kind = KindNetwork
		if netErr.Timeout() {
			out.Kind = KindTimeout
		}
	}
	return out
}

func statusKind(code int) ErrorKind {
	switch code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return KindAuth
	case 0:
		return KindNetwork
	default:
		return KindStatus
	}
}
