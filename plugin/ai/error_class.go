package ai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/sashabaranov/go-openai"
)

// FailureClass categorizes a failed completion attempt for fallback decisions.
type FailureClass string

const (
	FailureBadRequest   FailureClass = "bad_request"
	FailureNotFound     FailureClass = "not_found"
	FailureTimeout      FailureClass = "timeout"
	FailureUnauthorized FailureClass = "unauthorized"
	FailureRateLimited  FailureClass = "rate_limited"
	FailureServer       FailureClass = "server"
	FailureNetwork      FailureClass = "network"
	FailureCanceled     FailureClass = "canceled"
	FailureEmpty        FailureClass = "empty_response"
	FailureUnknown      FailureClass = "unknown"
)

// Retryable reports whether the gateway may continue with the next attempt
// of its plan. Everything else aborts the candidate loop.
func (c FailureClass) Retryable() bool {
	switch c {
	case FailureBadRequest, FailureNotFound, FailureTimeout:
		return true
	default:
		return false
	}
}

// CompletionError is returned when the gateway gives up.
type CompletionError struct {
	Class FailureClass
	Model string
	Tier  Tier
	Err   error
}

func (e *CompletionError) Error() string {
	return fmt.Sprintf("completion failed on %s (%s, %s): %v", e.Model, e.Tier, e.Class, e.Err)
}

// Unwrap returns the original error for errors.Is/As.
func (e *CompletionError) Unwrap() error {
	return e.Err
}

// ClassifyFailure maps an attempt error to a FailureClass. parent is the
// caller's context: a deadline on the attempt alone is a timeout, while a
// done parent means the caller gave up.
func ClassifyFailure(parent context.Context, err error) FailureClass {
	if err == nil {
		return ""
	}
	if parent != nil && parent.Err() != nil {
		return FailureCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return FailureTimeout
	}
	if errors.Is(err, context.Canceled) {
		return FailureCanceled
	}
	if errors.Is(err, errEmptyCompletion) {
		return FailureEmpty
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return classifyStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return classifyStatus(reqErr.HTTPStatusCode)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return FailureTimeout
		}
		return FailureNetwork
	}
	return FailureUnknown
}

func classifyStatus(status int) FailureClass {
	switch {
	case status == http.StatusBadRequest:
		return FailureBadRequest
	case status == http.StatusNotFound:
		return FailureNotFound
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return FailureUnauthorized
	case status == http.StatusTooManyRequests:
		return FailureRateLimited
	case status >= 500:
		return FailureServer
	default:
		return FailureUnknown
	}
}
