package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// Class is the outcome of one upstream call that did not succeed.
type Class int

const (
	// AuthFailure is terminal for the whole family.
	AuthFailure Class = iota + 1
	// QuotaOrRateLimited may be retried or failed over.
	QuotaOrRateLimited
	// TransientServerError may be retried or failed over.
	TransientServerError
	// PermanentError fails over without retrying the same candidate.
	PermanentError
)

func (c Class) String() string {
	switch c {
	case AuthFailure:
		return "auth_failure"
	case QuotaOrRateLimited:
		return "quota_or_rate_limited"
	case TransientServerError:
		return "transient_server_error"
	case PermanentError:
		return "permanent_error"
	default:
		return "unknown"
	}
}

// Retryable reports whether the same candidate may be tried again.
func (c Class) Retryable() bool {
	return c == QuotaOrRateLimited || c == TransientServerError
}

// Failure describes one unsuccessful upstream call.
type Failure struct {
	Class      Class
	Provider   string
	StatusCode int    // 0 when no response was received
	Detail     string // excerpt of the upstream error body
	Err        error
}

func (f *Failure) Error() string {
	msg := fmt.Sprintf("%s: %s", f.Provider, f.Class)
	if f.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", f.StatusCode)
	}
	if f.Err != nil {
		msg += ": " + f.Err.Error()
	}
	return msg
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// ClassifyStatus maps a non-2xx upstream status to a Class.
func ClassifyStatus(status int) Class {
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return AuthFailure
	case status == http.StatusPaymentRequired, status == http.StatusTooManyRequests:
		return QuotaOrRateLimited
	case status == http.StatusRequestTimeout, status >= 500:
		return TransientServerError
	default:
		return PermanentError
	}
}

// classifyTransportError maps an error from Doer.Do. Caller cancellation is
// permanent; everything else on the wire is worth another try.
func classifyTransportError(err error) Class {
	if errors.Is(err, context.Canceled) {
		return PermanentError
	}
	return TransientServerError
}

const maxDetail = 512

// failureFromResponse drains and closes a non-2xx body so the connection can
// be reused, keeping a short excerpt for the logs.
func failureFromResponse(name string, resp *http.Response) *Failure {
	defer resp.Body.Close()

	excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, maxDetail))
	_, _ = io.Copy(io.Discard, resp.Body)

	return &Failure{
		Class:      ClassifyStatus(resp.StatusCode),
		Provider:   name,
		StatusCode: resp.StatusCode,
		Detail:     string(excerpt),
	}
}
