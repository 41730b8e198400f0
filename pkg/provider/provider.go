// Package provider adapts the normalized conversation to each upstream model
// API and classifies every upstream response.
//
// The set of adapter kinds is closed: each kind owns its request shape, its
// auth header and the gjson path of its incremental text field. Adding a
// provider means adding a kind, never probing response shapes at runtime.
package provider

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/sigmachat/sigma/pkg/llm"
)

// Request is what an adapter sends upstream.
type Request struct {
	Conversation llm.Conversation
	SystemPrompt string
}

// Adapter sends a conversation to one model of one provider family.
type Adapter interface {
	// Name identifies the candidate as "<family>/<model>".
	Name() string

	// Family groups candidates sharing one credential.
	Family() string

	// Send issues the streaming request. On success the caller owns the
	// returned Stream and must Close it. Any failure is a *Failure.
	Send(ctx context.Context, req *Request) (*Stream, error)
}

// Stream is a successful upstream response body.
type Stream struct {
	// Provider is the Name of the adapter that produced the stream.
	Provider string

	// DeltaPath is the gjson path of the incremental text in each payload.
	DeltaPath string

	Body io.ReadCloser
}

// Close releases the upstream connection.
func (s *Stream) Close() error {
	return s.Body.Close()
}

// Doer is the subset of *http.Client adapters need.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// NewHTTPClient returns the client shared by all adapters. No overall
// timeout is set because streams can run for minutes; only connection setup
// and response headers are bounded.
func NewHTTPClient(headerTimeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = headerTimeout
	return &http.Client{Transport: transport}
}
