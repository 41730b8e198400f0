package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// base carries what every adapter kind shares.
type base struct {
	family   string
	model    string
	endpoint string
	auth     func(http.Header)
	client   Doer
}

func (b *base) Name() string {
	return b.family + "/" + b.model
}

func (b *base) Family() string {
	return b.family
}

// post sends body as JSON to url and classifies the response.
func (b *base) post(ctx context.Context, url string, body any, deltaPath string) (*Stream, error) {
	name := b.Name()

	reqBody, err := json.Marshal(body)
	if err != nil {
		return nil, &Failure{Class: PermanentError, Provider: name, Err: fmt.Errorf("marshal request: %w", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, &Failure{Class: PermanentError, Provider: name, Err: fmt.Errorf("create request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	b.auth(httpReq.Header)

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return nil, &Failure{Class: classifyTransportError(err), Provider: name, Err: fmt.Errorf("do request: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, failureFromResponse(name, resp)
	}

	return &Stream{Provider: name, DeltaPath: deltaPath, Body: resp.Body}, nil
}
