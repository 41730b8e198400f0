package provider

import (
	"fmt"
	"net/http"
	"time"
)

// Kind selects the request/response shape of a provider family.
type Kind string

const (
	// KindOpenAI is an OpenAI-compatible chat completions endpoint.
	KindOpenAI Kind = "openai"
	// KindGemini is the Google Generative Language streaming endpoint.
	KindGemini Kind = "gemini"
)

// AuthKind selects how the credential is attached.
type AuthKind string

const (
	// AuthBearer sends "Authorization: Bearer <key>".
	AuthBearer AuthKind = "bearer"
	// AuthHeader sends the key in a named header (AuthHeader on the Spec).
	AuthHeader AuthKind = "header"
)

// RetryPolicy bounds how often a single candidate is attempted.
type RetryPolicy struct {
	// MaxAttempts includes the first attempt. Values below 1 mean 1.
	MaxAttempts int

	// Backoff returns the pause before attempt+1, attempt starting at 1.
	// Nil means no pause.
	Backoff func(attempt int) time.Duration
}

// Attempts returns the effective attempt budget.
func (p RetryPolicy) Attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// Delay returns the pause before the attempt after the given one.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if p.Backoff == nil {
		return 0
	}
	return p.Backoff(attempt)
}

// SingleAttempt never retries.
func SingleAttempt() RetryPolicy {
	return RetryPolicy{MaxAttempts: 1}
}

// LinearBackoff waits base × attempt.
func LinearBackoff(base time.Duration) func(attempt int) time.Duration {
	return func(attempt int) time.Duration {
		if attempt < 1 {
			attempt = 1
		}
		return base * time.Duration(attempt)
	}
}

// Spec is the static configuration of one provider family.
type Spec struct {
	Name       string
	Kind       Kind
	Endpoint   string
	AuthKind   AuthKind
	AuthHeader string
	APIKey     string
	Models     []string
	Retry      RetryPolicy
}

// Candidate is one entry of the preference chain.
type Candidate struct {
	Adapter Adapter
	Retry   RetryPolicy
}

// BuildChain expands the specs, in order, into one candidate per model.
func BuildChain(specs []Spec, client Doer) ([]Candidate, error) {
	var chain []Candidate
	for _, s := range specs {
		for _, model := range s.Models {
			a, err := New(s, model, client)
			if err != nil {
				return nil, err
			}
			chain = append(chain, Candidate{Adapter: a, Retry: s.Retry})
		}
	}
	return chain, nil
}

// New builds the adapter for one model of a family.
func New(s Spec, model string, client Doer) (Adapter, error) {
	b := base{
		family:   s.Name,
		model:    model,
		endpoint: s.Endpoint,
		auth:     authFunc(s),
		client:   client,
	}

	switch s.Kind {
	case KindOpenAI:
		return &openAIAdapter{base: b}, nil
	case KindGemini:
		return &geminiAdapter{base: b}, nil
	default:
		return nil, fmt.Errorf("provider %q: unknown kind %q", s.Name, s.Kind)
	}
}

func authFunc(s Spec) func(http.Header) {
	key := s.APIKey
	switch s.AuthKind {
	case AuthHeader:
		header := s.AuthHeader
		return func(h http.Header) { h.Set(header, key) }
	default:
		return func(h http.Header) { h.Set("Authorization", "Bearer "+key) }
	}
}
