package proxy

import "github.com/sigmachat/sigma/pkg/gate"

// Config is the gateway server configuration.
type Config struct {
	// Address to listen on (e.g., ":8080")
	ListenAddr string

	// Personas are the system instructions chosen by the gate decision.
	Personas gate.Personas

	// ForwardRateLimitStatus forwards 429/402 when every provider failed
	// with a quota or rate-limit condition. When false, exhaustion is always
	// answered with the 200 "overloaded" message. config.Default enables it.
	ForwardRateLimitStatus bool
}
