package proxy

import "expvar"

// Process-wide outcome counters, served at /debug/vars under "sigma".
var metrics = expvar.NewMap("sigma")

const (
	metricRequests     = "requests"
	metricInvalid      = "invalid"
	metricRejected     = "rejected"
	metricUnlocked     = "unlocked"
	metricStreamed     = "streamed"
	metricExhausted    = "exhausted"
	metricRateLimited  = "rate_limited_forwarded"
	metricStreamErrors = "stream_errors"
	metricClientGone   = "client_gone"
	metricFaults       = "faults"
)

func count(name string) {
	metrics.Add(name, 1)
}
