package llm

// ErrorResponse is the body returned for caller errors and forwarded
// rate-limit conditions.
type ErrorResponse struct {
	Error string `json:"error"`
}
