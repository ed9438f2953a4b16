package responses

// SuccessEnvelope wraps every 2xx body as {"data": ...}.
type SuccessEnvelope struct {
	Data any `json:"data"`
}

// ErrorEnvelope wraps every error body as {"error": {...}}.
type ErrorEnvelope struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody carries the code from pkg/errors and the public message. Clients
// match RequestID to server logs and may poll again after RetryAfterSeconds.
type ErrorBody struct {
	Code              string `json:"code"`
	Message           string `json:"message"`
	Details           any    `json:"details,omitempty"`
	RequestID         string `json:"request_id,omitempty"`
	RetryAfterSeconds int    `json:"retry_after_seconds,omitempty"`
}
