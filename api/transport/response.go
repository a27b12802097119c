package transport

import "encoding/json"

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Envelope wraps every API response. Code carries the domain error code on failures.
type Envelope struct {
	Status string      `json:"status"`
	Code   string      `json:"code,omitempty"`
	Data   interface{} `json:"data,omitempty"`
	Error  interface{} `json:"error,omitempty"`
	Meta   interface{} `json:"meta,omitempty"`
}

func NewSuccess(data interface{}, meta interface{}) Envelope {
	return Envelope{Status: StatusSuccess, Data: data, Meta: meta}
}

// NewError builds a failure envelope; err is the public message, never the wrapped cause.
func NewError(code string, err interface{}, meta interface{}) Envelope {
	return Envelope{Status: StatusError, Code: code, Error: err, Meta: meta}
}

// String renders the envelope as JSON for handlers that write raw bodies.
func (e Envelope) String() string {
	out, err := json.Marshal(e)
	if err != nil {
		return "{}"
	}
	return string(out)
}
