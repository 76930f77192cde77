package apperr

// Result is the envelope returned by every API endpoint.
type Result struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Kind    Kind        `json:"kind,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// OK wraps a successful payload.
func OK(data interface{}) Result {
	return Result{Success: true, Data: data}
}

// Fail builds the envelope for err.
func Fail(err error) Result {
	return Result{Success: false, Message: MessageOf(err), Kind: KindOf(err)}
}
