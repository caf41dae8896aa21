package gemini

import "fmt"

// RequestError is a terminal HTTP failure: a non-retryable status, or a
// retryable one after every attempt was used.
type RequestError struct {
	Status  int
	Message string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("API Error: %d - %s", e.Status, e.Message)
}

// errorBody is the error envelope returned by the endpoint.
type errorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}
