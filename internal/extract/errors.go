package extract

import "fmt"

// ValidationError rejects an input before any request is sent.
type ValidationError struct {
	MIMEType string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("extract: unsupported file type %q", e.MIMEType)
}

// ExtractionError means the model answered but nothing usable came back.
type ExtractionError struct {
	Reason string
	Err    error
}

func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}
