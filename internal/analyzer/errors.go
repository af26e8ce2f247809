package analyzer

import "fmt"

// TransportError reports that the analyzer could not be reached or
// answered with a non-success status.
type TransportError struct {
	Backend    string
	StatusCode int // zero when no response was received
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s request failed with status %d: %s", e.Backend, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s request failed: %v", e.Backend, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// MalformedResponseError reports a response that lacked the verdict.
type MalformedResponseError struct {
	Backend string
	Reason  string
	Err     error
}

func (e *MalformedResponseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid %s response format: %s: %v", e.Backend, e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid %s response format: %s", e.Backend, e.Reason)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }
