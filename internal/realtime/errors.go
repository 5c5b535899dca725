package realtime

import "fmt"

// DialError describes a failed connection attempt. Status is the HTTP status
// of a rejected handshake, or zero.
type DialError struct {
	Status int
	Err    error
}

func (e *DialError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("websocket dial failed (status %d): %v", e.Status, e.Err)
	}
	return fmt.Sprintf("websocket dial failed: %v", e.Err)
}

func (e *DialError) Unwrap() error { return e.Err }
