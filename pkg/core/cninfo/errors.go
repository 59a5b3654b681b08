package cninfo

import "fmt"

// ProtocolError reports a response whose shape does not match the API
// contract (missing fields, wrong types, non-PDF payloads). It is never
// retried: retrying cannot fix a shape mismatch, and the sooner it
// surfaces, the sooner a contract change is noticed.
type ProtocolError struct {
	Op     string
	Window string
	Page   int
	Msg    string
}

func (e *ProtocolError) Error() string {
	if e.Window != "" {
		return fmt.Sprintf("PROTOCOL_MISMATCH: %s %s page %d: %s", e.Op, e.Window, e.Page, e.Msg)
	}
	return fmt.Sprintf("PROTOCOL_MISMATCH: %s: %s", e.Op, e.Msg)
}

// TransportError reports a transient fetch failure that survived the
// configured retry budget.
type TransportError struct {
	Window   string
	Page     int
	Attempts int
	Last     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("fetch failed after %d attempts: %s page %d: %v", e.Attempts, e.Window, e.Page, e.Last)
}

func (e *TransportError) Unwrap() error { return e.Last }

// ConvergenceError reports a window whose unique record count never
// reached the maximum reported total within the pass budget. The residual
// gap is part of the message so an operator can judge how far off the
// window ended up.
type ConvergenceError struct {
	Window    string
	Partition string
	Attempts  int
	Unique    int
	MaxTotal  int
}

func (e *ConvergenceError) Error() string {
	return fmt.Sprintf("convergence failed: %s (plate=%s) after %d passes, unique %d < reported %d, gap %d",
		e.Window, e.Partition, e.Attempts, e.Unique, e.MaxTotal, e.MaxTotal-e.Unique)
}

// IntegrityError reports the invariant violation where more unique
// records were observed than the server ever claimed to hold. One of the
// two numbers is lying and there is no safe way to guess which.
type IntegrityError struct {
	Window    string
	Partition string
	Unique    int
	MaxTotal  int
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity violation: %s (plate=%s) unique count %d exceeds max reported total %d",
		e.Window, e.Partition, e.Unique, e.MaxTotal)
}
