package anisette

import "fmt"

// NotProvisionedError is returned when an operation needs adi_pb but the
// device identity has not completed provisioning yet.
type NotProvisionedError struct{}

func (*NotProvisionedError) Error() string {
	return "anisette: device identity is not provisioned"
}

// ProvisioningPhase names where in the WebSocket state machine a
// provisioning attempt failed (§4.1's state table).
type ProvisioningPhase string

const (
	PhaseAwaitingIdentifier ProvisioningPhase = "awaiting_identifier"
	PhaseAwaitingStart      ProvisioningPhase = "awaiting_start"
	PhaseAwaitingEnd        ProvisioningPhase = "awaiting_end"
	PhaseAwaitingSuccess    ProvisioningPhase = "awaiting_success"
)

// ProvisioningError reports a named provisioning failure: a server-sent
// Timeout/InvalidIdentifier/StartProvisioningError/EndProvisioningError
// frame, or the socket closing before ProvisioningSuccess arrives.
type ProvisioningError struct {
	Phase   ProvisioningPhase
	Kind    string // "Timeout" | "InvalidIdentifier" | "StartProvisioningError" | "EndProvisioningError" | "Aborted"
	Message string
}

func (e *ProvisioningError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("anisette: provisioning failed in %s (%s): %s", e.Phase, e.Kind, e.Message)
	}
	return fmt.Sprintf("anisette: provisioning failed in %s (%s)", e.Phase, e.Kind)
}

// HeadersError wraps a GetHeadersError frame returned by /v3/get_headers.
type HeadersError struct {
	Message string
}

func (e *HeadersError) Error() string {
	return fmt.Sprintf("anisette: get_headers failed: %s", e.Message)
}
