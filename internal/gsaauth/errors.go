// Package gsaauth implements the GrandSlam SRP login engine, its 2FA
// state machine, and app-token acquisition, on top of the grandslam
// envelope and anisette packages.
package gsaauth

import "fmt"

// NotLoggedInError is returned by any operation that requires SPD when the
// account has not completed SRP login yet.
type NotLoggedInError struct{}

func (*NotLoggedInError) Error() string { return "gsaauth: account is not logged in" }

// NegotiationError signals an SRP server-proof mismatch (§4.3): the
// server's M2 did not match the client's expectation, which indicates
// either bad credentials or a man-in-the-middle.
type NegotiationError struct {
	Reason string
}

func (e *NegotiationError) Error() string {
	return fmt.Sprintf("gsaauth: srp negotiation failed: %s", e.Reason)
}

// ParseProtocolError reports a JSON/plist structure failure, carrying the
// key path the way plistutil.KeyError does.
type ParseProtocolError struct {
	Path   string
	Reason string
}

func (e *ParseProtocolError) Error() string {
	return fmt.Sprintf("gsaauth: protocol parse error at %q: %s", e.Path, e.Reason)
}

// Bad2FACodeError wraps the structured service-error triple Apple returns
// when a submitted 2FA code is rejected.
type Bad2FACodeError struct {
	Code    string
	Title   string
	Message string
}

func (e *Bad2FACodeError) Error() string {
	return fmt.Sprintf("gsaauth: 2fa code rejected (%s): %s: %s", e.Code, e.Title, e.Message)
}

// No2FACodeProvidedError is returned when a two-factor callback returns an
// empty code.
type No2FACodeProvidedError struct{}

func (*No2FACodeProvidedError) Error() string { return "gsaauth: no 2fa code provided" }

// ExtraStepRequiredError is returned when the server reports an
// unrecognized Status.au value and no PET token is available as a
// fallback.
type ExtraStepRequiredError struct {
	Step string
}

func (e *ExtraStepRequiredError) Error() string {
	return fmt.Sprintf("gsaauth: unhandled extra auth step %q", e.Step)
}

// MaxLoginAttemptsError is returned when the 2FA loop exceeds its bounded
// number of state transitions without reaching LoggedIn.
type MaxLoginAttemptsError struct {
	Attempts int
}

func (e *MaxLoginAttemptsError) Error() string {
	return fmt.Sprintf("gsaauth: exceeded %d login state transitions without logging in", e.Attempts)
}
