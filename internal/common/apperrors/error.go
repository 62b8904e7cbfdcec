// Package apperrors defines the error type used across the Workdeck
// services. Errors form chains: a package declares a small set of root
// errors and derives more specific ones from them, so callers can test
// with errors.Is at any level of the hierarchy. Each error can carry an
// HTTP status code that the transport layer maps onto responses.
package apperrors

// Error is the application error interface. It extends the standard
// error interface with derivation, wrapping, and status code handling.
// All derivation methods return a new Error and never mutate the
// receiver.
type Error interface {
	error
	Unwrap() error // supports errors.Is / errors.As

	New(msg string) Error                  // derives a fresh error using the receiver as template
	Msg(msg string) Error                  // new message, wraps the receiver
	MsgErr(msg string, err ...error) Error // new message, wraps the receiver plus extra errors
	Err(err ...error) Error                // same message, attaches additional causes
	SetExpandError(bool) Error             // controls whether ErrorAll includes wrapped errors
	SetStatusCode(int) Error               // sets the HTTP status code
	StatusCode() int                       // returns the HTTP status code
	ErrorAll() string                      // message including wrapped errors when expansion is on
	UnwrapAll() []error                    // all wrapped errors
}
