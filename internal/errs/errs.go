// Package errs defines the typed error sentinels raised by replistore.
// Every one of these is a programming-error or invariant violation: it
// aborts the current operation and propagates to the caller. None are
// retried automatically. Callers should classify with errors.Is against
// these sentinels; wrap them with github.com/pkg/errors.Wrapf to attach
// call-site context to a fixed error ID.
package errs

import "errors"

var (
	// InvalidArgument covers an empty instanceID/recordID, or any other
	// caller-supplied argument that violates a documented precondition.
	InvalidArgument = errors.New("replistore: invalid argument")

	// InvalidFilter covers a filter with a wildcard facility and a
	// non-wildcard user.
	InvalidFilter = errors.New("replistore: invalid filter")

	// MissingUniversalFilter indicates the SDS lacks the "+" entry
	// during FSIC computation. Should be impossible; indicates a bug.
	MissingUniversalFilter = errors.New("replistore: sds missing universal filter")

	// InconsistentState indicates a store/AppData disagreement the
	// Integrator cannot reconcile (a record in the store with no
	// matching AppData entry, or vice versa with a non-dirty entry).
	InconsistentState = errors.New("replistore: inconsistent store/appdata state")

	// UnknownMessage indicates a session received an unrecognized
	// message tag in serviceRequests.
	UnknownMessage = errors.New("replistore: unknown message")
)
