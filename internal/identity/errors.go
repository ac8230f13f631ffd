package identity

import "errors"

// Errors shared across the dispatch layer. Lookups do not use ErrNotFound on
// the wire (a missing user is an absent value there); it only travels for the
// federated id/account logins, which cannot provision and must fail instead.
var (
	// ErrNotFound is returned by the directory when no user matches a key.
	ErrNotFound = errors.New("user not found")

	// ErrVerificationFailed is a wrong, expired, or already-consumed
	// verification code. Credentialed login aborts before any password check.
	ErrVerificationFailed = errors.New("verification code invalid")

	// ErrCredentialInvalid covers both an unknown account and a wrong
	// password so callers cannot enumerate accounts.
	ErrCredentialInvalid = errors.New("invalid account or password")

	// ErrAudienceMismatch means the directory produced a record tagged for a
	// different audience than the operation asked for. This is a contract
	// violation between deployments, never coerced or retried.
	ErrAudienceMismatch = errors.New("identity audience mismatch")

	// ErrTransport marks a remote call that never completed: unreachable
	// provider, timeout, or a response outside the contract. Distinct from
	// ErrCredentialInvalid so callers can tell "try again" from "wrong
	// password".
	ErrTransport = errors.New("auth provider unreachable")
)
