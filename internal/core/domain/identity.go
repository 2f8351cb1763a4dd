package domain

// AuthOutcome enumerates the results of resolving a bearer token.
type AuthOutcome string

const (
	// AuthOutcomeAuthenticated means the token verified and the backing session is live.
	AuthOutcomeAuthenticated AuthOutcome = "authenticated"
	// AuthOutcomeDegraded means the token verified but session state could not be
	// confirmed because the session store misbehaved. The caller is let through.
	AuthOutcomeDegraded AuthOutcome = "degraded"
	// AuthOutcomeDenied means the request carries no usable identity.
	AuthOutcomeDenied AuthOutcome = "denied"
)

// AuthResult is the outcome of identity resolution for one request.
type AuthResult struct {
	Outcome        AuthOutcome
	AccountID      string
	Email          string
	SessionID      *string
	Issuer         string
	DegradedReason DegradationReason
}

// Authenticated reports whether the request may proceed with an identity attached.
func (r AuthResult) Authenticated() bool {
	return r.Outcome == AuthOutcomeAuthenticated || r.Outcome == AuthOutcomeDegraded
}

// DeniedResult builds a denial outcome.
func DeniedResult() AuthResult {
	return AuthResult{Outcome: AuthOutcomeDenied}
}
