package domain

import "strings"

// DegradationPolicyMode enumerates supported behaviors when the session store
// cannot confirm a verified token.
type DegradationPolicyMode string

const (
	// DegradationPolicyModeLenient allows verified tokens through when session
	// lookups fail for infrastructure reasons.
	DegradationPolicyModeLenient DegradationPolicyMode = "lenient"
	// DegradationPolicyModeStrict rejects requests whenever session state cannot
	// be confirmed.
	DegradationPolicyModeStrict DegradationPolicyMode = "strict"
)

// DegradationReason captures why a fallback decision was evaluated.
type DegradationReason string

const (
	// DegradationReasonSessionLookupFailure denotes session lookups failed due to
	// infrastructure errors.
	DegradationReasonSessionLookupFailure DegradationReason = "session_lookup_failure"
	// DegradationReasonSessionRewriteFailure denotes the refresh-time session
	// rewrite failed due to infrastructure errors.
	DegradationReasonSessionRewriteFailure DegradationReason = "session_rewrite_failure"
)

// DegradationPolicy centralises how authentication responds when session state
// is unavailable.
type DegradationPolicy struct {
	mode DegradationPolicyMode
}

// NewDegradationPolicy constructs a policy with the provided mode, defaulting
// to lenient when unspecified.
func NewDegradationPolicy(mode DegradationPolicyMode) DegradationPolicy {
	if mode != DegradationPolicyModeStrict {
		mode = DegradationPolicyModeLenient
	}
	return DegradationPolicy{mode: mode}
}

// ParseDegradationPolicyMode normalises textual input into a supported policy mode.
func ParseDegradationPolicyMode(value string) DegradationPolicyMode {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case string(DegradationPolicyModeStrict):
		return DegradationPolicyModeStrict
	default:
		return DegradationPolicyModeLenient
	}
}

// Mode returns the underlying policy mode.
func (p DegradationPolicy) Mode() DegradationPolicyMode {
	return p.mode
}

// IsStrict indicates whether the policy rejects degraded states.
func (p DegradationPolicy) IsStrict() bool {
	return p.mode == DegradationPolicyModeStrict
}

// AllowsFallback determines if the policy permits continuing when the supplied
// reason occurs.
func (p DegradationPolicy) AllowsFallback(reason DegradationReason) bool {
	return !p.IsStrict()
}
