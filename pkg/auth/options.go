// pkg/auth/options.go
package auth

import "time"

type ruleKind int

const (
	ruleNone ruleKind = iota
	ruleExact
	rulePredicate
)

// Rule constrains one string axis of verification. The zero value
// imposes no constraint; Exact and Satisfies are the only other
// states, so an axis can never carry both an expected value and a
// predicate.
type Rule struct {
	kind  ruleKind
	exact string
	fn    func(string) bool
}

// Exact requires the axis to equal v.
func Exact(v string) Rule {
	return Rule{kind: ruleExact, exact: v}
}

// Satisfies requires the axis to pass fn.
func Satisfies(fn func(string) bool) Rule {
	return Rule{kind: rulePredicate, fn: fn}
}

// NewRule builds a Rule from separately-sourced inputs, e.g. options
// bound from configuration where both fields exist. Supplying both is
// rejected here, at construction, rather than surfacing mid-pipeline.
func NewRule(exact *string, fn func(string) bool) (Rule, error) {
	if exact != nil && fn != nil {
		return Rule{}, &ConfigError{Reason: "both an exact value and a predicate were supplied for the same axis"}
	}
	if exact != nil {
		return Exact(*exact), nil
	}
	if fn != nil {
		return Satisfies(fn), nil
	}
	return Rule{}, nil
}

// NonceRule optionally replaces the default freshness check with a
// caller-owned predicate, typically backed by a seen-nonce store.
type NonceRule struct {
	fn func(nonce [32]byte) bool
}

// NonceSatisfies requires the nonce to pass fn instead of the default
// freshness check.
func NonceSatisfies(fn func(nonce [32]byte) bool) NonceRule {
	return NonceRule{fn: fn}
}

// VerifyOptions configures the verification pipeline. Every axis is
// independent; an unset axis means "no constraint". Options only gate
// acceptance and never influence which bytes get hashed and verified.
type VerifyOptions struct {
	// Nonce replaces the default freshness check when set.
	Nonce NonceRule

	// NonceMaxAge bounds the default freshness check. Zero means the
	// 24h default. Ignored when Nonce is set.
	NonceMaxAge time.Duration

	Recipient Rule
	State     Rule
	Message   Rule

	// RequireFullAccessKey narrows the ownership lookup to full-access
	// keys. When false, any access level is accepted.
	RequireFullAccessKey bool
}
