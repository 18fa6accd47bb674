package auth

import "context"

// Decision is the outcome of evaluating a role against an action.
type Decision struct {
	Allowed bool
	Scope   Scope
}

// Permits reports whether the decision covers a resource owned by ownerID
// when acted on by subject. Any-scope covers everything; own-scope only the
// subject's own resources.
func (d Decision) Permits(ownerID, subject string) bool {
	if !d.Allowed {
		return false
	}
	if d.Scope == ScopeAny {
		return true
	}
	return d.Scope == ScopeOwn && ownerID != "" && ownerID == subject
}

// Evaluator resolves entitlements from a matrix. It does not check ownership.
type Evaluator struct {
	matrix *Matrix
}

// NewEvaluator returns an evaluator over m, or the default matrix when m is nil.
func NewEvaluator(m *Matrix) *Evaluator {
	if m == nil {
		m = DefaultMatrix()
	}
	return &Evaluator{matrix: m}
}

// Matrix exposes the matrix the evaluator reads.
func (e *Evaluator) Matrix() *Matrix { return e.matrix }

// Evaluate checks any-scope first so the broader grant wins.
func (e *Evaluator) Evaluate(role Role, action Action) Decision {
	if !e.matrix.Known(role) {
		return Decision{}
	}
	if e.matrix.Has(role, Grant{Action: action, Scope: ScopeAny}) {
		return Decision{Allowed: true, Scope: ScopeAny}
	}
	if e.matrix.Has(role, Grant{Action: action, Scope: ScopeOwn}) {
		return Decision{Allowed: true, Scope: ScopeOwn}
	}
	return Decision{}
}

// DenialRecorder receives a notification for every refused evaluation.
type DenialRecorder interface {
	RecordDenial(ctx context.Context, action, role string)
}

// Authorizer couples evaluation with denial accounting for request handlers.
type Authorizer struct {
	evaluator *Evaluator
	denials   DenialRecorder
}

// NewAuthorizer builds an Authorizer. A nil recorder disables denial accounting.
func NewAuthorizer(e *Evaluator, denials DenialRecorder) *Authorizer {
	if e == nil {
		e = NewEvaluator(nil)
	}
	return &Authorizer{evaluator: e, denials: denials}
}

// Authorize evaluates the principal's role for action. A refusal is recorded
// and returned as a *DeniedError.
func (a *Authorizer) Authorize(ctx context.Context, p Principal, action Action) (Decision, error) {
	d := a.evaluator.Evaluate(p.Role, action)
	if d.Allowed {
		return d, nil
	}
	if a.denials != nil {
		role := string(p.Role)
		if role == "" {
			role = "unknown"
		}
		a.denials.RecordDenial(ctx, string(action), role)
	}
	return d, Denied(action)
}

// Evaluate returns the raw decision without recording anything.
func (a *Authorizer) Evaluate(role Role, action Action) Decision {
	return a.evaluator.Evaluate(role, action)
}

// Matrix returns the matrix decisions are made against.
func (a *Authorizer) Matrix() *Matrix { return a.evaluator.Matrix() }
