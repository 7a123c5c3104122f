package access

import (
	"fmt"
	"time"
)

// ConditionType selects the predicate consulted when a rule matches
// structurally.
type ConditionType string

const (
	// ConditionNone always matches.
	ConditionNone ConditionType = "NONE"
	// ConditionOwnerOnly matches when the target entity's owner is the actor.
	ConditionOwnerOnly ConditionType = "OWNER_ONLY"
	// ConditionSameDepartment matches when actor and target share a department.
	ConditionSameDepartment ConditionType = "SAME_DEPARTMENT"
	// ConditionTimeWindow matches when the request time falls within the
	// [start, end] pair in the params.
	ConditionTimeWindow ConditionType = "TIME_WINDOW"
	// ConditionCustomParams matches when every param key equals the
	// corresponding target attribute (exact-match conjunction).
	ConditionCustomParams ConditionType = "CUSTOM_PARAMS"
	// ConditionExpression matches when the CEL expression in the params
	// evaluates to true. Evaluation is delegated to an ExpressionEvaluator.
	ConditionExpression ConditionType = "EXPRESSION"
)

// Valid reports whether the condition type is known.
func (c ConditionType) Valid() bool {
	switch c {
	case ConditionNone, ConditionOwnerOnly, ConditionSameDepartment,
		ConditionTimeWindow, ConditionCustomParams, ConditionExpression:
		return true
	}
	return false
}

// Param keys interpreted by the typed condition variants.
const (
	// ParamStart and ParamEnd bound a TIME_WINDOW condition (RFC 3339).
	ParamStart = "start"
	ParamEnd   = "end"
	// ParamExpression holds the CEL source for an EXPRESSION condition.
	ParamExpression = "expression"
)

// TargetEntity describes the specific record an action is scoped to, when
// there is one. Attributes carries resource-specific fields for
// CUSTOM_PARAMS and EXPRESSION conditions.
type TargetEntity struct {
	ID         string
	OwnerID    string
	Department string
	Attributes map[string]string
}

// Attribute returns the named attribute, falling back to the builtin
// id/ownerId/department keys so custom params can match them too.
func (t *TargetEntity) Attribute(key string) (string, bool) {
	if v, ok := t.Attributes[key]; ok {
		return v, true
	}
	switch key {
	case "id":
		return t.ID, t.ID != ""
	case "ownerId":
		return t.OwnerID, t.OwnerID != ""
	case "department":
		return t.Department, t.Department != ""
	}
	return "", false
}

// RequestContext supplies everything a condition may consult: the acting
// identity, the optional target entity, and the request time.
type RequestContext struct {
	ActorID         string
	ActorDepartment string
	OrganizationID  string
	Target          *TargetEntity
	Now             time.Time
}

// Condition is a decoded, typed predicate. Decoding validates the params
// once so evaluation itself cannot fail.
type Condition interface {
	// Match reports whether the condition holds for the request.
	Match(rc RequestContext) bool
}

type condNone struct{}

func (condNone) Match(RequestContext) bool { return true }

type condOwnerOnly struct{}

func (condOwnerOnly) Match(rc RequestContext) bool {
	return rc.Target != nil && rc.Target.OwnerID != "" && rc.Target.OwnerID == rc.ActorID
}

type condSameDepartment struct{}

func (condSameDepartment) Match(rc RequestContext) bool {
	if rc.Target == nil || rc.ActorDepartment == "" {
		return false
	}
	return rc.Target.Department == rc.ActorDepartment
}

type condTimeWindow struct {
	start time.Time
	end   time.Time
}

func (c condTimeWindow) Match(rc RequestContext) bool {
	// Inclusive on both ends.
	return !rc.Now.Before(c.start) && !rc.Now.After(c.end)
}

type condCustomParams struct {
	params map[string]string
}

func (c condCustomParams) Match(rc RequestContext) bool {
	if rc.Target == nil {
		return false
	}
	for key, want := range c.params {
		got, ok := rc.Target.Attribute(key)
		if !ok || got != want {
			return false
		}
	}
	return true
}

// ParseCondition decodes (conditionType, conditionParams) into a typed
// Condition. EXPRESSION conditions are not decodable here; callers route
// them through an ExpressionEvaluator instead.
func ParseCondition(ct ConditionType, params map[string]string) (Condition, error) {
	switch ct {
	case ConditionNone:
		return condNone{}, nil
	case ConditionOwnerOnly:
		return condOwnerOnly{}, nil
	case ConditionSameDepartment:
		return condSameDepartment{}, nil
	case ConditionTimeWindow:
		start, err := time.Parse(time.RFC3339, params[ParamStart])
		if err != nil {
			return nil, fmt.Errorf("time window start: %w", err)
		}
		end, err := time.Parse(time.RFC3339, params[ParamEnd])
		if err != nil {
			return nil, fmt.Errorf("time window end: %w", err)
		}
		if end.Before(start) {
			return nil, fmt.Errorf("time window end %s before start %s", end, start)
		}
		return condTimeWindow{start: start, end: end}, nil
	case ConditionCustomParams:
		if len(params) == 0 {
			return nil, fmt.Errorf("custom params condition requires at least one param")
		}
		return condCustomParams{params: params}, nil
	case ConditionExpression:
		return nil, fmt.Errorf("expression conditions require an evaluator")
	}
	return nil, fmt.Errorf("unknown condition type %q", ct)
}

// EvaluateCondition decodes and evaluates a stored condition against the
// request. Unknown types and malformed params make the condition
// non-matching; evaluation never errors.
func EvaluateCondition(ct ConditionType, params map[string]string, rc RequestContext) bool {
	cond, err := ParseCondition(ct, params)
	if err != nil {
		return false
	}
	return cond.Match(rc)
}

// ExpressionEvaluator evaluates EXPRESSION conditions. Implementations
// compile the source once and must fail closed: any compile or runtime
// error yields a non-match.
type ExpressionEvaluator interface {
	// EvaluateRule runs the expression against the request context.
	EvaluateRule(expression string, rc RequestContext) (bool, error)
	// Validate checks an expression at rule-save time.
	Validate(expression string) error
}
