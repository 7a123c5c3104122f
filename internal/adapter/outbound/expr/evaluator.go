// Package expr provides a CEL-based evaluator for EXPRESSION rule
// conditions.
package expr

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/spokestack/accessctl/internal/domain/access"
)

// maxExpressionLength bounds stored expressions.
const maxExpressionLength = 1024

// maxCostBudget is the CEL runtime cost limit, guarding against
// cost-exhaustion through admin-authored expressions.
const maxCostBudget = 100_000

// maxNestingDepth is the maximum allowed parenthesis/bracket nesting depth.
const maxNestingDepth = 50

// Evaluator compiles and evaluates CEL expressions for rule conditions.
// Programs are compiled once per distinct expression and cached, since the
// same stored rules are evaluated on every request.
type Evaluator struct {
	env      *cel.Env
	mu       sync.RWMutex
	programs map[string]cel.Program
}

// NewEvaluator creates a CEL evaluator with the condition environment:
// actor and target as string maps, now as a timestamp.
func NewEvaluator() (*Evaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("actor", cel.MapType(cel.StringType, cel.StringType)),
		cel.Variable("target", cel.MapType(cel.StringType, cel.StringType)),
		cel.Variable("now", cel.TimestampType),
	)
	if err != nil {
		return nil, fmt.Errorf("create condition environment: %w", err)
	}
	return &Evaluator{env: env, programs: make(map[string]cel.Program)}, nil
}

// compile parses, checks, and caches an expression.
func (e *Evaluator) compile(expression string) (cel.Program, error) {
	e.mu.RLock()
	prg, ok := e.programs[expression]
	e.mu.RUnlock()
	if ok {
		return prg, nil
	}

	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compilation failed: %w", issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("expression must produce bool, got %s", ast.OutputType())
	}

	prg, err := e.env.Program(ast,
		cel.EvalOptions(cel.OptOptimize),
		cel.CostLimit(maxCostBudget),
	)
	if err != nil {
		return nil, fmt.Errorf("program creation failed: %w", err)
	}

	e.mu.Lock()
	e.programs[expression] = prg
	e.mu.Unlock()
	return prg, nil
}

// Validate checks an expression at rule-save time: length, nesting depth,
// compilation, and bool output type.
func (e *Evaluator) Validate(expression string) error {
	if expression == "" {
		return errors.New("expression is empty")
	}
	if len(expression) > maxExpressionLength {
		return fmt.Errorf("expression too long: %d characters (max %d)", len(expression), maxExpressionLength)
	}
	if err := validateNesting(expression); err != nil {
		return err
	}
	if _, err := e.compile(expression); err != nil {
		return fmt.Errorf("invalid expression: %w", err)
	}
	return nil
}

// EvaluateRule runs the expression against the request context. Any error
// is returned so the resolver can fail closed.
func (e *Evaluator) EvaluateRule(expression string, rc access.RequestContext) (bool, error) {
	prg, err := e.compile(expression)
	if err != nil {
		return false, err
	}

	out, _, err := prg.Eval(map[string]any{
		"actor":  actorVars(rc),
		"target": targetVars(rc.Target),
		"now":    rc.Now,
	})
	if err != nil {
		return false, fmt.Errorf("evaluation failed: %w", err)
	}
	return out == types.True, nil
}

// actorVars flattens the acting identity for the expression environment.
func actorVars(rc access.RequestContext) map[string]string {
	return map[string]string{
		"id":             rc.ActorID,
		"department":     rc.ActorDepartment,
		"organizationId": rc.OrganizationID,
	}
}

// targetVars merges builtin target fields with resource-specific
// attributes. Attributes do not shadow the builtins.
func targetVars(t *access.TargetEntity) map[string]string {
	if t == nil {
		return map[string]string{}
	}
	out := make(map[string]string, len(t.Attributes)+3)
	for k, v := range t.Attributes {
		out[k] = v
	}
	out["id"] = t.ID
	out["ownerId"] = t.OwnerID
	out["department"] = t.Department
	return out
}

// validateNesting checks that the expression does not exceed the maximum
// allowed nesting depth for parentheses, brackets, and braces.
func validateNesting(expression string) error {
	var depth, maxDepth int
	for _, ch := range expression {
		switch ch {
		case '(', '[', '{':
			depth++
			if depth > maxDepth {
				maxDepth = depth
			}
		case ')', ']', '}':
			depth--
		}
	}
	if maxDepth > maxNestingDepth {
		return fmt.Errorf("expression nesting too deep: %d levels (max %d)", maxDepth, maxNestingDepth)
	}
	return nil
}
