// Package evalexpr is the reference Evaluator implementation, backed by
// github.com/expr-lang/expr. It is grounded on the compiled-program cache
// and graceful-undefined-variable handling of the teacher's
// ConditionEvaluator.
package evalexpr

import (
	"context"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/rs/zerolog"

	"github.com/netauto/jobengine/internal/domain"
)

// ExprEvaluator compiles and caches expr-lang programs keyed by expression
// text, the same idiom as the teacher's ConditionEvaluator.compiledCache.
type ExprEvaluator struct {
	mu       sync.Mutex
	compiled map[string]*vm.Program
	logger   zerolog.Logger
}

func New(logger zerolog.Logger) *ExprEvaluator {
	return &ExprEvaluator{
		compiled: make(map[string]*vm.Program),
		logger:   logger,
	}
}

type evalEnv struct {
	Payload map[string]any `expr:"payload"`
	Device  map[string]any `expr:"device"`
	Job     map[string]any `expr:"job"`
}

func buildEnv(ectx domain.EvaluationContext) evalEnv {
	env := evalEnv{Payload: map[string]any(ectx.Payload)}
	if ectx.Device != nil {
		env.Device = map[string]any{
			"id":      ectx.Device.ID.String(),
			"name":    ectx.Device.Name,
			"vendor":  ectx.Device.Vendor,
			"os":      ectx.Device.OS,
			"address": ectx.Device.Address,
		}
		for k, v := range ectx.Device.Attributes {
			env.Device[k] = v
		}
	}
	if ectx.Job != nil {
		env.Job = map[string]any{
			"id":   ectx.Job.ID.String(),
			"name": ectx.Job.Name,
		}
	}
	return env
}

func (e *ExprEvaluator) getProgram(expression string, env any) (*vm.Program, error) {
	e.mu.Lock()
	if p, ok := e.compiled[expression]; ok {
		e.mu.Unlock()
		return p, nil
	}
	e.mu.Unlock()

	program, err := expr.Compile(expression, expr.Env(env))
	if err != nil {
		// Fall back to an untyped environment: the expression may refer to
		// a payload key not present on every call site.
		program, err = expr.Compile(expression)
		if err != nil {
			return nil, err
		}
	}

	e.mu.Lock()
	e.compiled[expression] = program
	e.mu.Unlock()
	return program, nil
}

// EvalBool evaluates expression and casts the result to bool. An expression
// referencing a payload key that has not been populated yet is treated as a
// graceful false rather than an error, matching the teacher's
// handleEvaluationError heuristic — this lets target_query/skip_query
// reference sibling node output that may not exist yet without aborting the
// whole node.
func (e *ExprEvaluator) EvalBool(ctx context.Context, expression string, ectx domain.EvaluationContext) (bool, error) {
	env := buildEnv(ectx)
	program, err := e.getProgram(expression, env)
	if err != nil {
		return false, domain.NewDomainError(domain.ErrCodeEvaluator, "compile failed: "+expression, err)
	}
	out, err := expr.Run(program, env)
	if err != nil {
		if isUndefinedVariableError(err) {
			e.logger.Debug().Str("expression", expression).Msg("evaluator: undefined reference, treating as false")
			return false, nil
		}
		return false, domain.NewDomainError(domain.ErrCodeEvaluator, "eval failed: "+expression, err)
	}
	b, ok := out.(bool)
	if !ok {
		return false, domain.NewDomainError(domain.ErrCodeEvaluator, "expression did not evaluate to bool: "+expression, nil)
	}
	return b, nil
}

// EvalList evaluates expression and casts the result to a []string, used
// for target_query.
func (e *ExprEvaluator) EvalList(ctx context.Context, expression string, ectx domain.EvaluationContext) ([]string, error) {
	env := buildEnv(ectx)
	program, err := e.getProgram(expression, env)
	if err != nil {
		return nil, domain.NewDomainError(domain.ErrCodeEvaluator, "compile failed: "+expression, err)
	}
	out, err := expr.Run(program, env)
	if err != nil {
		if isUndefinedVariableError(err) {
			return nil, nil
		}
		return nil, domain.NewDomainError(domain.ErrCodeEvaluator, "eval failed: "+expression, err)
	}
	switch v := out.(type) {
	case []string:
		return v, nil
	case []any:
		result := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				result = append(result, s)
			}
		}
		return result, nil
	default:
		return nil, domain.NewDomainError(domain.ErrCodeEvaluator, "expression did not evaluate to a list: "+expression, nil)
	}
}

// isUndefinedVariableError mirrors the teacher's message-pattern heuristic
// for treating an expression that reaches into not-yet-populated payload
// data as a graceful false instead of a hard error.
func isUndefinedVariableError(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{"cannot fetch", "undefined", "unknown name", "nil pointer", "not found"} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
