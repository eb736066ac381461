package rules

import (
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/lofari/DynamicForms-sub000/internal/form"
)

// Violation is a failed expression rule.
type Violation struct {
	Expression string
	Message    string
}

// ExpressionError reports a rule that could not be compiled or run.
type ExpressionError struct {
	Expression string
	Err        error
}

func (e *ExpressionError) Error() string {
	return fmt.Sprintf("expression rule %q: %v", e.Expression, e.Err)
}

func (e *ExpressionError) Unwrap() error { return e.Err }

// Programs are compiled lazily and cached by source text.
var programCache sync.Map

// exprEnv declares the variables a rule can read. Declaring values here makes
// it shadow expr's built-in values() function.
func exprEnv(values form.Values) map[string]any {
	if values == nil {
		values = form.Values{}
	}
	return map[string]any{"values": map[string]string(values)}
}

// CompileExpression compiles a rule expression into a boolean program.
func CompileExpression(expression string) (*vm.Program, error) {
	if cached, ok := programCache.Load(expression); ok {
		return cached.(*vm.Program), nil
	}
	prog, err := expr.Compile(expression, expr.Env(exprEnv(nil)), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile expression: %w", err)
	}
	programCache.Store(expression, prog)
	return prog, nil
}

// EvaluateExpressions runs the definition's expression rules against values.
// A rule whose expression is true is violated. Broken rules do not reject the
// submission; they are returned separately so the caller can log them.
func EvaluateExpressions(ruleset []form.ExpressionRule, values form.Values) ([]Violation, []error) {
	if len(ruleset) == 0 {
		return nil, nil
	}

	env := exprEnv(values)

	var violations []Violation
	var broken []error
	for _, r := range ruleset {
		prog, err := CompileExpression(r.Expression)
		if err != nil {
			broken = append(broken, &ExpressionError{Expression: r.Expression, Err: err})
			continue
		}
		result, err := expr.Run(prog, env)
		if err != nil {
			broken = append(broken, &ExpressionError{Expression: r.Expression, Err: err})
			continue
		}
		violated, ok := result.(bool)
		if !ok || !violated {
			continue
		}
		msg := r.Message
		if msg == "" {
			msg = "Expression rule violated"
		}
		violations = append(violations, Violation{Expression: r.Expression, Message: msg})
	}
	return violations, broken
}
