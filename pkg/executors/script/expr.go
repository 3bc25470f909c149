package script

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/expr-lang/expr"
)

const LanguageExpr = "expr"

// ExprRunner evaluates a single expr-lang expression against the trigger data.
type ExprRunner struct{}

func (r *ExprRunner) Run(ctx context.Context, program Program) (map[string]any, error) {
	env := make(map[string]any, len(program.Data))
	for k, v := range program.Data {
		env[k] = v
	}

	compiled, err := expr.Compile(program.SourceCode,
		expr.Env(env),
		expr.Function("now", func(...any) (any, error) {
			return time.Now().UTC().Format(time.RFC3339), nil
		}),
		expr.Function("upper", func(params ...any) (any, error) {
			if len(params) != 1 {
				return nil, fmt.Errorf("upper requires 1 argument")
			}

			s, ok := params[0].(string)
			if !ok {
				return nil, fmt.Errorf("upper argument must be string")
			}

			return strings.ToUpper(s), nil
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("expr compile failed: %w", err)
	}

	type outcome struct {
		value any
		err   error
	}

	done := make(chan outcome, 1)

	go func() {
		value, err := expr.Run(compiled, env)
		done <- outcome{value: value, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("expr evaluation aborted: %w", ctx.Err())
	case out := <-done:
		if out.err != nil {
			return nil, fmt.Errorf("expr evaluation failed: %w", out.err)
		}

		return map[string]any{
			"language": LanguageExpr,
			"result":   out.value,
		}, nil
	}
}
