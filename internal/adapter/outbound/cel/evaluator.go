// Package cel filters item listings with CEL expressions evaluated client-side.
package cel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/cel-go/cel"

	"github.com/tinyvillage/villagehub/internal/domain/item"
)

// maxExpressionLength is the maximum allowed length for a filter expression.
const maxExpressionLength = 1024

// maxCostBudget is the CEL runtime cost limit per evaluation.
const maxCostBudget = 100_000

// maxNestingDepth is the maximum allowed parenthesis/bracket nesting depth.
const maxNestingDepth = 50

// evalTimeout is the maximum time allowed for a single evaluation.
const evalTimeout = 5 * time.Second

// interruptCheckFreq is how often (in comprehension iterations) context cancellation is checked.
const interruptCheckFreq = 100

// Evaluator compiles filter expressions against the item environment.
type Evaluator struct {
	env *cel.Env
}

// NewEvaluator creates a new evaluator with the item environment.
func NewEvaluator() (*Evaluator, error) {
	env, err := NewItemEnvironment()
	if err != nil {
		return nil, fmt.Errorf("failed to create item environment: %w", err)
	}
	return &Evaluator{env: env}, nil
}

// Filter is a compiled item filter.
type Filter struct {
	expr string
	prg  cel.Program
}

// String returns the source expression.
func (f *Filter) String() string { return f.expr }

// Compile validates expr and returns a ready filter.
func (e *Evaluator) Compile(expr string) (*Filter, error) {
	if err := validate(expr); err != nil {
		return nil, err
	}

	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("invalid filter expression: %w", issues.Err())
	}
	if out := ast.OutputType(); !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("filter must evaluate to bool, got %s", out)
	}

	prg, err := e.env.Program(ast,
		cel.EvalOptions(cel.OptOptimize),
		cel.CostLimit(maxCostBudget),
		cel.InterruptCheckFrequency(interruptCheckFreq),
	)
	if err != nil {
		return nil, fmt.Errorf("program creation failed: %w", err)
	}
	return &Filter{expr: expr, prg: prg}, nil
}

func validate(expr string) error {
	if expr == "" {
		return errors.New("expression is empty")
	}
	if len(expr) > maxExpressionLength {
		return fmt.Errorf("expression too long: %d characters (max %d)", len(expr), maxExpressionLength)
	}
	return validateNesting(expr)
}

// validateNesting checks that the expression does not exceed the maximum
// nesting depth for parentheses, brackets, and braces.
func validateNesting(expr string) error {
	var depth, maxDepth int
	for _, ch := range expr {
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

// Match reports whether it satisfies the filter. Each evaluation is bounded
// by the evaluation timeout in addition to ctx.
func (f *Filter) Match(ctx context.Context, it item.Item) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, evalTimeout)
	defer cancel()

	result, _, err := f.prg.ContextEval(ctx, activation(it))
	if err != nil {
		return false, fmt.Errorf("evaluation failed: %w", err)
	}
	b, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("expression did not return a boolean, got %T", result.Value())
	}
	return b, nil
}

// Apply returns the items matching f, in their original order. A nil
// filter keeps everything.
func (f *Filter) Apply(ctx context.Context, items []item.Item) ([]item.Item, error) {
	if f == nil {
		return items, nil
	}
	out := make([]item.Item, 0, len(items))
	for _, it := range items {
		ok, err := f.Match(ctx, it)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", it.ID, err)
		}
		if ok {
			out = append(out, it)
		}
	}
	return out, nil
}
