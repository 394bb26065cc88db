package performance

import (
	"errors"
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/watzon/maintrack/internal/config"
)

var (
	ErrInvalidRuleExpr = errors.New("invalid rule expression")
	ErrRuleEvaluation  = errors.New("rule evaluation failed")
)

type rule struct {
	status  Status
	program cel.Program
}

// Classifier maps an operator's metrics onto a status using CEL expressions.
// Rules are tried in order inactive, critical, warning; the first one that
// holds wins and active is the fallback.
type Classifier struct {
	rules []rule
}

func newEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("assigned", cel.IntType),
		cel.Variable("completed", cel.IntType),
		cel.Variable("expired", cel.IntType),
		cel.Variable("results", cel.IntType),
		cel.Variable("passed", cel.IntType),
		cel.Variable("penalty_points", cel.IntType),
		cel.Variable("completion_rate", cel.DoubleType),
		cel.Variable("pass_rate", cel.DoubleType),
	)
}

// NewClassifier compiles the configured rules. Empty rules are skipped.
func NewClassifier(cfg config.PerformanceRules) (*Classifier, error) {
	env, err := newEnv()
	if err != nil {
		return nil, fmt.Errorf("creating CEL environment: %w", err)
	}

	c := &Classifier{}
	for _, r := range []struct {
		status Status
		expr   string
	}{
		{StatusInactive, cfg.Inactive},
		{StatusCritical, cfg.Critical},
		{StatusWarning, cfg.Warning},
	} {
		if r.expr == "" {
			continue
		}

		ast, issues := env.Compile(r.expr)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("%s rule: %w: %w", r.status, ErrInvalidRuleExpr, issues.Err())
		}
		if !ast.OutputType().IsExactType(cel.BoolType) {
			return nil, fmt.Errorf("%s rule: %w: must evaluate to bool", r.status, ErrInvalidRuleExpr)
		}

		program, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("%s rule: creating program: %w", r.status, err)
		}
		c.rules = append(c.rules, rule{status: r.status, program: program})
	}

	return c, nil
}

// Classify returns the status for s.
func (c *Classifier) Classify(s *Snapshot) (Status, error) {
	vars := map[string]any{
		"assigned":        int64(s.Assigned),
		"completed":       int64(s.Completed),
		"expired":         int64(s.Expired),
		"results":         int64(s.Results),
		"passed":          int64(s.Passed),
		"penalty_points":  int64(s.PenaltyPoints),
		"completion_rate": s.CompletionRate,
		"pass_rate":       s.PassRate,
	}

	for _, r := range c.rules {
		out, _, err := r.program.Eval(vars)
		if err != nil {
			return "", fmt.Errorf("%s rule: %w: %w", r.status, ErrRuleEvaluation, err)
		}
		hit, ok := out.Value().(bool)
		if !ok {
			return "", fmt.Errorf("%s rule: %w: rule did not return boolean", r.status, ErrRuleEvaluation)
		}
		if hit {
			return r.status, nil
		}
	}

	return StatusActive, nil
}
