package rule

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/bakkerme/relaypipe/internal/config"
	"github.com/bakkerme/relaypipe/internal/core"
)

const (
	ResultDrop = "drop"
	ResultKeep = "keep"
)

// ruleEnv is the variable set available to rule expressions.
type ruleEnv struct {
	Value  string `expr:"value"`
	Length int    `expr:"length"`
	Source string `expr:"source"`
}

// RuleProcessor filters a snapshot with a boolean expr expression.
type RuleProcessor struct {
	name    string
	config  config.ItemRule
	program *vm.Program
}

func NewRuleProcessor(cfg *config.ItemRule) (*RuleProcessor, error) {
	if cfg == nil {
		return nil, fmt.Errorf("item rule config is required")
	}
	program, err := expr.Compile(cfg.Rule, expr.Env(ruleEnv{}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile item rule %q: %w", cfg.Name, err)
	}
	return &RuleProcessor{
		name:    cfg.Name,
		config:  *cfg,
		program: program,
	}, nil
}

func (p *RuleProcessor) Name() string {
	return p.name
}

func (p *RuleProcessor) Validate() error {
	if p.config.Name == "" || p.config.Rule == "" {
		return fmt.Errorf("rule name and expression are required")
	}
	switch p.config.Result {
	case ResultDrop, ResultKeep:
		return nil
	default:
		return fmt.Errorf("rule result must be %q or %q", ResultDrop, ResultKeep)
	}
}

// Apply returns the items the rule lets through, in snapshot order. An item
// whose evaluation errors is kept so a bad rule never loses data.
func (p *RuleProcessor) Apply(ctx context.Context, snapshot core.Snapshot) (core.Snapshot, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	logger := core.LoggerFromContext(ctx)

	filtered := make(core.Snapshot, 0, len(snapshot))
	for _, item := range snapshot {
		result, err := expr.Run(p.program, ruleEnv{
			Value:  item.Value,
			Length: utf8.RuneCountInString(item.Value),
			Source: item.Source,
		})
		if err != nil {
			logger.Warn("item rule evaluation failed", "rule", p.name, "error", err)
			filtered = append(filtered, item)
			continue
		}
		matched, _ := result.(bool)
		if matched == (strings.EqualFold(p.config.Result, ResultKeep)) {
			filtered = append(filtered, item)
		}
	}
	return filtered, nil
}
