// Package rules provides the CEL-Go based pattern rule engine. Document-scope
// rules feed the pattern-anomaly score component; batch-scope rules form the
// priority-ordered fraud-reason cascade over engineered batch features.
package rules

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"

	"github.com/veridoc/harrier/internal/domain"
)

// Engine compiles and evaluates pattern rules. Safe for concurrent use;
// rule reloads swap the compiled sets atomically under the write lock.
type Engine struct {
	mu         sync.RWMutex
	docEnv     *cel.Env
	batchEnv   *cel.Env
	docRules   map[string]*CompiledRule
	batchRules map[string]*CompiledRule
	cascade    []*CompiledRule // batch rules in priority order
	maxWorkers int
}

// CompiledRule holds a pre-compiled CEL program.
type CompiledRule struct {
	Rule    *domain.PatternRule
	Program cel.Program
}

// NewEngine creates the rule engine with both scope environments.
func NewEngine(maxWorkers int) (*Engine, error) {
	if maxWorkers <= 0 {
		maxWorkers = 10
	}

	docEnv, err := cel.NewEnv(
		cel.Variable("fields", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("doc_type", cel.StringType),
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("currency", cel.StringType),
		cel.Variable("entity_name", cel.StringType),
		cel.Variable("payee", cel.StringType),
		cel.Variable("has_signature", cel.BoolType),
		cel.Variable("anomaly_count", cel.IntType),
		cel.Variable("missing_count", cel.IntType),
		cel.Variable("days_old", cel.DoubleType),
		cel.Variable("doc_number_seen", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create document CEL environment: %w", err)
	}

	batchEnv, err := cel.NewEnv(
		cel.Variable("id", cel.StringType),
		cel.Variable("entity_id", cel.StringType),
		cel.Variable("merchant", cel.StringType),
		cel.Variable("category", cel.StringType),
		cel.Variable("country", cel.StringType),
		cel.Variable("home_country", cel.StringType),
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("hour", cel.IntType),
		cel.Variable("z_score", cel.DoubleType),
		cel.Variable("is_round", cel.BoolType),
		cel.Variable("velocity", cel.IntType),
		cel.Variable("entity_txn_count", cel.IntType),
		cel.Variable("duplicate_count", cel.IntType),
		cel.Variable("country_changed", cel.BoolType),
		cel.Variable("seconds_since_prev", cel.IntType),
		cel.Variable("gap_days", cel.DoubleType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create batch CEL environment: %w", err)
	}

	return &Engine{
		docEnv:     docEnv,
		batchEnv:   batchEnv,
		docRules:   make(map[string]*CompiledRule),
		batchRules: make(map[string]*CompiledRule),
		maxWorkers: maxWorkers,
	}, nil
}

// ValidateRule compiles a rule without mutating the loaded sets.
func (e *Engine) ValidateRule(rule *domain.PatternRule) error {
	if rule == nil {
		return fmt.Errorf("rule is required")
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compileRule(rule)
	return err
}

// LoadRule compiles and loads one rule into its scope's set.
func (e *Engine) LoadRule(rule *domain.PatternRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compileRule(rule)
	if err != nil {
		return err
	}

	switch rule.Scope {
	case domain.ScopeDocument:
		e.docRules[rule.ID] = compiled
	case domain.ScopeBatch:
		e.batchRules[rule.ID] = compiled
		e.rebuildCascade()
	}
	return nil
}

// LoadRules compiles and loads multiple rules, skipping disabled ones.
func (e *Engine) LoadRules(rules []*domain.PatternRule) error {
	for _, rule := range rules {
		if rule.Enabled {
			if err := e.LoadRule(rule); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReloadRules replaces both rule sets atomically. This enables hot-reloading
// from the repository without a restart.
func (e *Engine) ReloadRules(rules []*domain.PatternRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	newDoc := make(map[string]*CompiledRule)
	newBatch := make(map[string]*CompiledRule)

	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}
		compiled, err := e.compileRule(rule)
		if err != nil {
			return err
		}
		switch rule.Scope {
		case domain.ScopeDocument:
			newDoc[rule.ID] = compiled
		case domain.ScopeBatch:
			newBatch[rule.ID] = compiled
		}
	}

	e.docRules = newDoc
	e.batchRules = newBatch
	e.rebuildCascade()
	return nil
}

// DocumentMatch is one document-scope rule that fired.
type DocumentMatch struct {
	RuleID string  `json:"ruleId"`
	Name   string  `json:"name"`
	Points float64 `json:"points"`
}

// ScoreDocument evaluates all document-scope rules against the activation in
// parallel and sums the points of the matches. Rules that fail to evaluate
// are treated as non-matches. The returned total is uncapped; the scorer
// clamps it onto the component scale.
func (e *Engine) ScoreDocument(ctx context.Context, activation map[string]any) (float64, []DocumentMatch) {
	e.mu.RLock()
	rules := make([]*CompiledRule, 0, len(e.docRules))
	for _, r := range e.docRules {
		rules = append(rules, r)
	}
	e.mu.RUnlock()

	if len(rules) == 0 {
		return 0, nil
	}

	matched := make([]bool, len(rules))
	var wg sync.WaitGroup
	sem := make(chan struct{}, e.maxWorkers)

	for i, rule := range rules {
		wg.Add(1)
		go func(idx int, r *CompiledRule) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			out, _, err := r.Program.Eval(activation)
			if err != nil {
				return
			}
			matched[idx] = isTrue(out)
		}(i, rule)
	}
	wg.Wait()

	total := 0.0
	var matches []DocumentMatch
	for i, rule := range rules {
		if !matched[i] {
			continue
		}
		total += rule.Rule.Points
		matches = append(matches, DocumentMatch{
			RuleID: rule.Rule.ID,
			Name:   rule.Rule.Name,
			Points: rule.Rule.Points,
		})
	}
	// Deterministic order for callers regardless of map iteration.
	sort.Slice(matches, func(i, j int) bool { return matches[i].RuleID < matches[j].RuleID })
	return total, matches
}

// ClassifyOutlier walks the batch-scope cascade in priority order and returns
// the label of the first matching rule. Evaluation errors skip the rule. When
// nothing matches the fallback label is returned.
func (e *Engine) ClassifyOutlier(activation map[string]any) (label, ruleID string) {
	e.mu.RLock()
	cascade := e.cascade
	e.mu.RUnlock()

	for _, rule := range cascade {
		out, _, err := rule.Program.Eval(activation)
		if err != nil {
			continue
		}
		if isTrue(out) {
			return rule.Rule.Label, rule.Rule.ID
		}
	}
	return domain.ReasonUnclassified, ""
}

// RulesCount returns the number of loaded rules across both scopes.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.docRules) + len(e.batchRules)
}

// GetLoadedRules returns the currently loaded rules.
func (e *Engine) GetLoadedRules() []*domain.PatternRule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rules := make([]*domain.PatternRule, 0, len(e.docRules)+len(e.batchRules))
	for _, compiled := range e.docRules {
		rules = append(rules, compiled.Rule)
	}
	for _, compiled := range e.batchRules {
		rules = append(rules, compiled.Rule)
	}
	return rules
}

// Close clears the compiled rule sets.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.docRules = make(map[string]*CompiledRule)
	e.batchRules = make(map[string]*CompiledRule)
	e.cascade = nil
	return nil
}

// rebuildCascade re-sorts batch rules by priority, breaking ties by ID so
// the cascade order is total. Caller holds the write lock.
func (e *Engine) rebuildCascade() {
	cascade := make([]*CompiledRule, 0, len(e.batchRules))
	for _, r := range e.batchRules {
		cascade = append(cascade, r)
	}
	sort.Slice(cascade, func(i, j int) bool {
		a, b := cascade[i].Rule, cascade[j].Rule
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		return a.ID < b.ID
	})
	e.cascade = cascade
}

func (e *Engine) compileRule(rule *domain.PatternRule) (*CompiledRule, error) {
	var env *cel.Env
	switch rule.Scope {
	case domain.ScopeDocument:
		env = e.docEnv
	case domain.ScopeBatch:
		env = e.batchEnv
	default:
		return nil, fmt.Errorf("rule %s: unknown scope %q", rule.ID, rule.Scope)
	}

	ast, issues := env.Compile(rule.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", rule.ID, issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("rule %s: expression must return bool, got %s", rule.ID, ast.OutputType())
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", rule.ID, err)
	}

	return &CompiledRule{Rule: rule, Program: program}, nil
}

func isTrue(val ref.Val) bool {
	b, ok := val.(types.Bool)
	return ok && bool(b)
}
