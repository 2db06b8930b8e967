package detect

import (
	"fmt"
	"log/slog"
	"sync"
	"unicode/utf8"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/kudoshq/shrike/internal/domain"
)

// RuleSet holds admin-configured CEL abuse rules, compiled once at load.
// Rules extend the built-in detectors: a rule that evaluates true emits a
// flag with its configured type and severity, appended after the built-in
// flags so output ordering stays deterministic.
type RuleSet struct {
	mu       sync.RWMutex
	env      *cel.Env
	compiled map[string]*compiledRule
	order    []string
}

type compiledRule struct {
	config  *domain.RuleConfig
	program cel.Program
}

// NewRuleSet creates an empty rule set with the recognition CEL environment.
func NewRuleSet() (*RuleSet, error) {
	env, err := cel.NewEnv(
		cel.Variable("weight", cel.DoubleType),
		cel.Variable("evidence_count", cel.IntType),
		cel.Variable("giver_role", cel.StringType),
		cel.Variable("reason_length", cel.IntType),
		cel.Variable("pair_count", cel.IntType),
		cel.Variable("mutual_count", cel.IntType),
		cel.Variable("daily_count", cel.IntType),
		cel.Variable("weekly_count", cel.IntType),
		cel.Variable("duplicate_count", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &RuleSet{
		env:      env,
		compiled: make(map[string]*compiledRule),
	}, nil
}

// Validate compiles a rule without loading it.
func (s *RuleSet) Validate(cfg *domain.RuleConfig) error {
	if cfg == nil {
		return fmt.Errorf("rule config is required")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	_, err := s.compile(cfg)
	return err
}

// Load compiles and loads a single rule.
func (s *RuleSet) Load(cfg *domain.RuleConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	compiled, err := s.compile(cfg)
	if err != nil {
		return err
	}

	if _, exists := s.compiled[cfg.ID]; !exists {
		s.order = append(s.order, cfg.ID)
	}
	s.compiled[cfg.ID] = compiled
	return nil
}

// Reload replaces all loaded rules. Used for hot reload from the database.
func (s *RuleSet) Reload(configs []*domain.RuleConfig) error {
	newRules := make(map[string]*compiledRule)
	var newOrder []string

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		compiled, err := s.compile(cfg)
		if err != nil {
			return err
		}
		newRules[cfg.ID] = compiled
		newOrder = append(newOrder, cfg.ID)
	}

	s.compiled = newRules
	s.order = newOrder
	return nil
}

// Len returns the number of loaded rules.
func (s *RuleSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.compiled)
}

// Evaluate runs every loaded rule against the event and its gathered counts.
// A rule evaluation error skips that rule only; detection of a gaming
// pattern must not depend on every custom rule being healthy.
func (s *RuleSet) Evaluate(rec *domain.Recognition, counts Counts) []domain.AbuseFlag {
	s.mu.RLock()
	rules := make([]*compiledRule, 0, len(s.order))
	for _, id := range s.order {
		rules = append(rules, s.compiled[id])
	}
	s.mu.RUnlock()

	if len(rules) == 0 {
		return nil
	}

	activation := map[string]any{
		"weight":          rec.Weight,
		"evidence_count":  int64(rec.EvidenceCount),
		"giver_role":      string(rec.GiverRole),
		"reason_length":   int64(utf8.RuneCountInString(rec.Reason)),
		"pair_count":      counts.Pair,
		"mutual_count":    counts.Mutual,
		"daily_count":     counts.Daily,
		"weekly_count":    counts.Weekly,
		"duplicate_count": counts.Duplicate,
	}

	var flags []domain.AbuseFlag
	for _, rule := range rules {
		out, _, err := rule.program.Eval(activation)
		if err != nil {
			slog.Warn("custom rule evaluation failed",
				"rule_id", rule.config.ID,
				"recognition_id", rec.ID,
				"error", err,
			)
			continue
		}

		if matched, ok := out.(types.Bool); !ok || !bool(matched) {
			continue
		}

		flagType := rule.config.FlagType
		if flagType == "" {
			flagType = domain.FlagManual
		}
		severity := rule.config.Severity
		if severity == "" {
			severity = domain.SeverityMedium
		}

		flags = append(flags, domain.AbuseFlag{
			Type:        flagType,
			Severity:    severity,
			Description: rule.config.Name,
			Method:      domain.MethodAutomatic,
			Metadata: domain.FlagMetadata{
				RuleID:         rule.config.ID,
				Weight:         rec.Weight,
				EvidenceCount:  rec.EvidenceCount,
				PairCount:      counts.Pair,
				MutualCount:    counts.Mutual,
				DailyCount:     counts.Daily,
				WeeklyCount:    counts.Weekly,
				DuplicateCount: counts.Duplicate,
			},
		})
	}

	return flags
}

func (s *RuleSet) compile(cfg *domain.RuleConfig) (*compiledRule, error) {
	ast, issues := s.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", cfg.ID, issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("rule %s: expression must return bool, got %s", cfg.ID, ast.OutputType())
	}

	program, err := s.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", cfg.ID, err)
	}

	return &compiledRule{config: cfg, program: program}, nil
}
