// Package policy implements C3: the governance and constraint engine
// that validates every write and filters every read against a layered,
// tenant-scoped policy set.
package policy

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wisbric/stratum/internal/domain"
	"github.com/wisbric/stratum/internal/tenant"
)

// MergeStrategy controls how a narrower layer's policy set composes
// with a wider layer's.
type MergeStrategy string

const (
	MergeReplace MergeStrategy = "replace"
	MergeMerge   MergeStrategy = "merge"
)

// RuleMode determines whether a layer's rule may be overridden by a
// narrower layer.
type RuleMode string

const (
	ModeMandatory RuleMode = "mandatory"
	ModeOptional  RuleMode = "optional"
)

// Rule is one Constraint bound to the layer it was declared at and its
// override mode, used to resolve precedence on conflict.
type Rule struct {
	ID          string
	Layer       domain.Layer
	Mode        RuleMode
	Merge       MergeStrategy
	Ordinal     int
	Constraint  domain.Constraint
}

// EvalContext is what a write or read operation is evaluated against.
type EvalContext struct {
	Operation    string // "write", "read", "promote"
	Layer        domain.Layer
	PrincipalID  string
	Content      string
	Dependencies []string
	Files        []string
	Config       map[string]string
	FilePath     string
}

// Violation is a single failed Constraint.
type Violation struct {
	PolicyID string
	Severity domain.ConstraintSeverity
	Message  string
}

// PolicyViolationError is returned by ValidateWrite when at least one
// blocking Violation is found.
type PolicyViolationError struct {
	PolicyID   string
	Violations []Violation
}

func (e *PolicyViolationError) Error() string {
	return fmt.Sprintf("policy violation: %s", e.PolicyID)
}

// Engine evaluates layered policy sets. Rules are loaded per tenant from
// Postgres (policy_sets table, one row per layer) and cached in memory;
// callers needing a fresh read should call Reload.
type Engine struct {
	pool  *pgxpool.Pool
	rules map[string][]Rule // tenantID -> loaded rule set, narrowest-first
}

// New constructs an Engine over the given pool.
func New(pool *pgxpool.Pool) *Engine {
	return &Engine{pool: pool, rules: make(map[string][]Rule)}
}

// layerPrecedence orders layers narrowest-first for "more specific wins".
var layerPrecedence = []domain.Layer{
	domain.LayerAgent, domain.LayerUser, domain.LayerSession,
	domain.LayerProject, domain.LayerTeam, domain.LayerOrg, domain.LayerCompany,
}

// Reload loads a tenant's layered policy sets from storage and caches
// their rules sorted narrowest-first. Each layer's merge strategy and
// mode are applied later, per evaluation, by applicableRules.
func (e *Engine) Reload(ctx context.Context, tenantID string) error {
	var loaded []Rule

	err := tenant.WithSchema(ctx, e.pool, tenant.SchemaName(tenantID), func(ctx context.Context, conn *pgxpool.Conn) error {
		rows, err := conn.Query(ctx, `SELECT id, layer, mode, merge, rules FROM policy_sets WHERE tenant_id = $1`, tenantID)
		if err != nil {
			return fmt.Errorf("loading policy sets: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var id, layer, mode, merge string
			var rulesRaw []byte
			if err := rows.Scan(&id, &layer, &mode, &merge, &rulesRaw); err != nil {
				return fmt.Errorf("scanning policy set: %w", err)
			}
			constraints, err := decodeConstraints(rulesRaw)
			if err != nil {
				return fmt.Errorf("decoding constraints for policy %s: %w", id, err)
			}
			for i, c := range constraints {
				loaded = append(loaded, Rule{
					ID: id, Layer: domain.Layer(layer), Mode: RuleMode(mode), Merge: MergeStrategy(merge),
					Ordinal: i, Constraint: c,
				})
			}
		}
		return rows.Err()
	})
	if err != nil {
		return err
	}

	sort.SliceStable(loaded, func(i, j int) bool {
		return loaded[i].Layer.Ordinal() < loaded[j].Layer.Ordinal()
	})

	e.rules[tenantID] = loaded
	return nil
}

// applicableRules returns the rules that apply at ctx.Layer or any wider
// layer, composed company → org → team → project → ... per §4.3's merge
// semantics: each layer's `merge` strategy decides whether its rule set
// `replace`s everything accumulated from wider layers or `merge`s
// (adds to) it; a wider layer's `mandatory` rules always survive a
// narrower replace, while `optional` ones do not. The result is
// narrowest (most specific) first — ties broken by rule ordinal.
func (e *Engine) applicableRules(tenantID string, ctx EvalContext) []Rule {
	all := e.rules[tenantID]

	byLayer := make(map[domain.Layer][]Rule)
	for _, r := range all {
		if r.Layer.Ordinal() >= ctx.Layer.Ordinal() {
			byLayer[r.Layer] = append(byLayer[r.Layer], r)
		}
	}

	var composed []Rule
	// layerPrecedence is narrowest-first; composition walks widest-first
	// so each subsequent, narrower layer can replace or merge with what
	// wider layers already contributed.
	for i := len(layerPrecedence) - 1; i >= 0; i-- {
		layer := layerPrecedence[i]
		rules, ok := byLayer[layer]
		if !ok || len(rules) == 0 {
			continue
		}
		if rules[0].Merge == MergeReplace {
			survivors := composed[:0:0]
			for _, c := range composed {
				if c.Mode == ModeMandatory {
					survivors = append(survivors, c)
				}
			}
			composed = append(survivors, rules...)
		} else {
			composed = append(composed, rules...)
		}
	}

	sort.SliceStable(composed, func(i, j int) bool {
		if composed[i].Layer.Ordinal() != composed[j].Layer.Ordinal() {
			return composed[i].Layer.Ordinal() < composed[j].Layer.Ordinal()
		}
		return composed[i].Ordinal < composed[j].Ordinal
	})
	return composed
}

// CheckConstraints evaluates every applicable rule and returns every
// Violation found (block, warn, and info severities all included).
func (e *Engine) CheckConstraints(tenantID string, ctx EvalContext) []Violation {
	var violations []Violation
	for _, rule := range e.applicableRules(tenantID, ctx) {
		if v, failed := evaluate(rule.Constraint, ctx); failed {
			violations = append(violations, Violation{
				PolicyID: rule.ID,
				Severity: rule.Constraint.Severity,
				Message:  v,
			})
		}
	}
	return violations
}

// ValidateWrite fails with PolicyViolationError if any applicable rule
// produces a block-severity Violation.
func (e *Engine) ValidateWrite(tenantID string, ctx EvalContext) error {
	violations := e.CheckConstraints(tenantID, ctx)
	for _, v := range violations {
		if v.Severity == domain.SeverityBlock {
			return &PolicyViolationError{PolicyID: v.PolicyID, Violations: violations}
		}
	}
	return nil
}

// FilterResult is one candidate's filtering outcome.
type FilterResult struct {
	Content string
	Allowed bool
	Reason  string
}

// FilterResults evaluates each candidate's content against the tenant's
// rules at its layer, returning only those without a blocking
// Violation. Non-blocking filtering is what spec §4.3 means by "filter";
// callers are expected to audit-log dropped candidates.
func (e *Engine) FilterResults(tenantID string, layer domain.Layer, candidates []string) []FilterResult {
	results := make([]FilterResult, 0, len(candidates))
	for _, content := range candidates {
		ctx := EvalContext{Operation: "read", Layer: layer, Content: content}
		blocked := false
		var reason string
		for _, v := range e.CheckConstraints(tenantID, ctx) {
			if v.Severity == domain.SeverityBlock {
				blocked = true
				reason = v.Message
				break
			}
		}
		results = append(results, FilterResult{Content: content, Allowed: !blocked, Reason: reason})
	}
	return results
}

// Simulate applies policy_draft's constraints against each scenario
// in-memory, without touching persisted policy state — used to preview
// a draft policy's effect before saving it.
func Simulate(draft []domain.Constraint, scenarios []EvalContext) [][]Violation {
	results := make([][]Violation, len(scenarios))
	for i, scenario := range scenarios {
		var violations []Violation
		for j, c := range draft {
			if msg, failed := evaluate(c, scenario); failed {
				violations = append(violations, Violation{
					PolicyID: fmt.Sprintf("draft-%d", j),
					Severity: c.Severity,
					Message:  msg,
				})
			}
		}
		results[i] = violations
	}
	return results
}

// evaluate applies a single Constraint's operator semantics against
// ctx, returning a human-readable failure message and true if the
// constraint failed (a Violation should be recorded).
func evaluate(c domain.Constraint, ctx EvalContext) (string, bool) {
	if c.AppliesTo != "" && ctx.FilePath != "" {
		matched, err := filepath.Match(c.AppliesTo, ctx.FilePath)
		if err != nil || !matched {
			return "", false
		}
	}

	switch c.Operator {
	case domain.OpMustMatch:
		if !matchesPattern(c.Pattern, ctx.Content) {
			return messageOr(c, "content does not match required pattern"), true
		}
	case domain.OpMustNotMatch:
		if matchesPattern(c.Pattern, ctx.Content) {
			return messageOr(c, "content matches forbidden pattern"), true
		}
	case domain.OpMustUse:
		if !contains(ctx.Dependencies, c.Pattern) {
			return messageOr(c, "required dependency not in use"), true
		}
	case domain.OpMustNotUse:
		if contains(ctx.Dependencies, c.Pattern) {
			return messageOr(c, "forbidden dependency in use"), true
		}
	case domain.OpMustExist:
		if !contains(ctx.Files, c.Pattern) {
			return messageOr(c, "required path does not exist"), true
		}
	case domain.OpMustNotExist:
		if contains(ctx.Files, c.Pattern) {
			return messageOr(c, "forbidden path exists"), true
		}
	}
	return "", false
}

func messageOr(c domain.Constraint, fallback string) string {
	if c.Message != "" {
		return c.Message
	}
	return fallback
}

func matchesPattern(pattern, content string) bool {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return pattern == content
	}
	return re.MatchString(content)
}

func contains(items []string, target string) bool {
	for _, item := range items {
		if item == target {
			return true
		}
	}
	return false
}
