package policy

import (
	"testing"

	"github.com/wisbric/stratum/internal/domain"
)

func mustMatchRule(id string, layer domain.Layer, mode RuleMode, merge MergeStrategy, pattern string) Rule {
	return Rule{
		ID:     id,
		Layer:  layer,
		Mode:   mode,
		Merge:  merge,
		Constraint: domain.Constraint{
			Operator: domain.OpMustMatch,
			Pattern:  pattern,
			Severity: domain.SeverityBlock,
		},
	}
}

func newTestEngine(tenantID string, rules []Rule) *Engine {
	e := New(nil)
	e.rules[tenantID] = rules
	return e
}

func TestApplicableRulesMergeStrategyCombinesBothLayers(t *testing.T) {
	e := newTestEngine("t1", []Rule{
		mustMatchRule("company-rule", domain.LayerCompany, ModeMandatory, MergeMerge, "^A$"),
		mustMatchRule("project-rule", domain.LayerProject, ModeOptional, MergeMerge, "^B$"),
	})

	rules := e.applicableRules("t1", EvalContext{Layer: domain.LayerProject})
	if len(rules) != 2 {
		t.Fatalf("expected merge strategy to keep both rules, got %d", len(rules))
	}
}

func TestApplicableRulesReplaceDropsOptionalButKeepsMandatory(t *testing.T) {
	e := newTestEngine("t1", []Rule{
		mustMatchRule("company-mandatory", domain.LayerCompany, ModeMandatory, MergeMerge, "^A$"),
		mustMatchRule("org-optional", domain.LayerOrg, ModeOptional, MergeMerge, "^B$"),
		mustMatchRule("project-replace", domain.LayerProject, ModeOptional, MergeReplace, "^C$"),
	})

	rules := e.applicableRules("t1", EvalContext{Layer: domain.LayerProject})

	ids := make(map[string]bool, len(rules))
	for _, r := range rules {
		ids[r.ID] = true
	}

	if !ids["company-mandatory"] {
		t.Error("expected mandatory company rule to survive a narrower replace")
	}
	if ids["org-optional"] {
		t.Error("expected optional org rule to be dropped by the project layer's replace")
	}
	if !ids["project-replace"] {
		t.Error("expected the replacing layer's own rule to be present")
	}
}

func TestApplicableRulesOnlyConsidersLayersAtOrWiderThanContext(t *testing.T) {
	e := newTestEngine("t1", []Rule{
		mustMatchRule("session-rule", domain.LayerSession, ModeMandatory, MergeMerge, "^A$"),
		mustMatchRule("project-rule", domain.LayerProject, ModeMandatory, MergeMerge, "^B$"),
	})

	rules := e.applicableRules("t1", EvalContext{Layer: domain.LayerProject})
	for _, r := range rules {
		if r.Layer == domain.LayerSession {
			t.Error("expected narrower session-layer rule not to apply at the project layer")
		}
	}
	if len(rules) != 1 {
		t.Fatalf("expected only the project-layer rule to apply, got %d", len(rules))
	}
}

func TestApplicableRulesOrdersNarrowestFirst(t *testing.T) {
	e := newTestEngine("t1", []Rule{
		mustMatchRule("company-rule", domain.LayerCompany, ModeMandatory, MergeMerge, "^A$"),
		mustMatchRule("project-rule", domain.LayerProject, ModeMandatory, MergeMerge, "^B$"),
	})

	rules := e.applicableRules("t1", EvalContext{Layer: domain.LayerProject})
	if len(rules) != 2 {
		t.Fatalf("expected 2 applicable rules, got %d", len(rules))
	}
	if rules[0].Layer != domain.LayerProject {
		t.Errorf("expected narrowest layer first, got %s", rules[0].Layer)
	}
}

func TestCheckConstraintsReportsViolationsFromComposedRules(t *testing.T) {
	e := newTestEngine("t1", []Rule{
		mustMatchRule("company-rule", domain.LayerCompany, ModeMandatory, MergeMerge, "^approved$"),
	})

	violations := e.CheckConstraints("t1", EvalContext{Layer: domain.LayerProject, Content: "not-approved"})
	if len(violations) != 1 {
		t.Fatalf("expected 1 violation, got %d", len(violations))
	}
	if violations[0].PolicyID != "company-rule" {
		t.Errorf("expected violation from company-rule, got %s", violations[0].PolicyID)
	}
}

func TestValidateWriteFailsOnBlockSeverityViolation(t *testing.T) {
	e := newTestEngine("t1", []Rule{
		mustMatchRule("company-rule", domain.LayerCompany, ModeMandatory, MergeMerge, "^approved$"),
	})

	err := e.ValidateWrite("t1", EvalContext{Layer: domain.LayerProject, Content: "nope"})
	if err == nil {
		t.Fatal("expected policy violation error")
	}
	if _, ok := err.(*PolicyViolationError); !ok {
		t.Errorf("expected *PolicyViolationError, got %T", err)
	}
}

func TestValidateWritePassesWhenNoRulesApply(t *testing.T) {
	e := newTestEngine("t1", nil)
	if err := e.ValidateWrite("t1", EvalContext{Layer: domain.LayerProject, Content: "anything"}); err != nil {
		t.Errorf("expected no violation, got %v", err)
	}
}

func TestFilterResultsDropsBlockedContent(t *testing.T) {
	e := newTestEngine("t1", []Rule{
		mustMatchRule("company-rule", domain.LayerCompany, ModeMandatory, MergeMerge, "^approved$"),
	})

	results := e.FilterResults("t1", domain.LayerProject, []string{"approved", "not-approved"})
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if !results[0].Allowed {
		t.Error("expected matching content to be allowed")
	}
	if results[1].Allowed {
		t.Error("expected non-matching content to be blocked")
	}
}

func TestSimulateEvaluatesDraftConstraintsWithoutTouchingStoredState(t *testing.T) {
	draft := []domain.Constraint{{Operator: domain.OpMustMatch, Pattern: "^ok$", Severity: domain.SeverityBlock}}
	scenarios := []EvalContext{{Content: "ok"}, {Content: "bad"}}

	results := Simulate(draft, scenarios)
	if len(results) != 2 {
		t.Fatalf("expected 2 scenario results, got %d", len(results))
	}
	if len(results[0]) != 0 {
		t.Errorf("expected no violations for matching content, got %v", results[0])
	}
	if len(results[1]) != 1 {
		t.Errorf("expected 1 violation for non-matching content, got %v", results[1])
	}
}
