// Package facade implements C7: the sole entry point for memory and
// knowledge mutations and reads, binding PolicyEngine ahead of C5/C2/C1
// and emitting a structured audit record for every successful operation
// (spec §4.7).
package facade

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/wisbric/stratum/internal/audit"
	"github.com/wisbric/stratum/internal/domain"
	"github.com/wisbric/stratum/internal/memoryengine"
	"github.com/wisbric/stratum/internal/policy"
	"github.com/wisbric/stratum/internal/router"
	"github.com/wisbric/stratum/internal/tenant"
)

// Facade bundles everything a governed read or write needs.
type Facade struct {
	memory  *memoryengine.Engine
	policyE *policy.Engine
	complex *router.ComplexityRouter
	exec    *router.DecompositionExecutor
	trainer *router.PolicyTrainer
	audit   *audit.Writer
	logger  *slog.Logger
}

// Config wires a Facade's collaborators together.
type Config struct {
	Memory    *memoryengine.Engine
	Policy    *policy.Engine
	Router    *router.ComplexityRouter
	Executor  *router.DecompositionExecutor
	Trainer   *router.PolicyTrainer
	Audit     *audit.Writer
	Logger    *slog.Logger
}

// New constructs a Facade.
func New(cfg Config) *Facade {
	return &Facade{
		memory:  cfg.Memory,
		policyE: cfg.Policy,
		complex: cfg.Router,
		exec:    cfg.Executor,
		trainer: cfg.Trainer,
		audit:   cfg.Audit,
		logger:  cfg.Logger,
	}
}

// detail is the structured payload every audit record carries.
type detail struct {
	Operation       string   `json:"operation"`
	Layer           string   `json:"layer,omitempty"`
	DelegationChain []string `json:"delegation_chain,omitempty"`
	Decision        string   `json:"decision"`
	Warnings        []string `json:"warnings,omitempty"`
	AppliedPolicies []string `json:"applied_policies,omitempty"`
}

func delegationChainIDs(tc *domain.TenantContext) []string {
	if tc == nil {
		return nil
	}
	ids := make([]string, 0, len(tc.DelegationChain))
	for _, p := range tc.DelegationChain {
		ids = append(ids, p.ID)
	}
	return ids
}

func (f *Facade) logAudit(tc *domain.TenantContext, operation, resource, resourceID, decision string, warnings []domain.Warning) {
	if f.audit == nil {
		return
	}

	warnCodes := make([]string, 0, len(warnings))
	for _, w := range warnings {
		warnCodes = append(warnCodes, w.Code)
	}

	d := detail{
		Operation:       operation,
		DelegationChain: delegationChainIDs(tc),
		Decision:        decision,
		Warnings:        warnCodes,
	}
	raw, err := json.Marshal(d)
	if err != nil {
		f.logger.Error("encoding audit detail", "error", err, "operation", operation)
		return
	}

	principal := ""
	schema := ""
	if tc != nil {
		principal = tc.PrincipalID
		schema = tenant.SchemaName(tc.TenantID)
	}

	f.audit.Log(audit.Entry{
		TenantSchema: schema,
		PrincipalID:  principal,
		Action:       operation,
		Resource:     resource,
		ResourceID:   resourceID,
		Detail:       raw,
	})
}
