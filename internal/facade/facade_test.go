package facade

import (
	"testing"

	"github.com/wisbric/stratum/internal/domain"
)

func TestDelegationChainIDsReturnsNilForNilContext(t *testing.T) {
	if ids := delegationChainIDs(nil); ids != nil {
		t.Errorf("expected nil, got %v", ids)
	}
}

func TestDelegationChainIDsExtractsPrincipalIDsInOrder(t *testing.T) {
	tc := &domain.TenantContext{
		DelegationChain: []domain.Principal{{ID: "agent-1"}, {ID: "user-2"}},
	}
	ids := delegationChainIDs(tc)
	if len(ids) != 2 || ids[0] != "agent-1" || ids[1] != "user-2" {
		t.Errorf("expected [agent-1 user-2], got %v", ids)
	}
}

func TestLogAuditIsNoOpWithoutAuditWriter(t *testing.T) {
	f := &Facade{}
	// Must not panic when no audit writer is configured.
	f.logAudit(&domain.TenantContext{TenantID: "t1", PrincipalID: "p1"}, "memory.add", "memory", "id-1", "allowed", nil)
}

func TestLogAuditIsNoOpWithNilTenantContext(t *testing.T) {
	f := &Facade{}
	f.logAudit(nil, "memory.add", "memory", "id-1", "allowed", nil)
}
