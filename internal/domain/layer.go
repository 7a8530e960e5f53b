// Package domain holds the core types shared across the memory, graph,
// governance, and routing subsystems: layers, memory entries, knowledge
// items, graph primitives, and tenant context.
package domain

import "fmt"

// Layer is one of the seven hierarchical scopes memory and knowledge can
// live at, ordered from narrowest to widest.
type Layer string

const (
	LayerAgent   Layer = "agent"
	LayerUser    Layer = "user"
	LayerSession Layer = "session"
	LayerProject Layer = "project"
	LayerTeam    Layer = "team"
	LayerOrg     Layer = "org"
	LayerCompany Layer = "company"
)

// layerOrder fixes precedence: index 0 is narrowest (checked first on
// resolution/merge), index len-1 is widest.
var layerOrder = []Layer{LayerAgent, LayerUser, LayerSession, LayerProject, LayerTeam, LayerOrg, LayerCompany}

// Ordinal returns the layer's position in the hierarchy (0 = agent,
// 6 = company). Returns -1 for an unknown layer.
func (l Layer) Ordinal() int {
	for i, candidate := range layerOrder {
		if candidate == l {
			return i
		}
	}
	return -1
}

// Valid reports whether l is one of the seven recognized layers.
func (l Layer) Valid() bool {
	return l.Ordinal() >= 0
}

// KnowledgeLayers are the layers KnowledgeItem governance applies to,
// per spec §3 — knowledge lives at project and above, never at the
// ephemeral agent/user/session layers.
var KnowledgeLayers = []Layer{LayerProject, LayerTeam, LayerOrg, LayerCompany}

// IsKnowledgeLayer reports whether l is a valid layer for a KnowledgeItem.
func (l Layer) IsKnowledgeLayer() bool {
	for _, k := range KnowledgeLayers {
		if k == l {
			return true
		}
	}
	return false
}

// Identifiers names the identifier fields a request may carry; which of
// them is required depends on the target Layer (see RequireIdentifiers).
type Identifiers struct {
	AgentID   string
	UserID    string
	SessionID string
	ProjectID string
	TeamID    string
	OrgID     string
	CompanyID string
}

// Get returns the value of the named identifier field.
func (id Identifiers) Get(field string) string {
	switch field {
	case "agentId":
		return id.AgentID
	case "userId":
		return id.UserID
	case "sessionId":
		return id.SessionID
	case "projectId":
		return id.ProjectID
	case "teamId":
		return id.TeamID
	case "orgId":
		return id.OrgID
	case "companyId":
		return id.CompanyID
	}
	return ""
}

// requiredFields is the bit-exact layer requirements matrix: for each
// layer, the identifier fields that must be non-empty.
var requiredFields = map[Layer][]string{
	LayerAgent:   {"agentId", "userId"},
	LayerUser:    {"userId"},
	LayerSession: {"userId", "sessionId"},
	LayerProject: {"projectId"},
	LayerTeam:    {"teamId"},
	LayerOrg:     {"orgId"},
	LayerCompany: {"companyId"},
}

// MissingIdentifierError reports the first identifier field missing for
// a layer operation.
type MissingIdentifierError struct {
	Layer Layer
	Field string
}

func (e *MissingIdentifierError) Error() string {
	return fmt.Sprintf("layer %q requires identifier %q", e.Layer, e.Field)
}

// InvalidLayerError reports an unrecognized layer value.
type InvalidLayerError struct {
	Layer Layer
}

func (e *InvalidLayerError) Error() string {
	return fmt.Sprintf("invalid layer %q", e.Layer)
}

// RequireIdentifiers validates that ids carries every identifier the
// matrix in spec §6 requires for layer. It fails before any I/O, per the
// "layer identifier completeness" invariant.
func RequireIdentifiers(layer Layer, ids Identifiers) error {
	if !layer.Valid() {
		return &InvalidLayerError{Layer: layer}
	}
	for _, field := range requiredFields[layer] {
		if ids.Get(field) == "" {
			return &MissingIdentifierError{Layer: layer, Field: field}
		}
	}
	return nil
}

// AccessibleLayers computes, from the supplied identifiers, the set of
// layers a request may read or write — every layer whose required
// identifiers are all present, narrowest first.
func AccessibleLayers(ids Identifiers) []Layer {
	accessible := make([]Layer, 0, len(layerOrder))
	for _, layer := range layerOrder {
		if RequireIdentifiers(layer, ids) == nil {
			accessible = append(accessible, layer)
		}
	}
	return accessible
}
