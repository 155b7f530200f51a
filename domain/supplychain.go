package domain

import (
	"fmt"
	"strings"
)

// SupplyChainPlugin is the reference domain implementation: it recognizes
// the transaction type names used by the rest of the module as entity
// types, and requires a batch/item identifier predicate in the submitted
// RDF before admitting an entity — the shape a SupplyItem-style resource
// would describe (id, location, status) rather than a 20-byte address-keyed
// record.
type SupplyChainPlugin struct {
	id		string
	name		string
	validTypes	map[string]bool
	requiredPred	string
}

// NewSupplyChainPlugin constructs the reference plugin. requiredPred names
// the RDF predicate every entity's data must contain (e.g.
// "http://provchain.org/ontology#hasBatchID") for the entity to be
// considered well-formed for this domain.
func NewSupplyChainPlugin(requiredPred string) *SupplyChainPlugin {
	return &SupplyChainPlugin{
		id: "supply-chain",
		name: "Generic Supply Chain",
		validTypes: map[string]bool{
			"Production": true, "Processing": true, "Transport": true,
			"Quality": true, "Transfer": true, "Environmental": true, "Compliance": true,
		},
		requiredPred: requiredPred,
	}
}

func (p *SupplyChainPlugin) DomainID() string { return p.id }
func (p *SupplyChainPlugin) Name() string { return p.name }

func (p *SupplyChainPlugin) IsValidEntityType(entityType string) bool {
	return p.validTypes[entityType]
}

// ValidateEntity rejects entity types this domain does not recognize and
// warns (rather than rejects) when the RDF payload is missing the
// configured identifying predicate.
func (p *SupplyChainPlugin) ValidateEntity(data EntityData) ValidationResult {
	if !p.IsValidEntityType(data.EntityType) {
		return ValidationResult{Outcome: Invalid, Reason: fmt.Sprintf("entity type %q is not recognized by domain %s", data.EntityType, p.id)}
	}
	if p.requiredPred != "" && !strings.Contains(data.RDFData, p.requiredPred) {
		return ValidationResult{Outcome: Warning, Reason: fmt.Sprintf("entity data does not reference %s", p.requiredPred)}
	}
	return ValidationResult{Outcome: Valid}
}

// ProcessEntity produces a domain-annotated summary of the entity; it does
// not mutate the underlying transaction.
func (p *SupplyChainPlugin) ProcessEntity(data EntityData) ProcessedEntity {
	return ProcessedEntity{
		EntityID: data.EntityID,
		EntityType: data.EntityType,
		ProcessedData: data.RDFData,
		DomainContext: p.id,
	}
}
