// Package wallet implements the Participant/Wallet/WalletManager model:
// keypair custody, the role-based permission matrix gating admission, and
// encrypted-at-rest wallet persistence.
package wallet

import (
	"time"

	"github.com/google/uuid"
)

// Type enumerates the participant roles.
type Type string

const (
	Producer		Type	= "Producer"
	Manufacturer		Type	= "Manufacturer"
	LogisticsProvider	Type	= "LogisticsProvider"
	QualityLab		Type	= "QualityLab"
	Auditor			Type	= "Auditor"
	Retailer		Type	= "Retailer"
	Administrator		Type	= "Administrator"
)

// Capability names one of the gated transaction-admission abilities of
// this package.
type Capability string

const (
	CapProduce	Capability	= "produce"
	CapProcess	Capability	= "process"
	CapTransport	Capability	= "transport"
	CapQualityTest	Capability	= "quality_test"
	CapAudit	Capability	= "audit"
	CapTransfer	Capability	= "transfer"
)

// defaultPermissions is the fixed per-type capability matrix.
var defaultPermissions = map[Type]map[Capability]bool{
	Producer: {CapProduce: true, CapTransfer: true},
	Manufacturer: {CapProcess: true, CapTransfer: true},
	LogisticsProvider: {CapTransport: true, CapTransfer: true},
	QualityLab: {CapQualityTest: true},
	Auditor: {CapAudit: true},
	Retailer: {CapTransfer: true},
	Administrator: {
		CapProduce: true, CapProcess: true, CapTransport: true,
		CapQualityTest: true, CapAudit: true, CapTransfer: true,
	},
}

// Participant is a named actor in the supply chain, carrying the
// capability matrix that gates transaction admission.
type Participant struct {
	ID		string			`json:"id"`
	Name		string			`json:"name"`
	Type		Type			`json:"type"`
	Contact		string			`json:"contact"`
	Location	*string			`json:"location,omitempty"`
	Permissions	map[Capability]bool	`json:"permissions"`
	Certificates	[]string		`json:"certificates"`
	RegisteredAt	string			`json:"registered_at"`
	LastActivity	*string			`json:"last_activity,omitempty"`
	Reputation	float64			`json:"reputation"`
	Metadata	map[string]string	`json:"metadata,omitempty"`
}

// NewParticipant constructs a Participant with a fresh UUID and the fixed
// permission matrix for typ, reputation seeded at 1.0.
func NewParticipant(name string, typ Type, contact string) *Participant {
	perms := make(map[Capability]bool, len(defaultPermissions[typ]))
	for cap, ok := range defaultPermissions[typ] {
		perms[cap] = ok
	}
	return &Participant{
		ID: uuid.NewString(),
		Name: name,
		Type: typ,
		Contact: contact,
		Permissions: perms,
		RegisteredAt: time.Now().UTC().Format(time.RFC3339),
		Reputation: 1.0,
	}
}

// HasCapability reports whether p is permitted the given capability.
func (p *Participant) HasCapability(c Capability) bool {
	return p.Permissions[c]
}

// Touch updates LastActivity to now, recording that the participant
// originated or signed a transaction.
func (p *Participant) Touch() {
	now := time.Now().UTC().Format(time.RFC3339)
	p.LastActivity = &now
}

// RequiredCapability maps a transaction type name to the capability the
// first signer's Participant must hold. The bool is false for transaction
// types with no gating capability (Environmental, Governance and any
// unrecognized name), which Manager.CheckCapability treats as "always
// permitted".
func RequiredCapability(txType string) (Capability, bool) {
	switch txType {
	case "Production":
		return CapProduce, true
	case "Processing":
		return CapProcess, true
	case "Transport":
		return CapTransport, true
	case "Quality":
		return CapQualityTest, true
	case "Compliance":
		return CapAudit, true
	case "Transfer":
		return CapTransfer, true
	default:
		return "", false
	}
}
