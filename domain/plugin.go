// Package domain implements the DomainPlugin hook: a pluggable
// validation/processing extension point the TransactionBlockchain consults
// before pool admission, plus a reference supply-chain plugin.
package domain

import "sync"

// Outcome is the tagged result of Plugin.ValidateEntity.
type Outcome int

const (
	Valid Outcome = iota
	Invalid
	Warning
)

func (o Outcome) String() string {
	switch o {
	case Valid:
		return "Valid"
	case Invalid:
		return "Invalid"
	case Warning:
		return "Warning"
	default:
		return "Unknown"
	}
}

// ValidationResult pairs an Outcome with its reason, which is empty for
// Valid.
type ValidationResult struct {
	Outcome	Outcome
	Reason	string
}

// EntityData is the shape a plugin validates and processes.
type EntityData struct {
	EntityID	string
	EntityType	string
	RDFData		string
	Metadata	map[string]string
}

// ProcessedEntity is the output of Plugin.ProcessEntity.
type ProcessedEntity struct {
	EntityID	string
	EntityType	string
	ProcessedData	string
	DomainContext	string
}

// Plugin is the domain-specific validation/processing extension point
// consulted before transaction pool admission.
type Plugin interface {
	DomainID() string
	Name() string
	IsValidEntityType(entityType string) bool
	ValidateEntity(data EntityData) ValidationResult
	ProcessEntity(data EntityData) ProcessedEntity
}

// Registry holds registered domains; exactly one may be active at a time.
type Registry struct {
	mu		sync.RWMutex
	plugins		map[string]Plugin
	activeID	string
}

// NewRegistry constructs an empty domain registry.
func NewRegistry() *Registry {
	return &Registry{plugins: make(map[string]Plugin)}
}

// Register adds p to the registry under its DomainID.
func (r *Registry) Register(p Plugin) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plugins[p.DomainID()] = p
}

// Activate makes the plugin identified by domainID the active one.
// Returns false if no such plugin is registered.
func (r *Registry) Activate(domainID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.plugins[domainID]; !ok {
		return false
	}
	r.activeID = domainID
	return true
}

// Active returns the currently active plugin, if any.
func (r *Registry) Active() (Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.activeID == "" {
		return nil, false
	}
	p, ok := r.plugins[r.activeID]
	return p, ok
}
