package service

import (
	"github.com/officeflow/be-oa-approvals/internal/repository"
)

// Approver roles, as resolved by the API layer's authorization. READONLY
// holds no chain level; its users are only notified of large-amount outcomes.
const (
	RoleFactoryManager = "FACTORY_MANAGER"
	RoleDirector       = "DIRECTOR"
	RoleManager        = "MANAGER"
	RoleCEO            = "CEO"
	RoleReadonly       = "READONLY"
)

// Flow is a named approval topology: the ordered levels an application must
// pass through. Parallel review at one level is expressed by creating several
// PENDING approval rows for that level, not by a separate flow shape.
type Flow struct {
	Name   string
	Levels []repository.Level
}

// DefaultFlowName is used when a submission names no flow.
const DefaultFlowName = "standard"

// flows is the compiled-in flow registry. The chain is data consumed by the
// state machine; adding a topology means adding an entry here.
var flows = map[string]Flow{
	"standard": {
		Name: "standard",
		Levels: []repository.Level{
			repository.LevelFactory,
			repository.LevelDirector,
			repository.LevelManager,
			repository.LevelCEO,
		},
	},
	// Business trips need only a director's sign-off.
	"business_trip": {
		Name:   "business_trip",
		Levels: []repository.Level{repository.LevelDirector},
	},
	// Feasibility assessments skip the factory floor entirely.
	"feasibility": {
		Name: "feasibility",
		Levels: []repository.Level{
			repository.LevelDirector,
			repository.LevelManager,
		},
	},
}

// FlowByName returns the named flow, falling back to the standard chain.
func FlowByName(name string) Flow {
	if f, ok := flows[name]; ok {
		return f
	}
	return flows[DefaultFlowName]
}

// EffectiveChain resolves the realized chain for one application: the flow's
// levels, with CEO appended when the amount exceeds the approval threshold
// (threshold in major currency units, amount in cents).
func EffectiveChain(flow Flow, amountCents *int64, ceoThreshold int64) []repository.Level {
	chain := make([]repository.Level, len(flow.Levels))
	copy(chain, flow.Levels)

	if amountCents == nil || ceoThreshold <= 0 {
		return chain
	}
	if *amountCents <= ceoThreshold*100 {
		return chain
	}
	for _, l := range chain {
		if l == repository.LevelCEO {
			return chain
		}
	}
	return append(chain, repository.LevelCEO)
}

// NextLevel returns the level after current in the chain, nil when current is
// the last one.
func NextLevel(chain []repository.Level, current repository.Level) *repository.Level {
	for i, l := range chain {
		if l == current && i+1 < len(chain) {
			next := chain[i+1]
			return &next
		}
	}
	return nil
}

// DownstreamLevels returns the levels strictly after the given one in the chain.
func DownstreamLevels(chain []repository.Level, level repository.Level) []repository.Level {
	for i, l := range chain {
		if l == level {
			out := make([]repository.Level, len(chain)-i-1)
			copy(out, chain[i+1:])
			return out
		}
	}
	return nil
}

// RoleForLevel maps a chain level to the role that owns it.
func RoleForLevel(l repository.Level) string {
	switch l {
	case repository.LevelFactory:
		return RoleFactoryManager
	case repository.LevelDirector:
		return RoleDirector
	case repository.LevelManager:
		return RoleManager
	case repository.LevelCEO:
		return RoleCEO
	}
	return ""
}

// LevelForStatus maps a PENDING_* status to its chain level.
func LevelForStatus(s repository.Status) (repository.Level, bool) {
	switch s {
	case repository.StatusPendingFactory:
		return repository.LevelFactory, true
	case repository.StatusPendingDirector:
		return repository.LevelDirector, true
	case repository.StatusPendingManager:
		return repository.LevelManager, true
	case repository.StatusPendingCEO:
		return repository.LevelCEO, true
	}
	return "", false
}

// RoleForStatus returns the role authorized to act on a PENDING_* status.
func RoleForStatus(s repository.Status) string {
	if l, ok := LevelForStatus(s); ok {
		return RoleForLevel(l)
	}
	return ""
}
