// Package reconcile diffs candidate missions against their persisted state
// and decides what the writer must do.
package reconcile

import (
	"github.com/google/uuid"

	"github.com/sells-group/mission-sync/internal/model"
)

// Action is the persistence decision for one candidate.
type Action int

const (
	Noop Action = iota
	Create
	Update
)

func (a Action) String() string {
	switch a {
	case Create:
		return "create"
	case Update:
		return "update"
	}
	return "noop"
}

// Decision pairs a candidate with what to do about it.
type Decision struct {
	Action    Action
	Mission   *model.Mission
	Previous  *model.Mission
	Changes   model.Changes
	EventType model.EventType
}

// Engine reconciles candidates against persisted missions.
type Engine struct {
	// NewID assigns identifiers to created missions.
	NewID func() string
}

// NewEngine returns an engine assigning random UUIDs.
func NewEngine() *Engine {
	return &Engine{NewID: uuid.NewString}
}

// Reconcile decides, per candidate, whether to create, update or skip it.
// existing is keyed by clientId and only consulted for candidates; missions
// absent from the candidates are left to the cleanup sweeper. The output
// follows the candidate order.
func (e *Engine) Reconcile(candidates []*model.Mission, existing map[string]*model.Mission) []Decision {
	out := make([]Decision, 0, len(candidates))
	for _, m := range candidates {
		prev, ok := existing[m.ClientID]
		if !ok {
			if m.ID == "" {
				m.ID = e.NewID()
			}
			out = append(out, Decision{Action: Create, Mission: m, EventType: model.EventCreate})
			continue
		}

		m.ID = prev.ID
		changes := Diff(prev, m)
		if len(changes) == 0 {
			out = append(out, Decision{Action: Noop, Mission: m, Previous: prev})
			continue
		}
		out = append(out, Decision{
			Action:    Update,
			Mission:   m,
			Previous:  prev,
			Changes:   changes,
			EventType: ClassifyEvent(changes),
		})
	}
	return out
}

// ClassifyEvent returns delete when the only change is deletedAt becoming
// set, update otherwise. An undelete is an update.
func ClassifyEvent(changes model.Changes) model.EventType {
	if len(changes) != 1 {
		return model.EventUpdate
	}
	c, ok := changes["deletedAt"]
	if ok && c.Current != nil {
		return model.EventDelete
	}
	return model.EventUpdate
}

// Counts tallies decisions by action.
func Counts(decisions []Decision) (created, updated, unchanged int) {
	for _, d := range decisions {
		switch d.Action {
		case Create:
			created++
		case Update:
			updated++
		default:
			unchanged++
		}
	}
	return created, updated, unchanged
}
