// Package sequencer decides whether a requested step may run now.
//
// A rejection is a structured Decision, not an error: callers branch on
// Decision.Allowed and surface Decision.Reason.
package sequencer

import (
	"fmt"

	"github.com/Iron-Ham/shepherd/internal/state"
)

// RejectCode classifies why a request was refused.
type RejectCode string

const (
	CodeNone              RejectCode = ""
	CodeAlreadyActive     RejectCode = "already_active"
	CodeInvalidTransition RejectCode = "invalid_transition"
	CodeCompleted         RejectCode = "migration_completed"
	CodeInvalidStep       RejectCode = "invalid_step"
)

// Decision is the outcome of validating a step request.
type Decision struct {
	Allowed bool `json:"allowed"`
	// Forced is set when the request was allowed only because of the override flag.
	Forced        bool        `json:"forced"`
	Code          RejectCode  `json:"code,omitempty"`
	Reason        string      `json:"reason,omitempty"`
	MigrationID   string      `json:"migration_id"`
	State         state.State `json:"state"`
	CurrentStep   int         `json:"current_step"`
	RequestedStep int         `json:"requested_step"`
}

// Validate checks requested against info. Both the next step and the legality
// of the request come from the same info, so callers must pass the snapshot
// they will act on rather than recomputing it.
//
//   - active: only the in-flight step is allowed; force does not apply
//   - pending or paused: the current step is allowed; any other step needs force
//   - completed: every request is rejected
func Validate(info state.MigrationStateInfo, requested int, force bool) Decision {
	d := Decision{
		MigrationID:   info.MigrationID,
		State:         info.State,
		CurrentStep:   info.CurrentStep,
		RequestedStep: requested,
	}

	if requested < 1 {
		return d.reject(CodeInvalidStep, fmt.Sprintf("step must be at least 1, got %d", requested))
	}

	switch info.State {
	case state.StateCompleted:
		return d.reject(CodeCompleted, "migration is completed")

	case state.StateActive:
		if requested == info.CurrentStep {
			return d.allow(false)
		}
		return d.reject(CodeAlreadyActive,
			fmt.Sprintf("migration already active on step %d", info.CurrentStep))

	case state.StatePending, state.StatePaused:
		if requested == info.CurrentStep {
			return d.allow(false)
		}
		if force {
			return d.allow(true)
		}
		return d.reject(CodeInvalidTransition,
			fmt.Sprintf("invalid transition: next step is %d, requested %d (use force to override)",
				info.CurrentStep, requested))
	}

	return d.reject(CodeInvalidTransition, fmt.Sprintf("unknown migration state %q", info.State))
}

func (d Decision) allow(forced bool) Decision {
	d.Allowed = true
	d.Forced = forced
	return d
}

func (d Decision) reject(code RejectCode, reason string) Decision {
	d.Allowed = false
	d.Code = code
	d.Reason = reason
	return d
}
