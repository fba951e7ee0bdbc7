package sequencer

import (
	"strings"
	"testing"

	"github.com/Iron-Ham/shepherd/internal/state"
)

func info(s state.State, current int) state.MigrationStateInfo {
	return state.MigrationStateInfo{MigrationID: "migrate-x", State: s, CurrentStep: current}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name        string
		state       state.State
		current     int
		requested   int
		force       bool
		wantAllowed bool
		wantForced  bool
		wantCode    RejectCode
	}{
		{"pending current step", state.StatePending, 4, 4, false, true, false, CodeNone},
		{"pending skip ahead", state.StatePending, 4, 5, false, false, false, CodeInvalidTransition},
		{"pending go back", state.StatePending, 4, 2, false, false, false, CodeInvalidTransition},
		{"pending skip ahead forced", state.StatePending, 4, 5, true, true, true, CodeNone},
		{"pending current step with force is not forced", state.StatePending, 4, 4, true, true, false, CodeNone},
		{"paused retry current", state.StatePaused, 2, 2, false, true, false, CodeNone},
		{"paused other step", state.StatePaused, 2, 3, false, false, false, CodeInvalidTransition},
		{"paused other step forced", state.StatePaused, 2, 1, true, true, true, CodeNone},
		{"active continue", state.StateActive, 3, 3, false, true, false, CodeNone},
		{"active other step", state.StateActive, 3, 4, false, false, false, CodeAlreadyActive},
		{"active force does not override", state.StateActive, 3, 4, true, false, false, CodeAlreadyActive},
		{"completed", state.StateCompleted, 5, 5, false, false, false, CodeCompleted},
		{"completed forced", state.StateCompleted, 5, 6, true, false, false, CodeCompleted},
		{"zero step", state.StatePending, 1, 0, true, false, false, CodeInvalidStep},
		{"negative step", state.StatePending, 1, -2, false, false, false, CodeInvalidStep},
		{"unknown state", state.State("bogus"), 1, 1, true, false, false, CodeInvalidTransition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Validate(info(tt.state, tt.current), tt.requested, tt.force)
			if d.Allowed != tt.wantAllowed {
				t.Errorf("Allowed = %v, want %v (reason %q)", d.Allowed, tt.wantAllowed, d.Reason)
			}
			if d.Forced != tt.wantForced {
				t.Errorf("Forced = %v, want %v", d.Forced, tt.wantForced)
			}
			if d.Code != tt.wantCode {
				t.Errorf("Code = %q, want %q", d.Code, tt.wantCode)
			}
			if !d.Allowed && d.Reason == "" {
				t.Error("rejection must carry a reason")
			}
			if d.Allowed && d.Reason != "" {
				t.Errorf("allowed decision has reason %q", d.Reason)
			}
			if d.CurrentStep != tt.current || d.RequestedStep != tt.requested || d.State != tt.state {
				t.Errorf("decision context = %+v", d)
			}
		})
	}
}

func TestValidate_AfterThreeMergedSteps(t *testing.T) {
	current := info(state.StatePending, 4)

	if d := Validate(current, 4, false); !d.Allowed {
		t.Errorf("step 4 rejected: %s", d.Reason)
	}

	d := Validate(current, 5, false)
	if d.Allowed {
		t.Fatal("step 5 should be rejected")
	}
	if d.Code != CodeInvalidTransition {
		t.Errorf("Code = %q, want %q", d.Code, CodeInvalidTransition)
	}
	if !strings.Contains(d.Reason, "invalid transition") {
		t.Errorf("Reason = %q", d.Reason)
	}
}

func TestValidate_ActiveReason(t *testing.T) {
	d := Validate(info(state.StateActive, 7), 8, false)
	if d.Reason != "migration already active on step 7" {
		t.Errorf("Reason = %q", d.Reason)
	}
}
