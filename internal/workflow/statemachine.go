package workflow

import (
	sw "github.com/filanov/stateswitch"
	"github.com/pkg/errors"

	"beryll-workflow-backend/internal/fault"
	"beryll-workflow-backend/internal/model"
)

// Transition types accepted by the defect state machine.
const (
	TransitionStartDiagnosis   sw.TransitionType = "startDiagnosis"
	TransitionSetWaitingParts  sw.TransitionType = "setWaitingParts"
	TransitionStartRepair      sw.TransitionType = "startRepair"
	TransitionSendToRepair     sw.TransitionType = "sendToExternalRepair"
	TransitionReturnFromRepair sw.TransitionType = "returnFromExternalRepair"
	TransitionResolve          sw.TransitionType = "resolve"
	TransitionClose            sw.TransitionType = "close"
)

// defectState adapts a DefectRecord to the stateswitch interface. The machine
// only validates the move and flips Status; timestamps and side effects stay
// with the engine.
type defectState struct {
	rec *model.DefectRecord
}

func (d *defectState) State() sw.State {
	return sw.State(d.rec.Status)
}

func (d *defectState) SetState(state sw.State) error {
	d.rec.Status = model.DefectStatus(state)
	return nil
}

func newDefectStateMachine() sw.StateMachine {
	sm := sw.NewStateMachine()

	sm.AddTransition(sw.TransitionRule{
		TransitionType:   TransitionStartDiagnosis,
		SourceStates:     sw.States{sw.State(model.DefectNew)},
		DestinationState: sw.State(model.DefectDiagnosing),
	})
	sm.AddTransition(sw.TransitionRule{
		TransitionType: TransitionSetWaitingParts,
		SourceStates: sw.States{
			sw.State(model.DefectDiagnosing),
			sw.State(model.DefectWaitingParts),
		},
		DestinationState: sw.State(model.DefectWaitingParts),
	})
	sm.AddTransition(sw.TransitionRule{
		TransitionType: TransitionStartRepair,
		SourceStates: sw.States{
			sw.State(model.DefectDiagnosing),
			sw.State(model.DefectWaitingParts),
			sw.State(model.DefectReturned),
		},
		DestinationState: sw.State(model.DefectRepairing),
	})
	sm.AddTransition(sw.TransitionRule{
		TransitionType: TransitionSendToRepair,
		SourceStates: sw.States{
			sw.State(model.DefectDiagnosing),
			sw.State(model.DefectWaitingParts),
			sw.State(model.DefectRepairing),
		},
		DestinationState: sw.State(model.DefectSentToRepair),
	})
	sm.AddTransition(sw.TransitionRule{
		TransitionType:   TransitionReturnFromRepair,
		SourceStates:     sw.States{sw.State(model.DefectSentToRepair)},
		DestinationState: sw.State(model.DefectReturned),
	})
	sm.AddTransition(sw.TransitionRule{
		TransitionType: TransitionResolve,
		SourceStates: sw.States{
			sw.State(model.DefectRepairing),
			sw.State(model.DefectReturned),
		},
		DestinationState: sw.State(model.DefectResolved),
	})
	sm.AddTransition(sw.TransitionRule{
		TransitionType:   TransitionClose,
		SourceStates:     sw.States{sw.State(model.DefectResolved)},
		DestinationState: sw.State(model.DefectClosed),
	})

	return sm
}

// transition runs one state machine move on rec, mutating rec.Status on
// success. A rejected move maps to fault.ErrInvalidTransition.
func (e *Engine) transition(rec *model.DefectRecord, t sw.TransitionType) error {
	from := rec.Status
	if err := e.sm.Run(t, &defectState{rec: rec}, nil); err != nil {
		if errors.Is(err, sw.NoConditionPassedToRunTransaction) {
			return fault.InvalidTransition("defect record", string(from))
		}
		return errors.Wrapf(err, "transition %s from %s", t, from)
	}
	return nil
}
