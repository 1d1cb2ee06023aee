package domain

import "time"

type SagaState string

const (
	StateIdle             SagaState = "idle"
	StateReserved         SagaState = "reserved"
	StateRecorded         SagaState = "recorded"
	StatePaymentConfirmed SagaState = "payment_confirmed"
	StateSlotConfirmed    SagaState = "slot_confirmed"
	StateCompleted        SagaState = "completed"
	StateCompensating     SagaState = "compensating"
	StateCompensated      SagaState = "compensated"
	StateFailed           SagaState = "failed"
)

type Operation string

const (
	OperationNewBooking     Operation = "new_booking"
	OperationReschedule     Operation = "reschedule"
	OperationMetadataChange Operation = "metadata_change"
)

type Transition struct {
	From  SagaState
	To    SagaState
	Stage string
	At    time.Time
}

type Saga struct {
	BookingID   string
	Operation   Operation
	State       SagaState
	Stage       string
	Transitions []Transition
}

func NewSaga(op Operation) *Saga {
	return &Saga{Operation: op, State: StateIdle}
}

func (s *Saga) Move(to SagaState, stage string, at time.Time) {
	s.Transitions = append(s.Transitions, Transition{From: s.State, To: to, Stage: stage, At: at})
	s.State = to
	s.Stage = stage
}

func (s *Saga) Terminal() bool {
	switch s.State {
	case StateCompleted, StateCompensated, StateFailed:
		return true
	}
	return false
}
