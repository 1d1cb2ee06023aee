package application

import "github.com/dmehra2102/test-booking-service/internal/booking/domain"

type Stage string

const (
	StageLoadRecord      Stage = "load_record"
	StageReleasePrevious Stage = "release_previous"
	StageReserve         Stage = "reserve"
	StageRecordDraft     Stage = "record_draft"
	StageConfirmPayment  Stage = "confirm_payment"
	StageMarkChange      Stage = "mark_change"
	StageWithdrawBooking Stage = "withdraw_booking"
	StageApplyMetadata   Stage = "apply_metadata"
	StageConfirmSlot     Stage = "confirm_slot"
	StageRecordConfirmed Stage = "record_confirmed"
	// StageCancelled is where a saga lands when the caller gives up between steps.
	StageCancelled Stage = "cancelled"
)

type Outcome string

const (
	OutcomeConfirmed          Outcome = "confirmed"
	OutcomeInvalidSlot        Outcome = "invalid_slot"
	OutcomeSlotUnavailable    Outcome = "slot_unavailable"
	OutcomePaymentCancelled   Outcome = "payment_cancelled"
	OutcomePaymentDeclined    Outcome = "payment_declined"
	OutcomePaymentError       Outcome = "payment_error"
	OutcomeConfirmFailed      Outcome = "confirm_failed"
	OutcomeServiceUnavailable Outcome = "service_unavailable"
	OutcomeFailed             Outcome = "failed"
)

func (o Outcome) Message() string {
	switch o {
	case OutcomeConfirmed:
		return "Your booking is confirmed."
	case OutcomeInvalidSlot:
		return "That time is not valid. Please choose another slot."
	case OutcomeSlotUnavailable:
		return "That slot has just been taken. Please choose another slot."
	case OutcomePaymentCancelled:
		return "Your payment was cancelled. No booking has been made."
	case OutcomePaymentDeclined:
		return "Your payment was not successful. No booking has been made."
	case OutcomePaymentError:
		return "There was a problem taking your payment. No booking has been made."
	case OutcomeConfirmFailed:
		return "We could not confirm your booking. Please try again."
	case OutcomeServiceUnavailable:
		return "Sorry, the service is unavailable. Please contact us before booking again."
	default:
		return "Something went wrong. Please try again."
	}
}

// Compensation is what the saga does after a stage fails.
type Compensation struct {
	Release      bool
	Rewind       domain.BookingStatus
	Fatal        bool
	Outcome      Outcome
	RetryAllowed bool
}

// Compensate maps a failure point and the failure's kind to the compensating
// action. It never releases a reservation once a confirm has been attempted.
func Compensate(op domain.Operation, stage Stage, err error) Compensation {
	kind := domain.KindOf(err)
	failed := Compensation{Outcome: OutcomeFailed, RetryAllowed: transient(kind)}

	switch stage {
	case StageLoadRecord, StageReleasePrevious:
		return failed

	case StageReserve:
		switch kind {
		case domain.KindInvalidSlot:
			return Compensation{Outcome: OutcomeInvalidSlot, RetryAllowed: true}
		case domain.KindSlotUnavailable:
			return Compensation{Outcome: OutcomeSlotUnavailable, RetryAllowed: true}
		}
		return failed

	case StageRecordDraft:
		failed.Release = true
		return failed

	case StageConfirmPayment:
		c := Compensation{Release: true}
		switch kind {
		case domain.KindPaymentUserCancelled:
			c.Rewind, c.Outcome = domain.StatusAbandonedNonRecoverable, OutcomePaymentCancelled
		case domain.KindPaymentGateway, domain.KindPaymentUnsuccessful:
			c.Rewind, c.Outcome = domain.StatusDraft, OutcomePaymentDeclined
		default:
			c.Rewind, c.Outcome = domain.StatusSystemErrorNonRecoverable, OutcomePaymentError
		}
		return c

	case StageMarkChange, StageWithdrawBooking, StageApplyMetadata:
		failed.Release = op == domain.OperationReschedule
		failed.Rewind = domain.StatusConfirmed
		return failed

	case StageConfirmSlot:
		return Compensation{Rewind: domain.StatusDraft, Outcome: OutcomeConfirmFailed, RetryAllowed: true}

	case StageCancelled:
		c := Compensation{Release: true, Rewind: domain.StatusConfirmed, Outcome: OutcomeFailed, RetryAllowed: true}
		if op == domain.OperationNewBooking {
			c.Rewind = domain.StatusDraft
		}
		return c

	case StageRecordConfirmed:
		if op == domain.OperationMetadataChange {
			failed.Rewind = domain.StatusConfirmed
			return failed
		}
		return Compensation{Fatal: true, Outcome: OutcomeServiceUnavailable}
	}
	return failed
}

func transient(kind domain.Kind) bool {
	return kind.Retryable() || kind == domain.KindCrmServer || kind == domain.KindConflict
}
