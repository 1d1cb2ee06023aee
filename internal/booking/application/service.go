package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmehra2102/test-booking-service/internal/booking/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

type BookRequest struct {
	Region             string          `json:"region"`
	Remit              domain.Remit    `json:"remit"`
	CandidateID        string          `json:"candidateId"`
	PersonReference    string          `json:"personReference"`
	TestCentreID       string          `json:"testCentreId"`
	TestType           domain.TestType `json:"testType"`
	StartDateTime      string          `json:"startDateTime"`
	ReceiptReference   string          `json:"receiptReference"`
	Notes              string          `json:"notes"`
	BehaviouralMarkers string          `json:"behaviouralMarkers"`
	Metadata           domain.Metadata `json:"metadata"`
}

// RescheduleRequest moves a confirmed booking to a new start time at the same
// centre. HeldReservationID is a reservation already taken for this booking
// that has to be released before a new one is made.
type RescheduleRequest struct {
	BookingID          string `json:"bookingId"`
	StartDateTime      string `json:"startDateTime"`
	HeldReservationID  string `json:"heldReservationId,omitempty"`
	Notes              string `json:"notes"`
	BehaviouralMarkers string `json:"behaviouralMarkers"`
}

type MetadataChangeRequest struct {
	BookingID string          `json:"bookingId"`
	Metadata  domain.Metadata `json:"metadata"`
}

type Orchestrator struct {
	log         *slog.Logger
	scheduling  SchedulingClient
	payments    PaymentClient
	records     RecordStore
	queue       CompensationQueue
	telemetry   Telemetry
	tracer      trace.Tracer
	now         func() time.Time
	stepTimeout time.Duration
}

type Option func(*Orchestrator)

func WithCompensationQueue(q CompensationQueue) Option {
	return func(o *Orchestrator) { o.queue = q }
}

func WithTelemetry(t Telemetry) Option {
	return func(o *Orchestrator) { o.telemetry = t }
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// DefaultStepTimeout bounds one forward step including its transport retries.
const DefaultStepTimeout = 45 * time.Second

// WithStepTimeout bounds each forward step. Zero leaves steps unbounded.
func WithStepTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.stepTimeout = d }
}

func NewOrchestrator(log *slog.Logger, scheduling SchedulingClient, payments PaymentClient, records RecordStore, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		log:         log,
		scheduling:  scheduling,
		payments:    payments,
		records:     records,
		tracer:      otel.Tracer("booking-orchestrator"),
		now:         func() time.Time { return time.Now().UTC() },
		stepTimeout: DefaultStepTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Orchestrator) AvailableSlots(ctx context.Context, q domain.SlotQuery) ([]domain.Slot, error) {
	return o.scheduling.AvailableSlots(ctx, q)
}

func (o *Orchestrator) ProviderBooking(ctx context.Context, region, bookingProductRef string) (domain.ProviderBooking, error) {
	return o.scheduling.GetBooking(ctx, region, bookingProductRef)
}

// Book runs a new booking through reserve, draft, payment, slot confirmation
// and the final record update.
func (o *Orchestrator) Book(ctx context.Context, req BookRequest) (*Result, error) {
	run := newRun(domain.OperationNewBooking, req.Region)
	steps := []step{
		o.reserve(req.TestCentreID, req.TestType, req.StartDateTime),
		{
			stage:   StageRecordDraft,
			system:  SystemRecords,
			reached: domain.StateRecorded,
			run: func(ctx context.Context, s *sagaRun) error {
				rec, err := o.records.CreateDraft(ctx, domain.DraftRequest{
					CandidateID:     req.CandidateID,
					PersonReference: req.PersonReference,
					ReservationID:   s.reservation.ReservationID,
					TestCentreID:    req.TestCentreID,
					TestType:        req.TestType,
					StartDateTime:   s.reservation.StartDateTime,
					Region:          req.Region,
					Remit:           req.Remit,
					Metadata:        req.Metadata,
				})
				if err != nil {
					return err
				}
				s.record = rec
				s.saga.BookingID = rec.BookingID
				return nil
			},
		},
		{
			stage:   StageConfirmPayment,
			system:  SystemPayment,
			reached: domain.StatePaymentConfirmed,
			run: func(ctx context.Context, s *sagaRun) error {
				pc, err := o.payments.Confirm(ctx, req.ReceiptReference, req.CandidateID, req.PersonReference)
				if err != nil {
					return err
				}
				s.paymentID = pc.PaymentID
				return pc.Failure()
			},
		},
		o.confirmSlot(req.Notes, req.BehaviouralMarkers),
		o.recordConfirmed(req.Remit),
	}
	return o.execute(ctx, run, steps)
}

// Reschedule swaps the slot of a confirmed booking. The old provider booking
// is withdrawn only after the new slot is held.
func (o *Orchestrator) Reschedule(ctx context.Context, req RescheduleRequest) (*Result, error) {
	run := newRun(domain.OperationReschedule, "")
	steps := []step{
		o.load(req.BookingID),
		{
			stage:  StageReleasePrevious,
			system: SystemScheduling,
			run: func(ctx context.Context, s *sagaRun) error {
				if req.HeldReservationID == "" {
					return nil
				}
				return o.scheduling.DeleteReservation(ctx, s.region, req.HeldReservationID, s.record.BookingProductRef)
			},
		},
		{
			stage:   StageReserve,
			system:  SystemScheduling,
			reached: domain.StateReserved,
			run: func(ctx context.Context, s *sagaRun) error {
				return o.reserve(s.record.TestCentreID, s.record.TestType, req.StartDateTime).run(ctx, s)
			},
		},
		o.markChange(),
		{
			stage:   StageWithdrawBooking,
			system:  SystemScheduling,
			binding: true,
			run: func(ctx context.Context, s *sagaRun) error {
				return o.scheduling.DeleteBooking(ctx, s.region, s.record.BookingProductRef)
			},
		},
		o.confirmSlot(req.Notes, req.BehaviouralMarkers),
		{
			stage:  StageRecordConfirmed,
			system: SystemRecords,
			run: func(ctx context.Context, s *sagaRun) error {
				return o.recordConfirmed(s.record.Remit).run(ctx, s)
			},
		},
	}
	return o.execute(ctx, run, steps)
}

// ChangeMetadata updates voiceover, BSL or notes on a confirmed booking
// without touching its slot.
func (o *Orchestrator) ChangeMetadata(ctx context.Context, req MetadataChangeRequest) (*Result, error) {
	run := newRun(domain.OperationMetadataChange, "")
	steps := []step{
		o.load(req.BookingID),
		o.markChange(),
		{
			stage:  StageApplyMetadata,
			system: SystemRecords,
			run: func(ctx context.Context, s *sagaRun) error {
				if err := o.records.UpdateMetadata(ctx, s.record.BookingID, s.record.BookingProductID, req.Metadata); err != nil {
					return err
				}
				s.record.Metadata = req.Metadata
				return nil
			},
		},
		{
			stage:  StageRecordConfirmed,
			system: SystemRecords,
			run: func(ctx context.Context, s *sagaRun) error {
				if err := o.records.SetStatus(ctx, s.record.BookingID, s.record.BookingProductID, domain.StatusConfirmed, nil); err != nil {
					return err
				}
				s.record.Status = domain.StatusConfirmed
				return nil
			},
		},
	}
	return o.execute(ctx, run, steps)
}

func (o *Orchestrator) reserve(centreID string, testType domain.TestType, startDateTime string) step {
	return step{
		stage:   StageReserve,
		system:  SystemScheduling,
		reached: domain.StateReserved,
		run: func(ctx context.Context, s *sagaRun) error {
			res, err := o.scheduling.ReserveSlot(ctx, s.region, centreID, testType, startDateTime)
			if err != nil {
				return err
			}
			if res.ReservedAt.IsZero() {
				res.ReservedAt = o.now()
			}
			s.reservation = &res
			o.log.Info("slot reserved",
				"reservation_id", res.ReservationID,
				"test_centre_id", centreID,
				"start_date_time", res.StartDateTime,
				"lock_time_seconds", res.LockTimeSeconds,
			)
			return nil
		},
	}
}

func (o *Orchestrator) load(bookingID string) step {
	return step{
		stage:  StageLoadRecord,
		system: SystemRecords,
		run: func(ctx context.Context, s *sagaRun) error {
			rec, err := o.records.Get(ctx, bookingID)
			if err != nil {
				return err
			}
			if rec.Status != domain.StatusConfirmed {
				return &domain.Error{
					Kind: domain.KindInvalidInput,
					Op:   "load booking",
					Err:  fmt.Errorf("booking %s is %s, want %s", rec.BookingID, rec.Status, domain.StatusConfirmed),
				}
			}
			s.record = rec
			s.region = rec.Region
			s.saga.BookingID = rec.BookingID
			if rec.PaymentID != nil {
				s.paymentID = *rec.PaymentID
			}
			return nil
		},
	}
}

func (o *Orchestrator) markChange() step {
	return step{
		stage:   StageMarkChange,
		system:  SystemRecords,
		reached: domain.StateRecorded,
		run: func(ctx context.Context, s *sagaRun) error {
			if err := o.records.SetStatus(ctx, s.record.BookingID, s.record.BookingProductID, domain.StatusChangeInProgress, nil); err != nil {
				return err
			}
			s.record.Status = domain.StatusChangeInProgress
			return nil
		},
	}
}

func (o *Orchestrator) confirmSlot(notes, markers string) step {
	return step{
		stage:   StageConfirmSlot,
		system:  SystemScheduling,
		reached: domain.StateSlotConfirmed,
		binding: true,
		run: func(ctx context.Context, s *sagaRun) error {
			res := s.reservation
			if res.Expired(o.now()) {
				o.log.Warn("reservation lock elapsed before confirm",
					"reservation_id", res.ReservationID,
					"reserved_at", res.ReservedAt,
					"lock_time_seconds", res.LockTimeSeconds,
				)
			}
			s.confirmIssued = true
			receipts, err := o.scheduling.ConfirmBooking(ctx, s.region, []domain.SlotBookingRequest{{
				BookingReferenceID: s.record.BookingProductRef,
				ReservationID:      res.ReservationID,
				Notes:              notes,
				BehaviouralMarkers: markers,
			}})
			if err != nil {
				return err
			}
			return checkReceipts(receipts, res.ReservationID)
		},
	}
}

func (o *Orchestrator) recordConfirmed(remit domain.Remit) step {
	return step{
		stage:  StageRecordConfirmed,
		system: SystemRecords,
		run: func(ctx context.Context, s *sagaRun) error {
			res := s.reservation
			deadline, err := o.records.RefundDeadline(ctx, res.StartDateTime, remit)
			if err != nil {
				return err
			}
			err = o.records.Confirm(ctx, domain.ConfirmRequest{
				BookingID:        s.record.BookingID,
				BookingProductID: s.record.BookingProductID,
				ReservationID:    res.ReservationID,
				StartDateTime:    res.StartDateTime,
				PaymentID:        s.paymentID,
				LastRefundDate:   deadline,
			})
			if err != nil {
				return err
			}
			s.record.Status = domain.StatusConfirmed
			s.record.ReservationID = res.ReservationID
			s.record.StartDateTime = res.StartDateTime
			s.record.LastRefundDate = &deadline
			if s.paymentID != "" {
				pid := s.paymentID
				s.record.PaymentID = &pid
			}
			return nil
		},
	}
}

// checkReceipts wants a receipt for reservationID with an explicit success
// status. A receipt without a reservation id only counts when it is the only one.
func checkReceipts(receipts []domain.SlotBookingReceipt, reservationID string) error {
	for _, r := range receipts {
		switch {
		case r.ReservationID == reservationID:
		case r.ReservationID == "" && len(receipts) == 1:
		default:
			continue
		}
		if r.OK() {
			return nil
		}
		if r.Status == "" {
			break
		}
		return &domain.Error{
			Kind: domain.KindConflict,
			Op:   "confirm booking",
			Err:  fmt.Errorf("reservation %s: %s %s", reservationID, r.Status, r.Message),
		}
	}
	return &domain.Error{
		Kind: domain.KindUnknown,
		Op:   "confirm booking",
		Err:  errors.New("no confirmed receipt for reservation " + reservationID),
	}
}
