package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmehra2102/test-booking-service/internal/booking/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Result is what the caller of an operation gets back, alongside the original
// error when the operation did not complete.
type Result struct {
	Outcome      Outcome
	RetryAllowed bool
	Record       domain.BookingRecord
	Reservation  *domain.Reservation
	State        domain.SagaState
}

// step is one forward action. reached is the saga state after it succeeds;
// empty leaves the state as is. Once a binding step has started the saga runs
// to its end whatever the caller does.
type step struct {
	stage   Stage
	system  System
	reached domain.SagaState
	binding bool
	run     func(ctx context.Context, s *sagaRun) error
}

// sagaRun carries everything one saga instance learns along the way.
type sagaRun struct {
	saga        *domain.Saga
	region      string
	record      domain.BookingRecord
	reservation *domain.Reservation
	paymentID   string
	// confirmIssued is set before confirmBooking goes on the wire. From then on
	// the reservation belongs to the provider.
	confirmIssued bool
	// bound is set when the first binding step starts. Caller cancellation is
	// ignored from then on.
	bound bool
}

func newRun(op domain.Operation, region string) *sagaRun {
	return &sagaRun{saga: domain.NewSaga(op), region: region}
}

func (s *sagaRun) result(o Outcome, retry bool) *Result {
	return &Result{
		Outcome:      o,
		RetryAllowed: retry,
		Record:       s.record,
		Reservation:  s.reservation,
		State:        s.saga.State,
	}
}

func (o *Orchestrator) execute(ctx context.Context, run *sagaRun, steps []step) (*Result, error) {
	ctx, span := o.tracer.Start(ctx, "saga."+string(run.saga.Operation))
	defer span.End()

	// Steps never see the caller's cancellation; each gets its own deadline.
	// The caller can only stop the saga between steps, before it is bound.
	detached := context.WithoutCancel(ctx)

	for _, st := range steps {
		if !run.bound && ctx.Err() != nil {
			return o.abandon(ctx, run, st.stage, ctx.Err())
		}
		if st.binding {
			run.bound = true
		}
		stepCtx, cancel := o.stepContext(detached)
		stepCtx, stepSpan := o.tracer.Start(stepCtx, string(st.stage))
		err := st.run(stepCtx, run)
		cancel()
		if err != nil {
			stepSpan.RecordError(err)
			stepSpan.SetStatus(codes.Error, err.Error())
			stepSpan.End()
			o.report(ctx, st.system, st.stage, err)
			return o.compensate(ctx, run, st.stage, err)
		}
		stepSpan.End()
		if st.reached != "" {
			o.move(ctx, run, st.reached, st.stage)
		}
	}
	o.move(ctx, run, domain.StateCompleted, "")
	return run.result(OutcomeConfirmed, false), nil
}

func (o *Orchestrator) stepContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.stepTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, o.stepTimeout)
}

// abandon winds the saga back when the caller went away before next started.
func (o *Orchestrator) abandon(ctx context.Context, run *sagaRun, next Stage, cause error) (*Result, error) {
	o.log.Info("saga abandoned by caller",
		"operation", run.saga.Operation,
		"booking_id", run.saga.BookingID,
		"state", run.saga.State,
		"next_stage", next,
	)
	if run.saga.State == domain.StateIdle {
		o.move(ctx, run, domain.StateFailed, next)
		return run.result(OutcomeFailed, true), fmt.Errorf("%s %s: %w", run.saga.Operation, StageCancelled, cause)
	}
	return o.compensate(ctx, run, StageCancelled, cause)
}

func (o *Orchestrator) move(ctx context.Context, run *sagaRun, to domain.SagaState, stage Stage) {
	from := run.saga.State
	run.saga.Move(to, string(stage), o.now())
	trace.SpanFromContext(ctx).AddEvent("saga.transition", trace.WithAttributes(
		attribute.String("from", string(from)),
		attribute.String("to", string(to)),
		attribute.String("stage", string(stage)),
	))
	o.log.Debug("saga transition",
		"operation", run.saga.Operation,
		"booking_id", run.saga.BookingID,
		"from", from,
		"to", to,
		"stage", stage,
	)
}

func (o *Orchestrator) compensate(ctx context.Context, run *sagaRun, stage Stage, cause error) (*Result, error) {
	c := Compensate(run.saga.Operation, stage, cause)
	err := fmt.Errorf("%s %s: %w", run.saga.Operation, stage, cause)

	if c.Fatal {
		o.move(ctx, run, domain.StateFailed, stage)
		o.log.Error("provider booking confirmed but not recorded",
			"booking_id", run.record.BookingID,
			"booking_product_id", run.record.BookingProductID,
			"booking_product_ref", run.record.BookingProductRef,
			"reservation_id", reservationID(run),
			"err", cause,
		)
		if !errors.Is(cause, domain.ErrCrmServer) {
			err = &domain.Error{Kind: domain.KindCrmServer, Op: string(run.saga.Operation) + " " + string(stage), Err: cause}
		}
		return run.result(c.Outcome, c.RetryAllowed), err
	}

	release := c.Release && run.reservation != nil && !run.confirmIssued
	rewind := c.Rewind != "" && run.record.BookingID != ""
	if !release && !rewind {
		o.move(ctx, run, domain.StateFailed, stage)
		return run.result(c.Outcome, c.RetryAllowed), err
	}

	o.move(ctx, run, domain.StateCompensating, stage)
	// Compensation runs to the end even if the caller has gone away.
	ctx = context.WithoutCancel(ctx)
	if release {
		o.release(ctx, run, cause)
	}
	if rewind {
		o.rewind(ctx, run, c.Rewind)
	}
	o.move(ctx, run, domain.StateCompensated, stage)
	return run.result(c.Outcome, c.RetryAllowed), err
}

// release frees the held reservation. Failures are logged and handed to the
// compensation queue, never returned.
func (o *Orchestrator) release(ctx context.Context, run *sagaRun, cause error) {
	res := run.reservation
	err := o.scheduling.DeleteReservation(ctx, run.region, res.ReservationID, run.record.BookingProductRef)
	if err == nil {
		o.log.Info("reservation released", "reservation_id", res.ReservationID, "booking_id", run.record.BookingID)
		return
	}
	o.report(ctx, SystemScheduling, "release_reservation", err)
	o.log.Error("release reservation failed",
		"reservation_id", res.ReservationID,
		"booking_id", run.record.BookingID,
		"err", err,
	)
	if o.queue == nil {
		return
	}
	req := domain.ReservationReleaseRequested{
		BookingID:         run.record.BookingID,
		ReservationID:     res.ReservationID,
		Region:            run.region,
		BookingProductRef: run.record.BookingProductRef,
		Reason:            cause.Error(),
	}
	if qerr := o.queue.RequestRelease(ctx, req); qerr != nil {
		o.log.Error("queue reservation release failed", "reservation_id", res.ReservationID, "err", qerr)
	}
}

func (o *Orchestrator) rewind(ctx context.Context, run *sagaRun, status domain.BookingStatus) {
	var paymentID *string
	if run.paymentID != "" {
		paymentID = &run.paymentID
	}
	err := o.records.SetStatus(ctx, run.record.BookingID, run.record.BookingProductID, status, paymentID)
	if err != nil {
		o.report(ctx, SystemRecords, "rewind_status", err)
		o.log.Error("rewind booking status failed",
			"booking_id", run.record.BookingID,
			"status", status,
			"err", err,
		)
		return
	}
	run.record.Status = status
	if paymentID != nil {
		run.record.PaymentID = paymentID
	}
}

// report forwards a failure to telemetry. Nothing telemetry does may reach the saga.
func (o *Orchestrator) report(ctx context.Context, system System, stage Stage, err error) {
	if o.telemetry == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			o.log.Error("telemetry panicked", "panic", r)
		}
	}()
	o.telemetry.ExternalFailure(ctx, Failure{
		System: system,
		Stage:  stage,
		Class:  domain.ClassOf(err),
		Kind:   domain.KindOf(err),
		Err:    err,
	})
}

func reservationID(run *sagaRun) string {
	if run.reservation != nil {
		return run.reservation.ReservationID
	}
	return run.record.ReservationID
}
