package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmehra2102/test-booking-service/internal/booking/domain"
	"github.com/dmehra2102/test-booking-service/pkg/tracing"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const aggregateBooking = "booking"

// RecordStore keeps booking records in postgres. Every effective status
// change writes a BookingStatusChanged outbox row in the same transaction.
type RecordStore struct {
	log        *slog.Logger
	pool       *pgxpool.Pool
	noticeDays int
}

func NewRecordStore(log *slog.Logger, pool *pgxpool.Pool, noticeDays int) *RecordStore {
	if noticeDays <= 0 {
		noticeDays = domain.DefaultRefundNoticeDays
	}
	return &RecordStore{log: log, pool: pool, noticeDays: noticeDays}
}

// referenceFor formats a sequence value as a booking reference, B-000-012-345.
func referenceFor(n int64) string {
	return fmt.Sprintf("B-%03d-%03d-%03d", (n/1_000_000)%1000, (n/1000)%1000, n%1000)
}

func productRefFor(reference string) string {
	return reference + "-01"
}

func (s *RecordStore) CreateDraft(ctx context.Context, req domain.DraftRequest) (domain.BookingRecord, error) {
	const op = "create draft"
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.BookingRecord{}, crmError(op, err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var seq int64
	if err := tx.QueryRow(ctx, `SELECT nextval('booking_reference_seq')`).Scan(&seq); err != nil {
		return domain.BookingRecord{}, crmError(op, err)
	}
	ref := referenceFor(seq)
	rec := domain.BookingRecord{
		BookingID:          uuid.NewString(),
		BookingProductID:   uuid.NewString(),
		BookingReferenceID: ref,
		BookingProductRef:  productRefFor(ref),
		ReservationID:      req.ReservationID,
		Status:             domain.StatusDraft,
		CandidateID:        req.CandidateID,
		PersonReference:    req.PersonReference,
		TestCentreID:       req.TestCentreID,
		TestType:           req.TestType,
		StartDateTime:      req.StartDateTime.UTC(),
		Region:             req.Region,
		Remit:              req.Remit,
		Metadata:           req.Metadata,
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO bookings (booking_id, booking_product_id, booking_reference_id, booking_product_ref,
			reservation_id, status, candidate_id, person_reference, test_centre_id, test_type,
			start_date_time, region, remit, metadata)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		RETURNING updated_at`,
		rec.BookingID, rec.BookingProductID, rec.BookingReferenceID, rec.BookingProductRef,
		rec.ReservationID, string(rec.Status), rec.CandidateID, rec.PersonReference, rec.TestCentreID, string(rec.TestType),
		rec.StartDateTime, rec.Region, string(rec.Remit), rec.Metadata,
	).Scan(&rec.UpdatedAt)
	if err != nil {
		return domain.BookingRecord{}, crmError(op, err)
	}

	if err := insertStatusChanged(ctx, tx, rec.BookingID, rec.BookingProductID, "", rec.Status, nil); err != nil {
		return domain.BookingRecord{}, crmError(op, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.BookingRecord{}, crmError(op, err)
	}
	s.log.Info("draft booking created", "booking_id", rec.BookingID, "booking_reference_id", rec.BookingReferenceID)
	return rec, nil
}

func (s *RecordStore) Get(ctx context.Context, bookingID string) (domain.BookingRecord, error) {
	var (
		rec      domain.BookingRecord
		status   string
		testType string
		remit    string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT booking_id, booking_product_id, booking_reference_id, booking_product_ref, reservation_id,
			status, payment_id, last_refund_date, candidate_id, person_reference, test_centre_id, test_type,
			start_date_time, region, remit, metadata, tcn_synced, updated_at
		FROM bookings WHERE booking_id=$1`, bookingID).
		Scan(&rec.BookingID, &rec.BookingProductID, &rec.BookingReferenceID, &rec.BookingProductRef, &rec.ReservationID,
			&status, &rec.PaymentID, &rec.LastRefundDate, &rec.CandidateID, &rec.PersonReference, &rec.TestCentreID, &testType,
			&rec.StartDateTime, &rec.Region, &remit, &rec.Metadata, &rec.TCNSynced, &rec.UpdatedAt)
	if err != nil {
		return domain.BookingRecord{}, crmError("get booking", err)
	}
	rec.Status = domain.BookingStatus(status)
	rec.TestType = domain.TestType(testType)
	rec.Remit = domain.Remit(remit)
	rec.StartDateTime = rec.StartDateTime.UTC()
	return rec, nil
}

// SetStatus is idempotent: re-setting the current status with no new payment
// id changes nothing and emits no event.
func (s *RecordStore) SetStatus(ctx context.Context, bookingID, bookingProductID string, status domain.BookingStatus, paymentID *string) error {
	const op = "set status"
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return crmError(op, err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	current, err := lockStatus(ctx, tx, bookingID, bookingProductID)
	if err != nil {
		return crmError(op, err)
	}

	ct, err := tx.Exec(ctx, `
		UPDATE bookings SET status=$3, payment_id=COALESCE($4, payment_id), updated_at=now()
		WHERE booking_id=$1 AND booking_product_id=$2
			AND (status IS DISTINCT FROM $3 OR ($4::text IS NOT NULL AND payment_id IS DISTINCT FROM $4))`,
		bookingID, bookingProductID, string(status), paymentID)
	if err != nil {
		return crmError(op, err)
	}
	if ct.RowsAffected() == 0 {
		return tx.Commit(ctx)
	}
	if current != status {
		if err := insertStatusChanged(ctx, tx, bookingID, bookingProductID, current, status, paymentID); err != nil {
			return crmError(op, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return crmError(op, err)
	}
	s.log.Info("booking status set", "booking_id", bookingID, "from", current, "to", status)
	return nil
}

func (s *RecordStore) Confirm(ctx context.Context, req domain.ConfirmRequest) error {
	const op = "confirm booking record"
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return crmError(op, err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	current, err := lockStatus(ctx, tx, req.BookingID, req.BookingProductID)
	if err != nil {
		return crmError(op, err)
	}
	var paymentID *string
	if req.PaymentID != "" {
		paymentID = &req.PaymentID
	}
	_, err = tx.Exec(ctx, `
		UPDATE bookings SET status=$3, reservation_id=$4, start_date_time=$5, payment_id=COALESCE($6, payment_id),
			last_refund_date=$7, tcn_synced=$8, updated_at=now()
		WHERE booking_id=$1 AND booking_product_id=$2`,
		req.BookingID, req.BookingProductID, string(domain.StatusConfirmed), req.ReservationID, req.StartDateTime.UTC(),
		paymentID, req.LastRefundDate, req.TCNSynced)
	if err != nil {
		return crmError(op, err)
	}
	if current != domain.StatusConfirmed {
		if err := insertStatusChanged(ctx, tx, req.BookingID, req.BookingProductID, current, domain.StatusConfirmed, paymentID); err != nil {
			return crmError(op, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return crmError(op, err)
	}
	s.log.Info("booking confirmed", "booking_id", req.BookingID, "reservation_id", req.ReservationID)
	return nil
}

func (s *RecordStore) UpdateMetadata(ctx context.Context, bookingID, bookingProductID string, m domain.Metadata) error {
	ct, err := s.pool.Exec(ctx, `UPDATE bookings SET metadata=$3, updated_at=now() WHERE booking_id=$1 AND booking_product_id=$2`,
		bookingID, bookingProductID, m)
	if err != nil {
		return crmError("update metadata", err)
	}
	if ct.RowsAffected() == 0 {
		return &domain.Error{Kind: domain.KindNotFound, Op: "update metadata", Err: fmt.Errorf("booking %s", bookingID)}
	}
	return nil
}

// RefundDeadline counts working days back from testDate on the remit's
// bank holiday calendar.
func (s *RecordStore) RefundDeadline(ctx context.Context, testDate time.Time, remit domain.Remit) (time.Time, error) {
	// A month back covers any notice period plus the longest holiday run.
	from := testDate.AddDate(0, -1, 0)
	rows, err := s.pool.Query(ctx, `SELECT day FROM bank_holidays WHERE calendar=$1 AND day BETWEEN $2 AND $3`,
		remit.Calendar(), from, testDate)
	if err != nil {
		return time.Time{}, crmError("refund deadline", err)
	}
	days, err := pgx.CollectRows(rows, pgx.RowTo[time.Time])
	if err != nil {
		return time.Time{}, crmError("refund deadline", err)
	}
	return domain.RefundDeadline(testDate, domain.NewHolidays(days...), s.noticeDays), nil
}

func lockStatus(ctx context.Context, tx pgx.Tx, bookingID, bookingProductID string) (domain.BookingStatus, error) {
	var status string
	err := tx.QueryRow(ctx, `SELECT status FROM bookings WHERE booking_id=$1 AND booking_product_id=$2 FOR UPDATE`,
		bookingID, bookingProductID).Scan(&status)
	if err != nil {
		return "", err
	}
	return domain.BookingStatus(status), nil
}

func insertStatusChanged(ctx context.Context, tx pgx.Tx, bookingID, bookingProductID string, from, to domain.BookingStatus, paymentID *string) error {
	return insertOutbox(ctx, tx, bookingID, domain.EventBookingStatusChanged, domain.BookingStatusChanged{
		BookingID:        bookingID,
		BookingProductID: bookingProductID,
		From:             from,
		To:               to,
		PaymentID:        paymentID,
	})
}

func insertOutbox(ctx context.Context, tx pgx.Tx, aggregateID, eventType string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	headers := map[string]string{"source": "booking-service"}
	_, err = tx.Exec(ctx, `INSERT INTO outbox (aggregate_type, aggregate_id, type, payload, headers, traceparent, status)
		VALUES ($1,$2,$3,$4,$5,$6,'pending')`,
		aggregateBooking, aggregateID, eventType, payload, headers, tracing.Traceparent(ctx))
	return err
}

// crmError tags store failures. A missing row is NotFound; anything else is
// the record system failing.
func crmError(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return &domain.Error{Kind: domain.KindNotFound, Op: op, Err: err}
	}
	return &domain.Error{Kind: domain.KindCrmServer, Op: op, Err: err}
}
