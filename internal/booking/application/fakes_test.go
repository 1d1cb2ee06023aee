package application

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/dmehra2102/test-booking-service/internal/booking/domain"
)

var testStart = time.Date(2025, time.March, 13, 9, 30, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeScheduling struct {
	mu sync.Mutex

	reserveErr    error
	confirmErr    error
	confirmStatus string
	deleteResErr  error
	deleteBookErr error

	calls        []string
	deletedRes   []string
	deletedBooks []string
	confirmed    []domain.SlotBookingRequest
	nextID       int

	// onConfirm runs once the provider has taken the confirm.
	onConfirm       func()
	onDeleteBooking func()
}

func (f *fakeScheduling) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeScheduling) AvailableSlots(ctx context.Context, q domain.SlotQuery) ([]domain.Slot, error) {
	f.record("availableSlots")
	return []domain.Slot{{TestCentreID: q.TestCentreID, TestTypes: []domain.TestType{q.TestType}, StartDateTime: testStart, Quantity: 1}}, nil
}

func (f *fakeScheduling) ReserveSlot(ctx context.Context, region, centreID string, testType domain.TestType, startDateTime string) (domain.Reservation, error) {
	f.record("reserveSlot")
	if err := ctx.Err(); err != nil {
		return domain.Reservation{}, err
	}
	if f.reserveErr != nil {
		return domain.Reservation{}, f.reserveErr
	}
	start, err := time.Parse(time.RFC3339, startDateTime)
	if err != nil {
		return domain.Reservation{}, &domain.Error{Kind: domain.KindInvalidSlot, Op: "reserve slot", Err: err}
	}
	f.mu.Lock()
	f.nextID++
	id := "R" + strconv.Itoa(f.nextID)
	f.mu.Unlock()
	return domain.Reservation{
		CentreID:        centreID,
		TestType:        testType,
		StartDateTime:   start,
		ReservationID:   id,
		LockTimeSeconds: 300,
	}, nil
}

func (f *fakeScheduling) ConfirmBooking(ctx context.Context, region string, reqs []domain.SlotBookingRequest) ([]domain.SlotBookingReceipt, error) {
	f.record("confirmBooking")
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.confirmed = append(f.confirmed, reqs...)
	f.mu.Unlock()
	if f.onConfirm != nil {
		f.onConfirm()
	}
	if f.confirmErr != nil {
		return nil, f.confirmErr
	}
	out := make([]domain.SlotBookingReceipt, 0, len(reqs))
	for _, r := range reqs {
		status := f.confirmStatus
		if status == "" {
			status = "SUCCESS"
		}
		out = append(out, domain.SlotBookingReceipt{ReservationID: r.ReservationID, Status: status})
	}
	return out, nil
}

func (f *fakeScheduling) DeleteReservation(ctx context.Context, region, reservationID, bookingProductRef string) error {
	f.record("deleteReservation")
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	f.deletedRes = append(f.deletedRes, reservationID)
	f.mu.Unlock()
	return f.deleteResErr
}

func (f *fakeScheduling) DeleteBooking(ctx context.Context, region, bookingProductRef string) error {
	f.record("deleteBooking")
	if err := ctx.Err(); err != nil {
		return err
	}
	if f.onDeleteBooking != nil {
		f.onDeleteBooking()
	}
	f.mu.Lock()
	f.deletedBooks = append(f.deletedBooks, bookingProductRef)
	f.mu.Unlock()
	return f.deleteBookErr
}

func (f *fakeScheduling) GetBooking(ctx context.Context, region, bookingProductRef string) (domain.ProviderBooking, error) {
	f.record("getBooking")
	return domain.ProviderBooking{BookingProductRef: bookingProductRef}, nil
}

type fakePayments struct {
	conf  domain.PaymentConfirmation
	err   error
	calls int

	// hang blocks the call until its context is done.
	hang      bool
	onConfirm func()
}

func (f *fakePayments) Confirm(ctx context.Context, receiptReference, candidateID, personReference string) (domain.PaymentConfirmation, error) {
	f.calls++
	if f.hang {
		<-ctx.Done()
		return domain.PaymentConfirmation{}, ctx.Err()
	}
	if f.onConfirm != nil {
		f.onConfirm()
	}
	return f.conf, f.err
}

type statusSet struct {
	Status    domain.BookingStatus
	PaymentID *string
}

type fakeRecords struct {
	mu sync.Mutex

	createErr   error
	setErr      map[domain.BookingStatus]error
	confirmErr  error
	metadataErr error
	deadline    time.Time

	// onSet runs after each successful status change.
	onSet func()

	rec       domain.BookingRecord
	sets      []statusSet
	confirms  []domain.ConfirmRequest
	metadata  []domain.Metadata
	refundFor []time.Time
}

func newFakeRecords() *fakeRecords {
	return &fakeRecords{
		setErr:   map[domain.BookingStatus]error{},
		deadline: time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC),
	}
}

func confirmedRecord() domain.BookingRecord {
	pid := "PAY-1"
	return domain.BookingRecord{
		BookingID:          "bk-1",
		BookingProductID:   "bp-1",
		BookingReferenceID: "B-000-000-001",
		BookingProductRef:  "B-000-000-001-01",
		ReservationID:      "R0",
		Status:             domain.StatusConfirmed,
		PaymentID:          &pid,
		TestCentreID:       "TC1",
		TestType:           domain.TestTypeCar,
		StartDateTime:      testStart,
		Region:             "A",
		Remit:              domain.RemitEngland,
	}
}

func (f *fakeRecords) CreateDraft(ctx context.Context, req domain.DraftRequest) (domain.BookingRecord, error) {
	if err := ctx.Err(); err != nil {
		return domain.BookingRecord{}, err
	}
	if f.createErr != nil {
		return domain.BookingRecord{}, f.createErr
	}
	f.rec = domain.BookingRecord{
		BookingID:          "bk-1",
		BookingProductID:   "bp-1",
		BookingReferenceID: "B-000-000-001",
		BookingProductRef:  "B-000-000-001-01",
		ReservationID:      req.ReservationID,
		Status:             domain.StatusDraft,
		TestCentreID:       req.TestCentreID,
		TestType:           req.TestType,
		StartDateTime:      req.StartDateTime,
		Region:             req.Region,
		Remit:              req.Remit,
	}
	return f.rec, nil
}

func (f *fakeRecords) Get(ctx context.Context, bookingID string) (domain.BookingRecord, error) {
	if f.rec.BookingID != bookingID {
		return domain.BookingRecord{}, &domain.Error{Kind: domain.KindNotFound, Op: "get booking"}
	}
	return f.rec, nil
}

func (f *fakeRecords) SetStatus(ctx context.Context, bookingID, bookingProductID string, status domain.BookingStatus, paymentID *string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.setErr[status]; err != nil {
		return err
	}
	f.sets = append(f.sets, statusSet{Status: status, PaymentID: paymentID})
	f.rec.Status = status
	if f.onSet != nil {
		f.onSet()
	}
	return nil
}

func (f *fakeRecords) Confirm(ctx context.Context, req domain.ConfirmRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if f.confirmErr != nil {
		return f.confirmErr
	}
	f.confirms = append(f.confirms, req)
	f.rec.Status = domain.StatusConfirmed
	f.rec.ReservationID = req.ReservationID
	return nil
}

func (f *fakeRecords) UpdateMetadata(ctx context.Context, bookingID, bookingProductID string, m domain.Metadata) error {
	if f.metadataErr != nil {
		return f.metadataErr
	}
	f.metadata = append(f.metadata, m)
	return nil
}

func (f *fakeRecords) RefundDeadline(ctx context.Context, testDate time.Time, remit domain.Remit) (time.Time, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, err
	}
	f.refundFor = append(f.refundFor, testDate)
	return f.deadline, nil
}

func (f *fakeRecords) statuses() []domain.BookingStatus {
	out := make([]domain.BookingStatus, 0, len(f.sets))
	for _, s := range f.sets {
		out = append(out, s.Status)
	}
	return out
}

type fakeQueue struct {
	requests []domain.ReservationReleaseRequested
}

func (f *fakeQueue) RequestRelease(ctx context.Context, req domain.ReservationReleaseRequested) error {
	f.requests = append(f.requests, req)
	return nil
}

type fakeTelemetry struct {
	failures []Failure
	panics   bool
}

func (f *fakeTelemetry) ExternalFailure(ctx context.Context, fl Failure) {
	f.failures = append(f.failures, fl)
	if f.panics {
		panic("telemetry exploded")
	}
}
