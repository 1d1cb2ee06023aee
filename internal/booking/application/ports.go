package application

import (
	"context"
	"time"

	"github.com/dmehra2102/test-booking-service/internal/booking/domain"
)

type SchedulingClient interface {
	AvailableSlots(ctx context.Context, q domain.SlotQuery) ([]domain.Slot, error)
	ReserveSlot(ctx context.Context, region, centreID string, testType domain.TestType, startDateTime string) (domain.Reservation, error)
	ConfirmBooking(ctx context.Context, region string, reqs []domain.SlotBookingRequest) ([]domain.SlotBookingReceipt, error)
	DeleteReservation(ctx context.Context, region, reservationID, bookingProductRef string) error
	DeleteBooking(ctx context.Context, region, bookingProductRef string) error
	GetBooking(ctx context.Context, region, bookingProductRef string) (domain.ProviderBooking, error)
}

type PaymentClient interface {
	Confirm(ctx context.Context, receiptReference, candidateID, personReference string) (domain.PaymentConfirmation, error)
}

// RecordStore owns booking records. Setting a status a record already has is a no-op.
type RecordStore interface {
	CreateDraft(ctx context.Context, req domain.DraftRequest) (domain.BookingRecord, error)
	Get(ctx context.Context, bookingID string) (domain.BookingRecord, error)
	SetStatus(ctx context.Context, bookingID, bookingProductID string, status domain.BookingStatus, paymentID *string) error
	Confirm(ctx context.Context, req domain.ConfirmRequest) error
	UpdateMetadata(ctx context.Context, bookingID, bookingProductID string, m domain.Metadata) error
	RefundDeadline(ctx context.Context, testDate time.Time, remit domain.Remit) (time.Time, error)
}

// CompensationQueue durably hands a failed reservation release to the worker.
type CompensationQueue interface {
	RequestRelease(ctx context.Context, req domain.ReservationReleaseRequested) error
}

type System string

const (
	SystemScheduling System = "scheduling"
	SystemPayment    System = "payment"
	SystemRecords    System = "records"
)

type Failure struct {
	System System
	Stage  Stage
	Class  domain.ErrorClass
	Kind   domain.Kind
	Err    error
}

// Telemetry receives one call per failed external call. Implementations must not block.
type Telemetry interface {
	ExternalFailure(ctx context.Context, f Failure)
}
