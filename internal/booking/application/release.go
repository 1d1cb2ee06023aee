package application

import (
	"context"
	"log/slog"

	"github.com/dmehra2102/test-booking-service/internal/booking/domain"
)

// ReleaseWorker retries reservation releases that failed during compensation.
// Deliveries are at least once; a release of an absent reservation succeeds.
type ReleaseWorker struct {
	log        *slog.Logger
	scheduling SchedulingClient
}

func NewReleaseWorker(log *slog.Logger, scheduling SchedulingClient) *ReleaseWorker {
	return &ReleaseWorker{log: log, scheduling: scheduling}
}

func (w *ReleaseWorker) Handle(ctx context.Context, req domain.ReservationReleaseRequested) error {
	if req.ReservationID == "" {
		w.log.Warn("release request without reservation id", "booking_id", req.BookingID)
		return nil
	}
	if err := w.scheduling.DeleteReservation(ctx, req.Region, req.ReservationID, req.BookingProductRef); err != nil {
		return err
	}
	w.log.Info("queued reservation release done",
		"reservation_id", req.ReservationID,
		"booking_id", req.BookingID,
		"reason", req.Reason,
	)
	return nil
}
