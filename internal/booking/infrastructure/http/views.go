package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/dmehra2102/test-booking-service/internal/booking/application"
	"github.com/dmehra2102/test-booking-service/internal/booking/domain"
)

type slotView struct {
	TestCentreID  string            `json:"testCentreId"`
	TestTypes     []domain.TestType `json:"testTypes"`
	StartDateTime time.Time         `json:"startDateTime"`
	Quantity      int               `json:"quantity"`
}

func newSlotView(s domain.Slot) slotView {
	return slotView{TestCentreID: s.TestCentreID, TestTypes: s.TestTypes, StartDateTime: s.StartDateTime, Quantity: s.Quantity}
}

type bookingView struct {
	BookingID          string               `json:"bookingId,omitempty"`
	BookingProductID   string               `json:"bookingProductId,omitempty"`
	BookingReferenceID string               `json:"bookingReferenceId,omitempty"`
	BookingProductRef  string               `json:"bookingProductRef,omitempty"`
	ReservationID      string               `json:"reservationId,omitempty"`
	Status             domain.BookingStatus `json:"status,omitempty"`
	PaymentID          *string              `json:"paymentId,omitempty"`
	LastRefundDate     string               `json:"lastRefundDate,omitempty"`
	StartDateTime      *time.Time           `json:"startDateTime,omitempty"`
	Metadata           domain.Metadata      `json:"metadata"`
}

type resultView struct {
	Outcome      application.Outcome `json:"outcome"`
	Message      string              `json:"message"`
	RetryAllowed bool                `json:"retryAllowed"`
	State        domain.SagaState    `json:"state"`
	Booking      *bookingView        `json:"booking,omitempty"`
}

func newResultView(res *application.Result) resultView {
	v := resultView{
		Outcome:      res.Outcome,
		Message:      res.Outcome.Message(),
		RetryAllowed: res.RetryAllowed,
		State:        res.State,
	}
	if rec := res.Record; rec.BookingID != "" {
		b := bookingView{
			BookingID:          rec.BookingID,
			BookingProductID:   rec.BookingProductID,
			BookingReferenceID: rec.BookingReferenceID,
			BookingProductRef:  rec.BookingProductRef,
			ReservationID:      rec.ReservationID,
			Status:             rec.Status,
			PaymentID:          rec.PaymentID,
			Metadata:           rec.Metadata,
		}
		if rec.LastRefundDate != nil {
			b.LastRefundDate = rec.LastRefundDate.Format(time.DateOnly)
		}
		if !rec.StartDateTime.IsZero() {
			start := rec.StartDateTime
			b.StartDateTime = &start
		}
		v.Booking = &b
	}
	return v
}

type providerBookingView struct {
	BookingProductRef  string          `json:"bookingProductRef"`
	BookingReferenceID string          `json:"bookingReferenceId"`
	TestCentreID       string          `json:"testCentreId"`
	TestType           domain.TestType `json:"testType"`
	StartDateTime      time.Time       `json:"startDateTime"`
	Notes              string          `json:"notes,omitempty"`
	BehaviouralMarkers string          `json:"behaviouralMarkers,omitempty"`
	Status             string          `json:"status"`
}

func newProviderBookingView(b domain.ProviderBooking) providerBookingView {
	return providerBookingView(b)
}

func parseSlotQuery(r *http.Request) (domain.SlotQuery, error) {
	v := r.URL.Query()
	q := domain.SlotQuery{
		Region:       v.Get("region"),
		TestCentreID: v.Get("testCentreId"),
		TestType:     domain.TestType(v.Get("testType")),
	}
	if q.Region == "" || q.TestCentreID == "" || q.TestType == "" {
		return q, errors.New("region, testCentreId and testType are required")
	}
	var err error
	if q.DateFrom, err = time.Parse(time.DateOnly, v.Get("dateFrom")); err != nil {
		return q, errors.New("dateFrom must be YYYY-MM-DD")
	}
	if q.DateTo, err = time.Parse(time.DateOnly, v.Get("dateTo")); err != nil {
		return q, errors.New("dateTo must be YYYY-MM-DD")
	}
	if q.DateTo.Before(q.DateFrom) {
		return q, errors.New("dateTo is before dateFrom")
	}
	if p := v.Get("preferredDate"); p != "" {
		d, err := time.Parse(time.DateOnly, p)
		if err != nil {
			return q, errors.New("preferredDate must be YYYY-MM-DD")
		}
		q.PreferredDate = &d
	}
	return q, nil
}
