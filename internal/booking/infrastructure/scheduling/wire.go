package scheduling

import (
	"fmt"
	"time"

	"github.com/dmehra2102/test-booking-service/internal/booking/domain"
)

type slotWire struct {
	TestCentreID  string   `json:"testCentreId"`
	TestTypes     []string `json:"testTypes"`
	StartDateTime string   `json:"startDateTime"`
	Quantity      int      `json:"quantity"`
}

func (s slotWire) toDomain() (domain.Slot, error) {
	start, err := time.Parse(time.RFC3339, s.StartDateTime)
	if err != nil {
		return domain.Slot{}, fmt.Errorf("slot start %q: %w", s.StartDateTime, err)
	}
	return domain.Slot{
		TestCentreID:  s.TestCentreID,
		TestTypes:     testTypes(s.TestTypes),
		StartDateTime: start.UTC(),
		Quantity:      s.Quantity,
	}, nil
}

type reservationRequestWire struct {
	TestCentreID  string   `json:"testCentreId"`
	TestTypes     []string `json:"testTypes"`
	StartDateTime string   `json:"startDateTime"`
	Quantity      int      `json:"quantity"`
	LockTime      int      `json:"lockTime"`
}

type reservationWire struct {
	TestCentreID  string   `json:"testCentreId"`
	TestTypes     []string `json:"testTypes"`
	StartDateTime string   `json:"startDateTime"`
	ReservationID string   `json:"reservationId"`
}

type bookingRequestWire struct {
	BookingReferenceID string `json:"bookingReferenceId"`
	ReservationID      string `json:"reservationId"`
	Notes              string `json:"notes"`
	BehaviouralMarkers string `json:"behaviouralMarkers"`
}

type receiptWire struct {
	ReservationID string `json:"reservationId"`
	Status        string `json:"status"`
	Message       string `json:"message"`
}

type bookingWire struct {
	BookingReferenceID string   `json:"bookingReferenceId"`
	TestCentreID       string   `json:"testCentreId"`
	TestTypes          []string `json:"testTypes"`
	StartDateTime      string   `json:"startDateTime"`
	Notes              string   `json:"notes"`
	BehaviouralMarkers string   `json:"behaviouralMarkers"`
	Status             string   `json:"status"`
}

func (b bookingWire) toDomain(ref string) (domain.ProviderBooking, error) {
	out := domain.ProviderBooking{
		BookingProductRef:  ref,
		BookingReferenceID: b.BookingReferenceID,
		TestCentreID:       b.TestCentreID,
		Notes:              b.Notes,
		BehaviouralMarkers: b.BehaviouralMarkers,
		Status:             b.Status,
	}
	if types := testTypes(b.TestTypes); len(types) > 0 {
		out.TestType = types[0]
	}
	if b.StartDateTime != "" {
		start, err := time.Parse(time.RFC3339, b.StartDateTime)
		if err != nil {
			return domain.ProviderBooking{}, fmt.Errorf("booking start %q: %w", b.StartDateTime, err)
		}
		out.StartDateTime = start.UTC()
	}
	return out, nil
}

// testTypes maps provider codes back, dropping codes this service does not sell.
func testTypes(codes []string) []domain.TestType {
	out := make([]domain.TestType, 0, len(codes))
	for _, c := range codes {
		if t, ok := domain.TestTypeFromWire(c); ok {
			out = append(out, t)
		}
	}
	return out
}
