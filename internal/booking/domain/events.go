package domain

const (
	EventBookingStatusChanged        = "BookingStatusChanged"
	EventReservationReleaseRequested = "ReservationReleaseRequested"
)

type BookingStatusChanged struct {
	BookingID        string        `json:"bookingId"`
	BookingProductID string        `json:"bookingProductId"`
	From             BookingStatus `json:"from"`
	To               BookingStatus `json:"to"`
	PaymentID        *string       `json:"paymentId,omitempty"`
}

// ReservationReleaseRequested asks the compensation worker to retry a release
// that failed inline.
type ReservationReleaseRequested struct {
	BookingID         string `json:"bookingId"`
	ReservationID     string `json:"reservationId"`
	Region            string `json:"region"`
	BookingProductRef string `json:"bookingProductRef"`
	Reason            string `json:"reason"`
}
