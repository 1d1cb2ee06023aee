package domain

import "time"

type BookingStatus string

const (
	StatusDraft                     BookingStatus = "draft"
	StatusChangeInProgress          BookingStatus = "change_in_progress"
	StatusConfirmed                 BookingStatus = "confirmed"
	StatusAbandonedNonRecoverable   BookingStatus = "abandoned_non_recoverable"
	StatusSystemErrorNonRecoverable BookingStatus = "system_error_non_recoverable"
)

func (s BookingStatus) Terminal() bool {
	return s == StatusAbandonedNonRecoverable || s == StatusSystemErrorNonRecoverable
}

type Remit string

const (
	RemitEngland         Remit = "england"
	RemitWales           Remit = "wales"
	RemitScotland        Remit = "scotland"
	RemitNorthernIreland Remit = "northern_ireland"
)

// Calendar returns the bank holiday calendar the remit observes.
// England and Wales share one.
func (r Remit) Calendar() string {
	switch r {
	case RemitScotland:
		return "scotland"
	case RemitNorthernIreland:
		return "northern-ireland"
	default:
		return "england-and-wales"
	}
}

// BookingRecord is the CRM's view of a booking. BookingProductRef is the
// handle the scheduling provider knows the booking by.
type BookingRecord struct {
	BookingID          string
	BookingProductID   string
	BookingReferenceID string
	BookingProductRef  string
	ReservationID      string
	Status             BookingStatus
	PaymentID          *string
	LastRefundDate     *time.Time

	CandidateID     string
	PersonReference string
	TestCentreID    string
	TestType        TestType
	StartDateTime   time.Time
	Region          string
	Remit           Remit
	Metadata        Metadata
	TCNSynced       bool
	UpdatedAt       time.Time
}

type Metadata struct {
	Voiceover      string `json:"voiceover,omitempty"`
	BSLInterpreter bool   `json:"bslInterpreter"`
	Notes          string `json:"notes,omitempty"`
}

type DraftRequest struct {
	CandidateID     string
	PersonReference string
	ReservationID   string
	TestCentreID    string
	TestType        TestType
	StartDateTime   time.Time
	Region          string
	Remit           Remit
	Metadata        Metadata
}

// ConfirmRequest moves a record to Confirmed. TCNSynced stays false until the
// provider sync job acknowledges the booking.
type ConfirmRequest struct {
	BookingID        string
	BookingProductID string
	ReservationID    string
	StartDateTime    time.Time
	PaymentID        string
	LastRefundDate   time.Time
	TCNSynced        bool
}
