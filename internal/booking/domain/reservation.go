package domain

import (
	"fmt"
	"time"
)

type TestType string

const (
	TestTypeCar           TestType = "CAR"
	TestTypeMotorcycle    TestType = "MOTORCYCLE"
	TestTypeLGVMC         TestType = "LGVMC"
	TestTypeLGVHPT        TestType = "LGVHPT"
	TestTypeLGVCPC        TestType = "LGVCPC"
	TestTypeLGVCPCC       TestType = "LGVCPCC"
	TestTypePCVMC         TestType = "PCVMC"
	TestTypePCVHPT        TestType = "PCVHPT"
	TestTypePCVCPC        TestType = "PCVCPC"
	TestTypePCVCPCC       TestType = "PCVCPCC"
	TestTypeADIP1         TestType = "ADIP1"
	TestTypeADIHPT        TestType = "ADIHPT"
	TestTypeERS           TestType = "ERS"
	TestTypeAMIP1         TestType = "AMIP1"
	TestTypeADIP1DVA      TestType = "ADIP1DVA"
	TestTypeAMIP1DVA      TestType = "AMIP1DVA"
	TestTypeTaxiPrivHire  TestType = "TAXI"
)

// wireCodes is the provider's code for every test type the service sells.
var wireCodes = map[TestType]string{
	TestTypeCar:          "CAR",
	TestTypeMotorcycle:   "MC",
	TestTypeLGVMC:        "LGVMC",
	TestTypeLGVHPT:       "LGVHPT",
	TestTypeLGVCPC:       "LGVCPC",
	TestTypeLGVCPCC:      "LGVCPCC",
	TestTypePCVMC:        "PCVMC",
	TestTypePCVHPT:       "PCVHPT",
	TestTypePCVCPC:       "PCVCPC",
	TestTypePCVCPCC:      "PCVCPCC",
	TestTypeADIP1:        "ADIP1",
	TestTypeADIHPT:       "ADIHPT",
	TestTypeERS:          "ERS",
	TestTypeAMIP1:        "AMIP1",
	TestTypeADIP1DVA:     "ADIP1DVA",
	TestTypeAMIP1DVA:     "AMIP1DVA",
	TestTypeTaxiPrivHire: "TAXI",
}

func (t TestType) WireCode() (string, error) {
	code, ok := wireCodes[t]
	if !ok {
		return "", &Error{Kind: KindInvalidInput, Op: "test type", Err: fmt.Errorf("no provider code for test type %q", string(t))}
	}
	return code, nil
}

// TestTypeFromWire is the inverse of WireCode.
func TestTypeFromWire(code string) (TestType, bool) {
	for t, c := range wireCodes {
		if c == code {
			return t, true
		}
	}
	return "", false
}

type Reservation struct {
	CentreID        string
	TestType        TestType
	StartDateTime   time.Time
	ReservationID   string
	LockTimeSeconds int
	ReservedAt      time.Time
}

// Expired reports whether the provider may already have dropped the hold.
func (r Reservation) Expired(now time.Time) bool {
	if r.LockTimeSeconds <= 0 || r.ReservedAt.IsZero() {
		return false
	}
	return now.Sub(r.ReservedAt) > time.Duration(r.LockTimeSeconds)*time.Second
}

type Slot struct {
	TestCentreID  string
	TestTypes     []TestType
	StartDateTime time.Time
	Quantity      int
}

type SlotQuery struct {
	Region        string
	TestCentreID  string
	TestType      TestType
	DateFrom      time.Time
	DateTo        time.Time
	PreferredDate *time.Time
}

type SlotBookingRequest struct {
	BookingReferenceID string
	ReservationID      string
	Notes              string
	BehaviouralMarkers string
}

type SlotBookingReceipt struct {
	ReservationID string
	Status        string
	Message       string
}

// OK reports an explicit success status. A receipt without one confirms nothing.
func (r SlotBookingReceipt) OK() bool {
	return r.Status == "SUCCESS" || r.Status == "CONFIRMED"
}

type ProviderBooking struct {
	BookingProductRef  string
	BookingReferenceID string
	TestCentreID       string
	TestType           TestType
	StartDateTime      time.Time
	Notes              string
	BehaviouralMarkers string
	Status             string
}
