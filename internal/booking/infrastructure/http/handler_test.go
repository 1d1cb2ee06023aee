package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dmehra2102/test-booking-service/internal/booking/application"
	"github.com/dmehra2102/test-booking-service/internal/booking/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubService struct {
	slots    []domain.Slot
	query    domain.SlotQuery
	provider domain.ProviderBooking
	result   *application.Result
	err      error

	book       application.BookRequest
	reschedule application.RescheduleRequest
	metadata   application.MetadataChangeRequest
}

func (s *stubService) AvailableSlots(_ context.Context, q domain.SlotQuery) ([]domain.Slot, error) {
	s.query = q
	return s.slots, s.err
}

func (s *stubService) ProviderBooking(_ context.Context, _, _ string) (domain.ProviderBooking, error) {
	return s.provider, s.err
}

func (s *stubService) Book(_ context.Context, req application.BookRequest) (*application.Result, error) {
	s.book = req
	return s.result, s.err
}

func (s *stubService) Reschedule(_ context.Context, req application.RescheduleRequest) (*application.Result, error) {
	s.reschedule = req
	return s.result, s.err
}

func (s *stubService) ChangeMetadata(_ context.Context, req application.MetadataChangeRequest) (*application.Result, error) {
	s.metadata = req
	return s.result, s.err
}

func newTestServer(t *testing.T, svc BookingService, ready func(context.Context) error) *httptest.Server {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := httptest.NewServer(NewHandler(log, svc, ready).Routes())
	t.Cleanup(srv.Close)
	return srv
}

func post(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(b))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func validBook() application.BookRequest {
	return application.BookRequest{
		Region:           "a",
		Remit:            domain.RemitEngland,
		CandidateID:      "cand-1",
		PersonReference:  "person-1",
		TestCentreID:     "centre-1",
		TestType:         domain.TestTypeCar,
		StartDateTime:    "2025-03-13T09:30:00Z",
		ReceiptReference: "receipt-1",
	}
}

func TestBook_Confirmed(t *testing.T) {
	refund := time.Date(2025, 3, 6, 0, 0, 0, 0, time.UTC)
	svc := &stubService{result: &application.Result{
		Outcome: application.OutcomeConfirmed,
		State:   domain.StateCompleted,
		Record: domain.BookingRecord{
			BookingID:          "bk-1",
			BookingReferenceID: "B-000-000-001",
			Status:             domain.StatusConfirmed,
			LastRefundDate:     &refund,
		},
	}}
	srv := newTestServer(t, svc, nil)

	resp := post(t, srv.URL+"/bookings", validBook())
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(requestIDHeader))

	body := decode(t, resp)
	assert.Equal(t, "confirmed", body["outcome"])
	booking := body["booking"].(map[string]any)
	assert.Equal(t, "B-000-000-001", booking["bookingReferenceId"])
	assert.Equal(t, "2025-03-06", booking["lastRefundDate"])
	assert.Equal(t, "receipt-1", svc.book.ReceiptReference)
}

func TestBook_MissingFields(t *testing.T) {
	svc := &stubService{}
	srv := newTestServer(t, svc, nil)

	req := validBook()
	req.ReceiptReference = ""
	resp := post(t, srv.URL+"/bookings", req)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, svc.book.Region)
}

func TestBook_OutcomeStatuses(t *testing.T) {
	cases := []struct {
		outcome application.Outcome
		kind    domain.Kind
		status  int
	}{
		{application.OutcomeSlotUnavailable, domain.KindSlotUnavailable, http.StatusConflict},
		{application.OutcomeInvalidSlot, domain.KindInvalidSlot, http.StatusUnprocessableEntity},
		{application.OutcomePaymentCancelled, domain.KindPaymentUserCancelled, http.StatusPaymentRequired},
		{application.OutcomePaymentDeclined, domain.KindPaymentGateway, http.StatusPaymentRequired},
		{application.OutcomePaymentError, domain.KindPaymentSystem, http.StatusPaymentRequired},
		{application.OutcomeConfirmFailed, domain.KindConflict, http.StatusBadGateway},
		{application.OutcomeServiceUnavailable, domain.KindCrmServer, http.StatusServiceUnavailable},
		{application.OutcomeFailed, domain.KindAuth, http.StatusBadGateway},
	}
	for _, tc := range cases {
		t.Run(string(tc.outcome), func(t *testing.T) {
			svc := &stubService{
				result: &application.Result{Outcome: tc.outcome, RetryAllowed: true, State: domain.StateCompensated},
				err:    &domain.Error{Kind: tc.kind, Op: "test"},
			}
			srv := newTestServer(t, svc, nil)

			resp := post(t, srv.URL+"/bookings", validBook())
			assert.Equal(t, tc.status, resp.StatusCode)
			body := decode(t, resp)
			assert.Equal(t, string(tc.outcome), body["outcome"])
			assert.Equal(t, tc.outcome.Message(), body["message"])
			assert.Equal(t, true, body["retryAllowed"])
			assert.Nil(t, body["booking"])
		})
	}
}

func TestReschedule_UsesPathID(t *testing.T) {
	svc := &stubService{result: &application.Result{Outcome: application.OutcomeConfirmed, State: domain.StateCompleted}}
	srv := newTestServer(t, svc, nil)

	resp := post(t, srv.URL+"/bookings/bk-9/reschedule", application.RescheduleRequest{
		BookingID:         "ignored",
		StartDateTime:     "2025-04-01T10:00:00Z",
		HeldReservationID: "R-old",
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "bk-9", svc.reschedule.BookingID)
	assert.Equal(t, "R-old", svc.reschedule.HeldReservationID)
}

func TestReschedule_NotFound(t *testing.T) {
	svc := &stubService{
		result: &application.Result{Outcome: application.OutcomeFailed, State: domain.StateFailed},
		err:    &domain.Error{Kind: domain.KindNotFound, Op: "load booking"},
	}
	srv := newTestServer(t, svc, nil)

	resp := post(t, srv.URL+"/bookings/missing/reschedule", application.RescheduleRequest{StartDateTime: "2025-04-01T10:00:00Z"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestChangeMetadata(t *testing.T) {
	svc := &stubService{result: &application.Result{Outcome: application.OutcomeConfirmed, State: domain.StateCompleted}}
	srv := newTestServer(t, svc, nil)

	resp := post(t, srv.URL+"/bookings/bk-2/metadata", domain.Metadata{Voiceover: "welsh", BSLInterpreter: true})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "bk-2", svc.metadata.BookingID)
	assert.Equal(t, "welsh", svc.metadata.Metadata.Voiceover)
	assert.True(t, svc.metadata.Metadata.BSLInterpreter)
}

func TestChangeMetadata_BadBody(t *testing.T) {
	srv := newTestServer(t, &stubService{}, nil)

	resp, err := http.Post(srv.URL+"/bookings/bk-2/metadata", "application/json", bytes.NewBufferString("{"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAvailableSlots(t *testing.T) {
	start := time.Date(2025, 3, 13, 9, 30, 0, 0, time.UTC)
	svc := &stubService{slots: []domain.Slot{{
		TestCentreID:  "centre-1",
		TestTypes:     []domain.TestType{domain.TestTypeCar},
		StartDateTime: start,
		Quantity:      2,
	}}}
	srv := newTestServer(t, svc, nil)

	resp, err := http.Get(srv.URL + "/slots?region=a&testCentreId=centre-1&testType=CAR&dateFrom=2025-03-10&dateTo=2025-03-20&preferredDate=2025-03-13")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var slots []slotView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&slots))
	require.Len(t, slots, 1)
	assert.True(t, start.Equal(slots[0].StartDateTime))
	assert.Equal(t, 2, slots[0].Quantity)

	require.NotNil(t, svc.query.PreferredDate)
	assert.Equal(t, 13, svc.query.PreferredDate.Day())
	assert.Equal(t, domain.TestTypeCar, svc.query.TestType)
}

func TestAvailableSlots_BadQuery(t *testing.T) {
	srv := newTestServer(t, &stubService{}, nil)

	for _, q := range []string{
		"?region=a&testCentreId=c&testType=CAR&dateFrom=2025-03-10",
		"?region=a&testCentreId=c&testType=CAR&dateFrom=2025-03-20&dateTo=2025-03-10",
		"?testCentreId=c&testType=CAR&dateFrom=2025-03-10&dateTo=2025-03-20",
	} {
		resp, err := http.Get(srv.URL + "/slots" + q)
		require.NoError(t, err)
		_ = resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, q)
	}
}

func TestAvailableSlots_ProviderDown(t *testing.T) {
	srv := newTestServer(t, &stubService{err: &domain.Error{Kind: domain.KindServer, Op: "available slots", Status: 503}}, nil)

	resp, err := http.Get(srv.URL + "/slots?region=a&testCentreId=c&testType=CAR&dateFrom=2025-03-10&dateTo=2025-03-20")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestProviderBooking(t *testing.T) {
	svc := &stubService{provider: domain.ProviderBooking{BookingProductRef: "B-000-000-001-01", Status: "BOOKED"}}
	srv := newTestServer(t, svc, nil)

	resp, err := http.Get(srv.URL + "/regions/a/bookings/B-000-000-001-01")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode(t, resp)
	assert.Equal(t, "B-000-000-001-01", body["bookingProductRef"])
}

func TestHealth(t *testing.T) {
	healthy := newTestServer(t, &stubService{}, func(context.Context) error { return nil })
	resp, err := http.Get(healthy.URL + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	down := newTestServer(t, &stubService{}, func(context.Context) error { return errors.New("db down") })
	resp, err = http.Get(down.URL + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestRequestIDPropagated(t *testing.T) {
	srv := newTestServer(t, &stubService{}, nil)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/healthz", nil)
	require.NoError(t, err)
	req.Header.Set(requestIDHeader, "req-42")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, "req-42", resp.Header.Get(requestIDHeader))
}
