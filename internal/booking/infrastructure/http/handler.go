package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/dmehra2102/test-booking-service/internal/booking/application"
	"github.com/dmehra2102/test-booking-service/internal/booking/domain"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

type BookingService interface {
	AvailableSlots(ctx context.Context, q domain.SlotQuery) ([]domain.Slot, error)
	ProviderBooking(ctx context.Context, region, bookingProductRef string) (domain.ProviderBooking, error)
	Book(ctx context.Context, req application.BookRequest) (*application.Result, error)
	Reschedule(ctx context.Context, req application.RescheduleRequest) (*application.Result, error)
	ChangeMetadata(ctx context.Context, req application.MetadataChangeRequest) (*application.Result, error)
}

type Handler struct {
	log     *slog.Logger
	service BookingService
	ready   func(ctx context.Context) error
	tracer  trace.Tracer
}

// NewHandler builds the booking API. ready backs /healthz and may be nil.
func NewHandler(log *slog.Logger, service BookingService, ready func(ctx context.Context) error) *Handler {
	return &Handler{
		log:     log,
		service: service,
		ready:   ready,
		tracer:  otel.Tracer("booking-http"),
	}
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(requestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.health)
	r.Get("/slots", h.availableSlots)
	r.Post("/bookings", h.book)
	r.Post("/bookings/{bookingId}/reschedule", h.reschedule)
	r.Post("/bookings/{bookingId}/metadata", h.changeMetadata)
	r.Get("/regions/{region}/bookings/{bookingProductRef}", h.providerBooking)
	return r
}

const requestIDHeader = "X-Request-ID"

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
			r.Header.Set(requestIDHeader, id)
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if h.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.ready(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) availableSlots(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "AvailableSlots")
	defer span.End()

	q, err := parseSlotQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	slots, err := h.service.AvailableSlots(ctx, q)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]slotView, 0, len(slots))
	for _, s := range slots {
		out = append(out, newSlotView(s))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) book(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "Book")
	defer span.End()

	var req application.BookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if req.Region == "" || req.TestCentreID == "" || req.ReceiptReference == "" || req.CandidateID == "" {
		writeError(w, http.StatusBadRequest, "region, testCentreId, candidateId and receiptReference are required")
		return
	}
	res, err := h.service.Book(ctx, req)
	h.writeResult(w, r, http.StatusCreated, res, err)
}

func (h *Handler) reschedule(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "Reschedule")
	defer span.End()

	var req application.RescheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	req.BookingID = chi.URLParam(r, "bookingId")
	res, err := h.service.Reschedule(ctx, req)
	h.writeResult(w, r, http.StatusOK, res, err)
}

func (h *Handler) changeMetadata(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "ChangeMetadata")
	defer span.End()

	var m domain.Metadata
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	res, err := h.service.ChangeMetadata(ctx, application.MetadataChangeRequest{
		BookingID: chi.URLParam(r, "bookingId"),
		Metadata:  m,
	})
	h.writeResult(w, r, http.StatusOK, res, err)
}

func (h *Handler) providerBooking(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "ProviderBooking")
	defer span.End()

	b, err := h.service.ProviderBooking(ctx, chi.URLParam(r, "region"), chi.URLParam(r, "bookingProductRef"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newProviderBookingView(b))
}

func (h *Handler) writeResult(w http.ResponseWriter, r *http.Request, okStatus int, res *application.Result, err error) {
	if res == nil {
		if err == nil {
			err = errors.New("no result")
		}
		h.fail(w, r, err)
		return
	}
	status := okStatus
	if err != nil {
		status = statusFor(res.Outcome, err)
		h.logFailure(r, status, err, "outcome", res.Outcome)
	}
	writeJSON(w, status, newResultView(res))
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(application.OutcomeFailed, err)
	h.logFailure(r, status, err)
	writeError(w, status, err.Error())
}

func (h *Handler) logFailure(r *http.Request, status int, err error, attrs ...any) {
	args := append([]any{"path", r.URL.Path, "status", status, "request_id", r.Header.Get(requestIDHeader), "err", err}, attrs...)
	if status >= http.StatusInternalServerError {
		h.log.Error("request failed", args...)
		return
	}
	h.log.Info("request rejected", args...)
}

// statusFor maps a saga outcome, or for plain failures the error kind, to an
// HTTP status.
func statusFor(o application.Outcome, err error) int {
	switch o {
	case application.OutcomeSlotUnavailable:
		return http.StatusConflict
	case application.OutcomeInvalidSlot:
		return http.StatusUnprocessableEntity
	case application.OutcomePaymentCancelled, application.OutcomePaymentDeclined, application.OutcomePaymentError:
		return http.StatusPaymentRequired
	case application.OutcomeConfirmFailed:
		return http.StatusBadGateway
	case application.OutcomeServiceUnavailable:
		return http.StatusServiceUnavailable
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	switch domain.KindOf(err) {
	case domain.KindInvalidSlot:
		return http.StatusUnprocessableEntity
	case domain.KindSlotUnavailable, domain.KindConflict:
		return http.StatusConflict
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindInvalidInput, domain.KindRequest:
		return http.StatusBadRequest
	case domain.KindAuth, domain.KindServer:
		return http.StatusBadGateway
	case domain.KindCrmServer:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}
