// Package scheduling talks to the test centre scheduling provider over its
// regional REST surface.
package scheduling

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dmehra2102/test-booking-service/internal/booking/domain"
	"github.com/dmehra2102/test-booking-service/pkg/retry"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const maxBody = 1 << 20

// TokenSource hands out bearer tokens for the provider.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

type StaticToken string

func (t StaticToken) Token(context.Context) (string, error) { return string(t), nil }

type Config struct {
	BaseURL         string
	Timeout         time.Duration
	LockTimeSeconds int
	Policies        retry.Policies
}

type Client struct {
	log      *slog.Logger
	hc       *http.Client
	baseURL  string
	tokens   TokenSource
	policies retry.Policies
	lockTime int
}

func New(log *slog.Logger, cfg Config, tokens TokenSource) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	policies := cfg.Policies
	if policies == nil {
		policies = retry.DefaultPolicies()
	}
	return &Client{
		log:      log,
		hc:       &http.Client{Timeout: timeout, Transport: otelhttp.NewTransport(http.DefaultTransport)},
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		tokens:   tokens,
		policies: policies,
		lockTime: cfg.LockTimeSeconds,
	}
}

func (c *Client) AvailableSlots(ctx context.Context, q domain.SlotQuery) ([]domain.Slot, error) {
	code, err := q.TestType.WireCode()
	if err != nil {
		return nil, err
	}
	params := url.Values{}
	params.Set("testTypes", `["`+code+`"]`)
	params.Set("dateFrom", q.DateFrom.Format(time.DateOnly))
	params.Set("dateTo", q.DateTo.Format(time.DateOnly))
	if q.PreferredDate != nil {
		params.Set("preferredDate", q.PreferredDate.Format(time.DateOnly))
	}

	var out []slotWire
	path := regionPath(q.Region, "testCentres", q.TestCentreID, "slots")
	if err := c.do(ctx, call{op: "available slots", class: retry.Retrieval, method: http.MethodGet, path: path, query: params}, nil, &out); err != nil {
		return nil, err
	}
	slots := make([]domain.Slot, 0, len(out))
	for _, s := range out {
		slot, err := s.toDomain()
		if err != nil {
			return nil, &domain.Error{Kind: domain.KindUnknown, Op: "available slots", Err: err}
		}
		slots = append(slots, slot)
	}
	return slots, nil
}

// ReserveSlot holds a slot. The start time and test type are checked before
// anything goes on the wire, and a 409 is returned at once as a taken slot.
// A lost reply is not retried; only 5xx responses are.
func (c *Client) ReserveSlot(ctx context.Context, region, centreID string, testType domain.TestType, startDateTime string) (domain.Reservation, error) {
	start, err := time.Parse(time.RFC3339, startDateTime)
	if err != nil {
		return domain.Reservation{}, &domain.Error{Kind: domain.KindInvalidSlot, Op: "reserve slot", Err: err}
	}
	code, err := testType.WireCode()
	if err != nil {
		return domain.Reservation{}, err
	}

	in := []reservationRequestWire{{
		TestCentreID:  centreID,
		TestTypes:     []string{code},
		StartDateTime: startDateTime,
		Quantity:      1,
		LockTime:      c.lockTime,
	}}
	var out []reservationWire
	err = c.do(ctx, call{op: "reserve slot", class: retry.Mutation, method: http.MethodPost, path: regionPath(region, "reservations"), reserve: true}, in, &out)
	if err != nil {
		return domain.Reservation{}, err
	}
	if len(out) == 0 || out[0].ReservationID == "" {
		return domain.Reservation{}, &domain.Error{Kind: domain.KindUnknown, Op: "reserve slot", Err: errors.New("provider returned no reservation")}
	}
	if t, err := time.Parse(time.RFC3339, out[0].StartDateTime); err == nil {
		start = t
	}
	return domain.Reservation{
		CentreID:        centreID,
		TestType:        testType,
		StartDateTime:   start.UTC(),
		ReservationID:   out[0].ReservationID,
		LockTimeSeconds: c.lockTime,
		ReservedAt:      time.Now().UTC(),
	}, nil
}

func (c *Client) ConfirmBooking(ctx context.Context, region string, reqs []domain.SlotBookingRequest) ([]domain.SlotBookingReceipt, error) {
	in := make([]bookingRequestWire, 0, len(reqs))
	for _, r := range reqs {
		in = append(in, bookingRequestWire{
			BookingReferenceID: r.BookingReferenceID,
			ReservationID:      r.ReservationID,
			Notes:              r.Notes,
			BehaviouralMarkers: r.BehaviouralMarkers,
		})
	}
	var out []receiptWire
	if err := c.do(ctx, call{op: "confirm booking", class: retry.Commit, method: http.MethodPost, path: regionPath(region, "bookings")}, in, &out); err != nil {
		return nil, err
	}
	receipts := make([]domain.SlotBookingReceipt, 0, len(out))
	for _, r := range out {
		receipts = append(receipts, domain.SlotBookingReceipt{ReservationID: r.ReservationID, Status: r.Status, Message: r.Message})
	}
	return receipts, nil
}

// DeleteReservation releases a hold. A reservation the provider no longer
// knows about counts as released.
func (c *Client) DeleteReservation(ctx context.Context, region, reservationID, bookingProductRef string) error {
	err := c.do(ctx, call{op: "delete reservation", class: retry.Mutation, method: http.MethodDelete, path: regionPath(region, "reservations", reservationID)}, nil, nil)
	if errors.Is(err, domain.ErrNotFound) {
		c.log.Warn("reservation already gone",
			"reservation_id", reservationID,
			"booking_product_ref", bookingProductRef,
			"region", region,
		)
		return nil
	}
	return err
}

func (c *Client) DeleteBooking(ctx context.Context, region, bookingProductRef string) error {
	return c.do(ctx, call{op: "delete booking", class: retry.Mutation, method: http.MethodDelete, path: regionPath(region, "bookings", bookingProductRef)}, nil, nil)
}

func (c *Client) GetBooking(ctx context.Context, region, bookingProductRef string) (domain.ProviderBooking, error) {
	var out bookingWire
	if err := c.do(ctx, call{op: "get booking", class: retry.Retrieval, method: http.MethodGet, path: regionPath(region, "bookings", bookingProductRef)}, nil, &out); err != nil {
		return domain.ProviderBooking{}, err
	}
	b, err := out.toDomain(bookingProductRef)
	if err != nil {
		return domain.ProviderBooking{}, &domain.Error{Kind: domain.KindUnknown, Op: "get booking", Err: err}
	}
	return b, nil
}

type call struct {
	op      string
	class   retry.Class
	method  string
	path    string
	query   url.Values
	reserve bool
}

// do sends one request under the policy of its endpoint class. Server and
// network faults are retried; everything else comes back on the first try.
func (c *Client) do(ctx context.Context, cl call, in, out any) error {
	var body []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: marshal: %w", cl.op, err)
		}
		body = b
	}
	target := c.baseURL + cl.path
	if len(cl.query) > 0 {
		target += "?" + cl.query.Encode()
	}

	attempt := 0
	return retry.Do(ctx, c.policies.For(cl.class), func(ctx context.Context) error {
		attempt++
		req, err := http.NewRequestWithContext(ctx, cl.method, target, bytes.NewReader(body))
		if err != nil {
			return &domain.Error{Kind: domain.KindRequest, Op: cl.op, Err: err}
		}
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return &domain.Error{Kind: domain.KindAuth, Op: cl.op, Err: err}
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.hc.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return &domain.Error{Kind: domain.KindUnknown, Op: cl.op, Err: ctx.Err()}
			}
			e := &domain.Error{Kind: domain.KindUnknown, Op: cl.op, Err: err}
			if cl.reserve {
				// The hold may exist with only the reply lost. A second POST
				// would collide with it and read as a taken slot.
				c.log.Warn("reserve outcome unknown, not retried", "attempt", attempt, "err", err)
				return e
			}
			c.log.Debug("provider call failed", "op", cl.op, "attempt", attempt, "err", err)
			return retry.Retryable(e)
		}
		defer resp.Body.Close()
		raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
		if err != nil {
			return retry.Retryable(&domain.Error{Kind: domain.KindUnknown, Op: cl.op, Status: resp.StatusCode, Err: err})
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			e := domain.StatusError(cl.op, resp.StatusCode, cl.reserve, providerMessage(raw))
			if e.Kind.Retryable() {
				c.log.Debug("provider call failed", "op", cl.op, "attempt", attempt, "status", resp.StatusCode)
				return retry.Retryable(e)
			}
			return e
		}
		if out == nil || len(bytes.TrimSpace(raw)) == 0 {
			return nil
		}
		if err := json.Unmarshal(raw, out); err != nil {
			return &domain.Error{Kind: domain.KindUnknown, Op: cl.op, Status: resp.StatusCode, Err: fmt.Errorf("decode: %w", err)}
		}
		return nil
	})
}

func regionPath(region string, parts ...string) string {
	var b strings.Builder
	b.WriteString("/tcn/")
	b.WriteString(url.PathEscape(region))
	for _, p := range parts {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(p))
	}
	return b.String()
}

// providerMessage pulls the provider's message out of an error body.
func providerMessage(raw []byte) error {
	var m struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &m); err == nil && m.Message != "" {
		return errors.New(m.Message)
	}
	if s := strings.TrimSpace(string(raw)); s != "" && len(s) < 512 {
		return errors.New(s)
	}
	return nil
}
