package payment

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

// Client confirms card payments that were started elsewhere. A non-SUCCESS
// code is an answer, not an error: the caller reads it off the confirmation.
type Client struct {
	log     *slog.Logger
	hc      *http.Client
	baseURL string
	policy  retry.Policy
}

func NewClient(log *slog.Logger, baseURL string, timeout time.Duration, policy retry.Policy) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		log:     log,
		hc:      &http.Client{Timeout: timeout, Transport: otelhttp.NewTransport(http.DefaultTransport)},
		baseURL: strings.TrimRight(baseURL, "/"),
		policy:  policy,
	}
}

type confirmRequest struct {
	CandidateID     string `json:"candidateId"`
	PersonReference string `json:"personReference"`
}

func (c *Client) Confirm(ctx context.Context, receiptReference, candidateID, personReference string) (domain.PaymentConfirmation, error) {
	const op = "confirm payment"
	if receiptReference == "" {
		return domain.PaymentConfirmation{}, &domain.Error{Kind: domain.KindInvalidInput, Op: op, Err: errors.New("empty receipt reference")}
	}
	body, err := json.Marshal(confirmRequest{CandidateID: candidateID, PersonReference: personReference})
	if err != nil {
		return domain.PaymentConfirmation{}, fmt.Errorf("%s: marshal: %w", op, err)
	}
	target := c.baseURL + "/payments/" + url.PathEscape(receiptReference) + "/confirm"

	var out domain.PaymentConfirmation
	err = retry.Do(ctx, c.policy, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
		if err != nil {
			return &domain.Error{Kind: domain.KindRequest, Op: op, Err: err}
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Idempotency-Key", receiptReference)

		resp, err := c.hc.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return &domain.Error{Kind: domain.KindUnknown, Op: op, Err: ctx.Err()}
			}
			return retry.Retryable(&domain.Error{Kind: domain.KindUnknown, Op: op, Err: err})
		}
		defer resp.Body.Close()
		raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return retry.Retryable(&domain.Error{Kind: domain.KindUnknown, Op: op, Status: resp.StatusCode, Err: err})
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			e := domain.StatusError(op, resp.StatusCode, false, errors.New(strings.TrimSpace(string(raw))))
			if e.Kind.Retryable() {
				return retry.Retryable(e)
			}
			return e
		}
		if err := json.Unmarshal(raw, &out); err != nil {
			return &domain.Error{Kind: domain.KindUnknown, Op: op, Status: resp.StatusCode, Err: fmt.Errorf("decode: %w", err)}
		}
		return nil
	})
	if err != nil {
		return domain.PaymentConfirmation{}, err
	}
	c.log.Info("payment confirmation received",
		"receipt_reference", receiptReference,
		"code", out.Code,
		"payment_id", out.PaymentID,
	)
	return out, nil
}
