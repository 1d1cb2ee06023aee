package payment

import (
	"context"
	"log/slog"

	"github.com/dmehra2102/test-booking-service/internal/booking/application"
	"github.com/dmehra2102/test-booking-service/internal/booking/domain"
)

// OutcomeCache is satisfied by idempotency.Store.
type OutcomeCache interface {
	Recall(ctx context.Context, key string, v any) (bool, error)
	Remember(ctx context.Context, key string, v any) error
}

// Idempotent answers repeat confirmations of a receipt from the first
// definitive outcome, so a receipt is confirmed with the provider once.
type Idempotent struct {
	log   *slog.Logger
	next  application.PaymentClient
	cache OutcomeCache
}

func NewIdempotent(log *slog.Logger, next application.PaymentClient, cache OutcomeCache) *Idempotent {
	return &Idempotent{log: log, next: next, cache: cache}
}

func outcomeKey(receiptReference string) string {
	return "payment:outcome:" + receiptReference
}

func (p *Idempotent) Confirm(ctx context.Context, receiptReference, candidateID, personReference string) (domain.PaymentConfirmation, error) {
	key := outcomeKey(receiptReference)

	var cached domain.PaymentConfirmation
	found, err := p.cache.Recall(ctx, key, &cached)
	if err != nil {
		p.log.Warn("payment outcome lookup failed", "receipt_reference", receiptReference, "err", err)
	}
	if found {
		p.log.Info("payment outcome replayed", "receipt_reference", receiptReference, "code", cached.Code)
		return cached, nil
	}

	out, err := p.next.Confirm(ctx, receiptReference, candidateID, personReference)
	if err != nil {
		return out, err
	}
	if err := p.cache.Remember(ctx, key, out); err != nil {
		p.log.Warn("payment outcome not cached", "receipt_reference", receiptReference, "err", err)
	}
	return out, nil
}
