package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind tags every failure the saga can observe. The set is closed: code that
// branches on it should switch over all values.
type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidSlot
	KindSlotUnavailable
	KindAuth
	KindRequest
	KindServer
	KindConflict
	KindNotFound
	KindInvalidInput
	KindPaymentUserCancelled
	KindPaymentGateway
	KindPaymentSystem
	KindPaymentUnsuccessful
	KindCrmServer
)

func (k Kind) String() string {
	switch k {
	case KindInvalidSlot:
		return "invalid_slot"
	case KindSlotUnavailable:
		return "slot_unavailable"
	case KindAuth:
		return "auth"
	case KindRequest:
		return "request"
	case KindServer:
		return "server"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindInvalidInput:
		return "invalid_input"
	case KindPaymentUserCancelled:
		return "payment_user_cancelled"
	case KindPaymentGateway:
		return "payment_gateway_error"
	case KindPaymentSystem:
		return "payment_system_error"
	case KindPaymentUnsuccessful:
		return "payment_unsuccessful"
	case KindCrmServer:
		return "crm_server_error"
	default:
		return "unknown"
	}
}

// Retryable reports whether a transport retry may turn the failure into a success.
func (k Kind) Retryable() bool {
	return k == KindServer || k == KindUnknown
}

func (k Kind) Payment() bool {
	switch k {
	case KindPaymentUserCancelled, KindPaymentGateway, KindPaymentSystem, KindPaymentUnsuccessful:
		return true
	}
	return false
}

type Error struct {
	Kind   Kind
	Op     string
	Status int
	Err    error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status=%d)", msg, e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches sentinels of the same kind, so errors.Is(err, ErrSlotUnavailable)
// holds for any slot conflict regardless of op or status.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Status == 0 && t.Err == nil && t.Kind == e.Kind
}

var (
	ErrInvalidSlot          = &Error{Kind: KindInvalidSlot}
	ErrSlotUnavailable      = &Error{Kind: KindSlotUnavailable}
	ErrAuth                 = &Error{Kind: KindAuth}
	ErrRequest              = &Error{Kind: KindRequest}
	ErrServer               = &Error{Kind: KindServer}
	ErrConflict             = &Error{Kind: KindConflict}
	ErrNotFound             = &Error{Kind: KindNotFound}
	ErrInvalidInput         = &Error{Kind: KindInvalidInput}
	ErrPaymentUserCancelled = &Error{Kind: KindPaymentUserCancelled}
	ErrPaymentGateway       = &Error{Kind: KindPaymentGateway}
	ErrPaymentSystem        = &Error{Kind: KindPaymentSystem}
	ErrPaymentUnsuccessful  = &Error{Kind: KindPaymentUnsuccessful}
	ErrCrmServer            = &Error{Kind: KindCrmServer}
)

func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// StatusError builds the error for a non-2xx provider response. A 409 on
// reserve is a taken slot; anywhere else it is a generic conflict.
func StatusError(op string, status int, reserve bool, cause error) *Error {
	kind := KindUnknown
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = KindAuth
	case status == http.StatusNotFound:
		kind = KindNotFound
	case status == http.StatusConflict && reserve:
		kind = KindSlotUnavailable
	case status == http.StatusConflict:
		kind = KindConflict
	case status >= 400 && status < 500:
		kind = KindRequest
	case status >= 500:
		kind = KindServer
	}
	return &Error{Kind: kind, Op: op, Status: status, Err: cause}
}

type ErrorClass string

const (
	ClassAuth          ErrorClass = "auth"
	ClassClientRequest ErrorClass = "client_request"
	ClassServerError   ErrorClass = "server_error"
	ClassConflict      ErrorClass = "conflict"
	ClassInvalidInput  ErrorClass = "invalid_input"
	ClassUnknown       ErrorClass = "unknown"
)

func ClassifyStatus(status int) ErrorClass {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ClassAuth
	case status == http.StatusConflict:
		return ClassConflict
	case status >= 400 && status < 500:
		return ClassClientRequest
	case status >= 500:
		return ClassServerError
	default:
		return ClassUnknown
	}
}

// ClassOf derives the telemetry class of err. The transport status wins when
// one was observed; otherwise the kind decides.
func ClassOf(err error) ErrorClass {
	if err == nil {
		return ""
	}
	var e *Error
	if !errors.As(err, &e) {
		return ClassUnknown
	}
	if e.Status != 0 {
		return ClassifyStatus(e.Status)
	}
	switch e.Kind {
	case KindAuth:
		return ClassAuth
	case KindRequest, KindNotFound:
		return ClassClientRequest
	case KindServer, KindCrmServer:
		return ClassServerError
	case KindConflict, KindSlotUnavailable:
		return ClassConflict
	case KindInvalidSlot, KindInvalidInput:
		return ClassInvalidInput
	default:
		return ClassUnknown
	}
}
