package domain

type PaymentCode string

const (
	PaymentSuccess       PaymentCode = "SUCCESS"
	PaymentUserCancelled PaymentCode = "USER_CANCELLED"
	PaymentGatewayError  PaymentCode = "GATEWAY_ERROR"
	PaymentSystemError   PaymentCode = "SYSTEM_ERROR"
)

type PaymentConfirmation struct {
	Code      PaymentCode `json:"code"`
	PaymentID string      `json:"paymentId"`
	Message   string      `json:"message"`
}

// Failure returns nil on SUCCESS and the matching payment error otherwise.
// Unknown codes land in the unsuccessful bucket.
func (p PaymentConfirmation) Failure() error {
	var kind Kind
	switch p.Code {
	case PaymentSuccess:
		return nil
	case PaymentUserCancelled:
		kind = KindPaymentUserCancelled
	case PaymentGatewayError:
		kind = KindPaymentGateway
	case PaymentSystemError:
		kind = KindPaymentSystem
	default:
		kind = KindPaymentUnsuccessful
	}
	return &Error{Kind: kind, Op: "confirm payment", Err: paymentMessage(p)}
}

type paymentMessage PaymentConfirmation

func (m paymentMessage) Error() string {
	if m.Message == "" {
		return "code " + string(m.Code)
	}
	return "code " + string(m.Code) + ": " + m.Message
}
