// Package telecom binds the catalog's action node types (send_sms,
// initiate_call, play_ivr, collect_dtmf, request_payment, refund_payment,
// send_ussd_response, http_request) to concrete outbound providers and registers them against
// a dispatcher.Registry.
package telecom

import "context"

// SMSProvider sends an outbound SMS.
type SMSProvider interface {
	SendSMS(ctx context.Context, from, to, message string) (messageID string, err error)
}

// VoiceProvider places calls and drives in-call IVR/DTMF interaction.
type VoiceProvider interface {
	InitiateCall(ctx context.Context, to, twiml string) (callID string, err error)
	UpdateCall(ctx context.Context, callID, twiml string) error
}

// PaymentProvider requests and refunds mobile-money transactions.
type PaymentProvider interface {
	RequestPayment(ctx context.Context, req PaymentRequest) (transactionID string, err error)
	RefundPayment(ctx context.Context, transactionID string) error
}

// USSDProvider delivers a USSD menu response for an in-flight session.
type USSDProvider interface {
	SendResponse(ctx context.Context, sessionID, message string, expectInput bool) error
}

// PaymentRequest is the normalized shape of a request_payment node's config
// after template rendering.
type PaymentRequest struct {
	TransactionType string
	Amount          float64
	Currency        string
	PhoneNumber     string
	ProductName     string
}
