package telephony

import (
	"context"
	"errors"
)

// VoiceGateway places automated announcement calls and reports their outcome.
//
// Rules:
// - No gateway HTTP calls outside adapters in this package.
// - One attempt per invocation; callers decide about retries.
// - Keep request/response types gateway-agnostic.
type VoiceGateway interface {
	PlaceCall(ctx context.Context, req PlaceCallRequest) (PlaceCallResult, error)
	GetCallStatus(ctx context.Context, callID string) (CallStatusResult, error)
}

// SMSGateway sends a single text message.
type SMSGateway interface {
	SendSMS(ctx context.Context, phone, content string) error
}

var (
	// ErrGatewayRejected is returned for a non-2xx answer or an explicit error flag.
	ErrGatewayRejected = errors.New("telephony: gateway rejected request")
	// ErrMalformedResponse is returned when a payload matches no known shape.
	ErrMalformedResponse = errors.New("telephony: malformed gateway response")
	ErrMissingCallID     = errors.New("telephony: gateway returned no call id")
)

type PlaceCallRequest struct {
	// Phone must already be normalized (see NormalizePhone).
	Phone string `json:"phone"`
	// AudioID references the pre-recorded announcement on the gateway.
	AudioID string `json:"audio_id"`
}

type PlaceCallResult struct {
	CallID string `json:"call_id"`
}

type CallStatusResult struct {
	CallID string  `json:"call_id"`
	Status string  `json:"status"`
	Price  float64 `json:"price"`
}
