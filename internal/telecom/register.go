package telecom

import (
	"context"

	"github.com/atworkflow/engine/internal/dispatcher"
	"github.com/atworkflow/engine/internal/render"
	"github.com/atworkflow/engine/internal/runtime"
)

// RegisterActions wires every action node type onto r. sms/voice/ussd may
// be nil in tests that only exercise a subset of nodes, in which case the
// corresponding node types are left unregistered.
func RegisterActions(r *dispatcher.Registry, sms SMSProvider, voice VoiceProvider, payment PaymentProvider, ussd USSDProvider) {
	client := newHTTPClient()
	r.Register("http_request", httpRequestHandler(client))

	if sms != nil {
		r.Register("send_sms", sendSMSHandler(sms))
	}
	if voice != nil {
		r.Register("initiate_call", initiateCallHandler(voice))
		r.Register("play_ivr", playIVRHandler(voice))
		r.Register("collect_dtmf", collectDTMFHandler(voice))
	}
	if payment != nil {
		r.Register("request_payment", requestPaymentHandler(payment))
		r.Register("refund_payment", refundPaymentHandler(payment))
	}
	if ussd != nil {
		r.Register("send_ussd_response", sendUSSDResponseHandler(ussd))
	}
}

func sendUSSDResponseHandler(provider USSDProvider) dispatcher.Handler {
	return func(ctx context.Context, execCtx *runtime.ExecutionContext, in runtime.HandlerInput) runtime.HandlerOutput {
		if execCtx.Session == nil {
			return runtime.HandlerOutput{Err: runtime.NewError("session_required", "send_ussd_response requires an active session", runtime.ErrorTypePermanent)}
		}
		message := render.Render(stringField(in.Config, "message"), in.Input)
		expectInput, _ := in.Config["expect_input"].(bool)

		if err := provider.SendResponse(ctx, execCtx.Session.SessionID, message, expectInput); err != nil {
			return runtime.HandlerOutput{Err: runtime.NewError("ussd_response_error", err.Error(), runtime.ErrorTypeTransient)}
		}
		return runtime.HandlerOutput{Handle: "success", Output: map[string]interface{}{"message": message, "expect_input": expectInput}}
	}
}

func sendSMSHandler(provider SMSProvider) dispatcher.Handler {
	return func(ctx context.Context, _ *runtime.ExecutionContext, in runtime.HandlerInput) runtime.HandlerOutput {
		to := render.Render(stringField(in.Config, "to"), in.Input)
		from := render.Render(stringField(in.Config, "from"), in.Input)
		message := render.Render(stringField(in.Config, "message"), in.Input)

		messageID, err := provider.SendSMS(ctx, from, to, message)
		if err != nil {
			return runtime.HandlerOutput{Err: providerError("sms_send_error", err)}
		}
		return runtime.HandlerOutput{Handle: "success", Output: map[string]interface{}{"message_id": messageID}}
	}
}

func initiateCallHandler(provider VoiceProvider) dispatcher.Handler {
	return func(ctx context.Context, _ *runtime.ExecutionContext, in runtime.HandlerInput) runtime.HandlerOutput {
		to := render.Render(stringField(in.Config, "to"), in.Input)

		callID, err := provider.InitiateCall(ctx, to, sayTwiml(""))
		if err != nil {
			return runtime.HandlerOutput{Err: providerError("call_initiation_error", err)}
		}
		return runtime.HandlerOutput{Handle: "success", Output: map[string]interface{}{"call_id": callID}}
	}
}

func playIVRHandler(provider VoiceProvider) dispatcher.Handler {
	return func(ctx context.Context, execCtx *runtime.ExecutionContext, in runtime.HandlerInput) runtime.HandlerOutput {
		if err := requireVoiceSession(execCtx, "play_ivr"); err != nil {
			return runtime.HandlerOutput{Err: err}
		}
		text := render.Render(stringField(in.Config, "text"), in.Input)
		audioURL := render.Render(stringField(in.Config, "audio_url"), in.Input)

		var twiml string
		if audioURL != "" {
			twiml = playTwiml(audioURL)
		} else {
			twiml = sayTwiml(text)
		}

		if err := provider.UpdateCall(ctx, execCtx.Session.SessionID, twiml); err != nil {
			return runtime.HandlerOutput{Err: providerError("ivr_play_error", err)}
		}
		return runtime.HandlerOutput{Handle: "success", Output: in.Input}
	}
}

func collectDTMFHandler(provider VoiceProvider) dispatcher.Handler {
	return func(ctx context.Context, execCtx *runtime.ExecutionContext, in runtime.HandlerInput) runtime.HandlerOutput {
		if err := requireVoiceSession(execCtx, "collect_dtmf"); err != nil {
			return runtime.HandlerOutput{Err: err}
		}
		prompt := render.Render(stringField(in.Config, "prompt"), in.Input)

		if err := provider.UpdateCall(ctx, execCtx.Session.SessionID, gatherTwiml(prompt)); err != nil {
			return runtime.HandlerOutput{Err: providerError("dtmf_collection_error", err)}
		}
		return runtime.HandlerOutput{Handle: "success", Output: in.Input}
	}
}

func requestPaymentHandler(provider PaymentProvider) dispatcher.Handler {
	return func(ctx context.Context, _ *runtime.ExecutionContext, in runtime.HandlerInput) runtime.HandlerOutput {
		amount := numberField(in.Config, "amount")
		req := PaymentRequest{
			TransactionType: stringField(in.Config, "transaction_type"),
			Amount:          amount,
			Currency:        stringField(in.Config, "currency"),
			PhoneNumber:     render.Render(stringField(in.Config, "phone_number"), in.Input),
			ProductName:     render.Render(stringField(in.Config, "product_name"), in.Input),
		}

		txID, err := provider.RequestPayment(ctx, req)
		if err != nil {
			return runtime.HandlerOutput{Err: providerError("payment_request_error", err)}
		}
		return runtime.HandlerOutput{Handle: "success", Output: map[string]interface{}{"transaction_id": txID}}
	}
}

func refundPaymentHandler(provider PaymentProvider) dispatcher.Handler {
	return func(ctx context.Context, _ *runtime.ExecutionContext, in runtime.HandlerInput) runtime.HandlerOutput {
		txID := render.Render(stringField(in.Config, "transaction_id"), in.Input)

		if err := provider.RefundPayment(ctx, txID); err != nil {
			return runtime.HandlerOutput{Err: providerError("payment_refund_error", err)}
		}
		return runtime.HandlerOutput{Handle: "success", Output: map[string]interface{}{"transaction_id": txID}}
	}
}

func stringField(config map[string]interface{}, key string) string {
	s, _ := config[key].(string)
	return s
}

func numberField(config map[string]interface{}, key string) float64 {
	switch n := config[key].(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return 0
	}
}

// providerError wraps a provider failure under the given action-specific
// code. Provider errors reaching this point have already lost their HTTP
// status, so classification defaults to transient: an unclassified remote
// failure is worth retrying rather than giving up on.
func providerError(code string, err error) *runtime.NodeError {
	return runtime.NewError(code, err.Error(), runtime.ErrorTypeTransient)
}

// requireVoiceSession checks that the invocation carries a session on the
// voice channel, which the in-call nodes need for the live call id.
func requireVoiceSession(execCtx *runtime.ExecutionContext, nodeType string) *runtime.NodeError {
	if execCtx.Session == nil || execCtx.Session.Channel != "voice" {
		return runtime.NewError("voice_session_required", nodeType+" requires an active voice session", runtime.ErrorTypePermanent)
	}
	return nil
}
