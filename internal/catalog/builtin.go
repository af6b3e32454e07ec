package catalog

import (
	"regexp"

	"github.com/atworkflow/engine/internal/cronexpr"
)

var httpWebhookPathPattern = regexp.MustCompile(`^/[A-Za-z0-9/_-]*$`)

// RegisterDefaults registers every node type the platform must support. It
// is called once at startup against a fresh Catalog.
func RegisterDefaults(c *Catalog) error {
	for _, e := range defaultEntries() {
		if err := c.Register(e); err != nil {
			return err
		}
	}
	return nil
}

func out(id, label, shape string) Handle {
	return Handle{ID: id, Label: label, Direction: DirectionOutput, DataShape: shape}
}

func in(id, label, shape string) Handle {
	return Handle{ID: id, Label: label, Direction: DirectionInput, DataShape: shape}
}

func defaultEntries() []*Entry {
	return []*Entry{
		// --- Triggers ---
		{
			Type: "sms_received", Category: CategoryTrigger,
			Name: "SMS Received", Description: "Fires when an inbound SMS matches the configured filters.",
			OutputHandles: []Handle{out("out", "out", "object")},
			Schema: compose(optionalString("phone_number"), optionalString("keyword"), optionalBool("case_sensitive")),
		},
		{
			Type: "ussd_session_start", Category: CategoryTrigger,
			Name: "USSD Session Start", Description: "Fires when a subscriber dials the configured service code.",
			OutputHandles:   []Handle{out("out", "out", "object")},
			Schema:          compose(optionalString("service_code")),
			RequiresSession: true,
		},
		{
			Type: "incoming_call", Category: CategoryTrigger,
			Name: "Incoming Call", Description: "Fires when a voice call reaches the configured number.",
			OutputHandles:   []Handle{out("out", "out", "object")},
			Schema:          compose(optionalString("phone_number")),
			RequiresSession: true,
		},
		{
			Type: "payment_callback", Category: CategoryTrigger,
			Name: "Payment Callback", Description: "Fires on a mobile-money transaction notification.",
			OutputHandles: []Handle{out("out", "out", "object")},
			Schema:        compose(optionalString("transaction_type"), optionalString("status")),
		},
		{
			Type: "scheduled", Category: CategoryTrigger,
			Name: "Scheduled", Description: "Fires on a cron schedule.",
			OutputHandles: []Handle{out("out", "out", "object")},
			Schema:        compose(requiredString("cron_expression"), requiredString("timezone")),
			CustomValidate: func(cfg map[string]interface{}) []FieldError {
				expr, _ := cfg["cron_expression"].(string)
				if err := cronexpr.ValidateExpression(expr); err != nil {
					return []FieldError{{Path: "cron_expression", Message: err.Error()}}
				}
				return nil
			},
		},
		{
			Type: "http_webhook", Category: CategoryTrigger,
			Name: "HTTP Webhook", Description: "Fires when a request hits the configured path.",
			OutputHandles: []Handle{out("out", "out", "object")},
			Schema: compose(
				requiredEnum("method", "GET", "POST", "PUT", "PATCH", "DELETE"),
				requiredString("path"),
				optionalBool("require_auth"),
				optionalString("auth_token"),
			),
			CustomValidate: func(cfg map[string]interface{}) []FieldError {
				path, _ := cfg["path"].(string)
				if !httpWebhookPathPattern.MatchString(path) {
					return []FieldError{{Path: "path", Message: "must match ^/[A-Za-z0-9/_-]*$"}}
				}
				return nil
			},
		},

		// --- Actions ---
		{
			Type: "send_sms", Category: CategoryAction,
			Name: "Send SMS",
			InputHandles:  []Handle{in("in", "in", "object")},
			OutputHandles: []Handle{out("success", "success", "object"), out("error", "error", "object")},
			Schema:        compose(requiredString("to"), requiredString("message"), optionalString("from")),
			DefaultRetryPolicy: &DefaultRetryPolicy{
				MaxAttempts: 3, InitialDelayMs: 500, BackoffMultiplier: 2, MaxDelayMs: 5000,
				RetryableErrors: []string{"rate_limit", "network_error"},
			},
		},
		{
			Type: "send_ussd_response", Category: CategoryAction,
			Name: "Send USSD Response",
			InputHandles:  []Handle{in("in", "in", "object")},
			OutputHandles: []Handle{out("success", "success", "object"), out("error", "error", "object")},
			Schema:        compose(requiredString("message"), optionalBool("expect_input")),
			RequiresSession: true,
		},
		{
			Type: "initiate_call", Category: CategoryAction,
			Name: "Initiate Call",
			InputHandles:  []Handle{in("in", "in", "object")},
			OutputHandles: []Handle{out("success", "success", "object"), out("error", "error", "object"), out("no_answer", "no_answer", "object")},
			Schema:          compose(requiredString("to")),
			RequiresSession: true,
		},
		{
			Type: "play_ivr", Category: CategoryAction,
			Name: "Play IVR",
			InputHandles:  []Handle{in("in", "in", "object")},
			OutputHandles: []Handle{out("success", "success", "object"), out("error", "error", "object")},
			Schema:        compose(optionalString("text"), optionalString("audio_url")),
			CustomValidate: func(cfg map[string]interface{}) []FieldError {
				text, hasText := cfg["text"].(string)
				audio, hasAudio := cfg["audio_url"].(string)
				hasText = hasText && text != ""
				hasAudio = hasAudio && audio != ""
				if hasText == hasAudio {
					return []FieldError{{Path: "text", Message: "exactly one of text or audio_url is required"}}
				}
				return nil
			},
			RequiresSession: true,
		},
		{
			Type: "collect_dtmf", Category: CategoryAction,
			Name: "Collect DTMF",
			InputHandles:  []Handle{in("in", "in", "object")},
			OutputHandles: []Handle{out("success", "success", "object"), out("error", "error", "object"), out("timeout", "timeout", "object")},
			Schema:          compose(optionalString("prompt")),
			RequiresSession: true,
		},
		{
			Type: "request_payment", Category: CategoryAction,
			Name: "Request Payment",
			InputHandles:  []Handle{in("in", "in", "object")},
			OutputHandles: []Handle{out("success", "success", "object"), out("error", "error", "object")},
			Schema: compose(
				requiredEnum("transaction_type", "checkout", "b2c", "b2b"),
				requiredNumber("amount"), requiredString("currency"),
				requiredString("phone_number"), requiredString("product_name"),
			),
		},
		{
			Type: "refund_payment", Category: CategoryAction,
			Name: "Refund Payment",
			InputHandles:  []Handle{in("in", "in", "object")},
			OutputHandles: []Handle{out("success", "success", "object"), out("error", "error", "object")},
			Schema:        compose(requiredString("transaction_id")),
		},
		{
			Type: "http_request", Category: CategoryAction,
			Name: "HTTP Request",
			InputHandles:  []Handle{in("in", "in", "object")},
			OutputHandles: []Handle{out("success", "success", "object"), out("error", "error", "object")},
			Schema: compose(
				requiredEnum("method", "GET", "POST", "PUT", "PATCH", "DELETE"),
				requiredString("url"), requiredNumber("timeout_ms"),
			),
		},

		// --- Logic ---
		{
			Type: "condition", Category: CategoryLogic,
			Name: "Condition",
			InputHandles:  []Handle{in("in", "in", "object")},
			OutputHandles: []Handle{out("true", "true", "object"), out("false", "false", "object")},
			Schema:        compose(requiredString("expression")),
		},
		{
			// Case-specific output handles (one per configured case, plus
			// "default") are instance-specific and can't be enumerated by
			// a type-level catalog entry; "default" is always present.
			Type: "switch", Category: CategoryLogic,
			Name: "Switch",
			InputHandles:  []Handle{in("in", "in", "object")},
			OutputHandles: []Handle{out("default", "default", "object")},
			Schema:        compose(requiredString("value"), requiredCaseList("cases")),
		},
		{
			Type: "delay", Category: CategoryLogic,
			Name: "Delay",
			InputHandles:  []Handle{in("in", "in", "object")},
			OutputHandles: []Handle{out("out", "out", "object")},
			Schema:        compose(requiredNumber("duration_ms")),
		},
		{
			// A policy wrapper: its own retry_policy (not its config, which
			// takes no fields) governs how many attempts the Engine makes
			// before routing to max_retries instead of failing the node.
			Type: "retry", Category: CategoryLogic,
			Name: "Retry",
			InputHandles:  []Handle{in("in", "in", "object")},
			OutputHandles: []Handle{out("success", "success", "object"), out("max_retries", "max_retries", "object")},
			Schema:        compose(),
		},
		{
			Type: "rate_limit", Category: CategoryLogic,
			Name: "Rate Limit",
			InputHandles:  []Handle{in("in", "in", "object")},
			OutputHandles: []Handle{out("out", "out", "object"), out("error", "error", "object")},
			Schema: compose(
				requiredNumber("max_requests"), requiredNumber("window_ms"),
				requiredEnum("strategy", "fixed", "sliding"), optionalString("key"),
			),
		},
		{
			Type: "merge", Category: CategoryLogic,
			Name: "Merge",
			InputHandles:          []Handle{in("in", "in", "object")},
			OutputHandles:         []Handle{out("out", "out", "object")},
			Schema:                compose(requiredEnum("strategy", "first", "last", "all", "merge")),
			AllowsMultipleInputs:  true,
		},

		// --- State ---
		{
			Type: "session_read", Category: CategoryState,
			Name: "Session Read",
			InputHandles:    []Handle{in("in", "in", "object")},
			OutputHandles:   []Handle{out("out", "out", "object")},
			Schema:          compose(optionalStringList("keys")),
			RequiresSession: true,
		},
		{
			Type: "session_write", Category: CategoryState,
			Name: "Session Write",
			InputHandles:    []Handle{in("in", "in", "object")},
			OutputHandles:   []Handle{out("out", "out", "object")},
			Schema:          compose(requiredStringMap("data"), optionalBool("merge")),
			RequiresSession: true,
		},
		{
			Type: "session_end", Category: CategoryState,
			Name: "Session End",
			InputHandles:    []Handle{in("in", "in", "object")},
			Schema:          compose(optionalString("message")),
			RequiresSession: true,
			EndsSession:     true,
		},
	}
}
