package dispatcher

import (
	"context"
	"time"

	"github.com/atworkflow/engine/internal/ratelimit"
	"github.com/atworkflow/engine/internal/render"
	"github.com/atworkflow/engine/internal/runtime"
	"github.com/atworkflow/engine/internal/session"
)

// Limiters bundles the two rate_limit window strategies; either may be nil
// when no limiter backend is configured.
type Limiters struct {
	Fixed   ratelimit.Limiter
	Sliding ratelimit.Limiter
}

// RegisterBuiltins installs the handlers for every logic and state node
// type except merge, which the Engine coordinates itself. Action handlers (send_sms etc.) live in internal/telecom and are
// registered separately against the same Registry.
func RegisterBuiltins(r *Registry, store session.Store, limiters Limiters) {
	r.Register("condition", conditionHandler)
	r.Register("switch", switchHandler)
	r.Register("delay", delayHandler)
	r.Register("retry", retryHandler)
	r.Register("session_read", sessionReadHandler(store))
	r.Register("session_write", sessionWriteHandler(store))
	r.Register("session_end", sessionEndHandler(store))
	r.Register("rate_limit", rateLimitHandler(limiters))
}

func conditionHandler(_ context.Context, _ *runtime.ExecutionContext, in runtime.HandlerInput) runtime.HandlerOutput {
	expression, _ := in.Config["expression"].(string)
	if render.EvaluatePredicate(expression, in.Input) {
		return runtime.HandlerOutput{Handle: "true", Output: in.Input}
	}
	return runtime.HandlerOutput{Handle: "false", Output: in.Input}
}

func switchHandler(_ context.Context, _ *runtime.ExecutionContext, in runtime.HandlerInput) runtime.HandlerOutput {
	valueTemplate, _ := in.Config["value"].(string)
	rendered := render.Render(valueTemplate, in.Input)

	cases, _ := in.Config["cases"].([]interface{})
	for _, c := range cases {
		caseObj, ok := c.(map[string]interface{})
		if !ok {
			continue
		}
		value, _ := caseObj["value"].(string)
		if value == rendered {
			return runtime.HandlerOutput{Handle: rendered, Output: in.Input}
		}
	}
	return runtime.HandlerOutput{Handle: "default", Output: in.Input}
}

// retryHandler is the identity pass-through the retry policy wrapper
// dispatches to; its own retry_policy (see engine.effectivePolicy) governs
// how many times the Engine re-dispatches it before routing to
// max_retries (see engine.go's retry-exhaustion handling) instead of
// failing the node.
func retryHandler(ctx context.Context, _ *runtime.ExecutionContext, in runtime.HandlerInput) runtime.HandlerOutput {
	select {
	case <-ctx.Done():
		return runtime.HandlerOutput{Err: runtime.NewError("deadline_exceeded", "retry node exceeded its deadline", runtime.ErrorTypeTransient)}
	default:
		return runtime.HandlerOutput{Handle: "success", Output: in.Input}
	}
}

func delayHandler(ctx context.Context, _ *runtime.ExecutionContext, in runtime.HandlerInput) runtime.HandlerOutput {
	durationMs, _ := toFloat(in.Config["duration_ms"])
	d := time.Duration(durationMs) * time.Millisecond

	select {
	case <-time.After(d):
		return runtime.HandlerOutput{Handle: "out", Output: in.Input}
	case <-ctx.Done():
		return runtime.HandlerOutput{Err: runtime.NewError("deadline_exceeded", "delay interrupted by deadline", runtime.ErrorTypeTransient)}
	}
}

// sessionReadHandler projects session.data into the node's output. When
// the config names specific keys, only those are projected; otherwise the
// whole data map is returned.
func sessionReadHandler(store session.Store) Handler {
	return func(_ context.Context, execCtx *runtime.ExecutionContext, in runtime.HandlerInput) runtime.HandlerOutput {
		if execCtx.Session == nil {
			return runtime.HandlerOutput{Err: runtime.NewError("session_required", "session_read requires an active session", runtime.ErrorTypePermanent)}
		}
		rec, err := store.Get(execCtx.Session.SessionID)
		if err != nil {
			return runtime.HandlerOutput{Err: runtime.NewError("session_store_error", err.Error(), runtime.ErrorTypeTransient)}
		}
		if rec == nil {
			return runtime.HandlerOutput{Err: runtime.NewError("session_not_found", "session is no longer active", runtime.ErrorTypePermanent)}
		}
		execCtx.Session.Data = rec.Data

		keys, _ := in.Config["keys"].([]interface{})
		if len(keys) == 0 {
			return runtime.HandlerOutput{Handle: "out", Output: rec.Data}
		}
		projected := make(map[string]interface{}, len(keys))
		for _, k := range keys {
			name, ok := k.(string)
			if !ok {
				continue
			}
			if v, exists := rec.Data[name]; exists {
				projected[name] = v
			}
		}
		return runtime.HandlerOutput{Handle: "out", Output: projected}
	}
}

// sessionWriteHandler writes the node's configured data map into
// session.data, rendering each string value against the node's input
// scope first. The store's update merges key-by-key; a write with
// merge=false still routes through the same update, so keys absent from
// the configured map are retained rather than cleared.
func sessionWriteHandler(store session.Store) Handler {
	return func(_ context.Context, execCtx *runtime.ExecutionContext, in runtime.HandlerInput) runtime.HandlerOutput {
		if execCtx.Session == nil {
			return runtime.HandlerOutput{Err: runtime.NewError("session_required", "session_write requires an active session", runtime.ErrorTypePermanent)}
		}
		data, _ := in.Config["data"].(map[string]interface{})
		rendered := render.RenderMap(data, in.Input)

		rec, err := store.UpdateData(execCtx.Session.SessionID, rendered)
		if err != nil {
			return runtime.HandlerOutput{Err: runtime.NewError("session_store_error", err.Error(), runtime.ErrorTypeTransient)}
		}
		execCtx.Session.Data = rec.Data
		return runtime.HandlerOutput{Handle: "out", Output: rec.Data}
	}
}

func sessionEndHandler(store session.Store) Handler {
	return func(_ context.Context, execCtx *runtime.ExecutionContext, in runtime.HandlerInput) runtime.HandlerOutput {
		if execCtx.Session == nil {
			return runtime.HandlerOutput{Err: runtime.NewError("session_required", "session_end requires an active session", runtime.ErrorTypePermanent)}
		}
		if err := store.End(execCtx.Session.SessionID); err != nil {
			return runtime.HandlerOutput{Err: runtime.NewError("session_store_error", err.Error(), runtime.ErrorTypeTransient)}
		}
		return runtime.HandlerOutput{Handle: "out", Output: in.Input}
	}
}

func rateLimitHandler(limiters Limiters) Handler {
	return func(ctx context.Context, execCtx *runtime.ExecutionContext, in runtime.HandlerInput) runtime.HandlerOutput {
		var limiter ratelimit.Limiter
		if strategy, _ := in.Config["strategy"].(string); strategy == "fixed" {
			limiter = limiters.Fixed
		} else {
			limiter = limiters.Sliding
		}
		if limiter == nil {
			return runtime.HandlerOutput{Err: runtime.NewError("rate_limit_backend_error", "no rate limiter backend configured", runtime.ErrorTypePermanent)}
		}

		key, _ := in.Config["key"].(string)
		if key == "" {
			key = in.NodeID
		} else {
			key = render.Render(key, in.Input)
		}
		maxRequests, _ := toFloat(in.Config["max_requests"])
		windowMs, _ := toFloat(in.Config["window_ms"])
		window := time.Duration(windowMs) * time.Millisecond

		allowed, err := limiter.Allow(ctx, key, int64(maxRequests), window)
		if err != nil {
			return runtime.HandlerOutput{Err: runtime.NewError("rate_limit_backend_error", err.Error(), runtime.ErrorTypeTransient)}
		}
		if !allowed {
			return runtime.HandlerOutput{Err: runtime.NewError("rate_limited", "rate limit exceeded", runtime.ErrorTypeRateLimit)}
		}
		return runtime.HandlerOutput{Handle: "out", Output: in.Input}
	}
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
