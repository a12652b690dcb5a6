package specialist

import (
	"context"
	"time"

	"github.com/danshapiro/hive/internal/run"
)

// maxAttempts is the ladder's fixed attempt ceiling.
const maxAttempts = 3

const initialBackoff = 1 * time.Second

// delayForAttempt returns the wait before retry attempt n (1-indexed over
// retries): 1s, 2s, 4s.
func delayForAttempt(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return initialBackoff << (attempt - 1)
}

// CallWithRetry runs the retry ladder. With the ladder disabled exactly one
// attempt is made. With it enabled, attempts continue up to the ceiling but
// only while the previous outcome is retryable; each retry may substitute
// the next policy-declared fallback model and timeout. The returned meta
// carries the attempt count and the cost summed across all attempts.
func (c *Caller) CallWithRetry(ctx context.Context, in CallInput, enableLadder bool) run.SpecialistOutput {
	model := in.Config.Model
	timeoutMS := in.Config.TimeoutMS

	out := c.callOnce(ctx, in, model, timeoutMS)
	out.Meta.Attempts = 1
	if !enableLadder {
		return out
	}

	totalCost := out.Meta.CostUSD
	for attempt := 2; attempt <= maxAttempts && out.StopReason.Retryable(); attempt++ {
		if err := c.sleep(ctx, delayForAttempt(attempt-1)); err != nil {
			// Cancelled mid-backoff: keep the last real outcome.
			break
		}
		if rung := attempt - 2; rung < len(in.Config.Fallbacks) {
			model = in.Config.Fallbacks[rung].Model
			if in.Config.Fallbacks[rung].TimeoutMS > 0 {
				timeoutMS = in.Config.Fallbacks[rung].TimeoutMS
			}
		}
		c.logger.Info("retrying specialist call",
			"role", in.Role, "attempt", attempt, "model", model,
			"previous", out.StopReason, "trace_id", in.Trace.TraceID)

		attempts := attempt
		out = c.callOnce(ctx, in, model, timeoutMS)
		totalCost += out.Meta.CostUSD
		out.Meta.Attempts = attempts
	}
	out.Meta.CostUSD = totalCost
	return out
}
