package middleware

import (
	"context"
	"time"

	"github.com/relayworks/relay"
)

// Logging adds structured logging around a node function.
func Logging(logger relay.Logger, node string) Middleware {
	return func(fn relay.NodeFunc) relay.NodeFunc {
		return func(ctx context.Context, s *relay.State) (relay.Outcome, error) {
			logger.Debug(ctx, "node starting", "node", node)
			start := time.Now()

			out, err := fn(ctx, s)

			switch {
			case err != nil:
				logger.Error(ctx, "node failed",
					"node", node,
					"duration", time.Since(start),
					"error", err)
			case !out.Success:
				logger.Info(ctx, "node reported failure",
					"node", node,
					"duration", time.Since(start),
					"error", out.Error)
			default:
				logger.Debug(ctx, "node completed",
					"node", node,
					"duration", time.Since(start),
					"patch_keys", len(out.Patch))
			}

			return out, err
		}
	}
}
