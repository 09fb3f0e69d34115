package poller

import (
	"context"
	"time"

	logger "github.com/sirupsen/logrus"

	"tradetrace/src/controller"
)

// StartLoop re-polls the brokerage for every trace that has not reached a
// terminal trade status yet. Terminal traces are settled history and are
// never touched again.
func StartLoop(ctx context.Context) error {
	config := GetConfig()

	ticker := time.NewTicker(config.LoopPeriod) // Set up a ticker that fires periodically
	defer ticker.Stop()

	pipeline := controller.NewPipelineController()

	for {
		select {
		case <-ctx.Done():
			logger.Println("loop stopped")
			return nil
		case <-ticker.C:
			refreshOpenTraces(ctx, pipeline)
		}
	}
}

func refreshOpenTraces(ctx context.Context, pipeline *controller.PipelineController) {
	traces, err := pipeline.ListTraces(ctx)
	if err != nil {
		logger.WithError(err).Error("Failed to list traces")
		return
	}

	for _, trace := range traces {
		if trace.TradovateStatus.Terminal() {
			continue
		}
		if err := pipeline.RefreshTrace(ctx, trace.TraceID); err != nil {
			logger.WithFields(map[string]interface{}{
				"component": "poller",
				"trace_id":  trace.TraceID,
			}).WithError(err).Warn("Failed to refresh trace, will retry next tick")
		}
	}
}
