package progress

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/vertextoedge/modfetch/internal/domain"
	"github.com/vertextoedge/modfetch/internal/port"
	"github.com/vertextoedge/modfetch/internal/util/ratelimiter"
)

// Console logs progress lines, at most one per request per interval
type Console struct {
	logger  *zap.Logger
	limiter *ratelimiter.Limiter
}

var _ port.LifecycleReporter = (*Console)(nil)

// NewConsole creates a console reporter
func NewConsole(logger *zap.Logger, interval time.Duration) *Console {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Console{
		logger:  logger,
		limiter: ratelimiter.New(interval),
	}
}

// Report logs the event unless this request logged recently. A finished
// transfer is always logged.
func (c *Console) Report(event domain.ProgressEvent) {
	finished := event.BytesTotal > 0 && event.BytesDone >= event.BytesTotal
	if finished {
		c.limiter.Forget(event.RequestID)
		c.logger.Info("transfer finished",
			zap.String("request_id", event.RequestID),
			zap.String("size", FormatBytes(event.BytesDone)))
		return
	}

	if allowed, _ := c.limiter.Allow(event.RequestID); !allowed {
		return
	}

	fields := []zap.Field{
		zap.String("request_id", event.RequestID),
		zap.String("done", FormatBytes(event.BytesDone)),
		zap.String("rate", FormatBytes(int64(event.Rate))+"/s"),
	}
	if f := event.Fraction(); f >= 0 {
		fields = append(fields,
			zap.String("total", FormatBytes(event.BytesTotal)),
			zap.String("percent", fmt.Sprintf("%.1f%%", f*100)))
	}
	c.logger.Info("download progress", fields...)
}

// ReportLifecycle logs stage transitions. Retries and failures are
// warnings; the rest is debug output except a finished download.
func (c *Console) ReportLifecycle(event domain.LifecycleEvent) {
	id := zap.String("request_id", event.RequestID)
	switch event.Stage {
	case domain.StageDownloadStarted:
		fields := []zap.Field{id}
		if event.Size > 0 {
			fields = append(fields, zap.String("size", FormatBytes(event.Size)))
		}
		c.logger.Debug("download started", fields...)
	case domain.StageDownloadCompleted:
		c.limiter.Forget(event.RequestID)
		c.logger.Info("download complete", id, zap.String("size", FormatBytes(event.Size)))
	case domain.StageRetrying:
		c.logger.Warn("retrying download", id,
			zap.String("attempt", fmt.Sprintf("%d/%d", event.Attempt, event.MaxRetries+1)),
			zap.Duration("wait", event.Wait),
			zap.Error(event.Err))
	case domain.StageValidationStarted:
		c.logger.Info("validating", id, zap.String("size", FormatBytes(event.Size)))
	case domain.StageValidationCompleted:
		if event.Valid {
			c.logger.Debug("validation passed", id)
		} else {
			c.logger.Warn("validation failed", id, zap.Error(event.Err))
		}
	case domain.StageFailed:
		c.limiter.Forget(event.RequestID)
		c.logger.Warn("download error", id, zap.Error(event.Err))
	}
}

// FormatBytes renders a byte count with a binary unit
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
