package delivery

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// StartSweep schedules the periodic redelivery pass. Any message a worker
// failed to apply (or that a crash stranded) gets retried here, which is
// what makes delivery at-least-once end to end.
func StartSweep(c *cron.Cron, hub *Hub, spec string) error {
	if _, err := c.AddFunc(spec, func() {
		n, err := hub.DeliverAllPending(context.Background())
		if err != nil {
			slog.Error("delivery sweep: some messages left undelivered", "delivered", n, "error", err)
			return
		}
		if n > 0 {
			slog.Debug("delivery sweep: redelivered stranded messages", "delivered", n)
		}
	}); err != nil {
		return fmt.Errorf("delivery.StartSweep: %w", err)
	}
	return nil
}
