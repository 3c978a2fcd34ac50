package queue

import (
	"context"
	"log/slog"

	"github.com/eventease/booking-service/internal/model"
)

// LogAuditor writes audit lines through the application logger.  It is
// used when no broker is configured.
type LogAuditor struct {
	log *slog.Logger
}

func NewLogAuditor(log *slog.Logger) *LogAuditor { return &LogAuditor{log: log} }

func (a *LogAuditor) BookingConfirmed(_ context.Context, rec model.AuditRecord) error {
	ev := NewBookingConfirmedEvent(rec)
	a.log.Info(ev.Line(),
		slog.String("op", "queue.LogAuditor.BookingConfirmed"),
		slog.Uint64("booking_id", ev.BookingID),
	)
	return nil
}
