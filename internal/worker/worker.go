package worker

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"shuttleattendance/internal/attendance"
	"shuttleattendance/internal/metrics"
	"shuttleattendance/internal/queue"
	"shuttleattendance/internal/tally"
)

// Applier counts an accepted scan.
type Applier interface {
	Apply(ctx context.Context, e tally.Entry) (bool, error)
}

// Run consumes recorded-attendance messages until ctx is done or the queue closes.
func Run(ctx context.Context, q queue.Queue, tl Applier, log *zap.Logger) error {
	messages, err := q.Consume(ctx)
	if err != nil {
		return err
	}
	log.Info("worker started, waiting for messages")
	for msg := range messages {
		handle(ctx, msg, tl, log)
	}
	log.Info("worker stopped")
	return nil
}

func handle(ctx context.Context, msg queue.Message, tl Applier, log *zap.Logger) {
	if msg.Type != queue.TypeAttendanceRecorded {
		log.Debug("skipping message", zap.String("type", msg.Type))
		return
	}
	var evt attendance.RecordedEvent
	if err := json.Unmarshal(msg.Body, &evt); err != nil {
		log.Warn("undecodable recorded event", zap.Error(err))
		metrics.ObserveTally(false)
		return
	}
	changed, err := tl.Apply(ctx, tally.Entry{
		ID:             evt.ID,
		DateKey:        evt.DateKey,
		Slot:           string(evt.Slot),
		SupervisorID:   evt.SupervisorID,
		SupervisorName: evt.SupervisorName,
	})
	if err != nil {
		log.Error("apply tally", zap.Error(err), zap.String("id", evt.ID))
		metrics.ObserveTally(false)
		return
	}
	metrics.ObserveTally(true)
	if !changed {
		log.Debug("recorded event already counted", zap.String("id", evt.ID))
	}
}
