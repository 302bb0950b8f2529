package worker

import (
	"context"
	"log"
	"time"

	"heartwise/config"
	"heartwise/queue"
	"heartwise/utils"
)

// QueueWorker drives the email queue on a timer: each tick requeues stale
// claims left behind by a crashed pass, then processes everything due.
type QueueWorker struct {
	Scheduler *queue.Scheduler
	Interval  time.Duration
	StaleAge  time.Duration
	Logger    *log.Logger
}

func NewQueueWorker(scheduler *queue.Scheduler, logger *log.Logger) *QueueWorker {
	return &QueueWorker{
		Scheduler: scheduler,
		Interval:  config.AppConfig.QueueInterval,
		StaleAge:  config.AppConfig.StaleClaimTimeout,
		Logger:    logger,
	}
}

func (qw *QueueWorker) Start(ctx context.Context) {
	// Initial delay to let the server start up
	time.Sleep(10 * time.Second)

	qw.Logger.Println("Queue worker started")

	ticker := time.NewTicker(qw.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			qw.Logger.Println("Queue worker shutting down...")
			return
		case <-ticker.C:
			qw.runPass(ctx)
		}
	}
}

func (qw *QueueWorker) runPass(ctx context.Context) {
	requeued, err := qw.Scheduler.RequeueStale(qw.StaleAge)
	if err != nil {
		qw.Logger.Printf("Error requeuing stale entries: %v", err)
	} else if requeued > 0 {
		qw.Logger.Printf("Requeued %d stale entries", requeued)
	}

	summary, err := qw.Scheduler.ProcessDue(ctx, time.Now())
	if err != nil {
		qw.Logger.Printf("Error processing queue: %v", err)
		return
	}

	if summary.Sent > 0 || summary.Failed > 0 || summary.Skipped > 0 {
		qw.Logger.Printf("Queue pass complete: %d sent, %d failed, %d skipped",
			summary.Sent, summary.Failed, summary.Skipped)
	}

	if summary.Failed > 0 {
		utils.LogEvent("queue_pass_failures", map[string]interface{}{
			"failed": summary.Failed,
			"sent":   summary.Sent,
		})
		if config.AppConfig.SMTP.AlertEmail != "" {
			if err := utils.SendQueueAlertEmail(config.AppConfig.SMTP.AlertEmail, summary.Failed); err != nil {
				qw.Logger.Printf("Error sending queue alert email: %v", err)
			}
		}
	}
}
