// Package worker runs the background side of the platform: the email job
// consumer and the session reminder scheduler.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/vedalearn/backend/pkg/queue"
)

// Emailer delivers one email. The default implementation only logs; a real
// SMTP/SES sender plugs in behind this interface.
type Emailer interface {
	Send(ctx context.Context, recipient, subject, bodyHTML string) error
}

// LogEmailer writes would-be emails to the log. Used until outbound email
// credentials are configured.
type LogEmailer struct {
	Logger *zap.Logger
}

func (l *LogEmailer) Send(_ context.Context, recipient, subject, _ string) error {
	l.Logger.Info("email (log only)",
		zap.String("recipient", recipient), zap.String("subject", subject))
	return nil
}

// EmailProcessor consumes email jobs from the queue.
type EmailProcessor struct {
	queue   *queue.Queue
	emailer Emailer
	logger  *zap.Logger
}

func NewEmailProcessor(q *queue.Queue, emailer Emailer, logger *zap.Logger) *EmailProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EmailProcessor{queue: q, emailer: emailer, logger: logger}
}

// Process executes one email job.
func (p *EmailProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeEmail {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.EmailPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	if payload.RecipientEmail == "" {
		p.logger.Warn("email job without recipient, dropping", zap.String("job_id", job.ID))
		return nil
	}
	if err := p.emailer.Send(ctx, payload.RecipientEmail, payload.Subject, payload.BodyHTML); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}

// Run blocks consuming jobs until ctx is cancelled. Failed jobs go back
// through the queue's retry/DLQ policy.
func (p *EmailProcessor) Run(ctx context.Context) {
	p.logger.Info("email worker started")
	for {
		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				p.logger.Info("email worker stopped")
				return
			}
			p.logger.Warn("dequeue failed", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}
		if job == nil {
			continue
		}
		if err := p.Process(ctx, job); err != nil {
			p.logger.Warn("email job failed", zap.Error(err), zap.String("job_id", job.ID),
				zap.Int("attempt", job.Attempt))
			if rerr := p.queue.Retry(ctx, job); rerr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(rerr), zap.String("job_id", job.ID))
			}
		}
	}
}

// ReminderSource fans out reminders for sessions starting within the lead
// window. Implemented by the session service.
type ReminderSource interface {
	SendDueReminders(ctx context.Context, lead time.Duration) int
}

// ReminderScheduler ticks periodically and triggers due session reminders.
type ReminderScheduler struct {
	source ReminderSource
	lead   time.Duration
	tick   time.Duration
	logger *zap.Logger
}

func NewReminderScheduler(source ReminderSource, lead time.Duration, logger *zap.Logger) *ReminderScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if lead <= 0 {
		lead = 30 * time.Minute
	}
	return &ReminderScheduler{source: source, lead: lead, tick: time.Minute, logger: logger}
}

// Run blocks until ctx is cancelled, checking for due reminders every tick.
func (s *ReminderScheduler) Run(ctx context.Context) {
	s.logger.Info("reminder scheduler started", zap.Duration("lead", s.lead))
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("reminder scheduler stopped")
			return
		case <-ticker.C:
			if sent := s.source.SendDueReminders(ctx, s.lead); sent > 0 {
				s.logger.Info("session reminders sent", zap.Int("count", sent))
			}
		}
	}
}
