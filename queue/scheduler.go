package queue

import (
	"context"
	"fmt"
	"log"
	"time"

	"heartwise/models"
	"heartwise/provider"
	"heartwise/utils"
)

// Summary is what one processing pass did
type Summary struct {
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// Scheduler computes per-subscriber send times from template delay rules
// and processes due entries through the active provider adapter.
type Scheduler struct {
	Store    Store
	Registry *provider.Registry
	Logger   *log.Logger
}

func NewScheduler(store Store, registry *provider.Registry, logger *log.Logger) *Scheduler {
	return &Scheduler{
		Store:    store,
		Registry: registry,
		Logger:   logger,
	}
}

// Enroll queues one entry per active template in the sequence, scheduled at
// enrollment time plus the template's day offset. Pairs that are already
// queued or sent are left alone, so re-enrollment is a no-op for them.
// Returns the number of entries created.
func (s *Scheduler) Enroll(subscriberID, sequenceID uint, enrolledAt time.Time) (int, error) {
	templates, err := s.Store.ActiveTemplates(sequenceID)
	if err != nil {
		return 0, fmt.Errorf("loading sequence templates: %w", err)
	}
	if len(templates) == 0 {
		return 0, nil
	}

	templateIDs := make([]uint, len(templates))
	for i, t := range templates {
		templateIDs[i] = t.ID
	}
	existing, err := s.Store.EnqueuedPairs(subscriberID, templateIDs)
	if err != nil {
		return 0, fmt.Errorf("checking existing queue entries: %w", err)
	}

	var entries []models.EmailQueueEntry
	for _, t := range templates {
		if existing[t.ID] {
			continue
		}
		entries = append(entries, models.EmailQueueEntry{
			SubscriberID: subscriberID,
			TemplateID:   t.ID,
			ScheduledFor: enrolledAt.Add(time.Duration(t.DelayDays) * 24 * time.Hour),
			Status:       models.QueueStatusQueued,
		})
	}
	if err := s.Store.CreateEntries(entries); err != nil {
		return 0, fmt.Errorf("creating queue entries: %w", err)
	}
	return len(entries), nil
}

// ProcessDue claims and sends every queued entry scheduled at or before
// now, in scheduledFor order. Each entry is claimed with a conditional
// queued→processing update before anything else happens, so overlapping
// passes can never send the same entry twice. One entry failing never stops
// the rest of the batch.
func (s *Scheduler) ProcessDue(ctx context.Context, now time.Time) (Summary, error) {
	var summary Summary

	due, err := s.Store.DueEntries(now)
	if err != nil {
		return summary, fmt.Errorf("selecting due entries: %w", err)
	}

	for i := range due {
		entry := &due[i]
		claimed, err := s.Store.ClaimEntry(entry.ID, now)
		if err != nil {
			s.Logger.Printf("Error claiming queue entry %d: %v", entry.ID, err)
			continue
		}
		if !claimed {
			// Another pass owns it, or it left queued in the meantime
			continue
		}

		switch s.processEntry(ctx, entry, now) {
		case models.QueueStatusSent:
			summary.Sent++
		case models.QueueStatusFailed:
			summary.Failed++
		case models.QueueStatusSkipped:
			summary.Skipped++
		}
	}
	return summary, nil
}

// processEntry handles one claimed entry and returns its terminal status
func (s *Scheduler) processEntry(ctx context.Context, entry *models.EmailQueueEntry, now time.Time) string {
	finish := func(status, message string) string {
		if err := s.Store.FinishEntry(entry.ID, status, message, time.Now()); err != nil {
			s.Logger.Printf("Error finishing queue entry %d: %v", entry.ID, err)
		}
		return status
	}

	subscriber, err := s.Store.Subscriber(entry.SubscriberID)
	if err != nil {
		return finish(models.QueueStatusFailed, fmt.Sprintf("subscriber lookup failed: %v", err))
	}
	if subscriber.IsUnsubscribed {
		return finish(models.QueueStatusSkipped, "subscriber unsubscribed")
	}

	template, err := s.Store.Template(entry.TemplateID)
	if err != nil {
		return finish(models.QueueStatusFailed, fmt.Sprintf("template lookup failed: %v", err))
	}
	if !template.IsActive {
		return finish(models.QueueStatusSkipped, "template deactivated")
	}

	adapter, err := s.Registry.Active()
	if err != nil {
		status := finish(models.QueueStatusFailed, err.Error())
		s.recordHistory(entry, "", models.QueueStatusFailed, err.Error(), now)
		return status
	}

	msg := provider.Message{
		To:      subscriber.Email,
		Subject: utils.Personalize(template.Subject, subscriber),
		HTML:    utils.Personalize(template.Content, subscriber),
	}
	if template.AttachLeadMagnet && template.AttachmentPath != "" {
		msg.Attachment = template.AttachmentPath
	}

	result := adapter.SendEmail(ctx, msg)
	if !result.Success {
		utils.LogError("queue_send_failed", fmt.Errorf("%s", result.Message), map[string]interface{}{
			"queue_entry_id": entry.ID,
			"subscriber_id":  entry.SubscriberID,
			"template_id":    entry.TemplateID,
			"provider":       adapter.Name(),
		})
		status := finish(models.QueueStatusFailed, result.Message)
		s.recordHistory(entry, adapter.Name(), models.QueueStatusFailed, result.Message, now)
		return status
	}

	status := finish(models.QueueStatusSent, "")
	s.recordHistory(entry, adapter.Name(), models.QueueStatusSent, result.SubscriberID, now)
	if err := s.Store.IncrementTemplateSent(entry.TemplateID); err != nil {
		s.Logger.Printf("Error updating template sent count: %v", err)
	}
	return status
}

func (s *Scheduler) recordHistory(entry *models.EmailQueueEntry, providerName, status, metadata string, now time.Time) {
	entryID := entry.ID
	h := &models.EmailHistory{
		SubscriberID: entry.SubscriberID,
		TemplateID:   entry.TemplateID,
		QueueEntryID: &entryID,
		Provider:     providerName,
		Status:       status,
		Metadata:     metadata,
		SentAt:       now,
	}
	if err := s.Store.RecordHistory(h); err != nil {
		s.Logger.Printf("Error recording email history for entry %d: %v", entry.ID, err)
	}
}

// CancelForSubscriber moves all of the subscriber's still-queued entries to
// cancelled. Entries already claimed by a processing pass complete normally.
func (s *Scheduler) CancelForSubscriber(subscriberID uint) (int64, error) {
	return s.Store.CancelQueuedForSubscriber(subscriberID)
}

// RequeueStale recovers entries whose claim outlived maxAge (a crash
// between claim and completion). Called from the background worker only.
func (s *Scheduler) RequeueStale(maxAge time.Duration) (int64, error) {
	return s.Store.RequeueStale(time.Now().Add(-maxAge))
}
