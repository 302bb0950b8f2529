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

// Orchestrator is the single entry point callers use: admin actions and the
// quiz intake go through it instead of talking to adapters directly.
type Orchestrator struct {
	Store     Store
	Registry  *provider.Registry
	Scheduler *Scheduler
	Logger    *log.Logger
}

func NewOrchestrator(store Store, registry *provider.Registry, logger *log.Logger) *Orchestrator {
	return &Orchestrator{
		Store:     store,
		Registry:  registry,
		Scheduler: NewScheduler(store, registry, logger),
		Logger:    logger,
	}
}

// TriggerQueueProcessing runs one processing pass over everything due now
func (o *Orchestrator) TriggerQueueProcessing(ctx context.Context) (Summary, error) {
	return o.Scheduler.ProcessDue(ctx, time.Now())
}

// SendNow sends one template to one subscriber immediately, bypassing the
// queue but using the same adapter contract and recording history the same
// way.
func (o *Orchestrator) SendNow(ctx context.Context, subscriberID, templateID uint) provider.Result {
	subscriber, err := o.Store.Subscriber(subscriberID)
	if err != nil {
		return provider.Result{Success: false, Message: "subscriber not found", Error: err.Error()}
	}
	if subscriber.IsUnsubscribed {
		return provider.Result{Success: false, Message: "subscriber is unsubscribed", Error: "subscriber unsubscribed"}
	}
	template, err := o.Store.Template(templateID)
	if err != nil {
		return provider.Result{Success: false, Message: "template not found", Error: err.Error()}
	}
	adapter, err := o.Registry.Active()
	if err != nil {
		return provider.Result{Success: false, Message: err.Error(), Error: "configuration error"}
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
	status := models.QueueStatusSent
	metadata := result.SubscriberID
	if !result.Success {
		status = models.QueueStatusFailed
		metadata = result.Message
		utils.LogError("ad_hoc_send_failed", fmt.Errorf("%s", result.Message), map[string]interface{}{
			"subscriber_id": subscriberID,
			"template_id":   templateID,
			"provider":      adapter.Name(),
		})
	}
	h := &models.EmailHistory{
		SubscriberID: subscriberID,
		TemplateID:   templateID,
		Provider:     adapter.Name(),
		Status:       status,
		Metadata:     metadata,
		SentAt:       time.Now(),
	}
	if err := o.Store.RecordHistory(h); err != nil {
		o.Logger.Printf("Error recording history for ad hoc send: %v", err)
	}
	return result
}

// SyncSubscriber upserts the subscriber on the active marketing provider.
// Providers without subscriber management just report unsupported; that is
// surfaced, not treated as a fault.
func (o *Orchestrator) SyncSubscriber(ctx context.Context, subscriber *models.Subscriber) provider.Result {
	adapter, err := o.Registry.Active()
	if err != nil {
		return provider.Result{Success: false, Message: err.Error(), Error: "configuration error"}
	}
	return adapter.AddSubscriber(ctx, toProviderSubscriber(subscriber), "")
}

// RemoveSubscriber removes the email from the active provider's list
func (o *Orchestrator) RemoveSubscriber(ctx context.Context, email string) provider.Result {
	adapter, err := o.Registry.Active()
	if err != nil {
		return provider.Result{Success: false, Message: err.Error(), Error: "configuration error"}
	}
	return adapter.RemoveSubscriber(ctx, email, "")
}

// TestProvider runs the named (or active, when name is empty) adapter's
// connection test
func (o *Orchestrator) TestProvider(ctx context.Context, name string) provider.Result {
	adapter, err := o.Registry.Resolve(name)
	if err != nil {
		return provider.Result{Success: false, Message: err.Error(), Error: "configuration error"}
	}
	return adapter.TestConnection(ctx)
}

func toProviderSubscriber(subscriber *models.Subscriber) provider.Subscriber {
	sub := provider.Subscriber{
		Email:     subscriber.Email,
		Name:      subscriber.Name,
		FirstName: subscriber.FirstName,
		LastName:  subscriber.LastName,
		Source:    subscriber.Source,
	}
	for _, tag := range subscriber.Tags {
		sub.Tags = append(sub.Tags, tag.Tag)
	}
	if len(subscriber.CustomFields) > 0 {
		sub.CustomFields = make(map[string]string, len(subscriber.CustomFields))
		for _, f := range subscriber.CustomFields {
			sub.CustomFields[f.Name] = f.Value
		}
	}
	return sub
}
