package queue

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"heartwise/models"
	"heartwise/provider"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOrchestrator(store *fakeStore, p provider.Provider) *Orchestrator {
	registry := provider.NewRegistry()
	if p != nil {
		registry.Register(p)
	}
	return NewOrchestrator(store, registry, log.New(io.Discard, "", 0))
}

func TestSendNowRecordsHistory(t *testing.T) {
	store := newFakeStore()
	sub := store.addSubscriber(models.Subscriber{Email: "lead@example.com", FirstName: "Ana"})
	tpl := store.addTemplate(models.EmailTemplate{
		SequenceID: 1,
		Subject:    "Hello {{firstName}}",
		Content:    "<p>Hi</p>",
		IsActive:   true,
	})

	p := &fakeProvider{name: "sendgrid", sendResult: provider.Result{Success: true, SubscriberID: "msg-3"}}
	o := newTestOrchestrator(store, p)

	result := o.SendNow(context.Background(), sub.ID, tpl.ID)
	require.True(t, result.Success)

	require.Len(t, p.sent, 1)
	assert.Equal(t, "Hello Ana", p.sent[0].Subject)

	require.Len(t, store.history, 1)
	h := store.history[0]
	assert.Equal(t, models.QueueStatusSent, h.Status)
	assert.Equal(t, "sendgrid", h.Provider)
	assert.Nil(t, h.QueueEntryID)
}

func TestSendNowRejectsUnsubscribed(t *testing.T) {
	store := newFakeStore()
	sub := store.addSubscriber(models.Subscriber{Email: "lead@example.com", IsUnsubscribed: true})
	tpl := store.addTemplate(models.EmailTemplate{SequenceID: 1, Subject: "s", Content: "c", IsActive: true})

	p := &fakeProvider{name: "smtp", sendResult: provider.Result{Success: true}}
	o := newTestOrchestrator(store, p)

	result := o.SendNow(context.Background(), sub.ID, tpl.ID)
	assert.False(t, result.Success)
	assert.Empty(t, p.sent)
	assert.Empty(t, store.history)
}

func TestSendNowFailureRecordsHistory(t *testing.T) {
	store := newFakeStore()
	sub := store.addSubscriber(models.Subscriber{Email: "lead@example.com"})
	tpl := store.addTemplate(models.EmailTemplate{SequenceID: 1, Subject: "s", Content: "c", IsActive: true})

	p := &fakeProvider{name: "smtp", sendResult: provider.Result{
		Success: false,
		Message: "smtp request failed: connection refused",
	}}
	o := newTestOrchestrator(store, p)

	result := o.SendNow(context.Background(), sub.ID, tpl.ID)
	assert.False(t, result.Success)

	require.Len(t, store.history, 1)
	assert.Equal(t, models.QueueStatusFailed, store.history[0].Status)
}

func TestSyncSubscriberUsesActiveProvider(t *testing.T) {
	store := newFakeStore()
	sub := &models.Subscriber{
		Email:     "lead@example.com",
		FirstName: "Ana",
		Tags:      []models.SubscriberTag{{Tag: "quiz"}},
	}

	p := &fakeProvider{name: "sendgrid"}
	o := newTestOrchestrator(store, p)

	result := o.SyncSubscriber(context.Background(), sub)
	assert.True(t, result.Success)
	assert.Equal(t, "remote-1", result.SubscriberID)
}

func TestSyncSubscriberWithoutProvider(t *testing.T) {
	o := newTestOrchestrator(newFakeStore(), nil)

	result := o.SyncSubscriber(context.Background(), &models.Subscriber{Email: "lead@example.com"})
	assert.False(t, result.Success)
	assert.Equal(t, "configuration error", result.Error)
}

func TestTriggerQueueProcessing(t *testing.T) {
	store := newFakeStore()
	sub := store.addSubscriber(models.Subscriber{Email: "lead@example.com"})
	store.addTemplate(models.EmailTemplate{SequenceID: 1, Subject: "s", Content: "c", IsActive: true})

	p := &fakeProvider{name: "smtp", sendResult: provider.Result{Success: true}}
	o := newTestOrchestrator(store, p)

	_, err := o.Scheduler.Enroll(sub.ID, 1, time.Now().Add(-time.Minute))
	require.NoError(t, err)

	summary, err := o.TriggerQueueProcessing(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Summary{Sent: 1}, summary)
}
