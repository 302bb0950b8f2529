package queue

import (
	"context"
	"io"
	"log"
	"sort"
	"testing"
	"time"

	"heartwise/models"
	"heartwise/provider"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore is an in-memory Store so scheduler behavior can be tested
// without a database
type fakeStore struct {
	templates   map[uint]*models.EmailTemplate
	subscribers map[uint]*models.Subscriber
	entries     map[uint]*models.EmailQueueEntry
	history     []*models.EmailHistory
	sentCounts  map[uint]int
	nextID      uint
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		templates:   make(map[uint]*models.EmailTemplate),
		subscribers: make(map[uint]*models.Subscriber),
		entries:     make(map[uint]*models.EmailQueueEntry),
		sentCounts:  make(map[uint]int),
	}
}

func (f *fakeStore) addTemplate(t models.EmailTemplate) *models.EmailTemplate {
	f.nextID++
	t.ID = f.nextID
	f.templates[t.ID] = &t
	return &t
}

func (f *fakeStore) addSubscriber(s models.Subscriber) *models.Subscriber {
	f.nextID++
	s.ID = f.nextID
	f.subscribers[s.ID] = &s
	return &s
}

func (f *fakeStore) ActiveTemplates(sequenceID uint) ([]models.EmailTemplate, error) {
	var out []models.EmailTemplate
	for _, t := range f.templates {
		if t.SequenceID == sequenceID && t.IsActive {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DelayDays < out[j].DelayDays })
	return out, nil
}

func (f *fakeStore) Template(id uint) (*models.EmailTemplate, error) {
	t, ok := f.templates[id]
	if !ok {
		return nil, assert.AnError
	}
	return t, nil
}

func (f *fakeStore) Subscriber(id uint) (*models.Subscriber, error) {
	s, ok := f.subscribers[id]
	if !ok {
		return nil, assert.AnError
	}
	return s, nil
}

func (f *fakeStore) EnqueuedPairs(subscriberID uint, templateIDs []uint) (map[uint]bool, error) {
	pairs := make(map[uint]bool)
	for _, e := range f.entries {
		if e.SubscriberID != subscriberID {
			continue
		}
		switch e.Status {
		case models.QueueStatusQueued, models.QueueStatusProcessing, models.QueueStatusSent:
			pairs[e.TemplateID] = true
		}
	}
	return pairs, nil
}

func (f *fakeStore) CreateEntries(entries []models.EmailQueueEntry) error {
	for i := range entries {
		f.nextID++
		entries[i].ID = f.nextID
		e := entries[i]
		f.entries[e.ID] = &e
	}
	return nil
}

func (f *fakeStore) DueEntries(now time.Time) ([]models.EmailQueueEntry, error) {
	var due []models.EmailQueueEntry
	for _, e := range f.entries {
		if e.Status == models.QueueStatusQueued && !e.ScheduledFor.After(now) {
			due = append(due, *e)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ScheduledFor.Before(due[j].ScheduledFor) })
	return due, nil
}

func (f *fakeStore) ClaimEntry(id uint, now time.Time) (bool, error) {
	e, ok := f.entries[id]
	if !ok || e.Status != models.QueueStatusQueued {
		return false, nil
	}
	e.Status = models.QueueStatusProcessing
	e.ClaimedAt = &now
	return true, nil
}

func (f *fakeStore) FinishEntry(id uint, status, statusMessage string, now time.Time) error {
	e := f.entries[id]
	e.Status = status
	e.StatusMessage = statusMessage
	e.ProcessedAt = &now
	return nil
}

func (f *fakeStore) CancelQueuedForSubscriber(subscriberID uint) (int64, error) {
	var n int64
	for _, e := range f.entries {
		if e.SubscriberID == subscriberID && e.Status == models.QueueStatusQueued {
			e.Status = models.QueueStatusCancelled
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) RequeueStale(olderThan time.Time) (int64, error) {
	var n int64
	for _, e := range f.entries {
		if e.Status == models.QueueStatusProcessing && e.ClaimedAt != nil && e.ClaimedAt.Before(olderThan) {
			e.Status = models.QueueStatusQueued
			e.ClaimedAt = nil
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) RecordHistory(h *models.EmailHistory) error {
	f.history = append(f.history, h)
	return nil
}

func (f *fakeStore) IncrementTemplateSent(templateID uint) error {
	f.sentCounts[templateID]++
	return nil
}

func (f *fakeStore) QueueCounts() (map[string]int64, error) {
	counts := make(map[string]int64)
	for _, e := range f.entries {
		counts[e.Status]++
	}
	return counts, nil
}

// fakeProvider returns canned results so the scheduler's handling of send
// outcomes can be driven from tests
type fakeProvider struct {
	name       string
	sendResult provider.Result
	sent       []provider.Message
}

func (p *fakeProvider) Name() string { return p.name }
func (p *fakeProvider) TestConnection(context.Context) provider.Result {
	return provider.Result{Success: true}
}
func (p *fakeProvider) AddSubscriber(context.Context, provider.Subscriber, string) provider.Result {
	return provider.Result{Success: true, SubscriberID: "remote-1"}
}
func (p *fakeProvider) UpdateSubscriber(context.Context, provider.Subscriber, string) provider.Result {
	return provider.Result{Success: true}
}
func (p *fakeProvider) RemoveSubscriber(context.Context, string, string) provider.Result {
	return provider.Result{Success: true}
}
func (p *fakeProvider) GetLists(context.Context) provider.Result {
	return provider.Result{Success: true}
}
func (p *fakeProvider) GetList(context.Context, string) provider.Result {
	return provider.Result{Success: true}
}
func (p *fakeProvider) CreateList(context.Context, string) provider.Result {
	return provider.Result{Success: true}
}
func (p *fakeProvider) SendEmail(_ context.Context, msg provider.Message) provider.Result {
	p.sent = append(p.sent, msg)
	return p.sendResult
}

func newTestScheduler(store *fakeStore, p provider.Provider) *Scheduler {
	registry := provider.NewRegistry()
	if p != nil {
		registry.Register(p)
	}
	return NewScheduler(store, registry, log.New(io.Discard, "", 0))
}

func TestEnrollSchedulesByDelay(t *testing.T) {
	store := newFakeStore()
	sub := store.addSubscriber(models.Subscriber{Email: "lead@example.com"})
	t0 := store.addTemplate(models.EmailTemplate{SequenceID: 1, DelayDays: 0, IsActive: true})
	t3 := store.addTemplate(models.EmailTemplate{SequenceID: 1, DelayDays: 3, IsActive: true})
	store.addTemplate(models.EmailTemplate{SequenceID: 1, DelayDays: 5, IsActive: false})
	store.addTemplate(models.EmailTemplate{SequenceID: 2, DelayDays: 1, IsActive: true})

	s := newTestScheduler(store, nil)
	enrolledAt := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	created, err := s.Enroll(sub.ID, 1, enrolledAt)
	require.NoError(t, err)
	assert.Equal(t, 2, created)

	byTemplate := make(map[uint]*models.EmailQueueEntry)
	for _, e := range store.entries {
		byTemplate[e.TemplateID] = e
	}
	require.Len(t, byTemplate, 2)
	assert.Equal(t, enrolledAt, byTemplate[t0.ID].ScheduledFor)
	assert.Equal(t, enrolledAt.Add(3*24*time.Hour), byTemplate[t3.ID].ScheduledFor)
	for _, e := range byTemplate {
		assert.Equal(t, models.QueueStatusQueued, e.Status)
	}
}

func TestEnrollIsIdempotent(t *testing.T) {
	store := newFakeStore()
	sub := store.addSubscriber(models.Subscriber{Email: "lead@example.com"})
	store.addTemplate(models.EmailTemplate{SequenceID: 1, DelayDays: 0, IsActive: true})
	store.addTemplate(models.EmailTemplate{SequenceID: 1, DelayDays: 2, IsActive: true})

	s := newTestScheduler(store, nil)
	now := time.Now()

	created, err := s.Enroll(sub.ID, 1, now)
	require.NoError(t, err)
	assert.Equal(t, 2, created)

	created, err = s.Enroll(sub.ID, 1, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, created)
	assert.Len(t, store.entries, 2)
}

func TestProcessDueSendsAndRecordsHistory(t *testing.T) {
	store := newFakeStore()
	sub := store.addSubscriber(models.Subscriber{Email: "lead@example.com", FirstName: "Ana"})
	tpl := store.addTemplate(models.EmailTemplate{
		SequenceID: 1,
		Subject:    "Hi {{firstName}}",
		Content:    "<p>Welcome {{firstName}}</p>",
		DelayDays:  0,
		IsActive:   true,
	})

	p := &fakeProvider{name: "sendgrid", sendResult: provider.Result{Success: true, SubscriberID: "msg-1"}}
	s := newTestScheduler(store, p)

	now := time.Now()
	_, err := s.Enroll(sub.ID, 1, now.Add(-time.Minute))
	require.NoError(t, err)

	summary, err := s.ProcessDue(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, Summary{Sent: 1}, summary)

	require.Len(t, p.sent, 1)
	assert.Equal(t, "lead@example.com", p.sent[0].To)
	assert.Equal(t, "Hi Ana", p.sent[0].Subject)

	require.Len(t, store.history, 1)
	assert.Equal(t, models.QueueStatusSent, store.history[0].Status)
	assert.Equal(t, "sendgrid", store.history[0].Provider)
	assert.Equal(t, 1, store.sentCounts[tpl.ID])

	for _, e := range store.entries {
		assert.Equal(t, models.QueueStatusSent, e.Status)
	}
}

func TestProcessDueIgnoresFutureEntries(t *testing.T) {
	store := newFakeStore()
	sub := store.addSubscriber(models.Subscriber{Email: "lead@example.com"})
	store.addTemplate(models.EmailTemplate{SequenceID: 1, Subject: "s", Content: "c", DelayDays: 2, IsActive: true})

	p := &fakeProvider{name: "smtp", sendResult: provider.Result{Success: true}}
	s := newTestScheduler(store, p)

	now := time.Now()
	_, err := s.Enroll(sub.ID, 1, now)
	require.NoError(t, err)

	summary, err := s.ProcessDue(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, Summary{}, summary)
	assert.Empty(t, p.sent)
}

func TestProcessDueSkipsUnsubscribedWithoutHistory(t *testing.T) {
	store := newFakeStore()
	sub := store.addSubscriber(models.Subscriber{Email: "lead@example.com", IsUnsubscribed: true})
	store.addTemplate(models.EmailTemplate{SequenceID: 1, Subject: "s", Content: "c", IsActive: true})

	p := &fakeProvider{name: "smtp", sendResult: provider.Result{Success: true}}
	s := newTestScheduler(store, p)

	now := time.Now()
	_, err := s.Enroll(sub.ID, 1, now.Add(-time.Minute))
	require.NoError(t, err)

	summary, err := s.ProcessDue(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, Summary{Skipped: 1}, summary)
	assert.Empty(t, p.sent)
	assert.Empty(t, store.history)

	for _, e := range store.entries {
		assert.Equal(t, models.QueueStatusSkipped, e.Status)
	}
}

func TestProcessDueSkipsDeactivatedTemplate(t *testing.T) {
	store := newFakeStore()
	sub := store.addSubscriber(models.Subscriber{Email: "lead@example.com"})
	tpl := store.addTemplate(models.EmailTemplate{SequenceID: 1, Subject: "s", Content: "c", IsActive: true})

	p := &fakeProvider{name: "smtp", sendResult: provider.Result{Success: true}}
	s := newTestScheduler(store, p)

	now := time.Now()
	_, err := s.Enroll(sub.ID, 1, now.Add(-time.Minute))
	require.NoError(t, err)

	// Deactivated between enrollment and processing
	store.templates[tpl.ID].IsActive = false

	summary, err := s.ProcessDue(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, Summary{Skipped: 1}, summary)
	assert.Empty(t, p.sent)
}

func TestProcessDueFailureDoesNotBlockBatch(t *testing.T) {
	store := newFakeStore()
	subA := store.addSubscriber(models.Subscriber{Email: "a@example.com"})
	subB := store.addSubscriber(models.Subscriber{Email: "b@example.com"})
	store.addTemplate(models.EmailTemplate{SequenceID: 1, Subject: "s", Content: "c", IsActive: true})

	p := &fakeProvider{name: "smtp", sendResult: provider.Result{Success: true}}
	s := newTestScheduler(store, p)

	now := time.Now()
	_, err := s.Enroll(subA.ID, 1, now.Add(-2*time.Minute))
	require.NoError(t, err)
	_, err = s.Enroll(subB.ID, 1, now.Add(-time.Minute))
	require.NoError(t, err)

	// Delete A so its subscriber lookup fails mid-batch
	delete(store.subscribers, subA.ID)

	summary, err := s.ProcessDue(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, Summary{Sent: 1, Failed: 1}, summary)
	require.Len(t, p.sent, 1)
	assert.Equal(t, "b@example.com", p.sent[0].To)
}

func TestProcessDueRecordsSendFailure(t *testing.T) {
	store := newFakeStore()
	sub := store.addSubscriber(models.Subscriber{Email: "lead@example.com"})
	store.addTemplate(models.EmailTemplate{SequenceID: 1, Subject: "s", Content: "c", IsActive: true})

	p := &fakeProvider{name: "smtp", sendResult: provider.Result{
		Success: false,
		Message: "smtp request failed: connection refused",
		Error:   "connection refused",
	}}
	s := newTestScheduler(store, p)

	now := time.Now()
	_, err := s.Enroll(sub.ID, 1, now.Add(-time.Minute))
	require.NoError(t, err)

	summary, err := s.ProcessDue(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, Summary{Failed: 1}, summary)

	require.Len(t, store.history, 1)
	assert.Equal(t, models.QueueStatusFailed, store.history[0].Status)

	// No automatic retry: the entry stays failed
	for _, e := range store.entries {
		assert.Equal(t, models.QueueStatusFailed, e.Status)
		assert.Equal(t, "smtp request failed: connection refused", e.StatusMessage)
	}
}

func TestProcessDueWithoutProviderFails(t *testing.T) {
	store := newFakeStore()
	sub := store.addSubscriber(models.Subscriber{Email: "lead@example.com"})
	store.addTemplate(models.EmailTemplate{SequenceID: 1, Subject: "s", Content: "c", IsActive: true})

	s := newTestScheduler(store, nil)

	now := time.Now()
	_, err := s.Enroll(sub.ID, 1, now.Add(-time.Minute))
	require.NoError(t, err)

	summary, err := s.ProcessDue(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, Summary{Failed: 1}, summary)
	require.Len(t, store.history, 1)
	assert.Empty(t, store.history[0].Provider)
}

func TestProcessDueClaimLosersAreSkipped(t *testing.T) {
	store := newFakeStore()
	sub := store.addSubscriber(models.Subscriber{Email: "lead@example.com"})
	store.addTemplate(models.EmailTemplate{SequenceID: 1, Subject: "s", Content: "c", IsActive: true})

	p := &fakeProvider{name: "smtp", sendResult: provider.Result{Success: true}}
	s := newTestScheduler(store, p)

	now := time.Now()
	_, err := s.Enroll(sub.ID, 1, now.Add(-time.Minute))
	require.NoError(t, err)

	// Another pass claimed the entry after the due query ran
	for id := range store.entries {
		claimed, err := store.ClaimEntry(id, now)
		require.NoError(t, err)
		require.True(t, claimed)
	}

	summary, err := s.ProcessDue(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, Summary{}, summary)
	assert.Empty(t, p.sent)
}

func TestCancelForSubscriber(t *testing.T) {
	store := newFakeStore()
	sub := store.addSubscriber(models.Subscriber{Email: "lead@example.com"})
	store.addTemplate(models.EmailTemplate{SequenceID: 1, Subject: "s", Content: "c", DelayDays: 1, IsActive: true})
	store.addTemplate(models.EmailTemplate{SequenceID: 1, Subject: "s2", Content: "c2", DelayDays: 2, IsActive: true})

	s := newTestScheduler(store, nil)
	_, err := s.Enroll(sub.ID, 1, time.Now())
	require.NoError(t, err)

	cancelled, err := s.CancelForSubscriber(sub.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), cancelled)

	for _, e := range store.entries {
		assert.Equal(t, models.QueueStatusCancelled, e.Status)
	}

	// Second cancel finds nothing queued
	cancelled, err = s.CancelForSubscriber(sub.ID)
	require.NoError(t, err)
	assert.Zero(t, cancelled)
}

func TestRequeueStaleRecoversOldClaims(t *testing.T) {
	store := newFakeStore()
	sub := store.addSubscriber(models.Subscriber{Email: "lead@example.com"})
	store.addTemplate(models.EmailTemplate{SequenceID: 1, Subject: "s", Content: "c", IsActive: true})

	s := newTestScheduler(store, nil)
	_, err := s.Enroll(sub.ID, 1, time.Now().Add(-time.Hour))
	require.NoError(t, err)

	// Claim from a pass that then died
	stale := time.Now().Add(-30 * time.Minute)
	for id := range store.entries {
		_, err := store.ClaimEntry(id, stale)
		require.NoError(t, err)
	}

	requeued, err := s.RequeueStale(15 * time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), requeued)

	for _, e := range store.entries {
		assert.Equal(t, models.QueueStatusQueued, e.Status)
		assert.Nil(t, e.ClaimedAt)
	}

	// Fresh claims are left alone
	for id := range store.entries {
		_, err := store.ClaimEntry(id, time.Now())
		require.NoError(t, err)
	}
	requeued, err = s.RequeueStale(15 * time.Minute)
	require.NoError(t, err)
	assert.Zero(t, requeued)
}
