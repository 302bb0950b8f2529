package queue

import (
	"time"

	"heartwise/models"

	"gorm.io/gorm"
)

// Store is the persistence surface the scheduler runs against. The gorm
// implementation below is the real one; tests substitute an in-memory fake.
type Store interface {
	ActiveTemplates(sequenceID uint) ([]models.EmailTemplate, error)
	Template(id uint) (*models.EmailTemplate, error)
	Subscriber(id uint) (*models.Subscriber, error)

	// EnqueuedPairs reports which of the given templates already have a
	// queued or sent entry for the subscriber, so enrollment stays
	// idempotent.
	EnqueuedPairs(subscriberID uint, templateIDs []uint) (map[uint]bool, error)
	CreateEntries(entries []models.EmailQueueEntry) error

	DueEntries(now time.Time) ([]models.EmailQueueEntry, error)

	// ClaimEntry transitions the entry from queued to processing. The
	// transition is a conditional update guarded on the current status, so
	// exactly one caller can win the claim; false means another pass got
	// there first or the entry is no longer queued.
	ClaimEntry(id uint, now time.Time) (bool, error)
	FinishEntry(id uint, status, statusMessage string, now time.Time) error

	CancelQueuedForSubscriber(subscriberID uint) (int64, error)
	RequeueStale(olderThan time.Time) (int64, error)

	RecordHistory(h *models.EmailHistory) error
	IncrementTemplateSent(templateID uint) error

	QueueCounts() (map[string]int64, error)
}

// GormStore is the Postgres-backed Store
type GormStore struct {
	DB *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{DB: db}
}

func (s *GormStore) ActiveTemplates(sequenceID uint) ([]models.EmailTemplate, error) {
	var templates []models.EmailTemplate
	err := s.DB.Where("sequence_id = ? AND is_active = ?", sequenceID, true).
		Order("delay_days asc").
		Find(&templates).Error
	return templates, err
}

func (s *GormStore) Template(id uint) (*models.EmailTemplate, error) {
	var template models.EmailTemplate
	if err := s.DB.First(&template, id).Error; err != nil {
		return nil, err
	}
	return &template, nil
}

func (s *GormStore) Subscriber(id uint) (*models.Subscriber, error) {
	var subscriber models.Subscriber
	if err := s.DB.Preload("Tags").Preload("CustomFields").First(&subscriber, id).Error; err != nil {
		return nil, err
	}
	return &subscriber, nil
}

func (s *GormStore) EnqueuedPairs(subscriberID uint, templateIDs []uint) (map[uint]bool, error) {
	if len(templateIDs) == 0 {
		return map[uint]bool{}, nil
	}
	var entries []models.EmailQueueEntry
	err := s.DB.Select("template_id").
		Where("subscriber_id = ? AND template_id IN ? AND status IN ?",
			subscriberID, templateIDs,
			[]string{models.QueueStatusQueued, models.QueueStatusProcessing, models.QueueStatusSent}).
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	pairs := make(map[uint]bool, len(entries))
	for _, e := range entries {
		pairs[e.TemplateID] = true
	}
	return pairs, nil
}

func (s *GormStore) CreateEntries(entries []models.EmailQueueEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return s.DB.Create(&entries).Error
}

func (s *GormStore) DueEntries(now time.Time) ([]models.EmailQueueEntry, error) {
	var entries []models.EmailQueueEntry
	err := s.DB.Where("status = ? AND scheduled_for <= ?", models.QueueStatusQueued, now).
		Order("scheduled_for asc").
		Find(&entries).Error
	return entries, err
}

func (s *GormStore) ClaimEntry(id uint, now time.Time) (bool, error) {
	result := s.DB.Model(&models.EmailQueueEntry{}).
		Where("id = ? AND status = ?", id, models.QueueStatusQueued).
		Updates(map[string]interface{}{
			"status":     models.QueueStatusProcessing,
			"claimed_at": now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (s *GormStore) FinishEntry(id uint, status, statusMessage string, now time.Time) error {
	return s.DB.Model(&models.EmailQueueEntry{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":         status,
			"status_message": statusMessage,
			"processed_at":   now,
		}).Error
}

func (s *GormStore) CancelQueuedForSubscriber(subscriberID uint) (int64, error) {
	result := s.DB.Model(&models.EmailQueueEntry{}).
		Where("subscriber_id = ? AND status = ?", subscriberID, models.QueueStatusQueued).
		Updates(map[string]interface{}{
			"status":         models.QueueStatusCancelled,
			"status_message": "subscriber unsubscribed",
		})
	return result.RowsAffected, result.Error
}

// RequeueStale returns entries stuck in processing (claimed before
// olderThan, e.g. after a crash between claim and completion) to queued so
// a later pass can pick them up again.
func (s *GormStore) RequeueStale(olderThan time.Time) (int64, error) {
	result := s.DB.Model(&models.EmailQueueEntry{}).
		Where("status = ? AND claimed_at < ?", models.QueueStatusProcessing, olderThan).
		Updates(map[string]interface{}{
			"status":         models.QueueStatusQueued,
			"status_message": "requeued after stale claim",
			"claimed_at":     nil,
		})
	return result.RowsAffected, result.Error
}

func (s *GormStore) RecordHistory(h *models.EmailHistory) error {
	return s.DB.Create(h).Error
}

func (s *GormStore) IncrementTemplateSent(templateID uint) error {
	return s.DB.Model(&models.EmailTemplate{}).
		Where("id = ?", templateID).
		Update("sent_count", gorm.Expr("sent_count + ?", 1)).Error
}

func (s *GormStore) QueueCounts() (map[string]int64, error) {
	type row struct {
		Status string
		Count  int64
	}
	var rows []row
	err := s.DB.Model(&models.EmailQueueEntry{}).
		Select("status, count(*) as count").
		Group("status").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.Count
	}
	return counts, nil
}
