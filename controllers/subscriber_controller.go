package controller

import (
	"log"
	"time"

	"heartwise/models"
	"heartwise/queue"
	"heartwise/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type SubscriberController struct {
	DB           *gorm.DB
	Orchestrator *queue.Orchestrator
	Logger       *log.Logger
}

func NewSubscriberController(db *gorm.DB, orch *queue.Orchestrator, logger *log.Logger) *SubscriberController {
	return &SubscriberController{DB: db, Orchestrator: orch, Logger: logger}
}

type subscriberInput struct {
	Email     string            `json:"email" validate:"required,email"`
	Name      string            `json:"name"`
	FirstName string            `json:"first_name"`
	LastName  string            `json:"last_name"`
	Source    string            `json:"source"`
	Tags      []string          `json:"tags"`
	Fields    map[string]string `json:"custom_fields"`
}

func (sc *SubscriberController) CreateSubscriber(c *fiber.Ctx) error {
	var input subscriberInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	var existing models.Subscriber
	if err := sc.DB.Where("email = ?", input.Email).First(&existing).Error; err == nil {
		return utils.ErrorResponse(c, fiber.StatusConflict, "Subscriber already exists", nil)
	}

	subscriber := models.Subscriber{
		Email:            input.Email,
		Name:             input.Name,
		FirstName:        input.FirstName,
		LastName:         input.LastName,
		Source:           defaultString(input.Source, "manual"),
		UnsubscribeToken: utils.GenerateUnsubscribeToken(),
	}
	for _, tag := range input.Tags {
		subscriber.Tags = append(subscriber.Tags, models.SubscriberTag{Tag: tag})
	}
	for name, value := range input.Fields {
		subscriber.CustomFields = append(subscriber.CustomFields, models.SubscriberCustomField{Name: name, Value: value})
	}

	if err := sc.DB.Create(&subscriber).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create subscriber", err)
	}

	// Best-effort sync to the active ESP; a failed sync doesn't fail the
	// local create, the result is reported alongside
	syncResult := sc.Orchestrator.SyncSubscriber(c.Context(), &subscriber)
	if syncResult.Success && syncResult.SubscriberID != "" {
		sc.DB.Model(&subscriber).Update("provider_subscriber_id", syncResult.SubscriberID)
	}

	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(fiber.Map{
		"subscriber":    subscriber,
		"provider_sync": syncResult,
	}))
}

func (sc *SubscriberController) GetSubscribers(c *fiber.Ctx) error {
	page := c.QueryInt("page", 1)
	limit := c.QueryInt("limit", 50)
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 200 {
		limit = 50
	}

	query := sc.DB.Model(&models.Subscriber{})
	if search := c.Query("search"); search != "" {
		query = query.Where("email ILIKE ? OR name ILIKE ?", "%"+search+"%", "%"+search+"%")
	}
	if c.Query("status") == "unsubscribed" {
		query = query.Where("is_unsubscribed = ?", true)
	} else if c.Query("status") == "subscribed" {
		query = query.Where("is_unsubscribed = ?", false)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to count subscribers", err)
	}

	var subscribers []models.Subscriber
	if err := query.Preload("Tags").
		Order("created_at desc").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&subscribers).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch subscribers", err)
	}

	return c.JSON(utils.PaginatedResponse{
		Data:  subscribers,
		Total: total,
		Page:  page,
		Limit: limit,
	})
}

func (sc *SubscriberController) GetSubscriber(c *fiber.Ctx) error {
	var subscriber models.Subscriber
	if err := sc.DB.Preload("Tags").Preload("CustomFields").Preload("QueueEntries").
		First(&subscriber, c.Params("id")).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Subscriber not found", nil)
	}
	return c.JSON(utils.SuccessResponse(subscriber))
}

func (sc *SubscriberController) UpdateSubscriber(c *fiber.Ctx) error {
	var subscriber models.Subscriber
	if err := sc.DB.First(&subscriber, c.Params("id")).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Subscriber not found", nil)
	}

	var input subscriberInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	updates := map[string]interface{}{
		"email":      input.Email,
		"name":       input.Name,
		"first_name": input.FirstName,
		"last_name":  input.LastName,
	}
	if err := sc.DB.Model(&subscriber).Updates(updates).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update subscriber", err)
	}

	syncResult := sc.Orchestrator.SyncSubscriber(c.Context(), &subscriber)

	return c.JSON(utils.SuccessResponse(fiber.Map{
		"subscriber":    subscriber,
		"provider_sync": syncResult,
	}))
}

// DeleteSubscriber removes the subscriber locally and from the active ESP
// list. The provider treats an already-absent subscriber as success, so
// the two stores can't get stuck out of sync.
func (sc *SubscriberController) DeleteSubscriber(c *fiber.Ctx) error {
	var subscriber models.Subscriber
	if err := sc.DB.First(&subscriber, c.Params("id")).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Subscriber not found", nil)
	}

	removeResult := sc.Orchestrator.RemoveSubscriber(c.Context(), subscriber.Email)

	if _, err := sc.Orchestrator.Scheduler.CancelForSubscriber(subscriber.ID); err != nil {
		sc.Logger.Printf("Failed to cancel queue entries for subscriber %d: %v", subscriber.ID, err)
	}
	if err := sc.DB.Delete(&subscriber).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to delete subscriber", err)
	}

	return c.JSON(utils.SuccessResponse(fiber.Map{
		"message":         "Subscriber deleted",
		"provider_remove": removeResult,
	}))
}

type enrollInput struct {
	SequenceID uint `json:"sequence_id" validate:"required"`
}

// EnrollSubscriber queues the sequence's emails for the subscriber.
// Enrollment is idempotent: pairs already queued or sent are not duplicated.
func (sc *SubscriberController) EnrollSubscriber(c *fiber.Ctx) error {
	var subscriber models.Subscriber
	if err := sc.DB.First(&subscriber, c.Params("id")).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Subscriber not found", nil)
	}
	if subscriber.IsUnsubscribed {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Subscriber is unsubscribed", nil)
	}

	var input enrollInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	var sequence models.EmailSequence
	if err := sc.DB.First(&sequence, input.SequenceID).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Sequence not found", nil)
	}

	enqueued, err := sc.Orchestrator.Scheduler.Enroll(subscriber.ID, sequence.ID, time.Now())
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to enroll subscriber", err)
	}

	utils.LogEvent("subscriber_enrolled", map[string]interface{}{
		"subscriber_id": subscriber.ID,
		"sequence_id":   sequence.ID,
		"enqueued":      enqueued,
	})

	return c.JSON(utils.SuccessResponse(fiber.Map{
		"enqueued": enqueued,
	}))
}

// UnsubscribeSubscriber marks the subscriber unsubscribed and cancels all
// still-queued entries before their scheduled time
func (sc *SubscriberController) UnsubscribeSubscriber(c *fiber.Ctx) error {
	var subscriber models.Subscriber
	if err := sc.DB.First(&subscriber, c.Params("id")).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Subscriber not found", nil)
	}

	cancelled, err := unsubscribe(sc.DB, sc.Orchestrator, &subscriber)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to unsubscribe", err)
	}

	return c.JSON(utils.SuccessResponse(fiber.Map{
		"message":           "Subscriber unsubscribed",
		"cancelled_entries": cancelled,
	}))
}

// unsubscribe is shared by the admin action and the public unsubscribe link
func unsubscribe(db *gorm.DB, orch *queue.Orchestrator, subscriber *models.Subscriber) (int64, error) {
	if !subscriber.IsUnsubscribed {
		now := time.Now()
		if err := db.Model(subscriber).Updates(map[string]interface{}{
			"is_unsubscribed": true,
			"unsubscribed_at": now,
		}).Error; err != nil {
			return 0, err
		}
	}

	cancelled, err := orch.Scheduler.CancelForSubscriber(subscriber.ID)
	if err != nil {
		return 0, err
	}

	utils.LogEvent("subscriber_unsubscribed", map[string]interface{}{
		"subscriber_id":     subscriber.ID,
		"cancelled_entries": cancelled,
	})
	return cancelled, nil
}

func defaultString(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
