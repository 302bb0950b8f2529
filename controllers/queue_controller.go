package controller

import (
	"log"

	"heartwise/models"
	"heartwise/queue"
	"heartwise/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type QueueController struct {
	DB           *gorm.DB
	Orchestrator *queue.Orchestrator
	Logger       *log.Logger
}

func NewQueueController(db *gorm.DB, orch *queue.Orchestrator, logger *log.Logger) *QueueController {
	return &QueueController{DB: db, Orchestrator: orch, Logger: logger}
}

// ProcessQueue runs one processing pass immediately, outside the worker's
// schedule, and reports what happened
func (qc *QueueController) ProcessQueue(c *fiber.Ctx) error {
	summary, err := qc.Orchestrator.TriggerQueueProcessing(c.Context())
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Queue processing failed", err)
	}
	return c.JSON(utils.SuccessResponse(summary))
}

// GetQueueStatus reports entry counts per status
func (qc *QueueController) GetQueueStatus(c *fiber.Ctx) error {
	counts, err := qc.Orchestrator.Store.QueueCounts()
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to read queue status", err)
	}
	return c.JSON(utils.SuccessResponse(fiber.Map{"counts": counts}))
}

func (qc *QueueController) GetQueueEntries(c *fiber.Ctx) error {
	page := c.QueryInt("page", 1)
	limit := c.QueryInt("limit", 50)
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 200 {
		limit = 50
	}

	query := qc.DB.Model(&models.EmailQueueEntry{})
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if subscriberID := utils.ParseUint(c.Query("subscriber_id")); subscriberID > 0 {
		query = query.Where("subscriber_id = ?", subscriberID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to count queue entries", err)
	}

	var entries []models.EmailQueueEntry
	if err := query.Order("scheduled_for asc").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&entries).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch queue entries", err)
	}

	return c.JSON(utils.PaginatedResponse{
		Data:  entries,
		Total: total,
		Page:  page,
		Limit: limit,
	})
}

// CancelQueueEntry cancels one still-queued entry. Entries that have
// already been claimed, sent or failed can't be cancelled.
func (qc *QueueController) CancelQueueEntry(c *fiber.Ctx) error {
	result := qc.DB.Model(&models.EmailQueueEntry{}).
		Where("id = ? AND status = ?", c.Params("id"), models.QueueStatusQueued).
		Updates(map[string]interface{}{
			"status":         models.QueueStatusCancelled,
			"status_message": "cancelled by admin",
		})
	if result.Error != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to cancel queue entry", result.Error)
	}
	if result.RowsAffected == 0 {
		return utils.ErrorResponse(c, fiber.StatusConflict, "Entry is not queued", nil)
	}
	return c.JSON(utils.SuccessResponse(fiber.Map{"message": "Entry cancelled"}))
}

// GetHistory lists the append-only send history, newest first
func (qc *QueueController) GetHistory(c *fiber.Ctx) error {
	page := c.QueryInt("page", 1)
	limit := c.QueryInt("limit", 50)
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 200 {
		limit = 50
	}

	query := qc.DB.Model(&models.EmailHistory{})
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if subscriberID := utils.ParseUint(c.Query("subscriber_id")); subscriberID > 0 {
		query = query.Where("subscriber_id = ?", subscriberID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to count history", err)
	}

	var history []models.EmailHistory
	if err := query.Order("sent_at desc").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&history).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch history", err)
	}

	return c.JSON(utils.PaginatedResponse{
		Data:  history,
		Total: total,
		Page:  page,
		Limit: limit,
	})
}

type sendNowInput struct {
	SubscriberID uint `json:"subscriber_id" validate:"required"`
	TemplateID   uint `json:"template_id" validate:"required"`
}

// SendNow sends one template to one subscriber immediately, outside any
// sequence
func (qc *QueueController) SendNow(c *fiber.Ctx) error {
	var input sendNowInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	result := qc.Orchestrator.SendNow(c.Context(), input.SubscriberID, input.TemplateID)
	status := fiber.StatusOK
	if !result.Success {
		status = fiber.StatusBadGateway
	}
	return c.Status(status).JSON(result)
}
