package controller

import (
	"log"

	"heartwise/models"
	"heartwise/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type SequenceController struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewSequenceController(db *gorm.DB, logger *log.Logger) *SequenceController {
	return &SequenceController{DB: db, Logger: logger}
}

type sequenceInput struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
	IsDefault   bool   `json:"is_default"`
}

func (qc *SequenceController) CreateSequence(c *fiber.Ctx) error {
	var input sequenceInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	sequence := models.EmailSequence{
		Name:        input.Name,
		Description: input.Description,
		IsDefault:   input.IsDefault,
	}

	err := qc.DB.Transaction(func(tx *gorm.DB) error {
		// At most one sequence may be default at a time
		if input.IsDefault {
			if err := tx.Model(&models.EmailSequence{}).
				Where("is_default = ?", true).
				Update("is_default", false).Error; err != nil {
				return err
			}
		}
		return tx.Create(&sequence).Error
	})
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create sequence", err)
	}

	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(sequence))
}

func (qc *SequenceController) GetSequences(c *fiber.Ctx) error {
	var sequences []models.EmailSequence
	if err := qc.DB.Preload("Templates", func(db *gorm.DB) *gorm.DB {
		return db.Order("delay_days asc")
	}).Order("created_at asc").Find(&sequences).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch sequences", err)
	}
	return c.JSON(utils.SuccessResponse(sequences))
}

func (qc *SequenceController) GetSequence(c *fiber.Ctx) error {
	var sequence models.EmailSequence
	if err := qc.DB.Preload("Templates", func(db *gorm.DB) *gorm.DB {
		return db.Order("delay_days asc")
	}).First(&sequence, c.Params("id")).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Sequence not found", nil)
	}
	return c.JSON(utils.SuccessResponse(sequence))
}

func (qc *SequenceController) UpdateSequence(c *fiber.Ctx) error {
	var sequence models.EmailSequence
	if err := qc.DB.First(&sequence, c.Params("id")).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Sequence not found", nil)
	}

	var input sequenceInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	err := qc.DB.Transaction(func(tx *gorm.DB) error {
		if input.IsDefault && !sequence.IsDefault {
			if err := tx.Model(&models.EmailSequence{}).
				Where("is_default = ?", true).
				Update("is_default", false).Error; err != nil {
				return err
			}
		}
		return tx.Model(&sequence).Updates(map[string]interface{}{
			"name":        input.Name,
			"description": input.Description,
			"is_default":  input.IsDefault,
		}).Error
	})
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update sequence", err)
	}

	return c.JSON(utils.SuccessResponse(sequence))
}

func (qc *SequenceController) DeleteSequence(c *fiber.Ctx) error {
	var sequence models.EmailSequence
	if err := qc.DB.First(&sequence, c.Params("id")).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Sequence not found", nil)
	}

	err := qc.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("sequence_id = ?", sequence.ID).Delete(&models.EmailTemplate{}).Error; err != nil {
			return err
		}
		return tx.Delete(&sequence).Error
	})
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to delete sequence", err)
	}

	return c.JSON(utils.SuccessResponse(fiber.Map{"message": "Sequence deleted"}))
}

type templateInput struct {
	Name             string `json:"name" validate:"required"`
	Subject          string `json:"subject" validate:"required"`
	Content          string `json:"content" validate:"required"`
	EmailType        string `json:"email_type" validate:"omitempty,oneof=welcome value hero_instinct story affiliate custom"`
	DelayDays        int    `json:"delay_days" validate:"gte=0"`
	IsActive         *bool  `json:"is_active"`
	AttachLeadMagnet bool   `json:"attach_lead_magnet"`
	AttachmentPath   string `json:"attachment_path"`
}

func (qc *SequenceController) CreateTemplate(c *fiber.Ctx) error {
	var sequence models.EmailSequence
	if err := qc.DB.First(&sequence, c.Params("id")).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Sequence not found", nil)
	}

	var input templateInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	template := models.EmailTemplate{
		SequenceID:       sequence.ID,
		Name:             input.Name,
		Subject:          input.Subject,
		Content:          input.Content,
		EmailType:        defaultString(input.EmailType, models.EmailTypeCustom),
		DelayDays:        input.DelayDays,
		IsActive:         true,
		AttachLeadMagnet: input.AttachLeadMagnet,
		AttachmentPath:   input.AttachmentPath,
	}
	if input.IsActive != nil {
		template.IsActive = *input.IsActive
	}

	if err := qc.DB.Create(&template).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create template", err)
	}

	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(template))
}

func (qc *SequenceController) UpdateTemplate(c *fiber.Ctx) error {
	var template models.EmailTemplate
	if err := qc.DB.First(&template, c.Params("templateId")).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Template not found", nil)
	}

	var input templateInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	updates := map[string]interface{}{
		"name":               input.Name,
		"subject":            input.Subject,
		"content":            input.Content,
		"delay_days":         input.DelayDays,
		"attach_lead_magnet": input.AttachLeadMagnet,
		"attachment_path":    input.AttachmentPath,
	}
	if input.EmailType != "" {
		updates["email_type"] = input.EmailType
	}
	if input.IsActive != nil {
		updates["is_active"] = *input.IsActive
	}

	if err := qc.DB.Model(&template).Updates(updates).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update template", err)
	}

	return c.JSON(utils.SuccessResponse(template))
}

func (qc *SequenceController) DeleteTemplate(c *fiber.Ctx) error {
	var template models.EmailTemplate
	if err := qc.DB.First(&template, c.Params("templateId")).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Template not found", nil)
	}
	if err := qc.DB.Delete(&template).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to delete template", err)
	}
	return c.JSON(utils.SuccessResponse(fiber.Map{"message": "Template deleted"}))
}
