package controller

import (
	"log"

	"heartwise/models"
	"heartwise/provider"
	"heartwise/queue"
	"heartwise/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ProviderController struct {
	DB           *gorm.DB
	Registry     *provider.Registry
	Orchestrator *queue.Orchestrator
	Logger       *log.Logger
}

func NewProviderController(db *gorm.DB, registry *provider.Registry, orch *queue.Orchestrator, logger *log.Logger) *ProviderController {
	return &ProviderController{DB: db, Registry: registry, Orchestrator: orch, Logger: logger}
}

// secretFields lists which config fields are stored encrypted per provider
var secretFields = map[string]map[string]bool{
	"aweber":   {"access_token": true},
	"sendgrid": {"api_key": true},
	"smtp":     {"password": true},
}

func isSecretField(providerName, field string) bool {
	return secretFields[providerName][field]
}

// GetProviders reports the registered providers and which one is active
func (pc *ProviderController) GetProviders(c *fiber.Ctx) error {
	return c.JSON(utils.SuccessResponse(fiber.Map{
		"providers": pc.Registry.Names(),
		"active":    pc.Registry.ActiveName(),
	}))
}

// GetProviderSettings returns the stored configuration for one provider.
// Secret values are masked; the admin UI shows whether a secret is set
// without ever seeing it.
func (pc *ProviderController) GetProviderSettings(c *fiber.Ctx) error {
	name := c.Params("name")

	var rows []models.ProviderSetting
	if err := pc.DB.Where("provider = ?", name).Find(&rows).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to load provider settings", err)
	}

	fields := make(map[string]string, len(rows))
	for _, row := range rows {
		if row.IsSecret && row.Value != "" {
			fields[row.Field] = "********"
		} else {
			fields[row.Field] = row.Value
		}
	}

	return c.JSON(utils.SuccessResponse(fiber.Map{
		"provider": name,
		"fields":   fields,
	}))
}

type providerSettingsInput struct {
	Fields map[string]string `json:"fields" validate:"required"`
}

// UpdateProviderSettings upserts configuration fields for one provider,
// encrypting secrets at rest, then rebuilds the adapter so the change takes
// effect without a restart.
func (pc *ProviderController) UpdateProviderSettings(c *fiber.Ctx) error {
	name := c.Params("name")

	var input providerSettingsInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	err := pc.DB.Transaction(func(tx *gorm.DB) error {
		for field, value := range input.Fields {
			secret := isSecretField(name, field)
			stored := value
			if secret && value != "" {
				encrypted, err := utils.Encrypt(value)
				if err != nil {
					return err
				}
				stored = encrypted
			}
			row := models.ProviderSetting{
				Provider: name,
				Field:    field,
				Value:    stored,
				IsSecret: secret,
			}
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "provider"}, {Name: "field"}},
				DoUpdates: clause.AssignmentColumns([]string{"value", "is_secret", "updated_at"}),
			}).Create(&row).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to save provider settings", err)
	}

	if err := pc.reloadProvider(name); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Settings saved but provider configuration is incomplete", err)
	}

	utils.LogEvent("provider_settings_updated", map[string]interface{}{"provider": name})
	return c.JSON(utils.SuccessResponse(fiber.Map{"message": "Provider settings saved"}))
}

// reloadProvider rebuilds one adapter from its stored settings and
// re-registers it
func (pc *ProviderController) reloadProvider(name string) error {
	var rows []models.ProviderSetting
	if err := pc.DB.Where("provider = ?", name).Find(&rows).Error; err != nil {
		return err
	}

	fields := make(map[string]string, len(rows))
	for _, row := range rows {
		value := row.Value
		if row.IsSecret && value != "" {
			decrypted, err := utils.Decrypt(value)
			if err != nil {
				return err
			}
			value = decrypted
		}
		fields[row.Field] = value
	}

	adapter, err := provider.Build(name, fields)
	if err != nil {
		return err
	}
	pc.Registry.Register(adapter)
	return nil
}

type activeProviderInput struct {
	Provider string `json:"provider" validate:"required"`
}

// SetActiveProvider switches the default ESP and persists the choice
func (pc *ProviderController) SetActiveProvider(c *fiber.Ctx) error {
	var input activeProviderInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	if err := pc.Registry.SetActive(input.Provider); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, err.Error(), nil)
	}

	setting := models.SiteSetting{Key: models.SettingActiveProvider, Value: input.Provider}
	if err := pc.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&setting).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to persist active provider", err)
	}

	utils.LogEvent("active_provider_changed", map[string]interface{}{"provider": input.Provider})
	return c.JSON(utils.SuccessResponse(fiber.Map{"active": input.Provider}))
}

// TestProvider runs the connection test for the named provider
func (pc *ProviderController) TestProvider(c *fiber.Ctx) error {
	result := pc.Orchestrator.TestProvider(c.Context(), c.Params("name"))
	status := fiber.StatusOK
	if !result.Success {
		status = fiber.StatusBadGateway
	}
	return c.Status(status).JSON(result)
}

// GetLists proxies the provider's list inventory
func (pc *ProviderController) GetLists(c *fiber.Ctx) error {
	adapter, err := pc.Registry.Resolve(c.Params("name"))
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, err.Error(), nil)
	}
	result := adapter.GetLists(c.Context())
	status := fiber.StatusOK
	if !result.Success {
		status = fiber.StatusBadGateway
	}
	return c.Status(status).JSON(result)
}

// GetList fetches one list's metadata from the provider
func (pc *ProviderController) GetList(c *fiber.Ctx) error {
	adapter, err := pc.Registry.Resolve(c.Params("name"))
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, err.Error(), nil)
	}
	result := adapter.GetList(c.Context(), c.Params("listId"))
	status := fiber.StatusOK
	if !result.Success {
		status = fiber.StatusBadGateway
	}
	return c.Status(status).JSON(result)
}

type createListInput struct {
	Name string `json:"name" validate:"required"`
}

// CreateList creates a list on the provider. Providers without list
// management report capability-unsupported.
func (pc *ProviderController) CreateList(c *fiber.Ctx) error {
	adapter, err := pc.Registry.Resolve(c.Params("name"))
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, err.Error(), nil)
	}

	var input createListInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	result := adapter.CreateList(c.Context(), input.Name)
	status := fiber.StatusOK
	if !result.Success {
		status = fiber.StatusBadGateway
	}
	return c.Status(status).JSON(result)
}
