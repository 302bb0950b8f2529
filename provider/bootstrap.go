package provider

import (
	"fmt"
	"strconv"

	"heartwise/models"

	"gorm.io/gorm"
)

// BuildRegistry assembles a Registry from the provider settings stored in the
// database. Secret fields are decrypted with the supplied function. Providers
// with incomplete configuration are skipped, not fatal; the registry just
// won't have them. The active provider is taken from site settings when set.
func BuildRegistry(db *gorm.DB, decrypt func(string) (string, error)) (*Registry, error) {
	var rows []models.ProviderSetting
	if err := db.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load provider settings: %w", err)
	}

	settings := make(map[string]map[string]string)
	for _, row := range rows {
		value := row.Value
		if row.IsSecret && value != "" {
			decrypted, err := decrypt(value)
			if err != nil {
				return nil, fmt.Errorf("failed to decrypt %s.%s: %w", row.Provider, row.Field, err)
			}
			value = decrypted
		}
		if settings[row.Provider] == nil {
			settings[row.Provider] = make(map[string]string)
		}
		settings[row.Provider][row.Field] = value
	}

	registry := NewRegistry()
	for name, fields := range settings {
		adapter, err := Build(name, fields)
		if err != nil {
			// Incomplete config means the provider isn't usable yet
			continue
		}
		registry.Register(adapter)
	}

	var active models.SiteSetting
	if err := db.Where("key = ?", models.SettingActiveProvider).First(&active).Error; err == nil && active.Value != "" {
		if err := registry.SetActive(active.Value); err != nil {
			return nil, err
		}
	}

	return registry, nil
}

// Build constructs one adapter from its flat settings map
func Build(name string, fields map[string]string) (Provider, error) {
	switch name {
	case "aweber":
		return NewAWeber(AWeberConfig{
			AccessToken:   fields["access_token"],
			AccountID:     fields["account_id"],
			DefaultListID: fields["default_list_id"],
		})
	case "sendgrid":
		return NewSendGrid(SendGridConfig{
			APIKey:        fields["api_key"],
			FromEmail:     fields["from_email"],
			FromName:      fields["from_name"],
			DefaultListID: fields["default_list_id"],
		})
	case "smtp":
		port, _ := strconv.Atoi(fields["port"])
		return NewSMTP(SMTPConfig{
			Host:      fields["host"],
			Port:      port,
			Username:  fields["username"],
			Password:  fields["password"],
			FromEmail: fields["from_email"],
			FromName:  fields["from_name"],
		})
	default:
		return nil, fmt.Errorf("unknown email provider %q", name)
	}
}
