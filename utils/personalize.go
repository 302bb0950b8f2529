package utils

import (
	"strings"

	"heartwise/models"
)

// Personalize replaces {{placeholder}} tokens in template text with the
// subscriber's fields. Built-in placeholders are firstName, lastName, name
// and email; custom fields resolve by their field name. Unknown
// placeholders are left as-is so a typo is visible instead of silently
// blanked.
func Personalize(text string, subscriber *models.Subscriber) string {
	if text == "" || subscriber == nil {
		return text
	}

	firstName := subscriber.FirstName
	if firstName == "" {
		firstName = fallbackFirstName(subscriber.Name)
	}

	pairs := []string{
		"{{firstName}}", firstName,
		"{{lastName}}", subscriber.LastName,
		"{{name}}", subscriber.Name,
		"{{email}}", subscriber.Email,
	}
	for _, f := range subscriber.CustomFields {
		pairs = append(pairs, "{{"+f.Name+"}}", f.Value)
	}

	return strings.NewReplacer(pairs...).Replace(text)
}

// fallbackFirstName takes the first word of the full name, so "{{firstName}}"
// still resolves for subscribers captured with only a single name field
func fallbackFirstName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "there"
	}
	if idx := strings.IndexByte(name, ' '); idx > 0 {
		return name[:idx]
	}
	return name
}
