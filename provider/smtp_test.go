package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSMTPConfigValidation(t *testing.T) {
	_, err := NewSMTP(SMTPConfig{Host: "smtp.example.com"})
	assert.Error(t, err)

	_, err = NewSMTP(SMTPConfig{
		Host:      "smtp.example.com",
		Port:      99999,
		Username:  "mailer",
		Password:  "secret",
		FromEmail: "hello@heartwise.example",
	})
	assert.Error(t, err)
}

func TestSMTPListAndSubscriberOpsUnsupported(t *testing.T) {
	s, err := NewSMTP(SMTPConfig{
		Host:      "smtp.example.com",
		Port:      587,
		Username:  "mailer",
		Password:  "secret",
		FromEmail: "hello@heartwise.example",
	})
	require.NoError(t, err)

	ctx := context.Background()
	results := []Result{
		s.AddSubscriber(ctx, Subscriber{Email: "lead@example.com"}, ""),
		s.UpdateSubscriber(ctx, Subscriber{Email: "lead@example.com"}, ""),
		s.RemoveSubscriber(ctx, "lead@example.com", ""),
		s.GetLists(ctx),
		s.GetList(ctx, "1"),
		s.CreateList(ctx, "new list"),
	}
	for _, result := range results {
		assert.False(t, result.Success)
		assert.Equal(t, "operation not supported by this provider", result.Error)
	}
}
