package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	name string
}

func (p *stubProvider) Name() string {
	return p.name
}

func (p *stubProvider) TestConnection(context.Context) Result {
	return ok("ok")
}

func (p *stubProvider) AddSubscriber(context.Context, Subscriber, string) Result {
	return ok("added")
}

func (p *stubProvider) UpdateSubscriber(context.Context, Subscriber, string) Result {
	return ok("updated")
}

func (p *stubProvider) RemoveSubscriber(context.Context, string, string) Result {
	return ok("removed")
}

func (p *stubProvider) GetLists(context.Context) Result {
	return ok("lists")
}

func (p *stubProvider) GetList(context.Context, string) Result {
	return ok("list")
}

func (p *stubProvider) CreateList(context.Context, string) Result {
	return ok("created")
}

func (p *stubProvider) SendEmail(context.Context, Message) Result {
	return ok("sent")
}

func TestRegistryFirstRegisteredBecomesActive(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubProvider{name: "sendgrid"})
	r.Register(&stubProvider{name: "smtp"})

	assert.Equal(t, "sendgrid", r.ActiveName())

	active, err := r.Active()
	require.NoError(t, err)
	assert.Equal(t, "sendgrid", active.Name())
}

func TestRegistrySetActive(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubProvider{name: "sendgrid"})
	r.Register(&stubProvider{name: "smtp"})

	require.NoError(t, r.SetActive("smtp"))
	assert.Equal(t, "smtp", r.ActiveName())

	err := r.SetActive("mailchimp")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not registered")
	assert.Equal(t, "smtp", r.ActiveName())
}

func TestRegistryResolve(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubProvider{name: "aweber"})

	p, err := r.Resolve("aweber")
	require.NoError(t, err)
	assert.Equal(t, "aweber", p.Name())

	// Empty name resolves to the active provider
	p, err = r.Resolve("")
	require.NoError(t, err)
	assert.Equal(t, "aweber", p.Name())

	_, err = r.Resolve("sendgrid")
	assert.Error(t, err)
}

func TestRegistryEmpty(t *testing.T) {
	r := NewRegistry()

	_, err := r.Active()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no email provider is configured")
	assert.Empty(t, r.ActiveName())
	assert.Empty(t, r.Names())
}

func TestRegistryReplaceKeepsActive(t *testing.T) {
	r := NewRegistry()
	first := &stubProvider{name: "sendgrid"}
	r.Register(first)

	replacement := &stubProvider{name: "sendgrid"}
	r.Register(replacement)

	active, err := r.Active()
	require.NoError(t, err)
	assert.Same(t, replacement, active.(*stubProvider))
}

func TestBuildAdapter(t *testing.T) {
	p, err := Build("sendgrid", map[string]string{
		"api_key":    "sg-key",
		"from_email": "hello@heartwise.example",
	})
	require.NoError(t, err)
	assert.Equal(t, "sendgrid", p.Name())

	p, err = Build("smtp", map[string]string{
		"host":       "smtp.example.com",
		"port":       "587",
		"username":   "mailer",
		"password":   "secret",
		"from_email": "hello@heartwise.example",
	})
	require.NoError(t, err)
	assert.Equal(t, "smtp", p.Name())

	_, err = Build("smtp", map[string]string{"host": "smtp.example.com"})
	assert.Error(t, err)

	_, err = Build("mailchimp", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown email provider")
}
