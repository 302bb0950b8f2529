package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// SendGridConfig holds credentials for a SendGrid-style account
type SendGridConfig struct {
	APIKey        string `validate:"required"`
	FromEmail     string `validate:"required,email"`
	FromName      string
	DefaultListID string
}

// SendGrid implements the full capability set: marketing contacts for
// subscriber management plus the transactional mail/send endpoint.
type SendGrid struct {
	cfg     SendGridConfig
	client  *http.Client
	baseURL string
}

const sendgridBaseURL = "https://api.sendgrid.com"

func NewSendGrid(cfg SendGridConfig) (*SendGrid, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return &SendGrid{
		cfg:     cfg,
		client:  &http.Client{Timeout: defaultTimeout},
		baseURL: sendgridBaseURL,
	}, nil
}

func (s *SendGrid) Name() string { return "sendgrid" }

func (s *SendGrid) TestConnection(ctx context.Context) Result {
	resp, err := s.do(ctx, http.MethodGet, "/v3/user/profile", nil)
	if err != nil {
		return transportError(s.Name(), err)
	}
	body := readBody(resp)
	if !is2xx(resp) {
		return apiError(s.Name(), resp, body)
	}
	return ok("SendGrid connection verified")
}

// AddSubscriber upserts the contact. The contacts endpoint is natively
// create-or-update, which gives the idempotent add semantics for free.
func (s *SendGrid) AddSubscriber(ctx context.Context, sub Subscriber, listID string) Result {
	return s.upsertContact(ctx, sub, listID, "subscriber added")
}

func (s *SendGrid) UpdateSubscriber(ctx context.Context, sub Subscriber, listID string) Result {
	return s.upsertContact(ctx, sub, listID, "subscriber updated")
}

func (s *SendGrid) upsertContact(ctx context.Context, sub Subscriber, listID, successMsg string) Result {
	listID = s.listOrDefault(listID)
	if listID == "" {
		return configError("no list ID provided and no default list configured")
	}

	contact := map[string]interface{}{
		"email":      sub.Email,
		"first_name": sub.FirstName,
		"last_name":  sub.LastName,
	}
	if len(sub.CustomFields) > 0 {
		contact["custom_fields"] = sub.CustomFields
	}
	payload := map[string]interface{}{
		"list_ids": []string{listID},
		"contacts": []map[string]interface{}{contact},
	}

	resp, err := s.do(ctx, http.MethodPut, "/v3/marketing/contacts", payload)
	if err != nil {
		return transportError(s.Name(), err)
	}
	body := readBody(resp)
	if !is2xx(resp) {
		return apiError(s.Name(), resp, body)
	}

	var accepted struct {
		JobID string `json:"job_id"`
	}
	_ = json.Unmarshal(body, &accepted)

	r := ok(successMsg)
	r.SubscriberID = accepted.JobID
	r.ListID = listID
	return r
}

// RemoveSubscriber looks the contact up by email and deletes it. An absent
// contact is success, not failure.
func (s *SendGrid) RemoveSubscriber(ctx context.Context, email, listID string) Result {
	payload := map[string]interface{}{
		"emails": []string{email},
	}
	resp, err := s.do(ctx, http.MethodPost, "/v3/marketing/contacts/search/emails", payload)
	if err != nil {
		return transportError(s.Name(), err)
	}
	body := readBody(resp)
	if resp.StatusCode == http.StatusNotFound {
		return ok("subscriber not found, nothing to remove")
	}
	if !is2xx(resp) {
		return apiError(s.Name(), resp, body)
	}

	var found struct {
		Result map[string]struct {
			Contact struct {
				ID string `json:"id"`
			} `json:"contact"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &found); err != nil {
		return transportError(s.Name(), fmt.Errorf("parsing search response: %w", err))
	}
	entry, exists := found.Result[email]
	if !exists || entry.Contact.ID == "" {
		return ok("subscriber not found, nothing to remove")
	}

	resp, err = s.do(ctx, http.MethodDelete, "/v3/marketing/contacts?ids="+url.QueryEscape(entry.Contact.ID), nil)
	if err != nil {
		return transportError(s.Name(), err)
	}
	body = readBody(resp)
	if !is2xx(resp) && resp.StatusCode != http.StatusNotFound {
		return apiError(s.Name(), resp, body)
	}
	return ok("subscriber removed")
}

func (s *SendGrid) GetLists(ctx context.Context) Result {
	resp, err := s.do(ctx, http.MethodGet, "/v3/marketing/lists", nil)
	if err != nil {
		return transportError(s.Name(), err)
	}
	body := readBody(resp)
	if !is2xx(resp) {
		return apiError(s.Name(), resp, body)
	}

	var page struct {
		Result []struct {
			ID           string `json:"id"`
			Name         string `json:"name"`
			ContactCount int    `json:"contact_count"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &page); err != nil {
		return transportError(s.Name(), fmt.Errorf("parsing lists response: %w", err))
	}

	r := ok("lists fetched")
	for _, e := range page.Result {
		r.Lists = append(r.Lists, List{ID: e.ID, Name: e.Name, SubscriberCount: e.ContactCount})
	}
	return r
}

func (s *SendGrid) GetList(ctx context.Context, listID string) Result {
	listID = s.listOrDefault(listID)
	if listID == "" {
		return configError("no list ID provided and no default list configured")
	}

	resp, err := s.do(ctx, http.MethodGet, "/v3/marketing/lists/"+url.PathEscape(listID), nil)
	if err != nil {
		return transportError(s.Name(), err)
	}
	body := readBody(resp)
	if !is2xx(resp) {
		return apiError(s.Name(), resp, body)
	}

	var list struct {
		ID           string `json:"id"`
		Name         string `json:"name"`
		ContactCount int    `json:"contact_count"`
	}
	if err := json.Unmarshal(body, &list); err != nil {
		return transportError(s.Name(), fmt.Errorf("parsing list response: %w", err))
	}

	r := ok("list fetched")
	r.ListID = list.ID
	r.List = &List{ID: list.ID, Name: list.Name, SubscriberCount: list.ContactCount}
	return r
}

func (s *SendGrid) CreateList(ctx context.Context, name string) Result {
	resp, err := s.do(ctx, http.MethodPost, "/v3/marketing/lists", map[string]string{"name": name})
	if err != nil {
		return transportError(s.Name(), err)
	}
	body := readBody(resp)
	if !is2xx(resp) {
		return apiError(s.Name(), resp, body)
	}

	var list struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	if err := json.Unmarshal(body, &list); err != nil {
		return transportError(s.Name(), fmt.Errorf("parsing create list response: %w", err))
	}

	r := ok("list created")
	r.ListID = list.ID
	r.List = &List{ID: list.ID, Name: list.Name}
	return r
}

func (s *SendGrid) SendEmail(ctx context.Context, msg Message) Result {
	fromEmail := msg.FromEmail
	if fromEmail == "" {
		fromEmail = s.cfg.FromEmail
	}
	fromName := msg.FromName
	if fromName == "" {
		fromName = s.cfg.FromName
	}

	content := []map[string]string{}
	if msg.Text != "" {
		content = append(content, map[string]string{"type": "text/plain", "value": msg.Text})
	}
	if msg.HTML != "" {
		content = append(content, map[string]string{"type": "text/html", "value": msg.HTML})
	}
	if len(content) == 0 {
		return configError("email has no text or HTML body")
	}

	payload := map[string]interface{}{
		"personalizations": []map[string]interface{}{
			{"to": []map[string]string{{"email": msg.To}}},
		},
		"from":    map[string]string{"email": fromEmail, "name": fromName},
		"subject": msg.Subject,
		"content": content,
	}

	resp, err := s.do(ctx, http.MethodPost, "/v3/mail/send", payload)
	if err != nil {
		return transportError(s.Name(), err)
	}
	body := readBody(resp)
	if !is2xx(resp) {
		return apiError(s.Name(), resp, body)
	}

	r := ok("email sent")
	r.SubscriberID = resp.Header.Get("X-Message-Id")
	return r
}

func (s *SendGrid) listOrDefault(listID string) string {
	if listID != "" {
		return listID
	}
	return s.cfg.DefaultListID
}

func (s *SendGrid) do(ctx context.Context, method, endpoint string, payload interface{}) (*http.Response, error) {
	var reader *bytes.Reader
	if payload != nil {
		body, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+endpoint, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	return s.client.Do(req)
}
