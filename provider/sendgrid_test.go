package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSendGrid(t *testing.T, handler http.Handler) *SendGrid {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	s, err := NewSendGrid(SendGridConfig{
		APIKey:        "sg-key",
		FromEmail:     "hello@heartwise.example",
		FromName:      "HeartWise",
		DefaultListID: "list-1",
	})
	require.NoError(t, err)
	s.baseURL = server.URL
	return s
}

func TestSendGridConfigValidation(t *testing.T) {
	_, err := NewSendGrid(SendGridConfig{FromEmail: "hello@heartwise.example"})
	assert.Error(t, err)

	_, err = NewSendGrid(SendGridConfig{APIKey: "sg-key", FromEmail: "not-an-email"})
	assert.Error(t, err)
}

func TestSendGridAddSubscriberUpserts(t *testing.T) {
	s := newTestSendGrid(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		require.Equal(t, "/v3/marketing/contacts", r.URL.Path)
		require.Equal(t, "Bearer sg-key", r.Header.Get("Authorization"))

		var payload struct {
			ListIDs  []string `json:"list_ids"`
			Contacts []struct {
				Email string `json:"email"`
			} `json:"contacts"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, []string{"list-1"}, payload.ListIDs)
		require.Len(t, payload.Contacts, 1)
		assert.Equal(t, "lead@example.com", payload.Contacts[0].Email)

		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(map[string]string{"job_id": "job-9"})
	}))

	result := s.AddSubscriber(context.Background(), Subscriber{Email: "lead@example.com"}, "")
	assert.True(t, result.Success)
	assert.Equal(t, "job-9", result.SubscriberID)
	assert.Equal(t, "list-1", result.ListID)
}

func TestSendGridRemoveSubscriberAbsentIsSuccess(t *testing.T) {
	s := newTestSendGrid(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v3/marketing/contacts/search/emails", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"result": map[string]interface{}{}})
	}))

	result := s.RemoveSubscriber(context.Background(), "gone@example.com", "")
	assert.True(t, result.Success)
}

func TestSendGridRemoveSubscriber(t *testing.T) {
	var deletedIDs string
	mux := http.NewServeMux()
	s := newTestSendGrid(t, mux)

	mux.HandleFunc("/v3/marketing/contacts/search/emails", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"result": map[string]interface{}{
				"lead@example.com": map[string]interface{}{
					"contact": map[string]string{"id": "c-42"},
				},
			},
		})
	})
	mux.HandleFunc("/v3/marketing/contacts", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		deletedIDs = r.URL.Query().Get("ids")
		w.WriteHeader(http.StatusAccepted)
	})

	result := s.RemoveSubscriber(context.Background(), "lead@example.com", "")
	assert.True(t, result.Success)
	assert.Equal(t, "c-42", deletedIDs)
}

func TestSendGridSendEmail(t *testing.T) {
	s := newTestSendGrid(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v3/mail/send", r.URL.Path)

		var payload struct {
			From    map[string]string `json:"from"`
			Subject string            `json:"subject"`
			Content []struct {
				Type string `json:"type"`
			} `json:"content"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "hello@heartwise.example", payload.From["email"])
		assert.Equal(t, "Welcome", payload.Subject)
		require.Len(t, payload.Content, 1)
		assert.Equal(t, "text/html", payload.Content[0].Type)

		w.Header().Set("X-Message-Id", "msg-7")
		w.WriteHeader(http.StatusAccepted)
	}))

	result := s.SendEmail(context.Background(), Message{
		To:      "lead@example.com",
		Subject: "Welcome",
		HTML:    "<p>Hi there</p>",
	})
	assert.True(t, result.Success)
	assert.Equal(t, "msg-7", result.SubscriberID)
}

func TestSendGridSendEmailWithoutBodyIsConfigError(t *testing.T) {
	s, err := NewSendGrid(SendGridConfig{APIKey: "sg-key", FromEmail: "hello@heartwise.example"})
	require.NoError(t, err)

	result := s.SendEmail(context.Background(), Message{To: "lead@example.com", Subject: "empty"})
	assert.False(t, result.Success)
	assert.Equal(t, "configuration error", result.Error)
}

func TestSendGridSendEmailAPIError(t *testing.T) {
	s := newTestSendGrid(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"errors": []map[string]string{{"message": "does not contain a valid address"}},
		})
	}))

	result := s.SendEmail(context.Background(), Message{To: "bad", Subject: "x", HTML: "<p>x</p>"})
	assert.False(t, result.Success)
	assert.Equal(t, "sendgrid error: 400 does not contain a valid address", result.Message)
}

func TestSendGridCreateList(t *testing.T) {
	s := newTestSendGrid(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v3/marketing/lists", r.URL.Path)
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "list-2", "name": "Quiz Leads"})
	}))

	result := s.CreateList(context.Background(), "Quiz Leads")
	require.True(t, result.Success)
	assert.Equal(t, "list-2", result.ListID)
	assert.Equal(t, "Quiz Leads", result.List.Name)
}
