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

func newTestAWeber(t *testing.T, handler http.Handler) *AWeber {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	a, err := NewAWeber(AWeberConfig{
		AccessToken:   "token",
		AccountID:     "123",
		DefaultListID: "456",
	})
	require.NoError(t, err)
	a.baseURL = server.URL
	return a
}

func TestAWeberConfigValidation(t *testing.T) {
	_, err := NewAWeber(AWeberConfig{AccountID: "123"})
	assert.Error(t, err)

	_, err = NewAWeber(AWeberConfig{AccessToken: "token"})
	assert.Error(t, err)
}

func TestAWeberTestConnectionUnauthorized(t *testing.T) {
	a := newTestAWeber(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]string{"message": "unauthorized"},
		})
	}))

	result := a.TestConnection(context.Background())
	assert.False(t, result.Success)
	assert.Equal(t, "aweber error: 401 unauthorized", result.Message)
	assert.Equal(t, "unauthorized", result.Error)
}

func TestAWeberTestConnectionSendsBearerToken(t *testing.T) {
	var gotAuth string
	a := newTestAWeber(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))

	result := a.TestConnection(context.Background())
	assert.True(t, result.Success)
	assert.Equal(t, "Bearer token", gotAuth)
}

func TestAWeberAddSubscriber(t *testing.T) {
	a := newTestAWeber(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/accounts/123/lists/456/subscribers", r.URL.Path)

		var payload map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "create", payload["ws.op"])
		assert.Equal(t, "lead@example.com", payload["email"])

		w.Header().Set("Location", "/accounts/123/lists/456/subscribers/789")
		w.WriteHeader(http.StatusCreated)
	}))

	result := a.AddSubscriber(context.Background(), Subscriber{Email: "lead@example.com", Name: "Lead"}, "")
	assert.True(t, result.Success)
	assert.Equal(t, "789", result.SubscriberID)
	assert.Equal(t, "456", result.ListID)
}

func TestAWeberAddSubscriberDuplicateFallsBackToUpdate(t *testing.T) {
	var patched bool
	mux := http.NewServeMux()
	a := newTestAWeber(t, mux)

	mux.HandleFunc("/accounts/123/lists/456/subscribers", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"error": map[string]string{"message": "email is already subscribed"},
			})
		case http.MethodGet:
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"entries": []map[string]interface{}{
					{"id": 789, "self_link": "/accounts/123/lists/456/subscribers/789"},
				},
			})
		}
	})
	mux.HandleFunc("/accounts/123/lists/456/subscribers/789", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPatch, r.Method)
		patched = true
		w.WriteHeader(http.StatusOK)
	})

	result := a.AddSubscriber(context.Background(), Subscriber{Email: "lead@example.com", Name: "Lead"}, "")
	assert.True(t, result.Success)
	assert.True(t, patched)
	assert.Equal(t, "subscriber updated", result.Message)
	assert.Equal(t, "789", result.SubscriberID)
}

func TestAWeberUpdateSubscriberCreatesWhenAbsent(t *testing.T) {
	a := newTestAWeber(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"entries": []interface{}{}})
		case http.MethodPost:
			w.Header().Set("Location", "/accounts/123/lists/456/subscribers/42")
			w.WriteHeader(http.StatusCreated)
		}
	}))

	result := a.UpdateSubscriber(context.Background(), Subscriber{Email: "new@example.com"}, "")
	assert.True(t, result.Success)
	assert.Equal(t, "subscriber added", result.Message)
	assert.Equal(t, "42", result.SubscriberID)
}

func TestAWeberRemoveSubscriberAbsentIsSuccess(t *testing.T) {
	a := newTestAWeber(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"entries": []interface{}{}})
	}))

	result := a.RemoveSubscriber(context.Background(), "gone@example.com", "")
	assert.True(t, result.Success)
}

func TestAWeberRemoveSubscriber(t *testing.T) {
	var deleted bool
	mux := http.NewServeMux()
	a := newTestAWeber(t, mux)

	mux.HandleFunc("/accounts/123/lists/456/subscribers", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"entries": []map[string]interface{}{
				{"id": 789, "self_link": "/accounts/123/lists/456/subscribers/789"},
			},
		})
	})
	mux.HandleFunc("/accounts/123/lists/456/subscribers/789", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		deleted = true
		w.WriteHeader(http.StatusOK)
	})

	result := a.RemoveSubscriber(context.Background(), "lead@example.com", "")
	assert.True(t, result.Success)
	assert.True(t, deleted)
}

func TestAWeberMissingListIsConfigError(t *testing.T) {
	a, err := NewAWeber(AWeberConfig{AccessToken: "token", AccountID: "123"})
	require.NoError(t, err)

	result := a.AddSubscriber(context.Background(), Subscriber{Email: "lead@example.com"}, "")
	assert.False(t, result.Success)
	assert.Equal(t, "configuration error", result.Error)
}

func TestAWeberGetLists(t *testing.T) {
	a := newTestAWeber(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/accounts/123/lists", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"entries": []map[string]interface{}{
				{"id": 456, "name": "Newsletter", "total_subscribers": 1200},
				{"id": 457, "name": "Quiz Leads", "total_subscribers": 30},
			},
		})
	}))

	result := a.GetLists(context.Background())
	require.True(t, result.Success)
	require.Len(t, result.Lists, 2)
	assert.Equal(t, "456", result.Lists[0].ID)
	assert.Equal(t, "Newsletter", result.Lists[0].Name)
	assert.Equal(t, 1200, result.Lists[0].SubscriberCount)
}

func TestAWeberUnsupportedOperations(t *testing.T) {
	a, err := NewAWeber(AWeberConfig{AccessToken: "token", AccountID: "123"})
	require.NoError(t, err)

	send := a.SendEmail(context.Background(), Message{To: "x@example.com", Subject: "hi", HTML: "<p>hi</p>"})
	assert.False(t, send.Success)
	assert.Equal(t, "operation not supported by this provider", send.Error)

	create := a.CreateList(context.Background(), "new list")
	assert.False(t, create.Success)
	assert.Equal(t, "operation not supported by this provider", create.Error)
}

func TestAWeberTransportFailure(t *testing.T) {
	a, err := NewAWeber(AWeberConfig{AccessToken: "token", AccountID: "123", DefaultListID: "456"})
	require.NoError(t, err)
	// Unroutable address, connection refused immediately
	a.baseURL = "http://127.0.0.1:1"

	result := a.TestConnection(context.Background())
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Error)
}
