package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
)

// Subscriber is the uniform subscriber value passed to adapters. Adapters
// treat it as immutable per call.
type Subscriber struct {
	Email        string
	Name         string
	FirstName    string
	LastName     string
	Source       string
	Tags         []string
	CustomFields map[string]string
}

// Message is a direct transactional email
type Message struct {
	To         string
	Subject    string
	HTML       string
	Text       string
	FromEmail  string
	FromName   string
	Attachment string // optional file path, e.g. a lead magnet PDF
}

// List is normalized ESP list metadata
type List struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	SubscriberCount int    `json:"subscriber_count"`
}

// Result is the shared response envelope every adapter operation returns.
// No adapter operation ever returns a Go error or panics past its own
// boundary; all five failure categories (configuration, not-found,
// provider API, transport, capability-unsupported) fold into this shape.
type Result struct {
	Success      bool   `json:"success"`
	Message      string `json:"message,omitempty"`
	Error        string `json:"error,omitempty"`
	SubscriberID string `json:"subscriber_id,omitempty"`
	ListID       string `json:"list_id,omitempty"`
	List         *List  `json:"list,omitempty"`
	Lists        []List `json:"lists,omitempty"`
}

// Provider is the contract every ESP adapter implements
type Provider interface {
	Name() string
	TestConnection(ctx context.Context) Result
	AddSubscriber(ctx context.Context, sub Subscriber, listID string) Result
	UpdateSubscriber(ctx context.Context, sub Subscriber, listID string) Result
	RemoveSubscriber(ctx context.Context, email, listID string) Result
	GetLists(ctx context.Context) Result
	GetList(ctx context.Context, listID string) Result
	CreateList(ctx context.Context, name string) Result
	SendEmail(ctx context.Context, msg Message) Result
}

// defaultTimeout bounds every adapter network call. A timeout surfaces as a
// transport failure in the Result envelope.
const defaultTimeout = 10 * time.Second

var validate = validator.New()

// validateConfig checks a typed provider config at registration time so a
// bad config can never be partially applied later.
func validateConfig(cfg interface{}) error {
	if err := validate.Struct(cfg); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			return fmt.Errorf("invalid provider config: field %s failed %q", verrs[0].Field(), verrs[0].Tag())
		}
		return fmt.Errorf("invalid provider config: %w", err)
	}
	return nil
}

func ok(message string) Result {
	return Result{Success: true, Message: message}
}

func fail(message, detail string) Result {
	return Result{Success: false, Message: message, Error: detail}
}

// configError is failure category (a): detected before any network call
func configError(message string) Result {
	return Result{Success: false, Message: message, Error: "configuration error"}
}

// transportError is failure category (d): network/timeout/parse failures
func transportError(name string, err error) Result {
	return Result{
		Success: false,
		Message: fmt.Sprintf("%s request failed: %v", name, err),
		Error:   err.Error(),
	}
}

// unsupported is the deterministic response for operations an ESP does not
// offer. This is a capability limitation, not a runtime fault.
func unsupported(name, op string) Result {
	return Result{
		Success: false,
		Message: fmt.Sprintf("%s does not support %s", name, op),
		Error:   "operation not supported by this provider",
	}
}

// apiError builds failure category (c) from a non-2xx ESP response. The
// message is extracted from the JSON error body when parseable, otherwise
// the raw HTTP status is used.
func apiError(name string, resp *http.Response, body []byte) Result {
	detail := extractErrorMessage(body)
	if detail == "" {
		detail = resp.Status
	}
	return Result{
		Success: false,
		Message: fmt.Sprintf("%s error: %d %s", name, resp.StatusCode, detail),
		Error:   detail,
	}
}

// extractErrorMessage digs a human-readable message out of the common ESP
// error body shapes: {"error":{"message":...}}, {"error":"..."},
// {"message":"..."} and SendGrid's {"errors":[{"message":...}]}
func extractErrorMessage(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var envelope struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
		Errors  []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return ""
	}
	if len(envelope.Errors) > 0 && envelope.Errors[0].Message != "" {
		return envelope.Errors[0].Message
	}
	if len(envelope.Error) > 0 {
		var nested struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(envelope.Error, &nested); err == nil && nested.Message != "" {
			return nested.Message
		}
		var plain string
		if err := json.Unmarshal(envelope.Error, &plain); err == nil {
			return plain
		}
	}
	return envelope.Message
}

// readBody drains and closes a response body, capped to keep error paths cheap
func readBody(resp *http.Response) []byte {
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil
	}
	return body
}

func is2xx(resp *http.Response) bool {
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}
