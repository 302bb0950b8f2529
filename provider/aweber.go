package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"

	"golang.org/x/oauth2"
)

// AWeberConfig holds the credentials for an AWeber-style account. Validated
// at construction; a provider with a bad config is never registered.
type AWeberConfig struct {
	AccessToken   string `validate:"required"`
	AccountID     string `validate:"required"`
	DefaultListID string
}

// AWeber talks to an AWeber-style REST API: bearer-token auth, resource
// paths scoped by account and list id, JSON bodies. It is a broadcast
// provider, so direct transactional sends are not supported.
type AWeber struct {
	cfg     AWeberConfig
	client  *http.Client
	baseURL string
}

const aweberBaseURL = "https://api.aweber.com/1.0"

func NewAWeber(cfg AWeberConfig) (*AWeber, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	// Bearer token injection via oauth2; AWeber tokens are OAuth2 access
	// tokens refreshed outside this process.
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.AccessToken})
	base := context.WithValue(context.Background(), oauth2.HTTPClient, &http.Client{Timeout: defaultTimeout})
	client := oauth2.NewClient(base, src)
	client.Timeout = defaultTimeout

	return &AWeber{
		cfg:     cfg,
		client:  client,
		baseURL: aweberBaseURL,
	}, nil
}

func (a *AWeber) Name() string { return "aweber" }

// TestConnection fetches the account resource, the cheapest authenticated call
func (a *AWeber) TestConnection(ctx context.Context) Result {
	resp, err := a.get(ctx, a.accountURL())
	if err != nil {
		return transportError(a.Name(), err)
	}
	body := readBody(resp)
	if !is2xx(resp) {
		return apiError(a.Name(), resp, body)
	}
	return ok("AWeber connection verified")
}

// AddSubscriber creates the subscriber on the list. When the provider
// reports the email as already subscribed, it falls back to
// UpdateSubscriber so repeated adds behave as an upsert.
func (a *AWeber) AddSubscriber(ctx context.Context, sub Subscriber, listID string) Result {
	listID = a.listOrDefault(listID)
	if listID == "" {
		return configError("no list ID provided and no default list configured")
	}

	result := a.createSubscriber(ctx, sub, listID)
	if !result.Success && isDuplicateError(result.Error) {
		return a.UpdateSubscriber(ctx, sub, listID)
	}
	return result
}

func (a *AWeber) createSubscriber(ctx context.Context, sub Subscriber, listID string) Result {
	payload := map[string]interface{}{
		"ws.op": "create",
		"email": sub.Email,
		"name":  subscriberName(sub),
	}
	if len(sub.Tags) > 0 {
		payload["tags"] = sub.Tags
	}
	if len(sub.CustomFields) > 0 {
		payload["custom_fields"] = sub.CustomFields
	}

	resp, err := a.post(ctx, a.subscribersURL(listID), payload)
	if err != nil {
		return transportError(a.Name(), err)
	}
	body := readBody(resp)
	if !is2xx(resp) {
		return apiError(a.Name(), resp, body)
	}

	r := ok("subscriber added")
	r.SubscriberID = idFromLocation(resp.Header.Get("Location"))
	r.ListID = listID
	return r
}

// UpdateSubscriber patches the existing subscriber record. A subscriber
// that does not exist yet is created instead, mirroring AddSubscriber's
// duplicate fallback in the other direction.
func (a *AWeber) UpdateSubscriber(ctx context.Context, sub Subscriber, listID string) Result {
	listID = a.listOrDefault(listID)
	if listID == "" {
		return configError("no list ID provided and no default list configured")
	}

	entry, findResult := a.findSubscriber(ctx, sub.Email, listID)
	if !findResult.Success {
		return findResult
	}
	if entry == nil {
		return a.createSubscriber(ctx, sub, listID)
	}

	payload := map[string]interface{}{
		"name": subscriberName(sub),
	}
	if len(sub.Tags) > 0 {
		payload["tags"] = map[string]interface{}{"add": sub.Tags}
	}
	if len(sub.CustomFields) > 0 {
		payload["custom_fields"] = sub.CustomFields
	}

	resp, err := a.patch(ctx, entry.SelfLink, payload)
	if err != nil {
		return transportError(a.Name(), err)
	}
	body := readBody(resp)
	if !is2xx(resp) {
		return apiError(a.Name(), resp, body)
	}

	r := ok("subscriber updated")
	r.SubscriberID = entry.ID
	r.ListID = listID
	return r
}

// RemoveSubscriber deletes the subscriber from the list. Removal is
// idempotent: a subscriber that is already absent is reported as success.
func (a *AWeber) RemoveSubscriber(ctx context.Context, email, listID string) Result {
	listID = a.listOrDefault(listID)
	if listID == "" {
		return configError("no list ID provided and no default list configured")
	}

	entry, findResult := a.findSubscriber(ctx, email, listID)
	if !findResult.Success {
		return findResult
	}
	if entry == nil {
		return ok("subscriber not found on list, nothing to remove")
	}

	resp, err := a.delete(ctx, entry.SelfLink)
	if err != nil {
		return transportError(a.Name(), err)
	}
	body := readBody(resp)
	if !is2xx(resp) && resp.StatusCode != http.StatusNotFound {
		return apiError(a.Name(), resp, body)
	}
	return ok("subscriber removed")
}

func (a *AWeber) GetLists(ctx context.Context) Result {
	resp, err := a.get(ctx, a.accountURL()+"/lists")
	if err != nil {
		return transportError(a.Name(), err)
	}
	body := readBody(resp)
	if !is2xx(resp) {
		return apiError(a.Name(), resp, body)
	}

	var page struct {
		Entries []struct {
			ID               json.Number `json:"id"`
			Name             string      `json:"name"`
			TotalSubscribers int         `json:"total_subscribers"`
		} `json:"entries"`
	}
	if err := json.Unmarshal(body, &page); err != nil {
		return transportError(a.Name(), fmt.Errorf("parsing lists response: %w", err))
	}

	r := ok("lists fetched")
	for _, e := range page.Entries {
		r.Lists = append(r.Lists, List{
			ID:              e.ID.String(),
			Name:            e.Name,
			SubscriberCount: e.TotalSubscribers,
		})
	}
	return r
}

func (a *AWeber) GetList(ctx context.Context, listID string) Result {
	listID = a.listOrDefault(listID)
	if listID == "" {
		return configError("no list ID provided and no default list configured")
	}

	resp, err := a.get(ctx, a.accountURL()+"/lists/"+url.PathEscape(listID))
	if err != nil {
		return transportError(a.Name(), err)
	}
	body := readBody(resp)
	if !is2xx(resp) {
		return apiError(a.Name(), resp, body)
	}

	var list struct {
		ID               json.Number `json:"id"`
		Name             string      `json:"name"`
		TotalSubscribers int         `json:"total_subscribers"`
	}
	if err := json.Unmarshal(body, &list); err != nil {
		return transportError(a.Name(), fmt.Errorf("parsing list response: %w", err))
	}

	r := ok("list fetched")
	r.ListID = list.ID.String()
	r.List = &List{ID: list.ID.String(), Name: list.Name, SubscriberCount: list.TotalSubscribers}
	return r
}

// CreateList is not offered by the AWeber API; lists are created in the
// AWeber dashboard
func (a *AWeber) CreateList(ctx context.Context, name string) Result {
	return unsupported(a.Name(), "list creation")
}

// SendEmail is not offered: AWeber is a broadcast provider without a
// transactional send API
func (a *AWeber) SendEmail(ctx context.Context, msg Message) Result {
	return unsupported(a.Name(), "direct transactional sending")
}

// --- internals ---

type aweberSubscriberEntry struct {
	ID       string
	SelfLink string
}

// findSubscriber looks the email up on the list. A missing subscriber is
// (nil, success): "not found" is a soft condition the callers decide on.
func (a *AWeber) findSubscriber(ctx context.Context, email, listID string) (*aweberSubscriberEntry, Result) {
	query := url.Values{}
	query.Set("ws.op", "find")
	query.Set("email", email)

	resp, err := a.get(ctx, a.subscribersURL(listID)+"?"+query.Encode())
	if err != nil {
		return nil, transportError(a.Name(), err)
	}
	body := readBody(resp)
	if resp.StatusCode == http.StatusNotFound {
		return nil, ok("subscriber not found")
	}
	if !is2xx(resp) {
		return nil, apiError(a.Name(), resp, body)
	}

	var page struct {
		Entries []struct {
			ID       json.Number `json:"id"`
			SelfLink string      `json:"self_link"`
		} `json:"entries"`
	}
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, transportError(a.Name(), fmt.Errorf("parsing find response: %w", err))
	}
	if len(page.Entries) == 0 {
		return nil, ok("subscriber not found")
	}
	return &aweberSubscriberEntry{
		ID:       page.Entries[0].ID.String(),
		SelfLink: page.Entries[0].SelfLink,
	}, ok("subscriber found")
}

func (a *AWeber) accountURL() string {
	return a.baseURL + "/accounts/" + url.PathEscape(a.cfg.AccountID)
}

func (a *AWeber) subscribersURL(listID string) string {
	return a.accountURL() + "/lists/" + url.PathEscape(listID) + "/subscribers"
}

func (a *AWeber) listOrDefault(listID string) string {
	if listID != "" {
		return listID
	}
	return a.cfg.DefaultListID
}

func (a *AWeber) get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.rebase(rawURL), nil)
	if err != nil {
		return nil, err
	}
	return a.client.Do(req)
}

func (a *AWeber) post(ctx context.Context, rawURL string, payload interface{}) (*http.Response, error) {
	return a.send(ctx, http.MethodPost, rawURL, payload)
}

func (a *AWeber) patch(ctx context.Context, rawURL string, payload interface{}) (*http.Response, error) {
	return a.send(ctx, http.MethodPatch, rawURL, payload)
}

func (a *AWeber) delete(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, a.rebase(rawURL), nil)
	if err != nil {
		return nil, err
	}
	return a.client.Do(req)
}

func (a *AWeber) send(ctx context.Context, method, rawURL string, payload interface{}) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, a.rebase(rawURL), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return a.client.Do(req)
}

// rebase rewrites absolute self links onto the configured base URL so the
// adapter keeps working against a different host (tests, API proxies)
func (a *AWeber) rebase(rawURL string) string {
	if strings.HasPrefix(rawURL, a.baseURL) {
		return rawURL
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	if parsed.Host == "" {
		return a.baseURL + rawURL
	}
	rebased := a.baseURL + parsed.Path
	if parsed.RawQuery != "" {
		rebased += "?" + parsed.RawQuery
	}
	return rebased
}

func isDuplicateError(detail string) bool {
	lower := strings.ToLower(detail)
	return strings.Contains(lower, "already subscribed") || strings.Contains(lower, "duplicate")
}

func subscriberName(sub Subscriber) string {
	if sub.Name != "" {
		return sub.Name
	}
	return strings.TrimSpace(sub.FirstName + " " + sub.LastName)
}

func idFromLocation(location string) string {
	if location == "" {
		return ""
	}
	return path.Base(location)
}
