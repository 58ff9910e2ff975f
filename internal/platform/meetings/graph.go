package meetings

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const (
	defaultGraphBaseURL = "https://graph.microsoft.com/v1.0"
	defaultLoginBaseURL = "https://login.microsoftonline.com"

	// Tokens are refreshed this long before their reported expiry.
	tokenEarlyRefresh = 5 * time.Minute
)

// GraphConfig holds Microsoft Graph credentials and tuning knobs.
type GraphConfig struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	// OrganizerID is the Azure AD user whose calendar hosts the meetings.
	OrganizerID string
	// BaseURL and LoginURL override the Graph endpoints, mainly for tests.
	BaseURL  string
	LoginURL string
	// HTTPTimeout bounds every Graph call. Defaults to 30s.
	HTTPTimeout time.Duration
	// InsecureSkipVerify disables TLS verification. Development only.
	InsecureSkipVerify bool
}

// GraphClient provisions Teams meetings through the Microsoft Graph calendar
// events API using the client-credentials flow.
type GraphClient struct {
	cfg    GraphConfig
	client *http.Client

	mu          sync.Mutex
	accessToken string
	expiresAt   time.Time
}

// NewGraphClient builds a GraphClient from config.
func NewGraphClient(cfg GraphConfig) *GraphClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultGraphBaseURL
	}
	if cfg.LoginURL == "" {
		cfg.LoginURL = defaultLoginBaseURL
	}
	if cfg.HTTPTimeout == 0 {
		cfg.HTTPTimeout = 30 * time.Second
	}

	transport := &http.Transport{}
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &GraphClient{
		cfg: cfg,
		client: &http.Client{
			Timeout:   cfg.HTTPTimeout,
			Transport: transport,
		},
	}
}

// token returns a cached app-only access token, requesting a new one when the
// cached token is within the early-refresh window of expiry.
func (g *GraphClient) token(ctx context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.accessToken != "" && time.Now().Before(g.expiresAt.Add(-tokenEarlyRefresh)) {
		return g.accessToken, nil
	}

	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {g.cfg.ClientID},
		"client_secret": {g.cfg.ClientSecret},
		"scope":         {"https://graph.microsoft.com/.default"},
	}

	endpoint := fmt.Sprintf("%s/%s/oauth2/v2.0/token", g.cfg.LoginURL, g.cfg.TenantID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", classifyTransportErr(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("token request failed: status %d: %s", resp.StatusCode, body)
	}

	var out struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if out.AccessToken == "" {
		return "", fmt.Errorf("token response missing access_token")
	}

	g.accessToken = out.AccessToken
	g.expiresAt = time.Now().Add(time.Duration(out.ExpiresIn) * time.Second)
	return g.accessToken, nil
}

// classifyTransportErr wraps TLS trust failures with ErrUnrecoverable so the
// provisioning worker stops retrying them.
func classifyTransportErr(err error) error {
	var certErr *tls.CertificateVerificationError
	if errors.As(err, &certErr) {
		return fmt.Errorf("%w: %v", ErrUnrecoverable, err)
	}
	return err
}

type graphEvent struct {
	ID            string `json:"id"`
	OnlineMeeting *struct {
		JoinURL string `json:"joinUrl"`
	} `json:"onlineMeeting"`
}

func (g *GraphClient) eventPayload(spec MeetingSpec) map[string]interface{} {
	tz := spec.Timezone
	if tz == "" {
		tz = "America/Bogota"
	}

	payload := map[string]interface{}{
		"subject": spec.Subject,
		"start": map[string]string{
			"dateTime": spec.Start.Format("2006-01-02T15:04:05"),
			"timeZone": tz,
		},
		"end": map[string]string{
			"dateTime": spec.End.Format("2006-01-02T15:04:05"),
			"timeZone": tz,
		},
		"isOnlineMeeting":       true,
		"onlineMeetingProvider": "teamsForBusiness",
		"body": map[string]string{
			"contentType": "HTML",
			"content":     spec.Description,
		},
	}
	if spec.AttendeeEmail != "" {
		payload["attendees"] = []map[string]interface{}{{
			"emailAddress": map[string]string{
				"address": spec.AttendeeEmail,
				"name":    spec.AttendeeName,
			},
			"type": "required",
		}}
	}
	return payload
}

func (g *GraphClient) do(ctx context.Context, method, path string, payload interface{}) (*http.Response, error) {
	token, err := g.token(ctx)
	if err != nil {
		return nil, err
	}

	var body io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal payload: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.cfg.BaseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, classifyTransportErr(err)
	}
	return resp, nil
}

// CreateMeeting creates a calendar event with a Teams meeting attached on the
// organizer's calendar and returns the event id and join link.
func (g *GraphClient) CreateMeeting(ctx context.Context, spec MeetingSpec) (*Handle, error) {
	path := fmt.Sprintf("/users/%s/calendar/events", g.cfg.OrganizerID)
	resp, err := g.do(ctx, http.MethodPost, path, g.eventPayload(spec))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("create meeting: status %d: %s", resp.StatusCode, body)
	}

	var evt graphEvent
	if err := json.NewDecoder(resp.Body).Decode(&evt); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}

	handle := &Handle{EventID: evt.ID}
	if evt.OnlineMeeting != nil {
		handle.JoinURL = evt.OnlineMeeting.JoinURL
	}
	if handle.EventID == "" || handle.JoinURL == "" {
		return nil, fmt.Errorf("create meeting: response missing event id or join url")
	}
	return handle, nil
}

// UpdateMeeting patches the start/end (and subject) of an existing event.
func (g *GraphClient) UpdateMeeting(ctx context.Context, eventID string, spec MeetingSpec) error {
	path := fmt.Sprintf("/users/%s/calendar/events/%s", g.cfg.OrganizerID, eventID)
	resp, err := g.do(ctx, http.MethodPatch, path, g.eventPayload(spec))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("update meeting %s: status %d: %s", eventID, resp.StatusCode, body)
	}
	return nil
}

// DeleteMeeting removes the calendar event. Deleting an already-deleted event
// is treated as success.
func (g *GraphClient) DeleteMeeting(ctx context.Context, eventID string) error {
	path := fmt.Sprintf("/users/%s/calendar/events/%s", g.cfg.OrganizerID, eventID)
	resp, err := g.do(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusNotFound {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("delete meeting %s: status %d: %s", eventID, resp.StatusCode, body)
	}
	return nil
}

// CheckConnectivity verifies credentials and organizer access by fetching the
// organizer's user record.
func (g *GraphClient) CheckConnectivity(ctx context.Context) error {
	resp, err := g.do(ctx, http.MethodGet, "/users/"+g.cfg.OrganizerID, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("connectivity check: status %d: %s", resp.StatusCode, body)
	}
	return nil
}
