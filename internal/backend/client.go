// Package backend talks to the attendance and roster API.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/Veraticus/rollcall/internal/common"
	"github.com/Veraticus/rollcall/internal/model"
)

const (
	defaultTimeout = 30 * time.Second
	maxErrorBody   = 512
)

// Credentials identify the caller to the API. They are passed explicitly to
// every client instead of being read from shared state.
type Credentials struct {
	BaseURL string
	Token   string
}

// NewHTTPClient returns an HTTP client that sends token as a bearer token.
// An empty token yields an unauthenticated client.
func NewHTTPClient(ctx context.Context, token string, timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if token == "" {
		return &http.Client{Timeout: timeout}
	}
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: token,
		TokenType:   "Bearer",
	}))
	client.Timeout = timeout
	return client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the authenticated HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// Client calls the session, attendance and history endpoints.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient creates a client for creds.
func NewClient(ctx context.Context, creds Credentials, opts ...Option) (*Client, error) {
	base := strings.TrimRight(creds.BaseURL, "/")
	if base == "" {
		return nil, fmt.Errorf("%w: api base url is required", common.ErrMissingConfig)
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("%w: api base url: %w", common.ErrInvalidConfig, err)
	}

	c := &Client{
		baseURL:    base,
		httpClient: NewHTTPClient(ctx, creds.Token, defaultTimeout),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// GetSession fetches the session details and its roster.
func (c *Client) GetSession(ctx context.Context, sessionID string) (model.Session, error) {
	if sessionID == "" {
		return model.Session{}, fmt.Errorf("%w: session id is required", common.ErrValidation)
	}

	body, status, err := c.do(ctx, http.MethodGet, "/api/sessions/"+url.PathEscape(sessionID), nil)
	if err != nil {
		return model.Session{}, fmt.Errorf("fetch session %s: %w", sessionID, err)
	}
	switch {
	case status == http.StatusNotFound:
		return model.Session{}, fmt.Errorf("%w: session %s", common.ErrNotFound, sessionID)
	case status < 200 || status > 299:
		return model.Session{}, fmt.Errorf("session API error (status %d): %s", status, truncate(body))
	}

	var session model.Session
	if err := json.Unmarshal(body, &session); err != nil {
		return model.Session{}, fmt.Errorf("failed to parse session details: %w", err)
	}
	if err := model.Validate(session); err != nil {
		return model.Session{}, fmt.Errorf("%w: session details: %w", common.ErrValidation, err)
	}
	if err := model.ValidateRoster(session.Roster); err != nil {
		return model.Session{}, fmt.Errorf("%w: session roster: %w", common.ErrValidation, err)
	}

	slog.Debug("Fetched session", "session_id", session.ID, "students", len(session.Roster))
	return session, nil
}

type markRecord struct {
	Confidence *float64 `json:"confidence,omitempty"`
	StudentID  string   `json:"student_id"`
	Status     string   `json:"status"`
	MarkedBy   string   `json:"marked_by"`
	Timestamp  string   `json:"timestamp"`
}

type markRequest struct {
	SessionID string       `json:"session_id"`
	Records   []markRecord `json:"attendance_records"`
}

type markResponse struct {
	Success *bool  `json:"success"`
	Message string `json:"message"`
}

// MarkAttendance submits the full set of entries for a session. Any
// rejection is common.ErrPersistenceFailed.
func (c *Client) MarkAttendance(ctx context.Context, sessionID string, entries []model.AttendanceEntry) error {
	req := markRequest{SessionID: sessionID, Records: make([]markRecord, 0, len(entries))}
	for _, entry := range entries {
		req.Records = append(req.Records, toMarkRecord(entry))
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal attendance: %w", err)
	}

	body, status, err := c.do(ctx, http.MethodPost, "/api/attendance/mark/", payload)
	if err != nil {
		return fmt.Errorf("%w: %w", common.ErrPersistenceFailed, err)
	}
	if status < 200 || status > 299 {
		return fmt.Errorf("%w: status %d: %s", common.ErrPersistenceFailed, status, truncate(body))
	}

	var resp markResponse
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &resp); err != nil {
			return fmt.Errorf("%w: malformed response: %w", common.ErrPersistenceFailed, err)
		}
	}
	if resp.Success != nil && !*resp.Success {
		msg := resp.Message
		if msg == "" {
			msg = "rejected by server"
		}
		return fmt.Errorf("%w: %s", common.ErrPersistenceFailed, msg)
	}

	slog.Info("Attendance saved", "session_id", sessionID, "records", len(entries))
	return nil
}

// toMarkRecord maps an entry to the wire format. The server only knows
// teacher and ai attribution; seeded system entries are sent as teacher.
func toMarkRecord(entry model.AttendanceEntry) markRecord {
	markedBy := entry.Origin
	if markedBy != model.OriginAI {
		markedBy = model.OriginTeacher
	}
	rec := markRecord{
		StudentID: entry.StudentID,
		Status:    string(entry.Status),
		MarkedBy:  string(markedBy),
		Timestamp: entry.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if markedBy == model.OriginAI {
		rec.Confidence = entry.Confidence
	}
	return rec
}

// HistoryRecord is a stored attendance record returned by the history endpoint.
type HistoryRecord struct {
	Confidence *float64 `json:"confidence,omitempty"`
	StudentID  string   `json:"studentId"`
	Name       string   `json:"name"`
	RollNumber string   `json:"rollNumber"`
	Status     string   `json:"status"`
	Timestamp  string   `json:"timestamp"`
	MarkedBy   string   `json:"markedBy"`
}

// Entry converts the record into a ledger entry. Unknown statuses are an
// error; unknown markers are treated as teacher edits.
func (r HistoryRecord) Entry() (model.AttendanceEntry, error) {
	status, err := model.ParseStatus(r.Status)
	if err != nil {
		return model.AttendanceEntry{}, fmt.Errorf("%w: student %s: %w", common.ErrValidation, r.StudentID, err)
	}
	entry := model.AttendanceEntry{
		StudentID: r.StudentID,
		Status:    status,
		Origin:    model.Origin(r.MarkedBy),
	}
	if !entry.Origin.Valid() {
		entry.Origin = model.OriginTeacher
	}
	if entry.Origin == model.OriginAI && r.Confidence != nil {
		confidence := *r.Confidence
		entry.Confidence = &confidence
	}
	if r.Timestamp != "" {
		if ts, err := time.Parse(time.RFC3339, r.Timestamp); err == nil {
			entry.UpdatedAt = ts
		}
	}
	return entry, nil
}

// AttendanceHistory returns the records stored for a session.
func (c *Client) AttendanceHistory(ctx context.Context, sessionID string) ([]HistoryRecord, error) {
	body, status, err := c.do(ctx, http.MethodGet, "/api/attendance/session/"+url.PathEscape(sessionID), nil)
	if err != nil {
		return nil, fmt.Errorf("fetch attendance history: %w", err)
	}
	switch {
	case status == http.StatusNotFound:
		return nil, fmt.Errorf("%w: attendance for session %s", common.ErrNotFound, sessionID)
	case status < 200 || status > 299:
		return nil, fmt.Errorf("history API error (status %d): %s", status, truncate(body))
	}

	var resp struct {
		Records []HistoryRecord `json:"records"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse attendance history: %w", err)
	}
	return resp.Records, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte) ([]byte, int, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}
	return body, resp.StatusCode, nil
}

func truncate(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxErrorBody {
		return s[:maxErrorBody] + "..."
	}
	return s
}
