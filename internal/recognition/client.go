// Package recognition uploads classroom photos to the face recognition API.
package recognition

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"sync"

	"github.com/Veraticus/rollcall/internal/backend"
	"github.com/Veraticus/rollcall/internal/capture"
	"github.com/Veraticus/rollcall/internal/common"
	"github.com/Veraticus/rollcall/internal/model"
)

const recognizePath = "/fastapi/attendance/recognize/"

// ProgressFunc receives upload progress as a percentage.
type ProgressFunc = func(percent int)

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

// Client calls the recognition endpoint.
type Client struct {
	httpClient *http.Client
	endpoint   string
}

// NewClient creates a recognition client. Requests are bounded by the caller's
// context rather than a client timeout.
func NewClient(ctx context.Context, creds backend.Credentials, opts ...Option) (*Client, error) {
	base := strings.TrimRight(creds.BaseURL, "/")
	if base == "" {
		return nil, fmt.Errorf("%w: recognition url is required", common.ErrMissingConfig)
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("%w: recognition url: %w", common.ErrInvalidConfig, err)
	}

	httpClient := backend.NewHTTPClient(ctx, creds.Token, 0)
	httpClient.Timeout = 0

	c := &Client{endpoint: base + recognizePath, httpClient: httpClient}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type wireResult struct {
	StudentID   string          `json:"student_id"`
	StudentName string          `json:"student_name"`
	RollNo      string          `json:"roll_no"`
	Confidence  *float64        `json:"confidence"`
	BBox        json.RawMessage `json:"bbox"`
}

// Recognize uploads img for sessionID and returns the raw candidates. Failures
// while the photo is still being sent are common.ErrUploadFailed; anything
// after that is common.ErrRecognitionFailed.
func (c *Client) Recognize(ctx context.Context, sessionID string, img capture.Image, progress ProgressFunc) ([]model.RecognitionCandidate, error) {
	body, contentType, err := multipartBody(sessionID, img)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrUploadFailed, err)
	}

	counter := newProgressReader(body, progress)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, counter)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %w", common.ErrUploadFailed, err)
	}
	req.ContentLength = int64(len(body))
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if !counter.done() {
			return nil, fmt.Errorf("%w: %w", common.ErrUploadFailed, err)
		}
		return nil, fmt.Errorf("%w: %w", common.ErrRecognitionFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()
	counter.finish()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %w", common.ErrRecognitionFailed, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: status %d: %s", common.ErrRecognitionFailed, resp.StatusCode, snippet(raw))
	}

	candidates, err := ParseResults(raw)
	if err != nil {
		return nil, err
	}
	slog.Debug("Recognition returned candidates", "session_id", sessionID, "count", len(candidates))
	return candidates, nil
}

// ParseResults decodes a recognition response. Individual results are not
// validated here; a malformed bounding box is dropped and the result kept.
func ParseResults(raw []byte) ([]model.RecognitionCandidate, error) {
	var resp struct {
		Results *[]wireResult `json:"results"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("%w: malformed response: %w", common.ErrRecognitionFailed, err)
	}
	if resp.Results == nil {
		return nil, fmt.Errorf("%w: response has no results", common.ErrRecognitionFailed)
	}

	candidates := make([]model.RecognitionCandidate, 0, len(*resp.Results))
	for _, r := range *resp.Results {
		candidate := model.RecognitionCandidate{
			StudentID:  r.StudentID,
			Name:       r.StudentName,
			RollNumber: r.RollNo,
			Confidence: -1,
		}
		if r.Confidence != nil {
			candidate.Confidence = *r.Confidence
		}
		if box, ok := parseBox(r.BBox); ok {
			candidate.Box = box
		} else if len(r.BBox) > 0 && string(r.BBox) != "null" {
			slog.Warn("Dropping malformed bounding box", "student_id", r.StudentID, "bbox", string(r.BBox))
		}
		candidates = append(candidates, candidate)
	}
	return candidates, nil
}

func parseBox(raw json.RawMessage) (*model.BoundingBox, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, false
	}
	var coords []float64
	if err := json.Unmarshal(raw, &coords); err != nil || len(coords) != 4 {
		return nil, false
	}
	box := &model.BoundingBox{X: coords[0], Y: coords[1], Width: coords[2], Height: coords[3]}
	if box.Width < 0 || box.Height < 0 {
		return nil, false
	}
	return box, true
}

func multipartBody(sessionID string, img capture.Image) ([]byte, string, error) {
	if len(img.Data) == 0 {
		return nil, "", errors.New("empty image")
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, img.Filename()))
	contentType := img.ContentType
	if contentType == "" {
		contentType = "image/jpeg"
	}
	header.Set("Content-Type", contentType)

	part, err := w.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("create image part: %w", err)
	}
	if _, err := part.Write(img.Data); err != nil {
		return nil, "", fmt.Errorf("write image part: %w", err)
	}
	if err := w.WriteField("session_id", sessionID); err != nil {
		return nil, "", fmt.Errorf("write session field: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart body: %w", err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

// progressReader reports monotonically increasing upload percentages.
type progressReader struct {
	reader   *bytes.Reader
	report   ProgressFunc
	total    int
	sent     int
	reported int
	mu       sync.Mutex
}

func newProgressReader(body []byte, report ProgressFunc) *progressReader {
	return &progressReader{reader: bytes.NewReader(body), report: report, total: len(body), reported: -1}
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.reader.Read(b)
	if n > 0 {
		p.mu.Lock()
		p.sent += n
		percent := 100
		if p.total > 0 {
			percent = p.sent * 100 / p.total
		}
		p.mu.Unlock()
		p.emit(percent)
	}
	return n, err
}

func (p *progressReader) done() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sent >= p.total
}

// finish reports completion once the server has answered.
func (p *progressReader) finish() {
	p.emit(100)
}

func (p *progressReader) emit(percent int) {
	p.mu.Lock()
	if percent <= p.reported {
		p.mu.Unlock()
		return
	}
	p.reported = percent
	p.mu.Unlock()

	if p.report != nil {
		p.report(percent)
	}
}

func snippet(raw []byte) string {
	s := strings.TrimSpace(string(raw))
	if len(s) > 256 {
		return s[:256] + "..."
	}
	return s
}
