// Package docgen renders meeting artifacts through the document service.
package docgen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dkeye/Roomscribe/internal/domain"
	"github.com/rs/zerolog/log"
)

const docxContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

var endpoints = map[domain.ArtifactKind]string{
	domain.ArtifactNotes:          "/api/min_meet",
	domain.ArtifactSummary:        "/api/summary",
	domain.ArtifactTranscriptDocx: "/api/make_docx",
	domain.ArtifactNotesDocx:      "/api/download_notes_docx",
	domain.ArtifactSummaryDocx:    "/api/download_summary_docx",
}

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: timeout},
	}
}

type segment struct {
	Speaker  string  `json:"speaker"`
	Start    float64 `json:"start"`
	End      float64 `json:"end"`
	Text     string  `json:"text"`
	UserID   string  `json:"userId"`
	UserName string  `json:"userName"`
}

type requestBody struct {
	RoomID   domain.RoomID          `json:"roomId"`
	Segments []segment              `json:"segments"`
	Meeting  domain.MeetingMetadata `json:"meeting"`
}

func newRequestBody(p domain.MeetingPayload) requestBody {
	segs := make([]segment, 0, len(p.Segments))
	for _, e := range p.Segments {
		if e.Dropped {
			continue
		}
		segs = append(segs, segment{
			Speaker:  e.Speaker,
			Start:    e.Start,
			End:      e.End,
			Text:     e.Text,
			UserID:   string(e.UserID),
			UserName: e.UserName,
		})
	}
	return requestBody{RoomID: p.RoomID, Segments: segs, Meeting: p.Meeting}
}

func (c *Client) Render(ctx context.Context, kind domain.ArtifactKind, payload domain.MeetingPayload) (domain.Document, error) {
	path, ok := endpoints[kind]
	if !ok {
		return domain.Document{}, fmt.Errorf("%w: unknown artifact kind %q", domain.ErrInvalidInput, kind)
	}
	raw, err := json.Marshal(newRequestBody(payload))
	if err != nil {
		return domain.Document{}, fmt.Errorf("encoding payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(raw))
	if err != nil {
		return domain.Document{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return domain.Document{}, fmt.Errorf("calling docgen: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.Document{}, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return domain.Document{}, fmt.Errorf("docgen error (HTTP %d): %s", resp.StatusCode, string(body))
	}

	doc := domain.Document{Kind: kind, Body: body}
	if kind.IsDocument() {
		doc.ContentType = docxContentType
		doc.Filename = filename(kind, payload)
	} else {
		text, err := textField(kind, body)
		if err != nil {
			return domain.Document{}, err
		}
		doc.ContentType = "text/plain; charset=utf-8"
		doc.Body = []byte(text)
	}
	log.Debug().Str("module", "docgen").Str("kind", string(kind)).Int("bytes", len(doc.Body)).Msg("rendered")
	return doc, nil
}

// textField extracts {"notes": ...} or {"summary": ...}.
func textField(kind domain.ArtifactKind, body []byte) (string, error) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(body, &m); err != nil {
		return "", fmt.Errorf("parsing %s response: %w", kind, err)
	}
	raw, ok := m[string(kind)]
	if !ok {
		return "", fmt.Errorf("%s response has no %q field", kind, kind)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("parsing %s field: %w", kind, err)
	}
	return s, nil
}

func filename(kind domain.ArtifactKind, p domain.MeetingPayload) string {
	base := strings.TrimSuffix(string(kind), "_docx")
	room := string(p.RoomID)
	if room == "" {
		room = "meeting"
	}
	return fmt.Sprintf("%s_%s.docx", room, base)
}
