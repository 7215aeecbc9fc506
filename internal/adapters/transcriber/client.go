// Package transcriber talks to the speech-to-text service over HTTP.
package transcriber

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dkeye/Roomscribe/internal/core"
	"github.com/rs/zerolog/log"
)

const transcribePath = "/api/transcribe_text"

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

type response struct {
	Segments []core.Segment `json:"segments"`
}

func (c *Client) Transcribe(ctx context.Context, req core.TranscribeRequest) (core.Transcription, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("audio", req.Filename)
	if err != nil {
		return core.Transcription{}, fmt.Errorf("creating form file: %w", err)
	}
	if _, err := part.Write(req.Payload); err != nil {
		return core.Transcription{}, fmt.Errorf("writing audio: %w", err)
	}
	fields := map[string]string{
		"do_denoise": strconv.FormatBool(req.DoDenoise),
		"do_diarize": strconv.FormatBool(req.DoDiarize),
		"language":   req.Language,
		"chunk_id":   req.ChunkID,
	}
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			return core.Transcription{}, fmt.Errorf("writing field %s: %w", k, err)
		}
	}
	if err := writer.Close(); err != nil {
		return core.Transcription{}, fmt.Errorf("closing multipart: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+transcribePath, body)
	if err != nil {
		return core.Transcription{}, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())

	start := time.Now()
	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		return core.Transcription{}, fmt.Errorf("calling transcriber: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return core.Transcription{}, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return core.Transcription{}, fmt.Errorf("transcriber error (HTTP %d): %s", resp.StatusCode, truncate(respBody, 256))
	}

	var out response
	if err := json.Unmarshal(respBody, &out); err != nil {
		return core.Transcription{}, fmt.Errorf("parsing transcriber response: %w", err)
	}
	res := toTranscription(out.Segments, req.DoDiarize)
	log.Debug().Str("module", "transcriber").Str("chunk_id", req.ChunkID).Int("segments", len(out.Segments)).
		Dur("took", time.Since(start)).Msg("transcribed")
	return res, nil
}

func toTranscription(segments []core.Segment, diarized bool) core.Transcription {
	texts := make([]string, 0, len(segments))
	res := core.Transcription{Segments: segments}
	for _, s := range segments {
		if t := strings.TrimSpace(s.Text); t != "" {
			texts = append(texts, t)
		}
		if diarized && res.SpeakerLabel == "" && s.Speaker != "" {
			res.SpeakerLabel = s.Speaker
		}
	}
	res.Text = strings.Join(texts, " ")
	return res
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
