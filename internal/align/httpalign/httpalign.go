// Package httpalign provides an align.Aligner backed by a forced-alignment
// HTTP service. Audio and transcript are submitted as a multipart POST to the
// service's /align endpoint and the JSON response is decoded into an
// align.Alignment.
//
// Typical usage:
//
//	a := httpalign.New("http://localhost:8765",
//	    httpalign.WithTimeout(60*time.Second),
//	)
//	result, err := a.Align(ctx, wavBytes, "ka", "ja")
package httpalign

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/kazenokoe/otoforge/internal/align"
)

// Compile-time interface assertion.
var _ align.Aligner = (*Client)(nil)

const (
	alignEndpoint  = "/align"
	defaultTimeout = 120 * time.Second

	// maxErrorBody bounds how much of an error response body is included in
	// returned errors.
	maxErrorBody = 512
)

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithTimeout sets the per-request HTTP timeout. Defaults to 120 s; forced
// alignment of long takes can be slow on CPU-only hosts.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithHTTPClient replaces the underlying http.Client. Useful for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// Client is an HTTP forced-alignment client. Safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New returns a Client targeting the alignment service at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// alignResponse mirrors the service's JSON response shape.
type alignResponse struct {
	Segments []struct {
		Phoneme    string  `json:"phoneme"`
		StartMS    float64 `json:"start_ms"`
		EndMS      float64 `json:"end_ms"`
		Confidence float64 `json:"confidence"`
	} `json:"segments"`
	Words []struct {
		Word    string  `json:"word"`
		StartMS float64 `json:"start_ms"`
		EndMS   float64 `json:"end_ms"`
	} `json:"words"`
	DurationMS float64 `json:"duration_ms"`
	Method     string  `json:"method"`
}

// Align implements [align.Aligner]. It uploads the WAV audio together with the
// transcript and language as a multipart form and decodes the JSON result.
func (c *Client) Align(ctx context.Context, wav []byte, transcript, language string) (align.Alignment, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("audio", "take.wav")
	if err != nil {
		return align.Alignment{}, fmt.Errorf("httpalign: create form file: %w", err)
	}
	if _, err := fw.Write(wav); err != nil {
		return align.Alignment{}, fmt.Errorf("httpalign: write audio part: %w", err)
	}
	if err := mw.WriteField("transcript", transcript); err != nil {
		return align.Alignment{}, fmt.Errorf("httpalign: write transcript field: %w", err)
	}
	if err := mw.WriteField("language", language); err != nil {
		return align.Alignment{}, fmt.Errorf("httpalign: write language field: %w", err)
	}
	if err := mw.Close(); err != nil {
		return align.Alignment{}, fmt.Errorf("httpalign: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+alignEndpoint, &body)
	if err != nil {
		return align.Alignment{}, fmt.Errorf("httpalign: build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return align.Alignment{}, fmt.Errorf("httpalign: align request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return align.Alignment{}, fmt.Errorf("httpalign: align request returned %d: %s",
			resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var decoded alignResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return align.Alignment{}, fmt.Errorf("httpalign: decode response: %w", err)
	}

	result := align.Alignment{
		DurationMS: decoded.DurationMS,
		Method:     decoded.Method,
	}
	for _, s := range decoded.Segments {
		result.Segments = append(result.Segments, align.PhonemeSegment{
			Phoneme:    s.Phoneme,
			StartMS:    s.StartMS,
			EndMS:      s.EndMS,
			Confidence: s.Confidence,
		})
	}
	for _, w := range decoded.Words {
		result.Words = append(result.Words, align.WordSegment{
			Word:    w.Word,
			StartMS: w.StartMS,
			EndMS:   w.EndMS,
		})
	}
	return result, nil
}
