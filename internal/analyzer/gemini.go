package analyzer

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const maxErrorBody = 512

// GeminiConfig configures the generateContent backend.
type GeminiConfig struct {
	URL     string // full generateContent endpoint
	APIKey  string // optional, sent as x-goog-api-key
	Timeout time.Duration
	Client  *http.Client
}

// Gemini calls a generateContent-compatible endpoint with an inline image.
type Gemini struct {
	cfg    GeminiConfig
	client *http.Client
}

func NewGemini(cfg GeminiConfig) *Gemini {
	client := cfg.Client
	if client == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 60 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &Gemini{cfg: cfg, client: client}
}

func (g *Gemini) Name() string { return "gemini" }

type geminiPart struct {
	Text       string        `json:"text,omitempty"`
	InlineData *geminiInline `json:"inline_data,omitempty"`
}

type geminiInline struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiResponse struct {
	Candidates []struct {
		Content *struct {
			Parts []struct {
				Text *string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// Analyze posts the prompt followed by the image and returns
// candidates[0].content.parts[0].text.
func (g *Gemini) Analyze(ctx context.Context, img Image, prompt string) (string, error) {
	body := geminiRequest{
		Contents: []geminiContent{{
			Parts: []geminiPart{
				{Text: prompt},
				{InlineData: &geminiInline{
					MimeType: img.MimeType,
					Data:     base64.StdEncoding.EncodeToString(img.Data),
				}},
			},
		}},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.cfg.APIKey != "" {
		req.Header.Set("x-goog-api-key", g.cfg.APIKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return "", &TransportError{Backend: g.Name(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", &TransportError{
			Backend:    g.Name(),
			StatusCode: resp.StatusCode,
			Body:       string(errBody),
			Err:        fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	var gResp geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&gResp); err != nil {
		return "", &MalformedResponseError{Backend: g.Name(), Reason: "undecodable body", Err: err}
	}

	if len(gResp.Candidates) == 0 {
		return "", &MalformedResponseError{Backend: g.Name(), Reason: "no candidates"}
	}
	content := gResp.Candidates[0].Content
	if content == nil || len(content.Parts) == 0 {
		return "", &MalformedResponseError{Backend: g.Name(), Reason: "candidate has no content parts"}
	}
	if content.Parts[0].Text == nil {
		return "", &MalformedResponseError{Backend: g.Name(), Reason: "first part has no text"}
	}
	return *content.Parts[0].Text, nil
}
