package ocr

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

// Remote calls a deep-learning OCR service over HTTP. The service
// takes a base64 page image and returns recognized text with a
// confidence. The primary engine when configured.
type Remote struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration

	client *http.Client
}

func (r *Remote) Name() string { return "remote" }

func (r *Remote) Available(_ context.Context) error {
	if r.BaseURL == "" {
		return fmt.Errorf("remote ocr endpoint not configured")
	}
	return nil
}

func (r *Remote) httpClient() *http.Client {
	if r.client == nil {
		timeout := r.Timeout
		if timeout == 0 {
			timeout = 120 * time.Second
		}
		r.client = &http.Client{Timeout: timeout}
	}
	return r.client
}

type remoteRequest struct {
	Model     string   `json:"model,omitempty"`
	Image     string   `json:"image"` // data URL
	Languages []string `json:"languages,omitempty"`
}

type remoteResponse struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

type remoteErrorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (r *Remote) Recognize(ctx context.Context, pageImage []byte, languages []string) (*Result, error) {
	reqBody, err := json.Marshal(remoteRequest{
		Model:     r.Model,
		Image:     "data:image/png;base64," + base64.StdEncoding.EncodeToString(pageImage),
		Languages: languages,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.BaseURL+"/ocr", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.APIKey)
	}

	resp, err := r.httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp remoteErrorResponse
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error.Message != "" {
			return nil, fmt.Errorf("ocr service error (status %d): %s", resp.StatusCode, errResp.Error.Message)
		}
		return nil, fmt.Errorf("ocr service error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var out remoteResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	return &Result{Text: out.Text, Confidence: out.Confidence}, nil
}

var _ Engine = (*Remote)(nil)
var _ Engine = (*Tesseract)(nil)
