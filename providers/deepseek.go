package providers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"tricoder.app/models"
)

// DeepSeekProvider handles DeepSeek's OpenAI-compatible chat API.
// It also serves any other OpenAI-compatible endpoint (ProviderOpenAI).
type DeepSeekProvider struct {
	client *http.Client
}

// NewDeepSeekProvider creates a new DeepSeek provider
func NewDeepSeekProvider() *DeepSeekProvider {
	return &DeepSeekProvider{
		client: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

// TranslateRequest converts unified request to OpenAI-compatible format
func (d *DeepSeekProvider) TranslateRequest(ctx context.Context, req *UnifiedRequest, deployment *models.Deployment) (*ProviderRequest, error) {
	messages := make([]Message, 0, len(req.Messages))
	messages = append(messages, req.Messages...)

	// DeepSeek has no vision input. Text attachments are decoded and
	// inlined into the last user message; anything else becomes a marker
	// so the model knows a file was present.
	if req.Attachment != nil && len(messages) > 0 {
		last := len(messages) - 1
		messages[last].Content = messages[last].Content + "\n\n" + renderAttachmentAsText(req.Attachment)
	}

	body := map[string]interface{}{
		"model":    deployment.ProviderModelID,
		"messages": messages,
		"stream":   req.Stream,
	}

	if req.Temperature > 0 {
		body["temperature"] = req.Temperature
	}
	if req.MaxTokens > 0 {
		body["max_tokens"] = req.MaxTokens
	}
	if req.TopP > 0 {
		body["top_p"] = req.TopP
	}
	if len(req.Stop) > 0 {
		body["stop"] = req.Stop
	}
	if req.ResponseFormat != nil {
		body["response_format"] = map[string]string{"type": req.ResponseFormat.Type}
	}

	headers := map[string]string{
		"Content-Type": "application/json",
	}
	if deployment.Endpoint.Auth.Type == models.AuthAPIKey && deployment.Endpoint.Auth.APIKey != "" {
		headers["Authorization"] = "Bearer " + deployment.Endpoint.Auth.APIKey
	}
	for k, v := range deployment.Endpoint.CustomHeaders {
		headers[k] = v
	}

	url := deployment.Endpoint.BaseURL
	if !strings.Contains(url, "/chat/completions") {
		url = strings.TrimSuffix(url, "/") + "/chat/completions"
	}

	return &ProviderRequest{
		URL:     url,
		Method:  "POST",
		Headers: headers,
		Body:    body,
		Timeout: deployment.Endpoint.Timeout,
	}, nil
}

// Execute sends the request to the API
func (d *DeepSeekProvider) Execute(ctx context.Context, req *ProviderRequest) (*ProviderResponse, error) {
	jsonBody, err := json.Marshal(req.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	var body json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	headers := make(map[string]string)
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}

	return &ProviderResponse{
		StatusCode: resp.StatusCode,
		Headers:    headers,
		Body:       body,
	}, nil
}

// TranslateResponse converts API response to unified format
func (d *DeepSeekProvider) TranslateResponse(ctx context.Context, resp *ProviderResponse, deployment *models.Deployment) (*UnifiedResponse, error) {
	if resp.StatusCode != http.StatusOK {
		return nil, apiStatusError(resp)
	}

	var unifiedResp UnifiedResponse
	if err := json.Unmarshal(resp.Body, &unifiedResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if len(unifiedResp.Choices) == 0 {
		return nil, fmt.Errorf("response contained no choices")
	}

	if unifiedResp.Metadata == nil {
		unifiedResp.Metadata = make(map[string]interface{})
	}
	unifiedResp.Metadata["deployment_id"] = deployment.ID
	unifiedResp.Metadata["provider"] = string(deployment.Provider)
	unifiedResp.Metadata["provider_model"] = deployment.ProviderModelID

	return &unifiedResp, nil
}

// Stream handles streaming responses (SSE)
func (d *DeepSeekProvider) Stream(ctx context.Context, req *ProviderRequest, stream chan<- StreamChunk) error {
	defer close(stream)

	if body, ok := req.Body.(map[string]interface{}); ok {
		body["stream"] = true
	}

	jsonBody, err := json.Marshal(req.Body)
	if err != nil {
		stream <- StreamChunk{Error: err}
		return err
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, bytes.NewBuffer(jsonBody))
	if err != nil {
		stream <- StreamChunk{Error: err}
		return err
	}

	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := d.client.Do(httpReq)
	if err != nil {
		stream <- StreamChunk{Error: err}
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("API returned status %d", resp.StatusCode)
		stream <- StreamChunk{Error: err}
		return err
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()

		if strings.HasPrefix(line, "data: ") {
			data := strings.TrimPrefix(line, "data: ")

			if data == "[DONE]" {
				stream <- StreamChunk{Done: true}
				return nil
			}

			var chunk map[string]interface{}
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				// Skip malformed JSON
				continue
			}

			// Format: {"choices": [{"delta": {"content": "text"}}]}
			if choices, ok := chunk["choices"].([]interface{}); ok && len(choices) > 0 {
				if choice, ok := choices[0].(map[string]interface{}); ok {
					if delta, ok := choice["delta"].(map[string]interface{}); ok {
						if content, ok := delta["content"].(string); ok && content != "" {
							stream <- StreamChunk{Data: content, Done: false}
						}
					}
				}
			}
		}
	}

	if err := scanner.Err(); err != nil {
		stream <- StreamChunk{Error: err}
		return err
	}

	return nil
}

// ValidateConfig validates deployment configuration
func (d *DeepSeekProvider) ValidateConfig(deployment *models.Deployment) error {
	if deployment.Endpoint.BaseURL == "" {
		return fmt.Errorf("base URL is required")
	}
	if deployment.ProviderModelID == "" {
		return fmt.Errorf("provider model ID is required")
	}
	return nil
}

// HealthCheck performs a health check
func (d *DeepSeekProvider) HealthCheck(ctx context.Context, deployment *models.Deployment) error {
	req := &UnifiedRequest{
		Model: deployment.ProviderModelID,
		Messages: []Message{
			{Role: "user", Content: "Hi"},
		},
		MaxTokens:   10,
		Temperature: 0,
	}

	providerReq, err := d.TranslateRequest(ctx, req, deployment)
	if err != nil {
		return fmt.Errorf("health check translation failed: %w", err)
	}

	healthCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	resp, err := d.Execute(healthCtx, providerReq)
	if err != nil {
		return fmt.Errorf("health check request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// GetInfo returns provider information
func (d *DeepSeekProvider) GetInfo() ProviderInfo {
	return ProviderInfo{
		Name:           "DeepSeek",
		Version:        "1.0",
		SupportsStream: true,
		RequiresAuth:   true,
		MaxRequestSize: 4 * 1024 * 1024, // 4MB
		RateLimits: map[string]int{
			"requests_per_minute": 60,
			"tokens_per_minute":   100000,
		},
	}
}

// renderAttachmentAsText turns an attachment into message text for
// providers without multimodal input.
func renderAttachmentAsText(att *models.Attachment) string {
	decoded, err := base64.StdEncoding.DecodeString(att.Data)
	if err == nil && isTextMIME(att.MIMEType) {
		return fmt.Sprintf("--- attached file: %s ---\n%s\n--- end of file ---", att.Name, string(decoded))
	}
	return fmt.Sprintf("[attached file: %s (%s), content not inlined]", att.Name, att.MIMEType)
}

func isTextMIME(mime string) bool {
	if strings.HasPrefix(mime, "text/") {
		return true
	}
	switch mime {
	case "application/json", "application/javascript", "application/xml",
		"application/x-yaml", "application/x-sh":
		return true
	}
	return false
}

// apiStatusError builds an error from a non-200 provider response. The
// provider's own message is surfaced when the body carries one.
func apiStatusError(resp *ProviderResponse) error {
	var apiErr struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	if err := json.Unmarshal(resp.Body, &apiErr); err == nil && apiErr.Error.Message != "" {
		return fmt.Errorf("API error (status %d): %s", resp.StatusCode, apiErr.Error.Message)
	}
	return fmt.Errorf("API error (status %d)", resp.StatusCode)
}
