package providers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"tricoder.app/models"
)

// GeminiProvider handles Google's Gemini generateContent API.
type GeminiProvider struct {
	client *http.Client
}

// NewGeminiProvider creates a new Gemini provider
func NewGeminiProvider() *GeminiProvider {
	return &GeminiProvider{
		client: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

// geminiPart is one part of a Gemini content block
type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inline_data,omitempty"`
}

type geminiInlineData struct {
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// TranslateRequest converts unified request to Gemini format
func (g *GeminiProvider) TranslateRequest(ctx context.Context, req *UnifiedRequest, deployment *models.Deployment) (*ProviderRequest, error) {
	var systemParts []geminiPart
	var contents []geminiContent

	// System messages map to system_instruction; "assistant" becomes
	// Gemini's "model" role.
	for _, msg := range req.Messages {
		switch msg.Role {
		case "system":
			systemParts = append(systemParts, geminiPart{Text: msg.Content})
		case "assistant":
			contents = append(contents, geminiContent{Role: "model", Parts: []geminiPart{{Text: msg.Content}}})
		default:
			contents = append(contents, geminiContent{Role: "user", Parts: []geminiPart{{Text: msg.Content}}})
		}
	}

	if len(contents) == 0 {
		return nil, fmt.Errorf("no user content to send")
	}

	// Attachment rides as inline_data on the last user content block.
	if req.Attachment != nil {
		last := &contents[len(contents)-1]
		last.Parts = append(last.Parts, geminiPart{
			InlineData: &geminiInlineData{
				MIMEType: req.Attachment.MIMEType,
				Data:     req.Attachment.Data,
			},
		})
	}

	generationConfig := map[string]interface{}{}
	if req.Temperature > 0 {
		generationConfig["temperature"] = req.Temperature
	}
	if req.MaxTokens > 0 {
		generationConfig["maxOutputTokens"] = req.MaxTokens
	}
	if req.TopP > 0 {
		generationConfig["topP"] = req.TopP
	}
	if req.ResponseFormat != nil && req.ResponseFormat.Type == "json_object" {
		generationConfig["responseMimeType"] = "application/json"
	}

	body := map[string]interface{}{
		"contents": contents,
	}
	if len(systemParts) > 0 {
		body["system_instruction"] = geminiContent{Parts: systemParts}
	}
	if len(generationConfig) > 0 {
		body["generationConfig"] = generationConfig
	}

	baseURL := deployment.Endpoint.BaseURL
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com"
	}
	apiVersion := deployment.Endpoint.APIVersion
	if apiVersion == "" {
		apiVersion = "v1beta"
	}

	action := "generateContent"
	if req.Stream {
		action = "streamGenerateContent?alt=sse"
	}
	url := fmt.Sprintf("%s/%s/models/%s:%s",
		strings.TrimSuffix(baseURL, "/"), apiVersion, deployment.ProviderModelID, action)

	headers := map[string]string{
		"Content-Type": "application/json",
	}
	if deployment.Endpoint.Auth.Type == models.AuthAPIKey && deployment.Endpoint.Auth.APIKey != "" {
		headers["x-goog-api-key"] = deployment.Endpoint.Auth.APIKey
	}
	for k, v := range deployment.Endpoint.CustomHeaders {
		headers[k] = v
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
func (g *GeminiProvider) Execute(ctx context.Context, req *ProviderRequest) (*ProviderResponse, error) {
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

	resp, err := g.client.Do(httpReq)
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

// TranslateResponse converts Gemini response to unified format
func (g *GeminiProvider) TranslateResponse(ctx context.Context, resp *ProviderResponse, deployment *models.Deployment) (*UnifiedResponse, error) {
	var gr geminiResponse
	if err := json.Unmarshal(resp.Body, &gr); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if gr.Error != nil {
		return nil, fmt.Errorf("API error (status %d): %s", gr.Error.Code, gr.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d)", resp.StatusCode)
	}
	if len(gr.Candidates) == 0 {
		return nil, fmt.Errorf("response contained no candidates")
	}

	var text strings.Builder
	for _, part := range gr.Candidates[0].Content.Parts {
		text.WriteString(part.Text)
	}

	unifiedResp := &UnifiedResponse{
		ID:      fmt.Sprintf("gemini-%d", time.Now().UnixNano()),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   deployment.ProviderModelID,
		Choices: []Choice{{
			Index: 0,
			Message: Message{
				Role:    "assistant",
				Content: text.String(),
			},
			FinishReason: strings.ToLower(gr.Candidates[0].FinishReason),
		}},
		Usage: Usage{
			PromptTokens:     gr.UsageMetadata.PromptTokenCount,
			CompletionTokens: gr.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      gr.UsageMetadata.TotalTokenCount,
		},
		Metadata: map[string]interface{}{
			"deployment_id":  deployment.ID,
			"provider":       string(deployment.Provider),
			"provider_model": deployment.ProviderModelID,
		},
	}

	return unifiedResp, nil
}

// Stream handles streaming responses (SSE via streamGenerateContent)
func (g *GeminiProvider) Stream(ctx context.Context, req *ProviderRequest, stream chan<- StreamChunk) error {
	defer close(stream)

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

	resp, err := g.client.Do(httpReq)
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
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")

		var gr geminiResponse
		if err := json.Unmarshal([]byte(data), &gr); err != nil {
			// Skip malformed JSON
			continue
		}
		if len(gr.Candidates) == 0 {
			continue
		}
		for _, part := range gr.Candidates[0].Content.Parts {
			if part.Text != "" {
				stream <- StreamChunk{Data: part.Text, Done: false}
			}
		}
	}

	if err := scanner.Err(); err != nil {
		stream <- StreamChunk{Error: err}
		return err
	}

	stream <- StreamChunk{Done: true}
	return nil
}

// ValidateConfig validates deployment configuration
func (g *GeminiProvider) ValidateConfig(deployment *models.Deployment) error {
	if deployment.ProviderModelID == "" {
		return fmt.Errorf("provider model ID is required")
	}
	if deployment.Endpoint.Auth.Type == models.AuthAPIKey && deployment.Endpoint.Auth.KeyName == "" {
		return fmt.Errorf("credential key name is required for api_key auth")
	}
	return nil
}

// HealthCheck performs a health check
func (g *GeminiProvider) HealthCheck(ctx context.Context, deployment *models.Deployment) error {
	req := &UnifiedRequest{
		Model: deployment.ProviderModelID,
		Messages: []Message{
			{Role: "user", Content: "Hi"},
		},
		MaxTokens:   10,
		Temperature: 0,
	}

	providerReq, err := g.TranslateRequest(ctx, req, deployment)
	if err != nil {
		return fmt.Errorf("health check translation failed: %w", err)
	}

	healthCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	resp, err := g.Execute(healthCtx, providerReq)
	if err != nil {
		return fmt.Errorf("health check request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// GetInfo returns provider information
func (g *GeminiProvider) GetInfo() ProviderInfo {
	return ProviderInfo{
		Name:           "Gemini",
		Version:        "1.0",
		SupportsStream: true,
		RequiresAuth:   true,
		MaxRequestSize: 20 * 1024 * 1024, // inline_data allows larger payloads
		RateLimits: map[string]int{
			"requests_per_minute": 60,
			"tokens_per_minute":   250000,
		},
	}
}
