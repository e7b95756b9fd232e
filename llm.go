package main

import (
	"context"
	"fmt"
	"log"

	"tricoder.app/providers"
	"tricoder.app/routing"
)

// LLMResponse contains the response and metadata from an LLM call
type LLMResponse struct {
	Content      string
	Model        string
	Deployment   string
	Provider     string
	InputTokens  int
	OutputTokens int
	InputHash    string
	OutputHash   string
	FinishReason string
}

// callModel routes a chat completion through the router and records the
// interaction in the audit log. reqCtx ties the call back to the session,
// turn, and persona that triggered it.
func callModel(ctx context.Context, req *providers.UnifiedRequest, reqCtx *routing.RequestContext) (*LLMResponse, error) {
	decision, err := llmRouter.RouteRequest(ctx, req.Model, reqCtx)
	if err != nil {
		return nil, fmt.Errorf("routing failed for model %s: %w", req.Model, err)
	}

	if debugMode {
		log.Printf("[LLM] Routing %s -> deployment %s (persona=%s purpose=%s)",
			req.Model, decision.Primary.ID, reqCtx.Persona, reqCtx.Purpose)
	}

	resp, err := llmRouter.ExecuteRequest(ctx, req, decision)

	fullInput := ""
	for _, m := range req.Messages {
		fullInput += m.Role + ": " + m.Content + "\n"
	}

	if err != nil {
		LogLLMInteraction(reqCtx.SessionID, req.Model, decision.Primary.ID,
			string(decision.Primary.Provider), req.Messages, "", countTokens(fullInput, req.Model), 0, err)
		return nil, err
	}

	if len(resp.Choices) == 0 {
		err := fmt.Errorf("model %s returned no choices", req.Model)
		LogLLMInteraction(reqCtx.SessionID, req.Model, decision.Primary.ID,
			string(decision.Primary.Provider), req.Messages, "", countTokens(fullInput, req.Model), 0, err)
		return nil, err
	}

	content := resp.Choices[0].Message.Content

	result := &LLMResponse{
		Content:      content,
		Model:        resp.Model,
		Deployment:   decision.Primary.ID,
		Provider:     string(decision.Primary.Provider),
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		InputHash:    generateSignature(fullInput),
		OutputHash:   generateSignature(content),
		FinishReason: resp.Choices[0].FinishReason,
	}

	// Providers don't always report usage; fall back to local counting
	if result.InputTokens == 0 {
		result.InputTokens = countTokens(fullInput, req.Model)
	}
	if result.OutputTokens == 0 {
		result.OutputTokens = countTokens(content, req.Model)
	}

	LogLLMInteraction(reqCtx.SessionID, req.Model, result.Deployment, result.Provider,
		req.Messages, content, result.InputTokens, result.OutputTokens, nil)

	return result, nil
}
