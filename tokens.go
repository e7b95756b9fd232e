package main

import (
	"log"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

var (
	tokenEncoder     *tiktoken.Tiktoken
	tokenEncoderOnce sync.Once
)

// countTokens estimates the token count of text for the given model.
// DeepSeek and Gemini don't publish tokenizers for local use, so
// cl100k_base is close enough for audit and budget purposes.
func countTokens(text, model string) int {
	if text == "" {
		return 0
	}

	tokenEncoderOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			log.Printf("[Tokens] Failed to load encoding: %v", err)
			return
		}
		tokenEncoder = enc
	})

	if tokenEncoder == nil {
		// Rough fallback: ~4 chars per token
		return len(text) / 4
	}

	return len(tokenEncoder.Encode(text, nil, nil))
}
