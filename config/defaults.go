package config

import "tricoder.app/models"

// DefaultConfig returns the configuration used when no YAML files are
// present in the config directory: three coding personas on DeepSeek and
// Gemini, plus a fourth model reserved for judging and consensus.
func DefaultConfig() *Config {
	return &Config{
		Personas: []PersonaConfig{
			{
				ID:   "logic-master",
				Name: "Logic Master",
				Instruction: "You are Logic Master, a rigorous software engineer. " +
					"Reason about the problem step by step before answering. State your " +
					"assumptions, analyze edge cases and complexity, and justify every " +
					"decision. Prefer correctness over brevity.",
				ModelID:     "deepseek-chat",
				Temperature: 0.7,
				MaxTokens:   4000,
			},
			{
				ID:   "code-ninja",
				Name: "Code Ninja",
				Instruction: "You are Code Ninja, a pragmatic senior developer. " +
					"Answer with clean, production-ready code and the minimum prose " +
					"needed to use it. No filler, no restating the question.",
				ModelID:     "gemini-flash",
				Temperature: 0.4,
				MaxTokens:   4000,
			},
			{
				ID:   "code-mentor",
				Name: "Code Mentor",
				Instruction: "You are Code Mentor, a patient teacher. Explain the " +
					"solution so a junior developer could maintain it: why the approach " +
					"works, what the pitfalls are, and how to verify it. Include code " +
					"with explanatory comments.",
				ModelID:     "gemini-pro",
				Temperature: 0.8,
				MaxTokens:   4000,
			},
		},
		Models: map[string]ModelConfig{
			"deepseek-chat": {
				Name:    "DeepSeek Chat",
				Family:  "deepseek",
				Version: "v3",
				Capabilities: models.ModelCapabilities{
					MaxTokens:         8192,
					ContextWindow:     65536,
					SupportsStreaming: true,
					SupportsJSON:      true,
					TokenizerType:     "cl100k_base",
				},
				Deployments: []string{"deepseek-chat-primary"},
			},
			"deepseek-reasoner": {
				Name:    "DeepSeek Reasoner",
				Family:  "deepseek",
				Version: "r1",
				Capabilities: models.ModelCapabilities{
					MaxTokens:         8192,
					ContextWindow:     65536,
					SupportsStreaming: true,
					SupportsJSON:      true,
					TokenizerType:     "cl100k_base",
				},
				Deployments: []string{"deepseek-reasoner-primary"},
			},
			"gemini-flash": {
				Name:    "Gemini 2.5 Flash",
				Family:  "gemini",
				Version: "2.5",
				Capabilities: models.ModelCapabilities{
					MaxTokens:         8192,
					ContextWindow:     1048576,
					SupportsVision:    true,
					SupportsStreaming: true,
					SupportsJSON:      true,
					TokenizerType:     "cl100k_base",
				},
				Deployments: []string{"gemini-flash-primary"},
			},
			"gemini-pro": {
				Name:    "Gemini 2.5 Pro",
				Family:  "gemini",
				Version: "2.5",
				Capabilities: models.ModelCapabilities{
					MaxTokens:         8192,
					ContextWindow:     1048576,
					SupportsVision:    true,
					SupportsStreaming: true,
					SupportsJSON:      true,
					TokenizerType:     "cl100k_base",
				},
				Deployments: []string{"gemini-pro-primary"},
			},
		},
		Deployments: map[string]DeploymentConfig{
			"deepseek-chat-primary": {
				ModelID:         "deepseek-chat",
				Provider:        "deepseek",
				ProviderModelID: "deepseek-chat",
				Priority:        1,
				Weight:          100,
				Endpoint: EndpointConfig{
					BaseURL:    "https://api.deepseek.com/v1",
					Timeout:    "120s",
					MaxRetries: 2,
					Auth: AuthConfig{
						Type:    "api_key",
						KeyName: "deepseek_api_key",
					},
				},
			},
			"deepseek-reasoner-primary": {
				ModelID:         "deepseek-reasoner",
				Provider:        "deepseek",
				ProviderModelID: "deepseek-reasoner",
				Priority:        1,
				Weight:          100,
				Endpoint: EndpointConfig{
					BaseURL:    "https://api.deepseek.com/v1",
					Timeout:    "180s",
					MaxRetries: 2,
					Auth: AuthConfig{
						Type:    "api_key",
						KeyName: "deepseek_api_key",
					},
				},
			},
			"gemini-flash-primary": {
				ModelID:         "gemini-flash",
				Provider:        "gemini",
				ProviderModelID: "gemini-2.5-flash",
				Priority:        1,
				Weight:          100,
				Endpoint: EndpointConfig{
					BaseURL:    "https://generativelanguage.googleapis.com",
					Timeout:    "120s",
					MaxRetries: 2,
					APIVersion: "v1beta",
					Auth: AuthConfig{
						Type:    "api_key",
						KeyName: "gemini_api_key",
					},
				},
			},
			"gemini-pro-primary": {
				ModelID:         "gemini-pro",
				Provider:        "gemini",
				ProviderModelID: "gemini-2.5-pro",
				Priority:        1,
				Weight:          100,
				Endpoint: EndpointConfig{
					BaseURL:    "https://generativelanguage.googleapis.com",
					Timeout:    "120s",
					MaxRetries: 2,
					APIVersion: "v1beta",
					Auth: AuthConfig{
						Type:    "api_key",
						KeyName: "gemini_api_key",
					},
				},
			},
		},
		Coordinator: CoordinatorConfig{
			Strategy:       "priority",
			JudgeModel:     "deepseek-reasoner",
			ConsensusModel: "deepseek-reasoner",
			HealthCheck: HealthCheckConfig{
				Enabled:  false,
				Interval: "60s",
				Timeout:  "5s",
			},
		},
	}
}
