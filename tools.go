package main

import (
	"log"
	"os"
	"strings"
)

// ToolPreset prefixes a user input with a task-specific directive.
type ToolPreset struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	Prefix string `json:"-"`
}

var toolPresets []ToolPreset

func init() {
	// Each preset can be disabled via ENABLE_TOOL_<NAME>=false
	all := []ToolPreset{
		{ID: "debug", Label: "Debug", Prefix: "Debug the following code. Find the bug, explain it, and show the corrected version:\n\n"},
		{ID: "optimize", Label: "Optimize", Prefix: "Optimize the following code for performance and readability. Explain each change:\n\n"},
		{ID: "explain", Label: "Explain", Prefix: "Explain what the following code does, step by step:\n\n"},
		{ID: "test", Label: "Write Tests", Prefix: "Write thorough unit tests for the following code, covering edge cases:\n\n"},
		{ID: "convert", Label: "Convert", Prefix: "Convert the following code to the requested target language, keeping behavior identical:\n\n"},
	}

	for _, preset := range all {
		envKey := "ENABLE_TOOL_" + strings.ToUpper(preset.ID)
		if os.Getenv(envKey) == "false" {
			log.Printf("[Tools] Preset %s disabled via %s", preset.ID, envKey)
			continue
		}
		toolPresets = append(toolPresets, preset)
	}
}

// applyToolPreset prepends the preset's directive to the user text.
// Unknown or empty preset ids leave the text unchanged.
func applyToolPreset(presetID, userText string) string {
	if presetID == "" {
		return userText
	}
	for _, preset := range toolPresets {
		if preset.ID == presetID {
			return preset.Prefix + userText
		}
	}
	return userText
}
