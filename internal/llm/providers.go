// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package llm

import "fmt"

// Provider IDs. Groq and Ollama are reached through their OpenAI-compatible endpoints.
const (
	ProviderOpenAI = "openai"
	ProviderGroq   = "groq"
	ProviderOllama = "ollama"
	ProviderStatic = "static"
)

// ProviderInfo contains connection defaults and pricing for a provider.
type ProviderInfo struct {
	ID          string
	Name        string
	BaseURL     string
	NeedsAPIKey bool
	Models      []ModelInfo
}

// ModelInfo describes an available model.
type ModelInfo struct {
	ID          string
	InputCost   float64 // USD per 1M input tokens
	OutputCost  float64 // USD per 1M output tokens
	ContextSize int
}

// AllProviders returns metadata for all supported providers.
func AllProviders() []ProviderInfo {
	return []ProviderInfo{
		{
			ID:          ProviderOpenAI,
			Name:        "OpenAI",
			BaseURL:     "https://api.openai.com/v1/",
			NeedsAPIKey: true,
			Models: []ModelInfo{
				{ID: "gpt-4o", InputCost: 2.50, OutputCost: 10.00, ContextSize: 128000},
				{ID: "gpt-4o-mini", InputCost: 0.15, OutputCost: 0.60, ContextSize: 128000},
				{ID: "gpt-4.1", InputCost: 2.00, OutputCost: 8.00, ContextSize: 1047576},
				{ID: "gpt-4.1-mini", InputCost: 0.40, OutputCost: 1.60, ContextSize: 1047576},
				{ID: "gpt-4.1-nano", InputCost: 0.10, OutputCost: 0.40, ContextSize: 1047576},
			},
		},
		{
			ID:          ProviderGroq,
			Name:        "Groq",
			BaseURL:     "https://api.groq.com/openai/v1/",
			NeedsAPIKey: true,
			Models: []ModelInfo{
				{ID: "llama-3.3-70b-versatile", InputCost: 0.59, OutputCost: 0.79, ContextSize: 128000},
				{ID: "llama-3.1-8b-instant", InputCost: 0.05, OutputCost: 0.08, ContextSize: 131072},
			},
		},
		{
			ID:          ProviderOllama,
			Name:        "Ollama",
			BaseURL:     "http://localhost:11434/v1/",
			NeedsAPIKey: false,
			Models: []ModelInfo{
				{ID: "llama3.3", ContextSize: 128000},
				{ID: "qwen2.5", ContextSize: 128000},
				{ID: "mistral", ContextSize: 32768},
			},
		},
	}
}

// GetProviderInfo returns provider metadata by ID.
func GetProviderInfo(providerID string) (*ProviderInfo, error) {
	for _, p := range AllProviders() {
		if p.ID == providerID {
			return &p, nil
		}
	}
	return nil, fmt.Errorf("unknown provider: %s", providerID)
}

// CalculateCost estimates the USD cost of a call. Unknown models cost 0.
func CalculateCost(providerID, modelID string, promptTokens, completionTokens int64) float64 {
	p, err := GetProviderInfo(providerID)
	if err != nil {
		return 0
	}
	for _, m := range p.Models {
		if m.ID == modelID {
			return float64(promptTokens)/1_000_000*m.InputCost +
				float64(completionTokens)/1_000_000*m.OutputCost
		}
	}
	return 0
}
