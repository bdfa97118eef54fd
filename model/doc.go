// Package model contains provider-agnostic helpers around core.Model.
//
// Providers (OpenAI, Anthropic) live in sub-packages and translate
// core.CompletionRequest into their SDK's request shape and the reply back into
// core.AgentOutput, so agents stay decoupled from vendor SDKs. MockModel
// provides deterministic completions for tests.
package model
