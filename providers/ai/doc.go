// Package ai defines the provider-agnostic chat model shared by every backend
// adapter: request and message types, the incremental StreamEvent model with
// its ChatStream iterator, the Adapter capability contract, immutable provider
// snapshots, and the error taxonomy used across the module.
//
// Concrete backend families live in the subpackages anthropic, openaicompat,
// ollama and custom. Callers normally obtain adapters through core/registry
// rather than constructing them directly.
package ai
