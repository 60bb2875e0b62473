// Package utils contains small shared helpers for HTTP JSON calls, streaming
// request setup, string formatting and pointer construction. It is internal
// plumbing for the provider adapters and carries no domain knowledge.
package utils
