package cost

import (
	"time"

	"github.com/google/uuid"
)

// UsageRecord is the append-only accounting entry for one completed exchange.
// This module creates records; persisting them is the caller's job.
type UsageRecord struct {
	ID             string    `json:"id"`
	ProviderID     string    `json:"provider_id"`
	ModelID        string    `json:"model_id"`
	ConversationID string    `json:"conversation_id,omitempty"`
	MessageID      string    `json:"message_id,omitempty"`
	InputTokens    int       `json:"input_tokens"`
	OutputTokens   int       `json:"output_tokens"`
	Cost           float64   `json:"cost"`
	Timestamp      time.Time `json:"timestamp"`
}

// NewUsageRecord builds a record with a fresh id and timestamp. Negative
// inputs are clamped so a record can never carry a negative cost or count.
func NewUsageRecord(providerID, modelID, conversationID, messageID string, inputTokens, outputTokens int, cost float64) UsageRecord {
	if inputTokens < 0 {
		inputTokens = 0
	}
	if outputTokens < 0 {
		outputTokens = 0
	}
	if cost < 0 {
		cost = 0
	}

	return UsageRecord{
		ID:             uuid.New().String(),
		ProviderID:     providerID,
		ModelID:        modelID,
		ConversationID: conversationID,
		MessageID:      messageID,
		InputTokens:    inputTokens,
		OutputTokens:   outputTokens,
		Cost:           cost,
		Timestamp:      time.Now().UTC(),
	}
}
