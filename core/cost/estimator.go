package cost

import (
	"log/slog"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/relayai/relay/providers/ai"
)

// Estimator approximates token counts for exchanges where the backend never
// reported usage (some compatible proxies strip the usage chunk). Counts come
// from the cl100k_base encoding, which is close enough across the model
// families in scope for accounting purposes; when the encoding cannot be
// loaded the estimator degrades to the classic bytes/4 heuristic instead of
// failing the exchange.
type Estimator struct {
	once     sync.Once
	encoding *tiktoken.Tiktoken
}

// NewEstimator returns an Estimator. The encoding is loaded lazily on first use.
func NewEstimator() *Estimator {
	return &Estimator{}
}

func (e *Estimator) load() {
	encoding, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		slog.Warn("tiktoken encoding unavailable, falling back to byte heuristic", "error", err.Error())
		return
	}
	e.encoding = encoding
}

// EstimateText returns the approximate token count of one text.
func (e *Estimator) EstimateText(text string) int {
	if text == "" {
		return 0
	}
	e.once.Do(e.load)
	if e.encoding == nil {
		return (len(text) + 3) / 4
	}
	return len(e.encoding.Encode(text, nil, nil))
}

// EstimateMessages approximates the prompt size of a message history,
// including a small per-message framing overhead.
func (e *Estimator) EstimateMessages(systemPrompt string, messages []ai.ChatMessage) int {
	const perMessageOverhead = 4

	total := e.EstimateText(systemPrompt)
	for _, message := range messages {
		total += e.EstimateText(message.Content) + perMessageOverhead
	}
	return total
}
