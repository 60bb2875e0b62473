// Package rotation balances request load across multiple stored API keys for
// one provider. The active key for the next request is the one with the
// lowest cumulative token counter; after each completed exchange the used
// key's counter grows by the exchange's total tokens and the list is
// persisted back to the credential store.
package rotation

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/relayai/relay/secrets"
)

// APIKeyEntry is one stored key with its usage counter. Entries live as a
// small ordered list per provider inside the credential store; order is
// significant because it breaks counter ties.
type APIKeyEntry struct {
	ID         string `json:"id"`
	Label      string `json:"label"`
	Secret     string `json:"secret"`
	TokensUsed int64  `json:"tokens_used"`
	Active     bool   `json:"active"`
}

// Policy selects and charges rotation keys. It layers read-modify-write
// sequences over the credential store, which is assumed to serialize its own
// operations; Policy adds no locking of its own.
type Policy struct {
	store secrets.Store
}

// NewPolicy returns a Policy over the given store.
func NewPolicy(store secrets.Store) *Policy {
	return &Policy{store: store}
}

// Keys returns the stored rotation entries for a provider, in stored order.
// A provider with no entry list has zero keys, which is not an error.
func (p *Policy) Keys(providerID string) ([]APIKeyEntry, error) {
	raw, ok := p.store.Read(secrets.RotationKeysKey(providerID))
	if !ok || raw == "" {
		return nil, nil
	}

	var entries []APIKeyEntry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, fmt.Errorf("parsing rotation keys for provider %s: %w", providerID, err)
	}
	return entries, nil
}

// SaveKeys persists the entry list, assigning ids to entries that lack one.
func (p *Policy) SaveKeys(providerID string, entries []APIKeyEntry) error {
	for i := range entries {
		if entries[i].ID == "" {
			entries[i].ID = uuid.New().String()
		}
	}

	encoded, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encoding rotation keys: %w", err)
	}
	return p.store.Save(secrets.RotationKeysKey(providerID), string(encoded))
}

// Select returns the active entry with the lowest cumulative token counter,
// ties broken by stored order. ok is false when the provider has no active
// keys, in which case callers fall back to the single stored API key.
func (p *Policy) Select(providerID string) (entry APIKeyEntry, ok bool, err error) {
	entries, err := p.Keys(providerID)
	if err != nil {
		return APIKeyEntry{}, false, err
	}

	best := -1
	for i, candidate := range entries {
		if !candidate.Active {
			continue
		}
		if best == -1 || candidate.TokensUsed < entries[best].TokensUsed {
			best = i
		}
	}
	if best == -1 {
		return APIKeyEntry{}, false, nil
	}
	return entries[best], true, nil
}

// RecordUsage adds tokens to the given key's counter and persists the list.
// The registry's RecordExchange wraps this and invalidates the provider's
// cached adapter so the next request re-selects.
func (p *Policy) RecordUsage(providerID, keyID string, tokens int64) error {
	if tokens <= 0 {
		return nil
	}

	entries, err := p.Keys(providerID)
	if err != nil {
		return err
	}

	for i := range entries {
		if entries[i].ID == keyID {
			entries[i].TokensUsed += tokens
			return p.SaveKeys(providerID, entries)
		}
	}
	return fmt.Errorf("rotation key %s not found for provider %s", keyID, providerID)
}
