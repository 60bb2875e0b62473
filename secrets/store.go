// Package secrets defines the narrow interface this module consumes from the
// external secure credential store, the key namespace used to address it, and
// two concrete stores: an in-memory one for tests and a file-backed one for
// the CLI. The real secure vault (OS keychain, secret service) lives outside
// this module and is assumed to serialize its own operations.
package secrets

import "fmt"

// keyPrefix namespaces every key this module writes into the shared store.
const keyPrefix = "relay.provider"

// Store is the credential-store contract. Read reports presence explicitly so
// an empty secret is distinguishable from a missing one.
type Store interface {
	Save(key, value string) error
	Read(key string) (string, bool)
	Delete(key string) error
	Exists(key string) bool
}

// APIKeyKey returns the store key for a provider's API key.
func APIKeyKey(providerID string) string {
	return fmt.Sprintf("%s.%s.apikey", keyPrefix, providerID)
}

// OAuthAccessKey returns the store key for a provider's OAuth access token.
func OAuthAccessKey(providerID string) string {
	return fmt.Sprintf("%s.%s.oauth.access", keyPrefix, providerID)
}

// OAuthRefreshKey returns the store key for a provider's OAuth refresh token.
func OAuthRefreshKey(providerID string) string {
	return fmt.Sprintf("%s.%s.oauth.refresh", keyPrefix, providerID)
}

// OAuthExpiryKey returns the store key for a provider's OAuth token expiry.
func OAuthExpiryKey(providerID string) string {
	return fmt.Sprintf("%s.%s.oauth.expiry", keyPrefix, providerID)
}

// RotationKeysKey returns the store key for a provider's rotation key list.
func RotationKeysKey(providerID string) string {
	return fmt.Sprintf("%s.%s.keys", keyPrefix, providerID)
}

// ProviderKeys lists every key this module may have written for a provider,
// for bulk deletion when the provider is removed.
func ProviderKeys(providerID string) []string {
	return []string{
		APIKeyKey(providerID),
		OAuthAccessKey(providerID),
		OAuthRefreshKey(providerID),
		OAuthExpiryKey(providerID),
		RotationKeysKey(providerID),
	}
}
