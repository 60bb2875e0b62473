// Package registry owns the set of configured providers: configuration CRUD
// with default-provider selection, secret resolution through the credential
// store, and the factory that turns configuration plus credentials into live,
// cached backend adapters. All mutation goes through the Manager, which is
// the module's single-writer coordination point.
package registry

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/relayai/relay/providers/ai"
)

// OAuthMetadata is the non-secret part of a provider's OAuth setup. Tokens
// live in the credential store; the interactive flow lives outside this
// module entirely.
type OAuthMetadata struct {
	ClientID string   `json:"client_id,omitempty" yaml:"client_id,omitempty"`
	AuthURL  string   `json:"auth_url,omitempty" yaml:"auth_url,omitempty"`
	TokenURL string   `json:"token_url,omitempty" yaml:"token_url,omitempty"`
	Scopes   []string `json:"scopes,omitempty" yaml:"scopes,omitempty"`
}

// ProviderConfiguration is the mutable description of one configured backend.
// It is owned by the Manager; adapters only ever see immutable [ai.Snapshot]
// copies taken at construction time.
type ProviderConfiguration struct {
	ID          string        `json:"id" yaml:"id"`
	DisplayName string        `json:"display_name" yaml:"display_name"`
	Family      ai.Family     `json:"family" yaml:"family"`
	Enabled     bool          `json:"enabled" yaml:"enabled"`
	Default     bool          `json:"default" yaml:"default"`
	SortOrder   int           `json:"sort_order" yaml:"sort_order"`
	BaseURL     string        `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	AuthMethod  ai.AuthMethod `json:"auth_method" yaml:"auth_method"`

	// Headers are extra request headers; keys are unique, order irrelevant.
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`

	OAuth *OAuthMetadata `json:"oauth,omitempty" yaml:"oauth,omitempty"`

	Models         []ai.ModelDescriptor `json:"models,omitempty" yaml:"models,omitempty"`
	DefaultModelID string               `json:"default_model_id,omitempty" yaml:"default_model_id,omitempty"`

	// SubscriptionBilling forces the cost of every exchange on this provider
	// to zero; the flag lives here, not on individual models.
	SubscriptionBilling bool `json:"subscription_billing,omitempty" yaml:"subscription_billing,omitempty"`

	// RotationEnabled turns on least-used key selection across the rotation
	// key list stored in the credential store.
	RotationEnabled bool `json:"rotation_enabled,omitempty" yaml:"rotation_enabled,omitempty"`

	// Custom describes the wire protocol for FamilyCustom providers.
	Custom *ai.CustomSpec `json:"custom,omitempty" yaml:"custom,omitempty"`

	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

// clone returns a deep copy so callers can hold configuration values without
// aliasing Manager-owned state.
func (c *ProviderConfiguration) clone() *ProviderConfiguration {
	cloned := *c

	if c.Headers != nil {
		cloned.Headers = make(map[string]string, len(c.Headers))
		for key, value := range c.Headers {
			cloned.Headers[key] = value
		}
	}
	if c.Models != nil {
		cloned.Models = make([]ai.ModelDescriptor, len(c.Models))
		copy(cloned.Models, c.Models)
	}
	if c.OAuth != nil {
		oauth := *c.OAuth
		oauth.Scopes = append([]string(nil), c.OAuth.Scopes...)
		cloned.OAuth = &oauth
	}
	if c.Custom != nil {
		custom := *c.Custom
		cloned.Custom = &custom
	}

	return &cloned
}

// configFile is the on-disk YAML document shape.
type configFile struct {
	Providers []*ProviderConfiguration `yaml:"providers"`
}

// LoadFile reads a provider configuration list from a YAML file.
func LoadFile(path string) ([]*ProviderConfiguration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading provider config: %w", err)
	}

	var file configFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing provider config %s: %w", path, err)
	}
	return file.Providers, nil
}

// SaveFile writes a provider configuration list as YAML.
func SaveFile(path string, providers []*ProviderConfiguration) error {
	data, err := yaml.Marshal(configFile{Providers: providers})
	if err != nil {
		return fmt.Errorf("encoding provider config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing provider config: %w", err)
	}
	return nil
}
