// Package vault provides single-tenant API credential storage for the two
// exchanges this bot trades on (Kraken and RevolutX), backed by HashiCorp
// Vault's KV v2 engine with an in-memory cache fallback when Vault is
// disabled (local/dev) or unreachable.
package vault

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"kraken-autotrade/config"

	"github.com/hashicorp/vault/api"
)

// APIKeyData holds one exchange's API credentials.
type APIKeyData struct {
	APIKey    string `json:"api_key"`
	SecretKey string `json:"secret_key"`
	Exchange  string `json:"exchange"`
	Sandbox   bool   `json:"sandbox"`
}

// Client wraps the HashiCorp Vault client.
type Client struct {
	client       *api.Client
	config       config.VaultConfig
	mu           sync.RWMutex
	cache        map[string]*APIKeyData // exchange_network -> APIKeyData
	cacheEnabled bool
}

// NewClient creates a new Vault client. If cfg.Enabled is false, the client
// operates purely out of the in-memory cache (local/dev mode).
func NewClient(cfg config.VaultConfig) (*Client, error) {
	if !cfg.Enabled {
		return &Client{
			config:       cfg,
			cache:        make(map[string]*APIKeyData),
			cacheEnabled: true,
		}, nil
	}

	vaultConfig := api.DefaultConfig()
	vaultConfig.Address = cfg.Address

	if cfg.TLSEnabled && cfg.CACert != "" {
		tlsConfig := &api.TLSConfig{CACert: cfg.CACert}
		if err := vaultConfig.ConfigureTLS(tlsConfig); err != nil {
			return nil, fmt.Errorf("failed to configure TLS: %w", err)
		}
	}

	client, err := api.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}

	client.SetToken(cfg.Token)

	return &Client{
		client:       client,
		config:       cfg,
		cache:        make(map[string]*APIKeyData),
		cacheEnabled: true,
	}, nil
}

// StoreAPIKey stores the API key for an exchange.
func (c *Client) StoreAPIKey(ctx context.Context, data APIKeyData) error {
	if !c.config.Enabled {
		c.mu.Lock()
		c.cache[c.cacheKey(data.Exchange, data.Sandbox)] = &data
		c.mu.Unlock()
		return nil
	}

	path := c.secretPath(data.Exchange, data.Sandbox)

	secretData := map[string]interface{}{
		"data": map[string]interface{}{
			"api_key":    data.APIKey,
			"secret_key": data.SecretKey,
			"exchange":   data.Exchange,
			"sandbox":    data.Sandbox,
		},
	}

	if _, err := c.client.Logical().WriteWithContext(ctx, path, secretData); err != nil {
		return fmt.Errorf("failed to store API key in vault: %w", err)
	}

	if c.cacheEnabled {
		c.mu.Lock()
		c.cache[c.cacheKey(data.Exchange, data.Sandbox)] = &data
		c.mu.Unlock()
	}

	return nil
}

// GetAPIKey retrieves the API key for an exchange.
func (c *Client) GetAPIKey(ctx context.Context, exchange string, sandbox bool) (*APIKeyData, error) {
	if c.cacheEnabled {
		c.mu.RLock()
		if cached, ok := c.cache[c.cacheKey(exchange, sandbox)]; ok {
			c.mu.RUnlock()
			return cached, nil
		}
		c.mu.RUnlock()
	}

	if !c.config.Enabled {
		return nil, fmt.Errorf("API key not found and vault is disabled")
	}

	path := c.secretPath(exchange, sandbox)

	secret, err := c.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read API key from vault: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("API key not found for %s", exchange)
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("invalid secret format")
	}

	apiKeyData := &APIKeyData{
		APIKey:    getString(data, "api_key"),
		SecretKey: getString(data, "secret_key"),
		Exchange:  getString(data, "exchange"),
		Sandbox:   getBool(data, "sandbox"),
	}

	if c.cacheEnabled {
		c.mu.Lock()
		c.cache[c.cacheKey(exchange, sandbox)] = apiKeyData
		c.mu.Unlock()
	}

	return apiKeyData, nil
}

// DeleteAPIKey deletes the API key for an exchange.
func (c *Client) DeleteAPIKey(ctx context.Context, exchange string, sandbox bool) error {
	c.mu.Lock()
	delete(c.cache, c.cacheKey(exchange, sandbox))
	c.mu.Unlock()

	if !c.config.Enabled {
		return nil
	}

	path := c.metadataPath(exchange, sandbox)
	if _, err := c.client.Logical().DeleteWithContext(ctx, path); err != nil {
		return fmt.Errorf("failed to delete API key from vault: %w", err)
	}

	return nil
}

// RotateAPIKey replaces the stored API key for an exchange.
func (c *Client) RotateAPIKey(ctx context.Context, newData APIKeyData) error {
	return c.StoreAPIKey(ctx, newData)
}

// ClearCache clears the in-memory cache.
func (c *Client) ClearCache() {
	c.mu.Lock()
	c.cache = make(map[string]*APIKeyData)
	c.mu.Unlock()
}

// SetCacheEnabled enables or disables caching.
func (c *Client) SetCacheEnabled(enabled bool) {
	c.mu.Lock()
	c.cacheEnabled = enabled
	c.mu.Unlock()
}

// IsEnabled returns whether Vault is enabled.
func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

// Health checks the Vault connection.
func (c *Client) Health(ctx context.Context) error {
	if !c.config.Enabled {
		return nil
	}

	health, err := c.client.Sys().Health()
	if err != nil {
		return fmt.Errorf("vault health check failed: %w", err)
	}
	if health.Sealed {
		return fmt.Errorf("vault is sealed")
	}

	return nil
}

func (c *Client) secretPath(exchange string, sandbox bool) string {
	return fmt.Sprintf("%s/data/%s/%s", c.config.MountPath, c.config.SecretPath, networkSuffix(exchange, sandbox))
}

func (c *Client) metadataPath(exchange string, sandbox bool) string {
	return fmt.Sprintf("%s/metadata/%s/%s", c.config.MountPath, c.config.SecretPath, networkSuffix(exchange, sandbox))
}

func (c *Client) cacheKey(exchange string, sandbox bool) string {
	return networkSuffix(exchange, sandbox)
}

func networkSuffix(exchange string, sandbox bool) string {
	network := "live"
	if sandbox {
		network = "sandbox"
	}
	return fmt.Sprintf("%s_%s", exchange, network)
}

func getString(data map[string]interface{}, key string) string {
	if val, ok := data[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

func getBool(data map[string]interface{}, key string) bool {
	if val, ok := data[key]; ok {
		switch v := val.(type) {
		case bool:
			return v
		case string:
			return v == "true"
		case json.Number:
			n, _ := v.Int64()
			return n != 0
		}
	}
	return false
}

// NewMockClient creates a disabled (in-memory-only) client for tests.
func NewMockClient() *Client {
	return &Client{
		config:       config.VaultConfig{Enabled: false},
		cache:        make(map[string]*APIKeyData),
		cacheEnabled: true,
	}
}
