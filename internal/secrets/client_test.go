package vault

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisabledClientStoresAndRetrievesFromCache(t *testing.T) {
	c := NewMockClient()
	ctx := context.Background()

	err := c.StoreAPIKey(ctx, APIKeyData{APIKey: "ak", SecretKey: "sk", Exchange: "kraken", Sandbox: false})
	require.NoError(t, err)

	got, err := c.GetAPIKey(ctx, "kraken", false)
	require.NoError(t, err)
	assert.Equal(t, "ak", got.APIKey)
	assert.Equal(t, "sk", got.SecretKey)
}

func TestLiveAndSandboxCredentialsAreDistinctKeys(t *testing.T) {
	c := NewMockClient()
	ctx := context.Background()

	require.NoError(t, c.StoreAPIKey(ctx, APIKeyData{APIKey: "live-key", Exchange: "revolutx", Sandbox: false}))
	require.NoError(t, c.StoreAPIKey(ctx, APIKeyData{APIKey: "sandbox-key", Exchange: "revolutx", Sandbox: true}))

	live, err := c.GetAPIKey(ctx, "revolutx", false)
	require.NoError(t, err)
	assert.Equal(t, "live-key", live.APIKey)

	sandbox, err := c.GetAPIKey(ctx, "revolutx", true)
	require.NoError(t, err)
	assert.Equal(t, "sandbox-key", sandbox.APIKey)
}

func TestGetAPIKeyMissingWhenVaultDisabledAndUncached(t *testing.T) {
	c := NewMockClient()
	_, err := c.GetAPIKey(context.Background(), "kraken", false)
	assert.Error(t, err)
}

func TestDeleteAPIKeyClearsCachedEntry(t *testing.T) {
	c := NewMockClient()
	ctx := context.Background()
	require.NoError(t, c.StoreAPIKey(ctx, APIKeyData{APIKey: "ak", Exchange: "kraken", Sandbox: false}))

	require.NoError(t, c.DeleteAPIKey(ctx, "kraken", false))

	_, err := c.GetAPIKey(ctx, "kraken", false)
	assert.Error(t, err)
}

func TestRotateAPIKeyOverwritesExisting(t *testing.T) {
	c := NewMockClient()
	ctx := context.Background()
	require.NoError(t, c.StoreAPIKey(ctx, APIKeyData{APIKey: "old", Exchange: "kraken", Sandbox: false}))
	require.NoError(t, c.RotateAPIKey(ctx, APIKeyData{APIKey: "new", Exchange: "kraken", Sandbox: false}))

	got, err := c.GetAPIKey(ctx, "kraken", false)
	require.NoError(t, err)
	assert.Equal(t, "new", got.APIKey)
}

func TestClearCacheDropsStoredCredentials(t *testing.T) {
	c := NewMockClient()
	ctx := context.Background()
	require.NoError(t, c.StoreAPIKey(ctx, APIKeyData{APIKey: "ak", Exchange: "kraken", Sandbox: false}))

	c.ClearCache()

	_, err := c.GetAPIKey(ctx, "kraken", false)
	assert.Error(t, err)
}

func TestIsEnabledReflectsConfig(t *testing.T) {
	c := NewMockClient()
	assert.False(t, c.IsEnabled())
}

func TestHealthIsNoopWhenDisabled(t *testing.T) {
	c := NewMockClient()
	assert.NoError(t, c.Health(context.Background()))
}
