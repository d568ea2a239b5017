package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryOnlyModeSavesAndLoadsPositionState(t *testing.T) {
	repo := NewRedisPositionStateRepository(nil)
	ctx := context.Background()

	state := &PersistedPositionState{
		LotID: "lot-1", Pair: "BTC/USD", Exchange: "kraken",
		EntryPrice: 100, State: "trailing", StopPrice: 98,
	}
	require.NoError(t, repo.SavePositionState(ctx, "kraken", "BTC/USD", state))

	loaded, err := repo.LoadPositionState(ctx, "kraken", "BTC/USD")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "lot-1", loaded.LotID)
	assert.Equal(t, "trailing", loaded.State)
	assert.False(t, loaded.SavedAt.IsZero())
}

func TestLoadPositionStateMissingReturnsNilNotError(t *testing.T) {
	repo := NewRedisPositionStateRepository(nil)
	loaded, err := repo.LoadPositionState(context.Background(), "kraken", "ETH/USD")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestLoadAllPositionsReturnsEveryTrackedPair(t *testing.T) {
	repo := NewRedisPositionStateRepository(nil)
	ctx := context.Background()

	require.NoError(t, repo.SavePositionState(ctx, "kraken", "BTC/USD", &PersistedPositionState{Pair: "BTC/USD", Exchange: "kraken"}))
	require.NoError(t, repo.SavePositionState(ctx, "revolutx", "ETH/USD", &PersistedPositionState{Pair: "ETH/USD", Exchange: "revolutx"}))

	all, err := repo.LoadAllPositions(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Contains(t, all, "kraken:BTC/USD")
	assert.Contains(t, all, "revolutx:ETH/USD")
}

func TestDeletePositionRemovesFromCache(t *testing.T) {
	repo := NewRedisPositionStateRepository(nil)
	ctx := context.Background()

	require.NoError(t, repo.SavePositionState(ctx, "kraken", "BTC/USD", &PersistedPositionState{Pair: "BTC/USD", Exchange: "kraken"}))
	require.NoError(t, repo.DeletePosition(ctx, "kraken", "BTC/USD"))

	loaded, err := repo.LoadPositionState(ctx, "kraken", "BTC/USD")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestSavePositionStateRejectsNil(t *testing.T) {
	repo := NewRedisPositionStateRepository(nil)
	err := repo.SavePositionState(context.Background(), "kraken", "BTC/USD", nil)
	assert.Error(t, err)
}

func TestGetClientReturnsNilInMemoryOnlyMode(t *testing.T) {
	repo := NewRedisPositionStateRepository(nil)
	assert.Nil(t, repo.GetClient())
}
