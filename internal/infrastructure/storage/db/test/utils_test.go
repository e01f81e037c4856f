package db_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tdex-network/tdex-broker/internal/core/domain"
	"github.com/tdex-network/tdex-broker/internal/core/ports"
	dbbadger "github.com/tdex-network/tdex-broker/internal/infrastructure/storage/db/badger"
	"github.com/tdex-network/tdex-broker/internal/infrastructure/storage/db/inmemory"
	"github.com/thanhpk/randstr"
)

type repoManager struct {
	ports.RepoManager
	Name string
}

func createRepoManagers(t *testing.T) []repoManager {
	badgerRepoManager, err := dbbadger.NewRepoManager("", nil)
	require.NoError(t, err)
	t.Cleanup(badgerRepoManager.Close)

	return []repoManager{
		{inmemory.NewRepoManager(), "inmemory"},
		{badgerRepoManager, "badger"},
	}
}

func randomID() string {
	return randstr.Hex(16)
}

func makeMultiTrade(t *testing.T) *domain.MultiTrade {
	alice, bob := randomID(), randomID()
	participants := map[string]domain.Participant{
		alice: {Credential: "encrypted:" + alice, TOTPSecret: "encrypted:totp"},
		bob:   {Credential: "encrypted:" + bob},
	}
	heldAssets := map[string][]string{
		alice: {randomID(), randomID()},
	}
	heldFillerAssets := map[string][]string{
		alice: {randomID()},
		bob:   {randomID()},
	}
	children := []domain.MultiTradeChild{
		{
			Strategy:      domain.StrategySenderToReceiver,
			FromAccountID: alice,
			ToAccountID:   bob,
			AssetIDs:      heldAssets[alice],
		},
	}

	trade, err := domain.NewMultiTrade(
		participants, heldAssets, heldFillerAssets, children,
	)
	require.NoError(t, err)
	return trade
}

func makeSingleTrade(parentID string) *domain.SingleTrade {
	sender := domain.TradeParty{
		AccountID:  randomID(),
		Credential: "encrypted:sender",
		TOTP:       &domain.TOTP{Secret: "encrypted:totp"},
	}
	accepter := domain.TradeParty{
		AccountID:  randomID(),
		Credential: "encrypted:accepter",
	}
	offers := [2]domain.Offer{
		{AccountID: sender.AccountID, AssetIDs: []string{randomID()}},
		{AccountID: accepter.AccountID, FillerAssetID: randomID()},
	}
	return domain.NewSingleTrade(randomID(), parentID, sender, accepter, offers)
}
