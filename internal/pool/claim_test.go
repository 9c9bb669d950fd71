package pool

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

// Scenario D
func TestClaimAfterSettlement(t *testing.T) {
	h := lockedHarness(t, directSpec())
	ctx := context.Background()
	h.sale.issueOnBuy = ether(1000)

	_, err := h.pool.Release(ctx, admin, h.pool.RequiredReleaseValue())
	require.NoError(t, err)

	for _, acc := range []Account{alice, bob} {
		got, err := h.pool.Claim(ctx, acc)
		require.NoError(t, err)
		require.Positive(t, got.Sign())
		require.Positive(t, h.asset.balance(acc).Sign())
	}
	total := new(big.Int).Add(h.asset.balance(alice), h.asset.balance(bob))
	require.True(t, total.Cmp(h.pool.IssuedAssetBalance()) <= 0)
	require.Equal(t, 0, ether(1000).Cmp(h.pool.IssuedAssetBalance()))

	// 1000 * 1/3 与 1000 * 2/3，向下取整
	require.Equal(t, 0, shareOf(ether(1000), percentageOf(ether(30), ether(90))).Cmp(h.asset.balance(alice)))
}

func TestClaimIsIdempotentOnceSettled(t *testing.T) {
	h := lockedHarness(t, directSpec())
	ctx := context.Background()
	h.sale.issueOnBuy = ether(90)
	_, err := h.pool.Release(ctx, admin, h.pool.RequiredReleaseValue())
	require.NoError(t, err)

	_, err = h.pool.Claim(ctx, alice)
	require.NoError(t, err)
	before := h.pool.State()
	_, err = h.pool.Claim(ctx, alice)
	require.ErrorIs(t, err, ErrNothingDue)
	require.Equal(t, before, h.pool.State())
	require.Equal(t, 0, h.pool.GetContributionsDue(alice).TokensDue.Sign())

	_, err = h.pool.Claim(ctx, stranger)
	require.ErrorIs(t, err, ErrNothingDue)
}

func TestClaimPicksUpLaterBatches(t *testing.T) {
	h := lockedHarness(t, directSpec())
	ctx := context.Background()
	h.sale.issueOnBuy = ether(300)
	_, err := h.pool.Release(ctx, admin, h.pool.RequiredReleaseValue())
	require.NoError(t, err)

	first, err := h.pool.Claim(ctx, alice)
	require.NoError(t, err)
	require.Equal(t, 0, shareOf(ether(300), percentageOf(ether(30), ether(90))).Cmp(first))

	// 第二批到账
	h.asset.mint(custody, ether(600))
	due := h.pool.GetContributionsDue(bob).TokensDue
	require.Equal(t, 0, shareOf(ether(300), percentageOf(ether(60), ether(90))).Cmp(due), "cached balance until refreshed")

	changed, err := h.pool.SyncIssuedAssetBalance(ctx)
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, 0, ether(900).Cmp(h.pool.IssuedAssetBalance()))

	second, err := h.pool.Claim(ctx, alice)
	require.NoError(t, err)
	claimed := new(big.Int).Add(first, second)
	require.Equal(t, 0, shareOf(ether(900), percentageOf(ether(30), ether(90))).Cmp(claimed))
	require.Equal(t, 0, claimed.Cmp(h.asset.balance(alice)))

	bobGot, err := h.pool.Claim(ctx, bob)
	require.NoError(t, err)
	require.Equal(t, 0, shareOf(ether(900), percentageOf(ether(60), ether(90))).Cmp(bobGot))

	changed, err = h.pool.SyncIssuedAssetBalance(ctx)
	require.NoError(t, err)
	require.False(t, changed, "claims move assets out but the received total never decreases")
	require.Equal(t, 0, ether(900).Cmp(h.pool.IssuedAssetBalance()))
}

func TestClaimRollsBackOnTransferFailure(t *testing.T) {
	h := lockedHarness(t, directSpec())
	ctx := context.Background()
	h.sale.issueOnBuy = ether(90)
	_, err := h.pool.Release(ctx, admin, h.pool.RequiredReleaseValue())
	require.NoError(t, err)

	h.asset.failTransfer = true
	before := h.pool.State()
	_, err = h.pool.Claim(ctx, alice)
	require.ErrorIs(t, err, ErrExternalCallFailed)
	require.Equal(t, before, h.pool.State())

	h.asset.failTransfer = false
	h.asset.failBalance = true
	_, err = h.pool.Claim(ctx, alice)
	require.ErrorIs(t, err, ErrExternalCallFailed)
	require.Equal(t, before, h.pool.State())
}

func TestClaimBeforeReleaseHasNothingDue(t *testing.T) {
	h := lockedHarness(t, directSpec())
	_, err := h.pool.Claim(context.Background(), alice)
	require.ErrorIs(t, err, ErrNothingDue)

	open := newHarness(t)
	require.NoError(t, open.pool.Contribute(alice, ether(1)))
	_, err = open.pool.Claim(context.Background(), alice)
	require.ErrorIs(t, err, ErrInvalidState)
	_, err = open.pool.ClaimRefund(context.Background(), alice)
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestSyncBeforeReleaseIsNoop(t *testing.T) {
	h := lockedHarness(t, directSpec())
	h.asset.mint(custody, ether(5))
	changed, err := h.pool.SyncIssuedAssetBalance(context.Background())
	require.NoError(t, err)
	require.False(t, changed)
	require.Equal(t, 0, h.pool.IssuedAssetBalance().Sign())
}

func TestWatermarkNeverExceedsEntitlement(t *testing.T) {
	h := lockedHarness(t, directSpec())
	ctx := context.Background()
	h.sale.issueOnBuy = big.NewInt(7)
	_, err := h.pool.Release(ctx, admin, h.pool.RequiredReleaseValue())
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		h.asset.mint(custody, big.NewInt(int64(3+i)))
		for _, acc := range []Account{alice, bob} {
			_, _ = h.pool.Claim(ctx, acc)
			part, _ := h.pool.Participant(acc)
			limit := shareOf(h.pool.IssuedAssetBalance(), part.PercentageContribution)
			require.True(t, part.LastAmountClaimed.Cmp(limit) <= 0)
		}
	}
}
