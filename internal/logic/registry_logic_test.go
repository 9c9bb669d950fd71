package logic

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/blues/poolparty/internal/model"
	"github.com/blues/poolparty/internal/pool"
	"github.com/blues/poolparty/internal/repository"
	"github.com/stretchr/testify/require"
)

func TestCreatePoolAssignsDedicatedCustody(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()

	first, err := h.registry.CreatePool(ctx, CreatePoolInput{Name: "a", AdminIdentifier: adminID})
	require.NoError(t, err)
	require.Equal(t, string(custodyA), first.CustodyAccount)
	require.Equal(t, string(admin), first.AdminAccount)
	require.Equal(t, string(pool.StatusOpen), first.Status)
	require.NotEmpty(t, first.PoolId)

	_, err = h.registry.CreatePool(ctx, CreatePoolInput{Name: "b", AdminIdentifier: adminID, Custody: custodyA})
	require.ErrorIs(t, err, ErrCustodyUnavailable)

	second, err := h.registry.CreatePool(ctx, CreatePoolInput{Name: "b", AdminIdentifier: adminID, Custody: custodyB})
	require.NoError(t, err)
	require.Equal(t, string(custodyB), second.CustodyAccount)
	require.NotEqual(t, first.PoolId, second.PoolId)

	_, err = h.registry.CreatePool(ctx, CreatePoolInput{Name: "c", AdminIdentifier: adminID})
	require.ErrorIs(t, err, ErrNoCustodyAvailable)
}

func TestCreatePoolUnknownAdmin(t *testing.T) {
	h := newHarness(t, false)
	_, err := h.registry.CreatePool(context.Background(), CreatePoolInput{Name: "a", AdminIdentifier: "nobody"})
	require.ErrorIs(t, err, pool.ErrAdminNotFound)

	// 失败的创建不占用托管账户
	p, err := h.registry.CreatePool(context.Background(), CreatePoolInput{Name: "a", AdminIdentifier: adminID})
	require.NoError(t, err)
	require.Equal(t, string(custodyA), p.CustodyAccount)
}

func TestCreatePoolDefaultsAndOverrides(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()

	p, err := h.registry.CreatePool(ctx, CreatePoolInput{Name: "a", AdminIdentifier: adminID})
	require.NoError(t, err)
	require.Equal(t, uint64(2), p.FeePercentage)
	require.Equal(t, int64(3600), p.DueDiligenceSeconds)

	fee := uint64(0)
	dd := 30 * time.Minute
	p, err = h.registry.CreatePool(ctx, CreatePoolInput{
		Name:                 "b",
		AdminIdentifier:      adminID,
		FeePercentage:        &fee,
		DueDiligenceDuration: &dd,
		GroupTokenPrice:      big.NewInt(80),
		PublicTokenPrice:     big.NewInt(100),
	})
	require.NoError(t, err)
	require.Equal(t, uint64(0), p.FeePercentage)
	require.Equal(t, int64(1800), p.DueDiligenceSeconds)
	require.Equal(t, uint64(20), p.DiscountPercent)
}

func TestCreatePoolRejectsBadParams(t *testing.T) {
	h := newHarness(t, false)
	_, err := h.registry.CreatePool(context.Background(), CreatePoolInput{
		Name:            "a",
		AdminIdentifier: adminID,
		DiscountPercent: 100,
	})
	require.ErrorIs(t, err, pool.ErrInvalidParams)
}

func TestGetPoolNotFound(t *testing.T) {
	h := newHarness(t, false)
	_, err := h.registry.GetPool("missing")
	require.ErrorIs(t, err, repository.ErrPoolNotFound)
}

func TestListPoolsFiltersByStatus(t *testing.T) {
	h := newHarness(t, false)
	open := h.createPool(t)
	reviewing := h.openForReview(t, directSpec(), map[pool.Account]*big.Int{alice: ether(1)})

	pools, total, err := h.registry.ListPools(repository.PoolFilter{Status: string(pool.StatusOpen)})
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	require.Equal(t, open, pools[0].PoolId)

	pools, total, err = h.registry.ListPools(repository.PoolFilter{})
	require.NoError(t, err)
	require.Equal(t, int64(2), total)
	require.Len(t, pools, 2)

	_, _, err = h.registry.ListPools(repository.PoolFilter{Status: "finished"})
	require.ErrorIs(t, err, pool.ErrInvalidParams)

	got, err := h.registry.GetPool(reviewing)
	require.NoError(t, err)
	require.Equal(t, string(pool.StatusDueDiligence), got.Status)
	require.NotNil(t, got.DueDiligenceDeadline)
	require.True(t, got.DueDiligenceDeadline.Equal(h.clock.Now().Add(time.Hour)))
}

func TestPoolStats(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()
	id := h.createPool(t, func(in *CreatePoolInput) { in.WaterMark = ether(4) })

	_, err := h.pools.Contribute(ctx, id, alice, ether(1), "")
	require.NoError(t, err)
	_, err = h.pools.Contribute(ctx, id, alice, ether(1), "")
	require.NoError(t, err)
	_, err = h.pools.Contribute(ctx, id, bob, ether(1), "")
	require.NoError(t, err)

	stats, err := h.registry.GetPoolStats(id)
	require.NoError(t, err)
	require.Equal(t, ether(3).String(), stats["total_contributions"])
	require.Equal(t, false, stats["water_mark_reached"])
	require.InDelta(t, 75.0, stats["completion_percentage"], 0.0001)
	require.Equal(t, 2, stats["participant_count"])
	require.Equal(t, int64(2), stats["contributor_count"])
	require.Equal(t, int64(3), stats["contribution_count"])

	all, err := h.registry.GetAllPoolStats()
	require.NoError(t, err)
	require.Equal(t, int64(1), all["totalPools"])
	require.Equal(t, int64(1), all["poolsByStatus"].(map[string]int64)[string(pool.StatusOpen)])
	require.Equal(t, int64(2), all["totalInvestors"])
}

func TestCreatePoolWritesAuditEvent(t *testing.T) {
	h := newHarness(t, false)
	id := h.createPool(t)

	var events []model.EventModel
	require.NoError(t, h.db.Where("pool_id = ?", id).Find(&events).Error)
	require.Len(t, events, 1)
	require.Equal(t, "create", events[0].EventType)
	require.Equal(t, string(admin), events[0].Actor)
	require.Contains(t, string(events[0].Data), string(custodyA))
}
