package task

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/blues/poolparty/internal/config"
	"github.com/blues/poolparty/internal/database"
	"github.com/blues/poolparty/internal/pool"
	"github.com/blues/poolparty/internal/repository"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var base = time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Init(config.DatabaseConfig{
		Driver: "sqlite",
		Path:   fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()),
	})
	require.NoError(t, err)
	return db
}

func seedPool(t *testing.T, db *gorm.DB, status pool.Status, released bool, deadline time.Time) string {
	t.Helper()
	id := uuid.NewString()
	_, err := repository.NewPoolRepository(db).Create(pool.State{
		ID:                   id,
		Name:                 "pool " + id[:8],
		AdminIdentifier:      "foundation",
		Admin:                "0xAdmin",
		Custody:              pool.Account("0xCustody" + id[:8]),
		Status:               status,
		TotalContributions:   big.NewInt(100),
		DueDiligenceDuration: time.Hour,
		DueDiligenceDeadline: deadline,
		Released:             released,
		CreatedAt:            base,
	})
	require.NoError(t, err)
	return id
}

type fakeSyncer struct {
	mu      sync.Mutex
	seen    []string
	changed map[string]bool
	failing map[string]bool
}

func (s *fakeSyncer) SyncAsset(_ context.Context, poolId string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = append(s.seen, poolId)
	if s.failing[poolId] {
		return false, errors.New("rpc down")
	}
	return s.changed[poolId], nil
}

func TestAssetSyncJobVisitsReleasedPools(t *testing.T) {
	db := newTestDB(t)
	inReview := seedPool(t, db, pool.StatusInReview, true, base)
	claiming := seedPool(t, db, pool.StatusClaim, true, base)
	broken := seedPool(t, db, pool.StatusClaim, true, base)
	seedPool(t, db, pool.StatusInReview, false, base)
	seedPool(t, db, pool.StatusOpen, false, time.Time{})

	syncer := &fakeSyncer{
		changed: map[string]bool{claiming: true},
		failing: map[string]bool{broken: true},
	}
	job := NewAssetSyncJob(db, syncer, time.Minute, 2)

	updated, failed := job.Run(context.Background())
	require.Equal(t, 1, updated)
	require.Equal(t, 1, failed)
	require.ElementsMatch(t, []string{inReview, claiming, broken}, syncer.seen)
}

func TestAssetSyncJobNothingReleased(t *testing.T) {
	db := newTestDB(t)
	seedPool(t, db, pool.StatusOpen, false, time.Time{})

	syncer := &fakeSyncer{}
	updated, failed := NewAssetSyncJob(db, syncer, time.Minute, 0).Run(context.Background())
	require.Zero(t, updated)
	require.Zero(t, failed)
	require.Empty(t, syncer.seen)
}

func TestPoolStatusJobReportsDueDiligenceEnded(t *testing.T) {
	db := newTestDB(t)
	ended := seedPool(t, db, pool.StatusDueDiligence, false, base.Add(-time.Minute))
	seedPool(t, db, pool.StatusDueDiligence, false, base.Add(time.Hour))
	seedPool(t, db, pool.StatusOpen, false, time.Time{})
	seedPool(t, db, pool.StatusRefund, false, base)

	job := NewPoolStatusJob(db, time.Minute)
	job.now = func() time.Time { return base }

	report, err := job.Run()
	require.NoError(t, err)
	require.Equal(t, []string{ended}, report.ReviewReady)
	require.Equal(t, int64(2), report.Counts[pool.StatusDueDiligence])
	require.Equal(t, int64(1), report.Counts[pool.StatusOpen])
	require.Equal(t, int64(1), report.Counts[pool.StatusRefund])
	require.Equal(t, int64(0), report.Counts[pool.StatusClaim])
}

func TestManagerRegistersJobs(t *testing.T) {
	db := newTestDB(t)
	m, err := NewManager(
		NewAssetSyncJob(db, &fakeSyncer{}, time.Hour, 1),
		NewPoolStatusJob(db, time.Hour),
	)
	require.NoError(t, err)

	m.Start()
	defer m.Stop()
	require.ElementsMatch(t, []string{"asset_balance_sync", "pool_status_reporter"}, m.Jobs())
}
