package task

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/blues/poolparty/internal/logger"
	"github.com/blues/poolparty/internal/metrics"
	"github.com/blues/poolparty/internal/repository"
	"github.com/go-co-op/gocron/v2"
	"github.com/panjf2000/ants/v2"
	"gorm.io/gorm"
)

// AssetSyncer 刷新单个资金池的资产余额
type AssetSyncer interface {
	SyncAsset(ctx context.Context, poolId string) (bool, error)
}

// AssetSyncJob 定期刷新已释放资金池收到的资产
// 销售方可能分批发放，参与者领取前余额就已经更新
type AssetSyncJob struct {
	pools    *repository.PoolRepository
	syncer   AssetSyncer
	interval time.Duration
	workers  int
	metrics  *metrics.Collector
}

// NewAssetSyncJob 创建资产同步任务
func NewAssetSyncJob(db *gorm.DB, syncer AssetSyncer, interval time.Duration, workers int) *AssetSyncJob {
	if workers <= 0 {
		workers = 1
	}
	return &AssetSyncJob{
		pools:    repository.NewPoolRepository(db),
		syncer:   syncer,
		interval: interval,
		workers:  workers,
		metrics:  metrics.GetCollector(),
	}
}

// GetName 获取任务名称
func (j *AssetSyncJob) GetName() string {
	return "asset_balance_sync"
}

// GetSchedule 获取调度配置
func (j *AssetSyncJob) GetSchedule() gocron.JobDefinition {
	return gocron.DurationJob(j.interval)
}

// Execute 执行任务
func (j *AssetSyncJob) Execute() {
	j.Run(context.Background())
}

// Run 同步一轮，返回余额有变化与失败的资金池数量
func (j *AssetSyncJob) Run(ctx context.Context) (updated, failed int) {
	start := time.Now()
	ids, err := j.pools.ListReleasedIds()
	if err != nil {
		logger.Error("Failed to fetch released pools: %v", err)
		return 0, 0
	}
	if len(ids) == 0 {
		return 0, 0
	}

	size := j.workers
	if len(ids) < size {
		size = len(ids)
	}
	workers, err := ants.NewPool(size)
	if err != nil {
		logger.Error("Failed to create worker pool of %d: %v", size, err)
		return 0, len(ids)
	}
	defer workers.Release()

	var (
		wg       sync.WaitGroup
		nUpdated atomic.Int32
		nFailed  atomic.Int32
	)
	for _, id := range ids {
		poolId := id
		wg.Add(1)
		err := workers.Submit(func() {
			defer wg.Done()
			changed, err := j.syncer.SyncAsset(ctx, poolId)
			if err != nil {
				nFailed.Add(1)
				logger.Warn("Asset sync for pool %s failed: %v", poolId, err)
				return
			}
			if changed {
				nUpdated.Add(1)
			}
		})
		if err != nil {
			wg.Done()
			nFailed.Add(1)
			logger.Error("Failed to submit task to pool: %v", err)
		}
	}
	wg.Wait()

	updated, failed = int(nUpdated.Load()), int(nFailed.Load())
	j.metrics.RecordAssetSync(updated, failed, time.Since(start))
	logger.Info("Asset sync completed. %d pools checked, %d updated, %d failed", len(ids), updated, failed)
	return updated, failed
}
