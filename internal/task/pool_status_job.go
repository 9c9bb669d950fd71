package task

import (
	"time"

	"github.com/blues/poolparty/internal/logger"
	"github.com/blues/poolparty/internal/metrics"
	"github.com/blues/poolparty/internal/pool"
	"github.com/blues/poolparty/internal/repository"
	"github.com/go-co-op/gocron/v2"
	"gorm.io/gorm"
)

// StatusReport 一轮巡检结果
type StatusReport struct {
	Counts      map[pool.Status]int64
	ReviewReady []string // 尽调期已结束、等待管理员锁定的资金池
}

// PoolStatusJob 统计各状态资金池数量，并提示尽调期已结束的资金池
// 状态迁移只能由管理员触发，这里不修改任何资金池
type PoolStatusJob struct {
	pools    *repository.PoolRepository
	interval time.Duration
	metrics  *metrics.Collector
	now      func() time.Time
}

// NewPoolStatusJob 创建资金池状态巡检任务
func NewPoolStatusJob(db *gorm.DB, interval time.Duration) *PoolStatusJob {
	return &PoolStatusJob{
		pools:    repository.NewPoolRepository(db),
		interval: interval,
		metrics:  metrics.GetCollector(),
		now:      time.Now,
	}
}

// GetName 获取任务名称
func (j *PoolStatusJob) GetName() string {
	return "pool_status_reporter"
}

// GetSchedule 获取调度配置
func (j *PoolStatusJob) GetSchedule() gocron.JobDefinition {
	return gocron.DurationJob(j.interval)
}

// Execute 执行任务
func (j *PoolStatusJob) Execute() {
	if _, err := j.Run(); err != nil {
		logger.Error("Pool status task failed: %v", err)
	}
}

// Run 巡检一轮
func (j *PoolStatusJob) Run() (*StatusReport, error) {
	counts, err := j.pools.CountByStatus()
	if err != nil {
		return nil, err
	}
	gauge := make(map[string]int64, len(counts))
	for status, n := range counts {
		gauge[string(status)] = n
	}
	j.metrics.SetPoolsByStatus(gauge)

	ids, err := j.pools.ListIdsByStatus(pool.StatusDueDiligence)
	if err != nil {
		return nil, err
	}
	report := &StatusReport{Counts: counts}
	now := j.now()
	for _, id := range ids {
		rows, err := j.pools.Load(id, false)
		if err != nil {
			logger.Warn("Failed to load pool %s: %v", id, err)
			continue
		}
		state, err := rows.State()
		if err != nil {
			logger.Warn("Failed to decode pool %s: %v", id, err)
			continue
		}
		if !now.Before(state.DueDiligenceDeadline) {
			report.ReviewReady = append(report.ReviewReady, id)
			logger.Info("Pool %s due diligence ended at %s, waiting for admin review", id, state.DueDiligenceDeadline.UTC().Format(time.RFC3339))
		}
	}

	logger.Debug("Pool status task completed. %d pools ready for review", len(report.ReviewReady))
	return report, nil
}
