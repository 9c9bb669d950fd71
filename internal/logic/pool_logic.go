package logic

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/blues/poolparty/internal/logger"
	"github.com/blues/poolparty/internal/metrics"
	"github.com/blues/poolparty/internal/model"
	"github.com/blues/poolparty/internal/pool"
	"github.com/blues/poolparty/internal/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrDepositRequired = errors.New("入金交易哈希不能为空")
	ErrTxHashUsed      = errors.New("入金交易已经记账")
)

// 定时任务等非用户触发的操作
const systemActor = pool.Account("system")

// DepositVerifier 入金交易校验
type DepositVerifier interface {
	VerifyDeposit(ctx context.Context, txHash string, from, custody pool.Account, amount *big.Int) error
}

// PoolLogic 资金池业务逻辑
type PoolLogic struct {
	db       *gorm.DB
	pools    *repository.PoolRepository
	records  *repository.RecordRepository
	deps     pool.Dependencies
	deposits DepositVerifier // 为 nil 时不校验链上入金
	locks    *poolLocks
	metrics  *metrics.Collector
}

// NewPoolLogic 创建资金池业务逻辑
func NewPoolLogic(db *gorm.DB, deps pool.Dependencies, deposits DepositVerifier) *PoolLogic {
	return &PoolLogic{
		db:       db,
		pools:    repository.NewPoolRepository(db),
		records:  repository.NewRecordRepository(db),
		deps:     deps,
		deposits: deposits,
		locks:    newPoolLocks(),
		metrics:  metrics.GetCollector(),
	}
}

// operation 一次资金池操作在事务内可用的资源
type operation struct {
	ctx     context.Context
	pool    *pool.Pool
	records *repository.RecordRepository
	event   map[string]string // 为 nil 时不写审计事件
}

// mutate 在进程内锁与行锁保护下执行一次资金池操作
// 领域操作失败时整个事务回滚，成功后状态、流水与审计事件一起提交
func (l *PoolLogic) mutate(ctx context.Context, poolId, name string, actor pool.Account, fn func(op *operation) error) (err error) {
	unlock := l.locks.lock(poolId)
	defer unlock()
	log := logger.With(zap.String("pool_id", poolId), zap.String("operation", name), zap.String("actor", string(actor)))

	timer := metrics.NewTimer()
	defer func() {
		l.metrics.RecordOperation(name, err, timer.ElapsedMs())
		if errors.Is(err, pool.ErrExternalCallFailed) {
			l.metrics.RecordExternalFailure(name)
		}
	}()

	// 链上调用可能已经发生，请求取消后仍要把结果落库
	tx := l.db.WithContext(context.WithoutCancel(ctx)).Begin()
	if tx.Error != nil {
		return fmt.Errorf("开启事务失败: %w", tx.Error)
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			err = fmt.Errorf("资金池 %s %s 异常: %v", poolId, name, r)
			log.Error("%v", err)
		}
	}()

	pools := l.pools.WithTx(tx)
	rows, err := pools.Load(poolId, true)
	if err != nil {
		tx.Rollback()
		return err
	}
	state, err := rows.State()
	if err != nil {
		tx.Rollback()
		return err
	}
	p, err := pool.Restore(state, l.deps)
	if err != nil {
		tx.Rollback()
		return err
	}

	op := &operation{ctx: ctx, pool: p, records: l.records.WithTx(tx)}
	if err := fn(op); err != nil {
		tx.Rollback()
		log.Warn("Pool %s %s rejected: %v", poolId, name, err)
		return err
	}

	if err := pools.Save(rows, p.State()); err != nil {
		tx.Rollback()
		return err
	}
	if op.event != nil {
		if err := op.records.CreateEvent(poolId, name, string(actor), op.event); err != nil {
			tx.Rollback()
			return fmt.Errorf("写入审计事件失败: %w", err)
		}
	}
	if err := tx.Commit().Error; err != nil {
		log.Error("Pool %s %s commit failed: %v", poolId, name, err)
		return fmt.Errorf("提交事务失败: %w", err)
	}

	log.Info("Pool %s %s done (status %s)", poolId, name, p.Status())
	return nil
}

// Contribute 出资，配置了链客户端时必须提供已确认的入金交易
func (l *PoolLogic) Contribute(ctx context.Context, poolId string, account pool.Account, amount *big.Int, txHash string) (*pool.Participant, error) {
	var part *pool.Participant
	err := l.mutate(ctx, poolId, "contribute", account, func(op *operation) error {
		if err := op.pool.Contribute(account, amount); err != nil {
			return err
		}
		if err := l.checkDeposit(op, account, amount, txHash); err != nil {
			return err
		}
		if err := op.records.CreateContribute(&model.ContributeRecordModel{
			PoolId:  poolId,
			Account: string(account),
			Action:  model.ContributeActionContribute,
			Amount:  repository.FormatAmount(amount),
			TxHash:  txHash,
		}); err != nil {
			return fmt.Errorf("创建出资记录失败: %w", err)
		}
		part, _ = op.pool.Participant(account)
		op.event = map[string]string{"account": string(account), "amount": amount.String(), "tx_hash": txHash}
		return nil
	})
	if err != nil {
		return nil, err
	}
	l.metrics.RecordContribution(weiFloat(amount))
	return part, nil
}

// ContributeTokens 按份数出资，返回实际出资金额
func (l *PoolLogic) ContributeTokens(ctx context.Context, poolId string, account pool.Account, quantity *big.Int, txHash string) (*big.Int, error) {
	var amount *big.Int
	err := l.mutate(ctx, poolId, "contribute_tokens", account, func(op *operation) error {
		var err error
		if amount, err = op.pool.ContributeTokens(account, quantity); err != nil {
			return err
		}
		if err := l.checkDeposit(op, account, amount, txHash); err != nil {
			return err
		}
		if err := op.records.CreateContribute(&model.ContributeRecordModel{
			PoolId:   poolId,
			Account:  string(account),
			Action:   model.ContributeActionContribute,
			Amount:   repository.FormatAmount(amount),
			Quantity: quantity.String(),
			TxHash:   txHash,
		}); err != nil {
			return fmt.Errorf("创建出资记录失败: %w", err)
		}
		op.event = map[string]string{"account": string(account), "quantity": quantity.String(), "amount": amount.String(), "tx_hash": txHash}
		return nil
	})
	if err != nil {
		return nil, err
	}
	l.metrics.RecordContribution(weiFloat(amount))
	return amount, nil
}

// checkDeposit 入金交易未被使用过，且配置了链客户端时已确认从 from 转入托管账户
func (l *PoolLogic) checkDeposit(op *operation, account pool.Account, amount *big.Int, txHash string) error {
	if txHash != "" {
		used, err := op.records.TxHashUsed(txHash)
		if err != nil {
			return fmt.Errorf("检查入金交易失败: %w", err)
		}
		if used {
			return fmt.Errorf("%w: %s", ErrTxHashUsed, txHash)
		}
	}
	if l.deposits == nil {
		return nil
	}
	if txHash == "" {
		return ErrDepositRequired
	}
	return l.deposits.VerifyDeposit(op.ctx, txHash, account, op.pool.Custody(), amount)
}

// Leave 参与者退出，出资原路退回
func (l *PoolLogic) Leave(ctx context.Context, poolId string, account pool.Account) (*big.Int, error) {
	var amount *big.Int
	err := l.mutate(ctx, poolId, "leave", account, func(op *operation) error {
		var err error
		if amount, err = op.pool.Leave(op.ctx, account); err != nil {
			return err
		}
		op.event = map[string]string{"account": string(account), "amount": amount.String()}
		return l.recordWithdrawal(op, poolId, account, amount, model.ContributeActionLeave, model.RefundReasonLeave, "")
	})
	if err != nil {
		return nil, err
	}
	l.metrics.RecordRefund(string(model.RefundReasonLeave), weiFloat(amount))
	return amount, nil
}

// Kick 管理员移除参与者
func (l *PoolLogic) Kick(ctx context.Context, poolId string, caller, account pool.Account, reason pool.KickReason) (*big.Int, error) {
	var amount *big.Int
	err := l.mutate(ctx, poolId, "kick", caller, func(op *operation) error {
		var err error
		if amount, err = op.pool.Kick(op.ctx, caller, account, reason); err != nil {
			return err
		}
		part, _ := op.pool.Participant(account)
		op.event = map[string]string{"account": string(account), "amount": amount.String(), "reason": string(part.KickReason)}
		return l.recordWithdrawal(op, poolId, account, amount, model.ContributeActionKick, model.RefundReasonKick, string(part.KickReason))
	})
	if err != nil {
		return nil, err
	}
	l.metrics.RecordRefund(string(model.RefundReasonKick), weiFloat(amount))
	return amount, nil
}

func (l *PoolLogic) recordWithdrawal(op *operation, poolId string, account pool.Account, amount *big.Int, action model.ContributeAction, reason model.RefundReason, detail string) error {
	if err := op.records.CreateContribute(&model.ContributeRecordModel{
		PoolId:  poolId,
		Account: string(account),
		Action:  action,
		Amount:  repository.FormatAmount(amount),
		Reason:  detail,
	}); err != nil {
		return fmt.Errorf("创建撤资记录失败: %w", err)
	}
	if err := op.records.CreateRefund(&model.RefundRecordModel{
		PoolId:  poolId,
		Account: string(account),
		Amount:  repository.FormatAmount(amount),
		Reason:  reason,
		Status:  model.RefundStatusSuccess,
	}); err != nil {
		return fmt.Errorf("创建退款记录失败: %w", err)
	}
	return nil
}

// Configure 提交销售配置
func (l *PoolLogic) Configure(ctx context.Context, poolId string, caller pool.Account, spec pool.Spec) error {
	return l.mutate(ctx, poolId, "configure", caller, func(op *operation) error {
		if err := op.pool.ConfigurePool(op.ctx, caller, spec); err != nil {
			return err
		}
		op.event = map[string]string{
			"sale_target":              spec.SaleTarget,
			"issued_asset_ref":         spec.IssuedAssetRef,
			"buy_entry_point":          spec.BuyEntryPoint,
			"vendor_claim_entry_point": spec.VendorClaimEntryPoint,
			"refund_entry_point":       spec.RefundEntryPoint,
			"is_refundable":            fmt.Sprintf("%t", spec.IsRefundable),
		}
		return nil
	})
}

// CompleteConfiguration 进入尽调期，返回截止时间
func (l *PoolLogic) CompleteConfiguration(ctx context.Context, poolId string, caller pool.Account) (time.Time, error) {
	var deadline time.Time
	err := l.mutate(ctx, poolId, "complete_configuration", caller, func(op *operation) error {
		if err := op.pool.CompleteConfiguration(caller); err != nil {
			return err
		}
		deadline = op.pool.Deadline()
		op.event = map[string]string{"deadline": deadline.UTC().Format(time.RFC3339)}
		return nil
	})
	return deadline, err
}

// StartReview 锁定资金池
func (l *PoolLogic) StartReview(ctx context.Context, poolId string, caller pool.Account) error {
	return l.mutate(ctx, poolId, "start_review", caller, func(op *operation) error {
		if err := op.pool.StartReview(caller); err != nil {
			return err
		}
		op.event = map[string]string{
			"total_contributions": op.pool.TotalContributions().String(),
			"subsidy":             op.pool.Subsidy().String(),
			"fee":                 op.pool.Fee().String(),
		}
		return nil
	})
}

// Release 把资金转给销售方，随后尽力刷新一次资产余额
// 补贴与服务费必须由管理员先转入托管账户，txHash 为该笔入金交易
func (l *PoolLogic) Release(ctx context.Context, poolId string, caller pool.Account, supplied *big.Int, txHash string) (*pool.ReleaseReceipt, error) {
	var receipt *pool.ReleaseReceipt
	err := l.mutate(ctx, poolId, "release", caller, func(op *operation) error {
		if err := op.pool.CheckRelease(caller, supplied); err != nil {
			return err
		}
		if supplied.Sign() == 0 {
			txHash = ""
		} else if err := l.checkDeposit(op, caller, supplied, txHash); err != nil {
			return err
		}

		var err error
		if receipt, err = op.pool.Release(op.ctx, caller, supplied); err != nil {
			return err
		}
		if err := op.records.CreateSettlement(&model.SettlementRecordModel{
			PoolId:         poolId,
			SettlementType: model.SettlementTypeRelease,
			Operator:       string(caller),
			TotalAmount:    repository.FormatAmount(receipt.Forwarded),
			SuppliedAmount: repository.FormatAmount(supplied),
			TxHash:         txHash,
			Subsidy:        repository.FormatAmount(receipt.Subsidy),
			Fee:            repository.FormatAmount(receipt.Fee),
			ReturnedAmount: repository.FormatAmount(receipt.Change),
			Status:         string(receipt.Status),
			SettlementTime: l.now(),
		}); err != nil {
			return fmt.Errorf("创建结算记录失败: %w", err)
		}
		op.event = map[string]string{
			"forwarded": receipt.Forwarded.String(),
			"change":    receipt.Change.String(),
			"status":    string(receipt.Status),
			"tx_hash":   txHash,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if _, err := l.SyncAsset(ctx, poolId); err != nil {
		logger.Warn("Pool %s asset sync after release failed: %v", poolId, err)
	}
	return receipt, nil
}

// ClaimFromVendor 向销售方领取资产
func (l *PoolLogic) ClaimFromVendor(ctx context.Context, poolId string, caller pool.Account) error {
	err := l.mutate(ctx, poolId, "claim_from_vendor", caller, func(op *operation) error {
		if err := op.pool.ClaimFromVendor(op.ctx, caller); err != nil {
			return err
		}
		if err := op.records.CreateSettlement(&model.SettlementRecordModel{
			PoolId:         poolId,
			SettlementType: model.SettlementTypeVendorClaim,
			Operator:       string(caller),
			Status:         string(op.pool.Status()),
			SettlementTime: l.now(),
		}); err != nil {
			return fmt.Errorf("创建结算记录失败: %w", err)
		}
		op.event = map[string]string{"status": string(op.pool.Status())}
		return nil
	})
	if err != nil {
		return err
	}

	if _, err := l.SyncAsset(ctx, poolId); err != nil {
		logger.Warn("Pool %s asset sync after vendor claim failed: %v", poolId, err)
	}
	return nil
}

// Refund 放弃购买并把资金记为参与者退款
func (l *PoolLogic) Refund(ctx context.Context, poolId string, caller pool.Account) (*pool.RefundReceipt, error) {
	var receipt *pool.RefundReceipt
	err := l.mutate(ctx, poolId, "refund", caller, func(op *operation) error {
		var err error
		if receipt, err = op.pool.Refund(op.ctx, caller); err != nil {
			return err
		}
		if err := op.records.CreateSettlement(&model.SettlementRecordModel{
			PoolId:         poolId,
			SettlementType: model.SettlementTypeRefund,
			Operator:       string(caller),
			TotalAmount:    repository.FormatAmount(receipt.Held),
			ReturnedAmount: repository.FormatAmount(receipt.Recovered),
			Status:         string(op.pool.Status()),
			SettlementTime: l.now(),
		}); err != nil {
			return fmt.Errorf("创建结算记录失败: %w", err)
		}
		op.event = map[string]string{
			"held":      receipt.Held.String(),
			"recovered": receipt.Recovered.String(),
			"assigned":  receipt.Assigned.String(),
		}
		return nil
	})
	return receipt, err
}

// Claim 领取资产
func (l *PoolLogic) Claim(ctx context.Context, poolId string, account pool.Account) (*big.Int, error) {
	var amount *big.Int
	err := l.mutate(ctx, poolId, "claim", account, func(op *operation) error {
		var err error
		if amount, err = op.pool.Claim(op.ctx, account); err != nil {
			return err
		}
		if err := op.records.CreateClaim(&model.ClaimRecordModel{
			PoolId:  poolId,
			Account: string(account),
			Amount:  repository.FormatAmount(amount),
		}); err != nil {
			return fmt.Errorf("创建领取记录失败: %w", err)
		}
		op.event = map[string]string{"account": string(account), "amount": amount.String()}
		return nil
	})
	return amount, err
}

// ClaimRefund 领取结算后的退款
func (l *PoolLogic) ClaimRefund(ctx context.Context, poolId string, account pool.Account) (*big.Int, error) {
	var amount *big.Int
	err := l.mutate(ctx, poolId, "claim_refund", account, func(op *operation) error {
		var err error
		if amount, err = op.pool.ClaimRefund(op.ctx, account); err != nil {
			return err
		}
		if err := op.records.CreateRefund(&model.RefundRecordModel{
			PoolId:  poolId,
			Account: string(account),
			Amount:  repository.FormatAmount(amount),
			Reason:  model.RefundReasonSettled,
			Status:  model.RefundStatusSuccess,
		}); err != nil {
			return fmt.Errorf("创建退款记录失败: %w", err)
		}
		op.event = map[string]string{"account": string(account), "amount": amount.String()}
		return nil
	})
	if err != nil {
		return nil, err
	}
	l.metrics.RecordRefund(string(model.RefundReasonSettled), weiFloat(amount))
	return amount, nil
}

// SyncAsset 刷新资金池收到的资产总量，返回是否有变化
func (l *PoolLogic) SyncAsset(ctx context.Context, poolId string) (bool, error) {
	var changed bool
	err := l.mutate(ctx, poolId, "sync_asset", systemActor, func(op *operation) error {
		var err error
		if changed, err = op.pool.SyncIssuedAssetBalance(op.ctx); err != nil {
			return err
		}
		if changed {
			op.event = map[string]string{"issued_asset_balance": op.pool.IssuedAssetBalance().String()}
		}
		return nil
	})
	return changed, err
}

// GetContributionsDue 查询参与者可领取的资产与退款
func (l *PoolLogic) GetContributionsDue(poolId string, account pool.Account) (pool.ContributionsDue, error) {
	p, err := l.restore(poolId)
	if err != nil {
		return pool.ContributionsDue{}, err
	}
	return p.GetContributionsDue(account), nil
}

// GetParticipants 按首次出资顺序列出参与者
func (l *PoolLogic) GetParticipants(poolId string) ([]model.ParticipantModel, error) {
	rows, err := l.pools.Load(poolId, false)
	if err != nil {
		return nil, err
	}
	return rows.Participants, nil
}

// GetParticipant 查询单个参与者
func (l *PoolLogic) GetParticipant(poolId string, account pool.Account) (*model.ParticipantModel, error) {
	rows, err := l.pools.Load(poolId, false)
	if err != nil {
		return nil, err
	}
	for i := range rows.Participants {
		if rows.Participants[i].Account == string(account) {
			return &rows.Participants[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", pool.ErrNotAParticipant, account)
}

func (l *PoolLogic) restore(poolId string) (*pool.Pool, error) {
	rows, err := l.pools.Load(poolId, false)
	if err != nil {
		return nil, err
	}
	state, err := rows.State()
	if err != nil {
		return nil, err
	}
	return pool.Restore(state, l.deps)
}

func (l *PoolLogic) now() time.Time {
	if l.deps.Now != nil {
		return l.deps.Now().UTC()
	}
	return time.Now().UTC()
}

func weiFloat(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}

// poolLocks 同一资金池的操作串行执行，行锁之外再加一层进程内锁（sqlite 不支持行锁）
type poolLocks struct {
	mu    sync.Mutex
	locks map[string]*poolLock
}

type poolLock struct {
	mu   sync.Mutex
	refs int
}

func newPoolLocks() *poolLocks {
	return &poolLocks{locks: make(map[string]*poolLock)}
}

func (l *poolLocks) lock(id string) func() {
	l.mu.Lock()
	pl, ok := l.locks[id]
	if !ok {
		pl = &poolLock{}
		l.locks[id] = pl
	}
	pl.refs++
	l.mu.Unlock()

	pl.mu.Lock()
	return func() {
		pl.mu.Unlock()
		l.mu.Lock()
		pl.refs--
		if pl.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}
