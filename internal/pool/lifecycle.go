package pool

import (
	"context"
	"fmt"
	"math/big"
)

// ConfigurePool 提交销售配置，募集期内可重复提交覆盖
// 进入尽调期后配置冻结
func (p *Pool) ConfigurePool(_ context.Context, caller Account, spec Spec) error {
	if !p.admin.permits(caller) {
		return ErrUnauthorized
	}
	if p.status != StatusOpen {
		return fmt.Errorf("%w: configure in %s", ErrInvalidState, p.status)
	}
	caps, err := bindSpec(p.deps.Binder, spec)
	if err != nil {
		return err
	}
	p.spec = spec
	p.caps = caps
	return nil
}

// CompleteConfiguration 配置完成，进入尽调期并确定截止时间
func (p *Pool) CompleteConfiguration(caller Account) error {
	if !p.admin.permits(caller) {
		return ErrUnauthorized
	}
	if p.status != StatusOpen {
		return fmt.Errorf("%w: complete configuration in %s", ErrInvalidState, p.status)
	}
	if !p.spec.Configured() || p.caps.target == nil {
		return fmt.Errorf("%w: pool is not configured", ErrInvalidState)
	}
	if !p.WaterMarkReached() {
		return fmt.Errorf("%w: contributions %s below water mark %s", ErrInvalidState, p.totalContributions, p.waterMark)
	}
	now := p.deps.now()
	if err := p.transition(StatusDueDiligence); err != nil {
		return err
	}
	p.dueDiligenceDeadline = now.Add(p.dueDiligenceDuration)
	return nil
}

// StartReview 尽调期结束后锁定资金池
func (p *Pool) StartReview(caller Account) error {
	if !p.admin.permits(caller) {
		return ErrUnauthorized
	}
	if p.status != StatusDueDiligence {
		return fmt.Errorf("%w: start review in %s", ErrInvalidState, p.status)
	}
	now := p.deps.now()
	if now.Before(p.dueDiligenceDeadline) {
		return fmt.Errorf("%w: due diligence ends at %s", ErrInvalidState, p.dueDiligenceDeadline.UTC().Format("2006-01-02T15:04:05Z"))
	}
	if p.totalContributions.Sign() <= 0 {
		return fmt.Errorf("%w: nothing contributed", ErrInvalidState)
	}

	sc := p.begin()
	defer sc.rollback()
	if err := p.lock(); err != nil {
		return err
	}
	if err := p.transition(StatusInReview); err != nil {
		return err
	}
	sc.commit()
	return nil
}

// lock 锁定份额并计算补贴与服务费
func (p *Pool) lock() error {
	subsidy, err := CalculateSubsidy(p.discountPercent, p.totalContributions)
	if err != nil {
		return err
	}
	for _, acc := range p.order {
		part := p.participants[acc]
		part.PercentageContribution = percentageOf(part.AmountContributed, p.totalContributions)
	}
	p.subsidy = subsidy
	p.fee = CalculateFee(p.feePercentage, p.totalContributions)
	p.lockedAt = p.deps.now()
	return nil
}

// distributeRefund 按锁定份额分配退款，返回实际分配的金额
func (p *Pool) distributeRefund(amount *big.Int) *big.Int {
	assigned := big.NewInt(0)
	if amount == nil || amount.Sign() <= 0 {
		return assigned
	}
	for _, acc := range p.order {
		part := p.participants[acc]
		share := shareOf(amount, part.PercentageContribution)
		if share.Sign() == 0 {
			continue
		}
		part.RefundAmount = new(big.Int).Add(part.RefundAmount, share)
		assigned.Add(assigned, share)
	}
	return assigned
}
