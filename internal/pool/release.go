package pool

import (
	"context"
	"fmt"
	"math/big"
)

// ReleaseReceipt 释放资金的结果
type ReleaseReceipt struct {
	Forwarded *big.Int // 募集总额 + 补贴 + 服务费
	Subsidy   *big.Int
	Fee       *big.Int
	Change    *big.Int // 销售方退回的找零，已按份额计入退款
	Status    Status
}

// RefundReceipt 退款路径的结果
type RefundReceipt struct {
	Held      *big.Int // 仍在托管账户中的募集资金
	Recovered *big.Int // 从销售方取回的金额
	Assigned  *big.Int // 实际分配给参与者的金额
}

// RequiredReleaseValue 释放时管理员需补足的金额
func (p *Pool) RequiredReleaseValue() *big.Int {
	return new(big.Int).Add(p.subsidy, p.fee)
}

// CheckRelease 释放前的权限、状态与金额检查，不修改资金池
func (p *Pool) CheckRelease(caller Account, supplied *big.Int) error {
	if !p.admin.permits(caller) {
		return ErrUnauthorized
	}
	if p.status != StatusInReview || p.released {
		return fmt.Errorf("%w: release in %s (released=%t)", ErrInvalidState, p.status, p.released)
	}
	required := p.RequiredReleaseValue()
	if supplied == nil || supplied.Cmp(required) != 0 {
		return fmt.Errorf("%w: supplied %s, required %s", ErrInsufficientValue, valueString(supplied), required)
	}
	return nil
}

// Release 将募集资金连同补贴与服务费一次性转给销售方，只能成功一次
func (p *Pool) Release(ctx context.Context, caller Account, supplied *big.Int) (*ReleaseReceipt, error) {
	if err := p.CheckRelease(caller, supplied); err != nil {
		return nil, err
	}

	sc := p.begin()
	defer sc.rollback()

	forwarded := new(big.Int).Add(p.totalContributions, supplied)
	change, err := p.caps.target.Buy(ctx, Call{
		From:       p.custody,
		EntryPoint: p.spec.buyEntryPoint(),
		Value:      new(big.Int).Set(forwarded),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: buy: %v", ErrExternalCallFailed, err)
	}
	change = cloneBigInt(change)
	if change.Sign() < 0 || change.Cmp(forwarded) > 0 {
		return nil, fmt.Errorf("%w: buy returned invalid change %s", ErrExternalCallFailed, change)
	}

	p.released = true
	p.releasedAt = p.deps.now()
	if change.Sign() > 0 {
		p.balanceRemainingSnapshot = new(big.Int).Add(p.balanceRemainingSnapshot, change)
		p.distributeRefund(change)
	}
	if !p.spec.HasVendorClaim() {
		if err := p.transition(StatusClaim); err != nil {
			return nil, err
		}
	}
	sc.commit()

	return &ReleaseReceipt{
		Forwarded: forwarded,
		Subsidy:   cloneBigInt(p.subsidy),
		Fee:       cloneBigInt(p.fee),
		Change:    change,
		Status:    p.status,
	}, nil
}

// ClaimFromVendor 释放后向销售方领取资产，完成后进入可领取状态
func (p *Pool) ClaimFromVendor(ctx context.Context, caller Account) error {
	if !p.admin.permits(caller) {
		return ErrUnauthorized
	}
	if p.status != StatusInReview || !p.released {
		return fmt.Errorf("%w: vendor claim in %s (released=%t)", ErrInvalidState, p.status, p.released)
	}
	if !p.spec.HasVendorClaim() {
		return fmt.Errorf("%w: no vendor claim entry point configured", ErrInvalidState)
	}
	claimer, ok := p.caps.target.(VendorClaimer)
	if !ok {
		return fmt.Errorf("%w: sale target cannot claim from vendor", ErrInvalidState)
	}

	sc := p.begin()
	defer sc.rollback()
	if err := claimer.ClaimFromVendor(ctx, Call{From: p.custody, EntryPoint: p.spec.VendorClaimEntryPoint}); err != nil {
		return fmt.Errorf("%w: vendor claim: %v", ErrExternalCallFailed, err)
	}
	if err := p.transition(StatusClaim); err != nil {
		return err
	}
	sc.commit()
	return nil
}

// Refund 放弃本次购买，把可退回的资金按份额记给参与者
func (p *Pool) Refund(ctx context.Context, caller Account) (*RefundReceipt, error) {
	if !p.admin.permits(caller) {
		return nil, ErrUnauthorized
	}
	if !p.spec.IsRefundable {
		return nil, fmt.Errorf("%w: pool is not refundable", ErrInvalidState)
	}
	if p.status != StatusDueDiligence && p.status != StatusInReview {
		return nil, fmt.Errorf("%w: refund in %s", ErrInvalidState, p.status)
	}
	refunder, ok := p.caps.target.(Refunder)
	if !ok {
		return nil, fmt.Errorf("%w: sale target cannot refund", ErrInvalidState)
	}

	sc := p.begin()
	defer sc.rollback()

	if p.status == StatusDueDiligence {
		if p.totalContributions.Sign() <= 0 {
			return nil, fmt.Errorf("%w: nothing contributed", ErrInvalidState)
		}
		if err := p.lock(); err != nil {
			return nil, err
		}
	}
	held := big.NewInt(0)
	if !p.released {
		held.Set(p.totalContributions)
	}

	recovered, err := refunder.Refund(ctx, Call{From: p.custody, EntryPoint: p.spec.RefundEntryPoint})
	if err != nil {
		return nil, fmt.Errorf("%w: refund: %v", ErrExternalCallFailed, err)
	}
	recovered = cloneBigInt(recovered)
	if recovered.Sign() < 0 {
		return nil, fmt.Errorf("%w: refund returned negative amount %s", ErrExternalCallFailed, recovered)
	}

	snapshot := new(big.Int).Add(held, recovered)
	p.balanceRemainingSnapshot = new(big.Int).Add(p.balanceRemainingSnapshot, snapshot)
	assigned := p.distributeRefund(snapshot)
	if err := p.transition(StatusRefund); err != nil {
		return nil, err
	}
	sc.commit()

	return &RefundReceipt{Held: held, Recovered: recovered, Assigned: assigned}, nil
}

func valueString(v *big.Int) string {
	if v == nil {
		return "<nil>"
	}
	return v.String()
}
