package pool

import (
	"context"
	"fmt"
	"math/big"
)

// Contribute 出资，可多次累加
func (p *Pool) Contribute(participant Account, amount *big.Int) error {
	if !p.status.preLock() {
		return fmt.Errorf("%w: contribute in %s", ErrInvalidState, p.status)
	}
	if participant == "" {
		return fmt.Errorf("%w: empty participant", ErrNotAParticipant)
	}
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrCapExceeded)
	}
	if amount.Cmp(p.minContribution) < 0 {
		return fmt.Errorf("%w: %s below minimum %s", ErrCapExceeded, amount, p.minContribution)
	}
	if p.maxContribution.Sign() > 0 && amount.Cmp(p.maxContribution) > 0 {
		return fmt.Errorf("%w: %s above maximum %s", ErrCapExceeded, amount, p.maxContribution)
	}
	newTotal := new(big.Int).Add(p.totalContributions, amount)
	if p.maxAllocation.Sign() > 0 && newTotal.Cmp(p.maxAllocation) > 0 {
		return fmt.Errorf("%w: total %s would exceed allocation %s", ErrCapExceeded, newTotal, p.maxAllocation)
	}

	if existing, ok := p.participants[participant]; ok && existing.Kicked {
		return fmt.Errorf("%w: %s was removed from the pool", ErrInvalidState, participant)
	}

	part := p.participant(participant)
	part.AmountContributed = new(big.Int).Add(part.AmountContributed, amount)
	p.totalContributions = newTotal
	return nil
}

// ContributeTokens 按团购价出资 quantity 份，返回实际出资金额
func (p *Pool) ContributeTokens(participant Account, quantity *big.Int) (*big.Int, error) {
	if p.groupTokenPrice.Sign() <= 0 {
		return nil, fmt.Errorf("%w: pool has no group token price", ErrCapExceeded)
	}
	if quantity == nil || quantity.Sign() <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", ErrCapExceeded)
	}
	amount := new(big.Int).Mul(quantity, p.groupTokenPrice)
	if err := p.Contribute(participant, amount); err != nil {
		return nil, err
	}
	return amount, nil
}

// Leave 参与者退出并取回全部出资
func (p *Pool) Leave(ctx context.Context, participant Account) (*big.Int, error) {
	return p.withdraw(ctx, participant, false, "")
}

// Kick 管理员在尽调期移除参与者，出资原路退回
func (p *Pool) Kick(ctx context.Context, caller, participant Account, reason KickReason) (*big.Int, error) {
	if !p.admin.permits(caller) {
		return nil, ErrUnauthorized
	}
	if p.status != StatusDueDiligence {
		return nil, fmt.Errorf("%w: kick in %s", ErrInvalidState, p.status)
	}
	if reason == "" {
		reason = KickReasonOther
	}
	return p.withdraw(ctx, participant, true, reason)
}

func (p *Pool) withdraw(ctx context.Context, participant Account, kicked bool, reason KickReason) (*big.Int, error) {
	if !p.status.preLock() {
		return nil, fmt.Errorf("%w: withdraw in %s", ErrInvalidState, p.status)
	}
	part, ok := p.participants[participant]
	if !ok || part.AmountContributed.Sign() == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotAParticipant, participant)
	}

	sc := p.begin()
	defer sc.rollback()

	amount := new(big.Int).Set(part.AmountContributed)
	part.AmountContributed = big.NewInt(0)
	part.RefundAmount = new(big.Int).Add(part.RefundAmount, amount)
	part.RefundPaid = new(big.Int).Add(part.RefundPaid, amount)
	if kicked {
		part.Kicked = true
		part.KickReason = reason
	}
	p.totalContributions = new(big.Int).Sub(p.totalContributions, amount)

	if err := p.deps.Vault.Send(ctx, p.custody, participant, amount); err != nil {
		return nil, fmt.Errorf("%w: return contribution to %s: %v", ErrExternalCallFailed, participant, err)
	}
	sc.commit()
	return amount, nil
}
