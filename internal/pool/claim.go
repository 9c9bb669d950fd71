package pool

import (
	"context"
	"fmt"
	"math/big"
)

// ContributionsDue 参与者当前可领取的资产与退款
type ContributionsDue struct {
	TokensDue *big.Int
	RefundDue *big.Int
}

// GetContributionsDue 只读查询，未参与的账户返回零
func (p *Pool) GetContributionsDue(participant Account) ContributionsDue {
	part, ok := p.participants[participant]
	if !ok {
		return ContributionsDue{TokensDue: big.NewInt(0), RefundDue: big.NewInt(0)}
	}
	return ContributionsDue{TokensDue: p.tokensDue(part), RefundDue: part.RefundDue()}
}

func (p *Pool) tokensDue(part *Participant) *big.Int {
	entitled := shareOf(p.issuedAssetBalance, part.PercentageContribution)
	due := entitled.Sub(entitled, part.LastAmountClaimed)
	if due.Sign() < 0 {
		return big.NewInt(0)
	}
	return due
}

// Claim 领取按份额分配的资产，可多次调用，只领取新增部分
func (p *Pool) Claim(ctx context.Context, participant Account) (*big.Int, error) {
	if p.status != StatusInReview && p.status != StatusClaim {
		return nil, fmt.Errorf("%w: claim in %s", ErrInvalidState, p.status)
	}
	part, ok := p.participants[participant]
	if !ok || part.PercentageContribution.Sign() == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNothingDue, participant)
	}

	sc := p.begin()
	defer sc.rollback()

	if p.released {
		if _, err := p.refreshIssuedAsset(ctx); err != nil {
			return nil, err
		}
	}
	due := p.tokensDue(part)
	if due.Sign() == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNothingDue, participant)
	}
	part.LastAmountClaimed = new(big.Int).Add(part.LastAmountClaimed, due)
	p.totalAssetClaimed = new(big.Int).Add(p.totalAssetClaimed, due)
	if err := p.caps.asset.Transfer(ctx, p.custody, participant, due); err != nil {
		return nil, fmt.Errorf("%w: transfer asset to %s: %v", ErrExternalCallFailed, participant, err)
	}
	sc.commit()
	return due, nil
}

// ClaimRefund 领取记在账上的退款
func (p *Pool) ClaimRefund(ctx context.Context, participant Account) (*big.Int, error) {
	if p.status.preLock() {
		return nil, fmt.Errorf("%w: refunds are not settled in %s", ErrInvalidState, p.status)
	}
	part, ok := p.participants[participant]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNothingDue, participant)
	}
	due := part.RefundDue()
	if due.Sign() == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNothingDue, participant)
	}

	sc := p.begin()
	defer sc.rollback()
	part.RefundPaid = new(big.Int).Add(part.RefundPaid, due)
	if err := p.deps.Vault.Send(ctx, p.custody, participant, due); err != nil {
		return nil, fmt.Errorf("%w: pay refund to %s: %v", ErrExternalCallFailed, participant, err)
	}
	sc.commit()
	return due, nil
}

// SyncIssuedAssetBalance 刷新已收到的资产总量，返回是否有变化
func (p *Pool) SyncIssuedAssetBalance(ctx context.Context) (bool, error) {
	if !p.released || p.caps.asset == nil {
		return false, nil
	}
	return p.refreshIssuedAsset(ctx)
}

// refreshIssuedAsset 收到总量 = 托管余额 + 已领取，只增不减
func (p *Pool) refreshIssuedAsset(ctx context.Context) (bool, error) {
	held, err := p.caps.asset.BalanceOf(ctx, p.custody)
	if err != nil {
		return false, fmt.Errorf("%w: asset balance: %v", ErrExternalCallFailed, err)
	}
	if held == nil || held.Sign() < 0 {
		return false, fmt.Errorf("%w: asset ledger returned invalid balance", ErrExternalCallFailed)
	}
	received := new(big.Int).Add(held, p.totalAssetClaimed)
	if received.Cmp(p.issuedAssetBalance) <= 0 {
		return false, nil
	}
	p.issuedAssetBalance = received
	return true, nil
}
