package pool

import (
	"fmt"
	"math/big"
	"time"
)

// State 资金池的完整可持久化状态
type State struct {
	ID                       string
	Name                     string
	Description              string
	MetadataHash             string
	AdminIdentifier          string
	Admin                    Account
	Custody                  Account
	Status                   Status
	TotalContributions       *big.Int
	DiscountPercent          uint64
	FeePercentage            uint64
	MinContribution          *big.Int
	MaxContribution          *big.Int
	MaxAllocation            *big.Int
	WaterMark                *big.Int
	GroupTokenPrice          *big.Int
	PublicTokenPrice         *big.Int
	DueDiligenceDuration     time.Duration
	DueDiligenceDeadline     time.Time
	Spec                     Spec
	Subsidy                  *big.Int
	Fee                      *big.Int
	Released                 bool
	IssuedAssetBalance       *big.Int
	TotalAssetClaimed        *big.Int
	BalanceRemainingSnapshot *big.Int
	CreatedAt                time.Time
	LockedAt                 time.Time
	ReleasedAt               time.Time
	Participants             []*Participant
}

// State 导出深拷贝
func (p *Pool) State() State {
	return State{
		ID:                       p.id,
		Name:                     p.name,
		Description:              p.description,
		MetadataHash:             p.metadataHash,
		AdminIdentifier:          p.adminIdentifier,
		Admin:                    p.admin.account,
		Custody:                  p.custody,
		Status:                   p.status,
		TotalContributions:       cloneBigInt(p.totalContributions),
		DiscountPercent:          p.discountPercent,
		FeePercentage:            p.feePercentage,
		MinContribution:          cloneBigInt(p.minContribution),
		MaxContribution:          cloneBigInt(p.maxContribution),
		MaxAllocation:            cloneBigInt(p.maxAllocation),
		WaterMark:                cloneBigInt(p.waterMark),
		GroupTokenPrice:          cloneBigInt(p.groupTokenPrice),
		PublicTokenPrice:         cloneBigInt(p.publicTokenPrice),
		DueDiligenceDuration:     p.dueDiligenceDuration,
		DueDiligenceDeadline:     p.dueDiligenceDeadline,
		Spec:                     p.spec,
		Subsidy:                  cloneBigInt(p.subsidy),
		Fee:                      cloneBigInt(p.fee),
		Released:                 p.released,
		IssuedAssetBalance:       cloneBigInt(p.issuedAssetBalance),
		TotalAssetClaimed:        cloneBigInt(p.totalAssetClaimed),
		BalanceRemainingSnapshot: cloneBigInt(p.balanceRemainingSnapshot),
		CreatedAt:                p.createdAt,
		LockedAt:                 p.lockedAt,
		ReleasedAt:               p.releasedAt,
		Participants:             p.Participants(),
	}
}

func (p *Pool) load(s State) {
	p.id = s.ID
	p.name = s.Name
	p.description = s.Description
	p.metadataHash = s.MetadataHash
	p.adminIdentifier = s.AdminIdentifier
	p.admin = authority{account: s.Admin}
	p.custody = s.Custody
	p.status = s.Status
	p.totalContributions = cloneBigInt(s.TotalContributions)
	p.discountPercent = s.DiscountPercent
	p.feePercentage = s.FeePercentage
	p.minContribution = cloneBigInt(s.MinContribution)
	p.maxContribution = cloneBigInt(s.MaxContribution)
	p.maxAllocation = cloneBigInt(s.MaxAllocation)
	p.waterMark = cloneBigInt(s.WaterMark)
	p.groupTokenPrice = cloneBigInt(s.GroupTokenPrice)
	p.publicTokenPrice = cloneBigInt(s.PublicTokenPrice)
	p.dueDiligenceDuration = s.DueDiligenceDuration
	p.dueDiligenceDeadline = s.DueDiligenceDeadline
	p.spec = s.Spec
	p.subsidy = cloneBigInt(s.Subsidy)
	p.fee = cloneBigInt(s.Fee)
	p.released = s.Released
	p.issuedAssetBalance = cloneBigInt(s.IssuedAssetBalance)
	p.totalAssetClaimed = cloneBigInt(s.TotalAssetClaimed)
	p.balanceRemainingSnapshot = cloneBigInt(s.BalanceRemainingSnapshot)
	p.createdAt = s.CreatedAt
	p.lockedAt = s.LockedAt
	p.releasedAt = s.ReleasedAt

	p.participants = make(map[Account]*Participant, len(s.Participants))
	p.order = make([]Account, 0, len(s.Participants))
	for _, part := range s.Participants {
		if part == nil {
			continue
		}
		if _, dup := p.participants[part.Account]; dup {
			continue
		}
		p.participants[part.Account] = part.Clone()
		p.order = append(p.order, part.Account)
	}
}

// Restore 从持久化状态重建资金池，已配置的销售目标会重新绑定
// 管理员直接取自状态，不再调用解析器
func Restore(s State, deps Dependencies) (*Pool, error) {
	if s.ID == "" || !s.Status.Valid() {
		return nil, fmt.Errorf("%w: corrupt state for pool %q (status %q)", ErrInvalidParams, s.ID, s.Status)
	}
	if deps.Vault == nil {
		return nil, fmt.Errorf("%w: vault is required", ErrInvalidParams)
	}
	p := &Pool{deps: deps}
	p.load(s)
	if s.Spec.Configured() {
		caps, err := bindSpec(deps.Binder, s.Spec)
		if err != nil {
			return nil, fmt.Errorf("restore pool %s: %w", s.ID, err)
		}
		p.caps = caps
	}
	return p, nil
}
