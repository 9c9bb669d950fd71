package pool

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"
)

// Params 创建资金池的参数
type Params struct {
	ID                   string
	Name                 string
	Description          string
	MetadataHash         string
	AdminIdentifier      string
	Custody              Account
	WaterMark            *big.Int
	GroupTokenPrice      *big.Int
	PublicTokenPrice     *big.Int
	MinContribution      *big.Int
	MaxContribution      *big.Int
	MaxAllocation        *big.Int
	DiscountPercent      uint64 // 为 0 且填写了价格时由价格推导
	FeePercentage        uint64
	DueDiligenceDuration time.Duration
}

func (p Params) validate() (uint64, error) {
	if strings.TrimSpace(p.ID) == "" {
		return 0, fmt.Errorf("%w: id is required", ErrInvalidParams)
	}
	if strings.TrimSpace(string(p.Custody)) == "" {
		return 0, fmt.Errorf("%w: custody account is required", ErrInvalidParams)
	}
	if strings.TrimSpace(p.AdminIdentifier) == "" {
		return 0, fmt.Errorf("%w: admin identifier is required", ErrInvalidParams)
	}
	for name, v := range map[string]*big.Int{
		"water_mark":       p.WaterMark,
		"min_contribution": p.MinContribution,
		"max_contribution": p.MaxContribution,
		"max_allocation":   p.MaxAllocation,
	} {
		if v != nil && v.Sign() < 0 {
			return 0, fmt.Errorf("%w: %s must not be negative", ErrInvalidParams, name)
		}
	}
	if p.MaxContribution != nil && p.MaxContribution.Sign() > 0 &&
		p.MinContribution != nil && p.MinContribution.Cmp(p.MaxContribution) > 0 {
		return 0, fmt.Errorf("%w: min contribution above max contribution", ErrInvalidParams)
	}
	if p.DueDiligenceDuration < 0 {
		return 0, fmt.Errorf("%w: due diligence duration must not be negative", ErrInvalidParams)
	}
	if p.FeePercentage > 100 {
		return 0, fmt.Errorf("%w: fee percentage %d above 100", ErrInvalidParams, p.FeePercentage)
	}

	discount := p.DiscountPercent
	hasPrices := p.GroupTokenPrice != nil && p.GroupTokenPrice.Sign() != 0 ||
		p.PublicTokenPrice != nil && p.PublicTokenPrice.Sign() != 0
	if hasPrices {
		derived, err := DiscountFromPrices(p.GroupTokenPrice, p.PublicTokenPrice)
		if err != nil {
			return 0, err
		}
		if discount == 0 {
			discount = derived
		}
	}
	if discount >= 100 {
		return 0, fmt.Errorf("%w: discount percent %d must be below 100", ErrInvalidParams, discount)
	}
	return discount, nil
}

// Pool 资金池聚合
// 所有方法都不是并发安全的，由上层按资金池串行调用
type Pool struct {
	id              string
	name            string
	description     string
	metadataHash    string
	adminIdentifier string
	admin           authority
	custody         Account
	status          Status

	totalContributions   *big.Int
	discountPercent      uint64
	feePercentage        uint64
	minContribution      *big.Int
	maxContribution      *big.Int
	maxAllocation        *big.Int
	waterMark            *big.Int
	groupTokenPrice      *big.Int
	publicTokenPrice     *big.Int
	dueDiligenceDuration time.Duration
	dueDiligenceDeadline time.Time

	spec Spec
	caps bound
	deps Dependencies

	subsidy                  *big.Int
	fee                      *big.Int
	released                 bool
	issuedAssetBalance       *big.Int
	totalAssetClaimed        *big.Int
	balanceRemainingSnapshot *big.Int

	createdAt  time.Time
	lockedAt   time.Time
	releasedAt time.Time

	participants map[Account]*Participant
	order        []Account
}

// authority 管理员能力，创建后不可变
type authority struct {
	account Account
}

func (a authority) permits(caller Account) bool {
	return a.account != "" && caller == a.account
}

// New 创建资金池，管理员只解析这一次
func New(ctx context.Context, resolver AdminResolver, params Params, deps Dependencies) (*Pool, error) {
	discount, err := params.validate()
	if err != nil {
		return nil, err
	}
	if deps.Vault == nil {
		return nil, fmt.Errorf("%w: vault is required", ErrInvalidParams)
	}
	if resolver == nil {
		return nil, fmt.Errorf("%w: no resolver", ErrAdminNotFound)
	}
	admin, err := resolver.Resolve(ctx, params.AdminIdentifier)
	if err != nil {
		if errors.Is(err, ErrAdminNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrAdminNotFound, params.AdminIdentifier, err)
	}
	if strings.TrimSpace(string(admin)) == "" {
		return nil, fmt.Errorf("%w: %s", ErrAdminNotFound, params.AdminIdentifier)
	}

	return &Pool{
		id:                       params.ID,
		name:                     params.Name,
		description:              params.Description,
		metadataHash:             params.MetadataHash,
		adminIdentifier:          params.AdminIdentifier,
		admin:                    authority{account: admin},
		custody:                  params.Custody,
		status:                   StatusOpen,
		totalContributions:       big.NewInt(0),
		discountPercent:          discount,
		feePercentage:            params.FeePercentage,
		minContribution:          cloneBigInt(params.MinContribution),
		maxContribution:          cloneBigInt(params.MaxContribution),
		maxAllocation:            cloneBigInt(params.MaxAllocation),
		waterMark:                cloneBigInt(params.WaterMark),
		groupTokenPrice:          cloneBigInt(params.GroupTokenPrice),
		publicTokenPrice:         cloneBigInt(params.PublicTokenPrice),
		dueDiligenceDuration:     params.DueDiligenceDuration,
		deps:                     deps,
		subsidy:                  big.NewInt(0),
		fee:                      big.NewInt(0),
		issuedAssetBalance:       big.NewInt(0),
		totalAssetClaimed:        big.NewInt(0),
		balanceRemainingSnapshot: big.NewInt(0),
		createdAt:                deps.now(),
		participants:             make(map[Account]*Participant),
	}, nil
}

func (p *Pool) ID() string              { return p.id }
func (p *Pool) Name() string            { return p.name }
func (p *Pool) Description() string     { return p.description }
func (p *Pool) MetadataHash() string    { return p.metadataHash }
func (p *Pool) Status() Status          { return p.status }
func (p *Pool) Custody() Account        { return p.custody }
func (p *Pool) Admin() Account          { return p.admin.account }
func (p *Pool) IsAdmin(a Account) bool  { return p.admin.permits(a) }
func (p *Pool) DiscountPercent() uint64 { return p.discountPercent }
func (p *Pool) FeePercentage() uint64   { return p.feePercentage }
func (p *Pool) Spec() Spec              { return p.spec }
func (p *Pool) Deadline() time.Time     { return p.dueDiligenceDeadline }
func (p *Pool) Released() bool          { return p.released }

func (p *Pool) TotalContributions() *big.Int { return cloneBigInt(p.totalContributions) }
func (p *Pool) IssuedAssetBalance() *big.Int { return cloneBigInt(p.issuedAssetBalance) }
func (p *Pool) Subsidy() *big.Int            { return cloneBigInt(p.subsidy) }
func (p *Pool) Fee() *big.Int                { return cloneBigInt(p.fee) }

// WaterMarkReached 募集总额是否达到起购线
func (p *Pool) WaterMarkReached() bool {
	return p.waterMark.Sign() == 0 || p.totalContributions.Cmp(p.waterMark) >= 0
}

// Participant 返回参与者记录的副本
func (p *Pool) Participant(account Account) (*Participant, bool) {
	part, ok := p.participants[account]
	if !ok {
		return nil, false
	}
	return part.Clone(), true
}

// Participants 按首次出资顺序返回所有参与者
func (p *Pool) Participants() []*Participant {
	out := make([]*Participant, 0, len(p.order))
	for _, acc := range p.order {
		out = append(out, p.participants[acc].Clone())
	}
	return out
}

func (p *Pool) participant(account Account) *Participant {
	part, ok := p.participants[account]
	if !ok {
		part = newParticipant(account)
		p.participants[account] = part
		p.order = append(p.order, account)
	}
	return part
}

func (p *Pool) transition(to Status) error {
	if !canTransition(p.status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidState, p.status, to)
	}
	p.status = to
	return nil
}

// scope 单次操作的快照，未提交时恢复
type scope struct {
	pool  *Pool
	saved State
	caps  bound
	done  bool
}

func (p *Pool) begin() *scope {
	return &scope{pool: p, saved: p.State(), caps: p.caps}
}

func (s *scope) commit() { s.done = true }

func (s *scope) rollback() {
	if s.done {
		return
	}
	s.pool.load(s.saved)
	s.pool.caps = s.caps
}
