package repository

import (
	"fmt"
	"math/big"
	"time"

	"github.com/blues/poolparty/internal/model"
	"github.com/blues/poolparty/internal/pool"
)

// FormatAmount 金额转十进制字符串
func FormatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// ParseAmount 十进制字符串转金额，空串视为 0
func ParseAmount(s string) (*big.Int, error) {
	if s == "" {
		return big.NewInt(0), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	return v, nil
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	t = t.UTC()
	return &t
}

func timeVal(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return t.UTC()
}

// applyState 把领域状态写入数据库行
func applyState(m *model.PoolModel, s pool.State) {
	m.PoolId = s.ID
	m.Name = s.Name
	m.Description = s.Description
	m.MetadataHash = s.MetadataHash
	m.AdminIdentifier = s.AdminIdentifier
	m.AdminAccount = string(s.Admin)
	m.CustodyAccount = string(s.Custody)
	m.Status = string(s.Status)
	m.TotalContributions = FormatAmount(s.TotalContributions)
	m.DiscountPercent = s.DiscountPercent
	m.FeePercentage = s.FeePercentage
	m.MinContribution = FormatAmount(s.MinContribution)
	m.MaxContribution = FormatAmount(s.MaxContribution)
	m.MaxAllocation = FormatAmount(s.MaxAllocation)
	m.WaterMark = FormatAmount(s.WaterMark)
	m.GroupTokenPrice = FormatAmount(s.GroupTokenPrice)
	m.PublicTokenPrice = FormatAmount(s.PublicTokenPrice)
	m.DueDiligenceSeconds = int64(s.DueDiligenceDuration / time.Second)
	m.DueDiligenceDeadline = timePtr(s.DueDiligenceDeadline)
	m.SaleTarget = s.Spec.SaleTarget
	m.IssuedAssetRef = s.Spec.IssuedAssetRef
	m.BuyEntryPoint = s.Spec.BuyEntryPoint
	m.VendorClaimEntryPoint = s.Spec.VendorClaimEntryPoint
	m.RefundEntryPoint = s.Spec.RefundEntryPoint
	m.IsRefundable = s.Spec.IsRefundable
	m.ContactInfo = s.Spec.ContactInfo
	m.Subsidy = FormatAmount(s.Subsidy)
	m.Fee = FormatAmount(s.Fee)
	m.Released = s.Released
	m.IssuedAssetBalance = FormatAmount(s.IssuedAssetBalance)
	m.TotalAssetClaimed = FormatAmount(s.TotalAssetClaimed)
	m.BalanceRemainingSnapshot = FormatAmount(s.BalanceRemainingSnapshot)
	m.LockedAt = timePtr(s.LockedAt)
	m.ReleasedAt = timePtr(s.ReleasedAt)
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.CreatedAt.UTC()
	}
}

func applyParticipant(m *model.ParticipantModel, poolId string, seq int, p *pool.Participant) {
	m.PoolId = poolId
	m.Account = string(p.Account)
	if m.Id == 0 {
		m.Seq = seq
	}
	m.AmountContributed = FormatAmount(p.AmountContributed)
	m.PercentageContribution = FormatAmount(p.PercentageContribution)
	m.LastAmountClaimed = FormatAmount(p.LastAmountClaimed)
	m.RefundAmount = FormatAmount(p.RefundAmount)
	m.RefundPaid = FormatAmount(p.RefundPaid)
	m.Kicked = p.Kicked
	m.KickReason = string(p.KickReason)
}

// toState 数据库行还原为领域状态
func toState(m *model.PoolModel, parts []model.ParticipantModel) (pool.State, error) {
	amounts := map[string]string{
		"total_contributions":        m.TotalContributions,
		"min_contribution":           m.MinContribution,
		"max_contribution":           m.MaxContribution,
		"max_allocation":             m.MaxAllocation,
		"water_mark":                 m.WaterMark,
		"group_token_price":          m.GroupTokenPrice,
		"public_token_price":         m.PublicTokenPrice,
		"subsidy":                    m.Subsidy,
		"fee":                        m.Fee,
		"issued_asset_balance":       m.IssuedAssetBalance,
		"total_asset_claimed":        m.TotalAssetClaimed,
		"balance_remaining_snapshot": m.BalanceRemainingSnapshot,
	}
	parsed := make(map[string]*big.Int, len(amounts))
	for name, raw := range amounts {
		v, err := ParseAmount(raw)
		if err != nil {
			return pool.State{}, fmt.Errorf("pool %s %s: %w", m.PoolId, name, err)
		}
		parsed[name] = v
	}

	st := pool.State{
		ID:                   m.PoolId,
		Name:                 m.Name,
		Description:          m.Description,
		MetadataHash:         m.MetadataHash,
		AdminIdentifier:      m.AdminIdentifier,
		Admin:                pool.Account(m.AdminAccount),
		Custody:              pool.Account(m.CustodyAccount),
		Status:               pool.Status(m.Status),
		TotalContributions:   parsed["total_contributions"],
		DiscountPercent:      m.DiscountPercent,
		FeePercentage:        m.FeePercentage,
		MinContribution:      parsed["min_contribution"],
		MaxContribution:      parsed["max_contribution"],
		MaxAllocation:        parsed["max_allocation"],
		WaterMark:            parsed["water_mark"],
		GroupTokenPrice:      parsed["group_token_price"],
		PublicTokenPrice:     parsed["public_token_price"],
		DueDiligenceDuration: time.Duration(m.DueDiligenceSeconds) * time.Second,
		DueDiligenceDeadline: timeVal(m.DueDiligenceDeadline),
		Spec: pool.Spec{
			SaleTarget:            m.SaleTarget,
			IssuedAssetRef:        m.IssuedAssetRef,
			BuyEntryPoint:         m.BuyEntryPoint,
			VendorClaimEntryPoint: m.VendorClaimEntryPoint,
			RefundEntryPoint:      m.RefundEntryPoint,
			IsRefundable:          m.IsRefundable,
			ContactInfo:           m.ContactInfo,
		},
		Subsidy:                  parsed["subsidy"],
		Fee:                      parsed["fee"],
		Released:                 m.Released,
		IssuedAssetBalance:       parsed["issued_asset_balance"],
		TotalAssetClaimed:        parsed["total_asset_claimed"],
		BalanceRemainingSnapshot: parsed["balance_remaining_snapshot"],
		CreatedAt:                m.CreatedAt.UTC(),
		LockedAt:                 timeVal(m.LockedAt),
		ReleasedAt:               timeVal(m.ReleasedAt),
		Participants:             make([]*pool.Participant, 0, len(parts)),
	}

	for i := range parts {
		p, err := toParticipant(&parts[i])
		if err != nil {
			return pool.State{}, fmt.Errorf("pool %s: %w", m.PoolId, err)
		}
		st.Participants = append(st.Participants, p)
	}
	return st, nil
}

func toParticipant(m *model.ParticipantModel) (*pool.Participant, error) {
	fields := []string{m.AmountContributed, m.PercentageContribution, m.LastAmountClaimed, m.RefundAmount, m.RefundPaid}
	values := make([]*big.Int, len(fields))
	for i, raw := range fields {
		v, err := ParseAmount(raw)
		if err != nil {
			return nil, fmt.Errorf("participant %s: %w", m.Account, err)
		}
		values[i] = v
	}
	return &pool.Participant{
		Account:                pool.Account(m.Account),
		AmountContributed:      values[0],
		PercentageContribution: values[1],
		LastAmountClaimed:      values[2],
		RefundAmount:           values[3],
		RefundPaid:             values[4],
		Kicked:                 m.Kicked,
		KickReason:             pool.KickReason(m.KickReason),
	}, nil
}
