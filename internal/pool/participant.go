package pool

import "math/big"

// Account 参与者或管理员身份
type Account string

// KickReason 踢出原因
type KickReason string

const (
	KickReasonOther KickReason = "other"
	KickReasonKYC   KickReason = "kyc"
)

// Participant 参与者账本记录
type Participant struct {
	Account                Account
	AmountContributed      *big.Int
	PercentageContribution *big.Int // 精度 PercentScale，锁定时确定
	LastAmountClaimed      *big.Int
	RefundAmount           *big.Int
	RefundPaid             *big.Int
	Kicked                 bool
	KickReason             KickReason
}

func newParticipant(account Account) *Participant {
	return &Participant{
		Account:                account,
		AmountContributed:      big.NewInt(0),
		PercentageContribution: big.NewInt(0),
		LastAmountClaimed:      big.NewInt(0),
		RefundAmount:           big.NewInt(0),
		RefundPaid:             big.NewInt(0),
	}
}

// Clone 深拷贝
func (p *Participant) Clone() *Participant {
	if p == nil {
		return nil
	}
	return &Participant{
		Account:                p.Account,
		AmountContributed:      cloneBigInt(p.AmountContributed),
		PercentageContribution: cloneBigInt(p.PercentageContribution),
		LastAmountClaimed:      cloneBigInt(p.LastAmountClaimed),
		RefundAmount:           cloneBigInt(p.RefundAmount),
		RefundPaid:             cloneBigInt(p.RefundPaid),
		Kicked:                 p.Kicked,
		KickReason:             p.KickReason,
	}
}

// RefundDue 尚未支付的退款
func (p *Participant) RefundDue() *big.Int {
	due := new(big.Int).Sub(p.RefundAmount, p.RefundPaid)
	if due.Sign() < 0 {
		return big.NewInt(0)
	}
	return due
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
