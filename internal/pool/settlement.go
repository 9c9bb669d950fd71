package pool

import (
	"fmt"
	"math/big"
)

// PercentScale 份额定点精度，1e18 表示 100%
var PercentScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

var hundred = big.NewInt(100)

// CalculateSubsidy 折扣补贴
// 募集总额按折后价买入，补贴补足到原价：total * d / (100 - d)，向下取整
func CalculateSubsidy(discountPercent uint64, total *big.Int) (*big.Int, error) {
	if discountPercent >= 100 {
		return nil, fmt.Errorf("%w: discount percent %d must be below 100", ErrInvalidParams, discountPercent)
	}
	if total == nil || total.Sign() <= 0 || discountPercent == 0 {
		return big.NewInt(0), nil
	}
	num := new(big.Int).Mul(total, new(big.Int).SetUint64(discountPercent))
	den := new(big.Int).SetUint64(100 - discountPercent)
	return num.Quo(num, den), nil
}

// CalculateFee 服务费：total * fee / 100，向下取整
func CalculateFee(feePercentage uint64, total *big.Int) *big.Int {
	if total == nil || total.Sign() <= 0 || feePercentage == 0 {
		return big.NewInt(0)
	}
	fee := new(big.Int).Mul(total, new(big.Int).SetUint64(feePercentage))
	return fee.Quo(fee, hundred)
}

// DiscountFromPrices 由团购价与公开价推导折扣百分比
func DiscountFromPrices(groupPrice, publicPrice *big.Int) (uint64, error) {
	if publicPrice == nil || publicPrice.Sign() <= 0 {
		return 0, fmt.Errorf("%w: public token price must be positive", ErrInvalidParams)
	}
	if groupPrice == nil || groupPrice.Sign() <= 0 {
		return 0, fmt.Errorf("%w: group token price must be positive", ErrInvalidParams)
	}
	if groupPrice.Cmp(publicPrice) > 0 {
		return 0, fmt.Errorf("%w: group token price above public price", ErrInvalidParams)
	}
	diff := new(big.Int).Sub(publicPrice, groupPrice)
	diff.Mul(diff, hundred)
	diff.Quo(diff, publicPrice)
	return diff.Uint64(), nil
}

// percentageOf amount / total，精度 PercentScale
func percentageOf(amount, total *big.Int) *big.Int {
	if total == nil || total.Sign() <= 0 || amount == nil || amount.Sign() <= 0 {
		return big.NewInt(0)
	}
	pct := new(big.Int).Mul(amount, PercentScale)
	return pct.Quo(pct, total)
}

// shareOf amount * pct / PercentScale
func shareOf(amount, pct *big.Int) *big.Int {
	if amount == nil || pct == nil || amount.Sign() <= 0 || pct.Sign() <= 0 {
		return big.NewInt(0)
	}
	share := new(big.Int).Mul(amount, pct)
	return share.Quo(share, PercentScale)
}
