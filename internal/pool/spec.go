package pool

import (
	"fmt"
	"strings"
)

// NotConfigured 入口未配置的占位写法
const NotConfigured = "N/A"

// Spec 管理员提交的销售配置，原样保存
type Spec struct {
	SaleTarget            string `json:"sale_target"`
	IssuedAssetRef        string `json:"issued_asset_ref"`
	BuyEntryPoint         string `json:"buy_entry_point"`
	VendorClaimEntryPoint string `json:"vendor_claim_entry_point"`
	RefundEntryPoint      string `json:"refund_entry_point"`
	IsRefundable          bool   `json:"is_refundable"`
	ContactInfo           string `json:"contact_info"`
}

// Configured 销售目标与资产都已填写
func (s Spec) Configured() bool {
	return strings.TrimSpace(s.SaleTarget) != "" && strings.TrimSpace(s.IssuedAssetRef) != ""
}

// HasVendorClaim 是否需要单独向销售方领取
func (s Spec) HasVendorClaim() bool {
	return entryPointSet(s.VendorClaimEntryPoint)
}

// HasRefund 是否配置了退款入口
func (s Spec) HasRefund() bool {
	return entryPointSet(s.RefundEntryPoint)
}

// buyEntryPoint 未配置时返回空串，表示直接转账
func (s Spec) buyEntryPoint() string {
	if !entryPointSet(s.BuyEntryPoint) {
		return ""
	}
	return strings.TrimSpace(s.BuyEntryPoint)
}

func entryPointSet(name string) bool {
	n := strings.TrimSpace(name)
	return n != "" && !strings.EqualFold(n, NotConfigured)
}

// bound 绑定后的能力
type bound struct {
	target SaleTarget
	asset  AssetLedger
}

// bindSpec 绑定并校验能力
func bindSpec(binder Binder, s Spec) (bound, error) {
	if !s.Configured() {
		return bound{}, fmt.Errorf("%w: sale target and issued asset are required", ErrInvalidSpec)
	}
	if binder == nil {
		return bound{}, fmt.Errorf("%w: no binder configured", ErrInvalidSpec)
	}
	target, err := binder.BindSaleTarget(strings.TrimSpace(s.SaleTarget))
	if err != nil {
		return bound{}, fmt.Errorf("%w: bind sale target: %v", ErrInvalidSpec, err)
	}
	if target == nil {
		return bound{}, fmt.Errorf("%w: sale target %q is not a buyer", ErrInvalidSpec, s.SaleTarget)
	}
	asset, err := binder.BindAsset(strings.TrimSpace(s.IssuedAssetRef))
	if err != nil {
		return bound{}, fmt.Errorf("%w: bind issued asset: %v", ErrInvalidSpec, err)
	}
	if asset == nil {
		return bound{}, fmt.Errorf("%w: issued asset %q not bound", ErrInvalidSpec, s.IssuedAssetRef)
	}

	if s.HasVendorClaim() {
		if _, ok := target.(VendorClaimer); !ok {
			return bound{}, fmt.Errorf("%w: sale target does not support vendor claim", ErrInvalidSpec)
		}
	}
	if s.IsRefundable && !s.HasRefund() {
		return bound{}, fmt.Errorf("%w: refundable pool needs a refund entry point", ErrInvalidSpec)
	}
	if s.HasRefund() {
		if _, ok := target.(Refunder); !ok {
			return bound{}, fmt.Errorf("%w: sale target does not support refunds", ErrInvalidSpec)
		}
	}

	if v, ok := target.(EntryPointValidator); ok {
		for _, name := range []string{s.BuyEntryPoint, s.VendorClaimEntryPoint, s.RefundEntryPoint} {
			if !entryPointSet(name) {
				continue
			}
			if err := v.ValidateEntryPoint(strings.TrimSpace(name)); err != nil {
				return bound{}, fmt.Errorf("%w: entry point %q: %v", ErrInvalidSpec, name, err)
			}
		}
	}

	return bound{target: target, asset: asset}, nil
}
