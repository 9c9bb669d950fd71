package pool

// Status 资金池生命周期状态
type Status string

const (
	StatusOpen         Status = "open"          // 募集中
	StatusDueDiligence Status = "due_diligence" // 尽调期
	StatusInReview     Status = "in_review"     // 已锁定，等待释放或领取
	StatusClaim        Status = "claim"         // 可领取
	StatusRefund       Status = "refund"        // 退款
)

// AllStatuses 所有状态，按生命周期顺序
var AllStatuses = []Status{StatusOpen, StatusDueDiligence, StatusInReview, StatusClaim, StatusRefund}

// Valid 检查状态是否合法
func (s Status) Valid() bool {
	for _, st := range AllStatuses {
		if st == s {
			return true
		}
	}
	return false
}

// preLock 锁定前（账本仍可修改）
func (s Status) preLock() bool {
	return s == StatusOpen || s == StatusDueDiligence
}

// Terminal 终态
func (s Status) Terminal() bool {
	return s == StatusClaim || s == StatusRefund
}

// canTransition 只允许向前迁移
func canTransition(from, to Status) bool {
	switch from {
	case StatusOpen:
		return to == StatusDueDiligence
	case StatusDueDiligence:
		return to == StatusInReview || to == StatusRefund
	case StatusInReview:
		return to == StatusClaim || to == StatusRefund
	default:
		return false
	}
}
