package pool

import "errors"

// 资金池错误类型
var (
	ErrInvalidState       = errors.New("pool: operation not allowed in current state")
	ErrUnauthorized       = errors.New("pool: caller is not the pool administrator")
	ErrCapExceeded        = errors.New("pool: contribution outside allowed caps")
	ErrInsufficientValue  = errors.New("pool: supplied value must equal subsidy plus fee")
	ErrNothingDue         = errors.New("pool: nothing due")
	ErrNotAParticipant    = errors.New("pool: account has no active contribution")
	ErrExternalCallFailed = errors.New("pool: external call failed")
	ErrAdminNotFound      = errors.New("pool: administrator not found")
	ErrInvalidSpec        = errors.New("pool: invalid configuration spec")
	ErrInvalidParams      = errors.New("pool: invalid pool parameters")
)
