package credit

import (
	"errors"
	"fmt"
)

// 账本层的领域错误。
var (
	ErrSourceMismatch     = errors.New("credit source mismatch")
	ErrUnknownReservation = errors.New("unknown reservation")
	ErrInvalidAmount      = errors.New("reserve amount must be positive")
)

// ErrInsufficientCredits 余额不足。携带所需/可用额度与解析原因，
// API 层据此返回 402 响应。
type ErrInsufficientCredits struct {
	Required  int64
	Available int64
	Reason    string
	Source    string
}

func (e *ErrInsufficientCredits) Error() string {
	return fmt.Sprintf("insufficient credits: required %d, available %d (%s)", e.Required, e.Available, e.Reason)
}

// AsInsufficientCredits 从错误链中提取余额不足错误。
func AsInsufficientCredits(err error) (*ErrInsufficientCredits, bool) {
	var target *ErrInsufficientCredits
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}
