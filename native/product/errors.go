package product

import "errors"

var (
	ErrNilState                      = errors.New("product: state not configured")
	ErrUnauthorized                  = errors.New("product: caller lacks required role")
	ErrBadTotalQuota                 = errors.New("product: bad total quota")
	ErrBadMinSubscriptionAmount      = errors.New("product: bad min subscription amount")
	ErrBadBeginSubscriptionBlock     = errors.New("product: bad begin subscription block")
	ErrBadEndSubscriptionBlock       = errors.New("product: bad end subscription block")
	ErrZeroAddress                   = errors.New("product: zero address")
	ErrUnknownStrategy               = errors.New("product: unknown interest rate strategy")
	ErrDuplicatedProductID           = errors.New("product: duplicated product id")
	ErrNotSlotManagerOfSlot          = errors.New("product: slot claimed by another manager")
	ErrProductNotExists              = errors.New("product: product not exists")
	ErrInvalidProductStage           = errors.New("product: invalid product stage")
	ErrLessThanMinSubscriptionAmount = errors.New("product: less than min subscription amount")
	ErrExceedsTotalQuota             = errors.New("product: exceeds total quota")
	ErrNotSubscriber                 = errors.New("product: not subscriber")
	ErrInvalidAmount                 = errors.New("product: amount must be positive")
	ErrInsufficientBalance           = errors.New("product: insufficient balance")
	ErrNotRedeemableAtPresent        = errors.New("product: not redeemable at present")
	ErrIllegalCaller                 = errors.New("product: illegal caller")
	ErrTransferControl               = errors.New("product: voucher transfers locked until online")
)
