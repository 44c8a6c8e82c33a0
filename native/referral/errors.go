package referral

import "errors"

var (
	ErrNilState             = errors.New("referral: state not configured")
	ErrUnauthorized         = errors.New("referral: caller lacks required role")
	ErrZeroAddress          = errors.New("referral: zero address")
	ErrIllegalCaller        = errors.New("referral: illegal caller")
	ErrIllegalTransfer      = errors.New("referral: qualification cannot be split or merged")
	ErrBeyondDeadline       = errors.New("referral: beyond deadline")
	ErrMissingQualification = errors.New("referral: missing qualification")
	ErrAlreadyBound         = errors.New("referral: already bound")
	ErrConsumerExists       = errors.New("referral: consumer already exists")
	ErrIllegalRatio         = errors.New("referral: illegal ratio")
	ErrIllegalProduct       = errors.New("referral: illegal product")
	ErrIllegalConsumer      = errors.New("referral: illegal consumer")
	ErrReferralNotExists    = errors.New("referral: referral not exists")
	ErrAlreadyTracked       = errors.New("referral: voucher already tracked")
	ErrIllegalVoucher       = errors.New("referral: illegal voucher")
)
