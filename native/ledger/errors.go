package ledger

import "errors"

var (
	ErrNilState                 = errors.New("ledger: state not configured")
	ErrZeroAddress              = errors.New("ledger: zero address")
	ErrUnauthorized             = errors.New("ledger: caller lacks admin capability")
	ErrInvalidSlot              = errors.New("ledger: invalid slot")
	ErrInvalidValue             = errors.New("ledger: value must not be negative")
	ErrSlotManagerAlreadyExists = errors.New("ledger: slot manager already exists")
	ErrNotSlotManagerRole       = errors.New("ledger: caller is not a slot manager")
	ErrSlotAlreadyClaimed       = errors.New("ledger: slot already claimed")
	ErrSlotNotExists            = errors.New("ledger: slot not exists")
	ErrNotSlotManagerOfSlot     = errors.New("ledger: not slot manager of slot")
	ErrInvalidTokenID           = errors.New("ledger: invalid token id")
	ErrNotOwnerNorApproved      = errors.New("ledger: caller is not owner nor approved")
	ErrIncorrectOwner           = errors.New("ledger: transfer from incorrect owner")
	ErrInsufficientBalance      = errors.New("ledger: insufficient balance")
	ErrSlotMismatch             = errors.New("ledger: transfer to token with different slot")
	ErrSameToken                = errors.New("ledger: transfer to the same token")
	ErrApprovalToCurrentOwner   = errors.New("ledger: approval to current owner")
	ErrApproveToCaller          = errors.New("ledger: approve to caller")
	ErrReentrantCall            = errors.New("ledger: reentrant call during value transfer")
)
