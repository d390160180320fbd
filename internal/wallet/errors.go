package wallet

import "voip-platform/internal/apperr"

var (
	ErrUserNotFound     = apperr.New(apperr.KindNotFound, "user not found")
	ErrInvalidAmount    = apperr.New(apperr.KindInvalidArgument, "amount must be greater than zero")
	ErrMissingReason    = apperr.New(apperr.KindInvalidArgument, "ledger reason required")
	ErrDuplicatePosting = apperr.New(apperr.KindInvalidState, "posting already applied")
)
