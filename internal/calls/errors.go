package calls

import "voip-platform/internal/apperr"

var (
	ErrCallNotFound        = apperr.New(apperr.KindNotFound, "call not found")
	ErrInvalidTransition   = apperr.New(apperr.KindInvalidState, "call status cannot change")
	ErrNotRefundable       = apperr.New(apperr.KindInvalidState, "only completed calls can be refunded")
	ErrCallerIDNotVerified = apperr.New(apperr.KindCallerIDNotVerified, "caller ID is not verified")
	ErrNoDefaultCallerID   = apperr.New(apperr.KindInvalidState, "no default caller ID configured")
	ErrTooManyCalls        = apperr.New(apperr.KindRateLimited, "too many calls in progress")
	ErrCallFailed          = apperr.New(apperr.KindProvider, "the call could not be placed, please try again")
)
