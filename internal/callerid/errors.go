package callerid

import "voip-platform/internal/apperr"

var (
	ErrNotFound        = apperr.New(apperr.KindNotFound, "caller ID not found")
	ErrInvalidNumber   = apperr.New(apperr.KindInvalidArgument, "phone number must be a valid international number")
	ErrAlreadyVerified = apperr.New(apperr.KindAlreadyVerified, "this number is already verified")
	ErrCodeExpired     = apperr.New(apperr.KindCodeExpired, "verification code expired, add the number again")
	ErrTooManyAttempts = apperr.New(apperr.KindTooManyAttempts, "too many attempts, add the number again")
	ErrInvalidCode     = apperr.New(apperr.KindInvalidCode, "verification code is incorrect")
	ErrRateLimited     = apperr.New(apperr.KindRateLimited, "a code was sent recently, try again shortly")
	ErrDeliveryFailed  = apperr.New(apperr.KindProvider, "could not place the verification call")
)
