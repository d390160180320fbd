package pricing

import "voip-platform/internal/apperr"

var (
	ErrUnsupportedDestination = apperr.New(apperr.KindUnsupportedDestination, "destination not supported")
	ErrRateNotFound           = apperr.New(apperr.KindNotFound, "rate not found")
	ErrInvalidNumber          = apperr.New(apperr.KindInvalidArgument, "dialed number must contain digits")
)
