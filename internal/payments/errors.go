package payments

import "voip-platform/internal/apperr"

var (
	ErrPaymentNotFound  = apperr.New(apperr.KindNotFound, "payment not found")
	ErrAmountTooSmall   = apperr.New(apperr.KindInvalidArgument, "amount is below the minimum purchase")
	ErrNotRefundable    = apperr.New(apperr.KindInvalidState, "only completed payments can be refunded")
	ErrInvalidSignature = apperr.New(apperr.KindUnauthorized, "invalid webhook signature")
	ErrProviderFailed   = apperr.New(apperr.KindProvider, "the payment provider is unavailable, please try again")
	ErrNoPaymentMethod  = apperr.New(apperr.KindInvalidState, "no saved payment method")
	ErrChargeNotSettled = apperr.New(apperr.KindTopupFailed, "charge did not settle")
)
