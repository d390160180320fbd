package accounts

import "voip-platform/internal/apperr"

var (
	ErrUserNotFound   = apperr.New(apperr.KindNotFound, "user not found")
	ErrAdminProtected = apperr.New(apperr.KindForbidden, "admin accounts cannot be deleted")
	ErrInvalidEmail   = apperr.New(apperr.KindInvalidArgument, "valid email required")
	ErrUserIDRequired = apperr.New(apperr.KindInvalidArgument, "user id required")
)

func invalidTopup(msg string) error {
	return apperr.New(apperr.KindInvalidArgument, msg)
}
