package handler

import (
	"errors"
	"net/http"

	"github.com/PeterH4ck/SKYN3T-Control--sub000/infra/lock"
	"github.com/PeterH4ck/SKYN3T-Control--sub000/payment"
	"github.com/PeterH4ck/SKYN3T-Control--sub000/provider"
	"github.com/PeterH4ck/SKYN3T-Control--sub000/split"
	"github.com/PeterH4ck/SKYN3T-Control--sub000/webhook"
)

// httpStatusFor maps the domain error taxonomy onto HTTP status codes
func httpStatusFor(err error) int {
	var splitNotFound *split.SplitNotFoundError
	var percentageSum *split.PercentageSumError

	switch {
	case payment.IsNotFound(err), errors.As(err, &splitNotFound):
		return http.StatusNotFound
	case provider.IsDeclined(err):
		return http.StatusPaymentRequired
	case payment.IsValidation(err),
		payment.IsInvalidState(err),
		payment.IsRefundExceedsAmount(err),
		provider.IsValidation(err),
		errors.As(err, &percentageSum),
		errors.Is(err, split.ErrMixedSplitMode),
		errors.Is(err, split.ErrDuplicateRecipient),
		errors.Is(err, split.ErrNoMainRecipient),
		errors.Is(err, split.ErrNoRecipients),
		errors.Is(err, split.ErrNoSecondaryRecipient),
		errors.Is(err, split.ErrFixedAmountExceedsTotal),
		errors.Is(err, payment.ErrDuplicateTransactionID):
		return http.StatusBadRequest
	case errors.Is(err, webhook.ErrBadSignature):
		return http.StatusUnauthorized
	case errors.Is(err, lock.ErrLockTimeout):
		return http.StatusConflict
	case provider.IsAuthError(err):
		return http.StatusBadGateway
	case provider.IsUnavailable(err), provider.IsUnknownProvider(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
