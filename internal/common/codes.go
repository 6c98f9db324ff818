package common

import "errors"

// Коды ошибок, которые видит клиент Mini App.
const (
	CodeInvalidRequest    = "INVALID_REQUEST"
	CodeInsufficientFunds = "INSUFFICIENT_FUNDS"
	CodeCaseNotFound      = "CASE_NOT_FOUND"
	CodeInternalError     = "INTERNAL_ERROR"
)

// ErrorCode переводит ошибку в клиентский код.
// Всё, что не распознано как пользовательская ошибка, считается внутренней.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInsufficientBalance):
		return CodeInsufficientFunds
	case errors.Is(err, ErrCaseNotFound), errors.Is(err, ErrCaseInactive):
		return CodeCaseNotFound
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrInvalidCurrency),
		errors.Is(err, ErrUserNotFound),
		errors.Is(err, ErrUserBanned),
		errors.Is(err, ErrItemNotFound),
		errors.Is(err, ErrNotOwner),
		errors.Is(err, ErrAlreadyGifted),
		errors.Is(err, ErrSelfGift),
		errors.Is(err, ErrInvalidPayload),
		errors.Is(err, ErrDuplicatePayment):
		return CodeInvalidRequest
	default:
		return CodeInternalError
	}
}

// PublicMessage возвращает текст ошибки, который безопасно показать клиенту.
// Для внутренних ошибок детали не раскрываются.
func PublicMessage(err error) string {
	if ErrorCode(err) == CodeInternalError {
		if errors.Is(err, ErrOpeningFailed) {
			return ErrOpeningFailed.Error()
		}
		return "внутренняя ошибка, попробуйте ещё раз"
	}
	return err.Error()
}
