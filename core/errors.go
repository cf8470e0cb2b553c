package core

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ErrorBadInput             = "NOTIFY_BAD_INPUT"
	ErrorUnsupportedMediaType = "NOTIFY_UNSUPPORTED_MEDIA_TYPE"
	ErrorPayloadTooLarge      = "NOTIFY_PAYLOAD_TOO_LARGE"
	ErrorUnauthorized         = "NOTIFY_UNAUTHORIZED"
	ErrorDispatchFailed       = "NOTIFY_DISPATCH_FAILED"
	ErrorInternal             = "NOTIFY_INTERNAL_ERROR"
)

func NewError(message string, category goerrors.Category, code int, textCode string) *goerrors.Error {
	return goerrors.New(message, category).
		WithCode(code).
		WithTextCode(textCode)
}

func WrapError(source error, category goerrors.Category, message string, code int, textCode string) *goerrors.Error {
	if source == nil {
		return NewError(message, category, code, textCode)
	}
	return goerrors.Wrap(source, category, message).
		WithCode(code).
		WithTextCode(textCode)
}

// MapError converts any error into an envelope with an HTTP code and text
// code, preserving envelopes that are already rich.
func MapError(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		return ensureEnvelope(rich)
	}
	return ensureEnvelope(goerrors.MapToError(err, goerrors.DefaultErrorMappers()))
}

func ensureEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = httpStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return ErrorBadInput
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return ErrorUnauthorized
	case goerrors.CategoryExternal:
		return ErrorDispatchFailed
	default:
		return ErrorInternal
	}
}

func httpStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
