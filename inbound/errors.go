package inbound

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-order-notify/core"
)

// Public response messages. They never carry provider or parser detail.
const (
	MessageMethodNotAllowed     = "Method not allowed."
	MessageUnsupportedMediaType = "Unsupported content type. Expected application/json."
	MessageBodyTooLarge         = "Request body too large."
	MessageUnauthorized         = "Webhook signature verification failed."
	MessageInvalidJSON          = "Invalid JSON body."
	MessageInvalidPayload       = "Invalid webhook payload."
	MessageDispatchFailed       = "Failed to send one or more transactional emails."
	MessageInternal             = "Internal server error."
)

func inboundError(
	message string,
	category goerrors.Category,
	code int,
	textCode string,
	metadata map[string]any,
) *goerrors.Error {
	err := goerrors.New(message, category).
		WithCode(code).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func inboundWrapError(
	source error,
	category goerrors.Category,
	message string,
	code int,
	textCode string,
	metadata map[string]any,
) *goerrors.Error {
	if source == nil {
		return inboundError(message, category, code, textCode, metadata)
	}
	err := goerrors.Wrap(source, category, message).
		WithCode(code).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func unsupportedMediaType(contentType string) *goerrors.Error {
	return inboundError(
		"inbound: unsupported content type",
		goerrors.CategoryBadInput,
		http.StatusUnsupportedMediaType,
		core.ErrorUnsupportedMediaType,
		map[string]any{"content_type": contentType},
	)
}

func bodyTooLarge(limit int64) *goerrors.Error {
	return inboundError(
		"inbound: request body exceeds limit",
		goerrors.CategoryBadInput,
		http.StatusRequestEntityTooLarge,
		core.ErrorPayloadTooLarge,
		map[string]any{"limit_bytes": limit},
	)
}

func unauthorized(source error) *goerrors.Error {
	return inboundWrapError(
		source,
		goerrors.CategoryAuth,
		"inbound: webhook verification failed",
		http.StatusUnauthorized,
		core.ErrorUnauthorized,
		nil,
	)
}

func invalidJSON(source error) *goerrors.Error {
	return inboundWrapError(
		source,
		goerrors.CategoryBadInput,
		"inbound: invalid json body",
		http.StatusBadRequest,
		core.ErrorBadInput,
		nil,
	)
}

func dispatchFailed(source error, orderID string) *goerrors.Error {
	return inboundWrapError(
		source,
		goerrors.CategoryExternal,
		"inbound: payment email dispatch failed",
		http.StatusBadGateway,
		core.ErrorDispatchFailed,
		map[string]any{"order_id": orderID},
	)
}

// publicMessage picks the response text for an envelope.
func publicMessage(err *goerrors.Error) string {
	if err == nil {
		return MessageInternal
	}
	switch err.TextCode {
	case core.ErrorUnsupportedMediaType:
		return MessageUnsupportedMediaType
	case core.ErrorPayloadTooLarge:
		return MessageBodyTooLarge
	case core.ErrorUnauthorized:
		return MessageUnauthorized
	case core.ErrorBadInput:
		return MessageInvalidJSON
	case core.ErrorDispatchFailed:
		return MessageDispatchFailed
	default:
		return MessageInternal
	}
}
