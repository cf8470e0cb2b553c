// Package inbound exposes the payment webhook over HTTP.
//
// The Receiver checks the content type, bounds and verifies the raw body,
// parses it into a webhooks.OrderWebhook and hands it to the dispatcher.
// Internal failures are logged with full context while the response body
// stays generic.
package inbound
