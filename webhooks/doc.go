// Package webhooks contains the order webhook schema, signature verification
// and delivery bookkeeping.
//
// Parsing is done once at ingress: the raw JSON tree is converted into an
// OrderWebhook and every schema violation is reported as an Issue. Verifiers
// run on the raw body before parsing, so signature checks can be added or
// swapped without touching the parser or the dispatcher.
package webhooks
