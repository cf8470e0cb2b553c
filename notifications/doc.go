// Package notifications turns a validated order webhook into the admin and
// customer payment emails.
//
// Each fallback used while normalizing is a named function (PickOrderID,
// PickAmount, ...) so the rules can be tested one by one. The Dispatcher
// takes its email sender, renderer, ledger and metrics as explicit
// dependencies.
package notifications
